package wallet

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

var (
	ErrNoKeyForInput  = errors.New("no key for input")
	ErrScriptMismatch = errors.New("previous output count does not match inputs")
)

// KeyRing resolves the private key controlling an address.
type KeyRing interface {
	PrivateKeyFor(addr btcutil.Address) (*btcec.PrivateKey, bool)
}

// UnlockedKeys is an in-memory ring keyed by encoded address, produced by
// KeyStore.Unlock. It lives only for the duration of a signing operation.
type UnlockedKeys map[string]*btcec.PrivateKey

func (u UnlockedKeys) PrivateKeyFor(addr btcutil.Address) (*btcec.PrivateKey, bool) {
	priv, ok := u[addr.EncodeAddress()]
	return priv, ok
}

// SignTx fills in the signature script of every input of tx. prevOuts
// holds, per input index, the output being spent. Only pay-to-pubkey-hash
// previous outputs are supported.
func SignTx(tx *wire.MsgTx, prevOuts []*wire.TxOut, ring KeyRing, params *chaincfg.Params) error {
	if len(prevOuts) != len(tx.TxIn) {
		return fmt.Errorf("%w: %d previous outputs for %d inputs", ErrScriptMismatch, len(prevOuts), len(tx.TxIn))
	}

	for i, txIn := range tx.TxIn {
		prev := prevOuts[i]

		_, addrs, _, err := txscript.ExtractPkScriptAddrs(prev.PkScript, params)
		if err != nil || len(addrs) == 0 {
			return fmt.Errorf("%w: input %d has an unrecognized script", ErrNoKeyForInput, i)
		}

		priv, ok := ring.PrivateKeyFor(addrs[0])
		if !ok {
			return fmt.Errorf("%w: input %d (%s)", ErrNoKeyForInput, i, addrs[0].EncodeAddress())
		}

		sigScript, err := txscript.SignatureScript(tx, i, prev.PkScript, txscript.SigHashAll, priv, true)
		if err != nil {
			return fmt.Errorf("sign input %d: %w", i, err)
		}
		txIn.SignatureScript = sigScript
	}

	return nil
}
