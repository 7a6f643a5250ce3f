package wallet

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
)

// Coin is a spendable unspent output together with the local annotations
// the selection filters operate on.
type Coin struct {
	OutPoint      wire.OutPoint
	Value         btcutil.Amount
	PkScript      []byte
	Address       string
	Confirmations int64
	Coinbase      bool
	Frozen        bool
	Token         bool
}

// TxOut converts the coin into the wire output it represents.
func (c *Coin) TxOut() *wire.TxOut {
	return wire.NewTxOut(int64(c.Value), c.PkScript)
}

// Key renders the canonical txid:vout form used by annotations.
func (c *Coin) Key() string {
	return c.OutPoint.String()
}

// CoinSource lists the spendable coins of an address set. The chain
// client implements it against the node; tests supply fixtures.
type CoinSource interface {
	ListCoins(ctx context.Context, addresses []string) ([]Coin, error)
}

// PrevOutsFor resolves every input of tx against the coin set it was
// built from, in input order, for signing and verification.
func PrevOutsFor(tx *wire.MsgTx, coins []Coin) ([]*wire.TxOut, error) {
	byKey := make(map[string]*Coin, len(coins))
	for i := range coins {
		byKey[coins[i].Key()] = &coins[i]
	}
	outs := make([]*wire.TxOut, len(tx.TxIn))
	for i, in := range tx.TxIn {
		coin, ok := byKey[in.PreviousOutPoint.String()]
		if !ok {
			return nil, fmt.Errorf("input %s is not part of the selection", in.PreviousOutPoint.String())
		}
		outs[i] = coin.TxOut()
	}
	return outs, nil
}
