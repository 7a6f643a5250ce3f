package upload

import (
	"context"
	"sort"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/rs/zerolog"

	"cashkit/internal/bfp"
	"cashkit/internal/builder"
	"cashkit/internal/wallet"
)

// fundingTxSize is the serialized size of a funding transaction with n
// inputs, the session output and a change output.
func fundingTxSize(n int) int {
	return 8 + wire.VarIntSerializeSize(uint64(n)) + n*148 + 1 + 2*34
}

// SelectFunding picks coins to cover the upload cost plus the funding
// fee, largest first. The whole selection is spent by the funding
// transaction.
func SelectFunding(coins []wallet.Coin, cost btcutil.Amount, feeRate int64) ([]wallet.Coin, error) {
	sorted := make([]wallet.Coin, len(coins))
	copy(sorted, coins)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Value > sorted[j].Value })

	var chosen []wallet.Coin
	var total btcutil.Amount
	for _, c := range sorted {
		chosen = append(chosen, c)
		total += c.Value
		fee := wallet.FeeForSize(fundingTxSize(len(chosen)), feeRate)
		if total >= cost+fee {
			return chosen, nil
		}
	}
	inputs := len(sorted)
	if inputs == 0 {
		inputs = 1
	}
	return nil, &builder.InsufficientFundsError{
		Required:  cost + wallet.FeeForSize(fundingTxSize(inputs), feeRate),
		Available: total,
	}
}

// Config describes one upload session.
type Config struct {
	Plan *bfp.Plan
	// FundingCoins are spent in full by the funding transaction.
	FundingCoins []wallet.Coin
	// Keys signs the funding inputs.
	Keys wallet.KeyRing
	// ChangeAddress receives the funding change.
	ChangeAddress btcutil.Address
	// Receiver gets the final dust output. Nil means ChangeAddress.
	Receiver btcutil.Address
	// FeeRate is in satoshis per kilobyte.
	FeeRate int64
	Params  *chaincfg.Params
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger zerolog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

// WithSignProgress reports each signed transaction as (signed, total).
func WithSignProgress(fn func(signed, total int)) SessionOption {
	return func(s *Session) { s.progress = fn }
}

// Session assembles and signs the complete transaction chain of one
// upload: a funding transaction paying the upload cost to an ephemeral
// session key, one transaction per file chunk, then the metadata
// transaction whose id becomes the file's address.
//
// Each chain transaction spends its predecessor, so a transaction can
// only be built once the one before it is signed and has a final id.
// The state machine walks that order.
type Session struct {
	cfg     Config
	logger  zerolog.Logger
	machine *Machine

	progress func(signed, total int)

	sessionKey    *btcec.PrivateKey
	sessionRing   wallet.UnlockedKeys
	sessionScript []byte
	changeScript  []byte
	payoutScript  []byte

	txs []*wire.MsgTx
	uri string
}

// NewSession prepares an upload session. A fresh session key is
// generated per call; it only ever holds in-flight funds.
func NewSession(cfg Config, opts ...SessionOption) (*Session, error) {
	key, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	sessionAddr, err := btcutil.NewAddressPubKeyHash(
		btcutil.Hash160(key.PubKey().SerializeCompressed()), cfg.Params)
	if err != nil {
		return nil, err
	}
	sessionScript, err := txscript.PayToAddrScript(sessionAddr)
	if err != nil {
		return nil, err
	}
	changeScript, err := txscript.PayToAddrScript(cfg.ChangeAddress)
	if err != nil {
		return nil, err
	}
	payoutScript := changeScript
	if cfg.Receiver != nil {
		payoutScript, err = txscript.PayToAddrScript(cfg.Receiver)
		if err != nil {
			return nil, err
		}
	}

	s := &Session{
		cfg:     cfg,
		logger:  zerolog.Nop(),
		machine: NewMachine(cfg.Plan.TxCount() + 1),
		sessionKey: key,
		sessionRing: wallet.UnlockedKeys{
			sessionAddr.EncodeAddress(): key,
		},
		sessionScript: sessionScript,
		changeScript:  changeScript,
		payoutScript:  payoutScript,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Machine exposes the signing state machine for status displays.
func (s *Session) Machine() *Machine { return s.machine }

// URI returns the file address once the chain is fully signed.
func (s *Session) URI() string { return s.uri }

// Run drives the machine until every transaction is signed. The returned
// slice starts with the funding transaction and ends with the metadata
// transaction, in broadcast order.
func (s *Session) Run(ctx context.Context) ([]*wire.MsgTx, error) {
	for {
		state := s.machine.State()
		switch state.Phase {
		case PhaseAllSigned:
			return s.txs, nil
		case PhaseFailed:
			return nil, &TransitionError{From: state, To: state, Reason: "session already failed"}
		}
		if err := ctx.Err(); err != nil {
			s.machine.Fail()
			return nil, err
		}

		if err := s.signNext(state.Index); err != nil {
			s.machine.Fail()
			return nil, err
		}
		next, err := s.machine.Advance()
		if err != nil {
			return nil, err
		}
		s.logger.Debug().Int("signed", state.Index+1).Int("total", s.machine.Total()).
			Str("state", next.String()).Msg("transaction signed")
		if s.progress != nil {
			s.progress(state.Index+1, s.machine.Total())
		}
	}
}

func (s *Session) signNext(index int) error {
	if index == 0 {
		return s.buildFunding()
	}
	return s.buildChainTx(index)
}

func (s *Session) buildFunding() error {
	cost := s.cfg.Plan.Cost(s.cfg.FeeRate)

	tx := wire.NewMsgTx(wire.TxVersion)
	var totalIn btcutil.Amount
	for i := range s.cfg.FundingCoins {
		outpoint := s.cfg.FundingCoins[i].OutPoint
		tx.AddTxIn(wire.NewTxIn(&outpoint, nil, nil))
		totalIn += s.cfg.FundingCoins[i].Value
	}
	tx.AddTxOut(wire.NewTxOut(int64(cost), s.sessionScript))

	fee := wallet.FeeForSize(fundingTxSize(len(tx.TxIn)), s.cfg.FeeRate)
	change := totalIn - cost - fee
	if change < 0 {
		return &builder.InsufficientFundsError{Required: cost + fee, Available: totalIn}
	}
	// Sub-dust change is left to the fee.
	if change >= wallet.DustThreshold {
		tx.AddTxOut(wire.NewTxOut(int64(change), s.changeScript))
	}

	prevOuts, err := wallet.PrevOutsFor(tx, s.cfg.FundingCoins)
	if err != nil {
		return err
	}
	if err := wallet.SignTx(tx, prevOuts, s.cfg.Keys, s.cfg.Params); err != nil {
		return err
	}
	s.txs = append(s.txs, tx)
	return nil
}

func (s *Session) buildChainTx(index int) error {
	prev := s.txs[index-1]
	prevVout := uint32(1)
	if index == 1 {
		// The first chain transaction spends the funding output.
		prevVout = 0
	}
	prevOut := prev.TxOut[prevVout]
	carry := btcutil.Amount(prevOut.Value)

	final := index == s.machine.Total()-1
	var script []byte
	if final {
		script = s.cfg.Plan.MetadataScript
	} else {
		script = s.cfg.Plan.ChunkScripts[index-1]
	}

	fee := wallet.FeeForSize(bfp.ChainTxSize(len(script)), s.cfg.FeeRate)
	value := carry - fee
	if value < wallet.DustThreshold {
		return &builder.InsufficientFundsError{Required: fee + wallet.DustThreshold, Available: carry}
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	prevHash := prev.TxHash()
	tx.AddTxIn(wire.NewTxIn(wire.NewOutPoint(&prevHash, prevVout), nil, nil))
	tx.AddTxOut(wire.NewTxOut(0, script))
	if final {
		tx.AddTxOut(wire.NewTxOut(int64(value), s.payoutScript))
	} else {
		tx.AddTxOut(wire.NewTxOut(int64(value), s.sessionScript))
	}

	if err := wallet.SignTx(tx, []*wire.TxOut{prevOut}, s.sessionRing, s.cfg.Params); err != nil {
		return err
	}
	s.txs = append(s.txs, tx)
	if final {
		s.uri = bfp.FileURI(tx.TxHash().String())
	}
	return nil
}
