// Package consolidate builds the transaction sequences that sweep the
// coins of a single address into one destination.
package consolidate

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"cashkit/internal/builder"
	"cashkit/internal/wallet"
)

const (
	// MinTxSize fits exactly one input and one output. Anything smaller
	// cannot hold a transaction at all.
	MinTxSize = 192
	// MaxStandardTxSize is the default size bound, matching what nodes
	// relay without special configuration.
	MaxStandardTxSize = 100_000
	// MaxTxSize is the consensus bound on transaction size.
	MaxTxSize = 1_000_000
	// DefaultFeeRate is the fee in satoshis per kilobyte.
	DefaultFeeRate = 1000
)

// Options select the coins of one source address and bound the
// transactions built from them. Zero value bounds are disabled.
type Options struct {
	SourceAddress string
	// Destination receives the swept value. Empty means the source
	// address itself.
	Destination string

	IncludeCoinbase    bool
	IncludeNonCoinbase bool
	IncludeFrozen      bool
	IncludeTokens      bool

	// MinValue and MaxValue bound the per-coin value, inclusive.
	MinValue btcutil.Amount
	MaxValue btcutil.Amount

	MaxTxSizeBytes int
	// FeeRate is in satoshis per kilobyte.
	FeeRate int64
}

// DestinationAddress resolves the effective destination.
func (o Options) DestinationAddress() string {
	if o.Destination == "" {
		return o.SourceAddress
	}
	return o.Destination
}

// Validate checks the options against the network before any coins are
// touched. All failures are validation errors.
func (o Options) Validate(params *chaincfg.Params) error {
	if o.SourceAddress == "" {
		return builder.NewValidationError("source address", errors.New("missing"))
	}
	if _, err := wallet.DecodeAddress(o.SourceAddress, params); err != nil {
		return builder.NewValidationError("source address", err)
	}
	if o.Destination != "" {
		if _, err := wallet.DecodeAddress(o.Destination, params); err != nil {
			return builder.NewValidationError("destination address", err)
		}
	}
	if !o.IncludeCoinbase && !o.IncludeNonCoinbase {
		return builder.NewValidationError("coin filters", errors.New("coinbase and non-coinbase coins are both excluded"))
	}
	if o.MinValue < 0 || o.MaxValue < 0 {
		return builder.NewValidationError("value bounds", errors.New("negative"))
	}
	if o.MinValue > 0 && o.MaxValue > 0 && o.MinValue > o.MaxValue {
		return builder.NewValidationError("value bounds", errors.New("minimum exceeds maximum"))
	}
	if o.MaxTxSizeBytes < MinTxSize || o.MaxTxSizeBytes > MaxTxSize {
		return builder.NewValidationError("max transaction size",
			fmt.Errorf("%d bytes is outside [%d, %d]", o.MaxTxSizeBytes, MinTxSize, MaxTxSize))
	}
	if o.FeeRate <= 0 {
		return builder.NewValidationError("fee rate", errors.New("must be positive"))
	}
	return nil
}
