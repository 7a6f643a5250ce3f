package consolidate

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"

	"cashkit/internal/wallet"
)

// FilterCoins applies the provenance, freeze, token and value filters to
// coins. The result is sorted by outpoint so repeated runs over the same
// coin set batch identically.
func FilterCoins(coins []wallet.Coin, opts Options) []wallet.Coin {
	var kept []wallet.Coin
	for _, c := range coins {
		if c.Coinbase && !opts.IncludeCoinbase {
			continue
		}
		if !c.Coinbase && !opts.IncludeNonCoinbase {
			continue
		}
		if c.Frozen && !opts.IncludeFrozen {
			continue
		}
		if c.Token && !opts.IncludeTokens {
			continue
		}
		if opts.MinValue > 0 && c.Value < opts.MinValue {
			continue
		}
		if opts.MaxValue > 0 && c.Value > opts.MaxValue {
			continue
		}
		kept = append(kept, c)
	}
	sort.Slice(kept, func(i, j int) bool { return kept[i].Key() < kept[j].Key() })
	return kept
}

// Summary totals a coin selection for display.
type Summary struct {
	Count     int
	Total     btcutil.Amount
	TxCount   int
	MaxInputs int
}

// Summarize reports how many transactions a selection will produce under
// the given size bound.
func Summarize(coins []wallet.Coin, maxTxSize int) Summary {
	s := Summary{Count: len(coins), MaxInputs: maxInputsFor(maxTxSize)}
	for _, c := range coins {
		s.Total += c.Value
	}
	if s.MaxInputs > 0 {
		s.TxCount = (len(coins) + s.MaxInputs - 1) / s.MaxInputs
	}
	return s
}
