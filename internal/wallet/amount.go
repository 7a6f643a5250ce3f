package wallet

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// SatoshisPerCoin converts between the 8-decimal display unit and the
	// integer base unit.
	SatoshisPerCoin = 100_000_000

	maxWholeCoins = 21_000_000
)

const (
	// DustThreshold is the smallest output value relay policy accepts.
	DustThreshold btcutil.Amount = 546

	// MaxMoney caps any amount at the total coin supply.
	MaxMoney btcutil.Amount = maxWholeCoins * SatoshisPerCoin
)

var ErrMalformedAmount = errors.New("malformed amount")

// ParseAmount converts an 8-decimal display string such as "0.00000546"
// into satoshis. Parsing is exact; no float conversion is involved.
func ParseAmount(s string) (btcutil.Amount, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrMalformedAmount)
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("%w: negative amount %q", ErrMalformedAmount, s)
	}

	intPart := s
	fracPart := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, fracPart = s[:i], s[i+1:]
	}
	if intPart == "" {
		intPart = "0"
	}
	if len(fracPart) > 8 {
		return 0, fmt.Errorf("%w: %q has more than 8 decimal places", ErrMalformedAmount, s)
	}

	whole, err := strconv.ParseUint(intPart, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	if whole > maxWholeCoins {
		return 0, fmt.Errorf("%w: %q exceeds the coin supply", ErrMalformedAmount, s)
	}

	var frac uint64
	if fracPart != "" {
		frac, err = strconv.ParseUint(fracPart, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
		}
		for i := len(fracPart); i < 8; i++ {
			frac *= 10
		}
	}

	amount := btcutil.Amount(whole*SatoshisPerCoin + frac)
	if amount > MaxMoney {
		return 0, fmt.Errorf("%w: %q exceeds the coin supply", ErrMalformedAmount, s)
	}
	return amount, nil
}

// FormatAmount renders satoshis with all 8 decimal places, the way the
// wallet displays values ("0.00000546").
func FormatAmount(v btcutil.Amount) string {
	sign := ""
	n := int64(v)
	if n < 0 {
		sign = "-"
		n = -n
	}
	return fmt.Sprintf("%s%d.%08d", sign, n/SatoshisPerCoin, n%SatoshisPerCoin)
}

// FeeForSize is the fee for size bytes at rate satoshis per kilobyte,
// rounded up.
func FeeForSize(size int, rate int64) btcutil.Amount {
	return btcutil.Amount((int64(size)*rate + 999) / 1000)
}
