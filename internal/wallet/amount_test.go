package wallet

import (
	"errors"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want btcutil.Amount
	}{
		{"0.00000546", 546},
		{"0", 0},
		{"1", 100000000},
		{"0.1", 10000000},
		{"13.37000001", 1337000001},
		{"21000000", MaxMoney},
		{" 2.5 ", 250000000},
	}

	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if err != nil {
			t.Fatalf("ParseAmount(%q) failed: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("ParseAmount(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestParseAmountRejectsMalformed(t *testing.T) {
	inputs := []string{
		"",
		"-1",
		"1.123456789", // 9 decimal places
		"abc",
		"1,5",
		"21000001",
		"21000000.00000001",
	}

	for _, in := range inputs {
		if _, err := ParseAmount(in); !errors.Is(err, ErrMalformedAmount) {
			t.Errorf("ParseAmount(%q): expected ErrMalformedAmount, got %v", in, err)
		}
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		in   btcutil.Amount
		want string
	}{
		{DustThreshold, "0.00000546"},
		{0, "0.00000000"},
		{100000000, "1.00000000"},
		{-546, "-0.00000546"},
		{1337000001, "13.37000001"},
	}

	for _, tc := range cases {
		if got := FormatAmount(tc.in); got != tc.want {
			t.Errorf("FormatAmount(%d) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestConversionFactorRoundTrip(t *testing.T) {
	one, err := ParseAmount("1")
	if err != nil {
		t.Fatalf("ParseAmount failed: %v", err)
	}
	if one != SatoshisPerCoin {
		t.Errorf("one coin = %d satoshis, want %d", one, SatoshisPerCoin)
	}

	// The dust threshold displays as 0.00000546 and parses back to 546.
	parsed, err := ParseAmount(FormatAmount(DustThreshold))
	if err != nil {
		t.Fatalf("round trip parse failed: %v", err)
	}
	if parsed != DustThreshold {
		t.Errorf("round trip = %d, want %d", parsed, DustThreshold)
	}
}
