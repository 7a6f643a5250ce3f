package cli

import (
	"strings"
	"testing"

	"cashkit/internal/wallet"
)

func TestParseOutPoint(t *testing.T) {
	txid := "8f3c1a29e7b04d65f20c9a8d31706e5b4a2f8c19d3e6074b58a1c2d903f4d41b"

	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{txid + ":0", txid + ":0", false},
		{txid + ":12", txid + ":12", false},
		{"  " + txid + ":3  ", txid + ":3", false},
		{strings.ToUpper(txid) + ":0", txid + ":0", false},
		// Short txids canonicalize to the full zero-padded form.
		{"ab:1", strings.Repeat("0", 62) + "ab:1", false},
		{txid, "", true},
		{"zz" + txid[2:] + ":0", "", true},
		{txid + "00:0", "", true},
		{txid + ":", "", true},
		{txid + ":abc", "", true},
		{txid + ":-1", "", true},
	}
	for _, tt := range tests {
		got, err := parseOutPoint(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseOutPoint(%q) expected an error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseOutPoint(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("parseOutPoint(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCoinFlags(t *testing.T) {
	tests := []struct {
		coin wallet.Coin
		want string
	}{
		{wallet.Coin{}, "-"},
		{wallet.Coin{Coinbase: true}, "C"},
		{wallet.Coin{Frozen: true}, "F"},
		{wallet.Coin{Token: true}, "T"},
		{wallet.Coin{Coinbase: true, Token: true}, "CT"},
		{wallet.Coin{Coinbase: true, Frozen: true, Token: true}, "CFT"},
	}
	for _, tt := range tests {
		if got := coinFlags(tt.coin); got != tt.want {
			t.Errorf("coinFlags(%+v) = %q, want %q", tt.coin, got, tt.want)
		}
	}
}
