package consolidate

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"

	"cashkit/internal/wallet"
)

func makeCoin(seed byte, value btcutil.Amount) wallet.Coin {
	var hash chainhash.Hash
	hash[0] = seed
	return wallet.Coin{
		OutPoint: *wire.NewOutPoint(&hash, 0),
		Value:    value,
		PkScript: []byte{0x76, 0xa9, 0x14, seed, 0x88, 0xac},
	}
}

func TestFilterCoinsProvenance(t *testing.T) {
	coinbase := makeCoin(1, 10_000)
	coinbase.Coinbase = true
	plain := makeCoin(2, 10_000)

	opts := Options{IncludeCoinbase: true, IncludeNonCoinbase: true}
	if got := FilterCoins([]wallet.Coin{coinbase, plain}, opts); len(got) != 2 {
		t.Fatalf("expected both coins, got %d", len(got))
	}

	opts.IncludeCoinbase = false
	got := FilterCoins([]wallet.Coin{coinbase, plain}, opts)
	if len(got) != 1 || got[0].Coinbase {
		t.Fatalf("expected only the non-coinbase coin, got %+v", got)
	}

	opts = Options{IncludeCoinbase: true}
	got = FilterCoins([]wallet.Coin{coinbase, plain}, opts)
	if len(got) != 1 || !got[0].Coinbase {
		t.Fatalf("expected only the coinbase coin, got %+v", got)
	}
}

func TestFilterCoinsAnnotations(t *testing.T) {
	frozen := makeCoin(1, 10_000)
	frozen.Frozen = true
	token := makeCoin(2, 10_000)
	token.Token = true
	plain := makeCoin(3, 10_000)
	coins := []wallet.Coin{frozen, token, plain}

	opts := Options{IncludeCoinbase: true, IncludeNonCoinbase: true}
	got := FilterCoins(coins, opts)
	if len(got) != 1 || got[0].Key() != plain.Key() {
		t.Fatalf("expected only the plain coin, got %d", len(got))
	}

	opts.IncludeFrozen = true
	opts.IncludeTokens = true
	if got := FilterCoins(coins, opts); len(got) != 3 {
		t.Fatalf("expected all coins, got %d", len(got))
	}
}

func TestFilterCoinsValueBoundsAreInclusive(t *testing.T) {
	coins := []wallet.Coin{
		makeCoin(1, 545),
		makeCoin(2, 546),
		makeCoin(3, 100_000),
		makeCoin(4, 100_001),
	}
	opts := Options{
		IncludeCoinbase:    true,
		IncludeNonCoinbase: true,
		MinValue:           546,
		MaxValue:           100_000,
	}
	got := FilterCoins(coins, opts)
	if len(got) != 2 {
		t.Fatalf("expected 2 coins, got %d", len(got))
	}
	for _, c := range got {
		if c.Value < 546 || c.Value > 100_000 {
			t.Fatalf("coin %v escaped the bounds", c.Value)
		}
	}
}

func TestFilterCoinsSortsByOutpoint(t *testing.T) {
	coins := []wallet.Coin{makeCoin(9, 1000), makeCoin(3, 1000), makeCoin(7, 1000)}
	opts := Options{IncludeCoinbase: true, IncludeNonCoinbase: true}
	got := FilterCoins(coins, opts)
	for i := 1; i < len(got); i++ {
		if got[i-1].Key() >= got[i].Key() {
			t.Fatalf("coins not sorted: %s before %s", got[i-1].Key(), got[i].Key())
		}
	}
}

func TestSummarize(t *testing.T) {
	coins := []wallet.Coin{
		makeCoin(1, 1000), makeCoin(2, 2000), makeCoin(3, 3000),
		makeCoin(4, 4000), makeCoin(5, 5000),
	}
	s := Summarize(coins, 400) // fits two inputs per transaction
	if s.Count != 5 {
		t.Fatalf("expected 5 coins, got %d", s.Count)
	}
	if s.Total != 15_000 {
		t.Fatalf("expected total 15000, got %d", s.Total)
	}
	if s.MaxInputs != 2 {
		t.Fatalf("expected 2 inputs per transaction, got %d", s.MaxInputs)
	}
	if s.TxCount != 3 {
		t.Fatalf("expected 3 transactions, got %d", s.TxCount)
	}
}
