package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"

	"cashkit/internal/wallet"
)

// CoinListOptions filter the coin table.
type CoinListOptions struct {
	Address      string
	FrozenOnly   bool
	CoinbaseOnly bool
}

// ListWalletCoins prints the spendable coins of the stored keys.
func ListWalletCoins(ctx context.Context, opts CoinListOptions) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	addresses, err := app.walletAddresses()
	if err != nil {
		return err
	}
	if opts.Address != "" {
		addresses = []string{opts.Address}
	}
	if len(addresses) == 0 {
		fmt.Println("No keys stored; run 'ck wallet create' or 'ck wallet import'")
		return nil
	}

	client, err := app.nodeClient()
	if err != nil {
		return err
	}
	defer client.Close()

	coins, err := client.ListCoins(ctx, addresses)
	if err != nil {
		return err
	}

	filtered := coins[:0]
	for _, c := range coins {
		if opts.FrozenOnly && !c.Frozen {
			continue
		}
		if opts.CoinbaseOnly && !c.Coinbase {
			continue
		}
		filtered = append(filtered, c)
	}
	if len(filtered) == 0 {
		fmt.Println("No spendable coins matched")
		return nil
	}

	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Value > filtered[j].Value })

	var total btcutil.Amount
	fmt.Printf("%-68s %16s %7s %-5s %s\n", "OUTPOINT", "VALUE", "CONFS", "FLAGS", "ADDRESS")
	fmt.Printf("%-68s %16s %7s %-5s %s\n", strings.Repeat("-", 68), strings.Repeat("-", 16), strings.Repeat("-", 7), strings.Repeat("-", 5), strings.Repeat("-", 20))
	for _, c := range filtered {
		fmt.Printf("%-68s %16s %7d %-5s %s\n",
			c.Key(), wallet.FormatAmount(c.Value), c.Confirmations, coinFlags(c), c.Address)
		total += c.Value
	}
	fmt.Printf("\n%d coin(s), %s total\n", len(filtered), wallet.FormatAmount(total))
	return nil
}

// coinFlags renders the provenance and annotation flags as a compact
// column: C coinbase, F frozen, T token.
func coinFlags(c wallet.Coin) string {
	var b strings.Builder
	if c.Coinbase {
		b.WriteByte('C')
	}
	if c.Frozen {
		b.WriteByte('F')
	}
	if c.Token {
		b.WriteByte('T')
	}
	if b.Len() == 0 {
		return "-"
	}
	return b.String()
}

// SetCoinFrozen toggles the local frozen annotation of one outpoint.
func SetCoinFrozen(outpoint string, frozen bool) error {
	canonical, err := parseOutPoint(outpoint)
	if err != nil {
		return err
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := wallet.NewAnnotations(app.DB).SetFrozen(canonical, frozen); err != nil {
		return err
	}

	if frozen {
		fmt.Printf("Froze coin %s\n", canonical)
	} else {
		fmt.Printf("Unfroze coin %s\n", canonical)
	}
	return nil
}

// parseOutPoint validates a txid:vout reference and returns its
// canonical form.
func parseOutPoint(s string) (string, error) {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ":")
	if idx < 0 {
		return "", fmt.Errorf("expected txid:vout, got %q", s)
	}
	hash, err := chainhash.NewHashFromStr(s[:idx])
	if err != nil {
		return "", fmt.Errorf("invalid txid in %q: %w", s, err)
	}
	vout, err := strconv.ParseUint(s[idx+1:], 10, 32)
	if err != nil {
		return "", fmt.Errorf("invalid output index in %q: %w", s, err)
	}
	return fmt.Sprintf("%s:%d", hash.String(), vout), nil
}
