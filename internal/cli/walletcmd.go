package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"

	"cashkit/internal/credentials"
	"cashkit/internal/timeutil"
	"cashkit/internal/wallet"
)

// CreateWalletKey generates a fresh key, encrypts it under the wallet
// passphrase and prints its address.
func CreateWalletKey(label string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	passphrase, err := newKeyPassphrase()
	if err != nil {
		return err
	}
	addr, err := app.keyStore().CreateKey(passphrase, label)
	if err != nil {
		return err
	}
	fmt.Printf("Created wallet key: %s\n", addr.EncodeAddress())
	return nil
}

// ImportWalletKey reads a WIF-encoded private key and stores it
// encrypted under the wallet passphrase.
func ImportWalletKey(label string) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	encoded, err := ensureSecretInput("", "WIF private key: ")
	if err != nil {
		return err
	}
	passphrase, err := newKeyPassphrase()
	if err != nil {
		return err
	}
	addr, err := app.keyStore().ImportWIF(strings.TrimSpace(encoded), passphrase, label)
	if err != nil {
		return err
	}
	fmt.Printf("Imported wallet key: %s\n", addr.EncodeAddress())
	return nil
}

// ListWalletAddresses prints the stored keys.
func ListWalletAddresses() error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	keys, err := app.keyStore().Addresses()
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No keys stored; run 'ck wallet create' or 'ck wallet import'")
		return nil
	}

	now := time.Now()
	fmt.Printf("%-36s %-20s %s\n", "ADDRESS", "LABEL", "CREATED")
	fmt.Printf("%-36s %-20s %s\n", strings.Repeat("-", 36), strings.Repeat("-", 20), strings.Repeat("-", 14))
	for _, k := range keys {
		fmt.Printf("%-36s %-20s %s\n", k.Address, orDash(k.Label), timeutil.Relative(k.CreatedAt, now))
	}
	return nil
}

// WalletBalance sums the spendable coins of every stored key.
func WalletBalance(ctx context.Context) error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	addresses, err := app.walletAddresses()
	if err != nil {
		return err
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

	type tally struct {
		count int
		total btcutil.Amount
	}
	byAddress := make(map[string]*tally, len(addresses))
	for _, addr := range addresses {
		byAddress[addr] = &tally{}
	}
	var total, frozen btcutil.Amount
	for _, c := range coins {
		if t, ok := byAddress[c.Address]; ok {
			t.count++
			t.total += c.Value
		}
		total += c.Value
		if c.Frozen {
			frozen += c.Value
		}
	}

	fmt.Printf("%-36s %6s %16s\n", "ADDRESS", "COINS", "BALANCE")
	fmt.Printf("%-36s %6s %16s\n", strings.Repeat("-", 36), strings.Repeat("-", 6), strings.Repeat("-", 16))
	for _, addr := range addresses {
		t := byAddress[addr]
		fmt.Printf("%-36s %6d %16s\n", addr, t.count, wallet.FormatAmount(t.total))
	}
	fmt.Printf("\nTotal: %s across %d coin(s)\n", wallet.FormatAmount(total), len(coins))
	if frozen > 0 {
		fmt.Printf("Frozen: %s\n", wallet.FormatAmount(frozen))
	}
	return nil
}

// newKeyPassphrase reads and confirms the passphrase for a new key. A
// passphrase stored in the keyring is used as-is.
func newKeyPassphrase() (string, error) {
	if stored, err := credentials.GetSecret(credentials.WalletPassphraseSecretName); err == nil && stored != "" {
		fmt.Println("Using the wallet passphrase stored in the keyring")
		return stored, nil
	}
	passphrase, err := ensureSecretInput("", "Wallet passphrase: ")
	if err != nil {
		return "", err
	}
	confirm, err := ensureSecretInput("", "Confirm passphrase: ")
	if err != nil {
		return "", err
	}
	if passphrase != confirm {
		return "", errors.New("passphrases do not match")
	}
	return passphrase, nil
}
