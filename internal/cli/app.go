// Package cli implements the command surface: every subcommand body
// lives here, the cobra wiring stays in cmd/app.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"cashkit/config"
	"cashkit/internal/chain"
	"cashkit/internal/credentials"
	"cashkit/internal/logging"
	"cashkit/internal/wallet"
	"cashkit/pkg/db"
	"cashkit/pkg/migration"
)

// App bundles the resources most commands need: parsed settings, the
// open database and the chain parameters of the configured network.
// Callers own the handle and must Close it.
type App struct {
	Settings *config.Settings
	DB       *db.DB
	Params   *chaincfg.Params
	Logger   zerolog.Logger
}

// openApp loads settings, opens the database and brings the schema up
// to date. Migrations are idempotent, so running them on every open
// keeps old databases working after an upgrade.
func openApp() (*App, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}

	params, err := wallet.ParamsForNetwork(settings.Network)
	if err != nil {
		return nil, err
	}

	dbPath, err := config.GetDatabasePath()
	if err != nil {
		return nil, err
	}
	handle, err := db.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migration.NewRunner(handle.Write).Run(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger := zerolog.Nop()
	if logPath, err := config.GetLogPath(); err == nil {
		if l, err := logging.New(logPath, os.Getenv("CASHKIT_DEBUG") != ""); err == nil {
			logger = l
		}
	}

	return &App{
		Settings: settings,
		DB:       handle,
		Params:   params,
		Logger:   logger,
	}, nil
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

// nodeClient dials the configured node with the keyring password.
func (a *App) nodeClient() (*chain.Client, error) {
	if strings.TrimSpace(a.Settings.Node.Host) == "" {
		return nil, errors.New("no node configured; run 'ck node set'")
	}

	password, err := credentials.GetNodeRPCPassword()
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return nil, errors.New("node RPC password is not stored; run 'ck node set'")
		}
		return nil, fmt.Errorf("read node RPC password: %w", err)
	}

	return chain.New(a.Settings.Node, chain.Credentials{User: a.Settings.Node.User, Password: password}, a.Params,
		chain.WithLogger(a.Logger.With().Str("component", "chain").Logger()),
		chain.WithAnnotations(wallet.NewAnnotations(a.DB)))
}

// keyStore returns the wallet key store bound to this database.
func (a *App) keyStore() *wallet.KeyStore {
	return wallet.NewKeyStore(a.DB, a.Params)
}

// walletAddresses lists the stored key addresses in creation order.
func (a *App) walletAddresses() ([]string, error) {
	keys, err := a.keyStore().Addresses()
	if err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(keys))
	for _, k := range keys {
		addrs = append(addrs, k.Address)
	}
	return addrs, nil
}

// promptPassphrase reads the wallet passphrase, preferring the keyring
// copy when one has been stored, falling back to a terminal prompt.
func promptPassphrase(prompt string) (string, error) {
	if stored, err := credentials.GetSecret(credentials.WalletPassphraseSecretName); err == nil && stored != "" {
		return stored, nil
	}

	fmt.Fprint(os.Stdout, prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stdout)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	passphrase := string(raw)
	if passphrase == "" {
		return "", errors.New("passphrase cannot be empty")
	}
	return passphrase, nil
}

// unlockKeys prompts for the passphrase and unlocks every stored key.
func (a *App) unlockKeys() (wallet.UnlockedKeys, error) {
	passphrase, err := promptPassphrase("Wallet passphrase: ")
	if err != nil {
		return nil, err
	}
	ring, err := a.keyStore().Unlock(passphrase)
	if err != nil {
		if errors.Is(err, wallet.ErrKeyNotFound) {
			return nil, errors.New("no keys stored; run 'ck wallet create' or 'ck wallet import'")
		}
		return nil, err
	}
	return ring, nil
}

func orDash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return strings.TrimSpace(value)
}
