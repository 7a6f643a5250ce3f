// Package credentials keeps secrets in the operating system keyring and
// tracks their names in the local database so they can be listed.
package credentials

import (
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

const (
	serviceName = "cashkit"

	// NodeRPCSecretName holds the node's JSON-RPC password.
	NodeRPCSecretName = "NODE_RPC_PASSWORD"
	// WalletPassphraseSecretName optionally remembers the wallet
	// passphrase between sessions.
	WalletPassphraseSecretName = "WALLET_PASSPHRASE"
)

// ErrNotFound indicates that a requested secret was not found in the keyring.
var ErrNotFound = errors.New("secret not found")

// GetSecret retrieves the named secret from the system keyring.
func GetSecret(name string) (string, error) {
	secret, err := keyring.Get(serviceName, name)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read secret %q: %w", name, err)
	}
	return secret, nil
}

func SetSecret(name, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("secret %q cannot be empty", name)
	}
	if err := keyring.Set(serviceName, name, trimmed); err != nil {
		return fmt.Errorf("store secret %q: %w", name, err)
	}
	return nil
}

func DeleteSecret(name string) error {
	if err := keyring.Delete(serviceName, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete secret %q: %w", name, err)
	}
	return nil
}

// HasSecret reports whether the named secret exists in the keyring.
func HasSecret(name string) (bool, error) {
	_, err := GetSecret(name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// Convenience helpers for the node RPC password.
func GetNodeRPCPassword() (string, error) { return GetSecret(NodeRPCSecretName) }

func SetNodeRPCPassword(password string) error { return SetSecret(NodeRPCSecretName, password) }

func DeleteNodeRPCPassword() error { return DeleteSecret(NodeRPCSecretName) }

func HasNodeRPCPassword() (bool, error) { return HasSecret(NodeRPCSecretName) }
