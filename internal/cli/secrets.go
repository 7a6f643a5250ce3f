package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"cashkit/internal/credentials"
)

// CreateSecret stores a new named secret, prompting for the value when
// none was given on the command line.
func CreateSecret(name, value string) error {
	return storeSecret(name, value, false)
}

// UpdateSecret replaces an existing secret.
func UpdateSecret(name, value string) error {
	return storeSecret(name, value, true)
}

func storeSecret(name, value string, replace bool) error {
	name, err := normalizeSecretName(name)
	if err != nil {
		return err
	}

	verb := "new"
	if replace {
		verb = "replacement"
	}
	secret, err := ensureSecretInput(value, fmt.Sprintf("Enter %s value for %s: ", verb, name))
	if err != nil {
		return err
	}

	exists, err := credentials.HasSecret(name)
	if err != nil {
		return err
	}
	if exists && !replace {
		return fmt.Errorf("a secret named %q is already stored; use 'update' to replace it", name)
	}
	if !exists && replace {
		return fmt.Errorf("no secret named %q is stored; use 'create' to add one", name)
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	if err := credentials.SetSecret(name, secret); err != nil {
		return err
	}
	if err := credentials.NewRegistry(app.DB).Register(name); err != nil {
		return err
	}

	if replace {
		fmt.Printf("Updated secret %q in the system keyring\n", name)
	} else {
		fmt.Printf("Stored secret %q in the system keyring\n", name)
	}
	return nil
}

// DeleteSecret removes the value from the keyring first; the registry row
// only goes away once the keyring delete succeeded.
func DeleteSecret(name string) error {
	name, err := normalizeSecretName(name)
	if err != nil {
		return err
	}

	if err := credentials.DeleteSecret(name); err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return fmt.Errorf("no secret named %q is stored", name)
		}
		return err
	}

	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()
	if err := credentials.NewRegistry(app.DB).Unregister(name); err != nil {
		return err
	}

	fmt.Printf("Removed secret %q from the system keyring\n", name)
	return nil
}

// SecretStatus reports whether the named secret exists in the keyring.
func SecretStatus(name string) error {
	name, err := normalizeSecretName(name)
	if err != nil {
		return err
	}

	exists, err := credentials.HasSecret(name)
	if err != nil {
		return err
	}
	if exists {
		fmt.Printf("Secret %q is stored in the system keyring\n", name)
	} else {
		fmt.Printf("Secret %q is not stored\n", name)
	}
	return nil
}

// ListSecrets prints every registered name, flagging reserved names and
// registry rows whose keyring value has gone missing.
func ListSecrets() error {
	app, err := openApp()
	if err != nil {
		return err
	}
	defer app.Close()

	names, err := credentials.NewRegistry(app.DB).List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("No secrets have been registered yet")
		return nil
	}

	for _, name := range names {
		var marks []string
		if name == credentials.NodeRPCSecretName || name == credentials.WalletPassphraseSecretName {
			marks = append(marks, "reserved")
		}
		if exists, err := credentials.HasSecret(name); err == nil && !exists {
			marks = append(marks, "missing from keyring")
		}
		if len(marks) > 0 {
			fmt.Printf("%s (%s)\n", name, strings.Join(marks, ", "))
		} else {
			fmt.Println(name)
		}
	}
	return nil
}

// ReadSecret returns the stored value. Reading also registers the name,
// folding in secrets that were stored before the registry existed.
func ReadSecret(name string) (string, error) {
	name, err := normalizeSecretName(name)
	if err != nil {
		return "", err
	}

	secret, err := credentials.GetSecret(name)
	if err != nil {
		if errors.Is(err, credentials.ErrNotFound) {
			return "", fmt.Errorf("no secret named %q is stored", name)
		}
		return "", err
	}

	app, err := openApp()
	if err != nil {
		return "", err
	}
	defer app.Close()
	if err := credentials.NewRegistry(app.DB).Register(name); err != nil {
		return "", err
	}
	return secret, nil
}

func normalizeSecretName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", fmt.Errorf("secret name cannot be empty")
	}
	return name, nil
}

// ensureSecretInput returns the trimmed value when one was supplied,
// otherwise prompts for it with terminal echo disabled.
func ensureSecretInput(raw, prompt string) (string, error) {
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		return trimmed, nil
	}

	fmt.Fprint(os.Stdout, prompt)
	line, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stdout)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}

	trimmed := strings.TrimSpace(string(line))
	if trimmed == "" {
		return "", fmt.Errorf("secret value cannot be empty")
	}
	return trimmed, nil
}
