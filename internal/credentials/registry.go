package credentials

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"cashkit/pkg/db"
)

var errEmptySecretName = errors.New("secret name cannot be empty")

// wellKnownNames are secrets the rest of the tool sets directly; List
// reports them even when they were stored before the registry row existed.
var wellKnownNames = []string{NodeRPCSecretName, WalletPassphraseSecretName}

// Registry tracks which secret names exist. Values live only in the
// keyring; the database remembers the names so `secret list` does not
// have to probe the keyring for every possible name.
type Registry struct {
	db *db.DB
}

func NewRegistry(database *db.DB) *Registry {
	return &Registry{db: database}
}

// Register records the name, bumping its updated time if already known.
func (r *Registry) Register(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errEmptySecretName
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.db.Write.Exec(`
		INSERT INTO secrets (name, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET updated_at = excluded.updated_at`,
		trimmed, now, now)
	if err != nil {
		return fmt.Errorf("register secret %q: %w", trimmed, err)
	}
	return nil
}

// Unregister forgets the name. The keyring entry, if any, is untouched.
func (r *Registry) Unregister(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return errEmptySecretName
	}
	if _, err := r.db.Write.Exec(`DELETE FROM secrets WHERE name = ?`, trimmed); err != nil {
		return fmt.Errorf("unregister secret %q: %w", trimmed, err)
	}
	return nil
}

// List returns the known secret names sorted alphabetically, folding in
// well-known names that exist in the keyring without a registry row.
func (r *Registry) List() ([]string, error) {
	rows, err := r.db.Read.Query(`SELECT name FROM secrets ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	defer rows.Close()

	var names []string
	seen := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan secret name: %w", err)
		}
		names = append(names, name)
		seen[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, known := range wellKnownNames {
		if seen[known] {
			continue
		}
		exists, err := HasSecret(known)
		if err != nil {
			return nil, err
		}
		if exists {
			names = append(names, known)
		}
	}
	sort.Strings(names)
	return names, nil
}
