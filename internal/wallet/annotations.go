package wallet

import (
	"fmt"
	"time"

	"cashkit/pkg/db"
)

// Annotations persists per-outpoint frozen and token-bearing marks. The
// node knows nothing about either; they are local bookkeeping merged into
// the coins it reports.
type Annotations struct {
	db *db.DB
}

func NewAnnotations(database *db.DB) *Annotations {
	return &Annotations{db: database}
}

func (a *Annotations) SetFrozen(outpoint string, frozen bool) error {
	_, err := a.db.Write.Exec(`
		INSERT INTO coin_annotations (outpoint, frozen, token, updated_at)
		VALUES (?, ?, 0, ?)
		ON CONFLICT(outpoint) DO UPDATE SET
			frozen = excluded.frozen,
			updated_at = excluded.updated_at`,
		outpoint, boolToInt(frozen), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set frozen mark: %w", err)
	}
	return nil
}

func (a *Annotations) SetToken(outpoint string, token bool) error {
	_, err := a.db.Write.Exec(`
		INSERT INTO coin_annotations (outpoint, frozen, token, updated_at)
		VALUES (?, 0, ?, ?)
		ON CONFLICT(outpoint) DO UPDATE SET
			token = excluded.token,
			updated_at = excluded.updated_at`,
		outpoint, boolToInt(token), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("set token mark: %w", err)
	}
	return nil
}

// Apply copies stored marks onto the given coins.
func (a *Annotations) Apply(coins []Coin) ([]Coin, error) {
	rows, err := a.db.Read.Query(`SELECT outpoint, frozen, token FROM coin_annotations`)
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	defer rows.Close()

	type mark struct {
		frozen bool
		token  bool
	}
	marks := make(map[string]mark)
	for rows.Next() {
		var outpoint string
		var frozen, token int
		if err := rows.Scan(&outpoint, &frozen, &token); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		marks[outpoint] = mark{frozen: frozen != 0, token: token != 0}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range coins {
		if m, ok := marks[coins[i].Key()]; ok {
			coins[i].Frozen = m.frozen
			coins[i].Token = m.token
		}
	}
	return coins, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
