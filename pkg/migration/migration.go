// Package migration applies the embedded schema migrations in order.
//
// Migration files live under migrations/ and are named
// NNNN_description.up.sql / NNNN_description.down.sql. Progress is
// tracked in a schema_migrations table; a migration that dies halfway
// leaves its row dirty and blocks further runs until repaired.
package migration

import (
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration pairs the up and down halves of one schema version.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Runner applies migrations over a single write connection.
type Runner struct {
	db *sql.DB
}

func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db}
}

// Run brings the schema up to the newest embedded version.
func (r *Runner) Run() error {
	if err := r.ensureSchemaTable(); err != nil {
		return fmt.Errorf("create schema table: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	current, dirty, err := r.currentVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty; repair the database and call Force", current)
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		if err := r.apply(m); err != nil {
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// Rollback reverts the most recently applied migration using its down
// half.
func (r *Runner) Rollback() error {
	if err := r.ensureSchemaTable(); err != nil {
		return fmt.Errorf("create schema table: %w", err)
	}

	current, dirty, err := r.currentVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current == 0 {
		return fmt.Errorf("no migrations applied; nothing to roll back")
	}
	if dirty {
		return fmt.Errorf("schema version %d is dirty; repair the database and call Force", current)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	var target *Migration
	for i := range migrations {
		if migrations[i].Version == current {
			target = &migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no embedded migration for applied version %d", current)
	}
	if target.DownSQL == "" {
		return fmt.Errorf("migration %d (%s) has no down half", target.Version, target.Name)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(target.DownSQL); err != nil {
		return fmt.Errorf("revert migration %d (%s): %w", target.Version, target.Name, err)
	}
	if _, err := tx.Exec(`DELETE FROM schema_migrations WHERE version = ?`, target.Version); err != nil {
		return err
	}
	return tx.Commit()
}

// Version reports the currently applied schema version, for health
// checks. A dirty schema returns its version alongside the error.
func (r *Runner) Version() (int, error) {
	if err := r.ensureSchemaTable(); err != nil {
		return 0, err
	}
	version, dirty, err := r.currentVersion()
	if err != nil {
		return 0, err
	}
	if dirty {
		return version, fmt.Errorf("schema version %d is dirty", version)
	}
	return version, nil
}

// Force clears the dirty flag of a version after manual repair.
func (r *Runner) Force(version int) error {
	_, err := r.db.Exec(`UPDATE schema_migrations SET dirty = FALSE WHERE version = ?`, version)
	return err
}

func (r *Runner) ensureSchemaTable() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			dirty BOOLEAN NOT NULL DEFAULT FALSE,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

func (r *Runner) currentVersion() (version int, dirty bool, err error) {
	err = r.db.QueryRow(
		`SELECT version, dirty FROM schema_migrations ORDER BY version DESC LIMIT 1`,
	).Scan(&version, &dirty)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	return version, dirty, err
}

// apply marks the version dirty, runs the up SQL and clears the flag,
// all in one transaction. Sqlite rolls the DDL back with everything
// else, so a failure leaves either a clean miss or a dirty row.
func (r *Runner) apply(m Migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO schema_migrations (version, dirty) VALUES (?, TRUE)`, m.Version); err != nil {
		return err
	}
	if _, err := tx.Exec(m.UpSQL); err != nil {
		return err
	}
	if _, err := tx.Exec(`UPDATE schema_migrations SET dirty = FALSE WHERE version = ?`, m.Version); err != nil {
		return err
	}
	return tx.Commit()
}

// loadMigrations reads the embedded directory and returns complete
// migrations ordered by version. Files that do not follow the naming
// scheme are skipped.
func loadMigrations() ([]Migration, error) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read embedded migrations: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version, name, up, ok := parseFilename(entry.Name())
		if !ok {
			continue
		}

		content, err := migrationFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, err
		}

		m := byVersion[version]
		if m == nil {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if up {
			m.UpSQL = string(content)
		} else {
			m.DownSQL = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			return nil, fmt.Errorf("migration %d (%s) has a down half but no up half", m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

// parseFilename splits NNNN_description.up.sql into its parts.
func parseFilename(filename string) (version int, name string, up bool, ok bool) {
	base, found := strings.CutSuffix(filename, ".sql")
	if !found {
		return 0, "", false, false
	}

	var direction string
	if base, found = strings.CutSuffix(base, ".up"); found {
		direction = "up"
	} else if base, found = strings.CutSuffix(base, ".down"); found {
		direction = "down"
	} else {
		return 0, "", false, false
	}

	prefix, rest, found := strings.Cut(base, "_")
	if !found || rest == "" {
		return 0, "", false, false
	}
	version, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, "", false, false
	}

	return version, rest, direction == "up", true
}
