package migration

import (
	"path/filepath"
	"testing"

	"cashkit/pkg/db"
)

func setupRunner(t *testing.T) *Runner {
	t.Helper()

	handle, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { handle.Close() })

	return NewRunner(handle.Write)
}

func tableExists(t *testing.T, r *Runner, name string) bool {
	t.Helper()

	var count int
	err := r.db.QueryRow(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name,
	).Scan(&count)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return count > 0
}

func TestRunAppliesAllMigrations(t *testing.T) {
	r := setupRunner(t)

	if err := r.Run(); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		t.Fatalf("load migrations: %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations found")
	}
	want := migrations[len(migrations)-1].Version

	version, err := r.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != want {
		t.Errorf("version = %d, want %d", version, want)
	}

	for _, table := range []string{"runs", "run_progress", "keys", "coin_annotations", "secrets"} {
		if !tableExists(t, r, table) {
			t.Errorf("table %q missing after migration", table)
		}
	}
}

func TestRunIsIdempotent(t *testing.T) {
	r := setupRunner(t)

	if err := r.Run(); err != nil {
		t.Fatalf("first run: %v", err)
	}
	first, err := r.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}

	if err := r.Run(); err != nil {
		t.Fatalf("second run: %v", err)
	}
	second, err := r.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if first != second {
		t.Errorf("version changed across idempotent runs: %d then %d", first, second)
	}
}

func TestVersionOnFreshDatabase(t *testing.T) {
	r := setupRunner(t)

	version, err := r.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != 0 {
		t.Errorf("fresh database version = %d, want 0", version)
	}
}

func TestRollbackRevertsLatest(t *testing.T) {
	r := setupRunner(t)

	if err := r.Run(); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	top, err := r.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}

	if err := r.Rollback(); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	version, err := r.Version()
	if err != nil {
		t.Fatalf("version after rollback: %v", err)
	}
	if version != top-1 {
		t.Errorf("version after rollback = %d, want %d", version, top-1)
	}
	if tableExists(t, r, "secrets") {
		t.Error("secrets table still present after rolling back its migration")
	}

	// Running again reapplies the reverted migration.
	if err := r.Run(); err != nil {
		t.Fatalf("rerun migrations: %v", err)
	}
	if !tableExists(t, r, "secrets") {
		t.Error("secrets table missing after rerun")
	}
}

func TestRollbackOnFreshDatabase(t *testing.T) {
	r := setupRunner(t)

	if err := r.Rollback(); err == nil {
		t.Fatal("expected an error rolling back an empty schema")
	}
}

func TestDirtySchemaBlocksRunUntilForced(t *testing.T) {
	r := setupRunner(t)

	if err := r.Run(); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	top, err := r.Version()
	if err != nil {
		t.Fatalf("version: %v", err)
	}

	if _, err := r.db.Exec(`UPDATE schema_migrations SET dirty = TRUE WHERE version = ?`, top); err != nil {
		t.Fatalf("mark dirty: %v", err)
	}
	if err := r.Run(); err == nil {
		t.Fatal("expected a dirty schema to block Run")
	}
	if _, err := r.Version(); err == nil {
		t.Fatal("expected Version to report the dirty schema")
	}

	if err := r.Force(top); err != nil {
		t.Fatalf("force: %v", err)
	}
	if err := r.Run(); err != nil {
		t.Fatalf("run after force: %v", err)
	}
	version, err := r.Version()
	if err != nil {
		t.Fatalf("version after force: %v", err)
	}
	if version != top {
		t.Errorf("version after force = %d, want %d", version, top)
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		in          string
		wantVersion int
		wantName    string
		wantUp      bool
		wantOK      bool
	}{
		{"0001_create_runs.up.sql", 1, "create_runs", true, true},
		{"0001_create_runs.down.sql", 1, "create_runs", false, true},
		{"0012_add_fee_column.up.sql", 12, "add_fee_column", true, true},
		{"readme.md", 0, "", false, false},
		{"0001_create_runs.sql", 0, "", false, false},
		{"create_runs.up.sql", 0, "", false, false},
		{"0001_.up.sql", 0, "", false, false},
	}
	for _, tt := range tests {
		version, name, up, ok := parseFilename(tt.in)
		if ok != tt.wantOK {
			t.Errorf("parseFilename(%q) ok = %v, want %v", tt.in, ok, tt.wantOK)
			continue
		}
		if !ok {
			continue
		}
		if version != tt.wantVersion || name != tt.wantName || up != tt.wantUp {
			t.Errorf("parseFilename(%q) = (%d, %q, %v), want (%d, %q, %v)",
				tt.in, version, name, up, tt.wantVersion, tt.wantName, tt.wantUp)
		}
	}
}
