package credentials

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/zalando/go-keyring"

	"cashkit/pkg/db"
	"cashkit/pkg/migration"
)

func setupRegistry(t *testing.T) *Registry {
	t.Helper()
	keyring.MockInit()

	handle, err := db.Open(filepath.Join(t.TempDir(), "cashkit.db"))
	if err != nil {
		t.Fatalf("db.Open failed: %v", err)
	}
	t.Cleanup(func() { handle.Close() })

	if err := migration.NewRunner(handle.Write).Run(); err != nil {
		t.Fatalf("migrations failed: %v", err)
	}
	return NewRegistry(handle)
}

func TestRegisterAndList(t *testing.T) {
	reg := setupRegistry(t)

	for _, name := range []string{"charlie", "alpha", "bravo"} {
		if err := reg.Register(name); err != nil {
			t.Fatalf("Register(%q) failed: %v", name, err)
		}
	}

	names, err := reg.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	want := []string{"alpha", "bravo", "charlie"}
	if len(names) != len(want) {
		t.Fatalf("expected %d names, got %d", len(want), len(names))
	}
	for i, name := range want {
		if names[i] != name {
			t.Errorf("names[%d] = %q, want %q", i, names[i], name)
		}
	}
}

func TestRegisterTwiceKeepsOneRow(t *testing.T) {
	reg := setupRegistry(t)

	if err := reg.Register("alpha"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register("alpha"); err != nil {
		t.Fatalf("second Register failed: %v", err)
	}

	names, err := reg.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 1 {
		t.Fatalf("expected one name, got %v", names)
	}
}

func TestUnregister(t *testing.T) {
	reg := setupRegistry(t)

	if err := reg.Register("alpha"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Unregister("alpha"); err != nil {
		t.Fatalf("Unregister failed: %v", err)
	}

	names, err := reg.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 0 {
		t.Fatalf("expected no names, got %v", names)
	}

	// Unregistering an unknown name is not an error.
	if err := reg.Unregister("alpha"); err != nil {
		t.Fatalf("repeat Unregister failed: %v", err)
	}
}

func TestEmptySecretName(t *testing.T) {
	reg := setupRegistry(t)

	if err := reg.Register(""); !errors.Is(err, errEmptySecretName) {
		t.Errorf("expected errEmptySecretName, got %v", err)
	}
	if err := reg.Register("   "); !errors.Is(err, errEmptySecretName) {
		t.Errorf("expected errEmptySecretName for whitespace, got %v", err)
	}
	if err := reg.Unregister(""); !errors.Is(err, errEmptySecretName) {
		t.Errorf("expected errEmptySecretName on unregister, got %v", err)
	}
}

func TestListFoldsInWellKnownKeyringEntries(t *testing.T) {
	reg := setupRegistry(t)

	// Stored directly in the keyring, never registered.
	if err := SetNodeRPCPassword("hunter2"); err != nil {
		t.Fatalf("SetNodeRPCPassword failed: %v", err)
	}
	t.Cleanup(func() { DeleteNodeRPCPassword() })

	if err := reg.Register("alpha"); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	names, err := reg.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(names) != 2 || names[0] != NodeRPCSecretName || names[1] != "alpha" {
		t.Fatalf("expected the keyring entry folded in, got %v", names)
	}
}
