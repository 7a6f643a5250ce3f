package credentials

import (
	"errors"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestSecretRoundTrip(t *testing.T) {
	keyring.MockInit()

	if err := SetSecret("test-secret", "value-1"); err != nil {
		t.Fatalf("SetSecret failed: %v", err)
	}
	t.Cleanup(func() { DeleteSecret("test-secret") })

	got, err := GetSecret("test-secret")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if got != "value-1" {
		t.Errorf("GetSecret = %q, want %q", got, "value-1")
	}

	exists, err := HasSecret("test-secret")
	if err != nil {
		t.Fatalf("HasSecret failed: %v", err)
	}
	if !exists {
		t.Error("expected HasSecret to report true")
	}

	if err := DeleteSecret("test-secret"); err != nil {
		t.Fatalf("DeleteSecret failed: %v", err)
	}
	if _, err := GetSecret("test-secret"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSetSecretRejectsEmptyValue(t *testing.T) {
	keyring.MockInit()

	if err := SetSecret("test-secret", "   "); err == nil {
		t.Fatal("expected an error for a blank value")
	}
}

func TestHasSecretMissing(t *testing.T) {
	keyring.MockInit()

	exists, err := HasSecret("never-stored")
	if err != nil {
		t.Fatalf("HasSecret failed: %v", err)
	}
	if exists {
		t.Error("expected HasSecret to report false")
	}
	if err := DeleteSecret("never-stored"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
