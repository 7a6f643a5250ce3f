package wallet

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"

	"cashkit/pkg/db"
	"cashkit/pkg/migration"
)

func setupTestStore(t *testing.T) *KeyStore {
	t.Helper()

	handle, err := db.Open(filepath.Join(t.TempDir(), "cashkit.db"))
	if err != nil {
		t.Fatalf("db.Open failed: %v", err)
	}
	t.Cleanup(func() { handle.Close() })

	if err := migration.NewRunner(handle.Write).Run(); err != nil {
		t.Fatalf("migrations failed: %v", err)
	}

	return NewKeyStore(handle, &chaincfg.RegressionNetParams)
}

func TestKeyStoreCreateAndUnseal(t *testing.T) {
	ks := setupTestStore(t)

	addr, err := ks.CreateKey("hunter2", "savings")
	if err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}

	priv, err := ks.PrivateKey(addr.EncodeAddress(), "hunter2")
	if err != nil {
		t.Fatalf("PrivateKey failed: %v", err)
	}

	derived, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(priv.PubKey().SerializeCompressed()), &chaincfg.RegressionNetParams)
	if err != nil {
		t.Fatalf("derive address failed: %v", err)
	}
	if derived.EncodeAddress() != addr.EncodeAddress() {
		t.Errorf("unsealed key derives %s, want %s", derived.EncodeAddress(), addr.EncodeAddress())
	}

	infos, err := ks.Addresses()
	if err != nil {
		t.Fatalf("Addresses failed: %v", err)
	}
	if len(infos) != 1 || infos[0].Address != addr.EncodeAddress() || infos[0].Label != "savings" {
		t.Errorf("unexpected key listing: %+v", infos)
	}
}

func TestKeyStoreWrongPassphrase(t *testing.T) {
	ks := setupTestStore(t)

	addr, err := ks.CreateKey("correct", "")
	if err != nil {
		t.Fatalf("CreateKey failed: %v", err)
	}

	if _, err := ks.PrivateKey(addr.EncodeAddress(), "incorrect"); !errors.Is(err, ErrWrongPassphrase) {
		t.Fatalf("expected ErrWrongPassphrase, got %v", err)
	}
}

func TestKeyStoreUnknownAddress(t *testing.T) {
	ks := setupTestStore(t)

	if _, err := ks.PrivateKey("mnope", "pw"); !errors.Is(err, ErrKeyNotFound) {
		t.Fatalf("expected ErrKeyNotFound, got %v", err)
	}
}

func TestKeyStoreEmptyPassphrase(t *testing.T) {
	ks := setupTestStore(t)

	if _, err := ks.CreateKey("   ", ""); !errors.Is(err, ErrEmptyPassphrase) {
		t.Fatalf("expected ErrEmptyPassphrase, got %v", err)
	}
}

func TestKeyStoreImportWIF(t *testing.T) {
	ks := setupTestStore(t)

	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("generate key failed: %v", err)
	}
	wif, err := btcutil.NewWIF(priv, &chaincfg.RegressionNetParams, true)
	if err != nil {
		t.Fatalf("encode WIF failed: %v", err)
	}

	addr, err := ks.ImportWIF(wif.String(), "pw", "imported")
	if err != nil {
		t.Fatalf("ImportWIF failed: %v", err)
	}

	ring, err := ks.Unlock("pw")
	if err != nil {
		t.Fatalf("Unlock failed: %v", err)
	}
	if _, ok := ring.PrivateKeyFor(addr); !ok {
		t.Errorf("ring is missing imported key for %s", addr.EncodeAddress())
	}
}

func TestKeyStoreRejectsGarbageWIF(t *testing.T) {
	ks := setupTestStore(t)

	if _, err := ks.ImportWIF("not-a-wif", "pw", ""); !errors.Is(err, ErrInvalidWIF) {
		t.Fatalf("expected ErrInvalidWIF, got %v", err)
	}
}
