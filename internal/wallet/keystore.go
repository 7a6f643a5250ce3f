package wallet

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"golang.org/x/crypto/scrypt"

	"cashkit/pkg/db"
)

// keystoreCipher identifies the sealing scheme recorded with every key so
// the format can evolve without guessing.
const keystoreCipher = "scrypt/aes-256-gcm"

// scrypt parameters for the passphrase-derived sealing key.
const (
	scryptN      = 32768
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
)

var (
	ErrKeyNotFound     = errors.New("key not found")
	ErrWrongPassphrase = errors.New("wrong passphrase")
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")
	ErrInvalidWIF      = errors.New("invalid WIF key")
)

// KeyInfo describes a stored key without exposing its material.
type KeyInfo struct {
	Address   string
	Label     string
	CreatedAt time.Time
}

// KeyStore holds WIF private keys encrypted at rest. Each key is sealed
// with AES-256-GCM under a key derived from the wallet passphrase via
// scrypt; the passphrase itself is never stored.
type KeyStore struct {
	db     *db.DB
	params *chaincfg.Params
}

func NewKeyStore(database *db.DB, params *chaincfg.Params) *KeyStore {
	return &KeyStore{db: database, params: params}
}

// CreateKey generates a fresh private key, stores it sealed, and returns
// its pay-to-pubkey-hash address.
func (ks *KeyStore) CreateKey(passphrase, label string) (btcutil.Address, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	wif, err := btcutil.NewWIF(priv, ks.params, true)
	if err != nil {
		return nil, fmt.Errorf("encode key: %w", err)
	}
	return ks.storeWIF(wif, passphrase, label)
}

// ImportWIF stores an externally generated WIF-encoded key.
func (ks *KeyStore) ImportWIF(encoded, passphrase, label string) (btcutil.Address, error) {
	wif, err := btcutil.DecodeWIF(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWIF, err)
	}
	if !wif.IsForNet(ks.params) {
		return nil, fmt.Errorf("%w: key is for a different network", ErrInvalidWIF)
	}
	return ks.storeWIF(wif, passphrase, label)
}

func (ks *KeyStore) storeWIF(wif *btcutil.WIF, passphrase, label string) (btcutil.Address, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, ErrEmptyPassphrase
	}

	addr, err := btcutil.NewAddressPubKeyHash(btcutil.Hash160(wif.SerializePubKey()), ks.params)
	if err != nil {
		return nil, fmt.Errorf("derive address: %w", err)
	}

	salt, nonce, sealed, err := seal([]byte(wif.String()), passphrase)
	if err != nil {
		return nil, err
	}

	_, err = ks.db.Write.Exec(`
		INSERT INTO keys (address, label, cipher, salt, nonce, enc_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(address) DO UPDATE SET
			label = excluded.label,
			cipher = excluded.cipher,
			salt = excluded.salt,
			nonce = excluded.nonce,
			enc_key = excluded.enc_key`,
		addr.EncodeAddress(), label, keystoreCipher, salt, nonce, sealed,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("store key: %w", err)
	}

	return addr, nil
}

// Addresses lists the stored keys, oldest first.
func (ks *KeyStore) Addresses() ([]KeyInfo, error) {
	rows, err := ks.db.Read.Query(`SELECT address, label, created_at FROM keys ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	var infos []KeyInfo
	for rows.Next() {
		var info KeyInfo
		var createdAt string
		if err := rows.Scan(&info.Address, &info.Label, &createdAt); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}
		if ts, err := time.Parse(time.RFC3339, createdAt); err == nil {
			info.CreatedAt = ts
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// PrivateKey unseals the key for the given address.
func (ks *KeyStore) PrivateKey(address, passphrase string) (*btcec.PrivateKey, error) {
	row := ks.db.Read.QueryRow(`SELECT cipher, salt, nonce, enc_key FROM keys WHERE address = ?`, address)

	var cipherName string
	var salt, nonce, sealed []byte
	if err := row.Scan(&cipherName, &salt, &nonce, &sealed); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, address)
		}
		return nil, fmt.Errorf("read key: %w", err)
	}
	if cipherName != keystoreCipher {
		return nil, fmt.Errorf("unsupported key cipher %q", cipherName)
	}

	plain, err := open(sealed, salt, nonce, passphrase)
	if err != nil {
		return nil, err
	}

	wif, err := btcutil.DecodeWIF(string(plain))
	if err != nil {
		return nil, fmt.Errorf("%w: stored key corrupt: %v", ErrInvalidWIF, err)
	}
	return wif.PrivKey, nil
}

// Unlock decrypts every stored key with the passphrase, returning a ring
// the signer can resolve addresses against.
func (ks *KeyStore) Unlock(passphrase string) (UnlockedKeys, error) {
	infos, err := ks.Addresses()
	if err != nil {
		return nil, err
	}
	if len(infos) == 0 {
		return nil, fmt.Errorf("%w: key store is empty", ErrKeyNotFound)
	}

	ring := make(UnlockedKeys, len(infos))
	for _, info := range infos {
		priv, err := ks.PrivateKey(info.Address, passphrase)
		if err != nil {
			return nil, err
		}
		ring[info.Address] = priv
	}
	return ring, nil
}

func seal(plain []byte, passphrase string) (salt, nonce, sealed []byte, err error) {
	salt = make([]byte, 16)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, nil, fmt.Errorf("generate salt: %w", err)
	}

	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	return salt, nonce, aead.Seal(nil, nonce, plain, nil), nil
}

func open(sealed, salt, nonce []byte, passphrase string) ([]byte, error) {
	aead, err := newAEAD(passphrase, salt)
	if err != nil {
		return nil, err
	}

	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		// GCM authentication failure: the passphrase does not match.
		return nil, ErrWrongPassphrase
	}
	return plain, nil
}

func newAEAD(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	return cipher.NewGCM(block)
}
