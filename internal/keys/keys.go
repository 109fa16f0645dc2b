// Package keys manages the operator's signing identity. The identity is
// derived from a BIP39 mnemonic and stored on disk encrypted with
// Argon2id + AES-256-GCM.
package keys

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tyler-smith/go-bip39"

	"github.com/psy-protocol/doge-bridge/internal/runtime"
	"golang.org/x/crypto/argon2"
)

const (
	argon2Time        = 3
	argon2Memory      = 64 * 1024 // KiB
	argon2Parallelism = 4
	argon2KeyLen      = 32
	argon2SaltLen     = 32
)

// ErrInvalidMnemonic is returned for a mnemonic that fails BIP39 checks.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// GenerateMnemonic returns a fresh 24-word BIP39 mnemonic.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("failed to generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic checks the mnemonic's word list and checksum.
func ValidateMnemonic(mnemonic string) bool {
	return bip39.IsMnemonicValid(mnemonic)
}

// Identity is an ed25519 signing identity for bridge instructions.
type Identity struct {
	priv ed25519.PrivateKey
}

// DeriveIdentity derives the operator identity from a mnemonic and an
// optional passphrase. The same inputs always yield the same identity.
func DeriveIdentity(mnemonic, passphrase string) (*Identity, error) {
	if !ValidateMnemonic(mnemonic) {
		return nil, ErrInvalidMnemonic
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return &Identity{priv: ed25519.NewKeyFromSeed(seed[:ed25519.SeedSize])}, nil
}

// Pubkey returns the on-chain address of the identity.
func (id *Identity) Pubkey() runtime.Pubkey {
	var pk runtime.Pubkey
	copy(pk[:], id.priv.Public().(ed25519.PublicKey))
	return pk
}

// Sign signs a message with the identity key.
func (id *Identity) Sign(message []byte) []byte {
	return ed25519.Sign(id.priv, message)
}

// Verify checks a signature against the identity's public key.
func (id *Identity) Verify(message, sig []byte) bool {
	return ed25519.Verify(id.priv.Public().(ed25519.PublicKey), message, sig)
}

// encryptedSeed is the on-disk keystore format.
type encryptedSeed struct {
	Version    int    `json:"version"`
	Ciphertext []byte `json:"ciphertext"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
}

// SaveMnemonic encrypts the mnemonic with the password and writes it to path.
func SaveMnemonic(mnemonic, password, path string) error {
	if !ValidateMnemonic(mnemonic) {
		return ErrInvalidMnemonic
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := newGCM(password, salt)
	if err != nil {
		return err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	enc := &encryptedSeed{
		Version:    1,
		Ciphertext: gcm.Seal(nil, nonce, []byte(mnemonic), nil),
		Salt:       salt,
		Nonce:      nonce,
	}

	data, err := json.Marshal(enc)
	if err != nil {
		return fmt.Errorf("failed to marshal keystore: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create keystore directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	return nil
}

// LoadMnemonic reads and decrypts a mnemonic saved with SaveMnemonic.
func LoadMnemonic(path, password string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read keystore: %w", err)
	}

	var enc encryptedSeed
	if err := json.Unmarshal(data, &enc); err != nil {
		return "", fmt.Errorf("failed to parse keystore: %w", err)
	}

	gcm, err := newGCM(password, enc.Salt)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, enc.Nonce, enc.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt keystore (wrong password?): %w", err)
	}
	return string(plaintext), nil
}

// LoadOrCreate loads the operator identity from the keystore at path,
// generating and saving a new mnemonic on first run. The returned string is
// the freshly generated mnemonic, or empty when an existing keystore was
// loaded.
func LoadOrCreate(path, password, passphrase string) (*Identity, string, error) {
	if _, err := os.Stat(path); err == nil {
		mnemonic, err := LoadMnemonic(path, password)
		if err != nil {
			return nil, "", err
		}
		id, err := DeriveIdentity(mnemonic, passphrase)
		if err != nil {
			return nil, "", err
		}
		return id, "", nil
	}

	mnemonic, err := GenerateMnemonic()
	if err != nil {
		return nil, "", err
	}
	if err := SaveMnemonic(mnemonic, password, path); err != nil {
		return nil, "", err
	}
	id, err := DeriveIdentity(mnemonic, passphrase)
	if err != nil {
		return nil, "", err
	}
	return id, mnemonic, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Parallelism, argon2KeyLen)
	defer func() {
		for i := range key {
			key[i] = 0
		}
	}()

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
