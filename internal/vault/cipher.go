package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Blob layout inside the base64 envelope: salt | nonce | tag | ciphertext.
// The salt feeds HKDF-SHA256 so every record is sealed under its own
// derived key; the master key never encrypts payloads directly.
const (
	KeySize   = 32
	saltSize  = 16
	nonceSize = 12
	tagSize   = 16
)

// hkdfInfo provides domain separation for the vault's key derivation.
// Changing it invalidates all stored blobs.
var hkdfInfo = []byte("philogic.vault.v1")

var (
	// ErrIntegrity signals AEAD authentication failure or a structurally
	// corrupt blob: tampering or corruption. Never downgraded to a
	// not-found condition and never accompanied by partial plaintext.
	ErrIntegrity = errors.New("vault: ciphertext integrity check failed")

	// ErrMasterKey rejects construction with a missing or wrong-size key.
	ErrMasterKey = errors.New("vault: master key must be 32 bytes")
)

// Cipher seals and opens credential plaintexts under a fixed master
// key. It holds no other state and is safe for concurrent use.
type Cipher struct {
	masterKey []byte
}

// NewCipher constructs the vault cipher. It fails closed when the
// master key is absent or not exactly KeySize bytes.
func NewCipher(masterKey []byte) (*Cipher, error) {
	if len(masterKey) != KeySize {
		return nil, ErrMasterKey
	}
	key := make([]byte, KeySize)
	copy(key, masterKey)
	return &Cipher{masterKey: key}, nil
}

// Encrypt seals plaintext with AES-256-GCM under a per-record key
// derived from the master key and a fresh random salt, and returns the
// packed blob plus the lookup hash. Two calls on the same plaintext
// produce different blobs but the same lookup hash.
func (c *Cipher) Encrypt(plaintext string) (blob, lookupHash string, err error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", "", fmt.Errorf("generate salt: %w", err)
	}
	gcm, err := c.aead(salt)
	if err != nil {
		return "", "", err
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)
	// Seal appends the tag; repack as salt | nonce | tag | ciphertext.
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	packed := make([]byte, 0, saltSize+nonceSize+tagSize+len(ct))
	packed = append(packed, salt...)
	packed = append(packed, nonce...)
	packed = append(packed, tag...)
	packed = append(packed, ct...)

	return base64.StdEncoding.EncodeToString(packed), LookupHash(plaintext), nil
}

// Decrypt unpacks a blob and opens it, verifying the authentication
// tag. Any structural or authentication failure yields ErrIntegrity.
func (c *Cipher) Decrypt(blob string) (string, error) {
	packed, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", ErrIntegrity
	}
	if len(packed) < saltSize+nonceSize+tagSize {
		return "", ErrIntegrity
	}
	salt := packed[:saltSize]
	nonce := packed[saltSize : saltSize+nonceSize]
	tag := packed[saltSize+nonceSize : saltSize+nonceSize+tagSize]
	ct := packed[saltSize+nonceSize+tagSize:]

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}
	sealed := make([]byte, 0, len(ct)+tagSize)
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrIntegrity
	}
	return string(plaintext), nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, c.masterKey, salt, hkdfInfo), derived); err != nil {
		return nil, fmt.Errorf("derive record key: %w", err)
	}
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// LookupHash computes the deduplication digest of a plaintext secret.
// One-way; used only for duplicate detection, never for decryption.
func LookupHash(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// Preview renders a display-safe fragment of a secret: the first six
// and last four characters. Secrets too short to hide anything between
// those windows are fully masked instead.
func Preview(plaintext string) string {
	if len(plaintext) < 12 {
		return "********"
	}
	return plaintext[:6] + "..." + plaintext[len(plaintext)-4:]
}
