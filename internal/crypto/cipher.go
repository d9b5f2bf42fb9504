package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/store-connection-service/internal/monitoring"
	"golang.org/x/crypto/hkdf"
)

// EncryptedPrefix marks a value produced by Cipher.Encrypt
const EncryptedPrefix = "encrypted:"

const keySize = 32

var hkdfInfo = []byte("store-connection-service credential cipher v1")

// Cipher encrypts individual string values with AES-256-GCM. It holds only
// the derived key and is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from the process-wide key. A 64 character hex
// string is used as raw key material; anything else is treated as a
// passphrase and stretched with HKDF-SHA256.
func NewCipher(key string) (*Cipher, error) {
	if key == "" {
		return nil, errors.New("encryption key is required")
	}

	material, err := deriveKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(material)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func deriveKey(key string) ([]byte, error) {
	if len(key) == hex.EncodedLen(keySize) {
		if raw, err := hex.DecodeString(key); err == nil {
			return raw, nil
		}
	}

	material := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(key), nil, hkdfInfo), material); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}
	return material, nil
}

// IsEncrypted reports whether value carries the encryption marker
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// Encrypt returns "encrypted:" followed by hex(nonce || ciphertext)
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + hex.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Values without the marker are returned unchanged
// so rows written before encryption was introduced keep working.
func (c *Cipher) Decrypt(value string) (string, error) {
	plaintext, _, err := c.DecryptLegacy(value)
	return plaintext, err
}

// DecryptLegacy is Decrypt that also reports whether the value had been
// encrypted twice. Such values are unwrapped with exactly one extra pass.
func (c *Cipher) DecryptLegacy(value string) (string, bool, error) {
	if !IsEncrypted(value) {
		return value, false, nil
	}

	plaintext, err := c.open(value)
	if err != nil {
		return "", false, err
	}
	if !IsEncrypted(plaintext) {
		return plaintext, false, nil
	}

	log.Warn().Msg("Value was encrypted twice, applying one extra decryption pass")
	monitoring.LegacyDoubleEncryption.Inc()

	plaintext, err = c.open(plaintext)
	if err != nil {
		return "", false, fmt.Errorf("legacy second pass: %w", err)
	}
	return plaintext, true, nil
}

func (c *Cipher) open(value string) (string, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("opening ciphertext: %w", err)
	}
	return string(plaintext), nil
}
