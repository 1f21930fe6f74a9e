// Package income encrypts income figures before they reach storage.
// Income is the most sensitive number in the system, so it is kept
// encrypted at rest and only decrypted inside the service layer.
package income

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	ErrInvalidKey        = errors.New("income key must be 32 bytes of hex")
	ErrInvalidCiphertext = errors.New("invalid income ciphertext")
)

// Cipher seals and opens income amounts with ChaCha20-Poly1305. The
// stored blob is nonce || ciphertext.
type Cipher struct {
	key []byte
}

// NewCipher parses a hex-encoded 256-bit key.
func NewCipher(hexKey string) (*Cipher, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	return &Cipher{key: key}, nil
}

func (c *Cipher) Encrypt(amount float64) ([]byte, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	plaintext := []byte(strconv.FormatFloat(amount, 'f', -1, 64))
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (c *Cipher) Decrypt(blob []byte) (float64, error) {
	aead, err := chacha20poly1305.New(c.key)
	if err != nil {
		return 0, fmt.Errorf("create cipher: %w", err)
	}

	if len(blob) < aead.NonceSize() {
		return 0, ErrInvalidCiphertext
	}
	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	amount, err := strconv.ParseFloat(string(plaintext), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}
	return amount, nil
}
