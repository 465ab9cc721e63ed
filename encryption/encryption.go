package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned when a ciphertext fails authentication.
var ErrDecrypt = errors.New("encryption: message authentication failed")

// Algorithm represents supported encryption algorithms.
type Algorithm string

const (
	// AlgorithmChaCha20 is ChaCha20-Poly1305.
	AlgorithmChaCha20 Algorithm = "chacha20-poly1305"

	// AlgorithmAESGCM is AES-256-GCM.
	AlgorithmAESGCM Algorithm = "aes-256-gcm"
)

// Config selects the algorithm and key.
type Config struct {
	Enabled   bool      `mapstructure:"enabled"`
	Key       string    `mapstructure:"key"`
	Algorithm Algorithm `mapstructure:"algorithm"`
}

// ApplyDefaults fills in the default algorithm.
func (c *Config) ApplyDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = AlgorithmChaCha20
	}
}

// Validate checks the key and algorithm when encryption is enabled.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if len(c.Key) < 16 {
		return fmt.Errorf("encryption: key must be at least 16 bytes")
	}
	switch c.Algorithm {
	case AlgorithmChaCha20, AlgorithmAESGCM:
		return nil
	default:
		return fmt.Errorf("encryption: unsupported algorithm %q", c.Algorithm)
	}
}

// Encryptor seals and opens byte slices. The associated data is
// authenticated but not encrypted; Open fails unless it matches Seal's.
type Encryptor interface {
	Seal(plaintext, associated []byte) ([]byte, error)
	Open(sealed, associated []byte) ([]byte, error)
}

type aeadEncryptor struct {
	aead cipher.AEAD
}

// New creates an Encryptor for cfg. The key is hashed with SHA-256 to the
// 32 bytes both ciphers need.
func New(cfg Config) (Encryptor, error) {
	cfg.ApplyDefaults()
	if len(cfg.Key) == 0 {
		return nil, fmt.Errorf("encryption: key is required")
	}
	key := sha256.Sum256([]byte(cfg.Key))

	var (
		aead cipher.AEAD
		err  error
	)
	switch cfg.Algorithm {
	case AlgorithmChaCha20:
		aead, err = chacha20poly1305.New(key[:])
	case AlgorithmAESGCM:
		var block cipher.Block
		if block, err = aes.NewCipher(key[:]); err == nil {
			aead, err = cipher.NewGCM(block)
		}
	default:
		return nil, fmt.Errorf("encryption: unsupported algorithm %q", cfg.Algorithm)
	}
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", cfg.Algorithm, err)
	}
	return &aeadEncryptor{aead: aead}, nil
}

// Seal returns nonce || ciphertext.
func (e *aeadEncryptor) Seal(plaintext, associated []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, associated), nil
}

// Open reverses Seal.
func (e *aeadEncryptor) Open(sealed, associated []byte) ([]byte, error) {
	nonceSize := e.aead.NonceSize()
	if len(sealed) < nonceSize+e.aead.Overhead() {
		return nil, ErrDecrypt
	}
	plaintext, err := e.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], associated)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}
