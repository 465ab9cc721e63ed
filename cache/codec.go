package cache

import (
	"errors"
	"fmt"

	"github.com/kbukum/playurl/encryption"
)

// ErrCorrupt marks a stored payload that cannot be decoded. The cache treats
// it as a miss and overwrites the entry.
var ErrCorrupt = errors.New("cache: corrupt payload")

// Codec transforms the serialized value on its way to and from the backend.
// The key is passed so implementations can bind payloads to their key.
type Codec interface {
	Encode(key string, plain []byte) ([]byte, error)
	Decode(key string, stored []byte) ([]byte, error)
}

type plainCodec struct{}

// PlainCodec stores the serialized value unchanged.
func PlainCodec() Codec { return plainCodec{} }

func (plainCodec) Encode(_ string, b []byte) ([]byte, error) { return b, nil }
func (plainCodec) Decode(_ string, b []byte) ([]byte, error) { return b, nil }

type encryptedCodec struct {
	enc encryption.Encryptor
}

// EncryptedCodec seals payloads with enc, using the cache key as associated
// data so a payload copied under another key fails to open.
func EncryptedCodec(enc encryption.Encryptor) Codec {
	return encryptedCodec{enc: enc}
}

func (c encryptedCodec) Encode(key string, plain []byte) ([]byte, error) {
	sealed, err := c.enc.Seal(plain, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("cache: seal: %w", err)
	}
	return sealed, nil
}

func (c encryptedCodec) Decode(key string, stored []byte) ([]byte, error) {
	plain, err := c.enc.Open(stored, []byte(key))
	if err != nil {
		if errors.Is(err, encryption.ErrDecrypt) {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return nil, fmt.Errorf("cache: open: %w", err)
	}
	return plain, nil
}
