// Package encryption seals small values with an AEAD cipher, either
// ChaCha20-Poly1305 (default) or AES-256-GCM. Cached signed URLs are bearer
// capabilities, so the cache encrypts them at rest and binds each ciphertext
// to its cache key through the associated data.
//
//	enc, err := encryption.New(encryption.Config{Key: secret})
//	sealed, err := enc.Seal([]byte(url), []byte(cacheKey))
//	plain, err := enc.Open(sealed, []byte(cacheKey))
package encryption
