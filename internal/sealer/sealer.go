// Package sealer protects sensitive payloads at rest with envelope encryption.
//
// Every payload gets its own random data encryption key (DEK). The payload is
// encrypted with the DEK and the DEK is encrypted with the key encryption key
// (KEK) from ENCRYPTION_KEY. Both layers use AES-256-GCM. The result is a single
// self-describing blob that fits one bytea column:
//
//	version(1) | dekNonce(12) | encryptedDEK(48) | dataNonce(12) | ciphertext
package sealer

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

const (
	version   byte = 1
	keySize        = 32
	nonceSize      = 12
	// DEK ciphertext carries the 16-byte GCM tag.
	sealedDEKSize = keySize + 16
	headerSize    = 1 + nonceSize + sealedDEKSize + nonceSize
)

var (
	ErrInvalidKey = errors.New("key encryption key must be exactly 32 bytes")
	ErrMalformed  = errors.New("sealed payload is malformed")
)

// Sealer seals and opens payloads with a fixed key encryption key.
type Sealer struct {
	kek []byte
}

// New creates a Sealer. kek must be exactly 32 bytes.
func New(kek []byte) (*Sealer, error) {
	if len(kek) != keySize {
		return nil, ErrInvalidKey
	}
	k := make([]byte, keySize)
	copy(k, kek)
	return &Sealer{kek: k}, nil
}

// Seal encrypts plaintext under a fresh DEK.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	dek := make([]byte, keySize)
	if _, err := io.ReadFull(rand.Reader, dek); err != nil {
		return nil, fmt.Errorf("failed to generate DEK: %w", err)
	}

	encryptedDEK, dekNonce, err := encryptWithKey(s.kek, dek)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt DEK: %w", err)
	}

	ciphertext, dataNonce, err := encryptWithKey(dek, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	out := make([]byte, 0, headerSize+len(ciphertext))
	out = append(out, version)
	out = append(out, dekNonce...)
	out = append(out, encryptedDEK...)
	out = append(out, dataNonce...)
	out = append(out, ciphertext...)
	return out, nil
}

// Open reverses Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < headerSize || sealed[0] != version {
		return nil, ErrMalformed
	}

	rest := sealed[1:]
	dekNonce, rest := rest[:nonceSize], rest[nonceSize:]
	encryptedDEK, rest := rest[:sealedDEKSize], rest[sealedDEKSize:]
	dataNonce, ciphertext := rest[:nonceSize], rest[nonceSize:]

	dek, err := decryptWithKey(s.kek, encryptedDEK, dekNonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt DEK: %w", err)
	}

	plaintext, err := decryptWithKey(dek, ciphertext, dataNonce)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt payload: %w", err)
	}
	return plaintext, nil
}

// SealJSON marshals v and seals the result.
func (s *Sealer) SealJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return s.Seal(data)
}

// OpenJSON opens sealed and unmarshals it into v.
func (s *Sealer) OpenJSON(sealed []byte, v any) error {
	data, err := s.Open(sealed)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return nil
}

func encryptWithKey(key, plaintext []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, nil, err
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

func decryptWithKey(key, ciphertext, nonce []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
