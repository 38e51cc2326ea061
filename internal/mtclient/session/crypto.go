// Package session provides the file-backed, encrypted-at-rest store for
// MTProto session blobs (<SESSIONS_DIR>/<session_name>.session).
//
// Adapted from the teacher's plugin/chat_apps/store/crypto.go AEAD
// pattern, swapped to chacha20poly1305 per the domain-stack wiring in
// SPEC_FULL.md.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrInvalidKey is returned when the encryption key is the wrong size.
	ErrInvalidKey = fmt.Errorf("session: key must be %d bytes", chacha20poly1305.KeySize)
	// ErrInvalidCiphertext is returned when a session blob fails to decode or decrypt.
	ErrInvalidCiphertext = fmt.Errorf("session: invalid ciphertext")
)

// Encrypt seals plaintext under key, returning a base64 blob suitable
// for writing to a session file.
func Encrypt(plaintext, key []byte) (string, error) {
	if len(key) != chacha20poly1305.KeySize {
		return "", ErrInvalidKey
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return "", fmt.Errorf("session: new aead: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("session: generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func Decrypt(blob string, key []byte) ([]byte, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, ErrInvalidKey
	}
	data, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("session: new aead: %w", err)
	}
	if len(data) < aead.NonceSize() {
		return nil, ErrInvalidCiphertext
	}
	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}
	return plaintext, nil
}

// GenerateKey returns a fresh random chacha20poly1305 key, for
// provisioning SESSION_KEY once.
func GenerateKey() ([]byte, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("session: generate key: %w", err)
	}
	return key, nil
}
