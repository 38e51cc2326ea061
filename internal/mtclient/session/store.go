package session

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Store persists session blobs under a directory, one file per
// session_name, encrypted at rest.
type Store struct {
	dir string
	key []byte
}

// New returns a Store rooted at dir, encrypting with key (must be
// chacha20poly1305.KeySize bytes).
func New(dir string, key []byte) *Store {
	return &Store{dir: dir, key: key}
}

func (s *Store) path(sessionName string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.session", sessionName))
}

// Load reads and decrypts the session blob for sessionName. A missing
// file is not an error: it returns (nil, false, nil) so the registry
// can treat it as "no prior session".
func (s *Store) Load(sessionName string) ([]byte, bool, error) {
	raw, err := os.ReadFile(s.path(sessionName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "read session file %s", sessionName)
	}
	plain, err := Decrypt(string(raw), s.key)
	if err != nil {
		return nil, false, errors.Wrapf(err, "decrypt session file %s", sessionName)
	}
	return plain, true, nil
}

// Save encrypts and writes the session blob for sessionName,
// overwriting any prior contents.
func (s *Store) Save(sessionName string, blob []byte) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return errors.Wrapf(err, "create sessions dir %s", s.dir)
	}
	cipher, err := Encrypt(blob, s.key)
	if err != nil {
		return errors.Wrapf(err, "encrypt session file %s", sessionName)
	}
	if err := os.WriteFile(s.path(sessionName), []byte(cipher), 0o600); err != nil {
		return errors.Wrapf(err, "write session file %s", sessionName)
	}
	return nil
}
