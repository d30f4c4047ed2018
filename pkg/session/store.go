package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by Store.Load when no session has ever been
// persisted. A corrupt bundle is a different error: something was persisted
// and we could not read it back.
var ErrNotFound = errors.New("session: not found")

// Store persists sessions between runs. Load reports only existence and
// well-formedness; whether the session is still accepted by the dashboard
// is the authenticator's call.
type Store interface {
	Load() (*Session, error)
	Save(*Session) error
}

// FileStore keeps the encoded bundle in a single file, created 0600 since
// the cookies grant full dashboard access.
type FileStore struct {
	path string
}

// NewFileStore creates a file-backed store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the file the store reads and writes.
func (fs *FileStore) Path() string {
	return fs.path
}

// Load reads and decodes the persisted session.
func (fs *FileStore) Load() (*Session, error) {
	raw, err := os.ReadFile(fs.path)
	if os.IsNotExist(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", fs.path, err)
	}
	return Decode(string(raw))
}

// Save encodes and atomically replaces the persisted session.
func (fs *FileStore) Save(s *Session) error {
	bundle, err := Encode(s)
	if err != nil {
		return err
	}
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("session: create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("session: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(bundle); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("session: write: %w", err)
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("session: chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: close: %w", err)
	}
	if err := os.Rename(tmpName, fs.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: rename: %w", err)
	}
	return nil
}
