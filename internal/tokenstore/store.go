// Package tokenstore persists the current bearer token across restarts.
// There is exactly one writer (the session controller) and one named slot.
package tokenstore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// Store is a single-slot token store. Load returns "" (no error) when the
// slot is empty.
type Store interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}

type tokenFile struct {
	AccessToken string `json:"access_token"`
}

// File persists the token as token.json under the user config dir.
type File struct {
	path string
}

// DefaultDir resolves the config directory, honoring XDG_CONFIG_HOME.
func DefaultDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "contact-admin")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "contact-admin")
}

// NewFile creates a file-backed store rooted at dir.
func NewFile(dir string) *File {
	return &File{path: filepath.Join(dir, "token.json")}
}

func (f *File) Load() (string, error) {
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	return tf.AccessToken, nil
}

func (f *File) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(tokenFile{AccessToken: token}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, b, 0o600)
}

func (f *File) Clear() error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Memory is an in-memory store for tests.
type Memory struct {
	mu    sync.Mutex
	token string
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Load() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token, nil
}

func (m *Memory) Save(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = token
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	return nil
}
