package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/pelletier/go-toml/v2"

	"oh-opus/internal/domain"
)

// Store defines persistence operations for app settings.
type Store interface {
	Load() (domain.Settings, error)
	Save(domain.Settings) error
}

// FileStore persists settings in a single file on disk. Files ending in
// .toml are TOML encoded; anything else is JSON.
type FileStore struct {
	path string
	lock *flock.Flock
}

// NewFileStore creates a file-backed settings store.
func NewFileStore(path string) *FileStore {
	return &FileStore{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads settings from disk or returns defaults when missing. Keys absent
// from the file keep their default values.
func (s *FileStore) Load() (domain.Settings, error) {
	cfg := DefaultSettings()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return domain.Settings{}, err
	}

	if err := Decode(s.path, data, &cfg); err != nil {
		return domain.Settings{}, err
	}
	return Normalize(cfg), nil
}

// Save writes settings atomically while holding the store's file lock.
func (s *FileStore) Save(cfg domain.Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("lock settings: %w", err)
	}
	defer func() { _ = s.lock.Unlock() }()

	data, err := Encode(s.path, cfg)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Decode parses settings data using the format implied by path.
func Decode(path string, data []byte, cfg *domain.Settings) error {
	if isTOML(path) {
		if err := toml.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
			return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
		}
		return nil
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// Encode renders settings using the format implied by path.
func Encode(path string, cfg domain.Settings) ([]byte, error) {
	if isTOML(path) {
		return toml.Marshal(cfg)
	}
	return json.MarshalIndent(cfg, "", "  ")
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}
