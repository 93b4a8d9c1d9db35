package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const (
	// tokenFileName is the credential file name under the config directory.
	tokenFileName = "tokens.json"

	// configDirName is the per-user configuration directory for this tool.
	configDirName = "mstodo"
)

// Store locates, reads and writes the on-disk credential record. It has no
// expiry or network logic. The canonical location is a per-user config
// directory; a legacy location in the process working directory is read as
// a fallback and migrated forward (additively, the legacy file is kept).
type Store struct {
	path       string
	legacyPath string
}

// NewStore creates a Store rooted at the platform config directory,
// creating the directory if absent. The path is deterministic for the
// lifetime of the process.
func NewStore() (*Store, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to locate user config directory: %w", err)
	}

	dir := filepath.Join(configDir, configDirName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	return &Store{
		path:       filepath.Join(dir, tokenFileName),
		legacyPath: tokenFileName,
	}, nil
}

// NewStoreAt creates a Store with explicit canonical and legacy paths.
func NewStoreAt(path, legacyPath string) *Store {
	return &Store{path: path, legacyPath: legacyPath}
}

// Path returns the canonical credential file location.
func (s *Store) Path() string { return s.path }

// Load reads the credential record from the canonical path. A missing file
// yields ErrNotFound; a file that cannot be parsed yields a *CorruptError.
func (s *Store) Load() (*Record, error) {
	return readRecord(s.path)
}

// LoadLegacy reads the credential record from the deprecated working
// directory location. Used only as a fallback when the canonical path is
// empty.
func (s *Store) LoadLegacy() (*Record, error) {
	return readRecord(s.legacyPath)
}

// Save serializes the full record and overwrites the canonical file. The
// write goes to a temp file in the same directory followed by an atomic
// rename, so a concurrent loader never observes a truncated file.
func (s *Store) Save(rec *Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "tokens-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp credential file: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		return fmt.Errorf("failed to set credential file permissions: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace credential file: %w", err)
	}
	return nil
}

// Migrate persists a record found only at the legacy path so the canonical
// location holds it going forward. The legacy file is left untouched.
func (s *Store) Migrate(rec *Record) error {
	return s.Save(rec)
}

func readRecord(path string) (*Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read credential file %s: %w", path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &CorruptError{Path: path, Err: err}
	}
	if rec.AccessToken == "" && rec.RefreshToken == "" {
		return nil, &CorruptError{Path: path, Err: errors.New("no tokens present")}
	}
	return &rec, nil
}
