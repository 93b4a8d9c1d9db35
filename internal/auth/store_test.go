package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	return NewStoreAt(
		filepath.Join(dir, "tokens.json"),
		filepath.Join(dir, "legacy-tokens.json"),
	)
}

func TestStore_SaveAndLoad(t *testing.T) {
	store := testStore(t)

	rec := &Record{
		AccessToken:  "access-token",
		RefreshToken: "refresh-token",
		ExpiresAt:    1234567890000,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TenantID:     "common",
	}

	if err := store.Save(rec); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if *loaded != *rec {
		t.Errorf("Load() = %+v, want %+v", loaded, rec)
	}
}

func TestStore_SaveSetsRestrictivePermissions(t *testing.T) {
	store := testStore(t)

	if err := store.Save(&Record{AccessToken: "a", RefreshToken: "r"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("credential file mode = %o, want 0600", perm)
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	store := testStore(t)

	_, err := store.Load()
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestStore_LoadCorruptFile(t *testing.T) {
	store := testStore(t)

	if err := os.WriteFile(store.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := store.Load()
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Fatalf("Load() error = %v, want *CorruptError", err)
	}
	if corrupt.Path != store.Path() {
		t.Errorf("CorruptError.Path = %q, want %q", corrupt.Path, store.Path())
	}
}

func TestStore_LoadEmptyTokens(t *testing.T) {
	store := testStore(t)

	// Valid JSON but no usable tokens is corrupt, not merely empty.
	if err := os.WriteFile(store.Path(), []byte(`{"expiresAt": 123}`), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	_, err := store.Load()
	var corrupt *CorruptError
	if !errors.As(err, &corrupt) {
		t.Errorf("Load() error = %v, want *CorruptError", err)
	}
}

func TestStore_LoadLegacy(t *testing.T) {
	store := testStore(t)

	data := []byte(`{"accessToken": "legacy-access", "refreshToken": "legacy-refresh", "expiresAt": 42}`)
	if err := os.WriteFile(store.legacyPath, data, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	rec, err := store.LoadLegacy()
	if err != nil {
		t.Fatalf("LoadLegacy() error = %v", err)
	}
	if rec.AccessToken != "legacy-access" {
		t.Errorf("AccessToken = %q, want %q", rec.AccessToken, "legacy-access")
	}
	if rec.RefreshToken != "legacy-refresh" {
		t.Errorf("RefreshToken = %q, want %q", rec.RefreshToken, "legacy-refresh")
	}
}

func TestStore_MigrateKeepsLegacyFile(t *testing.T) {
	store := testStore(t)

	data := []byte(`{"accessToken": "legacy-access", "refreshToken": "legacy-refresh"}`)
	if err := os.WriteFile(store.legacyPath, data, 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	rec, err := store.LoadLegacy()
	if err != nil {
		t.Fatalf("LoadLegacy() error = %v", err)
	}
	if err := store.Migrate(rec); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	// Canonical path now holds the record.
	migrated, err := store.Load()
	if err != nil {
		t.Fatalf("Load() after Migrate() error = %v", err)
	}
	if migrated.AccessToken != "legacy-access" {
		t.Errorf("migrated AccessToken = %q, want %q", migrated.AccessToken, "legacy-access")
	}

	// Legacy file is untouched.
	if _, err := os.Stat(store.legacyPath); err != nil {
		t.Errorf("legacy file should still exist: %v", err)
	}
}

func TestStore_SaveOverwritesAtomically(t *testing.T) {
	store := testStore(t)

	if err := store.Save(&Record{AccessToken: "first", RefreshToken: "r1"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if err := store.Save(&Record{AccessToken: "second", RefreshToken: "r2"}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	rec, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if rec.AccessToken != "second" {
		t.Errorf("AccessToken = %q, want %q", rec.AccessToken, "second")
	}

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(store.Path()))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}
