package vault

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Root: t.TempDir(), Passphrase: "test-passphrase"})
	require.NoError(t, err)
	return s
}

// =============================================================================
// Round-Trip
// =============================================================================

func TestSaveRetrieve_Roundtrip(t *testing.T) {
	s := newTestStore(t)

	fields := map[string]string{
		"host":     "shared.example.com",
		"username": "deploy",
		"password": "s3cret",
	}
	require.NoError(t, s.Save("shared_hosting", fields))

	bundle, err := s.Retrieve("shared_hosting")
	require.NoError(t, err)
	assert.Equal(t, "shared_hosting", bundle.ProviderID)
	assert.Equal(t, fields, bundle.Fields)
	assert.False(t, bundle.CreatedAt.IsZero())
	assert.False(t, bundle.UpdatedAt.IsZero())
}

func TestRetrieve_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Retrieve("never_stored")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSave_OverwritePreservesCreatedAt(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("app_platform", map[string]string{"token": "one"}))
	first, err := s.Retrieve("app_platform")
	require.NoError(t, err)

	require.NoError(t, s.Save("app_platform", map[string]string{"token": "two"}))
	second, err := s.Retrieve("app_platform")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"token": "two"}, second.Fields)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
	assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))
}

// =============================================================================
// Failure Modes
// =============================================================================

func TestRetrieve_CorruptedCiphertext(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Root: root, Passphrase: "pw"})
	require.NoError(t, err)

	require.NoError(t, s.Save("shared_hosting", map[string]string{"host": "h"}))

	// Corrupt the stored ciphertext in place
	path := filepath.Join(root, "shared_hosting.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	raw, err := base64.StdEncoding.DecodeString(env["ciphertext"].(string))
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	env["ciphertext"] = base64.StdEncoding.EncodeToString(raw)

	data, err = json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = s.Retrieve("shared_hosting")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestRetrieve_WrongPassphrase(t *testing.T) {
	root := t.TempDir()

	s1, err := New(Config{Root: root, Passphrase: "correct"})
	require.NoError(t, err)
	require.NoError(t, s1.Save("shared_hosting", map[string]string{"host": "h"}))

	s2, err := New(Config{Root: root, Passphrase: "wrong"})
	require.NoError(t, err)

	_, err = s2.Retrieve("shared_hosting")
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestRetrieve_UnsupportedFormatVersion(t *testing.T) {
	root := t.TempDir()
	s, err := New(Config{Root: root, Passphrase: "pw"})
	require.NoError(t, err)

	require.NoError(t, s.Save("shared_hosting", map[string]string{"host": "h"}))

	path := filepath.Join(root, "shared_hosting.json")
	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var env map[string]any
	require.NoError(t, json.Unmarshal(data, &env))
	env["version"] = 99
	data, err = json.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	_, err = s.Retrieve("shared_hosting")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestSave_RejectsPathEscapingProviderID(t *testing.T) {
	s := newTestStore(t)

	for _, id := range []string{"", "../outside", "a/b", `a\b`} {
		err := s.Save(id, map[string]string{"k": "v"})
		assert.ErrorIs(t, err, ErrInvalidProviderID, "id %q", id)
	}
}

// =============================================================================
// Delete / List
// =============================================================================

func TestDelete_Idempotent(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("shared_hosting", map[string]string{"host": "h"}))
	require.NoError(t, s.Delete("shared_hosting"))

	_, err := s.Retrieve("shared_hosting")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting again is not an error
	assert.NoError(t, s.Delete("shared_hosting"))
}

func TestListProviders(t *testing.T) {
	s := newTestStore(t)

	ids, err := s.ListProviders()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Save("shared_hosting", map[string]string{"host": "h"}))
	require.NoError(t, s.Save("app_platform", map[string]string{"token": "t"}))

	ids, err = s.ListProviders()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"shared_hosting", "app_platform"}, ids)
}

// =============================================================================
// Concurrency
// =============================================================================

func TestSave_ConcurrentWritersSameProvider(t *testing.T) {
	s := newTestStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Save("shared_hosting", map[string]string{"host": "h"})
		}()
	}
	wg.Wait()

	// Whatever writer won, the record must decrypt cleanly.
	bundle, err := s.Retrieve("shared_hosting")
	require.NoError(t, err)
	assert.Equal(t, "h", bundle.Fields["host"])
}
