// Package vault stores provider credential bundles encrypted at rest.
// This is part of the Imperative Shell - it owns the storage root and is the
// only package that sees credential plaintext on disk boundaries.
//
// Layout: one JSON envelope per provider id under the configured root. The
// envelope carries a format version, the scrypt salt and the AES-256-GCM
// ciphertext; timestamps stay outside the ciphertext so listing and
// overwrite bookkeeping never require decryption.
package vault

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hostbridge/hostbridge/internal/core/crypto"
	"github.com/hostbridge/hostbridge/internal/core/domain"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNotFound is returned when no bundle exists for a provider.
	ErrNotFound = errors.New("credentials not found")

	// ErrDecryptionFailed is returned when the passphrase is wrong or the
	// stored record is corrupted.
	ErrDecryptionFailed = errors.New("credential decryption failed")

	// ErrUnsupportedFormat is returned for unknown envelope versions. Future
	// formats fail closed instead of being partially decoded.
	ErrUnsupportedFormat = errors.New("unsupported credential format version")

	// ErrInvalidProviderID is returned for provider ids that cannot name a file.
	ErrInvalidProviderID = errors.New("invalid provider id")
)

// VaultError wraps errors with operation context.
type VaultError struct {
	Op       string // Operation that failed (e.g. "Store")
	Provider string
	Err      error
}

func (e *VaultError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Provider, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *VaultError) Unwrap() error {
	return e.Err
}

// =============================================================================
// Envelope Format
// =============================================================================

// formatVersion is the current on-disk envelope version.
const formatVersion = 1

// envelope is the on-disk record for one provider's credentials.
type envelope struct {
	Version    int       `json:"version"`
	Salt       string    `json:"salt"`       // base64 scrypt salt
	Ciphertext string    `json:"ciphertext"` // base64 nonce||data||tag
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// =============================================================================
// Store
// =============================================================================

// Config holds explicit vault configuration; there is no process-wide
// default storage path.
type Config struct {
	// Root is the directory holding one envelope file per provider.
	Root string

	// Passphrase is the master secret keys are derived from.
	Passphrase string
}

// Store encrypts and persists credential bundles, one file per provider id.
// Writes are atomic (write-temp-then-rename), so concurrent writers to the
// same provider cannot corrupt state: the last rename wins.
type Store struct {
	root       string
	passphrase string
}

// New creates a credential store rooted at cfg.Root, creating the directory
// with owner-only permissions if needed.
func New(cfg Config) (*Store, error) {
	if cfg.Root == "" {
		return nil, &VaultError{Op: "New", Err: errors.New("storage root is required")}
	}
	if cfg.Passphrase == "" {
		return nil, &VaultError{Op: "New", Err: errors.New("passphrase is required")}
	}

	if err := os.MkdirAll(cfg.Root, 0o700); err != nil {
		return nil, &VaultError{Op: "New", Err: err}
	}

	return &Store{root: cfg.Root, passphrase: cfg.Passphrase}, nil
}

// Save encrypts fields and writes the bundle for providerID, replacing any
// existing bundle. created_at survives overwrites; updated_at is refreshed.
func (s *Store) Save(providerID string, fields map[string]string) error {
	path, err := s.bundlePath(providerID)
	if err != nil {
		return &VaultError{Op: "Save", Provider: providerID, Err: err}
	}

	now := time.Now().UTC()
	createdAt := now
	if prev, err := s.readEnvelope(path); err == nil {
		createdAt = prev.CreatedAt
	}

	salt, err := crypto.NewSalt()
	if err != nil {
		return &VaultError{Op: "Save", Provider: providerID, Err: err}
	}
	key, err := crypto.DeriveKey(s.passphrase, salt)
	if err != nil {
		return &VaultError{Op: "Save", Provider: providerID, Err: err}
	}

	plaintext, err := json.Marshal(fields)
	if err != nil {
		return &VaultError{Op: "Save", Provider: providerID, Err: err}
	}

	ciphertext, err := crypto.Encrypt(plaintext, key)
	if err != nil {
		return &VaultError{Op: "Save", Provider: providerID, Err: err}
	}

	env := envelope{
		Version:    formatVersion,
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		CreatedAt:  createdAt,
		UpdatedAt:  now,
	}

	if err := s.writeAtomic(path, env); err != nil {
		return &VaultError{Op: "Save", Provider: providerID, Err: err}
	}
	return nil
}

// Retrieve decrypts and returns the bundle for providerID.
func (s *Store) Retrieve(providerID string) (domain.CredentialBundle, error) {
	var bundle domain.CredentialBundle

	path, err := s.bundlePath(providerID)
	if err != nil {
		return bundle, &VaultError{Op: "Retrieve", Provider: providerID, Err: err}
	}

	env, err := s.readEnvelope(path)
	if err != nil {
		return bundle, &VaultError{Op: "Retrieve", Provider: providerID, Err: err}
	}

	if env.Version != formatVersion {
		return bundle, &VaultError{Op: "Retrieve", Provider: providerID, Err: ErrUnsupportedFormat}
	}

	salt, err := base64.StdEncoding.DecodeString(env.Salt)
	if err != nil {
		return bundle, &VaultError{Op: "Retrieve", Provider: providerID, Err: ErrDecryptionFailed}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(env.Ciphertext)
	if err != nil {
		return bundle, &VaultError{Op: "Retrieve", Provider: providerID, Err: ErrDecryptionFailed}
	}

	key, err := crypto.DeriveKey(s.passphrase, salt)
	if err != nil {
		return bundle, &VaultError{Op: "Retrieve", Provider: providerID, Err: ErrDecryptionFailed}
	}

	plaintext, err := crypto.Decrypt(ciphertext, key)
	if err != nil {
		return bundle, &VaultError{Op: "Retrieve", Provider: providerID, Err: ErrDecryptionFailed}
	}

	var fields map[string]string
	if err := json.Unmarshal(plaintext, &fields); err != nil {
		return bundle, &VaultError{Op: "Retrieve", Provider: providerID, Err: ErrDecryptionFailed}
	}

	return domain.CredentialBundle{
		ProviderID: providerID,
		Fields:     fields,
		CreatedAt:  env.CreatedAt,
		UpdatedAt:  env.UpdatedAt,
	}, nil
}

// Delete removes the bundle for providerID. Deleting an absent bundle is
// not an error.
func (s *Store) Delete(providerID string) error {
	path, err := s.bundlePath(providerID)
	if err != nil {
		return &VaultError{Op: "Delete", Provider: providerID, Err: err}
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &VaultError{Op: "Delete", Provider: providerID, Err: err}
	}
	return nil
}

// ListProviders enumerates provider ids with stored bundles, without
// decrypting any payloads.
func (s *Store) ListProviders() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, &VaultError{Op: "ListProviders", Err: err}
	}

	var ids []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return ids, nil
}

// =============================================================================
// Internals
// =============================================================================

// bundlePath resolves the envelope file for a provider id, rejecting ids
// that would escape the storage root.
func (s *Store) bundlePath(providerID string) (string, error) {
	if providerID == "" || strings.ContainsAny(providerID, `/\`) || providerID != filepath.Base(providerID) {
		return "", ErrInvalidProviderID
	}
	return filepath.Join(s.root, providerID+".json"), nil
}

// readEnvelope reads and decodes an envelope file.
func (s *Store) readEnvelope(path string) (envelope, error) {
	var env envelope

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return env, ErrNotFound
		}
		return env, err
	}

	if err := json.Unmarshal(data, &env); err != nil {
		return env, ErrDecryptionFailed
	}
	return env, nil
}

// writeAtomic writes the envelope to a temp file in the same directory and
// renames it into place.
func (s *Store) writeAtomic(path string, env envelope) error {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.root, ".bundle-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}
