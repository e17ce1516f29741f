package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DeriveKey Tests
// =============================================================================

func TestDeriveKey(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	key, err := DeriveKey("my-secret-passphrase", salt)
	require.NoError(t, err)
	assert.Len(t, key, 32)
}

func TestDeriveKey_Deterministic(t *testing.T) {
	salt, err := NewSalt()
	require.NoError(t, err)

	key1, err := DeriveKey("same-passphrase", salt)
	require.NoError(t, err)
	key2, err := DeriveKey("same-passphrase", salt)
	require.NoError(t, err)
	assert.Equal(t, key1, key2)
}

func TestDeriveKey_SaltChangesKey(t *testing.T) {
	salt1, err := NewSalt()
	require.NoError(t, err)
	salt2, err := NewSalt()
	require.NoError(t, err)

	key1, err := DeriveKey("passphrase", salt1)
	require.NoError(t, err)
	key2, err := DeriveKey("passphrase", salt2)
	require.NoError(t, err)
	assert.NotEqual(t, key1, key2)
}

func TestDeriveKey_InvalidSalt(t *testing.T) {
	_, err := DeriveKey("passphrase", []byte("short"))
	assert.ErrorIs(t, err, ErrInvalidSalt)
}

// =============================================================================
// Encrypt/Decrypt Tests
// =============================================================================

func testKey(t *testing.T) []byte {
	t.Helper()
	salt, err := NewSalt()
	require.NoError(t, err)
	key, err := DeriveKey("test-encryption-key", salt)
	require.NoError(t, err)
	return key
}

func TestEncrypt_Decrypt_Roundtrip(t *testing.T) {
	plaintext := []byte("This is a secret message!")
	key := testKey(t)

	ciphertext, err := Encrypt(plaintext, key)
	require.NoError(t, err)
	assert.NotEmpty(t, ciphertext)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestEncrypt_DifferentNonces(t *testing.T) {
	plaintext := []byte("Same message")
	key := testKey(t)

	ciphertext1, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	ciphertext2, err := Encrypt(plaintext, key)
	require.NoError(t, err)

	// Same plaintext should produce different ciphertext (different nonces)
	assert.NotEqual(t, ciphertext1, ciphertext2)
}

func TestEncrypt_KeyTooShort(t *testing.T) {
	_, err := Encrypt([]byte("test"), []byte("too-short"))
	assert.ErrorIs(t, err, ErrKeyTooShort)
}

func TestDecrypt_WrongKey(t *testing.T) {
	key := testKey(t)
	otherKey := testKey(t)

	ciphertext, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	_, err = Decrypt(ciphertext, otherKey)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_CorruptedCiphertext(t *testing.T) {
	key := testKey(t)

	ciphertext, err := Encrypt([]byte("secret"), key)
	require.NoError(t, err)

	// Flip a byte past the nonce
	ciphertext[len(ciphertext)-1] ^= 0xFF

	_, err = Decrypt(ciphertext, key)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecrypt_TooShort(t *testing.T) {
	key := testKey(t)

	_, err := Decrypt([]byte{0x01, 0x02}, key)
	assert.ErrorIs(t, err, ErrInvalidCiphertext)
}
