package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	require.NoError(t, err)
	assert.Contains(t, string(blob), "ciphertext")
	assert.NotContains(t, string(blob), testKeyHex, "plaintext key must not appear in the blob")

	got, err := DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	// The 0x prefix is accepted and normalized away.
	blob, err = EncryptKey("0x"+testKeyHex, "hunter2")
	require.NoError(t, err)
	got, err = DecryptKey(blob, "hunter2")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestEncryptKeyRejections(t *testing.T) {
	_, err := EncryptKey(testKeyHex, "")
	assert.Error(t, err, "empty password")

	_, err = EncryptKey("zz", "pw")
	assert.Error(t, err, "invalid hex")

	_, err = EncryptKey("abcd", "pw")
	assert.Error(t, err, "wrong key length")
}

func TestDecryptKeyWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "right")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestDecryptKeyMalformed(t *testing.T) {
	_, err := DecryptKey([]byte("not json"), "pw")
	assert.Error(t, err)

	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	tampered := strings.Replace(string(blob), `"version": 1`, `"version": 9`, 1)
	_, err = DecryptKey([]byte(tampered), "pw")
	assert.Error(t, err)
}

func TestLoadKey(t *testing.T) {
	// Raw key wins and loses its prefix.
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{RawPrivateKey: "not-hex"})
	assert.Error(t, err)

	// Encrypted file path.
	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "signer.key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)

	_, err = LoadKey(KeyConfig{EncryptedKeyPath: filepath.Join(t.TempDir(), "absent.json")})
	assert.Error(t, err)

	_, err = LoadKey(KeyConfig{})
	assert.Error(t, err)
}
