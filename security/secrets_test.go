package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptStringRoundTrips(t *testing.T) {
	enc, err := EncryptString("correct-horse", "s3cr3t-imap-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cr3t-imap-pass", enc)

	plain, err := DecryptString("correct-horse", enc)
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t-imap-pass", plain)
}

func TestEncryptSecretsOnlyTouchesCredentialFields(t *testing.T) {
	cfg := map[string]any{
		"host":     "imap.example.com",
		"password": "hunter2",
	}
	encrypted := EncryptSecrets(cfg, "passphrase")
	assert.Equal(t, "imap.example.com", encrypted["host"])
	assert.NotEqual(t, "hunter2", encrypted["password"])

	decrypted := DecryptSecrets(encrypted, "passphrase")
	assert.Equal(t, "hunter2", decrypted["password"])
}

func TestEncryptSecretsNoopWithoutPassphrase(t *testing.T) {
	cfg := map[string]any{"password": "hunter2"}
	assert.Equal(t, cfg, EncryptSecrets(cfg, ""))
}

func TestMaskSecretsHidesCredentialValues(t *testing.T) {
	cfg := map[string]any{"host": "imap.example.com", "password": "hunter2"}
	masked := MaskSecrets(cfg)
	assert.Equal(t, "imap.example.com", masked["host"])
	assert.Equal(t, "••••••••", masked["password"])
}
