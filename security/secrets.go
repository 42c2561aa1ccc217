// Package security encrypts the credential fields of a data source's config
// blob (IMAP/KSeF/webhook passwords and API keys) before they reach SQLite,
// using AES-256-GCM with a key derived from an operator-supplied passphrase.
// It follows the teacher's enc_dec_env approach, adapted from whole-file
// encryption to individual config-map string values.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
)

// encryptedPrefix marks a value as ciphertext so DecryptSecrets can tell
// it apart from a plaintext value written before encryption was enabled,
// or under a deployment that never configured a SourceSecretKey.
const encryptedPrefix = "enc:"

// secretFields lists the data_sources.config keys treated as credentials.
var secretFields = []string{"password", "secret", "client_secret", "api_key", "token"}

func deriveKey(passphrase string) [32]byte {
	return sha256.Sum256([]byte(passphrase))
}

// EncryptString encrypts plaintext with AES-256-GCM under a key derived from
// passphrase, returning a base64 string with the nonce prepended.
func EncryptString(passphrase, plaintext string) (string, error) {
	key := deriveKey(passphrase)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptString reverses EncryptString.
func DecryptString(passphrase, encoded string) (string, error) {
	key := deriveKey(passphrase)
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	if len(raw) < gcm.NonceSize() {
		return "", errors.New("security: ciphertext too short")
	}
	nonce, ct := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// EncryptSecrets returns a copy of cfg with secretFields values encrypted and
// prefixed, leaving everything else untouched. A blank passphrase is a no-op,
// since that means the deployment hasn't opted into encryption at rest.
func EncryptSecrets(cfg map[string]any, passphrase string) map[string]any {
	if passphrase == "" || cfg == nil {
		return cfg
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	for _, field := range secretFields {
		raw, ok := out[field].(string)
		if !ok || raw == "" || hasEncryptedPrefix(raw) {
			continue
		}
		enc, err := EncryptString(passphrase, raw)
		if err != nil {
			continue
		}
		out[field] = encryptedPrefix + enc
	}
	return out
}

// DecryptSecrets reverses EncryptSecrets. Values without the encrypted
// marker pass through unchanged, so config written before encryption was
// enabled (or under a blank passphrase) still works.
func DecryptSecrets(cfg map[string]any, passphrase string) map[string]any {
	if passphrase == "" || cfg == nil {
		return cfg
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	for _, field := range secretFields {
		raw, ok := out[field].(string)
		if !ok || !hasEncryptedPrefix(raw) {
			continue
		}
		plain, err := DecryptString(passphrase, raw[len(encryptedPrefix):])
		if err != nil {
			continue
		}
		out[field] = plain
	}
	return out
}

func hasEncryptedPrefix(v string) bool {
	return len(v) > len(encryptedPrefix) && v[:len(encryptedPrefix)] == encryptedPrefix
}

// MaskSecrets replaces secretFields values with a fixed placeholder, for API
// responses that must never echo a credential back to the client even in
// encrypted form.
func MaskSecrets(cfg map[string]any) map[string]any {
	if cfg == nil {
		return cfg
	}
	out := make(map[string]any, len(cfg))
	for k, v := range cfg {
		out[k] = v
	}
	for _, field := range secretFields {
		if _, ok := out[field]; ok {
			out[field] = "••••••••"
		}
	}
	return out
}
