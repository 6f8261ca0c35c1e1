// Package secrets encrypts credentials at rest. API keys stored in the
// settings document carry the "enc_" envelope; the credential resolver
// decrypts them on the way into a provider adapter, so plaintext keys never
// persist to disk.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// EnvelopePrefix marks an encrypted value inside the settings document.
const EnvelopePrefix = "enc_"

// Box seals and opens credential values with a key derived from a passphrase.
type Box struct {
	key []byte
}

// NewBox derives the sealing key from the passphrase. An empty passphrase is
// rejected so a misconfigured deployment fails at startup, not at first use.
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("secrets: empty passphrase")
	}
	sum := sha256.Sum256([]byte(passphrase))
	return &Box{key: sum[:]}, nil
}

// IsEncrypted reports whether value carries the envelope prefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EnvelopePrefix)
}

// Encrypt seals plaintext into an "enc_" envelope. Encrypting an already
// sealed value is a no-op.
func (b *Box) Encrypt(plaintext string) (string, error) {
	if IsEncrypted(plaintext) {
		return plaintext, nil
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("secrets: encrypt: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("secrets: encrypt: nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EnvelopePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens an "enc_" envelope. Values without the prefix pass through
// unchanged, so plaintext keys in an older settings file keep working.
func (b *Box) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EnvelopePrefix))
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: decode: %w", err)
	}
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}
	if len(raw) < aead.NonceSize() {
		return "", fmt.Errorf("secrets: decrypt: envelope too short")
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("secrets: decrypt: %w", err)
	}
	return string(plain), nil
}
