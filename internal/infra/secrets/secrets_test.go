package secrets

import (
	"strings"
	"testing"
)

func TestBox_EncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()

	b, err := NewBox("correct horse battery staple")
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}

	sealed, err := b.Encrypt("sk-live-abc123")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if !strings.HasPrefix(sealed, EnvelopePrefix) {
		t.Fatalf("expected %q prefix, got %q", EnvelopePrefix, sealed)
	}
	if strings.Contains(sealed, "sk-live") {
		t.Error("sealed value must not contain the plaintext")
	}

	plain, err := b.Decrypt(sealed)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if plain != "sk-live-abc123" {
		t.Errorf("round trip mismatch: got %q", plain)
	}
}

func TestBox_Encrypt_AlreadySealed_IsNoop(t *testing.T) {
	t.Parallel()

	b, err := NewBox("pass")
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}
	sealed, err := b.Encrypt("value")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	again, err := b.Encrypt(sealed)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if again != sealed {
		t.Error("encrypting a sealed value must be a no-op")
	}
}

func TestBox_Decrypt_PlaintextPassesThrough(t *testing.T) {
	t.Parallel()

	b, err := NewBox("pass")
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}
	got, err := b.Decrypt("sk-plain")
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if got != "sk-plain" {
		t.Errorf("expected pass-through, got %q", got)
	}
}

func TestBox_Decrypt_WrongPassphrase_Fails(t *testing.T) {
	t.Parallel()

	b1, err := NewBox("one")
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}
	b2, err := NewBox("two")
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}
	sealed, err := b1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}
	if _, err := b2.Decrypt(sealed); err == nil {
		t.Error("expected decrypt failure with wrong passphrase, got nil")
	}
}

func TestBox_Decrypt_CorruptEnvelope_Fails(t *testing.T) {
	t.Parallel()

	b, err := NewBox("pass")
	if err != nil {
		t.Fatalf("NewBox failed: %v", err)
	}
	if _, err := b.Decrypt("enc_%%%not-base64"); err == nil {
		t.Error("expected error for corrupt envelope, got nil")
	}
	if _, err := b.Decrypt("enc_QQ=="); err == nil {
		t.Error("expected error for truncated envelope, got nil")
	}
}

func TestNewBox_EmptyPassphrase_Fails(t *testing.T) {
	t.Parallel()

	if _, err := NewBox(""); err == nil {
		t.Error("expected error for empty passphrase, got nil")
	}
}
