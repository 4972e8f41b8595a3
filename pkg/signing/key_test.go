package signing

import (
	"crypto/sha1"
	"encoding/base64"
	"testing"
	"time"
)

func TestNewKeySetsThumbprintKeyID(t *testing.T) {
	now := time.Now()
	key, err := GenerateKey("test", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	thumbprint := sha1.Sum(key.Certificate.Raw)
	want := base64.RawURLEncoding.EncodeToString(thumbprint[:])

	if key.KeyID() != want {
		t.Errorf("KeyID = %q, want %q", key.KeyID(), want)
	}
	if key.PublicJWK().KeyID() != want {
		t.Errorf("public KeyID = %q, want %q", key.PublicJWK().KeyID(), want)
	}
	if key.PublicJWK().X509CertThumbprint() != want {
		t.Errorf("x5t = %q, want %q", key.PublicJWK().X509CertThumbprint(), want)
	}
}

func TestNewKeyRejectsMissingPrivateKey(t *testing.T) {
	now := time.Now()
	key, err := GenerateKey("test", now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	if _, err := NewKey(key.Certificate, nil); err == nil {
		t.Error("expected error for missing private key")
	}
	if _, err := NewKey(nil, nil); err == nil {
		t.Error("expected error for missing certificate")
	}
}

func TestValidAt(t *testing.T) {
	now := time.Now()
	key, err := GenerateKey("test", now, now.Add(time.Hour))
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	if key.ValidAt(now.Add(-time.Minute)) {
		t.Error("key should not be valid before NotBefore")
	}
	if !key.ValidAt(now.Add(time.Minute)) {
		t.Error("key should be valid inside the window")
	}
	if key.ValidAt(now.Add(2 * time.Hour)) {
		t.Error("key should not be valid after NotAfter")
	}
}
