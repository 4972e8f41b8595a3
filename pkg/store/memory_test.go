package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStaticClientStore(t *testing.T) {
	hash, err := HashSecret("top secret")
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}

	clients := NewStaticClientStore([]Client{
		{
			ClientID:               "web-app",
			ClientSecretHash:       hash,
			ClientSecretRequired:   true,
			PostLogoutRedirectURIs: []string{"https://app.example.com/signed-out"},
		},
	})
	ctx := context.Background()

	client, err := clients.GetClient(ctx, "web-app")
	if err != nil {
		t.Fatalf("GetClient failed: %v", err)
	}
	if client.ClientID != "web-app" {
		t.Errorf("ClientID = %q", client.ClientID)
	}

	if _, err := clients.GetClient(ctx, "missing"); !errors.Is(err, ErrClientNotFound) {
		t.Errorf("expected ErrClientNotFound, got %v", err)
	}

	ok, err := clients.IsCorrectClientSecret(ctx, "web-app", "top secret")
	if err != nil || !ok {
		t.Errorf("correct secret rejected: ok=%v err=%v", ok, err)
	}
	ok, err = clients.IsCorrectClientSecret(ctx, "web-app", "wrong")
	if err != nil || ok {
		t.Errorf("wrong secret accepted: ok=%v err=%v", ok, err)
	}

	known, err := clients.IsKnownPostLogoutRedirectURI(ctx, "https://app.example.com/signed-out")
	if err != nil || !known {
		t.Errorf("registered post-logout uri not found: known=%v err=%v", known, err)
	}
	known, _ = clients.IsKnownPostLogoutRedirectURI(ctx, "https://evil.example.com/")
	if known {
		t.Error("unregistered post-logout uri reported as known")
	}
}

func TestMemoryCodeStoreConsumeKeepsReplayMarker(t *testing.T) {
	codes := NewMemoryCodeStore()
	ctx := context.Background()

	stored := &StoredCode{
		Code:     "abc",
		CodeType: CodeTypeAuthorization,
		Issuer:   "https://idp.example.com",
		Subject:  "alice",
		Created:  time.Now(),
		Expiry:   time.Now().Add(5 * time.Minute),
	}
	if err := codes.SaveCode(ctx, stored); err != nil {
		t.Fatalf("SaveCode failed: %v", err)
	}

	if err := codes.ConsumeCode(ctx, "abc", CodeTypeAuthorization, "https://idp.example.com"); err != nil {
		t.Fatalf("ConsumeCode failed: %v", err)
	}

	got, err := codes.GetCode(ctx, "abc", CodeTypeAuthorization, "https://idp.example.com")
	if err != nil {
		t.Fatalf("GetCode after consume failed: %v", err)
	}
	if got.ConsumeCount != 1 {
		t.Errorf("ConsumeCount = %d, want 1", got.ConsumeCount)
	}
}

func TestMemoryCodeStoreKeysByTypeAndIssuer(t *testing.T) {
	codes := NewMemoryCodeStore()
	ctx := context.Background()

	stored := &StoredCode{
		Code:     "abc",
		CodeType: CodeTypeAuthorization,
		Issuer:   "https://idp.example.com",
		Expiry:   time.Now().Add(5 * time.Minute),
	}
	if err := codes.SaveCode(ctx, stored); err != nil {
		t.Fatalf("SaveCode failed: %v", err)
	}

	if _, err := codes.GetCode(ctx, "abc", CodeTypeRefreshToken, "https://idp.example.com"); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("wrong code type resolved: %v", err)
	}
	if _, err := codes.GetCode(ctx, "abc", CodeTypeAuthorization, "https://other.example.com"); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("wrong issuer resolved: %v", err)
	}
}

func TestMemoryCodeStoreDelete(t *testing.T) {
	codes := NewMemoryCodeStore()
	ctx := context.Background()

	stored := &StoredCode{
		Code:     "abc",
		CodeType: CodeTypeRefreshToken,
		Issuer:   "https://idp.example.com",
		Expiry:   time.Now().Add(time.Hour),
	}
	codes.SaveCode(ctx, stored)

	if err := codes.DeleteCode(ctx, "abc", CodeTypeRefreshToken, "https://idp.example.com"); err != nil {
		t.Fatalf("DeleteCode failed: %v", err)
	}
	if _, err := codes.GetCode(ctx, "abc", CodeTypeRefreshToken, "https://idp.example.com"); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("deleted code still resolvable: %v", err)
	}
	if err := codes.DeleteCode(ctx, "abc", CodeTypeRefreshToken, "https://idp.example.com"); !errors.Is(err, ErrCodeNotFound) {
		t.Errorf("double delete: %v", err)
	}
}

func TestMemoryUserStore(t *testing.T) {
	users := NewMemoryUserStore()
	ctx := context.Background()

	users.AddUser(MemoryUser{
		Subject: "alice",
		Active:  true,
		Claims: map[string][]Claim{
			"profile": {{Type: "name", Value: "Alice Example"}},
			"email":   {{Type: "email", Value: "alice@example.com"}},
		},
	})

	active, err := users.IsUserActive(ctx, "https://idp.example.com", "alice")
	if err != nil || !active {
		t.Errorf("alice should be active: active=%v err=%v", active, err)
	}
	active, _ = users.IsUserActive(ctx, "https://idp.example.com", "bob")
	if active {
		t.Error("unknown user reported active")
	}

	users.SetActive("alice", false)
	active, _ = users.IsUserActive(ctx, "https://idp.example.com", "alice")
	if active {
		t.Error("deactivated user reported active")
	}

	claims, err := users.GetUserClaims(ctx, "https://idp.example.com", "alice", []string{"profile"})
	if err != nil {
		t.Fatalf("GetUserClaims failed: %v", err)
	}
	if len(claims) != 1 || claims[0].Type != "name" {
		t.Errorf("profile claims = %v", claims)
	}
}

func TestStaticResourceStoreDeduplicates(t *testing.T) {
	resources := NewStaticResourceStore(map[string][]string{
		"api.read":  {"https://api.example.com"},
		"api.write": {"https://api.example.com", "https://admin.example.com"},
	})

	audiences, err := resources.GetAudiences(context.Background(), []string{"api.read", "api.write", "openid"})
	if err != nil {
		t.Fatalf("GetAudiences failed: %v", err)
	}
	if len(audiences) != 2 {
		t.Errorf("audiences = %v, want two distinct entries", audiences)
	}
}
