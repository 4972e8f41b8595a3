package op

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/idport/idport/pkg/store"
)

func userinfoToken(t *testing.T, fixture *testFixture, scopes []string) string {
	t.Helper()
	raw, err := fixture.server.issueAccessToken(context.Background(), testClientID, time.Now().Add(time.Hour), scopes, testSubject)
	if err != nil {
		t.Fatalf("issueAccessToken failed: %v", err)
	}
	return raw
}

func TestUserinfoEndpoint(t *testing.T) {
	fixture := newTestFixture(t, func(cfg *Config) { cfg.UserinfoEnabled = true })
	token := userinfoToken(t, fixture, []string{"openid", "profile", "email"})

	c, rec := getContext("https://idp.example.com/connect/userinfo")
	c.Request().Header.Set("Authorization", "Bearer "+token)
	if err := fixture.server.UserinfoEndpoint(c); err != nil {
		t.Fatalf("UserinfoEndpoint failed: %v", err)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if body["sub"] != testSubject {
		t.Errorf("sub = %v", body["sub"])
	}
	if body["name"] != "Alice Example" {
		t.Errorf("name = %v", body["name"])
	}
	if body["email"] != "alice@example.com" {
		t.Errorf("email = %v", body["email"])
	}
}

func TestUserinfoScopesLimitClaims(t *testing.T) {
	fixture := newTestFixture(t, func(cfg *Config) { cfg.UserinfoEnabled = true })
	token := userinfoToken(t, fixture, []string{"openid", "profile"})

	c, rec := getContext("https://idp.example.com/connect/userinfo")
	c.Request().Header.Set("Authorization", "Bearer "+token)
	if err := fixture.server.UserinfoEndpoint(c); err != nil {
		t.Fatalf("UserinfoEndpoint failed: %v", err)
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	if _, ok := body["email"]; ok {
		t.Error("email released without the email scope")
	}
}

func TestUserinfoMultiValueClaims(t *testing.T) {
	fixture := newTestFixture(t, func(cfg *Config) { cfg.UserinfoEnabled = true })
	fixture.users.AddUser(store.MemoryUser{
		Subject: testSubject,
		Active:  true,
		Claims: map[string][]store.Claim{
			"profile": {
				{Type: "role", Value: "user"},
				{Type: "role", Value: "admin"},
			},
		},
	})
	token := userinfoToken(t, fixture, []string{"openid", "profile"})

	c, rec := getContext("https://idp.example.com/connect/userinfo")
	c.Request().Header.Set("Authorization", "Bearer "+token)
	if err := fixture.server.UserinfoEndpoint(c); err != nil {
		t.Fatalf("UserinfoEndpoint failed: %v", err)
	}

	var body map[string]any
	json.Unmarshal(rec.Body.Bytes(), &body)
	roles, ok := body["role"].([]any)
	if !ok || len(roles) != 2 {
		t.Errorf("role = %#v, want a two-element array", body["role"])
	}
}

func TestUserinfoMissingToken(t *testing.T) {
	fixture := newTestFixture(t, func(cfg *Config) { cfg.UserinfoEnabled = true })

	c, rec := getContext("https://idp.example.com/connect/userinfo")
	err := fixture.server.UserinfoEndpoint(c)

	typed, ok := err.(*Error)
	if !ok || typed.HttpStatus != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", err)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("WWW-Authenticate header missing")
	}
}

func TestUserinfoExpiredToken(t *testing.T) {
	fixture := newTestFixture(t, func(cfg *Config) { cfg.UserinfoEnabled = true })

	raw, err := fixture.server.issueAccessToken(context.Background(), testClientID, time.Now().Add(-time.Minute), []string{"openid"}, testSubject)
	if err != nil {
		t.Fatalf("issueAccessToken failed: %v", err)
	}

	c, _ := getContext("https://idp.example.com/connect/userinfo")
	c.Request().Header.Set("Authorization", "Bearer "+raw)
	respErr := fixture.server.UserinfoEndpoint(c)

	typed, ok := respErr.(*Error)
	if !ok || typed.HttpStatus != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", respErr)
	}
}

func TestUserinfoTokenWithoutOpenIDScope(t *testing.T) {
	fixture := newTestFixture(t, func(cfg *Config) { cfg.UserinfoEnabled = true })
	token := userinfoToken(t, fixture, []string{"api.read"})

	c, _ := getContext("https://idp.example.com/connect/userinfo")
	c.Request().Header.Set("Authorization", "Bearer "+token)
	respErr := fixture.server.UserinfoEndpoint(c)

	typed, ok := respErr.(*Error)
	if !ok || typed.HttpStatus != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %v", respErr)
	}
}
