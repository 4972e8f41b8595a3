package op

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strings"
	"testing"
	"time"
)

func TestComputeSessionStateRecomputable(t *testing.T) {
	sessionState := computeSessionState(testClientID, "https://app.example.com", "session-1")

	parts := strings.SplitN(sessionState, ".", 2)
	if len(parts) != 2 || parts[1] == "" {
		t.Fatalf("session_state %q is missing the salt", sessionState)
	}
	salt := parts[1]

	hash := sha256.Sum256([]byte(testClientID + "https://app.example.com" + "session-1" + salt))
	want := base64.RawURLEncoding.EncodeToString(hash[:]) + "." + salt
	if sessionState != want {
		t.Errorf("session_state not recomputable from its inputs")
	}
}

func TestComputeSessionStateChangesWithSession(t *testing.T) {
	first := computeSessionState(testClientID, "https://app.example.com", "session-1")
	salt := strings.SplitN(first, ".", 2)[1]

	hash := sha256.Sum256([]byte(testClientID + "https://app.example.com" + "session-2" + salt))
	other := base64.RawURLEncoding.EncodeToString(hash[:]) + "." + salt
	if first == other {
		t.Error("different sessions produced the same session_state")
	}
}

func TestOriginOf(t *testing.T) {
	tests := []struct {
		uri  string
		want string
	}{
		{"https://app.example.com/callback", "https://app.example.com"},
		{"https://app.example.com:8443/cb?x=1", "https://app.example.com:8443"},
		{"not a uri", "not a uri"},
	}
	for _, tt := range tests {
		if got := originOf(tt.uri); got != tt.want {
			t.Errorf("originOf(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}

func TestCheckSessionEndpointServesIframe(t *testing.T) {
	fixture := newTestFixture(t, func(cfg *Config) { cfg.CheckSessionEnabled = true })

	c, rec := getContext("https://idp.example.com/connect/checksession")
	if err := fixture.server.CheckSessionEndpoint(c); err != nil {
		t.Fatalf("CheckSessionEndpoint failed: %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, CheckSessionCookieName) {
		t.Error("iframe document must read the check-session cookie")
	}
	if !strings.Contains(body, "postMessage") {
		t.Error("iframe document must answer via postMessage")
	}
}

func TestEnsureCheckSessionCookieSkipsMatching(t *testing.T) {
	fixture := newTestFixture(t, func(cfg *Config) { cfg.CheckSessionEnabled = true })
	session := fixture.withSession(time.Hour)

	c, rec := getContext("https://idp.example.com/connect/authorize")
	c.Request().AddCookie(&http.Cookie{Name: CheckSessionCookieName, Value: session.SessionID})

	fixture.server.ensureCheckSessionCookie(c, session)
	if len(rec.Result().Cookies()) != 0 {
		t.Error("cookie rewritten although it already matches")
	}

	c2, rec2 := getContext("https://idp.example.com/connect/authorize")
	fixture.server.ensureCheckSessionCookie(c2, session)
	if len(rec2.Result().Cookies()) != 1 {
		t.Error("cookie not set for a fresh user agent")
	}
}
