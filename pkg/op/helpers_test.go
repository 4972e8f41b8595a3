package op

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/idport/idport/pkg/signing"
	"github.com/idport/idport/pkg/store"
)

const (
	testIssuer      = "https://idp.example.com"
	testClientID    = "web-app"
	testRedirectURI = "https://app.example.com/callback"
	testSubject     = "alice"
)

var (
	testKeyOnce sync.Once
	testKeyVal  *signing.Key
)

// testKey generates one RSA signing key for the whole test run.
func testKey(t *testing.T) *signing.Key {
	t.Helper()
	testKeyOnce.Do(func() {
		key, err := signing.GenerateKey("test", time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
		if err != nil {
			t.Fatalf("Failed to generate signing key: %v", err)
		}
		testKeyVal = key
	})
	if testKeyVal == nil {
		t.Fatal("signing key generation failed in an earlier test")
	}
	return testKeyVal
}

type emptyCertificateStore struct{}

func (emptyCertificateStore) SigningCertificates(ctx context.Context) ([]signing.Certificate, error) {
	return nil, nil
}

type fakeSessions struct {
	session *UserSession
	err     error
}

func (f *fakeSessions) ActiveSession(c echo.Context) (*UserSession, error) {
	return f.session, f.err
}

type testFixture struct {
	server   *Server
	codes    *store.MemoryCodeStore
	users    *store.MemoryUserStore
	sessions *fakeSessions
}

func testClient() store.Client {
	return store.Client{
		ClientID: testClientID,
		GrantTypes: []store.GrantType{
			store.GrantTypeAuthorizationCode,
			store.GrantTypeRefreshToken,
		},
		Scopes:                 []string{"openid", "profile", "email", "offline_access", "api.read"},
		RedirectURIs:           []string{testRedirectURI},
		PostLogoutRedirectURIs: []string{"https://app.example.com/signed-out"},
		AccessTokenLifetime:    time.Hour,
		IdentityTokenLifetime:  5 * time.Minute,
	}
}

func newTestFixture(t *testing.T, mutate func(*Config), clients ...store.Client) *testFixture {
	t.Helper()

	if len(clients) == 0 {
		clients = []store.Client{testClient()}
	}

	cfg := &Config{
		Issuer:          testIssuer,
		ScopesSupported: []string{"openid", "profile", "email", "offline_access", "api.read"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	codes := store.NewMemoryCodeStore()
	users := store.NewMemoryUserStore()
	users.AddUser(store.MemoryUser{
		Subject: testSubject,
		Active:  true,
		Claims: map[string][]store.Claim{
			"profile": {{Type: "name", Value: "Alice Example"}},
			"email":   {{Type: "email", Value: "alice@example.com"}},
		},
	})
	sessions := &fakeSessions{}

	server, err := New(cfg, Stores{
		Clients: store.NewStaticClientStore(clients),
		Codes:   codes,
		Users:   users,
		Resources: store.NewStaticResourceStore(map[string][]string{
			"api.read": {"https://api.example.com"},
		}),
		Certificates: emptyCertificateStore{},
	}, sessions)
	if err != nil {
		t.Fatalf("Failed to create test server: %v", err)
	}
	server.resolver = signing.NewResolver([]*signing.Key{testKey(t)}, nil, 0)

	return &testFixture{
		server:   server,
		codes:    codes,
		users:    users,
		sessions: sessions,
	}
}

func (f *testFixture) withSession(expiresIn time.Duration) *UserSession {
	session := &UserSession{
		Subject:   testSubject,
		SessionID: "session-1",
		AuthTime:  time.Now().Add(-time.Minute),
		ExpiresAt: time.Now().Add(expiresIn),
		Claims: []store.Claim{
			{Type: ClaimIdentityProvider, Value: "local"},
			{Type: ClaimAmr, Value: "pwd"},
			{Type: ClaimRole, Value: "user"},
		},
	}
	f.sessions.session = session
	return session
}

func getContext(target string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func postFormContext(target string, form url.Values) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

func authorizeParams() url.Values {
	params := url.Values{}
	params.Set("client_id", testClientID)
	params.Set("redirect_uri", testRedirectURI)
	params.Set("response_type", "code")
	params.Set("scope", "openid profile")
	params.Set("state", "xyz")
	return params
}

const testCodeVerifier = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"

func challengeFor(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}
