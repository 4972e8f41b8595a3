package op

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYAML = `
issuer: https://idp.example.com
require_pkce: true
userinfo_enabled: true
authorization_code_lifetime: 3m
scopes_supported:
  - openid
  - profile
resources:
  api.read:
    - https://api.example.com
clients:
  - client_id: web-app
    grant_types: [authorization_code, refresh_token]
    scopes: [openid, profile]
    redirect_uris: [https://app.example.com/callback]
    access_token_lifetime: 30m
users:
  - subject: alice
    active: true
    claims:
      profile:
        - type: name
          value: Alice Example
`

func writeTestConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idport.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeTestConfig(t, testConfigYAML))
	require.NoError(t, err)

	assert.True(t, cfg.RequirePKCE)
	assert.True(t, cfg.UserinfoEnabled)
	assert.Equal(t, 3*time.Minute, cfg.AuthorizationCodeLifetime.Std())
	assert.Equal(t, DefaultLogoutCodeLifetime, cfg.LogoutCodeLifetime.Std())
	assert.Equal(t, "/connect/token", cfg.Endpoints.Token)
	assert.Equal(t, "/account/login", cfg.Pages.Login)

	clients := cfg.StoreClients()
	require.Len(t, clients, 1)
	assert.Equal(t, 30*time.Minute, clients[0].AccessTokenLifetime)
	assert.Equal(t, 5*time.Minute, clients[0].IdentityTokenLifetime)

	users := cfg.MemoryUsers()
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Subject)
	require.NotEmpty(t, users[0].Claims["profile"])
	assert.Equal(t, "Alice Example", users[0].Claims["profile"][0].Value)
}

func TestLoadConfigRequiresIssuer(t *testing.T) {
	_, err := LoadConfig(writeTestConfig(t, "require_pkce: true\n"))
	assert.Error(t, err)
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	content := "issuer: https://idp.example.com\nauthorization_code_lifetime: soon\n"
	_, err := LoadConfig(writeTestConfig(t, content))
	assert.Error(t, err)
}

func TestEndpointDefaultsKeepIssuerBasePath(t *testing.T) {
	cfg := &Config{Issuer: "https://idp.example.com/tenant-a/"}
	require.NoError(t, cfg.applyDefaults())

	assert.Equal(t, "/tenant-a/connect/authorize", cfg.Endpoints.Authorization)
	assert.Equal(t, "/tenant-a/error", cfg.Pages.Error)
}
