package op

import (
	"testing"
)

func TestBuildMetadata(t *testing.T) {
	fixture := newTestFixture(t, func(cfg *Config) {
		cfg.CheckSessionEnabled = true
		cfg.UserinfoEnabled = true
	})
	m := fixture.server.Metadata()

	if m.Issuer != testIssuer {
		t.Errorf("issuer = %q", m.Issuer)
	}
	if m.AuthorizationEndpoint != testIssuer+"/connect/authorize" {
		t.Errorf("authorization_endpoint = %q", m.AuthorizationEndpoint)
	}
	if m.TokenEndpoint != testIssuer+"/connect/token" {
		t.Errorf("token_endpoint = %q", m.TokenEndpoint)
	}
	if m.JwksURI != testIssuer+"/connect/jwks" {
		t.Errorf("jwks_uri = %q", m.JwksURI)
	}
	if m.CheckSessionIframe != testIssuer+"/connect/checksession" {
		t.Errorf("check_session_iframe = %q", m.CheckSessionIframe)
	}
	if m.UserinfoEndpoint != testIssuer+"/connect/userinfo" {
		t.Errorf("userinfo_endpoint = %q", m.UserinfoEndpoint)
	}
	if len(m.ResponseTypesSupported) != 1 || m.ResponseTypesSupported[0] != "code" {
		t.Errorf("response_types_supported = %v", m.ResponseTypesSupported)
	}
	if m.RequestParameterSupported {
		t.Error("request objects are not supported")
	}
}

func TestBuildMetadataOptionalEndpointsOmitted(t *testing.T) {
	fixture := newTestFixture(t, nil)
	m := fixture.server.Metadata()

	if m.CheckSessionIframe != "" {
		t.Errorf("check_session_iframe = %q, want omitted", m.CheckSessionIframe)
	}
	if m.UserinfoEndpoint != "" {
		t.Errorf("userinfo_endpoint = %q, want omitted", m.UserinfoEndpoint)
	}
}

func TestBuildMetadataIssuerWithBasePath(t *testing.T) {
	cfg := &Config{Issuer: "https://idp.example.com/tenant-a"}
	if err := cfg.applyDefaults(); err != nil {
		t.Fatalf("applyDefaults failed: %v", err)
	}

	m := buildMetadata(cfg)
	want := "https://idp.example.com/tenant-a/connect/token"
	if m.TokenEndpoint != want {
		t.Errorf("token_endpoint = %q, want %q", m.TokenEndpoint, want)
	}
}
