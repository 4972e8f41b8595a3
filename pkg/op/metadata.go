package op

import (
	"fmt"
	"net/url"
	"strings"
)

// Metadata is the OpenID Connect discovery document.
// See https://openid.net/specs/openid-connect-discovery-1_0.html
type Metadata struct {
	Issuer                            string   `json:"issuer"`
	JwksURI                           string   `json:"jwks_uri"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint,omitempty"`
	CheckSessionIframe                string   `json:"check_session_iframe,omitempty"`
	EndSessionEndpoint                string   `json:"end_session_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint,omitempty"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ClaimsSupported                   []string `json:"claims_supported"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	ResponseModesSupported            []string `json:"response_modes_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	RequestParameterSupported         bool     `json:"request_parameter_supported"`
}

func buildMetadata(cfg *Config) *Metadata {
	// endpoint paths already carry the issuer base path, so they are
	// joined onto the issuer origin rather than the full issuer
	origin := issuerOrigin(cfg.Issuer)

	m := &Metadata{
		Issuer:             cfg.Issuer,
		JwksURI:            buildURI(origin, cfg.Endpoints.Jwks),
		EndSessionEndpoint: buildURI(origin, cfg.Endpoints.EndSession),
		TokenEndpoint:      buildURI(origin, cfg.Endpoints.Token),
		GrantTypesSupported: []string{
			string(GrantTypeAuthorizationCode),
			string(GrantTypeClientCredentials),
			string(GrantTypeRefreshToken),
		},
		TokenEndpointAuthMethodsSupported: []string{"client_secret_basic", "client_secret_post"},
		ScopesSupported:                   cfg.ScopesSupported,
		ClaimsSupported:                   cfg.ClaimsSupported,
		ResponseTypesSupported:            []string{ResponseTypeCode},
		ResponseModesSupported:            []string{ResponseModeQuery, ResponseModeFormPost},
		CodeChallengeMethodsSupported:     []string{CodeChallengeMethodS256},
		IDTokenSigningAlgValuesSupported:  []string{"RS256"},
		SubjectTypesSupported:             []string{"public"},
		RequestParameterSupported:         false,
	}

	m.AuthorizationEndpoint = buildURI(origin, cfg.Endpoints.Authorization)
	if cfg.CheckSessionEnabled {
		m.CheckSessionIframe = buildURI(origin, cfg.Endpoints.CheckSession)
	}
	if cfg.UserinfoEnabled {
		m.UserinfoEndpoint = buildURI(origin, cfg.Endpoints.Userinfo)
	}
	return m
}

func issuerOrigin(issuer string) string {
	u, err := url.Parse(issuer)
	if err != nil || u.Host == "" {
		return strings.TrimRight(issuer, "/")
	}
	return u.Scheme + "://" + u.Host
}

func buildURI(base string, paths ...string) string {
	result := strings.TrimRight(base, "/")
	for _, p := range paths {
		if p == "" {
			continue
		}
		result = fmt.Sprintf("%s/%s", result, strings.Trim(p, "/"))
	}
	return result
}
