package op

import (
	"strings"
	"time"

	"github.com/idport/idport/pkg/store"
)

const (
	GrantTypeAuthorizationCode = store.GrantTypeAuthorizationCode
	GrantTypeClientCredentials = store.GrantTypeClientCredentials
	GrantTypeRefreshToken      = store.GrantTypeRefreshToken

	ResponseTypeCode = "code"

	CodeChallengeMethodS256 = "S256"

	PromptNone          = "none"
	PromptLogin         = "login"
	PromptConsent       = "consent"
	PromptSelectAccount = "select_account"

	ResponseModeQuery    = "query"
	ResponseModeFragment = "fragment"
	ResponseModeFormPost = "form_post"

	ScopeOpenID        = "openid"
	ScopeOfflineAccess = "offline_access"
	ScopeProfile       = "profile"
	ScopeEmail         = "email"
	ScopeAddress       = "address"
	ScopePhone         = "phone"
)

// AuthorizationRequest is a pending or completed /authorize call. It is
// serialized as JSON into the Content of an authorization StoredCode.
// Claims holds the snapshot taken from the authenticated principal at
// code-issuance time; the id_token is built from that snapshot without
// touching the user store again.
type AuthorizationRequest struct {
	ClientID            string        `json:"client_id"`
	RedirectURI         string        `json:"redirect_uri"`
	ResponseType        string        `json:"response_type"`
	Scope               string        `json:"scope"`
	State               string        `json:"state,omitempty"`
	Nonce               string        `json:"nonce,omitempty"`
	Prompt              string        `json:"prompt,omitempty"`
	MaxAge              *int          `json:"max_age,omitempty"`
	IDTokenHint         string        `json:"id_token_hint,omitempty"`
	CodeChallenge       string        `json:"code_challenge,omitempty"`
	CodeChallengeMethod string        `json:"code_challenge_method,omitempty"`
	ResponseMode        string        `json:"response_mode,omitempty"`
	SessionState        string        `json:"session_state,omitempty"`
	SessionExpiry       time.Time     `json:"session_expiry,omitempty"`
	Claims              []store.Claim `json:"claims,omitempty"`
}

// Scopes splits the space-delimited scope string.
func (r *AuthorizationRequest) Scopes() []string {
	return strings.Fields(r.Scope)
}

func (r *AuthorizationRequest) HasScope(scope string) bool {
	for _, s := range r.Scopes() {
		if s == scope {
			return true
		}
	}
	return false
}

// ClaimValue returns the first snapshot claim of the given type.
func (r *AuthorizationRequest) ClaimValue(claimType string) string {
	for _, claim := range r.Claims {
		if claim.Type == claimType {
			return claim.Value
		}
	}
	return ""
}

// ClaimValues returns all snapshot claims of the given type.
func (r *AuthorizationRequest) ClaimValues(claimType string) []string {
	var values []string
	for _, claim := range r.Claims {
		if claim.Type == claimType {
			values = append(values, claim.Value)
		}
	}
	return values
}

// LogoutRequest is the payload of a logout StoredCode.
type LogoutRequest struct {
	PostLogoutRedirectURI string `json:"post_logout_redirect_uri,omitempty"`
	State                 string `json:"state,omitempty"`
	Subject               string `json:"subject"`
}

// RefreshTokenRequest is the payload of a refresh-token StoredCode. The
// granted scopes are joined by commas. Consumed and replaced on every
// successful refresh.
type RefreshTokenRequest struct {
	ClientID      string    `json:"client_id"`
	Scope         string    `json:"scope"`
	SessionExpiry time.Time `json:"session_expiry"`
}

func (r *RefreshTokenRequest) Scopes() []string {
	if r.Scope == "" {
		return nil
	}
	return strings.Split(r.Scope, ",")
}

// TokenResponse is the token endpoint's success body.
type TokenResponse struct {
	AccessToken  string `json:"access_token,omitempty"`
	ExpiresIn    int    `json:"expires_in"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	SessionState string `json:"session_state,omitempty"`
	TokenType    string `json:"token_type"`
}
