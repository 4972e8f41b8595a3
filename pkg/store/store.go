package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrCodeNotFound   = errors.New("code not found")
	ErrUserNotFound   = errors.New("user not found")
)

type GrantType string

const (
	GrantTypeAuthorizationCode GrantType = "authorization_code"
	GrantTypeClientCredentials GrantType = "client_credentials"
	GrantTypeRefreshToken      GrantType = "refresh_token"
)

// Client is the static per-client configuration. Instances are treated
// as immutable once handed out by a ClientStore.
type Client struct {
	ClientID               string        `yaml:"client_id" json:"client_id" validate:"required"`
	ClientSecretHash       string        `yaml:"client_secret_hash" json:"client_secret_hash"`
	ClientSecretRequired   bool          `yaml:"client_secret_required" json:"client_secret_required"`
	GrantTypes             []GrantType   `yaml:"grant_types" json:"grant_types"`
	Scopes                 []string      `yaml:"scopes" json:"scopes"`
	RedirectURIs           []string      `yaml:"redirect_uris" json:"redirect_uris"`
	PostLogoutRedirectURIs []string      `yaml:"post_logout_redirect_uris" json:"post_logout_redirect_uris"`
	AccessTokenLifetime    time.Duration `yaml:"-" json:"-"`
	IdentityTokenLifetime  time.Duration `yaml:"-" json:"-"`
}

func (c *Client) AllowsGrantType(grantType GrantType) bool {
	for _, g := range c.GrantTypes {
		if g == grantType {
			return true
		}
	}
	return false
}

// AllowsRedirectURI matches the registered redirect URIs exactly, but
// case-insensitively.
func (c *Client) AllowsRedirectURI(redirectURI string) bool {
	for _, uri := range c.RedirectURIs {
		if strings.EqualFold(uri, redirectURI) {
			return true
		}
	}
	return false
}

func (c *Client) AllowsScope(scope string) bool {
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func (c *Client) AllowsScopes(scopes []string) bool {
	for _, scope := range scopes {
		if !c.AllowsScope(scope) {
			return false
		}
	}
	return true
}

type CodeType string

const (
	CodeTypeAuthorization CodeType = "authorization_code"
	CodeTypeLogout        CodeType = "logout_code"
	CodeTypeRefreshToken  CodeType = "refresh_token"
)

// StoredCode is the envelope for an opaque one-time code. Content is
// the JSON-serialized payload whose shape depends on CodeType.
//
// ConsumeCount distinguishes "never existed" from "already used": a
// consumed code stays retrievable with ConsumeCount > 0 so the token
// endpoint can detect replay.
type StoredCode struct {
	Code         string    `json:"code"`
	CodeType     CodeType  `json:"code_type"`
	Content      []byte    `json:"content"`
	Issuer       string    `json:"issuer"`
	Subject      string    `json:"subject,omitempty"`
	Created      time.Time `json:"created"`
	Expiry       time.Time `json:"expiry"`
	ConsumeCount int       `json:"consume_count"`
}

func (c *StoredCode) Expired(now time.Time) bool {
	return now.After(c.Expiry)
}

// Claim is a single (type, value) pair captured from an authenticated
// principal or stored against a user.
type Claim struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type ClientStore interface {
	GetClient(ctx context.Context, clientID string) (*Client, error)
	IsCorrectClientSecret(ctx context.Context, clientID, clientSecret string) (bool, error)
	IsKnownPostLogoutRedirectURI(ctx context.Context, redirectURI string) (bool, error)
}

type CodeStore interface {
	SaveCode(ctx context.Context, code *StoredCode) error
	GetCode(ctx context.Context, code string, codeType CodeType, issuer string) (*StoredCode, error)
	ConsumeCode(ctx context.Context, code string, codeType CodeType, issuer string) error
	DeleteCode(ctx context.Context, code string, codeType CodeType, issuer string) error
}

type UserStore interface {
	IsUserActive(ctx context.Context, issuer, subject string) (bool, error)
	GetUserClaims(ctx context.Context, issuer, subject string, scopes []string) ([]Claim, error)
}

type ResourceStore interface {
	GetAudiences(ctx context.Context, scopes []string) ([]string, error)
}
