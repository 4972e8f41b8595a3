package op

import (
	"fmt"
	"net/url"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/idport/idport/pkg/signing"
	"github.com/idport/idport/pkg/store"
)

const (
	DefaultAuthorizationCodeLifetime = 5 * time.Minute
	DefaultLogoutCodeLifetime        = 5 * time.Minute
	DefaultMinimumSessionLifetime    = 1 * time.Minute
)

// Duration parses "5m"-style strings from YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration '%s': %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type Config struct {
	Issuer              string          `yaml:"issuer" validate:"required,url"`
	Endpoints           EndpointsConfig `yaml:"endpoints"`
	Pages               PagesConfig     `yaml:"pages"`
	ScopesSupported     []string        `yaml:"scopes_supported"`
	ClaimsSupported     []string        `yaml:"claims_supported"`
	RequirePKCE         bool            `yaml:"require_pkce"`
	UserinfoEnabled     bool            `yaml:"userinfo_enabled"`
	CheckSessionEnabled bool            `yaml:"check_session_enabled"`

	AuthorizationCodeLifetime Duration `yaml:"authorization_code_lifetime"`
	LogoutCodeLifetime        Duration `yaml:"logout_code_lifetime"`
	MinimumSessionLifetime    Duration `yaml:"minimum_session_lifetime"`
	KeyCacheLifetime          Duration `yaml:"key_cache_lifetime"`

	SigningCertificates []SigningCertificateConfig `yaml:"signing_certificates" validate:"omitempty,dive"`
	Clients             []ClientConfig             `yaml:"clients" validate:"omitempty,dive"`

	// Resources maps scopes to the audiences of the APIs exposing them.
	Resources map[string][]string `yaml:"resources"`
	Users     []UserConfig        `yaml:"users" validate:"omitempty,dive"`

	// invalid tokens are routine traffic; log them at Info unless asked
	LogInvalidTokensAsError bool `yaml:"log_invalid_tokens_as_error"`

	Valkey   *ValkeyConfig   `yaml:"valkey"`
	Postgres *PostgresConfig `yaml:"postgres"`
}

type SigningCertificateConfig struct {
	CertificatePath string `yaml:"certificate_path" validate:"required"`
	PrivateKeyPath  string `yaml:"private_key_path" validate:"required"`
}

type ClientConfig struct {
	store.Client          `yaml:",inline"`
	AccessTokenLifetime   Duration `yaml:"access_token_lifetime"`
	IdentityTokenLifetime Duration `yaml:"identity_token_lifetime"`
}

// UserConfig declares a user for the in-memory user store, with claims
// grouped by the scope that releases them.
type UserConfig struct {
	Subject string                   `yaml:"subject" validate:"required"`
	Active  bool                     `yaml:"active"`
	Claims  map[string][]store.Claim `yaml:"claims"`
}

type ValkeyConfig struct {
	Address  string `yaml:"address" validate:"required"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn" validate:"required"`
}

type PagesConfig struct {
	Login  string `yaml:"login"`
	Logout string `yaml:"logout"`
	Error  string `yaml:"error"`
}

type EndpointsConfig struct {
	Authorization string `yaml:"authorization"`
	Token         string `yaml:"token"`
	EndSession    string `yaml:"end_session"`
	Discovery     string `yaml:"discovery"`
	Jwks          string `yaml:"jwks"`
	CheckSession  string `yaml:"check_session"`
	Userinfo      string `yaml:"userinfo"`
}

func (e *EndpointsConfig) applyDefaults(issuerURI *url.URL) {
	basePath := strings.TrimRight(issuerURI.Path, "/")
	if basePath == "/" {
		basePath = ""
	}

	if e.Authorization == "" {
		e.Authorization = basePath + "/connect/authorize"
	}
	if e.Token == "" {
		e.Token = basePath + "/connect/token"
	}
	if e.EndSession == "" {
		e.EndSession = basePath + "/connect/endsession"
	}
	if e.Discovery == "" {
		e.Discovery = basePath + "/.well-known/openid-configuration"
	}
	if e.Jwks == "" {
		e.Jwks = basePath + "/connect/jwks"
	}
	if e.CheckSession == "" {
		e.CheckSession = basePath + "/connect/checksession"
	}
	if e.Userinfo == "" {
		e.Userinfo = basePath + "/connect/userinfo"
	}
}

func (p *PagesConfig) applyDefaults(issuerURI *url.URL) {
	basePath := strings.TrimRight(issuerURI.Path, "/")
	if basePath == "/" {
		basePath = ""
	}

	if p.Login == "" {
		p.Login = basePath + "/account/login"
	}
	if p.Logout == "" {
		p.Logout = basePath + "/account/logout"
	}
	if p.Error == "" {
		p.Error = basePath + "/error"
	}
}

func (c *Config) applyDefaults() error {
	issuerURI, err := url.Parse(c.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URI: %w", err)
	}

	c.Endpoints.applyDefaults(issuerURI)
	c.Pages.applyDefaults(issuerURI)

	if c.AuthorizationCodeLifetime == 0 {
		c.AuthorizationCodeLifetime = Duration(DefaultAuthorizationCodeLifetime)
	}
	if c.LogoutCodeLifetime == 0 {
		c.LogoutCodeLifetime = Duration(DefaultLogoutCodeLifetime)
	}
	if c.MinimumSessionLifetime == 0 {
		c.MinimumSessionLifetime = Duration(DefaultMinimumSessionLifetime)
	}
	if c.KeyCacheLifetime == 0 {
		c.KeyCacheLifetime = Duration(signing.DefaultCacheLifetime)
	}
	return nil
}

// StoreClients converts the configured clients into store records with
// the lifetimes applied.
func (c *Config) StoreClients() []store.Client {
	clients := make([]store.Client, 0, len(c.Clients))
	for _, cc := range c.Clients {
		client := cc.Client
		client.AccessTokenLifetime = cc.AccessTokenLifetime.Std()
		client.IdentityTokenLifetime = cc.IdentityTokenLifetime.Std()
		if client.AccessTokenLifetime == 0 {
			client.AccessTokenLifetime = time.Hour
		}
		if client.IdentityTokenLifetime == 0 {
			client.IdentityTokenLifetime = 5 * time.Minute
		}
		clients = append(clients, client)
	}
	return clients
}

// MemoryUsers converts the configured users into in-memory store records.
func (c *Config) MemoryUsers() []store.MemoryUser {
	users := make([]store.MemoryUser, 0, len(c.Users))
	for _, uc := range c.Users {
		users = append(users, store.MemoryUser{
			Subject: uc.Subject,
			Active:  uc.Active,
			Claims:  uc.Claims,
		})
	}
	return users
}

// LoadConfig reads and validates a YAML configuration file.
func LoadConfig(filename string) (*Config, error) {
	cfg := new(Config)
	yamlFile, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file '%s': %w", filename, err)
	}
	if err := yaml.Unmarshal(yamlFile, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config file '%s': %w", filename, err)
	}

	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("yaml")
	})
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config file '%s': %w", filename, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}
