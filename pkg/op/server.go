package op

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lestrrat-go/jwx/v2/jwk"

	"github.com/idport/idport/pkg/signing"
	"github.com/idport/idport/pkg/store"
)

// Stores bundles the external collaborators the provider reads from and
// writes to. Certificates is optional; everything else is required.
type Stores struct {
	Clients      store.ClientStore
	Codes        store.CodeStore
	Users        store.UserStore
	Resources    store.ResourceStore
	Certificates signing.CertificateStore
}

// Server is the OpenID Connect provider core: the authorization, token,
// end-session, discovery, JWKS, check-session and userinfo endpoints.
type Server struct {
	config    *Config
	clients   store.ClientStore
	codes     store.CodeStore
	users     store.UserStore
	resources store.ResourceStore
	resolver  *signing.Resolver
	sessions  SessionReader
	metadata  *Metadata
	now       func() time.Time
}

func New(cfg *Config, stores Stores, sessions SessionReader) (*Server, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if stores.Clients == nil || stores.Codes == nil || stores.Users == nil || stores.Resources == nil {
		return nil, fmt.Errorf("client, code, user and resource stores are required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session reader is required")
	}

	staticKeys := make([]*signing.Key, 0, len(cfg.SigningCertificates))
	for _, sc := range cfg.SigningCertificates {
		key, err := signing.LoadKeyFromPEM(sc.CertificatePath, sc.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("load signing certificate: %w", err)
		}
		staticKeys = append(staticKeys, key)
	}
	if len(staticKeys) == 0 && stores.Certificates == nil {
		key, err := signing.GenerateKey("idport ephemeral", time.Now(), time.Now().Add(365*24*time.Hour))
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral signing key: %w", err)
		}
		slog.Warn("no signing certificates configured, using an ephemeral key; issued tokens will not survive a restart")
		staticKeys = append(staticKeys, key)
	}

	return &Server{
		config:    cfg,
		clients:   stores.Clients,
		codes:     stores.Codes,
		users:     stores.Users,
		resources: stores.Resources,
		resolver:  signing.NewResolver(staticKeys, stores.Certificates, cfg.KeyCacheLifetime.Std()),
		sessions:  sessions,
		metadata:  buildMetadata(cfg),
		now:       time.Now,
	}, nil
}

func (s *Server) MountRoutes(group *echo.Group) {
	group.Use(
		middleware.Logger(),
		s.errorHandler,
	)

	group.GET(s.config.Endpoints.Discovery, s.DiscoveryEndpoint)
	group.GET(s.config.Endpoints.Jwks, s.JWKSEndpoint)
	group.GET(s.config.Endpoints.Authorization, s.AuthorizationEndpoint)
	group.POST(s.config.Endpoints.Authorization, s.AuthorizationEndpoint)
	group.POST(s.config.Endpoints.Token, s.TokenEndpoint)
	group.GET(s.config.Endpoints.EndSession, s.EndSessionEndpoint)
	group.POST(s.config.Endpoints.EndSession, s.EndSessionEndpoint)

	if s.config.CheckSessionEnabled {
		group.GET(s.config.Endpoints.CheckSession, s.CheckSessionEndpoint)
	}
	if s.config.UserinfoEnabled {
		group.GET(s.config.Endpoints.Userinfo, s.UserinfoEndpoint)
		group.POST(s.config.Endpoints.Userinfo, s.UserinfoEndpoint)
	}
}

func (s *Server) DiscoveryEndpoint(c echo.Context) error {
	return c.JSON(http.StatusOK, s.metadata)
}

func (s *Server) JWKSEndpoint(c echo.Context) error {
	keys, err := s.resolver.Keys(c.Request().Context())
	if err != nil {
		return internalError("resolve signing keys: %v", err)
	}

	set := jwk.NewSet()
	for _, key := range keys {
		set.AddKey(key.PublicJWK())
	}
	return c.JSON(http.StatusOK, set)
}

// Metadata returns the discovery document served by the provider.
func (s *Server) Metadata() *Metadata {
	return s.metadata
}
