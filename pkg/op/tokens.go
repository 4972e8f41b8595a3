package op

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/segmentio/ksuid"
)

// claimsByScope lists the standard claims each identity scope releases.
// Used to inline user claims into the id_token when the userinfo
// endpoint is disabled.
var claimsByScope = map[string][]string{
	ScopeProfile: {
		"name", "family_name", "given_name", "middle_name", "nickname",
		"preferred_username", "profile", "picture", "website", "gender",
		"birthdate", "zoneinfo", "locale", "updated_at",
	},
	ScopeEmail:   {"email", "email_verified"},
	ScopeAddress: {"address"},
	ScopePhone:   {"phone_number", "phone_number_verified"},
}

// issueAccessToken signs an access token for the given client, expiry
// and scopes. Audiences are resolved from the scopes via the resource
// store; subject is empty for the client credentials grant.
func (s *Server) issueAccessToken(ctx context.Context, clientID string, expiresAt time.Time, scopes []string, subject string) (string, error) {
	key, err := s.resolver.OptimalKey(ctx)
	if err != nil {
		return "", fmt.Errorf("select signing key: %w", err)
	}

	now := s.now()
	token := jwt.New()
	token.Set(jwt.IssuerKey, s.config.Issuer)
	token.Set(jwt.IssuedAtKey, now)
	token.Set(jwt.NotBeforeKey, now)
	token.Set(jwt.ExpirationKey, expiresAt)
	token.Set(jwt.JwtIDKey, ksuid.New().String())
	token.Set("client_id", clientID)
	if subject != "" {
		token.Set(jwt.SubjectKey, subject)
	}

	audiences, err := s.resources.GetAudiences(ctx, scopes)
	if err != nil {
		return "", fmt.Errorf("resolve audiences: %w", err)
	}
	if len(audiences) > 0 {
		token.Set(jwt.AudienceKey, audiences)
	}
	token.Set("scope", scopes)

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key.PrivateJWK()))
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return string(signed), nil
}

// issueIDToken signs an identity token from the claims snapshot on the
// authorization request. The token expires with the authentication
// session, not with the access token.
func (s *Server) issueIDToken(ctx context.Context, request *AuthorizationRequest, clientID, subject string) (string, error) {
	if request.SessionExpiry.IsZero() {
		return "", internalError("session expiry not set on authorization request")
	}

	key, err := s.resolver.OptimalKey(ctx)
	if err != nil {
		return "", internalError("select signing key: %v", err)
	}

	authTimeValue := request.ClaimValue(ClaimAuthTime)
	if authTimeValue == "" {
		return "", internalError("authorization request snapshot is missing auth_time")
	}
	authTime, err := strconv.ParseInt(authTimeValue, 10, 64)
	if err != nil {
		return "", internalError("invalid auth_time claim: %v", err)
	}

	now := s.now()
	token := jwt.New()
	token.Set(jwt.IssuerKey, s.config.Issuer)
	token.Set(jwt.IssuedAtKey, now)
	token.Set(jwt.NotBeforeKey, now)
	token.Set(jwt.ExpirationKey, request.SessionExpiry)
	token.Set(jwt.AudienceKey, clientID)
	token.Set(jwt.SubjectKey, subject)
	token.Set(ClaimAuthTime, authTime)

	if request.Nonce != "" {
		token.Set("nonce", request.Nonce)
	}
	if idp := request.ClaimValue(ClaimIdentityProvider); idp != "" {
		token.Set(ClaimIdentityProvider, idp)
	}
	if sid := request.ClaimValue(ClaimSessionID); sid != "" {
		token.Set(ClaimSessionID, sid)
	}

	// multi-value claims are arrays even with a single value; consumers
	// expect array-typed amr and role
	if amr := request.ClaimValues(ClaimAmr); len(amr) > 0 {
		token.Set(ClaimAmr, amr)
	}
	if roles := request.ClaimValues(ClaimRole); len(roles) > 0 {
		token.Set(ClaimRole, roles)
	}

	// with the userinfo endpoint disabled, the standard claims go
	// straight into the id_token; otherwise they are left for userinfo
	if !s.config.UserinfoEnabled {
		s.inlineScopedClaims(token, request)
	}

	signed, err := jwt.Sign(token, jwt.WithKey(jwa.RS256, key.PrivateJWK()))
	if err != nil {
		return "", fmt.Errorf("sign id token: %w", err)
	}
	return string(signed), nil
}

func (s *Server) inlineScopedClaims(token jwt.Token, request *AuthorizationRequest) {
	for _, scope := range request.Scopes() {
		for _, claimType := range claimsByScope[scope] {
			values := request.ClaimValues(claimType)
			switch len(values) {
			case 0:
			case 1:
				token.Set(claimType, values[0])
			default:
				token.Set(claimType, values)
			}
		}
	}
}

// issueRefreshToken persists a new refresh-token code bound to the
// authentication session expiry and returns the opaque code.
func (s *Server) issueRefreshToken(ctx context.Context, clientID string, scopes []string, sessionExpiry time.Time, subject string) (string, error) {
	request := RefreshTokenRequest{
		ClientID:      clientID,
		Scope:         joinScopes(scopes),
		SessionExpiry: sessionExpiry,
	}
	return s.saveCodeFor(ctx, storeCodeParams{
		codeType: CodeTypeRefreshToken,
		payload:  request,
		subject:  subject,
		expiry:   sessionExpiry,
	})
}
