package op

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/idport/idport/pkg/store"
)

// form fields accepted per grant; anything else is rejected
var (
	authorizationCodeFields = []string{"grant_type", "code", "redirect_uri", "client_id", "client_secret", "code_verifier"}
	clientCredentialsFields = []string{"grant_type", "scope", "client_id", "client_secret"}
	refreshTokenFields      = []string{"grant_type", "refresh_token", "scope", "client_id", "client_secret"}
)

// TokenEndpoint handles POST /connect/token, dispatching on grant_type.
func (s *Server) TokenEndpoint(c echo.Context) error {
	request := c.Request()

	if request.Method != http.MethodPost {
		return badRequest(ErrorCodeInvalidRequest, "method not allowed")
	}
	contentType := request.Header.Get(echo.HeaderContentType)
	if !strings.HasPrefix(contentType, echo.MIMEApplicationForm) {
		return badRequest(ErrorCodeInvalidRequest, "invalid content type: %s", contentType)
	}
	if err := request.ParseForm(); err != nil {
		return badRequest(ErrorCodeInvalidRequest, "unable to parse form: %v", err)
	}

	grantType := request.FormValue("grant_type")
	if grantType == "" {
		return badRequest(ErrorCodeInvalidRequest, "missing grant_type")
	}

	switch store.GrantType(grantType) {
	case GrantTypeAuthorizationCode:
		return s.exchangeAuthorizationCode(c)
	case GrantTypeClientCredentials:
		return s.clientCredentialsGrant(c)
	case GrantTypeRefreshToken:
		return s.refreshTokenGrant(c)
	default:
		return badRequest(ErrorCodeUnsupportedGrantType, "unsupported grant type: %s", grantType)
	}
}

func validateFormFields(form url.Values, allowed []string) *Error {
	for field := range form {
		known := false
		for _, a := range allowed {
			if field == a {
				known = true
				break
			}
		}
		if !known {
			return badRequest(ErrorCodeInvalidRequest, "unexpected parameter: %s", field)
		}
	}
	return nil
}

func (s *Server) exchangeAuthorizationCode(c echo.Context) error {
	ctx := c.Request().Context()
	now := s.now()

	if err := validateFormFields(c.Request().Form, authorizationCodeFields); err != nil {
		return err
	}

	client, authErr := s.authenticateClient(c)
	if authErr != nil {
		return authErr
	}
	if !client.AllowsGrantType(store.GrantTypeAuthorizationCode) {
		return badRequest(ErrorCodeUnauthorizedClient, "client does not allow the authorization code grant")
	}

	code := c.FormValue("code")
	if code == "" {
		return badRequest(ErrorCodeInvalidRequest, "missing code")
	}

	storedCode, err := s.codes.GetCode(ctx, code, CodeTypeAuthorization, s.config.Issuer)
	if err != nil {
		if errors.Is(err, store.ErrCodeNotFound) {
			return badRequest(ErrorCodeInvalidRequest, "unknown authorization code")
		}
		return internalError("get authorization code: %v", err)
	}
	// a consumed code resurfacing is a replay, not an unknown code
	if storedCode.ConsumeCount > 0 {
		return badRequest(ErrorCodeInvalidGrant, "authorization code already consumed")
	}
	if storedCode.Expired(now) {
		return badRequest(ErrorCodeInvalidRequest, "authorization code expired")
	}

	var authRequest AuthorizationRequest
	if err := json.Unmarshal(storedCode.Content, &authRequest); err != nil {
		return internalError("unmarshal authorization request: %v", err)
	}

	if authRequest.ClientID != client.ClientID {
		return badRequest(ErrorCodeInvalidGrant, "authorization code was issued to another client")
	}
	if c.FormValue("redirect_uri") != authRequest.RedirectURI {
		return badRequest(ErrorCodeInvalidRequest, "redirect_uri mismatch")
	}

	if err := verifyCodeChallenge(c.FormValue("code_verifier"), authRequest.CodeChallenge, s.config.RequirePKCE); err != nil {
		return err
	}

	active, err := s.users.IsUserActive(ctx, s.config.Issuer, storedCode.Subject)
	if err != nil {
		return internalError("check user state: %v", err)
	}
	if !active {
		return badRequest(ErrorCodeInvalidGrant, "user is no longer active")
	}

	if err := s.codes.ConsumeCode(ctx, code, CodeTypeAuthorization, s.config.Issuer); err != nil {
		return internalError("consume authorization code: %v", err)
	}

	expiresAt := accessTokenExpiry(now, client.AccessTokenLifetime, authRequest.SessionExpiry)

	accessToken, err := s.issueAccessToken(ctx, client.ClientID, expiresAt, authRequest.Scopes(), storedCode.Subject)
	if err != nil {
		return asEndpointError(err)
	}
	idToken, err := s.issueIDToken(ctx, &authRequest, client.ClientID, storedCode.Subject)
	if err != nil {
		return asEndpointError(err)
	}

	var refreshToken string
	if authRequest.HasScope(ScopeOfflineAccess) {
		refreshToken, err = s.issueRefreshToken(ctx, client.ClientID, authRequest.Scopes(), authRequest.SessionExpiry, storedCode.Subject)
		if err != nil {
			return asEndpointError(err)
		}
	}

	return c.JSON(http.StatusOK, &TokenResponse{
		AccessToken:  accessToken,
		ExpiresIn:    int(expiresAt.Sub(now).Seconds()),
		IDToken:      idToken,
		RefreshToken: refreshToken,
		SessionState: authRequest.SessionState,
		TokenType:    "Bearer",
	})
}

func (s *Server) clientCredentialsGrant(c echo.Context) error {
	ctx := c.Request().Context()
	now := s.now()

	if err := validateFormFields(c.Request().Form, clientCredentialsFields); err != nil {
		return err
	}

	client, authErr := s.authenticateClient(c)
	if authErr != nil {
		return authErr
	}
	if !client.AllowsGrantType(store.GrantTypeClientCredentials) {
		return badRequest(ErrorCodeUnauthorizedClient, "client does not allow the client credentials grant")
	}
	if len(client.Scopes) == 0 {
		return badRequest(ErrorCodeUnauthorizedClient, "client has no scopes configured")
	}

	scopes := strings.Fields(c.FormValue("scope"))
	if len(scopes) == 0 {
		scopes = client.Scopes
	} else if !client.AllowsScopes(scopes) {
		return badRequest(ErrorCodeInvalidScope, "scope not allowed: %s", c.FormValue("scope"))
	}

	expiresAt := now.Add(client.AccessTokenLifetime)
	accessToken, err := s.issueAccessToken(ctx, client.ClientID, expiresAt, scopes, "")
	if err != nil {
		return asEndpointError(err)
	}

	return c.JSON(http.StatusOK, &TokenResponse{
		AccessToken: accessToken,
		ExpiresIn:   int(expiresAt.Sub(now).Seconds()),
		TokenType:   "Bearer",
	})
}

func (s *Server) refreshTokenGrant(c echo.Context) error {
	ctx := c.Request().Context()
	now := s.now()

	if err := validateFormFields(c.Request().Form, refreshTokenFields); err != nil {
		return err
	}

	if c.FormValue("client_id") == "" && c.Request().Header.Get("Authorization") == "" {
		return badRequest(ErrorCodeInvalidRequest, "missing client_id")
	}

	client, authErr := s.authenticateClient(c)
	if authErr != nil {
		return authErr
	}
	if !client.AllowsGrantType(store.GrantTypeRefreshToken) {
		return badRequest(ErrorCodeUnauthorizedClient, "client does not allow the refresh token grant")
	}

	refreshToken := c.FormValue("refresh_token")
	if refreshToken == "" {
		return badRequest(ErrorCodeInvalidRequest, "missing refresh_token")
	}

	storedCode, err := s.codes.GetCode(ctx, refreshToken, CodeTypeRefreshToken, s.config.Issuer)
	if err != nil {
		if errors.Is(err, store.ErrCodeNotFound) {
			return badRequest(ErrorCodeInvalidRequest, "unknown refresh token")
		}
		return internalError("get refresh token: %v", err)
	}
	if storedCode.Expired(now) {
		s.codes.DeleteCode(ctx, refreshToken, CodeTypeRefreshToken, s.config.Issuer)
		return badRequest(ErrorCodeInvalidRequest, "refresh token expired")
	}

	var refreshRequest RefreshTokenRequest
	if err := json.Unmarshal(storedCode.Content, &refreshRequest); err != nil {
		return internalError("unmarshal refresh token request: %v", err)
	}

	if refreshRequest.ClientID != client.ClientID {
		return badRequest(ErrorCodeInvalidGrant, "refresh token was issued to another client")
	}

	active, err := s.users.IsUserActive(ctx, s.config.Issuer, storedCode.Subject)
	if err != nil {
		return internalError("check user state: %v", err)
	}
	if !active {
		return badRequest(ErrorCodeInvalidToken, "user is no longer active")
	}

	granted := refreshRequest.Scopes()
	scopes := strings.Fields(c.FormValue("scope"))
	if len(scopes) == 0 {
		scopes = granted
	} else {
		// narrowing the granted scopes is allowed, widening is not
		for _, scope := range scopes {
			if !containsString(granted, scope) {
				return badRequest(ErrorCodeInvalidScope, "scope not originally granted: %s", scope)
			}
		}
	}

	expiresAt := accessTokenExpiry(now, client.AccessTokenLifetime, refreshRequest.SessionExpiry)
	accessToken, err := s.issueAccessToken(ctx, client.ClientID, expiresAt, scopes, storedCode.Subject)
	if err != nil {
		return asEndpointError(err)
	}

	// single-use rotation: a brand-new code replaces the old one
	newRefreshToken, err := s.issueRefreshToken(ctx, client.ClientID, scopes, refreshRequest.SessionExpiry, storedCode.Subject)
	if err != nil {
		return asEndpointError(err)
	}
	if err := s.codes.DeleteCode(ctx, refreshToken, CodeTypeRefreshToken, s.config.Issuer); err != nil {
		return internalError("delete rotated refresh token: %v", err)
	}

	return c.JSON(http.StatusOK, &TokenResponse{
		AccessToken:  accessToken,
		ExpiresIn:    int(expiresAt.Sub(now).Seconds()),
		RefreshToken: newRefreshToken,
		TokenType:    "Bearer",
	})
}

// verifyCodeChallenge checks the PKCE code_verifier against the stored
// challenge. The comparison is constant-time.
func verifyCodeChallenge(codeVerifier, codeChallenge string, pkceRequired bool) *Error {
	if codeVerifier == "" {
		if pkceRequired {
			return badRequest(ErrorCodeInvalidRequest, "missing code_verifier")
		}
		return nil
	}
	if codeChallenge == "" {
		return badRequest(ErrorCodeInvalidRequest, "no code challenge bound to the authorization code")
	}

	hash := sha256.Sum256([]byte(codeVerifier))
	computed := base64.RawURLEncoding.EncodeToString(hash[:])
	if subtle.ConstantTimeCompare([]byte(computed), []byte(codeChallenge)) != 1 {
		return badRequest(ErrorCodeInvalidRequest, "code verifier mismatch")
	}
	return nil
}

// accessTokenExpiry caps the access token lifetime at the remaining
// authentication session lifetime.
func accessTokenExpiry(now time.Time, lifetime time.Duration, sessionExpiry time.Time) time.Time {
	expiresAt := now.Add(lifetime)
	if !sessionExpiry.IsZero() && sessionExpiry.Before(expiresAt) {
		return sessionExpiry
	}
	return expiresAt
}

// authenticateClient resolves and, when required, authenticates the
// client from either the Basic authorization header or form fields. A
// client_id present in both places must agree.
func (s *Server) authenticateClient(c echo.Context) (*store.Client, *Error) {
	ctx := c.Request().Context()

	clientID := c.FormValue("client_id")
	clientSecret := c.FormValue("client_secret")

	if header := c.Request().Header.Get("Authorization"); header != "" {
		headerID, headerSecret, err := parseBasicAuth(header)
		if err != nil {
			return nil, badRequest(ErrorCodeInvalidClient, "%v", err)
		}
		if clientID != "" && headerID != clientID {
			return nil, badRequest(ErrorCodeInvalidClient, "client_id mismatch between header and form")
		}
		clientID = headerID
		if headerSecret != "" {
			clientSecret = headerSecret
		}
	}

	if clientID == "" {
		return nil, badRequest(ErrorCodeInvalidClient, "missing client_id")
	}

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, badRequest(ErrorCodeInvalidClient, "unknown client: %v", err)
	}

	if client.ClientSecretRequired {
		if clientSecret == "" {
			return nil, badRequest(ErrorCodeInvalidClient, "missing client_secret")
		}
		correct, err := s.clients.IsCorrectClientSecret(ctx, clientID, clientSecret)
		if err != nil {
			return nil, internalError("verify client secret: %v", err)
		}
		if !correct {
			return nil, badRequest(ErrorCodeInvalidClient, "invalid client_secret")
		}
	}

	return client, nil
}

// parseBasicAuth decodes "Basic base64(id:secret)" with URL-decoded
// halves. The malformed variants are reported distinctly.
func parseBasicAuth(header string) (string, string, error) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", fmt.Errorf("authorization header is not Basic")
	}

	decoded, err := base64.StdEncoding.DecodeString(header[len(prefix):])
	if err != nil {
		return "", "", fmt.Errorf("invalid base64 in authorization header")
	}

	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("authorization header is missing the credential separator")
	}
	if parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("empty credentials in authorization header")
	}

	clientID, err := url.QueryUnescape(parts[0])
	if err != nil {
		return "", "", fmt.Errorf("invalid url-encoding in client_id")
	}
	clientSecret, err := url.QueryUnescape(parts[1])
	if err != nil {
		return "", "", fmt.Errorf("invalid url-encoding in client_secret")
	}

	return clientID, clientSecret, nil
}

// asEndpointError keeps typed protocol errors intact while wrapping
// anything else as an internal error.
func asEndpointError(err error) error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return internalError("%v", err)
}
