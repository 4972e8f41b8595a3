package op

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// UserinfoEndpoint handles GET/POST /connect/userinfo. The caller
// presents an access token carrying the openid scope; the response is
// the user's claims for the scopes the token was granted.
func (s *Server) UserinfoEndpoint(c echo.Context) error {
	ctx := c.Request().Context()

	rawToken := bearerToken(c)
	if rawToken == "" {
		return unauthorized(c, "missing access token")
	}

	token, err := s.ValidateToken(ctx, "", rawToken, true)
	if err != nil {
		return unauthorized(c, "invalid access token")
	}

	scopes := tokenScopes(token)
	if !containsString(scopes, ScopeOpenID) {
		return unauthorized(c, "access token lacks the openid scope")
	}

	subject := token.Subject()
	if subject == "" {
		return unauthorized(c, "access token has no subject")
	}

	claims, err := s.users.GetUserClaims(ctx, s.config.Issuer, subject, scopes)
	if err != nil {
		return internalError("load user claims: %v", err)
	}

	response := map[string]any{
		ClaimSubject: subject,
	}
	byType := map[string][]string{}
	for _, claim := range claims {
		byType[claim.Type] = append(byType[claim.Type], claim.Value)
	}
	for claimType, values := range byType {
		if len(values) == 1 {
			response[claimType] = values[0]
		} else {
			response[claimType] = values
		}
	}

	return c.JSON(http.StatusOK, response)
}

// bearerToken extracts the access token from the Authorization header
// or, failing that, the access_token form field.
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return c.FormValue("access_token")
}

// tokenScopes reads the scope claim, which is signed as a string array.
func tokenScopes(token jwt.Token) []string {
	raw, ok := token.Get("scope")
	if !ok {
		return nil
	}
	var scopes []string
	switch typed := raw.(type) {
	case []string:
		scopes = typed
	case []any:
		for _, v := range typed {
			if s, ok := v.(string); ok {
				scopes = append(scopes, s)
			}
		}
	case string:
		scopes = strings.Fields(typed)
	}
	return scopes
}

func unauthorized(c echo.Context, description string) error {
	c.Response().Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	return &Error{
		HttpStatus:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: description,
	}
}
