package op

import (
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
)

// AuthorizationEndpoint handles GET/POST /connect/authorize: it walks
// the request through validation, authentication-state inspection,
// prompt and max_age handling, and finally issues an authorization code
// bound to a snapshot of the principal's claims.
func (s *Server) AuthorizationEndpoint(c echo.Context) error {
	request := c.Request()
	ctx := request.Context()

	if request.Method != http.MethodGet && request.Method != http.MethodPost {
		return &RedirectError{Code: ErrorCodeInvalidRequest, Description: "method not allowed"}
	}

	var params url.Values
	if request.Method == http.MethodGet {
		params = c.QueryParams()
	} else {
		formParams, err := c.FormParams()
		if err != nil {
			return &RedirectError{Code: ErrorCodeInvalidRequest, Description: "unable to parse form"}
		}
		params = formParams
	}

	authRequest, redirectErr := s.ParseAuthorizationRequest(ctx, params)
	if redirectErr != nil {
		return redirectErr
	}

	session, err := s.sessions.ActiveSession(c)
	if err != nil {
		return internalError("resolve session: %v", err)
	}

	if session == nil || authRequest.Prompt == PromptLogin {
		if session == nil && authRequest.Prompt == PromptNone {
			return &RedirectError{
				Code:        ErrorCodeLoginRequired,
				Description: "prompt=none with no authenticated session",
				RedirectURI: authRequest.RedirectURI,
				State:       authRequest.State,
			}
		}
		if session == nil && authRequest.Prompt != "" && authRequest.Prompt != PromptLogin {
			return &RedirectError{
				Code:        ErrorCodeServerError,
				Description: "prompt cannot be honored without an authenticated session",
				RedirectURI: authRequest.RedirectURI,
				State:       authRequest.State,
			}
		}
		return s.redirectToLogin(c, params)
	}

	now := s.now()

	if authRequest.MaxAge != nil {
		maxAge := time.Duration(*authRequest.MaxAge) * time.Second
		if now.Sub(session.AuthTime) > maxAge {
			return s.redirectToLogin(c, params)
		}
	}

	// refuse to issue tokens that would appear expired on arrival
	if session.ExpiresAt.Sub(now) < s.config.MinimumSessionLifetime.Std() {
		return &RedirectError{
			Code:        ErrorCodeLoginRequired,
			Description: "authentication session about to expire",
			RedirectURI: authRequest.RedirectURI,
			State:       authRequest.State,
		}
	}

	authRequest.SessionExpiry = session.ExpiresAt

	if authRequest.IDTokenHint != "" {
		hint, err := s.ValidateToken(ctx, "", authRequest.IDTokenHint, false)
		if err != nil || hint.Subject() != session.Subject {
			return &RedirectError{
				Code:        ErrorCodeInvalidRequest,
				Description: "id_token_hint does not match the authenticated subject",
				RedirectURI: authRequest.RedirectURI,
				State:       authRequest.State,
			}
		}
	}

	if s.config.CheckSessionEnabled {
		authRequest.SessionState = computeSessionState(authRequest.ClientID, originOf(authRequest.RedirectURI), session.SessionID)
		s.ensureCheckSessionCookie(c, session)
	}

	authRequest.Claims = session.snapshotClaims()

	code, err := s.saveCodeFor(ctx, storeCodeParams{
		codeType: CodeTypeAuthorization,
		payload:  authRequest,
		subject:  session.Subject,
		expiry:   now.Add(s.config.AuthorizationCodeLifetime.Std()),
	})
	if err != nil {
		return &RedirectError{
			Code:         ErrorCodeServerError,
			Description:  err.Error(),
			RedirectURI:  authRequest.RedirectURI,
			State:        authRequest.State,
			SessionState: authRequest.SessionState,
		}
	}

	response := url.Values{}
	response.Set("code", code)
	response.Set("scope", authRequest.Scope)
	if authRequest.SessionState != "" {
		response.Set("session_state", authRequest.SessionState)
	}
	if authRequest.State != "" {
		response.Set("state", authRequest.State)
	}

	return c.Redirect(http.StatusFound, authRequest.RedirectURI+"?"+response.Encode())
}

// redirectToLogin sends the user agent to the host's login page with
// the original authorize query as ReturnUrl. prompt is stripped so a
// completed login does not loop back into a forced re-login.
func (s *Server) redirectToLogin(c echo.Context, params url.Values) error {
	returnParams := url.Values{}
	for key, values := range params {
		if key == "prompt" {
			continue
		}
		returnParams[key] = values
	}
	returnURL := s.config.Endpoints.Authorization + "?" + returnParams.Encode()

	login := url.Values{}
	login.Set("ReturnUrl", returnURL)
	return c.Redirect(http.StatusFound, s.config.Pages.Login+"?"+login.Encode())
}
