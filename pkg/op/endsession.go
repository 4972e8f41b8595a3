package op

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

// EndSessionEndpoint handles GET/POST /connect/endsession. The request
// is validated, then the user agent is sent to the host's logout page
// with a short-lived logout code. The host consumes the code, clears
// the authentication session and honors the stored
// post_logout_redirect_uri.
func (s *Server) EndSessionEndpoint(c echo.Context) error {
	request := c.Request()
	ctx := request.Context()

	if request.Method != http.MethodGet && request.Method != http.MethodPost {
		return badRequest(ErrorCodeInvalidRequest, "method not allowed")
	}

	var params url.Values
	if request.Method == http.MethodGet {
		params = c.QueryParams()
	} else {
		formParams, err := c.FormParams()
		if err != nil {
			return badRequest(ErrorCodeInvalidRequest, "unable to parse form")
		}
		params = formParams
	}

	idTokenHint := params.Get("id_token_hint")
	postLogoutRedirectURI := params.Get("post_logout_redirect_uri")
	state := params.Get("state")

	if len(state) > maxParamLength {
		return badRequest(ErrorCodeInvalidRequest, "state exceeds maximum length")
	}

	var hintSubject string
	if idTokenHint != "" {
		hint, err := s.ValidateToken(ctx, "", idTokenHint, false)
		if err != nil {
			return badRequest(ErrorCodeInvalidRequest, "invalid id_token_hint")
		}
		hintSubject = hint.Subject()
	}

	if postLogoutRedirectURI != "" {
		// the redirect target is only trusted when the caller proved,
		// via the hint, that the token was issued here
		if idTokenHint == "" {
			return badRequest(ErrorCodeInvalidRequest, "post_logout_redirect_uri requires id_token_hint")
		}
		known, err := s.clients.IsKnownPostLogoutRedirectURI(ctx, postLogoutRedirectURI)
		if err != nil {
			return internalError("check post logout redirect uri: %v", err)
		}
		if !known {
			return badRequest(ErrorCodeInvalidRequest, "unknown post_logout_redirect_uri")
		}
	}

	session, err := s.sessions.ActiveSession(c)
	if err != nil {
		return internalError("resolve session: %v", err)
	}
	if session == nil {
		if idTokenHint != "" {
			// nothing left to end, but the request itself is legitimate
			return c.Redirect(http.StatusFound, s.config.Pages.Logout)
		}
		return badRequest(ErrorCodeInvalidRequest, "no session and no id_token_hint")
	}

	if hintSubject != "" && hintSubject != session.Subject {
		return badRequest(ErrorCodeInvalidRequest, "id_token_hint does not match the authenticated subject")
	}

	logoutCode, err := s.saveCodeFor(ctx, storeCodeParams{
		codeType: CodeTypeLogout,
		payload: LogoutRequest{
			PostLogoutRedirectURI: postLogoutRedirectURI,
			State:                 state,
			Subject:               session.Subject,
		},
		subject: session.Subject,
		expiry:  s.now().Add(s.config.LogoutCodeLifetime.Std()),
	})
	if err != nil {
		return internalError("save logout code: %v", err)
	}

	target := url.Values{}
	target.Set("logout_code", logoutCode)
	return c.Redirect(http.StatusFound, s.config.Pages.Logout+"?"+target.Encode())
}
