package op

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeLoginRequired        = "login_required"
	ErrorCodeRequestNotSupported  = "request_not_supported"
	ErrorCodeServerError          = "server_error"
)

// Error is a protocol error answered as a JSON body. Only the OAuth2
// error code goes over the wire; the description is for the log.
type Error struct {
	HttpStatus  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func badRequest(code, format string, args ...any) *Error {
	return &Error{
		HttpStatus:  http.StatusBadRequest,
		Code:        code,
		Description: fmt.Sprintf(format, args...),
	}
}

func internalError(format string, args ...any) *Error {
	return &Error{
		HttpStatus:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: fmt.Sprintf(format, args...),
	}
}

// RedirectError is a protocol error delivered by 302. With an empty
// RedirectURI the user lands on the provider's generic error page; once
// a redirect_uri has been validated the error carries it along with the
// client's state and the session_state, if any.
type RedirectError struct {
	Code         string
	Description  string
	RedirectURI  string
	State        string
	SessionState string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Location builds the redirect target, falling back to the given error
// page when no client redirect URI has been established.
func (e *RedirectError) Location(errorPage string) string {
	if e.RedirectURI == "" {
		return errorPage
	}
	params := url.Values{}
	params.Set("error", e.Code)
	if e.SessionState != "" {
		params.Set("session_state", e.SessionState)
	}
	if e.State != "" {
		params.Set("state", e.State)
	}
	return e.RedirectURI + "?" + params.Encode()
}

// errorHandler maps the error taxonomy to wire responses. Anything not
// typed is answered with an opaque server_error body; details stay in
// the log.
func (s *Server) errorHandler(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		err := next(c)
		if err == nil {
			return nil
		}

		switch e := err.(type) {
		case *RedirectError:
			slog.Info("redirecting with error", "error_code", e.Code, "description", e.Description, "path", c.Path())
			return c.Redirect(http.StatusFound, e.Location(s.config.Pages.Error))
		case *Error:
			slog.Error("request failed", "error_code", e.Code, "description", e.Description, "path", c.Path(), "remote_addr", c.RealIP())
			return c.JSON(e.HttpStatus, e)
		default:
			slog.Error("unhandled error", "error", err, "path", c.Path(), "remote_addr", c.RealIP())
			return c.JSON(http.StatusInternalServerError, &Error{Code: ErrorCodeServerError})
		}
	}
}
