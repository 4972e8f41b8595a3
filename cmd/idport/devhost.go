package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/ksuid"

	"github.com/idport/idport/pkg/op"
	"github.com/idport/idport/pkg/store"
)

const (
	hostSessionCookie   = "idport.host.session"
	hostSessionLifetime = 8 * time.Hour
)

// devHost is the built-in host application around the provider core:
// an unhardened login page, the logout-code consumer and an error page.
// It stands in for the real host UI during development; sessions live
// in an unsigned cookie and must not be exposed beyond localhost.
type devHost struct {
	cfg   *op.Config
	codes store.CodeStore
}

func newDevHost(cfg *op.Config, codes store.CodeStore) *devHost {
	return &devHost{cfg: cfg, codes: codes}
}

type hostSession struct {
	Subject   string    `json:"subject"`
	SessionID string    `json:"session_id"`
	AuthTime  time.Time `json:"auth_time"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *devHost) MountRoutes(root *echo.Echo) {
	root.GET(h.cfg.Pages.Login, h.loginPage)
	root.POST(h.cfg.Pages.Login, h.login)
	root.GET(h.cfg.Pages.Logout, h.logout)
	root.GET(h.cfg.Pages.Error, h.errorPage)
}

// ActiveSession implements op.SessionReader from the host cookie.
func (h *devHost) ActiveSession(c echo.Context) (*op.UserSession, error) {
	cookie, err := c.Cookie(hostSessionCookie)
	if err != nil {
		return nil, nil
	}

	payload, err := base64.RawURLEncoding.DecodeString(cookie.Value)
	if err != nil {
		return nil, nil
	}
	var session hostSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, nil
	}
	if time.Now().After(session.ExpiresAt) {
		return nil, nil
	}

	return &op.UserSession{
		Subject:   session.Subject,
		SessionID: session.SessionID,
		AuthTime:  session.AuthTime,
		ExpiresAt: session.ExpiresAt,
		Claims:    h.sessionClaims(session.Subject),
	}, nil
}

// sessionClaims flattens the configured user's claims into the session
// so the provider can snapshot them at code-issuance time.
func (h *devHost) sessionClaims(subject string) []store.Claim {
	claims := []store.Claim{
		{Type: op.ClaimIdentityProvider, Value: "local"},
		{Type: op.ClaimAmr, Value: "pwd"},
	}
	for _, user := range h.cfg.Users {
		if user.Subject != subject {
			continue
		}
		for _, scoped := range user.Claims {
			claims = append(claims, scoped...)
		}
	}
	return claims
}

func (h *devHost) loginPage(c echo.Context) error {
	returnURL := c.QueryParam("ReturnUrl")

	var options string
	for _, user := range h.cfg.Users {
		options += fmt.Sprintf(`<option value="%s">%s</option>`,
			html.EscapeString(user.Subject), html.EscapeString(user.Subject))
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><title>Sign in</title></head>
<body>
<form method="post">
<input type="hidden" name="ReturnUrl" value="%s">
<label>User <select name="subject">%s</select></label>
<button type="submit">Sign in</button>
</form>
</body>
</html>`, html.EscapeString(returnURL), options)

	return c.HTML(http.StatusOK, page)
}

func (h *devHost) login(c echo.Context) error {
	subject := c.FormValue("subject")
	known := false
	for _, user := range h.cfg.Users {
		if user.Subject == subject && user.Active {
			known = true
			break
		}
	}
	if !known {
		return c.String(http.StatusForbidden, "unknown or inactive user")
	}

	now := time.Now()
	session := hostSession{
		Subject:   subject,
		SessionID: ksuid.New().String(),
		AuthTime:  now,
		ExpiresAt: now.Add(hostSessionLifetime),
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}
	c.SetCookie(&http.Cookie{
		Name:     hostSessionCookie,
		Value:    base64.RawURLEncoding.EncodeToString(payload),
		Path:     "/",
		HttpOnly: true,
	})

	returnURL := c.FormValue("ReturnUrl")
	if returnURL == "" {
		return c.String(http.StatusOK, "signed in as "+subject)
	}
	return c.Redirect(http.StatusFound, returnURL)
}

// logout consumes the logout code handed over by the end-session
// endpoint, clears the host session and honors the stored post-logout
// redirect.
func (h *devHost) logout(c echo.Context) error {
	ctx := c.Request().Context()

	c.SetCookie(&http.Cookie{
		Name:   hostSessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	c.SetCookie(&http.Cookie{
		Name:   op.CheckSessionCookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})

	logoutCode := c.QueryParam("logout_code")
	if logoutCode == "" {
		return c.String(http.StatusOK, "signed out")
	}

	stored, err := h.codes.GetCode(ctx, logoutCode, store.CodeTypeLogout, h.cfg.Issuer)
	if err != nil || stored.ConsumeCount > 0 || stored.Expired(time.Now()) {
		return c.String(http.StatusOK, "signed out")
	}
	h.codes.ConsumeCode(ctx, logoutCode, store.CodeTypeLogout, h.cfg.Issuer)

	var request op.LogoutRequest
	if err := json.Unmarshal(stored.Content, &request); err != nil {
		return c.String(http.StatusOK, "signed out")
	}
	if request.PostLogoutRedirectURI == "" {
		return c.String(http.StatusOK, "signed out")
	}

	target := request.PostLogoutRedirectURI
	if request.State != "" {
		target += "?" + url.Values{"state": {request.State}}.Encode()
	}
	return c.Redirect(http.StatusFound, target)
}

func (h *devHost) errorPage(c echo.Context) error {
	errorCode := c.QueryParam("error")
	if errorCode == "" {
		errorCode = "unknown error"
	}
	return c.String(http.StatusOK, "Error: "+errorCode)
}
