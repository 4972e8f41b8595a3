package op

import (
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"
)

// CheckSessionCookieName is the cookie the check-session iframe reads
// to detect session changes.
const CheckSessionCookieName = "idport.session"

// computeSessionState derives the OIDC session-management session_state
// value. The concatenation order and encoding are a wire contract: the
// relying party recomputes the hash client-side from the same inputs,
// so clientID + origin + sessionID + salt must not change.
func computeSessionState(clientID, origin, sessionID string) string {
	salt := randomToken(12)
	hash := sha256.Sum256([]byte(clientID + origin + sessionID + salt))
	return base64.RawURLEncoding.EncodeToString(hash[:]) + "." + salt
}

// originOf reduces a redirect URI to its scheme://host origin, the form
// the relying party sees in the iframe postMessage.
func originOf(redirectURI string) string {
	u, err := url.Parse(redirectURI)
	if err != nil || u.Host == "" {
		return redirectURI
	}
	return u.Scheme + "://" + u.Host
}

// ensureCheckSessionCookie issues or replaces the check-session cookie
// when the session id changed since it was last written.
func (s *Server) ensureCheckSessionCookie(c echo.Context, session *UserSession) {
	if cookie, err := c.Cookie(CheckSessionCookieName); err == nil && cookie.Value == session.SessionID {
		return
	}
	c.SetCookie(&http.Cookie{
		Name:     CheckSessionCookieName,
		Value:    session.SessionID,
		Path:     "/",
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
	})
}

// checkSessionDocument is the standard OIDC session-management iframe:
// the relying party posts "client_id session_state" and receives
// changed/unchanged/error depending on whether the hash still matches
// the current session cookie.
const checkSessionDocument = `<!DOCTYPE html>
<html>
<head><title>Check Session</title></head>
<body>
<script>
function getCookie(name) {
	var value = "; " + document.cookie;
	var parts = value.split("; " + name + "=");
	if (parts.length === 2) return parts.pop().split(";").shift();
	return "";
}

async function computeSessionState(clientId, origin, sessionId, salt) {
	var data = new TextEncoder().encode(clientId + origin + sessionId + salt);
	var digest = await crypto.subtle.digest("SHA-256", data);
	var hash = btoa(String.fromCharCode.apply(null, new Uint8Array(digest)))
		.replace(/\+/g, "-").replace(/\//g, "_").replace(/=+$/, "");
	return hash + "." + salt;
}

window.addEventListener("message", async function (e) {
	var parts = (e.data || "").split(" ");
	if (parts.length !== 2) {
		e.source.postMessage("error", e.origin);
		return;
	}
	var clientId = parts[0];
	var sessionState = parts[1];
	var salt = sessionState.split(".")[1];
	if (!salt) {
		e.source.postMessage("error", e.origin);
		return;
	}
	var sessionId = getCookie("` + CheckSessionCookieName + `");
	var expected = await computeSessionState(clientId, e.origin, sessionId, salt);
	if (expected === sessionState) {
		e.source.postMessage("unchanged", e.origin);
	} else {
		e.source.postMessage("changed", e.origin);
	}
}, false);
</script>
</body>
</html>`

// CheckSessionEndpoint serves the session-management iframe document.
func (s *Server) CheckSessionEndpoint(c echo.Context) error {
	return c.HTML(http.StatusOK, checkSessionDocument)
}
