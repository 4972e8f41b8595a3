package op

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/idport/idport/pkg/store"
)

// Claim types used by the provider itself. Hosts may attach any further
// claims to the session; they are snapshotted verbatim.
const (
	ClaimSubject          = "sub"
	ClaimAuthTime         = "auth_time"
	ClaimIdentityProvider = "idp"
	ClaimSessionID        = "sid"
	ClaimAmr              = "amr"
	ClaimRole             = "role"
)

// UserSession describes the authenticated principal behind a request.
// The login machinery lives in the host application; the provider only
// reads the resulting session.
type UserSession struct {
	Subject   string
	SessionID string
	AuthTime  time.Time
	ExpiresAt time.Time
	Claims    []store.Claim
}

// SessionReader resolves the authenticated session for a request.
// (nil, nil) means unauthenticated.
type SessionReader interface {
	ActiveSession(c echo.Context) (*UserSession, error)
}

// snapshotClaims copies every claim off the session, making sure the
// claims the id_token depends on are present even when the host did not
// set them explicitly.
func (u *UserSession) snapshotClaims() []store.Claim {
	claims := make([]store.Claim, len(u.Claims))
	copy(claims, u.Claims)

	has := func(claimType string) bool {
		for _, c := range claims {
			if c.Type == claimType {
				return true
			}
		}
		return false
	}

	if !has(ClaimSubject) && u.Subject != "" {
		claims = append(claims, store.Claim{Type: ClaimSubject, Value: u.Subject})
	}
	if !has(ClaimAuthTime) && !u.AuthTime.IsZero() {
		claims = append(claims, store.Claim{Type: ClaimAuthTime, Value: strconv.FormatInt(u.AuthTime.Unix(), 10)})
	}
	if !has(ClaimSessionID) && u.SessionID != "" {
		claims = append(claims, store.Claim{Type: ClaimSessionID, Value: u.SessionID})
	}
	return claims
}
