package op

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRedirectErrorLocation(t *testing.T) {
	err := &RedirectError{
		Code:        ErrorCodeLoginRequired,
		RedirectURI: testRedirectURI,
		State:       "xyz",
	}

	location, parseErr := url.Parse(err.Location("/error"))
	if parseErr != nil {
		t.Fatalf("invalid location: %v", parseErr)
	}
	if location.Query().Get("error") != ErrorCodeLoginRequired {
		t.Errorf("error param = %q", location.Query().Get("error"))
	}
	if location.Query().Get("state") != "xyz" {
		t.Errorf("state param = %q", location.Query().Get("state"))
	}
}

func TestRedirectErrorFallsBackToErrorPage(t *testing.T) {
	err := &RedirectError{Code: ErrorCodeInvalidRequest}
	if got := err.Location("/error"); got != "/error" {
		t.Errorf("location = %q, want the error page", got)
	}
}

func TestErrorHandlerHidesInternals(t *testing.T) {
	fixture := newTestFixture(t, nil)

	handler := fixture.server.errorHandler(func(c echo.Context) error {
		return internalError("database exploded: %s", "connection refused")
	})

	c, rec := getContext("https://idp.example.com/connect/token")
	if err := handler(c); err != nil {
		t.Fatalf("errorHandler returned error: %v", err)
	}

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "database") || strings.Contains(body, "connection") {
		t.Errorf("internals leaked: %s", body)
	}

	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if payload["error"] != ErrorCodeServerError {
		t.Errorf("error = %q", payload["error"])
	}
}

func TestErrorHandlerRedirects(t *testing.T) {
	fixture := newTestFixture(t, nil)

	handler := fixture.server.errorHandler(func(c echo.Context) error {
		return &RedirectError{
			Code:        ErrorCodeLoginRequired,
			RedirectURI: testRedirectURI,
			State:       "xyz",
		}
	})

	c, rec := getContext("https://idp.example.com/connect/authorize")
	if err := handler(c); err != nil {
		t.Fatalf("errorHandler returned error: %v", err)
	}

	if rec.Code != http.StatusFound {
		t.Errorf("status = %d, want 302", rec.Code)
	}
	if !strings.HasPrefix(rec.Header().Get("Location"), testRedirectURI) {
		t.Errorf("location = %q", rec.Header().Get("Location"))
	}
}

func TestErrorHandlerWrapsUnknownErrors(t *testing.T) {
	fixture := newTestFixture(t, nil)

	handler := fixture.server.errorHandler(func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusTeapot, "obscure")
	})

	c, rec := getContext("https://idp.example.com/connect/token")
	if err := handler(c); err != nil {
		t.Fatalf("errorHandler returned error: %v", err)
	}
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want opaque 500", rec.Code)
	}
}
