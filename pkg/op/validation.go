package op

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/idport/idport/pkg/store"
)

const maxParamLength = 512

const (
	minCodeChallengeLength = 43
	maxCodeChallengeLength = 128
)

// ParseAuthorizationRequest parses and validates the parameters of an
// /authorize call against the client configuration. Exactly one of the
// two return values is non-nil.
//
// Until the redirect_uri has been matched against the client's
// registered URIs, errors carry no redirect target and the caller must
// fall back to the generic error page.
func (s *Server) ParseAuthorizationRequest(ctx context.Context, params url.Values) (*AuthorizationRequest, *RedirectError) {
	clientID := params.Get("client_id")
	if clientID == "" {
		return nil, &RedirectError{Code: ErrorCodeInvalidRequest, Description: "missing client_id"}
	}

	client, err := s.clients.GetClient(ctx, clientID)
	if err != nil {
		return nil, &RedirectError{Code: ErrorCodeInvalidRequest, Description: fmt.Sprintf("unknown client_id: %v", err)}
	}

	redirectURI := params.Get("redirect_uri")
	if redirectURI == "" || len(redirectURI) > maxParamLength ||
		len(client.RedirectURIs) == 0 || !client.AllowsRedirectURI(redirectURI) {
		return nil, &RedirectError{Code: ErrorCodeInvalidRequest, Description: "invalid redirect_uri"}
	}

	// the redirect_uri is trusted from here on; errors go back to the
	// client with the state attached
	state := params.Get("state")
	if len(state) > maxParamLength {
		state = ""
	}
	fail := func(code, format string, args ...any) *RedirectError {
		return &RedirectError{
			Code:        code,
			Description: fmt.Sprintf(format, args...),
			RedirectURI: redirectURI,
			State:       state,
		}
	}

	if params.Has("request") {
		return nil, fail(ErrorCodeRequestNotSupported, "JWT-secured authorization requests are not supported")
	}

	required := []string{"response_type", "scope"}
	if s.config.RequirePKCE {
		required = append(required, "code_challenge", "code_challenge_method")
	}
	for _, field := range required {
		if params.Get(field) == "" {
			return nil, fail(ErrorCodeInvalidRequest, "missing %s", field)
		}
	}

	if !client.AllowsGrantType(store.GrantTypeAuthorizationCode) {
		return nil, fail(ErrorCodeUnauthorizedClient, "client does not allow the authorization code grant")
	}

	responseType := params.Get("response_type")
	if responseType != ResponseTypeCode {
		return nil, fail(ErrorCodeInvalidRequest, "unsupported response_type: %s", responseType)
	}

	codeChallengeMethod := params.Get("code_challenge_method")
	if codeChallengeMethod != "" && codeChallengeMethod != CodeChallengeMethodS256 {
		return nil, fail(ErrorCodeInvalidRequest, "unsupported code_challenge_method: %s", codeChallengeMethod)
	}
	codeChallenge := params.Get("code_challenge")
	if codeChallenge != "" &&
		(len(codeChallenge) < minCodeChallengeLength || len(codeChallenge) > maxCodeChallengeLength) {
		return nil, fail(ErrorCodeInvalidRequest, "invalid code_challenge length")
	}

	scope := params.Get("scope")
	if len(scope) > maxParamLength {
		return nil, fail(ErrorCodeInvalidScope, "scope too long")
	}
	request := &AuthorizationRequest{
		ClientID:            clientID,
		RedirectURI:         redirectURI,
		ResponseType:        responseType,
		Scope:               scope,
		State:               state,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: codeChallengeMethod,
	}
	if !request.HasScope(ScopeOpenID) {
		return nil, fail(ErrorCodeInvalidScope, "scope must contain openid")
	}
	if !client.AllowsScopes(request.Scopes()) {
		return nil, fail(ErrorCodeInvalidScope, "scope not allowed: %s", scope)
	}

	request.IDTokenHint = params.Get("id_token_hint")

	if maxAge := params.Get("max_age"); maxAge != "" {
		seconds, err := strconv.Atoi(maxAge)
		if err != nil {
			return nil, fail(ErrorCodeInvalidRequest, "invalid max_age: %s", maxAge)
		}
		request.MaxAge = &seconds
	}

	if nonce := params.Get("nonce"); nonce != "" {
		if len(nonce) > maxParamLength {
			return nil, fail(ErrorCodeInvalidRequest, "nonce too long")
		}
		request.Nonce = nonce
	}

	if prompt := params.Get("prompt"); prompt != "" {
		switch prompt {
		case PromptNone, PromptLogin, PromptConsent, PromptSelectAccount:
			request.Prompt = prompt
		default:
			return nil, fail(ErrorCodeInvalidRequest, "invalid prompt: %s", prompt)
		}
	}

	if responseMode := params.Get("response_mode"); responseMode != "" {
		switch responseMode {
		case ResponseModeQuery, ResponseModeFragment, ResponseModeFormPost:
			request.ResponseMode = responseMode
		default:
			return nil, fail(ErrorCodeInvalidRequest, "invalid response_mode: %s", responseMode)
		}
	}

	return request, nil
}

// ValidateToken verifies a JWT against the current signing keys, the
// issuer and, when audience is non-empty, the audience. Lifetime is
// checked only when validateLifetime is set, so expired id_token_hints
// can still be matched against a subject.
//
// A failure is an expected outcome: the reason is logged at the
// configured level and an error returned; callers treat any error as
// "invalid token".
func (s *Server) ValidateToken(ctx context.Context, audience, rawToken string, validateLifetime bool) (jwt.Token, error) {
	keys, err := s.resolver.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve signing keys: %w", err)
	}

	set := jwk.NewSet()
	for _, key := range keys {
		set.AddKey(key.PublicJWK())
	}

	token, err := jwt.Parse([]byte(rawToken), jwt.WithKeySet(set), jwt.WithValidate(false))
	if err != nil {
		s.logTokenValidation("token signature verification failed", err)
		return nil, err
	}

	if token.Issuer() != s.config.Issuer {
		err := fmt.Errorf("invalid issuer: %q", token.Issuer())
		s.logTokenValidation("token issuer validation failed", err)
		return nil, err
	}

	if audience != "" && !containsString(token.Audience(), audience) {
		err := fmt.Errorf("invalid audience: %v", token.Audience())
		s.logTokenValidation("token audience validation failed", err)
		return nil, err
	}

	if validateLifetime {
		if err := jwt.Validate(token); err != nil {
			s.logTokenValidation("token lifetime validation failed", err)
			return nil, err
		}
	}

	return token, nil
}

func (s *Server) logTokenValidation(msg string, err error) {
	if s.config.LogInvalidTokensAsError {
		slog.Error(msg, "error", err)
	} else {
		slog.Info(msg, "error", err)
	}
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
