package op

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/idport/idport/pkg/store"
)

const (
	CodeTypeAuthorization = store.CodeTypeAuthorization
	CodeTypeLogout        = store.CodeTypeLogout
	CodeTypeRefreshToken  = store.CodeTypeRefreshToken
)

type storeCodeParams struct {
	codeType store.CodeType
	payload  any
	subject  string
	expiry   time.Time
}

// saveCodeFor serializes the payload into a fresh high-entropy stored
// code keyed by this provider's issuer.
func (s *Server) saveCodeFor(ctx context.Context, params storeCodeParams) (string, error) {
	content, err := json.Marshal(params.payload)
	if err != nil {
		return "", fmt.Errorf("marshal code payload: %w", err)
	}

	code := generateCode()
	stored := &store.StoredCode{
		Code:     code,
		CodeType: params.codeType,
		Content:  content,
		Issuer:   s.config.Issuer,
		Subject:  params.subject,
		Created:  s.now(),
		Expiry:   params.expiry,
	}
	if err := s.codes.SaveCode(ctx, stored); err != nil {
		return "", fmt.Errorf("save %s code: %w", params.codeType, err)
	}
	return code, nil
}

func joinScopes(scopes []string) string {
	return strings.Join(scopes, ",")
}
