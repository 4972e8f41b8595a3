package store

import (
	"context"
	"fmt"
	"sync"
)

// StaticClientStore serves clients from a fixed configuration list.
type StaticClientStore struct {
	clients []Client
}

func NewStaticClientStore(clients []Client) *StaticClientStore {
	return &StaticClientStore{clients: clients}
}

func (s *StaticClientStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	for i := range s.clients {
		if s.clients[i].ClientID == clientID {
			client := s.clients[i]
			return &client, nil
		}
	}
	return nil, fmt.Errorf("%w: '%s'", ErrClientNotFound, clientID)
}

func (s *StaticClientStore) IsCorrectClientSecret(ctx context.Context, clientID, clientSecret string) (bool, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return false, err
	}
	if client.ClientSecretHash == "" {
		return false, nil
	}
	return VerifySecretHash(clientSecret, client.ClientSecretHash)
}

func (s *StaticClientStore) IsKnownPostLogoutRedirectURI(ctx context.Context, redirectURI string) (bool, error) {
	for i := range s.clients {
		for _, uri := range s.clients[i].PostLogoutRedirectURIs {
			if uri == redirectURI {
				return true, nil
			}
		}
	}
	return false, nil
}

// MemoryCodeStore keeps stored codes in a mutex-guarded map. Suitable
// for tests and single-node deployments.
type MemoryCodeStore struct {
	mu    sync.RWMutex
	codes map[string]*StoredCode
}

func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{
		codes: make(map[string]*StoredCode),
	}
}

func codeKey(code string, codeType CodeType, issuer string) string {
	return string(codeType) + "|" + issuer + "|" + code
}

func (s *MemoryCodeStore) SaveCode(ctx context.Context, code *StoredCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *code
	s.codes[codeKey(code.Code, code.CodeType, code.Issuer)] = &stored
	return nil
}

func (s *MemoryCodeStore) GetCode(ctx context.Context, code string, codeType CodeType, issuer string) (*StoredCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.codes[codeKey(code, codeType, issuer)]
	if !ok {
		return nil, ErrCodeNotFound
	}
	result := *stored
	return &result, nil
}

// ConsumeCode logically deletes a code: the entry survives with an
// incremented ConsumeCount so replay can be told apart from a code that
// never existed.
func (s *MemoryCodeStore) ConsumeCode(ctx context.Context, code string, codeType CodeType, issuer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.codes[codeKey(code, codeType, issuer)]
	if !ok {
		return ErrCodeNotFound
	}
	stored.ConsumeCount++
	return nil
}

func (s *MemoryCodeStore) DeleteCode(ctx context.Context, code string, codeType CodeType, issuer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := codeKey(code, codeType, issuer)
	if _, ok := s.codes[key]; !ok {
		return ErrCodeNotFound
	}
	delete(s.codes, key)
	return nil
}

// MemoryUser is a user record for the in-memory user store. Claims are
// grouped by the scope that releases them.
type MemoryUser struct {
	Subject string
	Active  bool
	Claims  map[string][]Claim
}

type MemoryUserStore struct {
	mu    sync.RWMutex
	users map[string]*MemoryUser
}

func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users: make(map[string]*MemoryUser),
	}
}

func (s *MemoryUserStore) AddUser(user MemoryUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.Subject] = &user
}

func (s *MemoryUserStore) SetActive(subject string, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[subject]; ok {
		user.Active = active
	}
}

func (s *MemoryUserStore) IsUserActive(ctx context.Context, issuer, subject string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[subject]
	if !ok {
		return false, nil
	}
	return user.Active, nil
}

func (s *MemoryUserStore) GetUserClaims(ctx context.Context, issuer, subject string, scopes []string) ([]Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.users[subject]
	if !ok {
		return nil, ErrUserNotFound
	}
	var claims []Claim
	for _, scope := range scopes {
		claims = append(claims, user.Claims[scope]...)
	}
	return claims, nil
}

// StaticResourceStore maps scopes to the audiences of the resources
// that expose them.
type StaticResourceStore struct {
	audiences map[string][]string
}

func NewStaticResourceStore(audiencesByScope map[string][]string) *StaticResourceStore {
	return &StaticResourceStore{audiences: audiencesByScope}
}

func (s *StaticResourceStore) GetAudiences(ctx context.Context, scopes []string) ([]string, error) {
	var result []string
	seen := make(map[string]bool)
	for _, scope := range scopes {
		for _, aud := range s.audiences[scope] {
			if !seen[aud] {
				seen[aud] = true
				result = append(result, aud)
			}
		}
	}
	return result, nil
}
