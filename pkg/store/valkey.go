package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyCodeStore persists stored codes in Valkey with a TTL equal to
// the code expiry, so expired codes vanish on their own.
type ValkeyCodeStore struct {
	client valkey.Client
	now    func() time.Time
}

func NewValkeyCodeStore(client valkey.Client) *ValkeyCodeStore {
	return &ValkeyCodeStore{
		client: client,
		now:    time.Now,
	}
}

func valkeyCodeKey(code string, codeType CodeType, issuer string) string {
	return fmt.Sprintf("code:%s:%s:%s", codeType, issuer, code)
}

func (s *ValkeyCodeStore) SaveCode(ctx context.Context, code *StoredCode) error {
	payload, err := json.Marshal(code)
	if err != nil {
		return fmt.Errorf("marshal stored code: %w", err)
	}

	ttl := code.Expiry.Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("stored code already expired")
	}

	key := valkeyCodeKey(code.Code, code.CodeType, code.Issuer)
	cmd := s.client.B().Set().Key(key).Value(string(payload)).Ex(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("save code in valkey: %w", err)
	}
	return nil
}

func (s *ValkeyCodeStore) GetCode(ctx context.Context, code string, codeType CodeType, issuer string) (*StoredCode, error) {
	key := valkeyCodeKey(code, codeType, issuer)
	payload, err := s.client.Do(ctx, s.client.B().Get().Key(key).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrCodeNotFound
		}
		return nil, fmt.Errorf("get code from valkey: %w", err)
	}

	var stored StoredCode
	if err := json.Unmarshal([]byte(payload), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal stored code: %w", err)
	}
	return &stored, nil
}

// ConsumeCode rewrites the entry with an incremented ConsumeCount and
// the remaining TTL intact, keeping the replay marker around until the
// code would have expired anyway.
func (s *ValkeyCodeStore) ConsumeCode(ctx context.Context, code string, codeType CodeType, issuer string) error {
	stored, err := s.GetCode(ctx, code, codeType, issuer)
	if err != nil {
		return err
	}
	stored.ConsumeCount++

	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("marshal stored code: %w", err)
	}

	key := valkeyCodeKey(code, codeType, issuer)
	cmd := s.client.B().Set().Key(key).Value(string(payload)).Keepttl().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("consume code in valkey: %w", err)
	}
	return nil
}

func (s *ValkeyCodeStore) DeleteCode(ctx context.Context, code string, codeType CodeType, issuer string) error {
	key := valkeyCodeKey(code, codeType, issuer)
	if err := s.client.Do(ctx, s.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("delete code from valkey: %w", err)
	}
	return nil
}
