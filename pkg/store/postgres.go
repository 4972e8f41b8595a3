package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresClientStore reads client configuration from Postgres.
type PostgresClientStore struct {
	db *sql.DB
}

func NewPostgresClientStore(db *sql.DB) *PostgresClientStore {
	return &PostgresClientStore{db: db}
}

func (s *PostgresClientStore) GetClient(ctx context.Context, clientID string) (*Client, error) {
	if clientID == "" {
		return nil, ErrClientNotFound
	}

	query := `
		SELECT
			client_id, client_secret_hash, client_secret_required,
			grant_types, scopes, redirect_uris, post_logout_redirect_uris,
			access_token_lifetime_seconds, identity_token_lifetime_seconds
		FROM clients
		WHERE client_id = $1
	`

	client := &Client{}
	var grantTypes []string
	var accessTokenSeconds, identityTokenSeconds int64
	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&client.ClientID,
		&client.ClientSecretHash,
		&client.ClientSecretRequired,
		pq.Array(&grantTypes),
		pq.Array(&client.Scopes),
		pq.Array(&client.RedirectURIs),
		pq.Array(&client.PostLogoutRedirectURIs),
		&accessTokenSeconds,
		&identityTokenSeconds,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: '%s'", ErrClientNotFound, clientID)
		}
		return nil, fmt.Errorf("query client: %w", err)
	}

	for _, g := range grantTypes {
		client.GrantTypes = append(client.GrantTypes, GrantType(g))
	}
	client.AccessTokenLifetime = time.Duration(accessTokenSeconds) * time.Second
	client.IdentityTokenLifetime = time.Duration(identityTokenSeconds) * time.Second

	return client, nil
}

func (s *PostgresClientStore) IsCorrectClientSecret(ctx context.Context, clientID, clientSecret string) (bool, error) {
	client, err := s.GetClient(ctx, clientID)
	if err != nil {
		return false, err
	}
	if client.ClientSecretHash == "" {
		return false, nil
	}
	return VerifySecretHash(clientSecret, client.ClientSecretHash)
}

func (s *PostgresClientStore) IsKnownPostLogoutRedirectURI(ctx context.Context, redirectURI string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM clients WHERE $1 = ANY(post_logout_redirect_uris))`

	var known bool
	if err := s.db.QueryRowContext(ctx, query, redirectURI).Scan(&known); err != nil {
		return false, fmt.Errorf("query post-logout redirect uri: %w", err)
	}
	return known, nil
}

// PostgresUserStore reads user records and scoped claims from Postgres.
type PostgresUserStore struct {
	db *sql.DB
}

func NewPostgresUserStore(db *sql.DB) *PostgresUserStore {
	return &PostgresUserStore{db: db}
}

func (s *PostgresUserStore) IsUserActive(ctx context.Context, issuer, subject string) (bool, error) {
	query := `SELECT active FROM users WHERE issuer = $1 AND subject = $2`

	var active bool
	err := s.db.QueryRowContext(ctx, query, issuer, subject).Scan(&active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query user: %w", err)
	}
	return active, nil
}

func (s *PostgresUserStore) GetUserClaims(ctx context.Context, issuer, subject string, scopes []string) ([]Claim, error) {
	query := `
		SELECT claim_type, claim_value
		FROM user_claims
		WHERE issuer = $1 AND subject = $2 AND scope = ANY($3)
		ORDER BY claim_type
	`

	rows, err := s.db.QueryContext(ctx, query, issuer, subject, pq.Array(scopes))
	if err != nil {
		return nil, fmt.Errorf("query user claims: %w", err)
	}
	defer rows.Close()

	var claims []Claim
	for rows.Next() {
		var claim Claim
		if err := rows.Scan(&claim.Type, &claim.Value); err != nil {
			return nil, fmt.Errorf("scan user claim: %w", err)
		}
		claims = append(claims, claim)
	}
	return claims, rows.Err()
}
