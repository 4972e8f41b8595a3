package store

// Schema is the Postgres schema expected by PostgresClientStore and
// PostgresUserStore. Applied by the host; the provider never migrates.
const Schema = `
CREATE TABLE IF NOT EXISTS clients (
	client_id                       TEXT PRIMARY KEY,
	client_secret_hash              TEXT NOT NULL DEFAULT '',
	client_secret_required          BOOLEAN NOT NULL DEFAULT FALSE,
	grant_types                     TEXT[] NOT NULL DEFAULT '{}',
	scopes                          TEXT[] NOT NULL DEFAULT '{}',
	redirect_uris                   TEXT[] NOT NULL DEFAULT '{}',
	post_logout_redirect_uris       TEXT[] NOT NULL DEFAULT '{}',
	access_token_lifetime_seconds   BIGINT NOT NULL DEFAULT 3600,
	identity_token_lifetime_seconds BIGINT NOT NULL DEFAULT 300
);

CREATE TABLE IF NOT EXISTS users (
	issuer  TEXT NOT NULL,
	subject TEXT NOT NULL,
	active  BOOLEAN NOT NULL DEFAULT TRUE,
	PRIMARY KEY (issuer, subject)
);

CREATE TABLE IF NOT EXISTS user_claims (
	issuer      TEXT NOT NULL,
	subject     TEXT NOT NULL,
	scope       TEXT NOT NULL,
	claim_type  TEXT NOT NULL,
	claim_value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS user_claims_lookup
	ON user_claims (issuer, subject, scope);
`
