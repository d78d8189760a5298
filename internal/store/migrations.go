package store

import (
	"fmt"
	"strings"
)

// sqliteMigrations and postgresMigrations express the same schema in each
// dialect. Statements are idempotent so migrate can run on every startup.
var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		is_active INTEGER NOT NULL DEFAULT 1,
		last_login_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		owner_id INTEGER NOT NULL REFERENCES accounts(id),
		display_name TEXT NOT NULL DEFAULT '',
		digest TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		visible_prefix TEXT NOT NULL,
		quota_per_window INTEGER NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		expires_at DATETIME,
		last_used_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		api_key_id TEXT NOT NULL,
		owner_id INTEGER NOT NULL,
		endpoint TEXT NOT NULL,
		http_method TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		client_ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_fingerprint ON api_keys(fingerprint)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_key_created ON usage_records(api_key_id, created_at)`,
}

var postgresMigrations = []string{
	`CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		last_login_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS api_keys (
		id TEXT PRIMARY KEY,
		owner_id BIGINT NOT NULL REFERENCES accounts(id),
		display_name TEXT NOT NULL DEFAULT '',
		digest TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		visible_prefix TEXT NOT NULL,
		quota_per_window INTEGER NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		expires_at TIMESTAMPTZ,
		last_used_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS usage_records (
		id TEXT PRIMARY KEY,
		api_key_id TEXT NOT NULL,
		owner_id BIGINT NOT NULL,
		endpoint TEXT NOT NULL,
		http_method TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		latency_ms BIGINT NOT NULL,
		client_ip TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,

	`CREATE INDEX IF NOT EXISTS idx_api_keys_fingerprint ON api_keys(fingerprint)`,
	`CREATE INDEX IF NOT EXISTS idx_api_keys_owner ON api_keys(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_usage_key_created ON usage_records(api_key_id, created_at)`,
}

func (s *Store) migrate() error {
	migrations := sqliteMigrations
	if s.driver == DriverPostgres {
		migrations = postgresMigrations
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			// ALTER TABLE ADD COLUMN fails if the column already exists;
			// treat "duplicate column" as a no-op for idempotent migrations.
			if strings.Contains(err.Error(), "duplicate column") {
				continue
			}
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
