package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/keygatehq/keygate/internal/model"
)

// Supported storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store is the durable-store adapter for key records, owner accounts, and
// the append-only usage trail. It is the single source of truth for quota
// counts and key validity; nothing is cached in process.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the configured store and runs migrations. For SQLite an
// empty dataDir means in-memory (used by tests). For Postgres, dsn is a
// standard connection string.
func Open(driver, dsn, dataDir string) (*Store, error) {
	var db *sqlx.DB
	var err error

	switch driver {
	case DriverSQLite:
		if dataDir == "" {
			dsn = ":memory:?_journal_mode=WAL"
		} else {
			if err := os.MkdirAll(dataDir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(dataDir, "keygate.db") + "?_journal_mode=WAL&_busy_timeout=5000"
		}
		db, err = sqlx.Connect("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	case DriverPostgres:
		db, err = sqlx.Connect("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres database: %w", err)
		}
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q", driver)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the store is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// API keys
// ---------------------------------------------------------------------------

// CreateAPIKey inserts a new key record. The digest, fingerprint, and
// visible prefix must already be set by the caller; ID and CreatedAt are
// populated here.
func (s *Store) CreateAPIKey(ctx context.Context, key *model.APIKey) error {
	key.ID = uuid.Must(uuid.NewV7()).String()
	key.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO api_keys
		(id, owner_id, display_name, digest, fingerprint, visible_prefix,
		 quota_per_window, is_active, expires_at, created_at)
		VALUES
		(:id, :owner_id, :display_name, :digest, :fingerprint, :visible_prefix,
		 :quota_per_window, :is_active, :expires_at, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("insert api key: %w", err)
	}
	return nil
}

// ActiveKeysByFingerprint returns the active key rows matching the given
// non-secret fingerprint. Digests are salted and cannot be looked up by
// equality, so the authenticator bcrypt-verifies each returned candidate.
// In practice the fingerprint narrows this to at most one row.
func (s *Store) ActiveKeysByFingerprint(ctx context.Context, fingerprint string) ([]model.APIKey, error) {
	var keys []model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE fingerprint = ? AND is_active = ?")
	if err := s.db.SelectContext(ctx, &keys, q, fingerprint, true); err != nil {
		return nil, fmt.Errorf("select key candidates: %w", err)
	}
	return keys, nil
}

// ListKeysForOwner returns all keys belonging to ownerID, newest first.
func (s *Store) ListKeysForOwner(ctx context.Context, ownerID int64) ([]model.APIKey, error) {
	var keys []model.APIKey
	q := s.db.Rebind("SELECT * FROM api_keys WHERE owner_id = ? ORDER BY created_at DESC")
	if err := s.db.SelectContext(ctx, &keys, q, ownerID); err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return keys, nil
}

// TouchLastUsed sets last_used_at to now for the given key.
func (s *Store) TouchLastUsed(ctx context.Context, id string) error {
	q := s.db.Rebind("UPDATE api_keys SET last_used_at = ? WHERE id = ?")
	if _, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("touch last used: %w", err)
	}
	return nil
}

// RevokeAPIKey marks the key inactive. The update is scoped to ownerID so a
// caller can never affect another owner's key; a non-existent and a
// foreign-owned key are indistinguishable (both return ErrNotFound).
func (s *Store) RevokeAPIKey(ctx context.Context, ownerID int64, id string) error {
	q := s.db.Rebind("UPDATE api_keys SET is_active = ? WHERE id = ? AND owner_id = ?")
	result, err := s.db.ExecContext(ctx, q, false, id, ownerID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("revoke api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteAPIKey permanently removes the key row. Owner-scoped like
// RevokeAPIKey. Usage rows are retained; their cleanup is an external
// housekeeping concern.
func (s *Store) DeleteAPIKey(ctx context.Context, ownerID int64, id string) error {
	q := s.db.Rebind("DELETE FROM api_keys WHERE id = ? AND owner_id = ?")
	result, err := s.db.ExecContext(ctx, q, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete api key: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete api key rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Usage records
// ---------------------------------------------------------------------------

// InsertUsage appends one usage row. ID and CreatedAt are populated here.
// Rows are never mutated or deleted by this subsystem.
func (s *Store) InsertUsage(ctx context.Context, rec *model.UsageRecord) error {
	rec.ID = uuid.Must(uuid.NewV7()).String()
	rec.CreatedAt = time.Now().UTC()

	const q = `INSERT INTO usage_records
		(id, api_key_id, owner_id, endpoint, http_method, status_code,
		 latency_ms, client_ip, user_agent, request_id, created_at)
		VALUES
		(:id, :api_key_id, :owner_id, :endpoint, :http_method, :status_code,
		 :latency_ms, :client_ip, :user_agent, :request_id, :created_at)`

	if _, err := s.db.NamedExecContext(ctx, q, rec); err != nil {
		return fmt.Errorf("insert usage record: %w", err)
	}
	return nil
}

// CountUsageSince returns the number of usage rows for keyID created at or
// after since. This is the rolling-window count the rate limiter decides on.
func (s *Store) CountUsageSince(ctx context.Context, keyID string, since time.Time) (int, error) {
	var count int
	q := s.db.Rebind("SELECT COUNT(*) FROM usage_records WHERE api_key_id = ? AND created_at >= ?")
	if err := s.db.GetContext(ctx, &count, q, keyID, since.UTC()); err != nil {
		return 0, fmt.Errorf("count usage records: %w", err)
	}
	return count, nil
}

// ListUsageForKey returns the most recent usage rows for one of ownerID's
// keys, newest first. The join scopes access to the owner.
func (s *Store) ListUsageForKey(ctx context.Context, ownerID int64, keyID string, limit int) ([]model.UsageRecord, error) {
	var recs []model.UsageRecord
	q := s.db.Rebind(`SELECT u.* FROM usage_records u
		JOIN api_keys k ON k.id = u.api_key_id
		WHERE u.api_key_id = ? AND k.owner_id = ?
		ORDER BY u.created_at DESC LIMIT ?`)
	if err := s.db.SelectContext(ctx, &recs, q, keyID, ownerID, limit); err != nil {
		return nil, fmt.Errorf("list usage records: %w", err)
	}
	return recs, nil
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

// CreateAccount inserts a new owner account. The password hash must already
// be set. ID and CreatedAt are populated after insert.
func (s *Store) CreateAccount(ctx context.Context, acct *model.Account) error {
	acct.CreatedAt = time.Now().UTC()

	if s.driver == DriverPostgres {
		const q = `INSERT INTO accounts (email, password_hash, name, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`
		if err := s.db.GetContext(ctx, &acct.ID, q,
			acct.Email, acct.PasswordHash, acct.Name, acct.IsActive, acct.CreatedAt); err != nil {
			return fmt.Errorf("insert account: %w", err)
		}
		return nil
	}

	const q = `INSERT INTO accounts (email, password_hash, name, is_active, created_at)
		VALUES (:email, :password_hash, :name, :is_active, :created_at)`
	result, err := s.db.NamedExecContext(ctx, q, acct)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("get account id: %w", err)
	}
	acct.ID = id
	return nil
}

// GetAccountByEmail looks up an account by its unique email.
func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*model.Account, error) {
	var acct model.Account
	q := s.db.Rebind("SELECT * FROM accounts WHERE email = ?")
	if err := s.db.GetContext(ctx, &acct, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return &acct, nil
}

// GetAccount looks up an account by ID.
func (s *Store) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	var acct model.Account
	q := s.db.Rebind("SELECT * FROM accounts WHERE id = ?")
	if err := s.db.GetContext(ctx, &acct, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acct, nil
}

// TouchAccountLogin sets last_login_at to now for the given account.
func (s *Store) TouchAccountLogin(ctx context.Context, id int64) error {
	q := s.db.Rebind("UPDATE accounts SET last_login_at = ? WHERE id = ?")
	if _, err := s.db.ExecContext(ctx, q, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("touch account login: %w", err)
	}
	return nil
}
