package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const errForeignKeyViolation pq.ErrorCode = "23503"

// dbtx defines the interface for database and transactions
type dbtx interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// PostgresConfig holds the configuration for connecting to a Postgres database
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DB       string
	SSLMode  string
}

// PostgresStore implements the Store interface using a Postgres database
type PostgresStore struct {
	db dbtx
}

// NewPostgresDB creates a new Postgres database connection
func NewPostgresDB(cfg PostgresConfig) (*sql.DB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	db, err := sql.Open("postgres", fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.DB,
		sslMode))
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return db, nil
}

// NewPostgresStore creates a new PostgresStore instance
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// UserExists reports whether the identity backend knows userID
func (s *PostgresStore) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM users WHERE id=$1)", userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query user: %w", err)
	}

	return exists, nil
}

// UpsertLinkedAccount inserts the account or replaces the stored credentials in
// a single statement, so concurrent writers never produce a second row.
func (s *PostgresStore) UpsertLinkedAccount(ctx context.Context, r UpsertLinkedAccountRequest) (LinkedAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO linked_accounts (local_user_id, provider, provider_user_id, access_token, refresh_token, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (local_user_id, provider) DO UPDATE SET
		   provider_user_id = EXCLUDED.provider_user_id,
		   access_token = EXCLUDED.access_token,
		   refresh_token = EXCLUDED.refresh_token,
		   expires_at = EXCLUDED.expires_at,
		   updated_at = NOW()
		 RETURNING local_user_id, provider, provider_user_id, access_token, refresh_token, expires_at, created_at, updated_at`,
		r.LocalUserID,
		r.Provider,
		r.ProviderUserID,
		r.AccessToken,
		r.RefreshToken,
		nullTime(r.ExpiresAt))

	acc, err := scanLinkedAccount(row)
	if err != nil {
		if isPqErr(err, errForeignKeyViolation) {
			return LinkedAccount{}, ErrUserNotFound
		}

		return LinkedAccount{}, fmt.Errorf("upsert linked account: %w", err)
	}

	return acc, nil
}

// GetLinkedAccount retrieves the account of a user for a provider
func (s *PostgresStore) GetLinkedAccount(ctx context.Context, r GetLinkedAccountRequest) (LinkedAccount, error) {
	return s.getLinkedAccount(ctx, r, "")
}

// GetLinkedAccountForUpdate is GetLinkedAccount that also locks the row until
// the surrounding transaction ends
func (s *PostgresStore) GetLinkedAccountForUpdate(ctx context.Context, r GetLinkedAccountRequest) (LinkedAccount, error) {
	if _, ok := s.db.(*sql.Tx); !ok {
		return LinkedAccount{}, errors.New("row lock requires a transaction")
	}

	return s.getLinkedAccount(ctx, r, " FOR UPDATE")
}

func (s *PostgresStore) getLinkedAccount(ctx context.Context, r GetLinkedAccountRequest, suffix string) (LinkedAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT local_user_id, provider, provider_user_id, access_token, refresh_token, expires_at, created_at, updated_at
		 FROM linked_accounts
		 WHERE local_user_id=$1 AND provider=$2`+suffix, r.LocalUserID, r.Provider)

	acc, err := scanLinkedAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LinkedAccount{}, ErrNotFound
		}

		return LinkedAccount{}, fmt.Errorf("scan: %w", err)
	}

	return acc, nil
}

// UpdateTokens replaces the credential pair of an existing account
func (s *PostgresStore) UpdateTokens(ctx context.Context, r UpdateTokensRequest) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE linked_accounts
		 SET access_token=$3, refresh_token=$4, expires_at=$5, updated_at=NOW()
		 WHERE local_user_id=$1 AND provider=$2`,
		r.LocalUserID,
		r.Provider,
		r.AccessToken,
		r.RefreshToken,
		nullTime(r.ExpiresAt))
	if err != nil {
		return fmt.Errorf("update tokens: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return nil
}

// DeleteLinkedAccount removes the account and reports whether a row existed
func (s *PostgresStore) DeleteLinkedAccount(ctx context.Context, r DeleteLinkedAccountRequest) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM linked_accounts WHERE local_user_id=$1 AND provider=$2", r.LocalUserID, r.Provider)
	if err != nil {
		return false, fmt.Errorf("delete linked account: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	return n > 0, nil
}

// WithTx executes the given function within a database transaction
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		return errors.New("already in transaction")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	sx := &PostgresStore{db: tx}
	if err = fn(sx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback: %v after: %w", rbErr, err)
		}

		return fmt.Errorf("transaction: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	return nil
}

func scanLinkedAccount(row *sql.Row) (LinkedAccount, error) {
	var (
		acc     LinkedAccount
		expires sql.NullTime
	)

	err := row.Scan(
		&acc.LocalUserID,
		&acc.Provider,
		&acc.ProviderUserID,
		&acc.AccessToken,
		&acc.RefreshToken,
		&expires,
		&acc.CreatedAt,
		&acc.UpdatedAt)
	if err != nil {
		return LinkedAccount{}, err
	}

	if expires.Valid {
		acc.ExpiresAt = expires.Time
	}

	return acc, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

func isPqErr(err error, code pq.ErrorCode) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == code
	}
	return false
}
