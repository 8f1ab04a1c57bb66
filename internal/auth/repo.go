package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/byfaith/byfaith/internal/shared"
)

// SessionRecord is the Postgres audit row kept alongside the Redis session.
type SessionRecord struct {
	ID        string
	AccountID int64
	CreatedAt time.Time
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// Repository defines persistence operations for the auth module.
type Repository interface {
	CreateAccount(ctx context.Context, email, passwordHash string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByID(ctx context.Context, id int64) (*Account, error)
	UpdateState(ctx context.Context, id int64, state AccountState) error
	UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error

	ReplaceToken(ctx context.Context, token ActionToken) error
	ConsumeToken(ctx context.Context, tokenHash string, purpose TokenPurpose, now time.Time) (int64, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)

	CreateSession(ctx context.Context, rec SessionRecord) error
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context, accountID int64) ([]SessionRecord, error)
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const uniqueViolation = "23505"

// CreateAccount inserts a new unverified account.
func (r *PGRepository) CreateAccount(ctx context.Context, email, passwordHash string) (*Account, error) {
	now := time.Now().UTC()
	account := &Account{
		Email:        email,
		PasswordHash: passwordHash,
		State:        StateUnverified,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO accounts (email, password_hash, state, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $4)
		 RETURNING id`,
		email, passwordHash, string(StateUnverified), now,
	).Scan(&account.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, shared.ErrDuplicateAccount
		}
		return nil, err
	}
	return account, nil
}

// FindByEmail fetches an account by email.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	return r.scanAccount(r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, state, created_at, updated_at
		 FROM accounts WHERE email = $1`, email))
}

// FindByID fetches an account by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*Account, error) {
	return r.scanAccount(r.pool.QueryRow(ctx,
		`SELECT id, email, password_hash, state, created_at, updated_at
		 FROM accounts WHERE id = $1`, id))
}

func (r *PGRepository) scanAccount(row pgx.Row) (*Account, error) {
	var account Account
	var state string
	err := row.Scan(&account.ID, &account.Email, &account.PasswordHash, &state, &account.CreatedAt, &account.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	account.State = AccountState(state)
	return &account, nil
}

// UpdateState transitions the account lifecycle state.
func (r *PGRepository) UpdateState(ctx context.Context, id int64, state AccountState) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET state = $2, updated_at = $3 WHERE id = $1`,
		id, string(state), time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// UpdatePasswordHash replaces the stored credential hash.
func (r *PGRepository) UpdatePasswordHash(ctx context.Context, id int64, passwordHash string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		id, passwordHash, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ReplaceToken invalidates any outstanding token of the same account and
// purpose and persists the new one, in a single transaction, so at most one
// token per (account, purpose) is ever authoritative.
func (r *PGRepository) ReplaceToken(ctx context.Context, token ActionToken) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE auth_tokens SET consumed_at = $3
		 WHERE account_id = $1 AND purpose = $2 AND consumed_at IS NULL`,
		token.AccountID, string(token.Purpose), token.IssuedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO auth_tokens (account_id, token_hash, purpose, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		token.AccountID, token.TokenHash, string(token.Purpose), token.IssuedAt, token.ExpiresAt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ConsumeToken atomically flips an unconsumed, unexpired token to consumed
// and returns the bound account id. The single conditional UPDATE guarantees
// a consume race yields exactly one success.
func (r *PGRepository) ConsumeToken(ctx context.Context, tokenHash string, purpose TokenPurpose, now time.Time) (int64, error) {
	var accountID int64
	err := r.pool.QueryRow(ctx,
		`UPDATE auth_tokens SET consumed_at = $3
		 WHERE token_hash = $1 AND purpose = $2 AND consumed_at IS NULL AND expires_at > $3
		 RETURNING account_id`,
		tokenHash, string(purpose), now.UTC(),
	).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrTokenInvalid
		}
		return 0, err
	}
	return accountID, nil
}

// DeleteExpiredTokens removes tokens past their expiry. Idempotent.
func (r *PGRepository) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM auth_tokens WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// CreateSession persists a login session record for auditing and the
// per-account concurrency cap.
func (r *PGRepository) CreateSession(ctx context.Context, rec SessionRecord) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (id, account_id, created_at, expires_at, ip, user_agent)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))`,
		rec.ID, rec.AccountID, rec.CreatedAt.UTC(), rec.ExpiresAt.UTC(), rec.IP, rec.UserAgent)
	return err
}

// DeleteSession removes a session record. Deleting an unknown id is a no-op.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	return err
}

// ListSessions returns the account's session records, oldest first.
func (r *PGRepository) ListSessions(ctx context.Context, accountID int64) ([]SessionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, created_at, expires_at, COALESCE(ip, ''), COALESCE(user_agent, '')
		 FROM sessions WHERE account_id = $1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.CreatedAt, &rec.ExpiresAt, &rec.IP, &rec.UserAgent); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeleteExpiredSessions removes session audit rows past their expiry.
func (r *PGRepository) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

var _ Repository = (*PGRepository)(nil)
