package repo

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/squadpulse/service-core/internal/identity"
	"github.com/squadpulse/service-core/internal/identity/entity"
	"github.com/squadpulse/service-core/pkg/database"
)

// UserRepo provides data access for the users table using sqlx. It
// implements identity.Store.
type UserRepo struct {
	db        *sqlx.DB
	schemaOne sync.Once
	schemaErr error
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

// EnsureSchema creates the users table and its unique indexes. The DDL is
// idempotent and additionally latched behind a process-scoped once guard so
// repeated calls are free.
func (r *UserRepo) EnsureSchema(ctx context.Context) error {
	r.schemaOne.Do(func() {
		const ddl = `
CREATE TABLE IF NOT EXISTS users (
  provider_account_id TEXT PRIMARY KEY,
  email TEXT,
  name TEXT,
  image TEXT,
  anonymous_id TEXT NOT NULL,
  anonymous_username TEXT,
  role TEXT NOT NULL DEFAULT 'MEMBER',
  blocked BOOLEAN NOT NULL DEFAULT false,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_anonymous_username ON users (anonymous_username);
CREATE UNIQUE INDEX IF NOT EXISTS idx_users_anonymous_id ON users (anonymous_id);
`
		_, r.schemaErr = r.db.ExecContext(ctx, ddl)
	})
	return r.schemaErr
}

func (r *UserRepo) Get(ctx context.Context, accountID string) (*entity.User, error) {
	const q = `SELECT provider_account_id, email, name, image, anonymous_id, anonymous_username,
		role, blocked, created_at, updated_at
	  FROM users WHERE provider_account_id=$1`
	var row entity.User
	if err := r.db.GetContext(ctx, &row, q, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *UserRepo) Insert(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (provider_account_id, email, name, image, anonymous_id, anonymous_username, role, blocked)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false)`
	_, err := r.db.ExecContext(ctx, q, u.AccountID, u.Email, u.Name, u.Image, u.AnonymousID, u.AnonymousUsername, u.Role)
	if err != nil {
		switch {
		case database.IsUniqueViolation(err, "users_pkey"):
			return identity.ErrAccountExists
		case database.IsUniqueViolation(err, ""):
			// anonymous_username or anonymous_id collision; both are
			// regenerated on retry
			return identity.ErrConflict
		}
		return err
	}
	return nil
}

func (r *UserRepo) RefreshProfile(ctx context.Context, accountID string, email, name, image *string, role string) error {
	const q = `UPDATE users SET email=$2, name=$3, image=$4, role=$5, updated_at=NOW() WHERE provider_account_id=$1`
	_, err := r.db.ExecContext(ctx, q, accountID, email, name, image, role)
	return err
}

func (r *UserRepo) ClaimPseudonym(ctx context.Context, accountID, username string) (bool, error) {
	const q = `UPDATE users SET anonymous_username=$2, updated_at=NOW()
		WHERE provider_account_id=$1 AND anonymous_username IS NULL`
	res, err := r.db.ExecContext(ctx, q, accountID, username)
	if err != nil {
		if database.IsUniqueViolation(err, "idx_users_anonymous_username") {
			return false, identity.ErrConflict
		}
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *UserRepo) AccountsWithDuplicatePseudonyms(ctx context.Context) ([]string, error) {
	// every holder of a duplicated pseudonym except the oldest one
	const q = `SELECT provider_account_id FROM (
		SELECT provider_account_id,
		       COUNT(*) OVER (PARTITION BY anonymous_username) AS holders,
		       ROW_NUMBER() OVER (PARTITION BY anonymous_username ORDER BY created_at, provider_account_id) AS rn
		FROM users WHERE anonymous_username IS NOT NULL
	) ranked WHERE holders > 1 AND rn > 1`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, q); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *UserRepo) ClearPseudonym(ctx context.Context, accountID string) error {
	const q = `UPDATE users SET anonymous_username=NULL, updated_at=NOW() WHERE provider_account_id=$1`
	_, err := r.db.ExecContext(ctx, q, accountID)
	return err
}

func (r *UserRepo) Pseudonyms(ctx context.Context, accountIDs []string) (map[string]string, error) {
	q, args, err := sqlx.In(`SELECT provider_account_id, anonymous_username FROM users
		WHERE provider_account_id IN (?) AND anonymous_username IS NOT NULL`, accountIDs)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string, len(accountIDs))
	for rows.Next() {
		var id, username string
		if err := rows.Scan(&id, &username); err != nil {
			return nil, err
		}
		out[id] = username
	}
	return out, rows.Err()
}
