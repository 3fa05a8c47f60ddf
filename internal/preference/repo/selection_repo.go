package repo

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/squadpulse/service-core/internal/preference"
)

// SelectionRepo persists per-user dashboard context. Implements
// preference.Store.
type SelectionRepo struct {
	db        *sqlx.DB
	schemaOne sync.Once
	schemaErr error
}

func NewSelectionRepo(db *sqlx.DB) *SelectionRepo { return &SelectionRepo{db: db} }

func (r *SelectionRepo) EnsureSchema(ctx context.Context) error {
	r.schemaOne.Do(func() {
		const ddl = `
CREATE TABLE IF NOT EXISTS user_selections (
  account_id TEXT PRIMARY KEY REFERENCES users(provider_account_id),
  organization_id TEXT,
  team_id TEXT,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
		_, r.schemaErr = r.db.ExecContext(ctx, ddl)
	})
	return r.schemaErr
}

func (r *SelectionRepo) Get(ctx context.Context, accountID string) (*preference.Selection, error) {
	const q = `SELECT account_id, organization_id, team_id FROM user_selections WHERE account_id=$1`
	var sel preference.Selection
	if err := r.db.GetContext(ctx, &sel, q, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &sel, nil
}

func (r *SelectionRepo) Upsert(ctx context.Context, sel *preference.Selection) error {
	const q = `INSERT INTO user_selections (account_id, organization_id, team_id, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (account_id) DO UPDATE SET
			organization_id = EXCLUDED.organization_id,
			team_id = EXCLUDED.team_id,
			updated_at = NOW()`
	_, err := r.db.ExecContext(ctx, q, sel.AccountID, sel.OrganizationID, sel.TeamID)
	return err
}
