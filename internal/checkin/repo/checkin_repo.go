package repo

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/squadpulse/service-core/internal/checkin"
)

// CheckinRepo backs the check-in ledger with Postgres. Implements
// checkin.Store.
type CheckinRepo struct {
	db        *sqlx.DB
	schemaOne sync.Once
	schemaErr error
}

func NewCheckinRepo(db *sqlx.DB) *CheckinRepo { return &CheckinRepo{db: db} }

func (r *CheckinRepo) EnsureSchema(ctx context.Context) error {
	r.schemaOne.Do(func() {
		const ddl = `
CREATE TABLE IF NOT EXISTS checkins (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL REFERENCES users(provider_account_id),
  team_id TEXT REFERENCES teams(id),
  mood INT NOT NULL CHECK (mood BETWEEN 1 AND 5),
  note TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_checkins_account_created ON checkins (account_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_checkins_team ON checkins (team_id);
CREATE TABLE IF NOT EXISTS checkin_comments (
  id TEXT PRIMARY KEY,
  checkin_id TEXT NOT NULL REFERENCES checkins(id),
  account_id TEXT NOT NULL REFERENCES users(provider_account_id),
  content TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_checkin_comments_checkin ON checkin_comments (checkin_id, created_at DESC);
`
		_, r.schemaErr = r.db.ExecContext(ctx, ddl)
	})
	return r.schemaErr
}

func (r *CheckinRepo) Insert(ctx context.Context, c *checkin.Checkin) error {
	const q = `INSERT INTO checkins (id, account_id, team_id, mood, note, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.AccountID, c.TeamID, c.Mood, c.Note, c.CreatedAt)
	return err
}

func (r *CheckinRepo) ListByUser(ctx context.Context, accountID string, limit int) ([]checkin.Checkin, error) {
	const q = `SELECT c.id, c.account_id, c.team_id, c.mood, c.note, c.created_at, t.name AS team_name
		FROM checkins c LEFT JOIN teams t ON t.id = c.team_id
		WHERE c.account_id=$1 ORDER BY c.created_at DESC LIMIT $2`
	var rows []checkin.Checkin
	if err := r.db.SelectContext(ctx, &rows, q, accountID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CheckinRepo) UserStats(ctx context.Context, accountID string) (checkin.Stats, error) {
	const q = `SELECT COALESCE(AVG(mood), 0) AS average_mood, COUNT(*) AS total, MAX(created_at) AS last_at
		FROM checkins WHERE account_id=$1`
	var row struct {
		AverageMood float64       `db:"average_mood"`
		Total       int           `db:"total"`
		LastAt      *sql.NullTime `db:"last_at"`
	}
	if err := r.db.GetContext(ctx, &row, q, accountID); err != nil {
		return checkin.Stats{}, err
	}
	stats := checkin.Stats{AverageMood: row.AverageMood, TotalCheckins: row.Total}
	if row.LastAt != nil && row.LastAt.Valid {
		t := row.LastAt.Time
		stats.LastCheckinAt = &t
	}
	return stats, nil
}

func (r *CheckinRepo) ListTeamFeed(ctx context.Context, teamID, accountID string, limit int) ([]checkin.Checkin, error) {
	const q = `SELECT c.id, c.account_id, c.team_id, c.mood, c.note, c.created_at, t.name AS team_name
		FROM checkins c LEFT JOIN teams t ON t.id = c.team_id
		WHERE c.team_id=$1 AND c.account_id=$2 ORDER BY c.created_at DESC LIMIT $3`
	var rows []checkin.Checkin
	if err := r.db.SelectContext(ctx, &rows, q, teamID, accountID, limit); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *CheckinRepo) GetCheckin(ctx context.Context, id string) (*checkin.Checkin, error) {
	const q = `SELECT id, account_id, team_id, mood, note, created_at FROM checkins WHERE id=$1`
	var row checkin.Checkin
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *CheckinRepo) InsertComment(ctx context.Context, c *checkin.Comment) error {
	const q = `INSERT INTO checkin_comments (id, checkin_id, account_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.CheckinID, c.AccountID, c.Content, c.CreatedAt)
	return err
}

func (r *CheckinRepo) ListComments(ctx context.Context, checkinID string) ([]checkin.Comment, error) {
	const q = `SELECT id, checkin_id, account_id, content, created_at
		FROM checkin_comments WHERE checkin_id=$1 ORDER BY created_at DESC`
	var rows []checkin.Comment
	if err := r.db.SelectContext(ctx, &rows, q, checkinID); err != nil {
		return nil, err
	}
	return rows, nil
}
