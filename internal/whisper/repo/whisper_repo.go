package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/squadpulse/service-core/internal/whisper"
)

// WhisperRepo backs the whisper board with Postgres. Implements
// whisper.Store.
type WhisperRepo struct {
	db        *sqlx.DB
	schemaOne sync.Once
	schemaErr error
}

func NewWhisperRepo(db *sqlx.DB) *WhisperRepo { return &WhisperRepo{db: db} }

func (r *WhisperRepo) EnsureSchema(ctx context.Context) error {
	r.schemaOne.Do(func() {
		const ddl = `
CREATE TABLE IF NOT EXISTS whispers (
  id TEXT PRIMARY KEY,
  account_id TEXT NOT NULL REFERENCES users(provider_account_id),
  organization_id TEXT NOT NULL REFERENCES organizations(id),
  team_id TEXT REFERENCES teams(id),
  category TEXT NOT NULL DEFAULT 'general',
  content TEXT NOT NULL,
  share_count INT NOT NULL DEFAULT 0 CHECK (share_count >= 0),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_whispers_org_created ON whispers (organization_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_whispers_team ON whispers (team_id);
CREATE TABLE IF NOT EXISTS whisper_likes (
  whisper_id TEXT NOT NULL REFERENCES whispers(id),
  account_id TEXT NOT NULL REFERENCES users(provider_account_id),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  PRIMARY KEY (whisper_id, account_id)
);
CREATE TABLE IF NOT EXISTS whisper_comments (
  id TEXT PRIMARY KEY,
  whisper_id TEXT NOT NULL REFERENCES whispers(id),
  account_id TEXT NOT NULL REFERENCES users(provider_account_id),
  content TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_whisper_comments_whisper ON whisper_comments (whisper_id, created_at);
CREATE TABLE IF NOT EXISTS whisper_reports (
  id TEXT PRIMARY KEY,
  whisper_id TEXT NOT NULL REFERENCES whispers(id),
  account_id TEXT NOT NULL REFERENCES users(provider_account_id),
  reason TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
		_, r.schemaErr = r.db.ExecContext(ctx, ddl)
	})
	return r.schemaErr
}

func (r *WhisperRepo) Insert(ctx context.Context, w *whisper.Whisper) error {
	const q = `INSERT INTO whispers (id, account_id, organization_id, team_id, category, content, share_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)`
	_, err := r.db.ExecContext(ctx, q, w.ID, w.AccountID, w.OrganizationID, w.TeamID, w.Category, w.Content, w.CreatedAt, w.UpdatedAt)
	return err
}

func (r *WhisperRepo) Update(ctx context.Context, id, accountID string, content *string, category *whisper.Category) (*whisper.Whisper, error) {
	const q = `UPDATE whispers SET
			content = COALESCE($3, content),
			category = COALESCE($4, category),
			updated_at = NOW()
		WHERE id=$1 AND account_id=$2
		RETURNING id, account_id, organization_id, team_id, category, content, share_count, created_at, updated_at`
	var row whisper.Whisper
	if err := r.db.GetContext(ctx, &row, q, id, accountID, content, category); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

// DeleteCascade wraps the three owner-scoped deletes in one transaction so
// a crash mid-sequence cannot orphan comments or likes.
func (r *WhisperRepo) DeleteCascade(ctx context.Context, id, accountID string) (bool, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	const guard = `SELECT 1 FROM whispers WHERE id=$1 AND account_id=$2`
	var one int
	if err := tx.GetContext(ctx, &one, guard, id, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM whisper_comments WHERE whisper_id=$1`, id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM whisper_likes WHERE whisper_id=$1`, id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM whisper_reports WHERE whisper_id=$1`, id); err != nil {
		return false, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM whispers WHERE id=$1 AND account_id=$2`, id, accountID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *WhisperRepo) Get(ctx context.Context, id string) (*whisper.Whisper, error) {
	const q = `SELECT id, account_id, organization_id, team_id, category, content, share_count, created_at, updated_at
		FROM whispers WHERE id=$1`
	var row whisper.Whisper
	if err := r.db.GetContext(ctx, &row, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *WhisperRepo) HasLike(ctx context.Context, whisperID, accountID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM whisper_likes WHERE whisper_id=$1 AND account_id=$2)`
	var has bool
	if err := r.db.GetContext(ctx, &has, q, whisperID, accountID); err != nil {
		return false, err
	}
	return has, nil
}

func (r *WhisperRepo) InsertLike(ctx context.Context, whisperID, accountID string) error {
	// conflict-ignore: a racing duplicate insert is a no-op
	const q = `INSERT INTO whisper_likes (whisper_id, account_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := r.db.ExecContext(ctx, q, whisperID, accountID)
	return err
}

func (r *WhisperRepo) DeleteLike(ctx context.Context, whisperID, accountID string) error {
	const q = `DELETE FROM whisper_likes WHERE whisper_id=$1 AND account_id=$2`
	_, err := r.db.ExecContext(ctx, q, whisperID, accountID)
	return err
}

func (r *WhisperRepo) CountLikes(ctx context.Context, whisperID string) (int, error) {
	const q = `SELECT COUNT(*) FROM whisper_likes WHERE whisper_id=$1`
	var n int
	if err := r.db.GetContext(ctx, &n, q, whisperID); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *WhisperRepo) InsertComment(ctx context.Context, c *whisper.Comment) error {
	const q = `INSERT INTO whisper_comments (id, whisper_id, account_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, q, c.ID, c.WhisperID, c.AccountID, c.Content, c.CreatedAt)
	return err
}

func (r *WhisperRepo) IncrementShare(ctx context.Context, whisperID string) (int, bool, error) {
	const q = `UPDATE whispers SET share_count = share_count + 1, updated_at=NOW() WHERE id=$1 RETURNING share_count`
	var n int
	if err := r.db.GetContext(ctx, &n, q, whisperID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return n, true, nil
}

func (r *WhisperRepo) InsertReport(ctx context.Context, rep *whisper.Report) error {
	const q = `INSERT INTO whisper_reports (id, whisper_id, account_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.ExecContext(ctx, q, rep.ID, rep.WhisperID, rep.AccountID, rep.Reason, rep.CreatedAt)
	return err
}

// scopeWhere builds the shared org/team filter so every wall query applies
// the identical scoping.
func scopeWhere(scope whisper.Scope, alias string, args []any) (string, []any) {
	where := fmt.Sprintf("%s.organization_id = $%d", alias, len(args)+1)
	args = append(args, scope.OrganizationID)
	if scope.TeamID != "" {
		where += fmt.Sprintf(" AND %s.team_id = $%d", alias, len(args)+1)
		args = append(args, scope.TeamID)
	}
	return where, args
}

func (r *WhisperRepo) ListScoped(ctx context.Context, scope whisper.Scope, categories []whisper.Category, limit int) ([]whisper.Whisper, error) {
	where, args := scopeWhere(scope, "w", nil)
	if len(categories) > 0 {
		where += fmt.Sprintf(" AND w.category = ANY($%d)", len(args)+1)
		cats := make([]string, len(categories))
		for i, c := range categories {
			cats[i] = string(c)
		}
		args = append(args, pq.Array(cats))
	}
	q := fmt.Sprintf(`SELECT w.id, w.account_id, w.organization_id, w.team_id, w.category, w.content, w.share_count, w.created_at, w.updated_at
		FROM whispers w WHERE %s ORDER BY w.created_at DESC LIMIT $%d`, where, len(args)+1)
	args = append(args, limit)

	var rows []whisper.Whisper
	if err := r.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *WhisperRepo) LikeCounts(ctx context.Context, whisperIDs []string) (map[string]int, error) {
	out := make(map[string]int, len(whisperIDs))
	if len(whisperIDs) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT whisper_id, COUNT(*) FROM whisper_likes WHERE whisper_id IN (?) GROUP BY whisper_id`, whisperIDs)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (r *WhisperRepo) LikedSet(ctx context.Context, whisperIDs []string, accountID string) (map[string]bool, error) {
	out := make(map[string]bool, len(whisperIDs))
	if len(whisperIDs) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT whisper_id FROM whisper_likes WHERE account_id = ? AND whisper_id IN (?)`, accountID, whisperIDs)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = true
	}
	return out, rows.Err()
}

func (r *WhisperRepo) CommentsFor(ctx context.Context, whisperIDs []string) (map[string][]whisper.Comment, error) {
	out := make(map[string][]whisper.Comment, len(whisperIDs))
	if len(whisperIDs) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT id, whisper_id, account_id, content, created_at
		FROM whisper_comments WHERE whisper_id IN (?) ORDER BY created_at`, whisperIDs)
	if err != nil {
		return nil, err
	}
	var rows []whisper.Comment
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	for _, c := range rows {
		out[c.WhisperID] = append(out[c.WhisperID], c)
	}
	return out, nil
}

func (r *WhisperRepo) Stats(ctx context.Context, scope whisper.Scope) (whisper.WallStats, error) {
	stats := whisper.WallStats{Categories: make(map[whisper.Category]int, len(whisper.Categories))}

	where, args := scopeWhere(scope, "w", nil)

	q := fmt.Sprintf(`SELECT COUNT(*), COALESCE(SUM(w.share_count), 0) FROM whispers w WHERE %s`, where)
	if err := r.db.QueryRowxContext(ctx, q, args...).Scan(&stats.TotalPosts, &stats.TotalShares); err != nil {
		return stats, err
	}

	q = fmt.Sprintf(`SELECT COUNT(*) FROM whisper_likes l JOIN whispers w ON w.id = l.whisper_id WHERE %s`, where)
	if err := r.db.QueryRowxContext(ctx, q, args...).Scan(&stats.TotalLikes); err != nil {
		return stats, err
	}

	q = fmt.Sprintf(`SELECT COUNT(*) FROM whisper_comments c JOIN whispers w ON w.id = c.whisper_id WHERE %s`, where)
	if err := r.db.QueryRowxContext(ctx, q, args...).Scan(&stats.TotalComments); err != nil {
		return stats, err
	}

	q = fmt.Sprintf(`SELECT w.category, COUNT(*) FROM whispers w WHERE %s GROUP BY w.category`, where)
	rows, err := r.db.QueryxContext(ctx, q, args...)
	if err != nil {
		return stats, err
	}
	defer rows.Close()
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return stats, err
		}
		stats.Categories[whisper.Category(category)] = n
	}
	return stats, rows.Err()
}

func (r *WhisperRepo) RecentActivity(ctx context.Context, scope whisper.Scope, limit int) ([]whisper.Activity, error) {
	whereW, args := scopeWhere(scope, "w", nil)
	whereC, args := scopeWhere(scope, "w2", args)
	q := fmt.Sprintf(`SELECT account_id, MAX(last_at) AS last_active_at FROM (
			SELECT w.account_id, MAX(w.created_at) AS last_at FROM whispers w WHERE %s GROUP BY w.account_id
			UNION ALL
			SELECT c.account_id, MAX(c.created_at) AS last_at FROM whisper_comments c
				JOIN whispers w2 ON w2.id = c.whisper_id WHERE %s GROUP BY c.account_id
		) activity GROUP BY account_id ORDER BY last_active_at DESC LIMIT $%d`, whereW, whereC, len(args)+1)
	args = append(args, limit)

	var out []whisper.Activity
	if err := r.db.SelectContext(ctx, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}
