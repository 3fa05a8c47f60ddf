package repo

import (
	"context"
	"database/sql"
	"errors"
	"sync"

	"github.com/jmoiron/sqlx"

	"github.com/squadpulse/service-core/internal/directory"
	"github.com/squadpulse/service-core/pkg/database"
)

// DirectoryRepo backs the tenancy directory with Postgres. Implements
// directory.Store.
type DirectoryRepo struct {
	db        *sqlx.DB
	schemaOne sync.Once
	schemaErr error
}

func NewDirectoryRepo(db *sqlx.DB) *DirectoryRepo { return &DirectoryRepo{db: db} }

// EnsureSchema creates the organizations and teams tables. Team name
// uniqueness is case-insensitive within an organization via an expression
// index on lower(name).
func (r *DirectoryRepo) EnsureSchema(ctx context.Context) error {
	r.schemaOne.Do(func() {
		const ddl = `
CREATE TABLE IF NOT EXISTS organizations (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_organizations_name ON organizations (name);
CREATE TABLE IF NOT EXISTS teams (
  id TEXT PRIMARY KEY,
  organization_id TEXT NOT NULL REFERENCES organizations(id),
  name TEXT NOT NULL,
  created_by TEXT,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_teams_org_lower_name ON teams (organization_id, LOWER(name));
`
		_, r.schemaErr = r.db.ExecContext(ctx, ddl)
	})
	return r.schemaErr
}

func (r *DirectoryRepo) ListOrganizations(ctx context.Context) ([]directory.Organization, error) {
	var orgs []directory.Organization
	const q = `SELECT id, name FROM organizations ORDER BY name`
	if err := r.db.SelectContext(ctx, &orgs, q); err != nil {
		return nil, err
	}
	return orgs, nil
}

func (r *DirectoryRepo) GetOrganization(ctx context.Context, id string) (*directory.Organization, error) {
	var org directory.Organization
	const q = `SELECT id, name FROM organizations WHERE id=$1`
	if err := r.db.GetContext(ctx, &org, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *DirectoryRepo) FindOrganizationByName(ctx context.Context, name string) (*directory.Organization, error) {
	var org directory.Organization
	const q = `SELECT id, name FROM organizations WHERE name=$1`
	if err := r.db.GetContext(ctx, &org, q, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &org, nil
}

func (r *DirectoryRepo) InsertOrganization(ctx context.Context, org *directory.Organization) error {
	const q = `INSERT INTO organizations (id, name) VALUES ($1, $2)`
	_, err := r.db.ExecContext(ctx, q, org.ID, org.Name)
	if database.IsUniqueViolation(err, "idx_organizations_name") {
		return directory.ErrConflict
	}
	return err
}

func (r *DirectoryRepo) ListTeams(ctx context.Context, organizationID string) ([]directory.Team, error) {
	var teams []directory.Team
	const q = `SELECT id, organization_id, name, created_by FROM teams WHERE organization_id=$1 ORDER BY name`
	if err := r.db.SelectContext(ctx, &teams, q, organizationID); err != nil {
		return nil, err
	}
	return teams, nil
}

func (r *DirectoryRepo) GetTeam(ctx context.Context, id string) (*directory.Team, error) {
	var team directory.Team
	const q = `SELECT id, organization_id, name, created_by FROM teams WHERE id=$1`
	if err := r.db.GetContext(ctx, &team, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &team, nil
}

func (r *DirectoryRepo) FindTeamByName(ctx context.Context, organizationID, name string) (*directory.Team, error) {
	var team directory.Team
	const q = `SELECT id, organization_id, name, created_by FROM teams
		WHERE organization_id=$1 AND LOWER(name)=LOWER($2)`
	if err := r.db.GetContext(ctx, &team, q, organizationID, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &team, nil
}

func (r *DirectoryRepo) InsertTeam(ctx context.Context, team *directory.Team) error {
	const q = `INSERT INTO teams (id, organization_id, name, created_by) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, q, team.ID, team.OrganizationID, team.Name, team.CreatedBy)
	if database.IsUniqueViolation(err, "idx_teams_org_lower_name") {
		return directory.ErrConflict
	}
	return err
}
