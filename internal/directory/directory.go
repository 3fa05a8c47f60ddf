package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/squadpulse/service-core/pkg/utilities"
)

// Seeded tenancy defaults so the system is usable with zero configuration.
const (
	DefaultOrganizationName = "SquadPulse"
	DefaultTeamName         = "General"
)

var (
	ErrValidation = errors.New("invalid argument")
	ErrNotFound   = errors.New("not found")
	// ErrConflict marks the losing side of a find-or-create race on the
	// (organization, lower(name)) unique index. Resolved internally by
	// re-reading the winner's row; never surfaced to callers.
	ErrConflict = errors.New("name conflict")
)

type Organization struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

type Team struct {
	ID             string  `db:"id" json:"id"`
	OrganizationID string  `db:"organization_id" json:"organizationId"`
	Name           string  `db:"name" json:"name"`
	CreatedBy      *string `db:"created_by" json:"-"`
}

// Store is the persistence contract for the tenancy directory.
type Store interface {
	ListOrganizations(ctx context.Context) ([]Organization, error)
	GetOrganization(ctx context.Context, id string) (*Organization, error)
	FindOrganizationByName(ctx context.Context, name string) (*Organization, error)
	InsertOrganization(ctx context.Context, org *Organization) error
	ListTeams(ctx context.Context, organizationID string) ([]Team, error)
	GetTeam(ctx context.Context, id string) (*Team, error)
	FindTeamByName(ctx context.Context, organizationID, name string) (*Team, error)
	InsertTeam(ctx context.Context, team *Team) error
}

// Service manages the organization/team hierarchy that scopes all other
// data.
type Service struct {
	store        Store
	defaultOrgID string
}

func NewService(store Store) *Service { return &Service{store: store} }

// Seed guarantees the default organization and team exist, remembering the
// default organization id for scope defaulting. Run once at startup before
// serving.
func (s *Service) Seed(ctx context.Context) error {
	org, err := s.ensureOrganization(ctx, DefaultOrganizationName)
	if err != nil {
		return fmt.Errorf("seed default organization: %w", err)
	}
	s.defaultOrgID = org.ID
	if _, err := s.CreateTeam(ctx, org.ID, DefaultTeamName, nil); err != nil {
		return fmt.Errorf("seed default team: %w", err)
	}
	return nil
}

// DefaultOrganizationID returns the seeded default organization's id.
func (s *Service) DefaultOrganizationID() string { return s.defaultOrgID }

// ListOrganizations returns all organizations, alphabetically.
func (s *Service) ListOrganizations(ctx context.Context) ([]Organization, error) {
	return s.store.ListOrganizations(ctx)
}

// GetOrganization returns the organization or (nil, nil) when absent.
func (s *Service) GetOrganization(ctx context.Context, id string) (*Organization, error) {
	return s.store.GetOrganization(ctx, id)
}

// ListTeams returns the organization's teams alphabetically, defaulting to
// the seeded organization when no id is given.
func (s *Service) ListTeams(ctx context.Context, organizationID string) ([]Team, error) {
	if organizationID == "" {
		organizationID = s.defaultOrgID
	}
	return s.store.ListTeams(ctx, organizationID)
}

// GetTeam returns the team or (nil, nil) when absent.
func (s *Service) GetTeam(ctx context.Context, id string) (*Team, error) {
	return s.store.GetTeam(ctx, id)
}

// CreateTeam is the idempotent find-or-create: an existing team with the
// same case-insensitive name in the organization is returned as-is, not an
// error. Two concurrent creates are settled by the unique index; the loser
// reads the winner's row.
func (s *Service) CreateTeam(ctx context.Context, organizationID, name string, createdBy *string) (*Team, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: team name required", ErrValidation)
	}
	if organizationID == "" {
		organizationID = s.defaultOrgID
	}
	if existing, err := s.store.FindTeamByName(ctx, organizationID, name); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}

	team := &Team{
		ID:             utilities.NewSnowflakeID(),
		OrganizationID: organizationID,
		Name:           name,
		CreatedBy:      createdBy,
	}
	err := s.store.InsertTeam(ctx, team)
	if err == nil {
		return team, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, fmt.Errorf("insert team %q: %w", name, err)
	}
	winner, ferr := s.store.FindTeamByName(ctx, organizationID, name)
	if ferr != nil {
		return nil, ferr
	}
	if winner == nil {
		return nil, fmt.Errorf("team %q conflicted but is not readable", name)
	}
	return winner, nil
}

func (s *Service) ensureOrganization(ctx context.Context, name string) (*Organization, error) {
	if existing, err := s.store.FindOrganizationByName(ctx, name); err != nil {
		return nil, err
	} else if existing != nil {
		return existing, nil
	}
	org := &Organization{ID: utilities.NewSnowflakeID(), Name: name}
	err := s.store.InsertOrganization(ctx, org)
	if err == nil {
		return org, nil
	}
	if !errors.Is(err, ErrConflict) {
		return nil, err
	}
	return s.store.FindOrganizationByName(ctx, name)
}
