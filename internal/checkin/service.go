package checkin

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/squadpulse/service-core/internal/directory"
	"github.com/squadpulse/service-core/pkg/utilities"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
)

// Checkin is a single mood submission. Immutable once created.
type Checkin struct {
	ID        string    `db:"id" json:"id"`
	AccountID string    `db:"account_id" json:"-"`
	TeamID    *string   `db:"team_id" json:"teamId,omitempty"`
	Mood      int       `db:"mood" json:"mood"`
	Note      *string   `db:"note" json:"note,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	// TeamName is annotated on reads from the joined team row.
	TeamName *string `db:"team_name" json:"teamName,omitempty"`
}

// Stats summarizes one user's check-in history. Zero check-ins yields the
// zero value with a nil LastCheckinAt.
type Stats struct {
	AverageMood   float64    `json:"averageMood"`
	TotalCheckins int        `json:"totalCheckins"`
	LastCheckinAt *time.Time `json:"lastCheckinAt"`
}

// Comment is a free-text note attached to a specific check-in. Append-only.
type Comment struct {
	ID                string    `db:"id" json:"id"`
	CheckinID         string    `db:"checkin_id" json:"-"`
	AccountID         string    `db:"account_id" json:"-"`
	Content           string    `db:"content" json:"content"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	AnonymousUsername string    `db:"-" json:"anonymousUsername"`
}

// Store is the ledger's persistence contract.
type Store interface {
	Insert(ctx context.Context, c *Checkin) error
	// ListByUser returns the user's check-ins newest first, team name
	// annotated.
	ListByUser(ctx context.Context, accountID string, limit int) ([]Checkin, error)
	UserStats(ctx context.Context, accountID string) (Stats, error)
	// ListTeamFeed returns the given user's check-ins within the team,
	// newest first. Deliberately not a cross-user feed: per-user mood
	// notes stay private to their author.
	ListTeamFeed(ctx context.Context, teamID, accountID string, limit int) ([]Checkin, error)
	GetCheckin(ctx context.Context, id string) (*Checkin, error)
	InsertComment(ctx context.Context, c *Comment) error
	// ListComments returns a check-in's comments newest first.
	ListComments(ctx context.Context, checkinID string) ([]Comment, error)
}

// TeamDirectory is the slice of the directory service the ledger needs for
// team resolution.
type TeamDirectory interface {
	CreateTeam(ctx context.Context, organizationID, name string, createdBy *string) (*directory.Team, error)
	GetTeam(ctx context.Context, id string) (*directory.Team, error)
}

// PseudonymLookup resolves account ids to display pseudonyms.
type PseudonymLookup interface {
	Pseudonyms(ctx context.Context, accountIDs []string) (map[string]string, error)
}

// Service records mood submissions and computes personal statistics.
type Service struct {
	store Store
	teams TeamDirectory
	names PseudonymLookup
}

func NewService(store Store, teams TeamDirectory, names PseudonymLookup) *Service {
	return &Service{store: store, teams: teams, names: names}
}

// CreateInput carries one mood submission. TeamName wins over TeamID when
// both are set; either may be empty for a team-less check-in.
type CreateInput struct {
	AccountID      string
	Mood           int
	Note           string
	TeamID         string
	TeamName       string
	OrganizationID string
}

// Create validates and persists a check-in, resolving the target team by
// name (find-or-create) or by id (must exist).
func (s *Service) Create(ctx context.Context, in CreateInput) (*Checkin, error) {
	if in.Mood < 1 || in.Mood > 5 {
		return nil, fmt.Errorf("%w: mood must be an integer between 1 and 5", ErrValidation)
	}

	var teamID, teamName *string
	switch {
	case strings.TrimSpace(in.TeamName) != "":
		team, err := s.teams.CreateTeam(ctx, in.OrganizationID, in.TeamName, &in.AccountID)
		if err != nil {
			if errors.Is(err, directory.ErrValidation) {
				return nil, fmt.Errorf("%w: invalid team name", ErrValidation)
			}
			return nil, err
		}
		teamID, teamName = &team.ID, &team.Name
	case in.TeamID != "":
		team, err := s.teams.GetTeam(ctx, in.TeamID)
		if err != nil {
			return nil, err
		}
		if team == nil {
			return nil, fmt.Errorf("%w: team %s", ErrNotFound, in.TeamID)
		}
		teamID, teamName = &team.ID, &team.Name
	}

	c := &Checkin{
		ID:        utilities.NewSnowflakeID(),
		AccountID: in.AccountID,
		TeamID:    teamID,
		Mood:      in.Mood,
		CreatedAt: time.Now().UTC(),
		TeamName:  teamName,
	}
	if note := strings.TrimSpace(in.Note); note != "" {
		c.Note = &note
	}
	if err := s.store.Insert(ctx, c); err != nil {
		return nil, fmt.Errorf("insert checkin: %w", err)
	}
	return c, nil
}

// ListUserCheckins returns the user's most recent check-ins, newest first.
func (s *Service) ListUserCheckins(ctx context.Context, accountID string, limit int) ([]Checkin, error) {
	return s.store.ListByUser(ctx, accountID, clampLimit(limit))
}

// UserStats computes the user's all-time mood statistics.
func (s *Service) UserStats(ctx context.Context, accountID string) (Stats, error) {
	return s.store.UserStats(ctx, accountID)
}

// ListTeamFeed returns the caller's own recent check-ins within a team.
func (s *Service) ListTeamFeed(ctx context.Context, teamID, accountID string, limit int) ([]Checkin, error) {
	return s.store.ListTeamFeed(ctx, teamID, accountID, clampLimit(limit))
}

// CreateComment attaches a comment to an existing check-in and returns it
// with the author's pseudonym resolved.
func (s *Service) CreateComment(ctx context.Context, checkinID, accountID, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content required", ErrValidation)
	}
	target, err := s.store.GetCheckin(ctx, checkinID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, fmt.Errorf("%w: checkin %s", ErrNotFound, checkinID)
	}
	c := &Comment{
		ID:        utilities.NewSnowflakeID(),
		CheckinID: checkinID,
		AccountID: accountID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertComment(ctx, c); err != nil {
		return nil, fmt.Errorf("insert checkin comment: %w", err)
	}
	names, err := s.names.Pseudonyms(ctx, []string{accountID})
	if err != nil {
		return nil, err
	}
	c.AnonymousUsername = names[accountID]
	return c, nil
}

// ListComments returns a check-in's comments newest first, pseudonyms
// attached.
func (s *Service) ListComments(ctx context.Context, checkinID string) ([]Comment, error) {
	comments, err := s.store.ListComments(ctx, checkinID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(comments))
	for _, c := range comments {
		ids = append(ids, c.AccountID)
	}
	names, err := s.names.Pseudonyms(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range comments {
		comments[i].AnonymousUsername = names[comments[i].AccountID]
	}
	return comments, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
