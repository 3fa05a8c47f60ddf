package preference

import "context"

// Selection is a user's last-selected organization and team, used only to
// restore dashboard context. Not authoritative for any business rule.
type Selection struct {
	AccountID      string  `db:"account_id" json:"-"`
	OrganizationID *string `db:"organization_id" json:"organizationId"`
	TeamID         *string `db:"team_id" json:"teamId"`
}

type Store interface {
	// Get returns the stored selection or (nil, nil) when never set.
	Get(ctx context.Context, accountID string) (*Selection, error)
	Upsert(ctx context.Context, sel *Selection) error
}

type Service struct {
	store Store
}

func NewService(store Store) *Service { return &Service{store: store} }

// Get returns the user's selection; both ids are nil when never set.
func (s *Service) Get(ctx context.Context, accountID string) (*Selection, error) {
	sel, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if sel == nil {
		return &Selection{AccountID: accountID}, nil
	}
	return sel, nil
}

// Set upserts the pair. Existence validation is the caller's concern.
func (s *Service) Set(ctx context.Context, accountID, organizationID, teamID string) error {
	sel := &Selection{AccountID: accountID}
	if organizationID != "" {
		sel.OrganizationID = &organizationID
	}
	if teamID != "" {
		sel.TeamID = &teamID
	}
	return s.store.Upsert(ctx, sel)
}
