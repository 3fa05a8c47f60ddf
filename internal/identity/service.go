package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/squadpulse/service-core/internal/identity/entity"
	"github.com/squadpulse/service-core/pkg/utilities"
)

// maxPseudonymAttempts bounds the unique-retry loop for pseudonym
// allocation. Exhausting it means the store is saturated with conflicts or
// the uniqueness invariant is corrupted; either way we fail loudly rather
// than silently assign a duplicate.
const maxPseudonymAttempts = 8

// Store is the persistence contract the resolver needs. The sqlx-backed
// implementation lives in internal/identity/repo; tests use an in-memory
// fake.
type Store interface {
	// Get returns the user row or (nil, nil) when no row exists.
	Get(ctx context.Context, accountID string) (*entity.User, error)
	// Insert creates a new row. It returns ErrAccountExists when the
	// account id is already taken and ErrConflict when the pseudonym is.
	Insert(ctx context.Context, u *entity.User) error
	// RefreshProfile updates the mutable display fields and the role.
	RefreshProfile(ctx context.Context, accountID string, email, name, image *string, role string) error
	// ClaimPseudonym sets the pseudonym only if the row currently has
	// none. It returns false when the row already had one (a concurrent
	// backfiller won) and ErrConflict when the candidate is taken.
	ClaimPseudonym(ctx context.Context, accountID, username string) (bool, error)
	// AccountsWithDuplicatePseudonyms lists every account holding a
	// duplicated pseudonym except the oldest holder of each.
	AccountsWithDuplicatePseudonyms(ctx context.Context) ([]string, error)
	// ClearPseudonym nulls the pseudonym so it can be regenerated.
	ClearPseudonym(ctx context.Context, accountID string) error
	// Pseudonyms bulk-resolves account ids to pseudonyms.
	Pseudonyms(ctx context.Context, accountIDs []string) (map[string]string, error)
}

// Profile is the identity payload delivered by the session layer once per
// login. Empty strings mean "not provided".
type Profile struct {
	AccountID string
	Email     string
	Name      string
	Image     string
}

// Record is the resolved identity handed to the rest of the system.
type Record struct {
	AccountID         string `json:"-"`
	AnonymousID       string `json:"anonymousId"`
	AnonymousUsername string `json:"anonymousUsername"`
	Role              Role   `json:"role"`
	Blocked           bool   `json:"blocked"`
}

// Service resolves external provider accounts to stable pseudonymous
// identities.
type Service struct {
	store Store
	roles *RoleConfig
}

func NewService(store Store, roles *RoleConfig) *Service {
	if roles == nil {
		roles = &RoleConfig{}
	}
	return &Service{store: store, roles: roles}
}

// EnsureUser is the idempotent login upsert. A first login inserts a row
// with a fresh anonymous id and pseudonym; subsequent logins refresh the
// display fields and recompute the role. A missing pseudonym on an existing
// row is backfilled, but an assigned one is never changed.
func (s *Service) EnsureUser(ctx context.Context, p Profile) (*Record, error) {
	if strings.TrimSpace(p.AccountID) == "" {
		return nil, errors.New("provider account id required")
	}
	role := s.roles.Derive(p.Email)

	u, err := s.store.Get(ctx, p.AccountID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", p.AccountID, err)
	}

	if u == nil {
		created, err := s.insertFresh(ctx, p, role)
		if err == nil {
			return recordOf(created), nil
		}
		if !errors.Is(err, ErrAccountExists) {
			return nil, err
		}
		// lost the first-login race; the winner's row is ours to update
		u, err = s.store.Get(ctx, p.AccountID)
		if err != nil {
			return nil, fmt.Errorf("reload user %s: %w", p.AccountID, err)
		}
		if u == nil {
			return nil, fmt.Errorf("user %s vanished after insert conflict", p.AccountID)
		}
	}

	if err := s.store.RefreshProfile(ctx, p.AccountID, optional(p.Email), optional(p.Name), optional(p.Image), string(role)); err != nil {
		return nil, fmt.Errorf("refresh profile %s: %w", p.AccountID, err)
	}
	u.Role = string(role)

	if u.AnonymousUsername == nil {
		username, err := s.backfillPseudonym(ctx, p.AccountID)
		if err != nil {
			return nil, err
		}
		u.AnonymousUsername = &username
	}
	return recordOf(u), nil
}

// GetUser is the read-only lookup. It returns (nil, nil) when no user
// exists and performs the same defensive pseudonym backfill as EnsureUser.
func (s *Service) GetUser(ctx context.Context, accountID string) (*Record, error) {
	u, err := s.store.Get(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", accountID, err)
	}
	if u == nil {
		return nil, nil
	}
	if u.AnonymousUsername == nil {
		username, err := s.backfillPseudonym(ctx, accountID)
		if err != nil {
			return nil, err
		}
		u.AnonymousUsername = &username
	}
	return recordOf(u), nil
}

// RepairPseudonyms clears every duplicated pseudonym except its oldest
// holder and regenerates replacements. Duplicates only arise from data
// migrations; the pass is idempotent and meant to run once per process,
// at startup. It returns the number of accounts reassigned.
func (s *Service) RepairPseudonyms(ctx context.Context) (int, error) {
	accounts, err := s.store.AccountsWithDuplicatePseudonyms(ctx)
	if err != nil {
		return 0, fmt.Errorf("scan duplicate pseudonyms: %w", err)
	}
	for _, id := range accounts {
		if err := s.store.ClearPseudonym(ctx, id); err != nil {
			return 0, fmt.Errorf("clear pseudonym %s: %w", id, err)
		}
		if _, err := s.backfillPseudonym(ctx, id); err != nil {
			return 0, err
		}
	}
	return len(accounts), nil
}

// Pseudonyms bulk-resolves account ids to pseudonyms for aggregate views.
func (s *Service) Pseudonyms(ctx context.Context, accountIDs []string) (map[string]string, error) {
	if len(accountIDs) == 0 {
		return map[string]string{}, nil
	}
	return s.store.Pseudonyms(ctx, accountIDs)
}

func (s *Service) insertFresh(ctx context.Context, p Profile, role Role) (*entity.User, error) {
	var created *entity.User
	err := withUniqueRetry(maxPseudonymAttempts, func() error {
		username := NewPseudonym()
		u := &entity.User{
			AccountID:         p.AccountID,
			Email:             optional(p.Email),
			Name:              optional(p.Name),
			Image:             optional(p.Image),
			AnonymousID:       utilities.NewKSUID(),
			AnonymousUsername: &username,
			Role:              string(role),
		}
		if err := s.store.Insert(ctx, u); err != nil {
			return err
		}
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) backfillPseudonym(ctx context.Context, accountID string) (string, error) {
	var assigned string
	err := withUniqueRetry(maxPseudonymAttempts, func() error {
		candidate := NewPseudonym()
		ok, err := s.store.ClaimPseudonym(ctx, accountID, candidate)
		if err != nil {
			return err
		}
		if !ok {
			// a concurrent backfiller claimed first; adopt its value
			u, err := s.store.Get(ctx, accountID)
			if err != nil {
				return err
			}
			if u == nil || u.AnonymousUsername == nil {
				return fmt.Errorf("user %s has no pseudonym after concurrent claim", accountID)
			}
			assigned = *u.AnonymousUsername
			return nil
		}
		assigned = candidate
		return nil
	})
	if err != nil {
		return "", err
	}
	return assigned, nil
}

// withUniqueRetry runs attempt until it succeeds, fails with a non-conflict
// error, or the budget is spent. ErrConflict marks an expected race on a
// unique index; anything else aborts immediately.
func withUniqueRetry(maxAttempts int, attempt func() error) error {
	var err error
	for i := 0; i < maxAttempts; i++ {
		err = attempt()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", ErrAllocationExhausted, maxAttempts, err)
}

func recordOf(u *entity.User) *Record {
	rec := &Record{
		AccountID:   u.AccountID,
		AnonymousID: u.AnonymousID,
		Role:        Role(u.Role),
		Blocked:     u.Blocked,
	}
	if u.AnonymousUsername != nil {
		rec.AnonymousUsername = *u.AnonymousUsername
	}
	return rec
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
