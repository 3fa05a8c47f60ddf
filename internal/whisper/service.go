package whisper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/squadpulse/service-core/pkg/utilities"
)

// maxParticipants caps the recent-participants ranking on the wall.
const maxParticipants = 8

var (
	ErrValidation = errors.New("validation failed")
	// ErrNotFound covers both "no such whisper" and "not yours". The two
	// are deliberately indistinguishable so existence never leaks.
	ErrNotFound = errors.New("whisper not found")
)

// Whisper is a post row. Mutable only by its author.
type Whisper struct {
	ID             string    `db:"id"`
	AccountID      string    `db:"account_id"`
	OrganizationID string    `db:"organization_id"`
	TeamID         *string   `db:"team_id"`
	Category       Category  `db:"category"`
	Content        string    `db:"content"`
	ShareCount     int       `db:"share_count"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Comment is an append-only comment on a whisper.
type Comment struct {
	ID                string    `db:"id" json:"id"`
	WhisperID         string    `db:"whisper_id" json:"-"`
	AccountID         string    `db:"account_id" json:"-"`
	Content           string    `db:"content" json:"content"`
	CreatedAt         time.Time `db:"created_at" json:"createdAt"`
	AnonymousUsername string    `db:"-" json:"anonymousUsername"`
}

// Report is the moderation stub: a recorded complaint, nothing more.
type Report struct {
	ID        string    `db:"id" json:"id"`
	WhisperID string    `db:"whisper_id" json:"whisperId"`
	AccountID string    `db:"account_id" json:"-"`
	Reason    string    `db:"reason" json:"reason"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// View is a post shaped for display: author resolved to pseudonym, like
// state computed for the viewing caller.
type View struct {
	ID                string    `json:"id"`
	Category          Category  `json:"category"`
	Content           string    `json:"content"`
	AnonymousUsername string    `json:"anonymousUsername"`
	Likes             int       `json:"likes"`
	LikedByMe         bool      `json:"likedByMe"`
	Mine              bool      `json:"mine"`
	Shares            int       `json:"shares"`
	TeamID            *string   `json:"teamId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
	Comments          []Comment `json:"comments"`
}

// WallStats aggregates the whole scoped wall. Categories always carries all
// five keys, zero or not.
type WallStats struct {
	TotalPosts    int              `json:"totalPosts"`
	TotalLikes    int              `json:"totalLikes"`
	TotalComments int              `json:"totalComments"`
	TotalShares   int              `json:"totalShares"`
	Categories    map[Category]int `json:"categoryCounts"`
}

// Participant is one recently active author or commenter on the wall.
type Participant struct {
	AnonymousUsername string    `json:"anonymousUsername"`
	LastActiveAt      time.Time `json:"lastActiveAt"`
}

// Activity is a store-level (account, last activity) pair.
type Activity struct {
	AccountID    string    `db:"account_id"`
	LastActiveAt time.Time `db:"last_active_at"`
}

// Scope restricts wall reads to an organization and optionally one team.
type Scope struct {
	OrganizationID string
	TeamID         string // empty means the whole organization
}

// Store is the board's persistence contract.
type Store interface {
	Insert(ctx context.Context, w *Whisper) error
	// Update applies the non-nil fields to the row matching both id and
	// owner, returning (nil, nil) when no row matches.
	Update(ctx context.Context, id, accountID string, content *string, category *Category) (*Whisper, error)
	// DeleteCascade removes comments, likes, then the post itself in one
	// transaction, scoped to the owner. False when nothing matched.
	DeleteCascade(ctx context.Context, id, accountID string) (bool, error)
	Get(ctx context.Context, id string) (*Whisper, error)
	HasLike(ctx context.Context, whisperID, accountID string) (bool, error)
	// InsertLike uses conflict-ignore semantics: a duplicate insert is a
	// no-op, not an error.
	InsertLike(ctx context.Context, whisperID, accountID string) error
	DeleteLike(ctx context.Context, whisperID, accountID string) error
	CountLikes(ctx context.Context, whisperID string) (int, error)
	InsertComment(ctx context.Context, c *Comment) error
	// IncrementShare bumps the counter atomically, returning the fresh
	// count and whether the post exists.
	IncrementShare(ctx context.Context, whisperID string) (int, bool, error)
	InsertReport(ctx context.Context, rep *Report) error
	ListScoped(ctx context.Context, scope Scope, categories []Category, limit int) ([]Whisper, error)
	LikeCounts(ctx context.Context, whisperIDs []string) (map[string]int, error)
	LikedSet(ctx context.Context, whisperIDs []string, accountID string) (map[string]bool, error)
	// CommentsFor returns each post's comments oldest first.
	CommentsFor(ctx context.Context, whisperIDs []string) (map[string][]Comment, error)
	Stats(ctx context.Context, scope Scope) (WallStats, error)
	RecentActivity(ctx context.Context, scope Scope, limit int) ([]Activity, error)
}

// PseudonymLookup resolves account ids to display pseudonyms.
type PseudonymLookup interface {
	Pseudonyms(ctx context.Context, accountIDs []string) (map[string]string, error)
}

// Service is the whisper board: anonymous posts with likes, comments,
// shares, and the wall aggregate behind the dashboards.
type Service struct {
	store Store
	names PseudonymLookup
}

func NewService(store Store, names PseudonymLookup) *Service {
	return &Service{store: store, names: names}
}

// CreateInput carries one new post. OrganizationID must already be
// resolved by the caller; Category is coerced, never rejected.
type CreateInput struct {
	AccountID      string
	OrganizationID string
	TeamID         string
	Category       string
	Content        string
}

// Create persists a whisper with zero likes and shares and returns it
// shaped for display.
func (s *Service) Create(ctx context.Context, in CreateInput) (*View, error) {
	content := strings.TrimSpace(in.Content)
	if content == "" {
		return nil, fmt.Errorf("%w: content required", ErrValidation)
	}
	if in.OrganizationID == "" {
		return nil, fmt.Errorf("%w: organization required", ErrValidation)
	}
	now := time.Now().UTC()
	w := &Whisper{
		ID:             utilities.NewSnowflakeID(),
		AccountID:      in.AccountID,
		OrganizationID: in.OrganizationID,
		Category:       ParseCategory(in.Category),
		Content:        content,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.TeamID != "" {
		w.TeamID = &in.TeamID
	}
	if err := s.store.Insert(ctx, w); err != nil {
		return nil, fmt.Errorf("insert whisper: %w", err)
	}
	names, err := s.names.Pseudonyms(ctx, []string{in.AccountID})
	if err != nil {
		return nil, err
	}
	return &View{
		ID:                w.ID,
		Category:          w.Category,
		Content:           w.Content,
		AnonymousUsername: names[in.AccountID],
		Mine:              true,
		TeamID:            w.TeamID,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
		Comments:          []Comment{},
	}, nil
}

// UpdateInput carries a partial edit; nil fields stay unchanged.
type UpdateInput struct {
	AccountID string
	WhisperID string
	Content   *string
	Category  *string
}

// Update edits a post owned by the caller. A miss on either the id or the
// ownership check is one indistinguishable ErrNotFound.
func (s *Service) Update(ctx context.Context, in UpdateInput) (*View, error) {
	var content *string
	if in.Content != nil {
		trimmed := strings.TrimSpace(*in.Content)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: content cannot be empty", ErrValidation)
		}
		content = &trimmed
	}
	var category *Category
	if in.Category != nil {
		c := ParseCategory(*in.Category)
		category = &c
	}
	w, err := s.store.Update(ctx, in.WhisperID, in.AccountID, content, category)
	if err != nil {
		return nil, fmt.Errorf("update whisper: %w", err)
	}
	if w == nil {
		return nil, ErrNotFound
	}
	return s.view(ctx, w, in.AccountID)
}

// Delete cascades comments, likes, then the post, all scoped to the
// caller. Returns false (not an error) when nothing was deleted.
func (s *Service) Delete(ctx context.Context, whisperID, accountID string) (bool, error) {
	return s.store.DeleteCascade(ctx, whisperID, accountID)
}

// ToggleLike flips the caller's like on a post and returns the new state
// with a freshly counted total, never an incremented cache.
func (s *Service) ToggleLike(ctx context.Context, whisperID, accountID string) (liked bool, likes int, err error) {
	w, err := s.store.Get(ctx, whisperID)
	if err != nil {
		return false, 0, err
	}
	if w == nil {
		return false, 0, ErrNotFound
	}
	has, err := s.store.HasLike(ctx, whisperID, accountID)
	if err != nil {
		return false, 0, err
	}
	if has {
		if err := s.store.DeleteLike(ctx, whisperID, accountID); err != nil {
			return false, 0, err
		}
		liked = false
	} else {
		if err := s.store.InsertLike(ctx, whisperID, accountID); err != nil {
			return false, 0, err
		}
		liked = true
	}
	likes, err = s.store.CountLikes(ctx, whisperID)
	if err != nil {
		return false, 0, err
	}
	return liked, likes, nil
}

// AddComment appends a comment to an existing post and returns it with the
// author's pseudonym resolved.
func (s *Service) AddComment(ctx context.Context, whisperID, accountID, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, fmt.Errorf("%w: comment content required", ErrValidation)
	}
	w, err := s.store.Get(ctx, whisperID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrNotFound
	}
	c := &Comment{
		ID:        utilities.NewSnowflakeID(),
		WhisperID: whisperID,
		AccountID: accountID,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertComment(ctx, c); err != nil {
		return nil, fmt.Errorf("insert whisper comment: %w", err)
	}
	names, err := s.names.Pseudonyms(ctx, []string{accountID})
	if err != nil {
		return nil, err
	}
	c.AnonymousUsername = names[accountID]
	return c, nil
}

// IncrementShare bumps the post's share counter. Shares are a broadcast
// action, not a toggle: anyone may increment any number of times.
func (s *Service) IncrementShare(ctx context.Context, whisperID string) (int, error) {
	shares, found, err := s.store.IncrementShare(ctx, whisperID)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}
	return shares, nil
}

// Report records a complaint against a post. No moderation workflow hangs
// off it.
func (s *Service) Report(ctx context.Context, whisperID, accountID, reason string) (*Report, error) {
	w, err := s.store.Get(ctx, whisperID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, ErrNotFound
	}
	rep := &Report{
		ID:        uuid.NewString(),
		WhisperID: whisperID,
		AccountID: accountID,
		Reason:    strings.TrimSpace(reason),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.InsertReport(ctx, rep); err != nil {
		return nil, fmt.Errorf("insert whisper report: %w", err)
	}
	return rep, nil
}

// WallQuery selects one wall view. Categories filters only the returned
// post list; stats and participants always cover the whole scope.
type WallQuery struct {
	AccountID      string
	OrganizationID string
	TeamID         string
	Categories     []Category
	Limit          int
}

// WallData is the aggregate read behind the whisper wall and dashboards.
type WallData struct {
	Whispers     []View        `json:"whispers"`
	Stats        WallStats     `json:"stats"`
	Participants []Participant `json:"participants"`
}

// Wall assembles posts, per-post like/comment state, wall stats, and the
// participant ranking in one consistently scoped view.
func (s *Service) Wall(ctx context.Context, q WallQuery) (*WallData, error) {
	if q.OrganizationID == "" {
		return nil, fmt.Errorf("%w: organization required", ErrValidation)
	}
	scope := Scope{OrganizationID: q.OrganizationID, TeamID: q.TeamID}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	posts, err := s.store.ListScoped(ctx, scope, q.Categories, limit)
	if err != nil {
		return nil, fmt.Errorf("list whispers: %w", err)
	}

	ids := make([]string, 0, len(posts))
	for _, w := range posts {
		ids = append(ids, w.ID)
	}
	likeCounts, err := s.store.LikeCounts(ctx, ids)
	if err != nil {
		return nil, err
	}
	likedSet, err := s.store.LikedSet(ctx, ids, q.AccountID)
	if err != nil {
		return nil, err
	}
	commentsFor, err := s.store.CommentsFor(ctx, ids)
	if err != nil {
		return nil, err
	}

	// one pseudonym lookup covers post authors and all commenters
	accountSet := make(map[string]bool)
	for _, w := range posts {
		accountSet[w.AccountID] = true
	}
	for _, comments := range commentsFor {
		for _, c := range comments {
			accountSet[c.AccountID] = true
		}
	}

	activity, err := s.store.RecentActivity(ctx, scope, maxParticipants)
	if err != nil {
		return nil, fmt.Errorf("rank participants: %w", err)
	}
	for _, a := range activity {
		accountSet[a.AccountID] = true
	}

	accountIDs := make([]string, 0, len(accountSet))
	for id := range accountSet {
		accountIDs = append(accountIDs, id)
	}
	names, err := s.names.Pseudonyms(ctx, accountIDs)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(posts))
	for _, w := range posts {
		comments := commentsFor[w.ID]
		if comments == nil {
			comments = []Comment{}
		}
		for i := range comments {
			comments[i].AnonymousUsername = names[comments[i].AccountID]
		}
		views = append(views, View{
			ID:                w.ID,
			Category:          w.Category,
			Content:           w.Content,
			AnonymousUsername: names[w.AccountID],
			Likes:             likeCounts[w.ID],
			LikedByMe:         likedSet[w.ID],
			Mine:              w.AccountID == q.AccountID,
			Shares:            w.ShareCount,
			TeamID:            w.TeamID,
			CreatedAt:         w.CreatedAt,
			UpdatedAt:         w.UpdatedAt,
			Comments:          comments,
		})
	}

	stats, err := s.store.Stats(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("wall stats: %w", err)
	}
	if stats.Categories == nil {
		stats.Categories = make(map[Category]int, len(Categories))
	}
	for _, c := range Categories {
		if _, ok := stats.Categories[c]; !ok {
			stats.Categories[c] = 0
		}
	}

	participants := make([]Participant, 0, len(activity))
	for _, a := range activity {
		participants = append(participants, Participant{
			AnonymousUsername: names[a.AccountID],
			LastActiveAt:      a.LastActiveAt,
		})
	}

	return &WallData{Whispers: views, Stats: stats, Participants: participants}, nil
}

// view loads the display shape for a single post as seen by accountID.
func (s *Service) view(ctx context.Context, w *Whisper, accountID string) (*View, error) {
	likes, err := s.store.CountLikes(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	liked, err := s.store.HasLike(ctx, w.ID, accountID)
	if err != nil {
		return nil, err
	}
	commentsFor, err := s.store.CommentsFor(ctx, []string{w.ID})
	if err != nil {
		return nil, err
	}
	comments := commentsFor[w.ID]
	if comments == nil {
		comments = []Comment{}
	}

	accountIDs := []string{w.AccountID}
	for _, c := range comments {
		accountIDs = append(accountIDs, c.AccountID)
	}
	names, err := s.names.Pseudonyms(ctx, accountIDs)
	if err != nil {
		return nil, err
	}
	for i := range comments {
		comments[i].AnonymousUsername = names[comments[i].AccountID]
	}

	return &View{
		ID:                w.ID,
		Category:          w.Category,
		Content:           w.Content,
		AnonymousUsername: names[w.AccountID],
		Likes:             likes,
		LikedByMe:         liked,
		Mine:              w.AccountID == accountID,
		Shares:            w.ShareCount,
		TeamID:            w.TeamID,
		CreatedAt:         w.CreatedAt,
		UpdatedAt:         w.UpdatedAt,
		Comments:          comments,
	}, nil
}
