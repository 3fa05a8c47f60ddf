package whisper

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

type likeKey struct {
	whisperID string
	accountID string
}

type fakeStore struct {
	mu       sync.Mutex
	posts    map[string]*Whisper
	likes    map[likeKey]bool
	comments []Comment
	reports  []Report
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		posts: make(map[string]*Whisper),
		likes: make(map[likeKey]bool),
	}
}

func (f *fakeStore) Insert(_ context.Context, w *Whisper) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *w
	f.posts[w.ID] = &cp
	return nil
}

func (f *fakeStore) Update(_ context.Context, id, accountID string, content *string, category *Category) (*Whisper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.posts[id]
	if !ok || w.AccountID != accountID {
		return nil, nil
	}
	if content != nil {
		w.Content = *content
	}
	if category != nil {
		w.Category = *category
	}
	w.UpdatedAt = time.Now().UTC()
	cp := *w
	return &cp, nil
}

func (f *fakeStore) DeleteCascade(_ context.Context, id, accountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.posts[id]
	if !ok || w.AccountID != accountID {
		return false, nil
	}
	kept := f.comments[:0]
	for _, c := range f.comments {
		if c.WhisperID != id {
			kept = append(kept, c)
		}
	}
	f.comments = kept
	for k := range f.likes {
		if k.whisperID == id {
			delete(f.likes, k)
		}
	}
	keptReports := f.reports[:0]
	for _, r := range f.reports {
		if r.WhisperID != id {
			keptReports = append(keptReports, r)
		}
	}
	f.reports = keptReports
	delete(f.posts, id)
	return true, nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Whisper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.posts[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (f *fakeStore) HasLike(_ context.Context, whisperID, accountID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.likes[likeKey{whisperID, accountID}], nil
}

func (f *fakeStore) InsertLike(_ context.Context, whisperID, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.likes[likeKey{whisperID, accountID}] = true
	return nil
}

func (f *fakeStore) DeleteLike(_ context.Context, whisperID, accountID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.likes, likeKey{whisperID, accountID})
	return nil
}

func (f *fakeStore) CountLikes(_ context.Context, whisperID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.countLikesLocked(whisperID), nil
}

func (f *fakeStore) countLikesLocked(whisperID string) int {
	n := 0
	for k := range f.likes {
		if k.whisperID == whisperID {
			n++
		}
	}
	return n
}

func (f *fakeStore) InsertComment(_ context.Context, c *Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments = append(f.comments, *c)
	return nil
}

func (f *fakeStore) IncrementShare(_ context.Context, whisperID string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	w, ok := f.posts[whisperID]
	if !ok {
		return 0, false, nil
	}
	w.ShareCount++
	return w.ShareCount, true, nil
}

func (f *fakeStore) InsertReport(_ context.Context, rep *Report) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = append(f.reports, *rep)
	return nil
}

func (f *fakeStore) ListScoped(_ context.Context, scope Scope, categories []Category, limit int) ([]Whisper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	wanted := make(map[Category]bool)
	for _, c := range categories {
		wanted[c] = true
	}
	var out []Whisper
	for _, w := range f.posts {
		if !f.inScopeLocked(w, scope) {
			continue
		}
		if len(wanted) > 0 && !wanted[w.Category] {
			continue
		}
		out = append(out, *w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) inScopeLocked(w *Whisper, scope Scope) bool {
	if w.OrganizationID != scope.OrganizationID {
		return false
	}
	if scope.TeamID != "" && (w.TeamID == nil || *w.TeamID != scope.TeamID) {
		return false
	}
	return true
}

func (f *fakeStore) LikeCounts(_ context.Context, whisperIDs []string) (map[string]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int)
	for _, id := range whisperIDs {
		out[id] = f.countLikesLocked(id)
	}
	return out, nil
}

func (f *fakeStore) LikedSet(_ context.Context, whisperIDs []string, accountID string) (map[string]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]bool)
	for _, id := range whisperIDs {
		if f.likes[likeKey{id, accountID}] {
			out[id] = true
		}
	}
	return out, nil
}

func (f *fakeStore) CommentsFor(_ context.Context, whisperIDs []string) (map[string][]Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make(map[string]bool, len(whisperIDs))
	for _, id := range whisperIDs {
		ids[id] = true
	}
	out := make(map[string][]Comment)
	for _, c := range f.comments {
		if ids[c.WhisperID] {
			out[c.WhisperID] = append(out[c.WhisperID], c)
		}
	}
	return out, nil
}

func (f *fakeStore) Stats(_ context.Context, scope Scope) (WallStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := WallStats{Categories: make(map[Category]int)}
	for _, w := range f.posts {
		if !f.inScopeLocked(w, scope) {
			continue
		}
		stats.TotalPosts++
		stats.TotalShares += w.ShareCount
		stats.TotalLikes += f.countLikesLocked(w.ID)
		stats.Categories[w.Category]++
		for _, c := range f.comments {
			if c.WhisperID == w.ID {
				stats.TotalComments++
			}
		}
	}
	return stats, nil
}

func (f *fakeStore) RecentActivity(_ context.Context, scope Scope, limit int) ([]Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	latest := make(map[string]time.Time)
	for _, w := range f.posts {
		if !f.inScopeLocked(w, scope) {
			continue
		}
		if w.CreatedAt.After(latest[w.AccountID]) {
			latest[w.AccountID] = w.CreatedAt
		}
		for _, c := range f.comments {
			if c.WhisperID == w.ID && c.CreatedAt.After(latest[c.AccountID]) {
				latest[c.AccountID] = c.CreatedAt
			}
		}
	}
	var out []Activity
	for id, at := range latest {
		out = append(out, Activity{AccountID: id, LastActiveAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastActiveAt.After(out[j].LastActiveAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeNames map[string]string

func (f fakeNames) Pseudonyms(_ context.Context, ids []string) (map[string]string, error) {
	out := make(map[string]string)
	for _, id := range ids {
		if name, ok := f[id]; ok {
			out[id] = name
		}
	}
	return out, nil
}

func newTestService() (*Service, *fakeStore) {
	store := newFakeStore()
	svc := NewService(store, fakeNames{
		"acct-a": "MellowOtter417",
		"acct-b": "SunnyWren202",
		"acct-c": "BraveFalcon333",
	})
	return svc, store
}

func TestCreateCoercesCategory(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()

	v, err := svc.Create(context.Background(), CreateInput{
		AccountID: "acct-a", OrganizationID: "org-1",
		Category: "not-a-category", Content: "hello wall",
	})
	c.Assert(err, qt.IsNil)
	c.Assert(v.Category, qt.Equals, CategoryGeneral)
	c.Assert(v.Mine, qt.IsTrue)
	c.Assert(v.Likes, qt.Equals, 0)
	c.Assert(v.AnonymousUsername, qt.Equals, "MellowOtter417")
	c.Assert(v.Comments, qt.HasLen, 0)
}

func TestCreateValidation(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Content: "   "})
	c.Assert(errors.Is(err, ErrValidation), qt.IsTrue)
	_, err = svc.Create(ctx, CreateInput{AccountID: "acct-a", Content: "no org"})
	c.Assert(errors.Is(err, ErrValidation), qt.IsTrue)
}

func TestToggleLikeRoundTrip(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	ctx := context.Background()

	v, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Content: "like me"})
	c.Assert(err, qt.IsNil)

	liked, likes, err := svc.ToggleLike(ctx, v.ID, "acct-b")
	c.Assert(err, qt.IsNil)
	c.Assert(liked, qt.IsTrue)
	c.Assert(likes, qt.Equals, 1)

	liked, likes, err = svc.ToggleLike(ctx, v.ID, "acct-b")
	c.Assert(err, qt.IsNil)
	c.Assert(liked, qt.IsFalse)
	c.Assert(likes, qt.Equals, 0)
}

func TestLikeCountIsDerivedNotIncremented(t *testing.T) {
	c := qt.New(t)
	svc, store := newTestService()
	ctx := context.Background()

	v, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Content: "count me"})
	c.Assert(err, qt.IsNil)

	_, _, err = svc.ToggleLike(ctx, v.ID, "acct-b")
	c.Assert(err, qt.IsNil)

	// a duplicate row insert is a no-op at the store; the count stays 1
	c.Assert(store.InsertLike(ctx, v.ID, "acct-b"), qt.IsNil)
	likes, err := store.CountLikes(ctx, v.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(likes, qt.Equals, 1)

	// two distinct users count separately
	_, likes, err = svc.ToggleLike(ctx, v.ID, "acct-c")
	c.Assert(err, qt.IsNil)
	c.Assert(likes, qt.Equals, 2)
}

func TestToggleLikeUnknownPost(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	_, _, err := svc.ToggleLike(context.Background(), "missing", "acct-b")
	c.Assert(errors.Is(err, ErrNotFound), qt.IsTrue)
}

func TestUpdateOwnerOnly(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	ctx := context.Background()

	v, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Content: "original"})
	c.Assert(err, qt.IsNil)

	newContent := "edited"
	newCategory := "idea"
	got, err := svc.Update(ctx, UpdateInput{AccountID: "acct-a", WhisperID: v.ID, Content: &newContent, Category: &newCategory})
	c.Assert(err, qt.IsNil)
	c.Assert(got.Content, qt.Equals, "edited")
	c.Assert(got.Category, qt.Equals, CategoryIdea)

	// another caller gets the same answer as for a missing post
	_, err = svc.Update(ctx, UpdateInput{AccountID: "acct-b", WhisperID: v.ID, Content: &newContent})
	c.Assert(errors.Is(err, ErrNotFound), qt.IsTrue)

	empty := "   "
	_, err = svc.Update(ctx, UpdateInput{AccountID: "acct-a", WhisperID: v.ID, Content: &empty})
	c.Assert(errors.Is(err, ErrValidation), qt.IsTrue)
}

func TestDeleteOwnerOnlyCascades(t *testing.T) {
	c := qt.New(t)
	svc, store := newTestService()
	ctx := context.Background()

	v, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Content: "doomed"})
	c.Assert(err, qt.IsNil)
	_, err = svc.AddComment(ctx, v.ID, "acct-b", "a comment")
	c.Assert(err, qt.IsNil)
	_, _, err = svc.ToggleLike(ctx, v.ID, "acct-b")
	c.Assert(err, qt.IsNil)

	// a non-owner deletes nothing and the rows stay intact
	ok, err := svc.Delete(ctx, v.ID, "acct-b")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsFalse)
	c.Assert(store.posts, qt.HasLen, 1)
	c.Assert(store.comments, qt.HasLen, 1)
	c.Assert(store.likes, qt.HasLen, 1)

	ok, err = svc.Delete(ctx, v.ID, "acct-a")
	c.Assert(err, qt.IsNil)
	c.Assert(ok, qt.IsTrue)
	c.Assert(store.posts, qt.HasLen, 0)
	c.Assert(store.comments, qt.HasLen, 0)
	c.Assert(store.likes, qt.HasLen, 0)
}

func TestIncrementShare(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	ctx := context.Background()

	v, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Content: "share me"})
	c.Assert(err, qt.IsNil)

	shares, err := svc.IncrementShare(ctx, v.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(shares, qt.Equals, 1)
	shares, err = svc.IncrementShare(ctx, v.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(shares, qt.Equals, 2)

	_, err = svc.IncrementShare(ctx, "missing")
	c.Assert(errors.Is(err, ErrNotFound), qt.IsTrue)
}

func TestReport(t *testing.T) {
	c := qt.New(t)
	svc, store := newTestService()
	ctx := context.Background()

	v, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Content: "reported"})
	c.Assert(err, qt.IsNil)

	rep, err := svc.Report(ctx, v.ID, "acct-b", "  inappropriate  ")
	c.Assert(err, qt.IsNil)
	c.Assert(rep.ID, qt.Not(qt.Equals), "")
	c.Assert(rep.Reason, qt.Equals, "inappropriate")
	c.Assert(store.reports, qt.HasLen, 1)

	_, err = svc.Report(ctx, "missing", "acct-b", "x")
	c.Assert(errors.Is(err, ErrNotFound), qt.IsTrue)
}

func TestWallStatsCarryAllCategories(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Category: "praise", Content: "nice work"})
	c.Assert(err, qt.IsNil)

	wall, err := svc.Wall(ctx, WallQuery{AccountID: "acct-a", OrganizationID: "org-1"})
	c.Assert(err, qt.IsNil)
	c.Assert(wall.Stats.Categories, qt.HasLen, len(Categories))
	c.Assert(wall.Stats.Categories[CategoryPraise], qt.Equals, 1)
	for _, cat := range []Category{CategoryGeneral, CategoryConcern, CategoryIdea, CategoryFun} {
		c.Assert(wall.Stats.Categories[cat], qt.Equals, 0)
	}
}

func TestWallCategoryFilterDoesNotNarrowStats(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Category: "praise", Content: "praised"})
	c.Assert(err, qt.IsNil)
	_, err = svc.Create(ctx, CreateInput{AccountID: "acct-b", OrganizationID: "org-1", Category: "idea", Content: "an idea"})
	c.Assert(err, qt.IsNil)

	wall, err := svc.Wall(ctx, WallQuery{
		AccountID: "acct-a", OrganizationID: "org-1",
		Categories: []Category{CategoryIdea},
	})
	c.Assert(err, qt.IsNil)
	c.Assert(wall.Whispers, qt.HasLen, 1)
	c.Assert(wall.Whispers[0].Category, qt.Equals, CategoryIdea)
	// stats and participants cover the whole scope regardless of the filter
	c.Assert(wall.Stats.TotalPosts, qt.Equals, 2)
	c.Assert(wall.Participants, qt.HasLen, 2)
}

func TestWallScoping(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", TeamID: "team-1", Content: "team post"})
	c.Assert(err, qt.IsNil)
	_, err = svc.Create(ctx, CreateInput{AccountID: "acct-b", OrganizationID: "org-1", Content: "org-wide post"})
	c.Assert(err, qt.IsNil)
	_, err = svc.Create(ctx, CreateInput{AccountID: "acct-c", OrganizationID: "org-2", Content: "other org"})
	c.Assert(err, qt.IsNil)

	orgWall, err := svc.Wall(ctx, WallQuery{AccountID: "acct-a", OrganizationID: "org-1"})
	c.Assert(err, qt.IsNil)
	c.Assert(orgWall.Whispers, qt.HasLen, 2)

	teamWall, err := svc.Wall(ctx, WallQuery{AccountID: "acct-a", OrganizationID: "org-1", TeamID: "team-1"})
	c.Assert(err, qt.IsNil)
	c.Assert(teamWall.Whispers, qt.HasLen, 1)
	c.Assert(teamWall.Whispers[0].Content, qt.Equals, "team post")

	_, err = svc.Wall(ctx, WallQuery{AccountID: "acct-a"})
	c.Assert(errors.Is(err, ErrValidation), qt.IsTrue)
}

func TestWallLikeVisibility(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	ctx := context.Background()

	// A posts an idea; the fresh view is A's own with zero likes
	v, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Category: "idea", Content: "ship it"})
	c.Assert(err, qt.IsNil)
	c.Assert(v.Mine, qt.IsTrue)
	c.Assert(v.Likes, qt.Equals, 0)

	// B likes it
	liked, likes, err := svc.ToggleLike(ctx, v.ID, "acct-b")
	c.Assert(err, qt.IsNil)
	c.Assert(liked, qt.IsTrue)
	c.Assert(likes, qt.Equals, 1)

	// A's wall shows the like without claiming A gave it
	wall, err := svc.Wall(ctx, WallQuery{AccountID: "acct-a", OrganizationID: "org-1"})
	c.Assert(err, qt.IsNil)
	c.Assert(wall.Whispers, qt.HasLen, 1)
	got := wall.Whispers[0]
	c.Assert(got.Likes, qt.Equals, 1)
	c.Assert(got.LikedByMe, qt.IsFalse)
	c.Assert(got.Mine, qt.IsTrue)

	// B's wall shows the same count with likedByMe set
	wallB, err := svc.Wall(ctx, WallQuery{AccountID: "acct-b", OrganizationID: "org-1"})
	c.Assert(err, qt.IsNil)
	c.Assert(wallB.Whispers[0].LikedByMe, qt.IsTrue)
	c.Assert(wallB.Whispers[0].Mine, qt.IsFalse)
}

func TestWallResolvesCommenterPseudonyms(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	ctx := context.Background()

	v, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Content: "discuss"})
	c.Assert(err, qt.IsNil)
	_, err = svc.AddComment(ctx, v.ID, "acct-b", "first")
	c.Assert(err, qt.IsNil)
	_, err = svc.AddComment(ctx, v.ID, "acct-c", "second")
	c.Assert(err, qt.IsNil)

	wall, err := svc.Wall(ctx, WallQuery{AccountID: "acct-a", OrganizationID: "org-1"})
	c.Assert(err, qt.IsNil)
	comments := wall.Whispers[0].Comments
	c.Assert(comments, qt.HasLen, 2)
	c.Assert(comments[0].AnonymousUsername, qt.Equals, "SunnyWren202")
	c.Assert(comments[1].AnonymousUsername, qt.Equals, "BraveFalcon333")
}

func TestAddCommentValidation(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService()
	ctx := context.Background()

	v, err := svc.Create(ctx, CreateInput{AccountID: "acct-a", OrganizationID: "org-1", Content: "post"})
	c.Assert(err, qt.IsNil)

	_, err = svc.AddComment(ctx, v.ID, "acct-b", "   ")
	c.Assert(errors.Is(err, ErrValidation), qt.IsTrue)
	_, err = svc.AddComment(ctx, "missing", "acct-b", "hello")
	c.Assert(errors.Is(err, ErrNotFound), qt.IsTrue)

	cm, err := svc.AddComment(ctx, v.ID, "acct-b", "  trimmed  ")
	c.Assert(err, qt.IsNil)
	c.Assert(cm.Content, qt.Equals, "trimmed")
	c.Assert(cm.AnonymousUsername, qt.Equals, "SunnyWren202")
}
