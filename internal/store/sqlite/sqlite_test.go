package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/memologist/memologist/internal/model"
	"github.com/memologist/memologist/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	path := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	st, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func createUser(t *testing.T, st *Store, name string) model.User {
	t.Helper()
	u := model.User{
		Name:         name,
		Email:        name + "@example.com",
		PasswordHash: "hash",
		Salt:         "salt",
		CreatedAt:    time.Now(),
		Options:      model.DefaultUserOptions(),
	}
	if _, err := st.CreateUser(context.Background(), &u); err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u
}

func createPost(t *testing.T, st *Store, authorID int64, title string, created time.Time) model.Post {
	t.Helper()
	p := model.Post{
		Title:     title,
		Text:      "some text",
		Tags:      []string{"memes"},
		Content:   []model.ContentBlock{{Type: model.ContentText, Text: "hello"}},
		AuthorID:  authorID,
		CreatedAt: created,
	}
	if _, err := st.CreatePost(context.Background(), &p); err != nil {
		t.Fatalf("create post: %v", err)
	}
	return p
}

func TestUserDuplicates(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	createUser(t, st, "alice")

	dupName := model.User{Name: "alice", Email: "other@example.com", PasswordHash: "h", Salt: "s", CreatedAt: time.Now()}
	if _, err := st.CreateUser(ctx, &dupName); !errors.Is(err, store.ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
	dupEmail := model.User{Name: "alice2", Email: "ALICE@example.com", PasswordHash: "h", Salt: "s", CreatedAt: time.Now()}
	if _, err := st.CreateUser(ctx, &dupEmail); !errors.Is(err, store.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}

	got, err := st.GetUserByEmail(ctx, " Alice@Example.com ")
	if err != nil {
		t.Fatalf("get by email: %v", err)
	}
	if got.Name != "alice" || got.Role != model.RoleUser || got.Status != model.StatusDefault {
		t.Fatalf("unexpected user %+v", got)
	}
	if got.Options.SelectedLocale != "ua" {
		t.Fatalf("expected default options, got %+v", got.Options)
	}
	if _, err := st.GetUserByName(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUserStatus(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	u := createUser(t, st, "bob")
	till := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := st.UpdateUserStatus(ctx, u.ID, model.StatusMuted, &till, time.Now()); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ := st.GetUser(ctx, u.ID)
	if got.Status != model.StatusMuted || got.StatusTillDate == nil || !got.StatusTillDate.Equal(till) {
		t.Fatalf("unexpected status %+v", got)
	}
	if got.CanPublish(time.Now()) {
		t.Fatalf("muted user should not publish")
	}
	if !got.CanPublish(till.Add(time.Second)) {
		t.Fatalf("status should expire")
	}
	if err := st.UpdateUserStatus(ctx, 999, model.StatusBanned, nil, time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostLifecycle(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	u := createUser(t, st, "carol")
	p := createPost(t, st, u.ID, "A very funny post", time.Now())

	got, err := st.GetPost(ctx, p.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if got.Title != p.Title || got.AuthorName != "carol" || got.HotPoints != 0 {
		t.Fatalf("unexpected post %+v", got)
	}
	if got.HotCheck.LastCheckPoints != 0 || got.HotCheck.LastCheckDate.Unix() != p.CreatedAt.Unix() {
		t.Fatalf("unexpected checkpoint %+v", got.HotCheck)
	}
	if len(got.Content) != 1 || got.Content[0].Text != "hello" || len(got.Tags) != 1 {
		t.Fatalf("body not round-tripped: %+v", got)
	}

	if err := st.RecordPostView(ctx, p.ID); err != nil {
		t.Fatalf("record view: %v", err)
	}
	c := model.Comment{PostID: p.ID, AuthorID: u.ID, Text: "lol", CreatedAt: time.Now()}
	if _, err := st.CreateComment(ctx, &c); err != nil {
		t.Fatalf("create comment: %v", err)
	}
	got, _ = st.GetPost(ctx, p.ID)
	if got.ViewsAmount != 1 || got.CommentsAmount != 1 {
		t.Fatalf("unexpected counters %+v", got)
	}
	if got.HotPoints < 10.009 || got.HotPoints > 10.011 {
		t.Fatalf("expected hot 10.01, got %v", got.HotPoints)
	}

	got.Title = "An edited funny post"
	got.Tags = []string{"edited"}
	got.UpdatedAt = time.Now()
	if err := st.UpdatePost(ctx, &got); err != nil {
		t.Fatalf("update post: %v", err)
	}
	edited, _ := st.GetPost(ctx, p.ID)
	if edited.Title != "An edited funny post" || edited.Tags[0] != "edited" {
		t.Fatalf("edit not stored: %+v", edited)
	}

	if _, err := st.ApplyCommentMark(ctx, u.ID, c.ID, model.MarkLiked); err != nil {
		t.Fatalf("mark comment: %v", err)
	}
	if err := st.DeletePost(ctx, p.ID); err != nil {
		t.Fatalf("delete post: %v", err)
	}
	if _, err := st.GetPost(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := st.GetComment(ctx, c.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected comment removed, got %v", err)
	}
	if err := st.DeletePost(ctx, p.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCreateCommentMissingPost(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	u := createUser(t, st, "dave")
	c := model.Comment{PostID: 42, AuthorID: u.ID, Text: "hi", CreatedAt: time.Now()}
	if _, err := st.CreateComment(context.Background(), &c); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListPostsSorting(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	u := createUser(t, st, "erin")
	other := createUser(t, st, "frank")
	base := time.Now().Add(-time.Hour)
	old := createPost(t, st, u.ID, "Oldest post here", base)
	mid := createPost(t, st, u.ID, "Middle post here", base.Add(time.Minute))
	newest := createPost(t, st, other.ID, "Newest post here", base.Add(2*time.Minute))

	// old: best score, mid: hottest
	if _, err := st.ApplyPostMark(ctx, other.ID, old.ID, model.MarkLiked); err != nil {
		t.Fatalf("mark: %v", err)
	}
	if err := st.UpdatePostHot(ctx, mid.ID, 50, model.HotCheck{LastCheckPoints: 50, LastCheckDate: time.Now()}); err != nil {
		t.Fatalf("update hot: %v", err)
	}

	ids := func(posts []model.Post) []int64 {
		var out []int64
		for _, p := range posts {
			out = append(out, p.ID)
		}
		return out
	}
	check := func(opts store.PostListOpts, want ...int64) {
		t.Helper()
		posts, err := st.ListPosts(ctx, opts)
		if err != nil {
			t.Fatalf("list %+v: %v", opts, err)
		}
		got := ids(posts)
		if fmt.Sprint(got) != fmt.Sprint(want) {
			t.Fatalf("list %+v: expected %v, got %v", opts, want, got)
		}
	}
	check(store.PostListOpts{Sort: store.SortNew, Limit: 10}, newest.ID, mid.ID, old.ID)
	check(store.PostListOpts{Sort: store.SortHot, Limit: 10}, mid.ID, old.ID, newest.ID)
	check(store.PostListOpts{Sort: store.SortBest, Limit: 10}, old.ID, newest.ID, mid.ID)
	check(store.PostListOpts{Sort: store.SortNew, Limit: 1, Offset: 1}, mid.ID)
	check(store.PostListOpts{Sort: store.SortNew, Limit: 10, AuthorID: u.ID}, mid.ID, old.ID)
}

func TestHotCandidates(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	u := createUser(t, st, "gina")
	now := time.Now()
	recent := createPost(t, st, u.ID, "Recent post title", now.Add(-time.Hour))
	createPost(t, st, u.ID, "Ancient post title", now.Add(-8*24*time.Hour))

	cands, err := st.ListHotCandidates(ctx, now.Add(-7*24*time.Hour))
	if err != nil {
		t.Fatalf("list candidates: %v", err)
	}
	if len(cands) != 1 || cands[0].PostID != recent.ID {
		t.Fatalf("unexpected candidates %+v", cands)
	}

	check := model.HotCheck{LastCheckPoints: 7.5, LastCheckDate: now.Truncate(time.Second)}
	if err := st.UpdatePostHot(ctx, recent.ID, 7.5, check); err != nil {
		t.Fatalf("update hot: %v", err)
	}
	cands, _ = st.ListHotCandidates(ctx, now.Add(-7*24*time.Hour))
	if cands[0].HotPoints != 7.5 || !cands[0].HotCheck.LastCheckDate.Equal(check.LastCheckDate) {
		t.Fatalf("hot state not stored: %+v", cands[0])
	}
	if err := st.UpdatePostHot(ctx, 999, 1, check); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSiteStats(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()

	u := createUser(t, st, "hank")
	createPost(t, st, u.ID, "Post number one", time.Now())
	stats, err := st.GetSiteStats(context.Background())
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 1 || stats.Posts != 1 || stats.Comments != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
