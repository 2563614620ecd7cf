package httpapp_test

import (
	"io"
	"log/slog"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/memologist/memologist/internal/auth"
	"github.com/memologist/memologist/internal/client"
	"github.com/memologist/memologist/internal/config"
	"github.com/memologist/memologist/internal/hot"
	httpapp "github.com/memologist/memologist/internal/http"
	"github.com/memologist/memologist/internal/rate"
	"github.com/memologist/memologist/internal/store/sqlite"
)

func startServer(t *testing.T) string {
	t.Helper()
	st, err := sqlite.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cfg := config.Config{
		AdminSecret: "e2e-secret",
		RateLimits:  config.RateLimits{PostPerMinute: 100, CommentPerMinute: 100, MarkPerMinute: 100},
		Media:       config.MediaConfig{Provider: "disk", Dir: t.TempDir(), BaseURL: "/media"},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	server, err := httpapp.NewServer(st, auth.NewService(st, time.Hour, time.Minute), rate.NewMemory(), cfg,
		httpapp.WithLogger(logger),
		httpapp.WithHotJob(&hot.Job{Store: st, Logger: logger}),
	)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestEndToEnd(t *testing.T) {
	baseURL := startServer(t)
	helper := client.NewTestHelper(baseURL)

	author, err := helper.CreateAuthenticatedClient("author")
	if err != nil {
		t.Fatalf("author: %v", err)
	}
	reader, err := helper.CreateAuthenticatedClient("reader")
	if err != nil {
		t.Fatalf("reader: %v", err)
	}
	// Registering twice falls back to login.
	again, err := helper.CreateAuthenticatedClient("reader")
	if err != nil {
		t.Fatalf("reader login: %v", err)
	}
	if again.Token == reader.Token {
		t.Fatal("expected a fresh token on login")
	}

	post, err := author.CreatePost(client.PostInput{Title: "End to end meme", Text: "hello", Tags: []string{"e2e"}})
	if err != nil {
		t.Fatalf("create post: %v", err)
	}
	if post.Author != "author" {
		t.Fatalf("unexpected author %q", post.Author)
	}

	res, err := reader.MarkPost(post.ID, "liked")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if res.Score != 1 || res.Marked != "liked" {
		t.Fatalf("unexpected mark result %+v", res)
	}

	comment, err := reader.PostComment(post.ID, "nice one")
	if err != nil {
		t.Fatalf("comment: %v", err)
	}
	if _, err := author.MarkComment(comment.ID, "disliked"); err != nil {
		t.Fatalf("mark comment: %v", err)
	}

	got, err := reader.GetPost(post.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	// like + comment + one signed-in view
	if got.Score != 1 || got.CommentsAmount != 1 || got.ViewsAmount != 1 || math.Abs(got.HotPoints-11.01) > 1e-9 || got.Marked != "liked" {
		t.Fatalf("unexpected post %+v", got)
	}

	comments, err := reader.GetComments(post.ID)
	if err != nil {
		t.Fatalf("get comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Score != -1 || comments[0].Marked != "default" {
		t.Fatalf("unexpected comments %+v", comments)
	}

	feed, err := author.GetPosts("new", 1, 10)
	if err != nil {
		t.Fatalf("feed: %v", err)
	}
	if len(feed) != 1 || feed[0].ID != post.ID {
		t.Fatalf("unexpected feed %+v", feed)
	}

	me, err := author.Me()
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Rate != 1 || me.Email != "author@example.com" {
		t.Fatalf("unexpected profile %+v", me)
	}

	stats, err := author.GetStats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Users != 2 || stats.Posts != 1 || stats.Comments != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	run, err := author.RunHot("e2e-secret")
	if err != nil {
		t.Fatalf("hot run: %v", err)
	}
	if run["checkpointed"] != float64(1) {
		t.Fatalf("unexpected run %+v", run)
	}
	if _, err := author.RunHot("wrong"); err == nil {
		t.Fatal("expected wrong admin secret to fail")
	}

	if err := author.DeletePost(post.ID); err == nil {
		t.Fatal("only super admins may delete posts")
	}
}

func TestEndToEndKeyLogin(t *testing.T) {
	baseURL := startServer(t)
	c, err := client.NewTestHelper(baseURL).CreateAuthenticatedClient("keyholder")
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	creds, err := client.GenerateCredentials("keyholder")
	if err != nil {
		t.Fatalf("credentials: %v", err)
	}
	if _, err := c.AddKey(creds); err != nil {
		t.Fatalf("add key: %v", err)
	}

	fresh := client.New(baseURL)
	if err := fresh.Authenticate(creds); err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	me, err := fresh.Me()
	if err != nil {
		t.Fatalf("me: %v", err)
	}
	if me.Name != "keyholder" {
		t.Fatalf("unexpected user %q", me.Name)
	}
}
