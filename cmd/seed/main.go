package main

import (
	_ "embed"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/memologist/memologist/internal/client"

	"gopkg.in/yaml.v3"
)

//go:embed fixture.yaml
var defaultFixture []byte

type fixture struct {
	Users    []fixtureUser    `yaml:"users"`
	Posts    []fixturePost    `yaml:"posts"`
	Comments []fixtureComment `yaml:"comments"`
	Marks    []fixtureMark    `yaml:"marks"`
}

type fixtureUser struct {
	Name string `yaml:"name"`
}

type fixturePost struct {
	Author  string                `yaml:"author"`
	Title   string                `yaml:"title"`
	Text    string                `yaml:"text"`
	Tags    []string              `yaml:"tags"`
	Content []client.ContentBlock `yaml:"content"`
}

type fixtureComment struct {
	Post   int    `yaml:"post"`
	Author string `yaml:"author"`
	Text   string `yaml:"text"`
}

type fixtureMark struct {
	User string `yaml:"user"`
	Post int    `yaml:"post"`
	Mark string `yaml:"mark"`
}

// parseFixture decodes raw and checks that every reference resolves.
func parseFixture(raw []byte) (fixture, error) {
	var f fixture
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return f, fmt.Errorf("parse fixture: %w", err)
	}
	users := make(map[string]bool, len(f.Users))
	for _, u := range f.Users {
		if u.Name == "" {
			return f, errors.New("fixture: user without name")
		}
		users[u.Name] = true
	}
	for i, p := range f.Posts {
		if !users[p.Author] {
			return f, fmt.Errorf("fixture: post %d: unknown author %q", i, p.Author)
		}
	}
	for i, c := range f.Comments {
		if !users[c.Author] {
			return f, fmt.Errorf("fixture: comment %d: unknown author %q", i, c.Author)
		}
		if c.Post < 0 || c.Post >= len(f.Posts) {
			return f, fmt.Errorf("fixture: comment %d: post index %d out of range", i, c.Post)
		}
	}
	for i, m := range f.Marks {
		if !users[m.User] {
			return f, fmt.Errorf("fixture: mark %d: unknown user %q", i, m.User)
		}
		if m.Post < 0 || m.Post >= len(f.Posts) {
			return f, fmt.Errorf("fixture: mark %d: post index %d out of range", i, m.Post)
		}
		if m.Mark != "liked" && m.Mark != "disliked" {
			return f, fmt.Errorf("fixture: mark %d: invalid mark %q", i, m.Mark)
		}
	}
	return f, nil
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Memologist server URL")
	file := flag.String("file", "", "YAML fixture (default: built-in)")
	adminSecret := flag.String("admin-secret", os.Getenv("MEMOLOGIST_ADMIN_SECRET"), "run a hot pass afterwards when set")
	flag.Parse()

	raw := defaultFixture
	if *file != "" {
		b, err := os.ReadFile(*file)
		if err != nil {
			log.Fatalf("read fixture: %v", err)
		}
		raw = b
	}
	f, err := parseFixture(raw)
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("Seeding %s...", *baseURL)
	helper := client.NewTestHelper(*baseURL)
	clients := make(map[string]*client.Client, len(f.Users))
	for _, u := range f.Users {
		c, err := helper.CreateAuthenticatedClient(u.Name)
		if err != nil {
			log.Fatalf("register %s: %v", u.Name, err)
		}
		clients[u.Name] = c
		log.Printf("✓ User %s", u.Name)
	}

	postIDs := make([]int64, len(f.Posts))
	for i, p := range f.Posts {
		post, err := clients[p.Author].CreatePost(client.PostInput{
			Title:   p.Title,
			Text:    p.Text,
			Tags:    p.Tags,
			Content: p.Content,
		})
		if err != nil {
			log.Printf("✗ Post %q: %v", p.Title, err)
			continue
		}
		postIDs[i] = post.ID
		log.Printf("✓ Post #%d: %s (by %s)", post.ID, p.Title, p.Author)

		// Spread created_at so "new" ordering is stable.
		time.Sleep(50 * time.Millisecond)
	}

	var commented, marked int
	for _, c := range f.Comments {
		id := postIDs[c.Post]
		if id == 0 {
			continue
		}
		comment, err := clients[c.Author].PostComment(id, c.Text)
		if err != nil {
			log.Printf("✗ Comment on #%d: %v", id, err)
			continue
		}
		commented++
		log.Printf("✓ Comment #%d on post #%d (by %s)", comment.ID, id, c.Author)
	}

	for _, m := range f.Marks {
		id := postIDs[m.Post]
		if id == 0 {
			continue
		}
		if _, err := clients[m.User].MarkPost(id, m.Mark); err != nil {
			log.Printf("✗ Mark on #%d: %v", id, err)
			continue
		}
		marked++
	}
	log.Printf("✓ Added %d marks", marked)

	if *adminSecret != "" {
		stats, err := client.New(*baseURL).RunHot(*adminSecret)
		if err != nil {
			log.Printf("✗ Hot pass: %v", err)
		} else {
			log.Printf("✓ Hot pass: %v", stats)
		}
	}

	fmt.Println("\n=== Seed Complete ===")
	fmt.Printf("Users:    %d\n", len(f.Users))
	fmt.Printf("Posts:    %d\n", len(f.Posts))
	fmt.Printf("Comments: %d\n", commented)
	fmt.Println("\nView at:", *baseURL)
}
