// Package client provides a Go client for the Memologist API.
package client

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

var (
	ErrAlreadyRegistered = errors.New("already registered")
)

// Client is a Memologist API client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Token      string
	TokenExp   time.Time
}

// Credentials holds an ed25519 keypair used for key login.
type Credentials struct {
	Name       string
	PublicKey  string
	PrivateKey ed25519.PrivateKey
}

// New creates a new Memologist client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// GenerateCredentials creates a new ed25519 keypair.
func GenerateCredentials(name string) (*Credentials, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Credentials{
		Name:       name,
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
		PrivateKey: priv,
	}, nil
}

// CredentialsFromKeys creates credentials from existing keys.
func CredentialsFromKeys(name, pubKeyB64, privKeyB64 string) (*Credentials, error) {
	privBytes, err := base64.StdEncoding.DecodeString(privKeyB64)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	if len(privBytes) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key size")
	}
	return &Credentials{
		Name:       name,
		PublicKey:  pubKeyB64,
		PrivateKey: ed25519.PrivateKey(privBytes),
	}, nil
}

// Sign signs a message with the credentials.
func (creds *Credentials) Sign(message string) string {
	sig := ed25519.Sign(creds.PrivateKey, []byte(message))
	return base64.StdEncoding.EncodeToString(sig)
}

type User struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Rate   int    `json:"rate"`
	Status string `json:"status"`
}

type ContentBlock struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	ImgURL  string `json:"imgUrl,omitempty"`
	ImgName string `json:"imgName,omitempty"`
}

// PostInput is the body of a post create or edit.
type PostInput struct {
	Title   string         `json:"title"`
	Text    string         `json:"text,omitempty"`
	Tags    []string       `json:"tags,omitempty"`
	ImgURL  string         `json:"imgUrl,omitempty"`
	Content []ContentBlock `json:"content,omitempty"`
}

type Post struct {
	ID             int64          `json:"id"`
	Title          string         `json:"title"`
	Text           string         `json:"text"`
	Tags           []string       `json:"tags"`
	Content        []ContentBlock `json:"content"`
	AuthorID       int64          `json:"authorId"`
	Author         string         `json:"author"`
	Score          int            `json:"score"`
	HotPoints      float64        `json:"hotPoints"`
	ViewsAmount    int            `json:"viewsAmount"`
	CommentsAmount int            `json:"commentsAmount"`
	Marked         string         `json:"marked"`
	CreatedAt      time.Time      `json:"createdAt"`
}

type Comment struct {
	ID       int64  `json:"id"`
	PostID   int64  `json:"post"`
	AuthorID int64  `json:"authorId"`
	Author   string `json:"author"`
	Text     string `json:"text"`
	Score    int    `json:"score"`
	Marked   string `json:"marked"`
}

type MarkResult struct {
	Score  int    `json:"score"`
	Marked string `json:"marked"`
}

type Key struct {
	ID        int64  `json:"id"`
	Alg       string `json:"alg"`
	PublicKey string `json:"publicKey"`
}

type Stats struct {
	Users    int64 `json:"users"`
	Posts    int64 `json:"posts"`
	Comments int64 `json:"comments"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    int64     `json:"userId"`
}

// Register creates a password account and keeps its token.
func (c *Client) Register(name, email, password string) error {
	resp, err := c.doRequest(http.MethodPost, "/api/auth/register", map[string]string{
		"name":     name,
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusConflict {
		return ErrAlreadyRegistered
	}
	var tok tokenResponse
	if err := decode(resp, "register", &tok, http.StatusCreated); err != nil {
		return err
	}
	c.setToken(tok)
	return nil
}

// Login exchanges an email and password for a token.
func (c *Client) Login(email, password string) error {
	resp, err := c.doRequest(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var tok tokenResponse
	if err := decode(resp, "login", &tok, http.StatusOK); err != nil {
		return err
	}
	c.setToken(tok)
	return nil
}

// RegisterOrLogin registers the account, logging in instead when the name
// or email is taken.
func (c *Client) RegisterOrLogin(name, email, password string) error {
	err := c.Register(name, email, password)
	if errors.Is(err, ErrAlreadyRegistered) {
		return c.Login(email, password)
	}
	return err
}

// GetChallenge requests an authentication challenge from the server.
func (c *Client) GetChallenge(alg string) (string, error) {
	resp, err := c.doRequest(http.MethodPost, "/api/auth/challenge", map[string]string{"alg": alg})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var result struct {
		Challenge string `json:"challenge"`
	}
	if err := decode(resp, "challenge", &result, http.StatusOK); err != nil {
		return "", err
	}
	return result.Challenge, nil
}

func (c *Client) signedChallenge(creds *Credentials) (map[string]string, error) {
	challenge, err := c.GetChallenge("ed25519")
	if err != nil {
		return nil, fmt.Errorf("get challenge: %w", err)
	}
	return map[string]string{
		"alg":       "ed25519",
		"publicKey": creds.PublicKey,
		"challenge": challenge,
		"signature": creds.Sign(challenge),
	}, nil
}

// AddKey attaches the credentials' public key to the signed-in user.
func (c *Client) AddKey(creds *Credentials) (*Key, error) {
	body, err := c.signedChallenge(creds)
	if err != nil {
		return nil, err
	}
	resp, err := c.doRequest(http.MethodPost, "/api/user/keys", body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var key Key
	if err := decode(resp, "add key", &key, http.StatusCreated); err != nil {
		return nil, err
	}
	return &key, nil
}

// Authenticate gets a bearer token by signing a challenge with creds.
func (c *Client) Authenticate(creds *Credentials) error {
	body, err := c.signedChallenge(creds)
	if err != nil {
		return err
	}
	resp, err := c.doRequest(http.MethodPost, "/api/auth/verify", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	var tok tokenResponse
	if err := decode(resp, "auth", &tok, http.StatusOK); err != nil {
		return err
	}
	c.setToken(tok)
	return nil
}

// IsAuthenticated returns true if the client has a valid token.
func (c *Client) IsAuthenticated() bool {
	return c.Token != "" && time.Now().Before(c.TokenExp)
}

func (c *Client) setToken(tok tokenResponse) {
	c.Token = tok.Token
	c.TokenExp = tok.ExpiresAt
}

// doRequest performs an HTTP request, authenticated when a token is set.
func (c *Client) doRequest(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req)
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	return c.HTTPClient.Do(req)
}

// decode checks the status and unmarshals the body into dest when dest is
// not nil.
func decode(resp *http.Response, op string, dest any, want ...int) error {
	ok := false
	for _, code := range want {
		if resp.StatusCode == code {
			ok = true
			break
		}
	}
	if !ok {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s failed (%d): %s", op, resp.StatusCode, string(bytes.TrimSpace(body)))
	}
	if dest == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// CreatePost submits a JSON post.
func (c *Client) CreatePost(in PostInput) (*Post, error) {
	resp, err := c.doRequest(http.MethodPost, "/api/posts", in)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var post Post
	if err := decode(resp, "create post", &post, http.StatusCreated); err != nil {
		return nil, err
	}
	return &post, nil
}

// CreatePostWithFiles submits a multipart post. files maps the names used
// by imgName blocks to image bytes.
func (c *Client) CreatePostWithFiles(in PostInput, files map[string][]byte) (*Post, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}
	if err := writer.WriteField("data", string(data)); err != nil {
		return nil, err
	}
	for name, content := range files {
		part, err := writer.CreateFormFile("files", name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(content); err != nil {
			return nil, err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/api/posts", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var post Post
	if err := decode(resp, "create post", &post, http.StatusCreated); err != nil {
		return nil, err
	}
	return &post, nil
}

// GetPosts fetches one page of the feed.
func (c *Client) GetPosts(sort string, page, limit int) ([]Post, error) {
	q := url.Values{}
	if sort != "" {
		q.Set("sort", sort)
	}
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.listPosts("/api/posts?" + q.Encode())
}

// GetUserPosts fetches posts by author, newest first.
func (c *Client) GetUserPosts(name string, page, limit int) ([]Post, error) {
	path := fmt.Sprintf("/api/posts/user/%s?page=%d&limit=%d", url.PathEscape(name), page, limit)
	return c.listPosts(path)
}

func (c *Client) listPosts(path string) ([]Post, error) {
	resp, err := c.doRequest(http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var posts []Post
	if err := decode(resp, "get posts", &posts, http.StatusOK); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPost fetches a single post. Signed-in reads count as views.
func (c *Client) GetPost(id int64) (*Post, error) {
	resp, err := c.doRequest(http.MethodGet, fmt.Sprintf("/api/posts/%d", id), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var post Post
	if err := decode(resp, "get post", &post, http.StatusOK); err != nil {
		return nil, err
	}
	return &post, nil
}

// DeletePost removes a post. Only super admins may do this.
func (c *Client) DeletePost(id int64) error {
	resp, err := c.doRequest(http.MethodDelete, fmt.Sprintf("/api/posts/%d", id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return decode(resp, "delete post", nil, http.StatusOK)
}

// MarkPost likes or dislikes a post; markType is "liked" or "disliked".
func (c *Client) MarkPost(id int64, markType string) (*MarkResult, error) {
	return c.mark("/api/posts/mark", id, markType)
}

// MarkComment likes or dislikes a comment.
func (c *Client) MarkComment(id int64, markType string) (*MarkResult, error) {
	return c.mark("/api/comments/mark", id, markType)
}

func (c *Client) mark(path string, id int64, markType string) (*MarkResult, error) {
	resp, err := c.doRequest(http.MethodPost, path, map[string]any{"id": id, "markType": markType})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var res MarkResult
	if err := decode(resp, "mark", &res, http.StatusOK); err != nil {
		return nil, err
	}
	return &res, nil
}

// PostComment comments on a post.
func (c *Client) PostComment(postID int64, text string) (*Comment, error) {
	resp, err := c.doRequest(http.MethodPost, "/api/comments", map[string]any{
		"post": postID,
		"text": text,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var comment Comment
	if err := decode(resp, "post comment", &comment, http.StatusCreated); err != nil {
		return nil, err
	}
	return &comment, nil
}

// GetComments fetches comments for a post, newest first.
func (c *Client) GetComments(postID int64) ([]Comment, error) {
	resp, err := c.doRequest(http.MethodGet, fmt.Sprintf("/api/comments/%d", postID), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var comments []Comment
	if err := decode(resp, "get comments", &comments, http.StatusOK); err != nil {
		return nil, err
	}
	return comments, nil
}

// Me returns the signed-in user's profile.
func (c *Client) Me() (*User, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/user", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var user User
	if err := decode(resp, "get user", &user, http.StatusOK); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetStats returns site counters.
func (c *Client) GetStats() (*Stats, error) {
	resp, err := c.doRequest(http.MethodGet, "/api/stats", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var stats Stats
	if err := decode(resp, "get stats", &stats, http.StatusOK); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RunHot triggers a decay pass with the admin secret.
func (c *Client) RunHot(adminSecret string) (map[string]any, error) {
	req, err := http.NewRequest(http.MethodPost, c.BaseURL+"/api/admin/hot/run", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Admin-Secret", adminSecret)
	resp, err := c.send(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var stats map[string]any
	if err := decode(resp, "hot run", &stats, http.StatusOK); err != nil {
		return nil, err
	}
	return stats, nil
}

// TestHelper provides utilities for creating authenticated clients in tests.
type TestHelper struct {
	BaseURL string
}

// NewTestHelper creates a new test helper for the given base URL.
func NewTestHelper(baseURL string) *TestHelper {
	return &TestHelper{BaseURL: baseURL}
}

// CreateAuthenticatedClient registers name with a derived email and
// password and returns a signed-in client.
func (h *TestHelper) CreateAuthenticatedClient(name string) (*Client, error) {
	c := New(h.BaseURL)
	if err := c.RegisterOrLogin(name, name+"@example.com", "password-"+name); err != nil {
		return nil, err
	}
	return c, nil
}

// GetToken registers name if needed and returns an access token.
func (h *TestHelper) GetToken(name string) (string, error) {
	c, err := h.CreateAuthenticatedClient(name)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}
