package store

import (
	"context"
	"errors"
	"time"

	"github.com/memologist/memologist/internal/model"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateName  = errors.New("duplicate name")
	ErrDuplicateEmail = errors.New("duplicate email")
	ErrDuplicateKey   = errors.New("duplicate key")
)

const (
	SortHot  = "hot"
	SortNew  = "new"
	SortBest = "best"
)

type PostListOpts struct {
	Sort     string
	Limit    int
	Offset   int
	AuthorID int64
}

// MarkResult is the target's state after a mark was applied.
type MarkResult struct {
	Score  int        `json:"score"`
	Marked model.Mark `json:"marked"`
	Delta  int        `json:"-"`
}

type Store interface {
	UserStore
	PostStore
	CommentStore
	MarkStore
	KeyStore
	AuthStore
	GetSiteStats(ctx context.Context) (model.SiteStats, error)
	Close() error
}

type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) (int64, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
	GetUserByName(ctx context.Context, name string) (model.User, error)
	GetUserByEmail(ctx context.Context, email string) (model.User, error)
	UpdateUserRate(ctx context.Context, userID int64, delta int) error
	UpdateUserStatus(ctx context.Context, userID int64, status model.Status, till *time.Time, changedAt time.Time) error
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) (int64, error)
	GetPost(ctx context.Context, id int64) (model.Post, error)
	ListPosts(ctx context.Context, opts PostListOpts) ([]model.Post, error)
	UpdatePost(ctx context.Context, post *model.Post) error
	DeletePost(ctx context.Context, id int64) error
	// RecordPostView counts a view by a logged-in reader.
	RecordPostView(ctx context.Context, id int64) error
	ListHotCandidates(ctx context.Context, since time.Time) ([]model.HotCandidate, error)
	UpdatePostHot(ctx context.Context, id int64, points float64, check model.HotCheck) error
}

type CommentStore interface {
	// CreateComment stores the comment and bumps the post's comment count
	// and hot score. It returns ErrNotFound when the post does not exist.
	CreateComment(ctx context.Context, comment *model.Comment) (int64, error)
	GetComment(ctx context.Context, id int64) (model.Comment, error)
	ListCommentsByPost(ctx context.Context, postID int64) ([]model.Comment, error)
	ListCommentsByUser(ctx context.Context, userID int64, limit int) ([]model.Comment, error)
}

type MarkStore interface {
	GetMarks(ctx context.Context, userID int64, targetType string, ids []int64) (map[int64]model.Mark, error)
	ApplyPostMark(ctx context.Context, userID, postID int64, requested model.Mark) (MarkResult, error)
	ApplyCommentMark(ctx context.Context, userID, commentID int64, requested model.Mark) (MarkResult, error)
}

type KeyStore interface {
	AddUserKey(ctx context.Context, userID int64, key *model.AccountKey) (int64, error)
	ListUserKeys(ctx context.Context, userID int64) ([]model.AccountKey, error)
	RevokeUserKey(ctx context.Context, userID, keyID int64, revokedAt time.Time) error
	FindKey(ctx context.Context, alg, publicKey string) (model.AccountKey, error)
}

type AuthStore interface {
	CreateChallenge(ctx context.Context, c model.Challenge) error
	ConsumeChallenge(ctx context.Context, challenge string) (model.Challenge, error)
	CreateToken(ctx context.Context, token model.Token) error
	GetToken(ctx context.Context, token string) (model.Token, error)
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}
