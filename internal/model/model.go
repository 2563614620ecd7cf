package model

import "time"

type Role string

const (
	RoleSuperAdmin Role = "superAdmin"
	RoleAdmin      Role = "admin"
	RoleModerator  Role = "moderator"
	RoleUser       Role = "user"
)

type Status string

const (
	StatusDefault Status = "default"
	StatusMuted   Status = "muted"
	StatusBanned  Status = "banned"
)

type Mark string

const (
	MarkDefault  Mark = "default"
	MarkLiked    Mark = "liked"
	MarkDisliked Mark = "disliked"
)

const (
	TargetPost    = "post"
	TargetComment = "comment"
)

type User struct {
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	Email            string      `json:"email,omitempty"`
	PasswordHash     string      `json:"-"`
	Salt             string      `json:"-"`
	Role             Role        `json:"role"`
	Rate             int         `json:"rate"`
	Points           int         `json:"points"`
	Status           Status      `json:"status"`
	StatusTillDate   *time.Time  `json:"statusTillDate,omitempty"`
	StatusChangeDate time.Time   `json:"statusChangeDate"`
	CreatedAt        time.Time   `json:"createdDate"`
	Options          UserOptions `json:"options"`
}

// EffectiveStatus returns the user's status at now; a status whose till
// date has passed reads as default.
func (u User) EffectiveStatus(now time.Time) Status {
	if u.Status == "" {
		return StatusDefault
	}
	if u.StatusTillDate != nil && !now.Before(*u.StatusTillDate) {
		return StatusDefault
	}
	return u.Status
}

// CanPublish reports whether the user may create posts and comments.
func (u User) CanPublish(now time.Time) bool {
	switch u.EffectiveStatus(now) {
	case StatusMuted, StatusBanned:
		return false
	}
	return true
}

type UserOptions struct {
	SelectedLocale string `json:"selectedLocale"`
	Locale         string `json:"locale,omitempty"`
	ShowContent    string `json:"showContent"`
	NSFW           bool   `json:"nsfw"`
}

func DefaultUserOptions() UserOptions {
	return UserOptions{SelectedLocale: "ua", ShowContent: "all"}
}

type ContentType string

const (
	ContentText    ContentType = "text"
	ContentImgURL  ContentType = "imgUrl"
	ContentImgName ContentType = "imgName"
)

type ContentBlock struct {
	Type    ContentType `json:"type"`
	Text    string      `json:"text,omitempty"`
	ImgURL  string      `json:"imgUrl,omitempty"`
	ImgName string      `json:"imgName,omitempty"`
}

// HotCheck is the (score, time) pair the decay job measures from.
type HotCheck struct {
	LastCheckDate   time.Time `json:"lastCheckDate"`
	LastCheckPoints float64   `json:"lastCheckPoints"`
}

// HotCandidate is a recent post as seen by the decay job.
type HotCandidate struct {
	PostID    int64
	HotPoints float64
	HotCheck  HotCheck
}

type Post struct {
	ID             int64          `json:"id"`
	Title          string         `json:"title"`
	Text           string         `json:"text,omitempty"`
	Tags           []string       `json:"tags"`
	ImgURL         string         `json:"imgUrl,omitempty"`
	Content        []ContentBlock `json:"content"`
	AuthorID       int64          `json:"authorId"`
	AuthorName     string         `json:"author"`
	Score          int            `json:"score"`
	HotPoints      float64        `json:"hotPoints"`
	HotCheck       HotCheck       `json:"-"`
	ViewsAmount    int            `json:"viewsAmount"`
	CommentsAmount int            `json:"commentsAmount"`
	Marked         Mark           `json:"marked,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	UpdatedAt      time.Time      `json:"updatedAt"`
}

type Comment struct {
	ID         int64     `json:"id"`
	PostID     int64     `json:"post"`
	AuthorID   int64     `json:"authorId"`
	AuthorName string    `json:"author"`
	Text       string    `json:"text"`
	Score      int       `json:"score"`
	Marked     Mark      `json:"marked,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type AccountKey struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"userId"`
	Alg       string     `json:"alg"`
	PublicKey string     `json:"publicKey"`
	CreatedAt time.Time  `json:"createdAt"`
	RevokedAt *time.Time `json:"revokedAt,omitempty"`
}

type Challenge struct {
	Challenge string
	Alg       string
	ExpiresAt time.Time
}

type Token struct {
	Token     string
	UserID    int64
	KeyID     int64
	ExpiresAt time.Time
}

type SiteStats struct {
	Users    int64 `json:"users"`
	Posts    int64 `json:"posts"`
	Comments int64 `json:"comments"`
}
