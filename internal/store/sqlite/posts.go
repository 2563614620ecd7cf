package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/memologist/memologist/internal/model"
	"github.com/memologist/memologist/internal/store"
)

const (
	viewHotPoints    = 0.01
	commentHotPoints = 10
)

const postSelect = `
SELECT p.id, p.title, p.text, p.tags, p.img_url, p.content, p.author_id, u.name, p.score,
	p.hot_points, p.hot_check_points, p.hot_check_date, p.views_amount, p.comments_amount, p.created_at, p.updated_at
FROM posts p
LEFT JOIN users u ON u.id = p.author_id
`

func (s *Store) CreatePost(ctx context.Context, post *model.Post) (int64, error) {
	tags, content, err := encodePostBody(post)
	if err != nil {
		return 0, err
	}
	if post.UpdatedAt.IsZero() {
		post.UpdatedAt = post.CreatedAt
	}
	// New posts start cold with the checkpoint at creation.
	post.HotPoints = 0
	post.HotCheck = model.HotCheck{LastCheckDate: post.CreatedAt, LastCheckPoints: 0}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO posts (title, text, tags, img_url, content, author_id, score, hot_points, hot_check_points, hot_check_date, views_amount, comments_amount, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, 0, 0, 0, ?, 0, 0, ?, ?)
`, post.Title, nullIfEmpty(post.Text), tags, nullIfEmpty(post.ImgURL), content, post.AuthorID,
		post.CreatedAt.Unix(), post.CreatedAt.Unix(), post.UpdatedAt.Unix())
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	post.ID = id
	return id, nil
}

func (s *Store) GetPost(ctx context.Context, id int64) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, postSelect+`WHERE p.id = ? LIMIT 1`, id)
	return scanPost(row)
}

func (s *Store) ListPosts(ctx context.Context, opts store.PostListOpts) ([]model.Post, error) {
	limit := clamp(opts.Limit, 1, 50)
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	var order string
	switch opts.Sort {
	case store.SortNew:
		order = "p.created_at DESC, p.id DESC"
	case store.SortBest:
		order = "p.score DESC, p.created_at DESC, p.id DESC"
	default:
		order = "p.hot_points DESC, p.created_at DESC, p.id DESC"
	}

	var rows *sql.Rows
	var err error
	if opts.AuthorID > 0 {
		rows, err = s.db.QueryContext(ctx, postSelect+fmt.Sprintf(`WHERE p.author_id = ? ORDER BY %s LIMIT ? OFFSET ?`, order), opts.AuthorID, limit, offset)
	} else {
		rows, err = s.db.QueryContext(ctx, postSelect+fmt.Sprintf(`ORDER BY %s LIMIT ? OFFSET ?`, order), limit, offset)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) UpdatePost(ctx context.Context, post *model.Post) error {
	tags, content, err := encodePostBody(post)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE posts SET title = ?, text = ?, tags = ?, img_url = ?, content = ?, updated_at = ? WHERE id = ?
`, post.Title, nullIfEmpty(post.Text), tags, nullIfEmpty(post.ImgURL), content, post.UpdatedAt.Unix(), post.ID)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeletePost removes the post together with its comments and every mark
// on either.
func (s *Store) DeletePost(ctx context.Context, id int64) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `
DELETE FROM marks WHERE target_type = ? AND target_id IN (SELECT id FROM comments WHERE post_id = ?)
`, model.TargetComment, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id = ?`, id); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM marks WHERE target_type = ? AND target_id = ?`, model.TargetPost, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		err = store.ErrNotFound
		return err
	}
	return tx.Commit()
}

func (s *Store) RecordPostView(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE posts SET views_amount = views_amount + 1, hot_points = hot_points + ? WHERE id = ?
`, viewHotPoints, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListHotCandidates(ctx context.Context, since time.Time) ([]model.HotCandidate, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, hot_points, hot_check_points, hot_check_date
FROM posts
WHERE created_at >= ?
ORDER BY id ASC
`, since.Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.HotCandidate
	for rows.Next() {
		var c model.HotCandidate
		var checkDate int64
		if err := rows.Scan(&c.PostID, &c.HotPoints, &c.HotCheck.LastCheckPoints, &checkDate); err != nil {
			return nil, err
		}
		c.HotCheck.LastCheckDate = time.Unix(checkDate, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePostHot(ctx context.Context, id int64, points float64, check model.HotCheck) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE posts SET hot_points = ?, hot_check_points = ?, hot_check_date = ? WHERE id = ?
`, points, check.LastCheckPoints, check.LastCheckDate.Unix(), id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return store.ErrNotFound
	}
	return nil
}

func encodePostBody(post *model.Post) (tags, content string, err error) {
	if post.Tags == nil {
		post.Tags = []string{}
	}
	if post.Content == nil {
		post.Content = []model.ContentBlock{}
	}
	t, err := json.Marshal(post.Tags)
	if err != nil {
		return "", "", err
	}
	c, err := json.Marshal(post.Content)
	if err != nil {
		return "", "", err
	}
	return string(t), string(c), nil
}

func scanPost(row scanner) (model.Post, error) {
	var p model.Post
	var text, tagsRaw, imgURL, contentRaw, authorName sql.NullString
	var checkDate, created, updated int64
	if err := row.Scan(&p.ID, &p.Title, &text, &tagsRaw, &imgURL, &contentRaw, &p.AuthorID, &authorName, &p.Score,
		&p.HotPoints, &p.HotCheck.LastCheckPoints, &checkDate, &p.ViewsAmount, &p.CommentsAmount, &created, &updated); err != nil {
		return model.Post{}, notFound(err)
	}
	p.Text = text.String
	p.ImgURL = imgURL.String
	p.AuthorName = authorName.String
	p.Tags = []string{}
	if tagsRaw.Valid && tagsRaw.String != "" {
		_ = json.Unmarshal([]byte(tagsRaw.String), &p.Tags)
	}
	p.Content = []model.ContentBlock{}
	if contentRaw.Valid && contentRaw.String != "" {
		_ = json.Unmarshal([]byte(contentRaw.String), &p.Content)
	}
	p.HotCheck.LastCheckDate = time.Unix(checkDate, 0)
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	p.Marked = model.MarkDefault
	return p, nil
}
