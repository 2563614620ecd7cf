package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/memologist/memologist/internal/model"
	"github.com/memologist/memologist/internal/store"
)

const commentSelect = `
SELECT c.id, c.post_id, c.author_id, u.name, c.text, c.score, c.created_at, c.updated_at
FROM comments c
LEFT JOIN users u ON u.id = c.author_id
`

func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) (id int64, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if comment.UpdatedAt.IsZero() {
		comment.UpdatedAt = comment.CreatedAt
	}
	res, err := tx.ExecContext(ctx, `
UPDATE posts SET comments_amount = comments_amount + 1, hot_points = hot_points + ? WHERE id = ?
`, commentHotPoints, comment.PostID)
	if err != nil {
		return 0, err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		err = store.ErrNotFound
		return 0, err
	}
	res, err = tx.ExecContext(ctx, `
INSERT INTO comments (post_id, author_id, text, score, created_at, updated_at)
VALUES (?, ?, ?, 0, ?, ?)
`, comment.PostID, comment.AuthorID, comment.Text, comment.CreatedAt.Unix(), comment.UpdatedAt.Unix())
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}
	if err = tx.Commit(); err != nil {
		return 0, err
	}
	comment.ID = id
	return id, nil
}

func (s *Store) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	row := s.db.QueryRowContext(ctx, commentSelect+`WHERE c.id = ?`, id)
	return scanComment(row)
}

func (s *Store) ListCommentsByPost(ctx context.Context, postID int64) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+`
WHERE c.post_id = ?
ORDER BY c.created_at DESC, c.id DESC
`, postID)
	if err != nil {
		return nil, err
	}
	return collectComments(rows)
}

func (s *Store) ListCommentsByUser(ctx context.Context, userID int64, limit int) ([]model.Comment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, commentSelect+`
WHERE c.author_id = ?
ORDER BY c.created_at DESC, c.id DESC
LIMIT ?
`, userID, limit)
	if err != nil {
		return nil, err
	}
	return collectComments(rows)
}

func collectComments(rows *sql.Rows) ([]model.Comment, error) {
	defer rows.Close()
	comments := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func scanComment(row scanner) (model.Comment, error) {
	var c model.Comment
	var authorName sql.NullString
	var created, updated int64
	if err := row.Scan(&c.ID, &c.PostID, &c.AuthorID, &authorName, &c.Text, &c.Score, &created, &updated); err != nil {
		return model.Comment{}, notFound(err)
	}
	c.AuthorName = authorName.String
	c.CreatedAt = time.Unix(created, 0)
	c.UpdatedAt = time.Unix(updated, 0)
	c.Marked = model.MarkDefault
	return c, nil
}
