package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/memologist/memologist/internal/marks"
	"github.com/memologist/memologist/internal/model"
	"github.com/memologist/memologist/internal/store"
)

func (s *Store) GetMarks(ctx context.Context, userID int64, targetType string, ids []int64) (map[int64]model.Mark, error) {
	out := make(map[int64]model.Mark, len(ids))
	if userID == 0 || len(ids) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(ids)+2)
	args = append(args, userID, targetType)
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT target_id, mark FROM marks WHERE user_id = ? AND target_type = ? AND target_id IN (`+placeholders(len(ids))+`)
`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id int64
		var m string
		if err := rows.Scan(&id, &m); err != nil {
			return nil, err
		}
		out[id] = model.Mark(m)
	}
	return out, rows.Err()
}

// ApplyPostMark toggles the user's mark on a post. The post score, its hot
// score and the author's rate all move by the same delta.
func (s *Store) ApplyPostMark(ctx context.Context, userID, postID int64, requested model.Mark) (store.MarkResult, error) {
	return s.applyMark(ctx, userID, model.TargetPost, postID, requested)
}

// ApplyCommentMark toggles the user's mark on a comment.
func (s *Store) ApplyCommentMark(ctx context.Context, userID, commentID int64, requested model.Mark) (store.MarkResult, error) {
	return s.applyMark(ctx, userID, model.TargetComment, commentID, requested)
}

func (s *Store) applyMark(ctx context.Context, userID int64, targetType string, targetID int64, requested model.Mark) (result store.MarkResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return result, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var authorID int64
	var score int
	switch targetType {
	case model.TargetPost:
		err = tx.QueryRowContext(ctx, `SELECT author_id, score FROM posts WHERE id = ?`, targetID).Scan(&authorID, &score)
	default:
		err = tx.QueryRowContext(ctx, `SELECT author_id, score FROM comments WHERE id = ?`, targetID).Scan(&authorID, &score)
	}
	if err != nil {
		err = notFound(err)
		return result, err
	}

	current := model.MarkDefault
	var stored string
	err = tx.QueryRowContext(ctx, `
SELECT mark FROM marks WHERE user_id = ? AND target_type = ? AND target_id = ?
`, userID, targetType, targetID).Scan(&stored)
	switch {
	case err == nil:
		current = model.Mark(stored)
	case errors.Is(err, sql.ErrNoRows):
		err = nil
	default:
		return result, err
	}

	delta, next := marks.Apply(current, requested)
	if next == model.MarkDefault {
		_, err = tx.ExecContext(ctx, `DELETE FROM marks WHERE user_id = ? AND target_type = ? AND target_id = ?`, userID, targetType, targetID)
	} else {
		_, err = tx.ExecContext(ctx, `
INSERT INTO marks (user_id, target_type, target_id, mark, created_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(user_id, target_type, target_id) DO UPDATE SET mark = excluded.mark
`, userID, targetType, targetID, string(next), s.now().Unix())
	}
	if err != nil {
		return result, err
	}

	switch targetType {
	case model.TargetPost:
		if _, err = tx.ExecContext(ctx, `UPDATE posts SET score = score + ?, hot_points = hot_points + ? WHERE id = ?`, delta, delta, targetID); err != nil {
			return result, err
		}
		if _, err = tx.ExecContext(ctx, `UPDATE users SET rate = rate + ? WHERE id = ?`, delta, authorID); err != nil {
			return result, err
		}
	default:
		if _, err = tx.ExecContext(ctx, `UPDATE comments SET score = score + ? WHERE id = ?`, delta, targetID); err != nil {
			return result, err
		}
	}
	if err = tx.Commit(); err != nil {
		return result, err
	}
	return store.MarkResult{Score: score + delta, Marked: next, Delta: delta}, nil
}
