package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/memologist/memologist/internal/model"
	"github.com/memologist/memologist/internal/store"
)

func TestApplyPostMark(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	author := createUser(t, st, "author")
	reader := createUser(t, st, "reader")
	p := createPost(t, st, author.ID, "Markable post title", time.Now())

	steps := []struct {
		req    model.Mark
		score  int
		marked model.Mark
	}{
		{model.MarkLiked, 1, model.MarkLiked},
		{model.MarkLiked, 0, model.MarkDefault},
		{model.MarkDisliked, -1, model.MarkDisliked},
		{model.MarkLiked, 0, model.MarkDefault},
	}
	for i, step := range steps {
		res, err := st.ApplyPostMark(ctx, reader.ID, p.ID, step.req)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if res.Score != step.score || res.Marked != step.marked {
			t.Fatalf("step %d: expected (%d, %s), got %+v", i, step.score, step.marked, res)
		}
		got, _ := st.GetPost(ctx, p.ID)
		if got.Score != step.score || got.HotPoints != float64(step.score) {
			t.Fatalf("step %d: post not updated %+v", i, got)
		}
		a, _ := st.GetUser(ctx, author.ID)
		if a.Rate != step.score {
			t.Fatalf("step %d: expected author rate %d, got %d", i, step.score, a.Rate)
		}
	}

	if _, err := st.ApplyPostMark(ctx, reader.ID, 999, model.MarkLiked); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApplyCommentMarkAndGetMarks(t *testing.T) {
	st := newTestStore(t)
	defer st.Close()
	ctx := context.Background()

	author := createUser(t, st, "writer")
	reader := createUser(t, st, "critic")
	p := createPost(t, st, author.ID, "Commented post title", time.Now())
	c := model.Comment{PostID: p.ID, AuthorID: author.ID, Text: "first", CreatedAt: time.Now()}
	if _, err := st.CreateComment(ctx, &c); err != nil {
		t.Fatalf("create comment: %v", err)
	}

	res, err := st.ApplyCommentMark(ctx, reader.ID, c.ID, model.MarkDisliked)
	if err != nil {
		t.Fatalf("mark comment: %v", err)
	}
	if res.Score != -1 || res.Marked != model.MarkDisliked {
		t.Fatalf("unexpected result %+v", res)
	}
	a, _ := st.GetUser(ctx, author.ID)
	if a.Rate != 0 {
		t.Fatalf("comment marks must not touch rate, got %d", a.Rate)
	}

	marks, err := st.GetMarks(ctx, reader.ID, model.TargetComment, []int64{c.ID, 777})
	if err != nil {
		t.Fatalf("get marks: %v", err)
	}
	if marks[c.ID] != model.MarkDisliked || len(marks) != 1 {
		t.Fatalf("unexpected marks %v", marks)
	}
	none, err := st.GetMarks(ctx, 0, model.TargetComment, []int64{c.ID})
	if err != nil || len(none) != 0 {
		t.Fatalf("anonymous marks should be empty: %v %v", none, err)
	}
}
