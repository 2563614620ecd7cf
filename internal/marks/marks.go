// Package marks implements the like/dislike toggle shared by posts and
// comments.
package marks

import (
	"fmt"

	"github.com/memologist/memologist/internal/model"
)

// Parse validates a requested mark type. Only liked and disliked can be
// requested; clearing happens by repeating a request.
func Parse(s string) (model.Mark, error) {
	switch model.Mark(s) {
	case model.MarkLiked, model.MarkDisliked:
		return model.Mark(s), nil
	}
	return "", fmt.Errorf("invalid markType %q", s)
}

// Apply returns the score delta and the user's next mark when requested is
// applied on top of current. Any request while a mark exists clears it, so
// a target's score always equals the sum of its stored marks.
func Apply(current, requested model.Mark) (delta int, next model.Mark) {
	if current == "" {
		current = model.MarkDefault
	}
	switch {
	case requested == model.MarkLiked && current != model.MarkLiked,
		requested == model.MarkDisliked && current == model.MarkDisliked:
		delta = 1
	case requested == model.MarkDisliked && current != model.MarkDisliked,
		requested == model.MarkLiked && current == model.MarkLiked:
		delta = -1
	}
	if current != model.MarkDefault {
		return delta, model.MarkDefault
	}
	return delta, requested
}
