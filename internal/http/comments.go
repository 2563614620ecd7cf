package httpapp

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/memologist/memologist/internal/model"
)

const (
	maxCommentLength = 2000
	ownCommentsLimit = 100
)

// handleCreateComment godoc
//
//	@Summary		Comment on a post
//	@Description	Adds a comment and raises the post's comment count and hot score.
//	@Tags			Comments
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			comment	body		object{post=int,text=string}	true	"Comment data"
//	@Success		201		{object}	model.Comment
//	@Failure		400		{object}	map[string]string	"Invalid input"
//	@Failure		401		{object}	map[string]string	"Authentication required"
//	@Failure		403		{object}	map[string]string	"User is muted or banned"
//	@Failure		404		{object}	map[string]string	"Post not found"
//	@Failure		429		{object}	map[string]string	"Rate limited"
//	@Router			/api/comments [post]
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "comment", s.cfg.RateLimits.CommentPerMinute) {
		return
	}
	user, ok := s.requirePublisher(w, r)
	if !ok {
		return
	}
	var req struct {
		Post int64  `json:"post"`
		Text string `json:"text"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if n := utf8.RuneCountInString(req.Text); n < 1 || n > maxCommentLength {
		writeError(w, http.StatusBadRequest, fmt.Errorf("text must be 1-%d characters", maxCommentLength))
		return
	}
	if req.Post <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("post required"))
		return
	}

	now := s.now()
	comment := model.Comment{
		PostID:    req.Post,
		AuthorID:  user.ID,
		Text:      req.Text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.store.CreateComment(r.Context(), &comment)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	created, err := s.store.GetComment(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

// handlePostComments godoc
//
//	@Summary	List comments of a post
//	@Tags		Comments
//	@Produce	json
//	@Param		postId	path		int	true	"Post ID"
//	@Success	200		{array}		model.Comment
//	@Failure	404		{object}	map[string]string	"Post not found"
//	@Router		/api/comments/{postId} [get]
func (s *Server) handlePostComments(w http.ResponseWriter, r *http.Request, idStr string) {
	postID, ok := parseID(idStr)
	if !ok {
		notFound(w)
		return
	}
	if _, err := s.store.GetPost(r.Context(), postID); err != nil {
		s.storeError(w, r, err)
		return
	}
	comments, err := s.store.ListCommentsByPost(r.Context(), postID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.fillCommentMarks(r.Context(), s.optionalAuth(r), comments)
	writeJSON(w, http.StatusOK, comments)
}

// handleMyComments godoc
//
//	@Summary	List own comments
//	@Tags		Comments
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}		model.Comment
//	@Failure	401	{object}	map[string]string	"Authentication required"
//	@Router		/api/comments [get]
func (s *Server) handleMyComments(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	comments, err := s.store.ListCommentsByUser(r.Context(), identity.UserID, ownCommentsLimit)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.fillCommentMarks(r.Context(), &identity, comments)
	writeJSON(w, http.StatusOK, comments)
}

// handleMarkComment godoc
//
//	@Summary	Like or dislike a comment
//	@Tags		Marks
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		mark	body		object{id=int,markType=string}	true	"Mark (liked or disliked)"
//	@Success	200		{object}	store.MarkResult
//	@Failure	400		{object}	map[string]string	"Invalid markType"
//	@Failure	404		{object}	map[string]string	"Comment not found"
//	@Failure	429		{object}	map[string]string	"Rate limited"
//	@Router		/api/comments/mark [post]
func (s *Server) handleMarkComment(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "mark", s.cfg.RateLimits.MarkPerMinute) {
		return
	}
	identity, ok := s.requireAuth(w, r)
	if !ok {
		return
	}
	id, mark, err := readMarkRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.store.ApplyCommentMark(r.Context(), identity.UserID, id, mark)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
