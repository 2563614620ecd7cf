package httpapp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/memologist/memologist/internal/marks"
	"github.com/memologist/memologist/internal/media"
	"github.com/memologist/memologist/internal/model"
	"github.com/memologist/memologist/internal/store"
)

const (
	minTitleLength = 8
	maxTitleLength = 120
	maxTextLength  = 2000
	maxTags        = 5
	maxImgURL      = 120
	maxFiles       = 10
	// multipartMemory is kept in memory before spilling parts to disk.
	multipartMemory = 8 << 20
)

type postInput struct {
	Title   string               `json:"title"`
	Text    string               `json:"text"`
	Tags    []string             `json:"tags"`
	ImgURL  string               `json:"imgUrl"`
	Content []model.ContentBlock `json:"content"`
}

func (in *postInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Text = strings.TrimSpace(in.Text)
	in.ImgURL = strings.TrimSpace(in.ImgURL)
	tags := make([]string, 0, len(in.Tags))
	for _, t := range in.Tags {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	in.Tags = tags
}

func (in postInput) validate() error {
	if n := utf8.RuneCountInString(in.Title); n < minTitleLength || n > maxTitleLength {
		return fmt.Errorf("title must be %d-%d characters", minTitleLength, maxTitleLength)
	}
	if utf8.RuneCountInString(in.Text) > maxTextLength {
		return fmt.Errorf("text must be at most %d characters", maxTextLength)
	}
	if len(in.Tags) > maxTags {
		return fmt.Errorf("at most %d tags allowed", maxTags)
	}
	if len(in.ImgURL) > maxImgURL {
		return fmt.Errorf("imgUrl must be at most %d characters", maxImgURL)
	}
	if in.Text == "" && len(in.Content) == 0 {
		return errors.New("text or content required")
	}
	return media.Validate(in.Content)
}

// readPostInput accepts a JSON body or a multipart form whose "data" field
// holds the JSON and whose "files" parts are images referenced by imgName
// blocks.
func readPostInput(w http.ResponseWriter, r *http.Request) (postInput, map[string][]byte, error) {
	var in postInput
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		err := readJSON(r.Body, &in)
		return in, nil, err
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxFiles*media.MaxFileSize+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return in, nil, fmt.Errorf("invalid multipart body: %w", err)
	}
	defer r.MultipartForm.RemoveAll()

	data := r.FormValue("data")
	if data == "" {
		return in, nil, errors.New("data field required")
	}
	dec := json.NewDecoder(strings.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, nil, err
	}

	headers := r.MultipartForm.File["files"]
	if len(headers) > maxFiles {
		return in, nil, fmt.Errorf("at most %d files allowed", maxFiles)
	}
	files := make(map[string][]byte, len(headers))
	for _, fh := range headers {
		if fh.Size > media.MaxFileSize {
			return in, nil, fmt.Errorf("%s: %w", fh.Filename, media.ErrTooLarge)
		}
		f, err := fh.Open()
		if err != nil {
			return in, nil, err
		}
		body, err := io.ReadAll(io.LimitReader(f, media.MaxFileSize+1))
		f.Close()
		if err != nil {
			return in, nil, err
		}
		if _, _, err := media.Detect(body); err != nil {
			return in, nil, fmt.Errorf("%s: %w", fh.Filename, err)
		}
		files[fh.Filename] = body
	}
	return in, files, nil
}

// preparePost reads, validates and stores the media of a submitted post.
// It writes the error response itself and reports whether to continue.
func (s *Server) preparePost(w http.ResponseWriter, r *http.Request) (postInput, bool) {
	in, files, err := readPostInput(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return in, false
	}
	in.normalize()
	if err := in.validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return in, false
	}
	content, err := s.media.Process(r.Context(), in.Content, files)
	if err != nil {
		if errors.Is(err, media.ErrInvalidContent) {
			writeError(w, http.StatusBadRequest, err)
			return in, false
		}
		s.internalError(w, r, err)
		return in, false
	}
	in.Content = content
	return in, true
}

func parseSort(value string) (string, bool) {
	switch value {
	case "":
		return store.SortHot, true
	case store.SortHot, store.SortNew, store.SortBest:
		return value, true
	}
	return "", false
}

// handleListPosts godoc
//
//	@Summary		List posts
//	@Description	Paginated feed. The hot feed orders by the decaying hot score.
//	@Tags			Posts
//	@Produce		json
//	@Param			sort	query		string	false	"Sort order (hot, new, best)"	default(hot)
//	@Param			page	query		int		false	"Page number"					default(1)
//	@Param			limit	query		int		false	"Page size (max 50)"			default(10)
//	@Success		200		{array}		model.Post
//	@Header			200		{int}		X-Page	"Current page"
//	@Header			200		{int}		X-Limit	"Page size"
//	@Failure		400		{object}	map[string]string	"Invalid sort"
//	@Router			/api/posts [get]
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	sort, ok := parseSort(r.URL.Query().Get("sort"))
	if !ok {
		writeError(w, http.StatusBadRequest, errors.New("sort must be hot, new or best"))
		return
	}
	page, limit := pageParams(w, r)
	posts, err := s.store.ListPosts(r.Context(), store.PostListOpts{
		Sort:   sort,
		Limit:  limit,
		Offset: (page - 1) * limit,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.fillPostMarks(r.Context(), s.optionalAuth(r), posts)
	writeJSON(w, http.StatusOK, posts)
}

// handleUserPosts godoc
//
//	@Summary	List posts by author
//	@Tags		Posts
//	@Produce	json
//	@Param		name	path		string	true	"Author name"
//	@Param		page	query		int		false	"Page number"			default(1)
//	@Param		limit	query		int		false	"Page size (max 50)"	default(10)
//	@Success	200		{array}		model.Post
//	@Failure	404		{object}	map[string]string	"Unknown author"
//	@Router		/api/posts/user/{name} [get]
func (s *Server) handleUserPosts(w http.ResponseWriter, r *http.Request, name string) {
	author, err := s.store.GetUserByName(r.Context(), name)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	page, limit := pageParams(w, r)
	posts, err := s.store.ListPosts(r.Context(), store.PostListOpts{
		Sort:     store.SortNew,
		Limit:    limit,
		Offset:   (page - 1) * limit,
		AuthorID: author.ID,
	})
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.fillPostMarks(r.Context(), s.optionalAuth(r), posts)
	writeJSON(w, http.StatusOK, posts)
}

// handleGetPost godoc
//
//	@Summary		Get a post
//	@Description	Reading a post while signed in counts a view.
//	@Tags			Posts
//	@Produce		json
//	@Param			id	path		int	true	"Post ID"
//	@Success		200	{object}	model.Post
//	@Failure		404	{object}	map[string]string	"Post not found"
//	@Router			/api/posts/{id} [get]
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(idStr)
	if !ok {
		notFound(w)
		return
	}
	identity := s.optionalAuth(r)
	if identity != nil {
		if err := s.store.RecordPostView(r.Context(), id); err != nil && !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("recording post view failed", "post", id, "error", err)
		}
	}
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	posts := []model.Post{post}
	s.fillPostMarks(r.Context(), identity, posts)
	writeJSON(w, http.StatusOK, posts[0])
}

// handleCreatePost godoc
//
//	@Summary		Create a post
//	@Description	Accepts JSON, or multipart/form-data with the JSON in a "data" field and images in "files" fields referenced by imgName blocks.
//	@Tags			Posts
//	@Accept			json,mpfd
//	@Produce		json
//	@Security		BearerAuth
//	@Param			post	body		object{title=string,text=string,tags=[]string,imgUrl=string,content=[]model.ContentBlock}	true	"Post data"
//	@Success		201		{object}	model.Post
//	@Failure		400		{object}	map[string]string	"Invalid input"
//	@Failure		401		{object}	map[string]string	"Authentication required"
//	@Failure		403		{object}	map[string]string	"User is muted or banned"
//	@Failure		429		{object}	map[string]string	"Rate limited"
//	@Router			/api/posts [post]
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, "post", s.cfg.RateLimits.PostPerMinute) {
		return
	}
	user, ok := s.requirePublisher(w, r)
	if !ok {
		return
	}
	in, ok := s.preparePost(w, r)
	if !ok {
		return
	}
	now := s.now()
	post := model.Post{
		Title:     in.Title,
		Text:      in.Text,
		Tags:      in.Tags,
		ImgURL:    in.ImgURL,
		Content:   in.Content,
		AuthorID:  user.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	id, err := s.store.CreatePost(r.Context(), &post)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	created, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.logger.Info("post created", "post", id, "author", user.ID)
	writeJSON(w, http.StatusCreated, created)
}

// handleUpdatePost godoc
//
//	@Summary	Edit a post
//	@Tags		Posts
//	@Accept		json,mpfd
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		int																						true	"Post ID"
//	@Param		post	body		object{title=string,text=string,tags=[]string,imgUrl=string,content=[]model.ContentBlock}	true	"Post data"
//	@Success	200		{object}	model.Post
//	@Failure	400		{object}	map[string]string	"Invalid input"
//	@Failure	403		{object}	map[string]string	"Not the author"
//	@Failure	404		{object}	map[string]string	"Post not found"
//	@Router		/api/posts/{id} [patch]
func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(idStr)
	if !ok {
		notFound(w)
		return
	}
	user, ok := s.requirePublisher(w, r)
	if !ok {
		return
	}
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	if post.AuthorID != user.ID {
		writeError(w, http.StatusForbidden, errors.New("only the author can edit this post"))
		return
	}
	in, ok := s.preparePost(w, r)
	if !ok {
		return
	}
	post.Title = in.Title
	post.Text = in.Text
	post.Tags = in.Tags
	post.ImgURL = in.ImgURL
	post.Content = in.Content
	post.UpdatedAt = s.now()
	if err := s.store.UpdatePost(r.Context(), &post); err != nil {
		s.storeError(w, r, err)
		return
	}
	updated, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// handleDeletePost godoc
//
//	@Summary		Delete a post
//	@Description	Removes the post with its comments and marks. Super admins only.
//	@Tags			Posts
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int					true	"Post ID"
//	@Success		200	{object}	map[string]bool		"Post deleted"
//	@Failure		403	{object}	map[string]string	"Not allowed"
//	@Failure		404	{object}	map[string]string	"Post not found"
//	@Router			/api/posts/{id} [delete]
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request, idStr string) {
	id, ok := parseID(idStr)
	if !ok {
		notFound(w)
		return
	}
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if user.Role != model.RoleSuperAdmin {
		writeError(w, http.StatusForbidden, errors.New("only a super admin can delete posts"))
		return
	}
	if err := s.store.DeletePost(r.Context(), id); err != nil {
		s.storeError(w, r, err)
		return
	}
	s.logger.Info("post deleted", "post", id, "by", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type markRequest struct {
	ID       int64  `json:"id"`
	MarkType string `json:"markType"`
}

func readMarkRequest(r *http.Request) (int64, model.Mark, error) {
	var req markRequest
	if err := readJSON(r.Body, &req); err != nil {
		return 0, "", err
	}
	if req.ID <= 0 {
		return 0, "", errors.New("id required")
	}
	mark, err := marks.Parse(req.MarkType)
	if err != nil {
		return 0, "", err
	}
	return req.ID, mark, nil
}

// handleMarkPost godoc
//
//	@Summary		Like or dislike a post
//	@Description	Toggles the caller's mark. Any mark request while a mark exists clears it.
//	@Tags			Marks
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			mark	body		object{id=int,markType=string}	true	"Mark (liked or disliked)"
//	@Success		200		{object}	store.MarkResult
//	@Failure		400		{object}	map[string]string	"Invalid markType"
//	@Failure		404		{object}	map[string]string	"Post not found"
//	@Failure		429		{object}	map[string]string	"Rate limited"
//	@Router			/api/posts/mark [post]
func (s *Server) handleMarkPost(w http.ResponseWriter, r *http.Request) {
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
	res, err := s.store.ApplyPostMark(r.Context(), identity.UserID, id, mark)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
