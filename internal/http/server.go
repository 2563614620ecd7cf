package httpapp

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/memologist/memologist/internal/auth"
	"github.com/memologist/memologist/internal/config"
	"github.com/memologist/memologist/internal/hot"
	"github.com/memologist/memologist/internal/media"
	"github.com/memologist/memologist/internal/model"
	"github.com/memologist/memologist/internal/rate"
	"github.com/memologist/memologist/internal/store"

	_ "github.com/memologist/memologist/docs" // swagger docs

	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
	maxPage         = math.MaxInt32 / maxPageSize
)

type Server struct {
	store   store.Store
	auth    *auth.Service
	limiter rate.Limiter
	cfg     config.Config
	logger  *slog.Logger
	media   *media.Processor
	hot     *hot.Job
	now     func() time.Time

	mediaPrefix string
	mediaFiles  http.Handler
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMedia overrides the processor built from cfg.Media.
func WithMedia(p *media.Processor) Option {
	return func(s *Server) { s.media = p }
}

// WithHotJob enables POST /api/admin/hot/run.
func WithHotJob(job *hot.Job) Option {
	return func(s *Server) { s.hot = job }
}

func NewServer(store store.Store, authSvc *auth.Service, limiter rate.Limiter, cfg config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		store:   store,
		auth:    authSvc,
		limiter: limiter,
		cfg:     cfg,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.media == nil {
		uploader, err := media.NewUploader(cfg.Media)
		if err != nil {
			return nil, err
		}
		s.media = media.NewProcessor(uploader, cfg.Media.BaseURL, s.logger)
	}
	// Disk uploads are served by us when the base URL is a local path.
	if strings.EqualFold(cfg.Media.Provider, "disk") && strings.HasPrefix(cfg.Media.BaseURL, "/") && cfg.Media.Dir != "" {
		s.mediaPrefix = strings.TrimRight(cfg.Media.BaseURL, "/") + "/"
		s.mediaFiles = http.StripPrefix(s.mediaPrefix, http.FileServer(http.Dir(cfg.Media.Dir)))
	}
	return s, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", s.clientIP(r),
			"status", rec.status,
			"duration", time.Since(start),
		)
	}()

	s.setCORS(rec, r)
	if r.Method == http.MethodOptions {
		rec.WriteHeader(http.StatusOK)
		return
	}

	path := r.URL.Path
	switch {
	case strings.HasPrefix(path, "/api/"):
		s.handleAPI(rec, r)
	case strings.HasPrefix(path, "/swagger/"):
		httpSwagger.WrapHandler.ServeHTTP(rec, r)
	case s.mediaFiles != nil && strings.HasPrefix(path, s.mediaPrefix):
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(rec)
			return
		}
		if strings.HasSuffix(path, "/") {
			notFound(rec)
			return
		}
		s.mediaFiles.ServeHTTP(rec, r)
	default:
		notFound(rec)
	}
}

func (s *Server) setCORS(w http.ResponseWriter, r *http.Request) {
	origins := s.cfg.CORS.AllowedOrigins
	origin := r.Header.Get("Origin")
	allowed := "*"
	if len(origins) > 0 {
		allowed = origins[0]
		for _, o := range origins {
			if o == origin {
				allowed = origin
				break
			}
		}
	}
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", allowed)
	h.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Admin-Secret")
	h.Set("Access-Control-Expose-Headers", "X-Page, X-Limit, Retry-After")
	if allowed != "*" {
		h.Add("Vary", "Origin")
	}
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api")
	segments := splitPath(path)

	switch {
	case len(segments) == 1 && segments[0] == "ping":
		if r.Method == http.MethodGet {
			writeJSON(w, http.StatusOK, map[string]any{"message": "ping successful"})
			return
		}
	case len(segments) == 1 && segments[0] == "openapi.json":
		if r.Method == http.MethodGet {
			s.serveOpenAPIJSON(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "auth":
		if r.Method != http.MethodPost {
			break
		}
		switch segments[1] {
		case "register":
			s.handleRegister(w, r)
			return
		case "login":
			s.handleLogin(w, r)
			return
		case "challenge":
			s.handleAuthChallenge(w, r)
			return
		case "verify":
			s.handleAuthVerify(w, r)
			return
		}
	case len(segments) == 1 && segments[0] == "user":
		if r.Method == http.MethodGet {
			s.handleGetMe(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "user" && segments[1] == "keys":
		if r.Method == http.MethodPost {
			s.handleAddKey(w, r)
			return
		}
		if r.Method == http.MethodGet {
			s.handleListKeys(w, r)
			return
		}
	case len(segments) == 3 && segments[0] == "user" && segments[1] == "keys":
		if r.Method == http.MethodDelete {
			s.handleRevokeKey(w, r, segments[2])
			return
		}
	case len(segments) == 2 && segments[0] == "user":
		if r.Method == http.MethodGet {
			s.handleGetUser(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "posts":
		if r.Method == http.MethodGet {
			s.handleListPosts(w, r)
			return
		}
		if r.Method == http.MethodPost {
			s.handleCreatePost(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "posts" && segments[1] == "mark":
		if r.Method == http.MethodPost {
			s.handleMarkPost(w, r)
			return
		}
	case len(segments) == 3 && segments[0] == "posts" && segments[1] == "user":
		if r.Method == http.MethodGet {
			s.handleUserPosts(w, r, segments[2])
			return
		}
	case len(segments) == 2 && segments[0] == "posts":
		switch r.Method {
		case http.MethodGet:
			s.handleGetPost(w, r, segments[1])
			return
		case http.MethodPatch:
			s.handleUpdatePost(w, r, segments[1])
			return
		case http.MethodDelete:
			s.handleDeletePost(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "comments":
		if r.Method == http.MethodPost {
			s.handleCreateComment(w, r)
			return
		}
		if r.Method == http.MethodGet {
			s.handleMyComments(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "comments" && segments[1] == "mark":
		if r.Method == http.MethodPost {
			s.handleMarkComment(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "comments":
		if r.Method == http.MethodGet {
			s.handlePostComments(w, r, segments[1])
			return
		}
	case len(segments) == 1 && segments[0] == "stats":
		if r.Method == http.MethodGet {
			s.handleGetStats(w, r)
			return
		}
	case len(segments) == 2 && segments[0] == "admin" && segments[1] == "status":
		if r.Method == http.MethodPost {
			s.handleAdminStatus(w, r)
			return
		}
	case len(segments) == 3 && segments[0] == "admin" && segments[1] == "hot" && segments[2] == "run":
		if r.Method == http.MethodPost {
			s.handleAdminHotRun(w, r)
			return
		}
	}

	notFound(w)
}

func (s *Server) serveOpenAPIJSON(w http.ResponseWriter, r *http.Request) {
	doc, err := swag.ReadDoc()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = io.WriteString(w, doc)
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, action string, limit int) bool {
	if limit <= 0 || s.limiter == nil {
		return true
	}
	key := fmt.Sprintf("%s:ip:%s", action, s.clientIP(r))
	if ok, retry := s.limiter.Allow(r.Context(), key, limit, time.Minute); !ok {
		writeRateLimit(w, retry)
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer ")), true
}

// optionalAuth returns nil for anonymous callers and for invalid tokens.
func (s *Server) optionalAuth(r *http.Request) *auth.Identity {
	bearer, ok := bearerToken(r)
	if !ok {
		return nil
	}
	identity, err := s.auth.Authenticate(r.Context(), bearer)
	if err != nil {
		return nil
	}
	return &identity
}

func (s *Server) requireAuth(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	bearer, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
		return auth.Identity{}, false
	}
	identity, err := s.auth.Authenticate(r.Context(), bearer)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			err = errors.New("invalid token")
		}
		writeError(w, http.StatusUnauthorized, err)
		return auth.Identity{}, false
	}
	return identity, true
}

// requireUser authenticates the caller and loads their account.
func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	identity, ok := s.requireAuth(w, r)
	if !ok {
		return model.User{}, false
	}
	user, err := s.store.GetUser(r.Context(), identity.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, errors.New("user not found"))
			return model.User{}, false
		}
		s.internalError(w, r, err)
		return model.User{}, false
	}
	return user, true
}

func (s *Server) requirePublisher(w http.ResponseWriter, r *http.Request) (model.User, bool) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return model.User{}, false
	}
	if !user.CanPublish(s.now()) {
		writeError(w, http.StatusForbidden, fmt.Errorf("user is %s", user.EffectiveStatus(s.now())))
		return model.User{}, false
	}
	return user, true
}

func (s *Server) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if s.cfg.AdminSecret == "" {
		notFound(w)
		return false
	}
	got := r.Header.Get("X-Admin-Secret")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AdminSecret)) != 1 {
		writeError(w, http.StatusForbidden, errors.New("forbidden"))
		return false
	}
	return true
}

func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// storeError maps store sentinels onto status codes.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		notFound(w)
	case errors.Is(err, store.ErrDuplicateName),
		errors.Is(err, store.ErrDuplicateEmail),
		errors.Is(err, store.ErrDuplicateKey):
		writeError(w, http.StatusConflict, err)
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, err)
}

func (s *Server) fillPostMarks(ctx context.Context, identity *auth.Identity, posts []model.Post) {
	if identity == nil || len(posts) == 0 {
		return
	}
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	marks, err := s.store.GetMarks(ctx, identity.UserID, model.TargetPost, ids)
	if err != nil {
		s.logger.Warn("loading post marks failed", "user", identity.UserID, "error", err)
		return
	}
	for i := range posts {
		posts[i].Marked = markOrDefault(marks, posts[i].ID)
	}
}

func (s *Server) fillCommentMarks(ctx context.Context, identity *auth.Identity, comments []model.Comment) {
	if identity == nil || len(comments) == 0 {
		return
	}
	ids := make([]int64, len(comments))
	for i, c := range comments {
		ids[i] = c.ID
	}
	marks, err := s.store.GetMarks(ctx, identity.UserID, model.TargetComment, ids)
	if err != nil {
		s.logger.Warn("loading comment marks failed", "user", identity.UserID, "error", err)
		return
	}
	for i := range comments {
		comments[i].Marked = markOrDefault(marks, comments[i].ID)
	}
}

func markOrDefault(marks map[int64]model.Mark, id int64) model.Mark {
	if m, ok := marks[id]; ok {
		return m
	}
	return model.MarkDefault
}

// pageParams reads page and limit, writing them back as X-Page and
// X-Limit.
func pageParams(w http.ResponseWriter, r *http.Request) (page, limit int) {
	page = parseIntDefault(r.URL.Query().Get("page"), 1)
	if page < 1 {
		page = 1
	}
	// (page-1)*limit must not overflow.
	if page > maxPage {
		page = maxPage
	}
	limit = parseIntDefault(r.URL.Query().Get("limit"), defaultPageSize)
	if limit < 1 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	w.Header().Set("X-Page", strconv.Itoa(page))
	w.Header().Set("X-Limit", strconv.Itoa(limit))
	return page, limit
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	secs := int(retry.Seconds())
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": secs,
	})
}

func notFound(w http.ResponseWriter) {
	writeError(w, http.StatusNotFound, errors.New("not found"))
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func parseIntDefault(value string, def int) int {
	if value == "" {
		return def
	}
	if n, err := strconv.Atoi(value); err == nil {
		return n
	}
	return def
}

func parseID(value string) (int64, bool) {
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
