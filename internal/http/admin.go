package httpapp

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/memologist/memologist/internal/hot"
	"github.com/memologist/memologist/internal/model"
)

// handleGetStats godoc
//
//	@Summary	Site statistics
//	@Tags		Stats
//	@Produce	json
//	@Success	200	{object}	model.SiteStats
//	@Router		/api/stats [get]
func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetSiteStats(r.Context())
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleAdminStatus godoc
//
//	@Summary		Set a user's status
//	@Description	Mute or ban a user, optionally until a date. Requires X-Admin-Secret header.
//	@Tags			Admin
//	@Accept			json
//	@Produce		json
//	@Param			X-Admin-Secret	header		string														true	"Admin secret"
//	@Param			request			body		object{userId=int,name=string,status=string,till=string}	true	"Target user and status"
//	@Success		200				{object}	model.User
//	@Failure		400				{object}	map[string]string	"Invalid status"
//	@Failure		403				{object}	map[string]string	"Invalid admin secret"
//	@Failure		404				{object}	map[string]string	"User not found"
//	@Router			/api/admin/status [post]
func (s *Server) handleAdminStatus(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	var req struct {
		UserID int64      `json:"userId"`
		Name   string     `json:"name"`
		Status string     `json:"status"`
		Till   *time.Time `json:"till"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	status := model.Status(req.Status)
	switch status {
	case model.StatusDefault, model.StatusMuted, model.StatusBanned:
	default:
		writeError(w, http.StatusBadRequest, errors.New("status must be default, muted or banned"))
		return
	}
	if status == model.StatusDefault {
		req.Till = nil
	}

	var (
		user model.User
		err  error
	)
	switch {
	case req.UserID > 0:
		user, err = s.store.GetUser(r.Context(), req.UserID)
	case strings.TrimSpace(req.Name) != "":
		user, err = s.store.GetUserByName(r.Context(), strings.TrimSpace(req.Name))
	default:
		writeError(w, http.StatusBadRequest, errors.New("userId or name required"))
		return
	}
	if err != nil {
		s.storeError(w, r, err)
		return
	}

	if err := s.store.UpdateUserStatus(r.Context(), user.ID, status, req.Till, s.now()); err != nil {
		s.storeError(w, r, err)
		return
	}
	updated, err := s.store.GetUser(r.Context(), user.ID)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	s.logger.Info("user status changed", "user", user.ID, "status", status, "till", req.Till)
	writeJSON(w, http.StatusOK, updated)
}

// handleAdminHotRun godoc
//
//	@Summary		Run hot decay now
//	@Description	Triggers one decay pass outside the schedule. Requires X-Admin-Secret header.
//	@Tags			Admin
//	@Produce		json
//	@Param			X-Admin-Secret	header		string	true	"Admin secret"
//	@Success		200				{object}	hot.RunStats
//	@Failure		403				{object}	map[string]string	"Invalid admin secret"
//	@Failure		409				{object}	map[string]string	"Run already in progress"
//	@Failure		503				{object}	map[string]string	"Decay job not configured"
//	@Router			/api/admin/hot/run [post]
func (s *Server) handleAdminHotRun(w http.ResponseWriter, r *http.Request) {
	if !s.requireAdmin(w, r) {
		return
	}
	if s.hot == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("decay job not configured"))
		return
	}
	stats, err := s.hot.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, hot.ErrRunning) {
			writeError(w, http.StatusConflict, err)
			return
		}
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
