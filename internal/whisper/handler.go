package whisper

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/squadpulse/service-core/internal/directory"
	"github.com/squadpulse/service-core/internal/preference"
	"github.com/squadpulse/service-core/internal/respond"
	"github.com/squadpulse/service-core/internal/session"
)

// Handler exposes the whisper board over HTTP. It also owns the scope
// resolution shared by the wall and post creation: explicit query/body ids
// win, then the caller's stored selection, then the default organization.
type Handler struct {
	svc    *Service
	dir    *directory.Service
	pref   *preference.Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, dir *directory.Service, pref *preference.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, dir: dir, pref: pref, logger: logger}
}

// Wall GET /whispers?organizationId=&teamId=&categories=&limit=
func (h *Handler) Wall(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	orgParam := r.URL.Query().Get("organizationId")
	teamParam := r.URL.Query().Get("teamId")

	sel, err := h.pref.Get(r.Context(), rec.AccountID)
	if err != nil {
		h.logger.Errorw("load selection failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	orgID, teamID := h.effectiveScope(orgParam, teamParam, sel)

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	wall, err := h.svc.Wall(r.Context(), WallQuery{
		AccountID:      rec.AccountID,
		OrganizationID: orgID,
		TeamID:         teamID,
		Categories:     ParseCategoryList(r.URL.Query().Get("categories")),
		Limit:          limit,
	})
	if err != nil {
		h.logger.Errorw("wall query failed", "organization", orgID, "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}

	orgs, err := h.dir.ListOrganizations(r.Context())
	if err != nil {
		h.logger.Errorw("list organizations failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	teams, err := h.dir.ListTeams(r.Context(), orgID)
	if err != nil {
		h.logger.Errorw("list teams failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}

	respond.JSON(w, r, map[string]any{
		"whispers":               wall.Whispers,
		"stats":                  wall.Stats,
		"participants":           wall.Participants,
		"needsSelection":         orgParam == "" && sel.OrganizationID == nil,
		"organizations":          orgs,
		"organizationId":         orgID,
		"selectedOrganizationId": sel.OrganizationID,
		"teams":                  teams,
		"teamId":                 teamID,
	})
}

// CreateRequest is the new-post payload. Category is coerced server-side,
// never rejected.
type CreateRequest struct {
	Content        string `json:"content"`
	Category       string `json:"category"`
	TeamID         string `json:"teamId"`
	OrganizationID string `json:"organizationId"`
}

// Create POST /whispers — also persists the caller's organization/team as
// their new default selection.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, respond.ErrInvalidRequest("invalid payload"))
		return
	}
	sel, err := h.pref.Get(r.Context(), rec.AccountID)
	if err != nil {
		h.logger.Errorw("load selection failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	orgID, teamID := h.effectiveScope(req.OrganizationID, req.TeamID, sel)

	view, err := h.svc.Create(r.Context(), CreateInput{
		AccountID:      rec.AccountID,
		OrganizationID: orgID,
		TeamID:         teamID,
		Category:       req.Category,
		Content:        req.Content,
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			respond.Error(w, r, respond.ErrInvalidRequest("content is required"))
			return
		}
		h.logger.Errorw("create whisper failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	if err := h.pref.Set(r.Context(), rec.AccountID, orgID, teamID); err != nil {
		// selection is a convenience; the post is already in
		h.logger.Warnw("persist selection failed", "err", err)
	}
	respond.Created(w, r, map[string]any{"whisper": view})
}

// UpdateRequest is a partial edit; absent fields stay unchanged.
type UpdateRequest struct {
	Content  *string `json:"content"`
	Category *string `json:"category"`
}

// Update PATCH /whispers/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, respond.ErrInvalidRequest("invalid payload"))
		return
	}
	view, err := h.svc.Update(r.Context(), UpdateInput{
		AccountID: rec.AccountID,
		WhisperID: chi.URLParam(r, "id"),
		Content:   req.Content,
		Category:  req.Category,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(w, r, respond.ErrInvalidRequest("content cannot be empty"))
		case errors.Is(err, ErrNotFound):
			respond.Error(w, r, respond.ErrInvalidRequest("whisper not found"))
		default:
			h.logger.Errorw("update whisper failed", "err", err)
			respond.Error(w, r, respond.ErrInternal())
		}
		return
	}
	respond.JSON(w, r, map[string]any{"whisper": view})
}

// Delete DELETE /whispers/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	deleted, err := h.svc.Delete(r.Context(), chi.URLParam(r, "id"), rec.AccountID)
	if err != nil {
		h.logger.Errorw("delete whisper failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	if !deleted {
		respond.Error(w, r, respond.ErrNotFound("whisper not found"))
		return
	}
	respond.JSON(w, r, map[string]any{"success": true})
}

// ToggleLike POST /whispers/{id}/like
func (h *Handler) ToggleLike(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	liked, likes, err := h.svc.ToggleLike(r.Context(), chi.URLParam(r, "id"), rec.AccountID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(w, r, respond.ErrNotFound("whisper not found"))
			return
		}
		h.logger.Errorw("toggle like failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	respond.JSON(w, r, map[string]any{"liked": liked, "likes": likes})
}

// CommentRequest is the whisper comment payload.
type CommentRequest struct {
	Content string `json:"content"`
}

// AddComment POST /whispers/{id}/comments
func (h *Handler) AddComment(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	var req CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, respond.ErrInvalidRequest("invalid payload"))
		return
	}
	comment, err := h.svc.AddComment(r.Context(), chi.URLParam(r, "id"), rec.AccountID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(w, r, respond.ErrInvalidRequest("comment content is required"))
		case errors.Is(err, ErrNotFound):
			respond.Error(w, r, respond.ErrNotFound("whisper not found"))
		default:
			h.logger.Errorw("add whisper comment failed", "err", err)
			respond.Error(w, r, respond.ErrInternal())
		}
		return
	}
	respond.Created(w, r, map[string]any{"comment": comment})
}

// Share POST /whispers/{id}/share
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	if _, ok := session.FromContext(r.Context()); !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	shares, err := h.svc.IncrementShare(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(w, r, respond.ErrNotFound("whisper not found"))
			return
		}
		h.logger.Errorw("increment share failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	respond.JSON(w, r, map[string]any{"shares": shares})
}

// ReportRequest is the report-stub payload.
type ReportRequest struct {
	Reason string `json:"reason"`
}

// Report POST /whispers/{id}/report
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	// an empty body is a bare report with no reason
	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respond.Error(w, r, respond.ErrInvalidRequest("invalid payload"))
		return
	}
	rep, err := h.svc.Report(r.Context(), chi.URLParam(r, "id"), rec.AccountID, req.Reason)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			respond.Error(w, r, respond.ErrNotFound("whisper not found"))
			return
		}
		h.logger.Errorw("report whisper failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	respond.Accepted(w, r, map[string]any{"report": rep})
}

func (h *Handler) effectiveScope(orgParam, teamParam string, sel *preference.Selection) (orgID, teamID string) {
	orgID = orgParam
	teamID = teamParam
	if orgID == "" {
		if sel.OrganizationID != nil {
			orgID = *sel.OrganizationID
			// only adopt the stored team alongside the stored org, so
			// an explicit org switch never drags in a foreign team
			if teamID == "" && sel.TeamID != nil {
				teamID = *sel.TeamID
			}
		} else {
			orgID = h.dir.DefaultOrganizationID()
		}
	}
	return orgID, teamID
}
