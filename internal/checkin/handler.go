package checkin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/squadpulse/service-core/internal/directory"
	"github.com/squadpulse/service-core/internal/respond"
	"github.com/squadpulse/service-core/internal/session"
)

// Handler exposes the check-in ledger over HTTP.
type Handler struct {
	svc    *Service
	dir    *directory.Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, dir *directory.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, dir: dir, logger: logger}
}

// CreateRequest is the mood-submission payload. Mood must be a JSON
// integer; anything else fails decoding or validation.
type CreateRequest struct {
	Mood           int    `json:"mood"`
	Note           string `json:"note"`
	TeamID         string `json:"teamId"`
	TeamName       string `json:"teamName"`
	OrganizationID string `json:"organizationId"`
}

// Create POST /checkins
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, respond.ErrInvalidRequest("invalid payload: mood must be an integer between 1 and 5"))
		return
	}
	created, err := h.svc.Create(r.Context(), CreateInput{
		AccountID:      rec.AccountID,
		Mood:           req.Mood,
		Note:           req.Note,
		TeamID:         req.TeamID,
		TeamName:       req.TeamName,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(w, r, respond.ErrInvalidRequest(err.Error()))
		case errors.Is(err, ErrNotFound):
			respond.Error(w, r, respond.ErrInvalidRequest("unknown team"))
		default:
			h.logger.Errorw("create checkin failed", "err", err)
			respond.Error(w, r, respond.ErrInternal())
		}
		return
	}

	stats, err := h.svc.UserStats(r.Context(), rec.AccountID)
	if err != nil {
		h.logger.Errorw("checkin stats failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	teams, err := h.dir.ListTeams(r.Context(), req.OrganizationID)
	if err != nil {
		h.logger.Errorw("list teams failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	respond.Created(w, r, map[string]any{
		"checkin": created,
		"stats":   stats,
		"teams":   orEmptyTeams(teams),
	})
}

// List GET /checkins?teamId=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	limit := queryInt(r, "limit", 20)
	teamID := r.URL.Query().Get("teamId")

	history, err := h.svc.ListUserCheckins(r.Context(), rec.AccountID, limit)
	if err != nil {
		h.logger.Errorw("list checkins failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	stats, err := h.svc.UserStats(r.Context(), rec.AccountID)
	if err != nil {
		h.logger.Errorw("checkin stats failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	teams, err := h.dir.ListTeams(r.Context(), r.URL.Query().Get("organizationId"))
	if err != nil {
		h.logger.Errorw("list teams failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}

	teamFeed := []Checkin{}
	if teamID != "" {
		teamFeed, err = h.svc.ListTeamFeed(r.Context(), teamID, rec.AccountID, limit)
		if err != nil {
			h.logger.Errorw("team feed failed", "team", teamID, "err", err)
			respond.Error(w, r, respond.ErrInternal())
			return
		}
		if teamFeed == nil {
			teamFeed = []Checkin{}
		}
	}
	if history == nil {
		history = []Checkin{}
	}
	respond.JSON(w, r, map[string]any{
		"teams":    orEmptyTeams(teams),
		"history":  history,
		"stats":    stats,
		"teamFeed": teamFeed,
	})
}

// CommentRequest is the check-in comment payload.
type CommentRequest struct {
	Content string `json:"content"`
}

// CreateComment POST /checkins/{id}/comments
func (h *Handler) CreateComment(w http.ResponseWriter, r *http.Request) {
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
	comment, err := h.svc.CreateComment(r.Context(), chi.URLParam(r, "id"), rec.AccountID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, ErrValidation):
			respond.Error(w, r, respond.ErrInvalidRequest("comment content is required"))
		case errors.Is(err, ErrNotFound):
			respond.Error(w, r, respond.ErrNotFound("checkin not found"))
		default:
			h.logger.Errorw("create checkin comment failed", "err", err)
			respond.Error(w, r, respond.ErrInternal())
		}
		return
	}
	respond.Created(w, r, map[string]any{"comment": comment})
}

// ListComments GET /checkins/{id}/comments
func (h *Handler) ListComments(w http.ResponseWriter, r *http.Request) {
	comments, err := h.svc.ListComments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Errorw("list checkin comments failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	if comments == nil {
		comments = []Comment{}
	}
	respond.JSON(w, r, map[string]any{"comments": comments})
}

func orEmptyTeams(teams []directory.Team) []directory.Team {
	if teams == nil {
		return []directory.Team{}
	}
	return teams
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
