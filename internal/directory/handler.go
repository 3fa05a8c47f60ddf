package directory

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/squadpulse/service-core/internal/respond"
	"github.com/squadpulse/service-core/internal/session"
)

// Handler exposes the tenancy directory over HTTP.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// ListOrganizations GET /organizations
func (h *Handler) ListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.svc.ListOrganizations(r.Context())
	if err != nil {
		h.logger.Errorw("list organizations failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	if orgs == nil {
		orgs = []Organization{}
	}
	respond.JSON(w, r, map[string]any{"organizations": orgs})
}

// ListTeams GET /teams?organizationId=
func (h *Handler) ListTeams(w http.ResponseWriter, r *http.Request) {
	orgID := r.URL.Query().Get("organizationId")
	teams, err := h.svc.ListTeams(r.Context(), orgID)
	if err != nil {
		h.logger.Errorw("list teams failed", "organization", orgID, "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	if teams == nil {
		teams = []Team{}
	}
	respond.JSON(w, r, map[string]any{"teams": teams})
}

// CreateTeamRequest is the team-creation payload.
type CreateTeamRequest struct {
	Name           string `json:"name"`
	OrganizationID string `json:"organizationId"`
}

// CreateTeam POST /teams — idempotent: an existing team with the same
// case-insensitive name is returned, not an error.
func (h *Handler) CreateTeam(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	var req CreateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, respond.ErrInvalidRequest("invalid payload"))
		return
	}
	team, err := h.svc.CreateTeam(r.Context(), req.OrganizationID, req.Name, &rec.AccountID)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			respond.Error(w, r, respond.ErrInvalidRequest("team name is required"))
			return
		}
		h.logger.Errorw("create team failed", "name", req.Name, "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	respond.Created(w, r, map[string]any{"team": team})
}
