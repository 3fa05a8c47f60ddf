package preference

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/squadpulse/service-core/internal/directory"
	"github.com/squadpulse/service-core/internal/respond"
	"github.com/squadpulse/service-core/internal/session"
)

// Handler exposes the per-user organization/team selection.
type Handler struct {
	svc    *Service
	dir    *directory.Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, dir *directory.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, dir: dir, logger: logger}
}

// Get GET /preferences — the stored selection plus the directory context
// the client needs to render a picker.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	sel, err := h.svc.Get(r.Context(), rec.AccountID)
	if err != nil {
		h.logger.Errorw("load selection failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	orgs, err := h.dir.ListOrganizations(r.Context())
	if err != nil {
		h.logger.Errorw("list organizations failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}

	effectiveOrg := h.dir.DefaultOrganizationID()
	if sel.OrganizationID != nil {
		effectiveOrg = *sel.OrganizationID
	}
	teams, err := h.dir.ListTeams(r.Context(), effectiveOrg)
	if err != nil {
		h.logger.Errorw("list teams failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}

	respond.JSON(w, r, map[string]any{
		"organizations":          orgs,
		"organizationId":         effectiveOrg,
		"selectedOrganizationId": sel.OrganizationID,
		"teams":                  teams,
		"selectedTeamId":         sel.TeamID,
		"needsSelection":         sel.OrganizationID == nil,
	})
}

// UpdateRequest is the selection payload.
type UpdateRequest struct {
	OrganizationID string `json:"organizationId"`
	TeamID         string `json:"teamId"`
}

// Update POST /preferences — validates that the organization exists and,
// when a team is given, that it belongs to that organization.
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
	if req.OrganizationID == "" {
		respond.Error(w, r, respond.ErrInvalidRequest("organizationId is required"))
		return
	}
	org, err := h.dir.GetOrganization(r.Context(), req.OrganizationID)
	if err != nil {
		h.logger.Errorw("load organization failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	if org == nil {
		respond.Error(w, r, respond.ErrInvalidRequest("unknown organization"))
		return
	}
	if req.TeamID != "" {
		team, err := h.dir.GetTeam(r.Context(), req.TeamID)
		if err != nil {
			h.logger.Errorw("load team failed", "err", err)
			respond.Error(w, r, respond.ErrInternal())
			return
		}
		if team == nil || team.OrganizationID != req.OrganizationID {
			respond.Error(w, r, respond.ErrInvalidRequest("team does not belong to that organization"))
			return
		}
	}
	if err := h.svc.Set(r.Context(), rec.AccountID, req.OrganizationID, req.TeamID); err != nil {
		h.logger.Errorw("persist selection failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	respond.JSON(w, r, map[string]any{"success": true})
}
