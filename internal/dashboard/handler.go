// Package dashboard composes the team dashboard payload from the whisper
// wall, the check-in ledger, and the directory. It owns no state of its
// own.
package dashboard

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/squadpulse/service-core/internal/checkin"
	"github.com/squadpulse/service-core/internal/directory"
	"github.com/squadpulse/service-core/internal/preference"
	"github.com/squadpulse/service-core/internal/respond"
	"github.com/squadpulse/service-core/internal/session"
	"github.com/squadpulse/service-core/internal/whisper"
)

type Handler struct {
	whispers *whisper.Service
	checkins *checkin.Service
	dir      *directory.Service
	pref     *preference.Service
	logger   *zap.SugaredLogger
}

func NewHandler(whispers *whisper.Service, checkins *checkin.Service, dir *directory.Service, pref *preference.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{whispers: whispers, checkins: checkins, dir: dir, pref: pref, logger: logger}
}

// Get GET /dashboard?teamId= — falls back to the stored selection; when no
// team is resolvable the client is told to pick one instead of getting an
// error.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rec, ok := session.FromContext(r.Context())
	if !ok {
		respond.Error(w, r, respond.ErrUnauthorized())
		return
	}
	teamID := r.URL.Query().Get("teamId")
	if teamID == "" {
		sel, err := h.pref.Get(r.Context(), rec.AccountID)
		if err != nil {
			h.logger.Errorw("load selection failed", "err", err)
			respond.Error(w, r, respond.ErrInternal())
			return
		}
		if sel.TeamID != nil {
			teamID = *sel.TeamID
		}
	}
	if teamID == "" {
		respond.JSON(w, r, map[string]any{"needsSelection": true})
		return
	}
	team, err := h.dir.GetTeam(r.Context(), teamID)
	if err != nil {
		h.logger.Errorw("load team failed", "team", teamID, "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	if team == nil {
		respond.JSON(w, r, map[string]any{"needsSelection": true})
		return
	}

	wall, err := h.whispers.Wall(r.Context(), whisper.WallQuery{
		AccountID:      rec.AccountID,
		OrganizationID: team.OrganizationID,
		TeamID:         team.ID,
	})
	if err != nil {
		h.logger.Errorw("wall query failed", "team", teamID, "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	myStats, err := h.checkins.UserStats(r.Context(), rec.AccountID)
	if err != nil {
		h.logger.Errorw("checkin stats failed", "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	teamFeed, err := h.checkins.ListTeamFeed(r.Context(), team.ID, rec.AccountID, 20)
	if err != nil {
		h.logger.Errorw("team feed failed", "team", teamID, "err", err)
		respond.Error(w, r, respond.ErrInternal())
		return
	}
	if teamFeed == nil {
		teamFeed = []checkin.Checkin{}
	}

	respond.JSON(w, r, map[string]any{
		"needsSelection": false,
		"team":           team,
		"stats":          wall.Stats,
		"participants":   wall.Participants,
		"whispers":       wall.Whispers,
		"myStats":        myStats,
		"teamFeed":       teamFeed,
	})
}
