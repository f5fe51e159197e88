package handler

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/auth"
	"github.com/pauljmillar/survey-sub001/internal/model"
	"github.com/pauljmillar/survey-sub001/internal/points"
	"github.com/pauljmillar/survey-sub001/internal/store"
	"github.com/pauljmillar/survey-sub001/internal/websocket"
)

type ContestHandler struct {
	contests     *store.ContestStore
	points       *points.Service
	hub          *websocket.Hub
	defaultLimit int
	logger       *slog.Logger
}

func NewContestHandler(cs *store.ContestStore, svc *points.Service, hub *websocket.Hub, defaultLimit int, logger *slog.Logger) *ContestHandler {
	return &ContestHandler{contests: cs, points: svc, hub: hub, defaultLimit: defaultLimit, logger: logger}
}

func (h *ContestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title       string     `json:"title"`
		Description string     `json:"description"`
		PrizePoints int64      `json:"prize_points"`
		StartsAt    *time.Time `json:"starts_at"`
		EndsAt      *time.Time `json:"ends_at"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required", "title is required")
		return
	}
	if req.PrizePoints < 0 {
		writeError(w, http.StatusBadRequest, "invalid_points", "prize_points must be >= 0")
		return
	}
	if req.StartsAt != nil && req.EndsAt != nil && !req.EndsAt.After(*req.StartsAt) {
		writeError(w, http.StatusBadRequest, "invalid_schedule", "ends_at must be after starts_at")
		return
	}

	c, err := h.contests.Create(r.Context(), req.Title, req.Description, req.PrizePoints, req.StartsAt, req.EndsAt)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage("contest", "created", c.ID, nil))
	}
	writeJSON(w, http.StatusCreated, c)
}

// List returns contests filtered by ?status. Panelists never see drafts.
func (h *ContestHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.ContestStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.ContestActive, model.ContestEnded:
	case model.ContestDraft:
		if !auth.IsAdmin(r.Context()) {
			writeJSON(w, http.StatusOK, []model.Contest{})
			return
		}
	default:
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be draft, active or ended")
		return
	}

	contests, err := h.contests.List(r.Context(), status)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if !auth.IsAdmin(r.Context()) {
		visible := contests[:0]
		for _, c := range contests {
			if c.Status != model.ContestDraft {
				visible = append(visible, c)
			}
		}
		contests = visible
	}
	writeJSON(w, http.StatusOK, orEmpty(contests))
}

func (h *ContestHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	c, err := h.contests.GetByID(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if c == nil || (c.Status == model.ContestDraft && !auth.IsAdmin(r.Context())) {
		writeError(w, http.StatusNotFound, "contest_not_found", "contest not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *ContestHandler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.ContestActive)
}

func (h *ContestHandler) End(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, model.ContestEnded)
}

func (h *ContestHandler) transition(w http.ResponseWriter, r *http.Request, to model.ContestStatus) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	c, err := h.points.TransitionContest(r.Context(), id, to)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if h.hub != nil {
		h.hub.Broadcast(websocket.NewMessage("contest", string(c.Status), c.ID, nil))
	}
	writeJSON(w, http.StatusOK, c)
}

// Join enrols the caller in an active contest.
func (h *ContestHandler) Join(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	participant, err := h.points.JoinContest(r.Context(), id, auth.PanelistID(r.Context()))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, participant)
}

func (h *ContestHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	limit, ok := queryInt(r, "limit", h.defaultLimit)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return
	}

	board, err := h.points.Leaderboard(r.Context(), id, limit)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(board))
}

// AwardPrize pays the contest prize to one participant.
func (h *ContestHandler) AwardPrize(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var req struct {
		PanelistID int64 `json:"panelist_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.PanelistID <= 0 {
		writeError(w, http.StatusBadRequest, "panelist_id_required", "panelist_id is required")
		return
	}

	res, err := h.points.AwardPrize(r.Context(), id, req.PanelistID, auth.UserRef(r.Context()))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
