package handler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pauljmillar/survey-sub001/internal/auth"
	"github.com/pauljmillar/survey-sub001/internal/model"
	"github.com/pauljmillar/survey-sub001/internal/points"
	"github.com/pauljmillar/survey-sub001/internal/store"
	"github.com/pauljmillar/survey-sub001/internal/websocket"
)

type SurveyHandler struct {
	surveys *store.SurveyStore
	points  *points.Service
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewSurveyHandler(ss *store.SurveyStore, svc *points.Service, hub *websocket.Hub, logger *slog.Logger) *SurveyHandler {
	return &SurveyHandler{surveys: ss, points: svc, hub: hub, logger: logger}
}

func (h *SurveyHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type surveyRequest struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	PointsReward int64              `json:"points_reward"`
	Status       model.SurveyStatus `json:"status"`
}

func (req *surveyRequest) validate(w http.ResponseWriter) bool {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required", "title is required")
		return false
	}
	if req.PointsReward <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_points", "points_reward must be > 0")
		return false
	}
	return true
}

func (h *SurveyHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req surveyRequest
	if !decodeJSON(w, r, &req) || !req.validate(w) {
		return
	}
	if req.Status == "" {
		req.Status = model.SurveyDraft
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be draft, active or inactive")
		return
	}

	survey, err := h.surveys.Create(r.Context(), req.Title, req.Description, req.PointsReward, req.Status)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	h.broadcast(websocket.NewMessage("survey", "created", survey.ID, nil))
	writeJSON(w, http.StatusCreated, survey)
}

// List returns surveys filtered by ?status. Only admins may see surveys that
// are not active.
func (h *SurveyHandler) List(w http.ResponseWriter, r *http.Request) {
	status := model.SurveyStatus(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be draft, active or inactive")
		return
	}
	if !auth.IsAdmin(r.Context()) {
		status = model.SurveyActive
	}

	surveys, err := h.surveys.List(r.Context(), status)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(surveys))
}

func (h *SurveyHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}
	survey, err := h.surveys.GetByID(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if survey == nil || (survey.Status != model.SurveyActive && !auth.IsAdmin(r.Context())) {
		writeError(w, http.StatusNotFound, "survey_not_found", "survey not found")
		return
	}
	writeJSON(w, http.StatusOK, survey)
}

func (h *SurveyHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var req surveyRequest
	if !decodeJSON(w, r, &req) || !req.validate(w) {
		return
	}

	survey, err := h.surveys.Update(r.Context(), id, req.Title, req.Description, req.PointsReward)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if survey == nil {
		writeError(w, http.StatusNotFound, "survey_not_found", "survey not found")
		return
	}
	h.broadcast(websocket.NewMessage("survey", "updated", id, nil))
	writeJSON(w, http.StatusOK, survey)
}

func (h *SurveyHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var req struct {
		Status model.SurveyStatus `json:"status"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_status", "status must be draft, active or inactive")
		return
	}

	survey, err := h.surveys.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if survey == nil {
		writeError(w, http.StatusNotFound, "survey_not_found", "survey not found")
		return
	}
	h.broadcast(websocket.NewMessage("survey", "updated", id, map[string]any{"status": survey.Status}))
	writeJSON(w, http.StatusOK, survey)
}

func (h *SurveyHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	existing, err := h.surveys.GetByID(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "survey_not_found", "survey not found")
		return
	}

	if err := h.surveys.Delete(r.Context(), id); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	h.broadcast(websocket.NewMessage("survey", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Complete records the caller's completion of a survey and awards its points.
func (h *SurveyHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var req struct {
		Responses json.RawMessage `json:"responses"`
	}
	if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
		return
	}
	responses, ok := parseResponses(req.Responses)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_responses", "responses must be a JSON array")
		return
	}

	res, err := h.points.CompleteSurvey(r.Context(), auth.PanelistID(r.Context()), id, responses)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// parseResponses accepts a JSON array of answers. Absent and null mean no
// answers were sent.
func parseResponses(raw json.RawMessage) (json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, true
	}
	if trimmed[0] != '[' || !json.Valid(trimmed) {
		return nil, false
	}
	return trimmed, true
}
