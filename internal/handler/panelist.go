package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pauljmillar/survey-sub001/internal/auth"
	"github.com/pauljmillar/survey-sub001/internal/store"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// pageParams reads ?limit and ?offset. A zero limit means the default page
// size.
func pageParams(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	limit, ok = queryInt(r, "limit", defaultPageSize)
	if !ok || limit > maxPageSize {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 0 and 500")
		return 0, 0, false
	}
	if limit == 0 {
		limit = defaultPageSize
	}
	offset, ok = queryInt(r, "offset", 0)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_offset", "offset must be a non-negative integer")
		return 0, 0, false
	}
	return limit, offset, true
}

type PanelistHandler struct {
	panelists   *store.PanelistStore
	ledger      *store.LedgerStore
	surveys     *store.SurveyStore
	redemptions *store.RedemptionStore
	logger      *slog.Logger
}

func NewPanelistHandler(ps *store.PanelistStore, ls *store.LedgerStore, ss *store.SurveyStore, rs *store.RedemptionStore, logger *slog.Logger) *PanelistHandler {
	return &PanelistHandler{panelists: ps, ledger: ls, surveys: ss, redemptions: rs, logger: logger}
}

// Me returns the caller's own panelist record.
func (h *PanelistHandler) Me(w http.ResponseWriter, r *http.Request) {
	p, err := h.panelists.GetByID(r.Context(), auth.PanelistID(r.Context()))
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "panelist_not_found", "panelist not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PanelistHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	panelists, err := h.panelists.List(r.Context(), limit, offset)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(panelists))
}

func (h *PanelistHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserRef     string `json:"user_ref"`
		DisplayName string `json:"display_name"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	req.UserRef = strings.TrimSpace(req.UserRef)
	if req.UserRef == "" {
		writeError(w, http.StatusBadRequest, "user_ref_required", "user_ref is required")
		return
	}
	req.DisplayName = strings.TrimSpace(req.DisplayName)
	if req.DisplayName == "" {
		req.DisplayName = req.UserRef
	}

	p, err := h.panelists.Create(r.Context(), req.UserRef, req.DisplayName)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	h.logger.Info("panelist created", "panelist_id", p.ID, "user_ref", p.UserRef)
	writeJSON(w, http.StatusCreated, p)
}

func (h *PanelistHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := panelistParam(w, r)
	if !ok {
		return
	}
	p, err := h.panelists.GetByID(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "panelist_not_found", "panelist not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PanelistHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	existing, err := h.panelists.GetByID(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "panelist_not_found", "panelist not found")
		return
	}

	var req struct {
		DisplayName *string `json:"display_name"`
		Active      *bool   `json:"active"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	name, active := existing.DisplayName, existing.Active
	if req.DisplayName != nil {
		name = strings.TrimSpace(*req.DisplayName)
		if name == "" {
			writeError(w, http.StatusBadRequest, "display_name_required", "display_name cannot be empty")
			return
		}
	}
	if req.Active != nil {
		active = *req.Active
	}

	p, err := h.panelists.UpdateProfile(r.Context(), id, name, active)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *PanelistHandler) Balance(w http.ResponseWriter, r *http.Request) {
	id, ok := panelistParam(w, r)
	if !ok {
		return
	}
	b, err := h.panelists.GetBalance(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if b == nil {
		writeError(w, http.StatusNotFound, "panelist_not_found", "panelist not found")
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Ledger exports a page of the panelist's ledger, newest first.
func (h *PanelistHandler) Ledger(w http.ResponseWriter, r *http.Request) {
	id, ok := panelistParam(w, r)
	if !ok {
		return
	}
	limit, offset, ok := pageParams(w, r)
	if !ok {
		return
	}

	entries, err := h.ledger.ListByPanelist(r.Context(), id, limit, offset)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(entries))
}

func (h *PanelistHandler) Completions(w http.ResponseWriter, r *http.Request) {
	id, ok := panelistParam(w, r)
	if !ok {
		return
	}
	completions, err := h.surveys.ListCompletionsByPanelist(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(completions))
}

func (h *PanelistHandler) Redemptions(w http.ResponseWriter, r *http.Request) {
	id, ok := panelistParam(w, r)
	if !ok {
		return
	}
	redemptions, err := h.redemptions.ListByPanelist(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(redemptions))
}
