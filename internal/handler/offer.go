package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pauljmillar/survey-sub001/internal/auth"
	"github.com/pauljmillar/survey-sub001/internal/model"
	"github.com/pauljmillar/survey-sub001/internal/points"
	"github.com/pauljmillar/survey-sub001/internal/store"
	"github.com/pauljmillar/survey-sub001/internal/websocket"
)

type OfferHandler struct {
	offers *store.OfferStore
	points *points.Service
	hub    *websocket.Hub
	logger *slog.Logger
}

func NewOfferHandler(offers *store.OfferStore, svc *points.Service, hub *websocket.Hub, logger *slog.Logger) *OfferHandler {
	return &OfferHandler{offers: offers, points: svc, hub: hub, logger: logger}
}

func (h *OfferHandler) broadcast(msg websocket.Message) {
	if h.hub != nil {
		h.hub.Broadcast(msg)
	}
}

type offerRequest struct {
	MerchantName string `json:"merchant_name"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	PointsCost   int64  `json:"points_cost"`
	Active       bool   `json:"active"`
}

func (req *offerRequest) validate(w http.ResponseWriter) bool {
	req.MerchantName = strings.TrimSpace(req.MerchantName)
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title_required", "title is required")
		return false
	}
	if req.MerchantName == "" {
		writeError(w, http.StatusBadRequest, "merchant_required", "merchant_name is required")
		return false
	}
	if req.PointsCost <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_points", "points_cost must be > 0")
		return false
	}
	return true
}

func (h *OfferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req offerRequest
	if !decodeJSON(w, r, &req) || !req.validate(w) {
		return
	}

	offer, err := h.offers.Create(r.Context(), req.MerchantName, req.Title, req.Description, req.PointsCost, req.Active)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	h.broadcast(websocket.NewMessage("offer", "created", offer.ID, nil))
	writeJSON(w, http.StatusCreated, offer)
}

// List returns active offers. Admins can pass ?all=true to include inactive
// ones.
func (h *OfferHandler) List(w http.ResponseWriter, r *http.Request) {
	var (
		offers []model.Offer
		err    error
	)
	if r.URL.Query().Get("all") == "true" && auth.IsAdmin(r.Context()) {
		offers, err = h.offers.List(r.Context())
	} else {
		offers, err = h.offers.ListActive(r.Context())
	}
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(offers))
}

func (h *OfferHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var req offerRequest
	if !decodeJSON(w, r, &req) || !req.validate(w) {
		return
	}

	offer, err := h.offers.Update(r.Context(), id, req.MerchantName, req.Title, req.Description, req.PointsCost, req.Active)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if offer == nil {
		writeError(w, http.StatusNotFound, "offer_not_found", "offer not found")
		return
	}
	h.broadcast(websocket.NewMessage("offer", "updated", id, nil))
	writeJSON(w, http.StatusOK, offer)
}

func (h *OfferHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	existing, err := h.offers.GetByID(r.Context(), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "offer_not_found", "offer not found")
		return
	}

	if err := h.offers.Delete(r.Context(), id); err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	h.broadcast(websocket.NewMessage("offer", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Redeem spends the caller's points on an offer.
func (h *OfferHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	res, err := h.points.Redeem(r.Context(), auth.PanelistID(r.Context()), id)
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}
