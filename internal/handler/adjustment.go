package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pauljmillar/survey-sub001/internal/auth"
	"github.com/pauljmillar/survey-sub001/internal/model"
	"github.com/pauljmillar/survey-sub001/internal/points"
)

// adjustmentTypes are the transaction types an operator may issue by hand.
// Survey, redemption and prize entries only come from their own flows.
var adjustmentTypes = map[model.TransactionType]bool{
	model.TxManualAward:      true,
	model.TxSystemAdjustment: true,
	model.TxBonus:            true,
	model.TxAward:            true,
	model.TxReferralBonus:    true,
	model.TxWeeklyBonus:      true,
	model.TxSignupBonus:      true,
	model.TxAppDownloadBonus: true,
	model.TxScanBonus:        true,
	model.TxReviewBonus:      true,
}

type AdjustmentHandler struct {
	points *points.Service
	logger *slog.Logger
}

func NewAdjustmentHandler(svc *points.Service, logger *slog.Logger) *AdjustmentHandler {
	return &AdjustmentHandler{points: svc, logger: logger}
}

// Create issues a manual ledger entry for a panelist on behalf of the calling
// operator.
func (h *AdjustmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return
	}

	var req struct {
		Points          int64                 `json:"points"`
		TransactionType model.TransactionType `json:"transaction_type"`
		Title           string                `json:"title"`
		Description     *string               `json:"description"`
		Metadata        json.RawMessage       `json:"metadata"`
		EffectiveDate   string                `json:"effective_date"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.TransactionType == "" {
		req.TransactionType = model.TxManualAward
	}
	if !adjustmentTypes[req.TransactionType] {
		writeError(w, http.StatusBadRequest, "invalid_transaction_type", "transaction_type cannot be issued manually")
		return
	}

	meta, ok := parseMetadata(w, req.Metadata)
	if !ok {
		return
	}

	var effective time.Time
	if req.EffectiveDate != "" {
		effective, err = time.Parse(time.DateOnly, req.EffectiveDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_effective_date", "effective_date must be YYYY-MM-DD")
			return
		}
	}

	actor := auth.UserRef(r.Context())
	res, err := h.points.IssueTransaction(r.Context(), model.Transaction{
		PanelistID:    id,
		Points:        req.Points,
		Type:          req.TransactionType,
		Title:         strings.TrimSpace(req.Title),
		Description:   req.Description,
		Metadata:      meta,
		EffectiveDate: effective,
		AwardedBy:     &actor,
	})
	if err != nil {
		writeAppError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// parseMetadata accepts a JSON object no larger than maxMetadataBytes.
func parseMetadata(w http.ResponseWriter, raw json.RawMessage) (model.Metadata, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return model.Metadata{}, true
	}
	if len(raw) > maxMetadataBytes {
		writeError(w, http.StatusBadRequest, "metadata_too_large", "metadata must be at most 4 KiB")
		return nil, false
	}
	meta, err := model.ParseMetadata(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_metadata", "metadata must be a JSON object")
		return nil, false
	}
	return meta, true
}
