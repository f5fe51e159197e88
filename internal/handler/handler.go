// Package handler exposes the points service over JSON HTTP.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/pauljmillar/survey-sub001/internal/apperr"
	"github.com/pauljmillar/survey-sub001/internal/auth"
)

// maxBodyBytes bounds every JSON request body.
const maxBodyBytes = 64 << 10

// maxMetadataBytes bounds the encoded metadata of a manual adjustment.
const maxMetadataBytes = 4 << 10

func parseIDParam(r *http.Request) (int64, error) {
	return parseNamedID(r, "id")
}

func parseNamedID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid " + name)
	}
	return id, nil
}

// queryInt reads a non-negative integer query parameter, returning def when
// it is absent.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", "invalid JSON")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]any{"error": code, "message": msg})
}

// writeAppError maps a service or store error onto the HTTP error envelope.
// Anything outside the apperr taxonomy is logged and hidden behind a 500.
func writeAppError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ib *apperr.InsufficientBalanceError
	if errors.As(err, &ib) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":     "insufficient_points",
			"message":   "not enough points",
			"required":  ib.Required,
			"available": ib.Available,
		})
		return
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind == apperr.KindInternal {
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	writeError(w, statusFor(ae.Kind), ae.Code, ae.Message)
}

func statusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindPermission:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict, apperr.KindState:
		return http.StatusConflict
	case apperr.KindInsufficientBalance:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// panelistParam reads the {id} path value and checks that the caller may act
// for that panelist.
func panelistParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid id")
		return 0, false
	}
	if !auth.CanActFor(r.Context(), id) {
		writeError(w, http.StatusForbidden, "forbidden", "not allowed to access this panelist")
		return 0, false
	}
	return id, true
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
