package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/pauljmillar/survey-sub001/internal/auth"
	"github.com/pauljmillar/survey-sub001/internal/store"
)

// RequireAuth verifies the bearer token and populates AuthContext. The
// caller's panelist record is created on first sight of a new user_ref.
// Browsers cannot set headers on websocket upgrades, so those may pass the
// token as the access_token query parameter instead.
func RequireAuth(verifier auth.Verifier, panelists *store.PanelistStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			id, err := verifier.Verify(token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid bearer token")
				return
			}

			name := id.DisplayName
			if name == "" {
				name = id.UserRef
			}
			p, err := panelists.GetOrCreate(r.Context(), id.UserRef, name)
			if err != nil {
				writeError(w, http.StatusInternalServerError, "internal", "failed to resolve panelist")
				return
			}

			ac := auth.AuthContext{
				UserRef:      id.UserRef,
				PanelistID:   p.ID,
				Role:         id.Role,
				Capabilities: id.Capabilities,
			}
			ctx := auth.WithAuth(r.Context(), ac)
			recordCaller(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireCapability rejects callers whose token lacks capability.
func RequireCapability(capability string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.HasCapability(r.Context(), capability) {
				writeError(w, http.StatusForbidden, "forbidden", "missing capability "+capability)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin checks that the caller holds the admin capability.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireCapability(auth.CapabilityAdmin)(next)
}

func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": code, "message": msg})
}
