package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/pauljmillar/survey-sub001/internal/auth"
)

// HandleWebSocket upgrades an authenticated request and streams points events
// to it until the connection closes.
func HandleWebSocket(hub *Hub, allowedOrigins []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: allowedOrigins,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}

		client := NewClient(hub, conn, auth.PanelistID(ctx), auth.IsAdmin(ctx))
		client.Run(ctx)
	}
}
