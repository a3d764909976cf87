package websocket

import (
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/civicpoints/internal/auth"
)

// HandleWebSocket upgrades authenticated requests and runs them as Hub
// clients. It must sit behind the auth middleware.
func HandleWebSocket(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := auth.FromContext(r.Context())
		if !ok {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // devices connect from native clients without an Origin
		})
		if err != nil {
			hub.logger.Warn("websocket accept failed", "error", err)
			return
		}

		hub.logger.Debug("websocket connected", "member_id", ac.MemberID)
		client := NewClient(hub, conn, ac.MemberID, ac.IsAdmin())
		client.Run(r.Context())
	}
}
