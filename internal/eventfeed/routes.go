package eventfeed

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/strefethen/heos-hub-go/internal/api"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RegisterRoutes registers the WebSocket event feed and its status endpoint.
func RegisterRoutes(router chi.Router, feed *Feed) {
	router.HandleFunc("/ws/events", websocketHandler(feed))
	router.Method(http.MethodGet, "/v1/events/status", api.Handler(getStatus(feed)))
}

func websocketHandler(feed *Feed) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			feed.logger.Printf("event feed: upgrade failed: %v", err)
			return
		}
		feed.handleConn(conn)
	}
}

func getStatus(feed *Feed) api.Handler {
	return func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteResource(w, http.StatusOK, map[string]any{
			"object":  "event_feed_status",
			"clients": feed.ClientCount(),
		})
	}
}
