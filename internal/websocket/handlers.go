package websocket

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

// NewUpgrader builds the upgrader for the chat endpoint.
// "*" in allowedOrigins accepts any origin. Requests without an Origin
// header come from non-browser clients and are always accepted.
func NewUpgrader(allowedOrigins []string) websocket.Upgrader {
	origins := lo.Map(allowedOrigins, func(o string, _ int) string {
		return strings.TrimRight(strings.TrimSpace(o), "/")
	})
	allowAll := lo.Contains(origins, "*")

	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			return lo.Contains(origins, strings.TrimRight(origin, "/"))
		},
	}
}
