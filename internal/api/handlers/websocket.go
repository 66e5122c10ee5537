package handlers

import (
	"log/slog"

	"room-chat/internal/websocket"

	"github.com/gin-gonic/gin"
)

type WSHandler struct {
	hub *websocket.Hub
}

func NewWSHandler(hub *websocket.Hub) *WSHandler {
	return &WSHandler{hub: hub}
}

// HandleWebSocket upgrades the request and hands the connection to the hub.
// A connection joins the room anonymously and becomes a participant once it
// sends setUsername.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	slog.Debug("New WebSocket connection request", "remoteAddr", c.ClientIP())
	websocket.ServeWS(h.hub, c.Writer, c.Request)
}
