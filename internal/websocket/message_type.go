package websocket

import (
	"errors"
	"net"

	"room-chat/internal/models"

	"github.com/gorilla/websocket"
)

// DisconnectReason describes why a connection went away.
// It is informational only and never changes hub behavior.
type DisconnectReason string

const (
	ReasonClientClose    DisconnectReason = "client namespace disconnect"
	ReasonTransportClose DisconnectReason = "transport close"
	ReasonTransportError DisconnectReason = "transport error"
	ReasonPingTimeout    DisconnectReason = "ping timeout"
	ReasonSlowConsumer   DisconnectReason = "send buffer full"
	ReasonServerError    DisconnectReason = "server error"
	ReasonServerShutdown DisconnectReason = "server shutting down"
)

// String returns the string representation of the DisconnectReason
func (r DisconnectReason) String() string {
	return string(r)
}

// classifyReadError maps a read failure to a disconnect reason
func classifyReadError(err error) DisconnectReason {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ReasonClientClose
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		return ReasonTransportClose
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonPingTimeout
	}
	return ReasonTransportError
}

// eventHandler handles one inbound named event for a connection
type eventHandler func(c *Client, env models.Envelope)

// eventHandlers builds the dispatch table of client -> server events
func (h *Hub) eventHandlers() map[string]eventHandler {
	return map[string]eventHandler{
		models.EventSetUsername:    h.onSetUsername,
		models.EventMessage:        h.onMessage,
		models.EventPrivateMessage: h.onPrivateMessage,
		models.EventGetUserList:    h.onGetUserList,
	}
}

func (h *Hub) onSetUsername(c *Client, env models.Envelope) {
	var name string
	if err := env.Decode(&name); err != nil {
		// Anything that is not a JSON string is treated as an empty name
		name = ""
	}
	h.SetName(c, name)
}

func (h *Hub) onMessage(c *Client, env models.Envelope) {
	var req models.MessageRequest
	if err := env.Decode(&req); err != nil {
		h.logger.Debug("Dropping malformed message", "clientID", c.id, "error", err)
		return
	}
	h.Broadcast(c, req)
}

func (h *Hub) onPrivateMessage(c *Client, env models.Envelope) {
	var req models.PrivateMessageRequest
	if err := env.Decode(&req); err != nil {
		h.logger.Debug("Dropping malformed private message", "clientID", c.id, "error", err)
		return
	}
	h.DirectMessage(c, req.TargetID, req.Message)
}

func (h *Hub) onGetUserList(c *Client, _ models.Envelope) {
	h.ListParticipants(c)
}
