package websocket

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"room-chat/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Time allowed to hand a request to the hub
	hubHandoffTimeout = 5 * time.Second

	// Time allowed for a client's pumps to exit on shutdown
	shutdownWait = 2 * time.Second
)

// Client is one live transport connection. Its id is the connection
// identity used by the presence registry.
type Client struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string

	// Connection state management
	ctx        context.Context
	cancel     context.CancelFunc
	closed     int32 // atomic flag to track if client is closed
	sendClosed bool  // guarded by sendMu
	sendMu     sync.Mutex

	// Set when the server closes the connection on purpose
	closeReason DisconnectReason

	// Goroutine coordination
	wg sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	ctx, cancel := context.WithCancel(context.Background())

	client := &Client{
		id:     uuid.New().String(),
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, hub.config.sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
	}
	if conn != nil {
		client.remoteAddr = conn.RemoteAddr().String()
	}
	return client
}

func (c *Client) GetID() string {
	return c.id
}

// isClosed returns true if the client is closed
func (c *Client) isClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// close marks the client as closed and cancels the context
func (c *Client) close() {
	if atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		c.cancel()
		slog.Debug("Client marked as closed", "clientID", c.id)
	}
}

// closeWithReason closes the client and records why, so the read pump
// reports it on unregistration
func (c *Client) closeWithReason(reason DisconnectReason) {
	c.sendMu.Lock()
	if c.closeReason == "" {
		c.closeReason = reason
	}
	c.sendMu.Unlock()
	c.close()
}

func (c *Client) serverCloseReason() DisconnectReason {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	return c.closeReason
}

// closeSendChannel safely closes the send channel
func (c *Client) closeSendChannel() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.sendClosed {
		c.sendClosed = true
		close(c.send)
		slog.Debug("Send channel closed", "clientID", c.id)
	}
}

// enqueue hands a frame to the write pump without blocking
func (c *Client) enqueue(frame []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.sendClosed || c.isClosed() {
		return ErrClientDisconnected
	}

	select {
	case c.send <- frame:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// waitForGoroutines waits for all client goroutines to finish with timeout
func (c *Client) waitForGoroutines(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Debug("All goroutines finished", "clientID", c.id)
	case <-time.After(timeout):
		slog.Warn("Timeout waiting for goroutines to finish", "clientID", c.id, "timeout", timeout)
	}
}

// readPump is the serialized inbound event loop of one connection
func (c *Client) readPump() {
	reason := ReasonTransportClose
	defer func() {
		if r := recover(); r != nil {
			c.hub.errors.HandlePanic(c, "readPump", r)
			reason = ReasonServerError
		}
		if r := c.serverCloseReason(); r != "" {
			reason = r
		}
		c.close()
		c.hub.requestUnregister(c, reason)

		if err := c.conn.Close(); err != nil {
			slog.Debug("Error closing connection", "clientID", c.id, "error", err)
		}
		c.wg.Done()
	}()

	c.conn.SetReadLimit(c.hub.config.maxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		if c.isClosed() {
			return websocket.ErrCloseSent
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	slog.Debug("ReadPump started", "clientID", c.id)

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			reason = classifyReadError(err)
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("WebSocket error", "clientID", c.id, "error", err)
			} else {
				slog.Debug("WebSocket connection closed", "clientID", c.id, "error", err)
			}
			return
		}

		env, err := models.DecodeEnvelope(frame)
		if err != nil {
			// Malformed frames are dropped without an error surface
			slog.Debug("Dropping malformed frame", "clientID", c.id, "error", err)
			continue
		}

		if !c.hub.submit(&ClientMessage{Client: c, Envelope: env}) {
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		// Unblocks readPump, which owns unregistration
		c.conn.Close()
		c.wg.Done()
		slog.Debug("WritePump finished", "clientID", c.id)
	}()

	slog.Debug("WritePump started", "clientID", c.id)

	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Send channel was closed, send close message and exit
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			// One envelope per frame
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				slog.Debug("Error writing message", "clientID", c.id, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				slog.Debug("Error sending ping", "clientID", c.id, "error", err)
				return
			}

		case <-c.ctx.Done():
			slog.Debug("WritePump context cancelled", "clientID", c.id)
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

// submit hands an inbound event to the hub loop
func (h *Hub) submit(msg *ClientMessage) bool {
	select {
	case h.handleMessage <- msg:
		return true
	case <-h.ctx.Done():
		return false
	case <-msg.Client.ctx.Done():
		return false
	}
}

func (h *Hub) requestUnregister(c *Client, reason DisconnectReason) {
	select {
	case h.unregister <- clientDisconnect{client: c, reason: reason}:
		slog.Debug("Client unregister request sent", "clientID", c.id)
	case <-h.ctx.Done():
	case <-time.After(hubHandoffTimeout):
		slog.Warn("Timeout sending unregister request", "clientID", c.id)
	}
}

// ServeWS upgrades the request and attaches the new connection to the hub
func ServeWS(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(hub, conn)
	slog.Info("New WebSocket connection established", "clientID", client.id, "remoteAddr", client.remoteAddr)

	// Send register request to hub with timeout
	select {
	case hub.register <- client:
	case <-hub.ctx.Done():
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ErrHubStopped.Error()))
		conn.Close()
		return
	case <-time.After(hubHandoffTimeout):
		slog.Error("Timeout sending registration request", "clientID", client.id)
		conn.Close()
		return
	}

	// Start goroutines for handling WebSocket communication
	client.wg.Add(2)
	go client.writePump()
	go client.readPump()
}
