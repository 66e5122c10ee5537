package websocket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"room-chat/internal/models"
	"room-chat/internal/repository"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

var (
	ErrClientDisconnected = fmt.Errorf("client disconnected")
	ErrSendBufferFull     = fmt.Errorf("send buffer full")
	ErrHubStopped         = fmt.Errorf("hub stopped")
)

type ClientMessage struct {
	Client   *Client
	Envelope models.Envelope
}

type clientDisconnect struct {
	client *Client
	reason DisconnectReason
}

// Hub owns the live connections and the presence registry.
// All mutations run on the Run loop, so each name-set or disconnect and the
// fan-out that follows it are one serialized step.
type Hub struct {
	// Live connections by connection ID, named or not
	clients map[string]*Client

	// Named participants
	presence repository.PresenceRepository

	// Inbound event dispatch table
	handlers map[string]eventHandler

	// Register requests from the clients
	register chan *Client

	// Unregister requests from clients
	unregister chan clientDisconnect

	// Handle messages from clients
	handleMessage chan *ClientMessage

	mirror   *mirrorQueue
	metrics  *ConnectionMetrics
	errors   *ErrorHandler
	upgrader websocket.Upgrader
	config   hubConfig

	// Context for graceful shutdown
	ctx    context.Context
	cancel context.CancelFunc

	// Guards clients for readers outside the Run loop
	mu sync.RWMutex

	logger *slog.Logger
}

func NewHub(presence repository.PresenceRepository, logger *slog.Logger, opts ...Option) *Hub {
	cfg := defaultHubConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		clients:       make(map[string]*Client),
		presence:      presence,
		register:      make(chan *Client),
		unregister:    make(chan clientDisconnect),
		handleMessage: make(chan *ClientMessage),
		metrics:       NewConnectionMetrics(cfg.metricSink),
		upgrader:      NewUpgrader(cfg.allowedOrigins),
		config:        cfg,
		ctx:           ctx,
		cancel:        cancel,
		logger:        logger,
	}
	hub.handlers = hub.eventHandlers()
	hub.errors = NewErrorHandler(hub)
	if cfg.mirror != nil {
		hub.mirror = newMirrorQueue(cfg.mirror, cfg.mirrorQueueSize, cfg.mirrorTimeout, hub.onMirrorError, logger)
	}

	return hub
}

func (h *Hub) Run() {
	if h.mirror != nil {
		go h.mirror.run()
	}

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case d := <-h.unregister:
			h.unregisterClient(d.client, d.reason)

		case clientMsg := <-h.handleMessage:
			h.dispatch(clientMsg.Client, clientMsg.Envelope)

		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub shutting down")
			h.closeAll()
			h.mirror.stop(shutdownWait)
			return
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()
}

// ErrorStats counts contained errors by type: handler panics, slow
// consumers and presence mirror failures
func (h *Hub) ErrorStats() map[string]int {
	return lo.MapKeys(h.errors.errorStats(), func(_ int, t ErrorType) string {
		return string(t)
	})
}

// ConnectedCount returns the number of named participants
func (h *Hub) ConnectedCount() int {
	return h.presence.Count()
}

// Snapshot returns the current roster in join order
func (h *Hub) Snapshot() []models.Participant {
	return h.presence.Snapshot()
}

// LiveConnections returns the number of open connections, named or not
func (h *Hub) LiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// SetName registers the participant of a connection and announces it.
// An empty name is rejected privately and leaves the registry unchanged.
// Calling it again for the same connection overwrites the name and repeats
// the full announcement.
func (h *Hub) SetName(c *Client, rawName string) (models.Participant, bool) {
	name, ok := models.SanitizeName(rawName)
	if !ok {
		h.metrics.RecordNameRejected()
		h.emit(c, models.EventMessage,
			models.NewSystemMessage(models.MessageKindSystem, models.InvalidNameText(), h.config.now()))
		return models.Participant{}, false
	}

	participant := models.Participant{ID: c.id, Name: name}
	_, renamed := h.presence.Register(participant)

	now := h.config.now()
	h.emit(c, models.EventMessage, models.NewSystemMessage(models.MessageKindSystem, models.WelcomeText(name), now))
	h.emitAll(models.EventMessage, models.NewSystemMessage(models.MessageKindJoin, models.JoinedText(name), now), c)
	h.emitAll(models.EventUserJoined, participant, nil)
	h.emitAll(models.EventUserList, h.presence.Snapshot(), nil)

	h.mirror.push(mirrorOp{joined: true, participant: participant})
	h.metrics.RecordParticipants(h.presence.Count())

	h.logger.Info("User joined", "clientID", c.id, "name", name, "renamed", renamed)
	return participant, true
}

// Broadcast fans a sanitized user message out to every live connection,
// the sender included.
func (h *Hub) Broadcast(c *Client, req models.MessageRequest) {
	text, ok := models.SanitizeText(req.Text)
	if !ok {
		return
	}

	msg := models.NewUserMessage(c.id, h.senderName(c, req.SenderName), text, h.config.now())
	h.emitAll(models.EventMessage, msg, nil)

	h.logger.Debug("Message broadcast", "clientID", c.id, "senderName", msg.SenderName, "length", len(text))
}

// DirectMessage delivers a message to a single live connection.
// Unknown targets are dropped without telling the sender.
func (h *Hub) DirectMessage(c *Client, targetID string, req models.MessageRequest) {
	text, ok := models.SanitizeText(req.Text)
	if !ok {
		return
	}

	h.mu.RLock()
	target, live := h.clients[targetID]
	h.mu.RUnlock()
	if !live {
		h.metrics.RecordDirectMiss()
		h.logger.Debug("Private message target not connected", "clientID", c.id, "targetID", targetID)
		return
	}

	from := h.senderName(c, req.SenderName)
	h.emit(target, models.EventMessage, models.NewUserMessage(c.id, from, models.PrivateText(from, text), h.config.now()))
	h.logger.Debug("Private message delivered", "clientID", c.id, "targetID", targetID)
}

// ListParticipants sends the current roster privately to the requester
func (h *Hub) ListParticipants(c *Client) []models.Participant {
	roster := h.presence.Snapshot()
	h.emit(c, models.EventUserList, roster)
	return roster
}

// OnDisconnect removes the participant of a closing connection and tells
// everyone left. Connections that never chose a name are ignored.
func (h *Hub) OnDisconnect(c *Client, reason DisconnectReason) {
	participant, ok := h.presence.Unregister(c.id)
	if !ok {
		h.logger.Debug("Unnamed client disconnected", "clientID", c.id, "reason", reason)
		return
	}

	now := h.config.now()
	h.emitAll(models.EventMessage, models.NewSystemMessage(models.MessageKindLeave, models.LeftText(participant.Name), now), c)
	h.emitAll(models.EventUserLeft, participant, c)
	h.emitAll(models.EventUserList, h.presence.Snapshot(), c)

	h.mirror.push(mirrorOp{joined: false, participant: participant})
	h.metrics.RecordParticipants(h.presence.Count())

	h.logger.Info("User left", "clientID", c.id, "name", participant.Name, "reason", reason)
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()

	h.metrics.RecordConnectionOpened()
	h.logger.Info("Client registered", "clientID", client.id, "remoteAddr", client.remoteAddr)
}

func (h *Hub) unregisterClient(client *Client, reason DisconnectReason) {
	h.mu.Lock()
	current, ok := h.clients[client.id]
	if ok && current == client {
		delete(h.clients, client.id)
	}
	h.mu.Unlock()

	if !ok || current != client {
		return
	}

	h.OnDisconnect(client, reason)
	client.closeSendChannel()

	h.metrics.RecordConnectionClosed(reason)
	h.logger.Info("Client unregistered", "clientID", client.id, "reason", reason)
}

// dispatch routes one inbound event through the handler table
func (h *Hub) dispatch(c *Client, env models.Envelope) {
	handler, ok := h.handlers[env.Event]
	if !ok {
		h.logger.Debug("Ignoring unknown event", "clientID", c.id, "event", env.Event)
		return
	}

	defer h.errors.RecoverHandler(c, env.Event)
	handler(c, env)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	clients := lo.Values(h.clients)
	h.mu.Unlock()

	for _, client := range clients {
		h.unregisterClient(client, ReasonServerShutdown)
		client.close()
	}
	for _, client := range clients {
		client.waitForGoroutines(shutdownWait)
	}
}

func (h *Hub) onMirrorError(operation string, err error) {
	h.metrics.RecordMirrorError(operation)
	h.errors.HandleMirrorError(operation, err)
}

// senderName prefers the registered name over whatever the client claims
func (h *Hub) senderName(c *Client, claimed string) string {
	if p, ok := h.presence.Get(c.id); ok {
		return p.Name
	}
	if name, ok := models.SanitizeName(claimed); ok {
		return name
	}
	return models.AnonymousName
}

// emit queues one event for a single connection
func (h *Hub) emit(c *Client, event string, payload any) {
	frame, ok := h.encode(event, payload)
	if !ok {
		return
	}
	if h.deliver(c, frame) {
		h.metrics.RecordFanout(event, 1, 0, 0)
	} else {
		h.metrics.RecordFanout(event, 0, 1, 0)
	}
}

// emitAll queues one event for every live connection except the given one.
// Fan-out is best effort: a failing recipient never holds up the others.
func (h *Hub) emitAll(event string, payload any, except *Client) int {
	frame, ok := h.encode(event, payload)
	if !ok {
		return 0
	}

	start := time.Now()
	h.mu.RLock()
	targets := lo.Filter(lo.Values(h.clients), func(c *Client, _ int) bool { return c != except })
	h.mu.RUnlock()

	delivered, dropped := 0, 0
	for _, target := range targets {
		if h.deliver(target, frame) {
			delivered++
		} else {
			dropped++
		}
	}

	h.metrics.RecordFanout(event, delivered, dropped, time.Since(start))
	return delivered
}

// encode builds the frame for an outbound event. A message that breaks its
// invariants is never put on the wire.
func (h *Hub) encode(event string, payload any) ([]byte, bool) {
	if msg, ok := payload.(models.Message); ok {
		if err := msg.Validate(); err != nil {
			h.logger.Error("Refusing to send invalid message", "event", event, "error", err)
			return nil, false
		}
	}
	frame, err := models.EncodeEvent(event, payload)
	if err != nil {
		h.logger.Error("Failed to encode event", "event", event, "error", err)
		return nil, false
	}
	return frame, true
}

func (h *Hub) deliver(c *Client, frame []byte) bool {
	err := c.enqueue(frame)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrSendBufferFull) {
		h.logger.Warn("Send buffer full, closing client", "clientID", c.id)
		h.errors.HandleSlowConsumer(c)
	}
	return false
}
