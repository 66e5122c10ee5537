package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"room-chat/internal/models"

	"github.com/gin-gonic/gin"
)

// RoomStats is the part of the hub the HTTP surface reads
type RoomStats interface {
	ConnectedCount() int
	Snapshot() []models.Participant
	ErrorStats() map[string]int
}

// MirrorReader reads the roster copy kept in an external store
type MirrorReader interface {
	GetOnlineParticipants(ctx context.Context) ([]models.Participant, error)
}

const mirrorReadTimeout = 2 * time.Second

type HealthHandler struct {
	room    RoomStats
	mirror  MirrorReader
	version string
	now     func() time.Time
}

// NewHealthHandler serves health and info. mirror is optional.
func NewHealthHandler(room RoomStats, mirror MirrorReader, version string) *HealthHandler {
	return &HealthHandler{room: room, mirror: mirror, version: version, now: time.Now}
}

// Health reports liveness and the current roster
func (h *HealthHandler) Health(c *gin.Context) {
	participants := h.room.Snapshot()
	c.JSON(http.StatusOK, models.HealthResponse{
		Status:         "ok",
		Timestamp:      h.now().UTC(),
		ConnectedCount: h.room.ConnectedCount(),
		Participants:   participants,
		MirroredCount:  h.mirroredCount(c.Request.Context()),
		Errors:         h.room.ErrorStats(),
	})
}

// mirroredCount is nil when there is no mirror or it cannot be read.
// Health stays "ok" either way; the hub does not depend on the mirror.
func (h *HealthHandler) mirroredCount(ctx context.Context) *int {
	if h.mirror == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, mirrorReadTimeout)
	defer cancel()

	mirrored, err := h.mirror.GetOnlineParticipants(ctx)
	if err != nil {
		slog.Warn("Failed to read presence mirror", "error", err)
		return nil
	}
	n := len(mirrored)
	return &n
}

// Info describes the service and its endpoints
func (h *HealthHandler) Info(c *gin.Context) {
	c.JSON(http.StatusOK, models.InfoResponse{
		Message: "Servidor de chat en tiempo real",
		Version: h.version,
		Endpoints: map[string]string{
			"websocket": "/ws",
			"health":    "/health",
			"metrics":   "/metrics",
		},
		ConnectedCount: h.room.ConnectedCount(),
	})
}
