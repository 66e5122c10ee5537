package services

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"room-chat/internal/config"
	"room-chat/internal/database"
	"room-chat/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testRedisURL = "redis://localhost:6379/0"

// newTestService skips the test when no local Redis answers
func newTestService(t *testing.T) *RedisService {
	t.Helper()
	cfg := config.RedisConfig{
		URL:         testRedisURL,
		PoolSize:    4,
		DialTimeout: time.Second,
	}
	client, err := database.NewRedisConnection(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Skip("Redis not available, skipping test")
	}

	svc := NewRedisService(client, "test-"+uuid.NewString())
	t.Cleanup(func() {
		ctx := context.Background()
		_ = svc.ResetPresence(ctx)
		_ = client.Close()
	})
	return svc
}

func TestRedisService_Mirrors_Presence(t *testing.T) {
	req := require.New(t)
	svc := newTestService(t)
	ctx := context.Background()

	sub := svc.client.GetClient().Subscribe(ctx, svc.PresenceChannel())
	defer sub.Close()
	_, err := sub.Receive(ctx)
	req.NoError(err)

	ana := models.Participant{ID: "c1", Name: "Ana"}
	luis := models.Participant{ID: "c2", Name: "Luis"}

	req.NoError(svc.ParticipantJoined(ctx, ana))
	req.NoError(svc.ParticipantJoined(ctx, luis))

	online, err := svc.GetOnlineParticipants(ctx)
	req.NoError(err)
	req.ElementsMatch([]models.Participant{ana, luis}, online)

	// A rename overwrites the entry
	req.NoError(svc.ParticipantJoined(ctx, models.Participant{ID: "c1", Name: "Ana María"}))
	req.NoError(svc.ParticipantLeft(ctx, luis))

	online, err = svc.GetOnlineParticipants(ctx)
	req.NoError(err)
	req.Equal([]models.Participant{{ID: "c1", Name: "Ana María"}}, online)

	var kinds []string
	for range 4 {
		msg, err := sub.ReceiveMessage(ctx)
		req.NoError(err)
		var ev PresenceEvent
		req.NoError(json.Unmarshal([]byte(msg.Payload), &ev))
		kinds = append(kinds, ev.Type)
	}
	req.Equal([]string{PresenceJoined, PresenceJoined, PresenceJoined, PresenceLeft}, kinds)
}

func TestRedisService_ResetPresence(t *testing.T) {
	req := require.New(t)
	svc := newTestService(t)
	ctx := context.Background()

	req.NoError(svc.ParticipantJoined(ctx, models.Participant{ID: "c1", Name: "Ana"}))
	req.NoError(svc.ResetPresence(ctx))

	online, err := svc.GetOnlineParticipants(ctx)
	req.NoError(err)
	req.Empty(online)
}

func TestRedisService_CheckRateLimit(t *testing.T) {
	req := require.New(t)
	svc := newTestService(t)
	ctx := context.Background()
	key := svc.RateLimitKey("ws", "127.0.0.1")

	for i := range 3 {
		allowed, err := svc.CheckRateLimit(ctx, key, 3, time.Minute)
		req.NoError(err)
		req.True(allowed, "request %d should pass", i+1)
	}

	allowed, err := svc.CheckRateLimit(ctx, key, 3, time.Minute)
	req.NoError(err)
	req.False(allowed)

	// Other keys have their own window
	allowed, err = svc.CheckRateLimit(ctx, svc.RateLimitKey("ws", "10.0.0.1"), 3, time.Minute)
	req.NoError(err)
	req.True(allowed)
}

func TestRedisService_Keys(t *testing.T) {
	req := require.New(t)
	svc := NewRedisService(nil, "")

	req.Equal("chat:presence", svc.PresenceChannel())
	req.Equal("chat:participants", svc.participantsKey())
	req.Equal("chat:rate_limit:ws:1.2.3.4", svc.RateLimitKey("ws", "1.2.3.4"))
}

func TestNewRedisConnection_Rejects_Bad_URL(t *testing.T) {
	_, err := database.NewRedisConnection(config.RedisConfig{URL: "http://nope"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid Redis URL")
}
