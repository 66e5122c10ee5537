package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"room-chat/internal/database"
	"room-chat/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/samber/lo"
)

const (
	PresenceJoined = "joined"
	PresenceLeft   = "left"
)

// PresenceEvent is published on the presence channel for every roster change
type PresenceEvent struct {
	Type        string             `json:"type"`
	Participant models.Participant `json:"participant"`
	Timestamp   int64              `json:"timestamp"`
}

// RedisService mirrors the room roster into Redis and backs the
// connection rate limiter. The hub stays the source of truth.
type RedisService struct {
	client *database.RedisClient
	prefix string
	now    func() time.Time
}

func NewRedisService(client *database.RedisClient, keyPrefix string) *RedisService {
	if keyPrefix == "" {
		keyPrefix = "chat"
	}
	return &RedisService{
		client: client,
		prefix: keyPrefix,
		now:    time.Now,
	}
}

func (r *RedisService) participantsKey() string {
	return r.prefix + ":participants"
}

// PresenceChannel is the pub/sub channel carrying PresenceEvent payloads
func (r *RedisService) PresenceChannel() string {
	return r.prefix + ":presence"
}

// RateLimitKey scopes a rate limit bucket under the service prefix
func (r *RedisService) RateLimitKey(parts ...string) string {
	key := r.prefix + ":rate_limit"
	for _, p := range parts {
		key += ":" + p
	}
	return key
}

// =============================================================================
// Presence Mirror
// =============================================================================

func (r *RedisService) ParticipantJoined(ctx context.Context, p models.Participant) error {
	payload, err := r.presenceEvent(PresenceJoined, p)
	if err != nil {
		return err
	}

	pipe := r.client.GetClient().Pipeline()

	// Record or rename the participant
	pipe.HSet(ctx, r.participantsKey(), p.ID, p.Name)

	// Announce the change
	pipe.Publish(ctx, r.PresenceChannel(), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to mirror participant join", "participantID", p.ID, "error", err)
		return err
	}

	slog.Debug("Participant mirrored", "participantID", p.ID, "name", p.Name)
	return nil
}

func (r *RedisService) ParticipantLeft(ctx context.Context, p models.Participant) error {
	payload, err := r.presenceEvent(PresenceLeft, p)
	if err != nil {
		return err
	}

	pipe := r.client.GetClient().Pipeline()
	pipe.HDel(ctx, r.participantsKey(), p.ID)
	pipe.Publish(ctx, r.PresenceChannel(), payload)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to mirror participant leave", "participantID", p.ID, "error", err)
		return err
	}

	slog.Debug("Participant removed from mirror", "participantID", p.ID)
	return nil
}

// GetOnlineParticipants reads the mirrored roster. Order is not defined.
func (r *RedisService) GetOnlineParticipants(ctx context.Context) ([]models.Participant, error) {
	entries, err := r.client.GetClient().HGetAll(ctx, r.participantsKey()).Result()
	if err != nil {
		return nil, err
	}
	return lo.MapToSlice(entries, func(id, name string) models.Participant {
		return models.Participant{ID: id, Name: name}
	}), nil
}

// ResetPresence drops whatever a previous process left behind.
// Connection ids never survive a restart.
func (r *RedisService) ResetPresence(ctx context.Context) error {
	return r.client.GetClient().Del(ctx, r.participantsKey()).Err()
}

func (r *RedisService) presenceEvent(kind string, p models.Participant) ([]byte, error) {
	data, err := json.Marshal(PresenceEvent{
		Type:        kind,
		Participant: p,
		Timestamp:   r.now().Unix(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal presence event: %w", err)
	}
	return data, nil
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit records one request against key and reports whether the
// sliding window still had room for it
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	windowStart := now.Add(-window).UnixMilli()

	pipe := r.client.GetClient().Pipeline()

	// Remove old entries
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))

	// Count current entries
	count := pipe.ZCard(ctx, key)

	// Add current request
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixMilli()), Member: now.UnixNano()})

	// Set expiration
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	return count.Val() < int64(limit), nil
}
