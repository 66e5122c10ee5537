package websocket

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"room-chat/internal/models"
	"room-chat/internal/repository"

	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestHub builds a hub whose methods are driven directly by the test,
// without the Run loop or real transports
func newTestHub(opts ...Option) *Hub {
	opts = append([]Option{withClock(func() time.Time { return testNow })}, opts...)
	return NewHub(repository.NewPresenceRepository(), discardLogger(), opts...)
}

// connect registers a transport-less client with the hub
func connect(h *Hub) *Client {
	c := NewClient(h, nil)
	h.registerClient(c)
	return c
}

// drain returns every envelope queued for the client so far
func drain(t *testing.T, c *Client) []models.Envelope {
	t.Helper()
	var out []models.Envelope
	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				return out
			}
			env, err := models.DecodeEnvelope(frame)
			require.NoError(t, err)
			out = append(out, env)
		default:
			return out
		}
	}
}

func events(envs []models.Envelope) []string {
	names := make([]string, len(envs))
	for i, env := range envs {
		names[i] = env.Event
	}
	return names
}

func decodeMessage(t *testing.T, env models.Envelope) models.Message {
	t.Helper()
	require.Equal(t, models.EventMessage, env.Event)
	var msg models.Message
	require.NoError(t, env.Decode(&msg))
	return msg
}

func decodeParticipant(t *testing.T, env models.Envelope) models.Participant {
	t.Helper()
	var p models.Participant
	require.NoError(t, env.Decode(&p))
	return p
}

func decodeRoster(t *testing.T, env models.Envelope) []models.Participant {
	t.Helper()
	require.Equal(t, models.EventUserList, env.Event)
	var roster []models.Participant
	require.NoError(t, env.Decode(&roster))
	return roster
}

type mirrorCall struct {
	joined      bool
	participant models.Participant
}

// recordingMirror records presence updates and can be told to fail
type recordingMirror struct {
	mu    sync.Mutex
	calls []mirrorCall
	err   error
}

func (m *recordingMirror) ParticipantJoined(_ context.Context, p models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mirrorCall{joined: true, participant: p})
	return m.err
}

func (m *recordingMirror) ParticipantLeft(_ context.Context, p models.Participant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, mirrorCall{joined: false, participant: p})
	return m.err
}

func (m *recordingMirror) recorded() []mirrorCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]mirrorCall, len(m.calls))
	copy(out, m.calls)
	return out
}
