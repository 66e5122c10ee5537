package websocket

import (
	"context"
	"log/slog"
	"time"

	"room-chat/internal/models"
)

// PresenceMirror receives roster changes so other processes can observe
// who is online. The hub's own registry stays the source of truth.
type PresenceMirror interface {
	ParticipantJoined(ctx context.Context, p models.Participant) error
	ParticipantLeft(ctx context.Context, p models.Participant) error
}

type mirrorOp struct {
	joined      bool
	participant models.Participant
}

func (op mirrorOp) name() string {
	if op.joined {
		return "joined"
	}
	return "left"
}

// mirrorQueue applies mirror updates in order on its own goroutine
type mirrorQueue struct {
	mirror  PresenceMirror
	ops     chan mirrorOp
	timeout time.Duration
	onError func(operation string, err error)
	logger  *slog.Logger
	done    chan struct{}
}

func newMirrorQueue(m PresenceMirror, size int, timeout time.Duration, onError func(string, error), logger *slog.Logger) *mirrorQueue {
	return &mirrorQueue{
		mirror:  m,
		ops:     make(chan mirrorOp, size),
		timeout: timeout,
		onError: onError,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// push never blocks the caller. A full queue drops the update.
func (q *mirrorQueue) push(op mirrorOp) {
	if q == nil {
		return
	}
	select {
	case q.ops <- op:
	default:
		q.logger.Warn("Presence mirror queue full, dropping update",
			LabelOperation.L(op.name()), "participantID", op.participant.ID)
	}
}

// run applies updates until stop is called
func (q *mirrorQueue) run() {
	defer close(q.done)
	for op := range q.ops {
		q.apply(op)
	}
}

// stop flushes pending updates. It must be called from the hub loop once no
// more updates will be pushed.
func (q *mirrorQueue) stop(wait time.Duration) {
	if q == nil {
		return
	}
	close(q.ops)
	select {
	case <-q.done:
	case <-time.After(wait):
		q.logger.Warn("Timeout flushing presence mirror", "pending", len(q.ops))
	}
}

func (q *mirrorQueue) apply(op mirrorOp) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	var err error
	if op.joined {
		err = q.mirror.ParticipantJoined(ctx, op.participant)
	} else {
		err = q.mirror.ParticipantLeft(ctx, op.participant)
	}
	if err != nil && q.onError != nil {
		q.onError(op.name(), err)
	}
}
