package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"
)

var errRefused = errors.New("connection refused")

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fastOptions keeps every timer in the millisecond range
func fastOptions() Options {
	return Options{
		ReconnectionAttempts: 5,
		ReconnectionDelay:    time.Millisecond,
		ReconnectionDelayMax: 2 * time.Millisecond,
		ConnectRetries:       3,
		FallbackEnabled:      true,
		FallbackInterval:     5 * time.Millisecond,
		FallbackMaxRetries:   3,
		DialTimeout:          time.Second,
		Logger:               discardLogger(),
	}
}

// fakeTransport answers dials from a script indexed by attempt number
type fakeTransport struct {
	mu     sync.Mutex
	dials  int
	script func(n int) (Conn, error)

	// When set, dials wait for it to close
	block chan struct{}
	// Keep blocking even once the dial context is cancelled
	ignoreCtx bool
}

func failingTransport() *fakeTransport {
	return &fakeTransport{script: func(int) (Conn, error) { return nil, errRefused }}
}

func (f *fakeTransport) Dial(ctx context.Context) (Conn, error) {
	f.mu.Lock()
	f.dials++
	n := f.dials
	script, block, ignoreCtx := f.script, f.block, f.ignoreCtx
	f.mu.Unlock()

	if block != nil {
		if ignoreCtx {
			<-block
		} else {
			select {
			case <-block:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return script(n)
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// fakeConn is an in-memory connection driven by the test
type fakeConn struct {
	inbound   chan []byte
	drops     chan error
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan []byte, 16),
		drops:   make(chan error, 1),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) WriteFrame(frame []byte) error {
	if c.isClosed() {
		return net.ErrClosed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, frame)
	return nil
}

func (c *fakeConn) ReadFrame() ([]byte, error) {
	select {
	case frame := <-c.inbound:
		return frame, nil
	case err := <-c.drops:
		return nil, err
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

// drop simulates the server going away
func (c *fakeConn) drop(err error) {
	c.drops <- err
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.written))
	copy(out, c.written)
	return out
}

// changeRecorder collects state transitions from a session
type changeRecorder struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *changeRecorder) record(c StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *changeRecorder) all() []StateChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StateChange, len(r.changes))
	copy(out, r.changes)
	return out
}
