package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"room-chat/internal/models"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-metrics"
)

var (
	ErrNotConnected = errors.New("session not connected")
)

var (
	MetricSessionDialCount      = []string{"chat", "session", "dial", "count"}
	MetricSessionDialErrorCount = []string{"chat", "session", "dial", "error", "count"}
	MetricSessionStateCount     = []string{"chat", "session", "state", "count"}
	MetricSessionSendDropCount  = []string{"chat", "session", "send", "dropped", "count"}
)

// Handler receives the raw payload of an inbound event
type Handler func(data json.RawMessage)

// Session is a logical chat session over an unreliable transport.
// It reconnects on its own, falls back to periodic polling once retries are
// exhausted, and only sends while connected.
//
// All transitions happen under mu. Timers and transport callbacks carry the
// generation they were started in and are discarded once it is stale.
type Session struct {
	transport Transport
	opts      Options
	logger    *slog.Logger
	sink      metrics.MetricSink

	mu               sync.Mutex
	state            State
	retryCount       int
	fallbackAttempts int
	lastError        string
	usingFallback    bool
	gen              uint64
	conn             Conn
	dialing          bool
	dialCancel       context.CancelFunc
	retryTimer       *time.Timer
	fallbackStop     chan struct{}
	backoff          *backoff.ExponentialBackOff
	pending          []StateChange

	handlersMu sync.RWMutex
	handlers   map[string][]Handler
	observers  []func(StateChange)

	notifyMu sync.Mutex
}

func NewSession(transport Transport, opts Options) *Session {
	opts = opts.normalized()
	return &Session{
		transport: transport,
		opts:      opts,
		logger:    opts.Logger,
		sink:      opts.MetricSink,
		state:     StateIdle,
		backoff:   opts.newBackoff(),
		handlers:  make(map[string][]Handler),
	}
}

// On registers a handler for an inbound event. Handlers of one connection
// run one at a time, in arrival order.
func (s *Session) On(event string, h Handler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

// OnStateChange registers an observer of state transitions.
// Observers may call back into the Session.
func (s *Session) OnStateChange(fn func(StateChange)) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.observers = append(s.observers, fn)
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:            s.state,
		RetryCount:       s.retryCount,
		FallbackAttempts: s.fallbackAttempts,
		LastError:        s.lastError,
		UsingFallback:    s.usingFallback,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect starts establishing the session. It never blocks on the network.
// Calling it on an active session is a no-op.
func (s *Session) Connect() {
	s.mu.Lock()
	switch s.state {
	case StateIdle, StateFailed:
	default:
		s.mu.Unlock()
		return
	}

	s.retryCount = 0
	s.fallbackAttempts = 0
	s.backoff.Reset()
	s.transition(StateConnecting)
	s.dialLocked()
	s.mu.Unlock()

	s.notify()
}

// Disconnect ends the session from any state. Timers are stopped and the
// transport is closed before it returns, even with a dial in flight.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.gen++
	s.stopRetryTimerLocked()
	s.stopFallbackLocked()
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	s.dialing = false

	conn := s.conn
	s.conn = nil
	s.retryCount = 0
	s.fallbackAttempts = 0
	s.usingFallback = false
	s.backoff.Reset()
	s.transition(StateIdle)
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			s.logger.Debug("Error closing connection", "error", err)
		}
	}
	s.notify()
}

// Send emits an event to the server. Outside the connected state the event
// is dropped with a warning and ErrNotConnected is returned.
func (s *Session) Send(event string, payload any) error {
	frame, err := models.EncodeEvent(event, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	conn, state := s.conn, s.state
	s.mu.Unlock()

	if state != StateConnected || conn == nil {
		s.sink.IncrCounterWithLabels(MetricSessionSendDropCount, 1, []metrics.Label{{Name: "event", Value: event}})
		s.logger.Warn("Cannot send message - socket not connected", "event", event, "state", state)
		return ErrNotConnected
	}

	if err := conn.WriteFrame(frame); err != nil {
		return fmt.Errorf("send %s: %w", event, err)
	}
	return nil
}

// transition records a state change for observers. Callers hold mu.
func (s *Session) transition(to State) {
	if s.state == to {
		return
	}
	change := StateChange{From: s.state, To: to}
	s.state = to
	s.pending = append(s.pending, change)

	s.sink.IncrCounterWithLabels(MetricSessionStateCount, 1, []metrics.Label{{Name: "state", Value: to.String()}})
	s.logger.Info("Session state changed", "from", change.From, "to", change.To, "retryCount", s.retryCount)
}

// notify delivers pending state changes in order. Only one goroutine
// delivers at a time; a reentrant call from an observer leaves its changes
// to the delivery loop already running.
func (s *Session) notify() {
	for {
		if !s.notifyMu.TryLock() {
			return
		}
		for {
			s.mu.Lock()
			if len(s.pending) == 0 {
				s.mu.Unlock()
				break
			}
			change := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()

			s.handlersMu.RLock()
			observers := append([]func(StateChange){}, s.observers...)
			s.handlersMu.RUnlock()
			for _, fn := range observers {
				fn(change)
			}
		}
		s.notifyMu.Unlock()

		s.mu.Lock()
		empty := len(s.pending) == 0
		s.mu.Unlock()
		if empty {
			return
		}
	}
}

// dialLocked starts one asynchronous connection attempt
func (s *Session) dialLocked() {
	if s.dialing {
		return
	}
	s.dialing = true
	gen := s.gen

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.DialTimeout)
	s.dialCancel = cancel
	s.sink.IncrCounter(MetricSessionDialCount, 1)

	go func() {
		conn, err := s.transport.Dial(ctx)
		cancel()
		s.onDialResult(gen, conn, err)
	}()
}

func (s *Session) onDialResult(gen uint64, conn Conn, err error) {
	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	s.dialing = false
	s.dialCancel = nil

	if err != nil {
		s.onConnectErrorLocked(err)
	} else {
		s.onConnectedLocked(conn)
	}
	s.mu.Unlock()

	s.notify()
}

func (s *Session) onConnectedLocked(conn Conn) {
	s.conn = conn
	s.retryCount = 0
	s.fallbackAttempts = 0
	s.lastError = ""
	s.backoff.Reset()
	s.stopRetryTimerLocked()
	s.stopFallbackLocked()
	s.usingFallback = false
	s.transition(StateConnected)

	go s.readLoop(conn)
}

func (s *Session) onConnectErrorLocked(err error) {
	s.retryCount++
	s.sink.IncrCounter(MetricSessionDialErrorCount, 1)
	s.logger.Warn("Connection error", "error", err, "retryCount", s.retryCount, "state", s.state)

	if s.usingFallback && s.fallbackStop == nil {
		// Fallback attempts are exhausted and the terminal error stays
		return
	}
	s.lastError = err.Error()

	switch {
	case s.fallbackStop != nil:
		// The fallback timer issues the next attempt
	case s.opts.FallbackEnabled && s.retryCount >= s.opts.ConnectRetries:
		s.startFallbackLocked()
	case s.retryCount >= s.opts.ReconnectionAttempts:
		s.transition(StateFailed)
	default:
		s.scheduleRetryLocked()
	}
}

func (s *Session) scheduleRetryLocked() {
	s.stopRetryTimerLocked()
	delay := s.opts.clampDelay(s.backoff.NextBackOff())
	gen := s.gen

	s.logger.Debug("Scheduling reconnection", "delay", delay, "retryCount", s.retryCount)
	s.retryTimer = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.gen || s.retryTimer == nil {
			return
		}
		s.retryTimer = nil
		s.dialLocked()
	})
}

func (s *Session) stopRetryTimerLocked() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
}

// startFallbackLocked enters fallback polling. At most one fallback timer
// runs per session.
func (s *Session) startFallbackLocked() {
	if !s.opts.FallbackEnabled || s.fallbackStop != nil {
		return
	}
	s.stopRetryTimerLocked()

	stop := make(chan struct{})
	s.fallbackStop = stop
	s.fallbackAttempts = 0
	s.usingFallback = true
	s.lastError = FallbackActiveText
	s.transition(StateFallbackPolling)

	go s.fallbackLoop(s.gen, stop)
}

func (s *Session) stopFallbackLocked() {
	if s.fallbackStop != nil {
		close(s.fallbackStop)
		s.fallbackStop = nil
	}
}

func (s *Session) fallbackLoop(gen uint64, stop chan struct{}) {
	ticker := time.NewTicker(s.opts.FallbackInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if !s.onFallbackTick(gen, stop) {
				return
			}
		}
	}
}

// onFallbackTick reports whether the fallback timer should keep running
func (s *Session) onFallbackTick(gen uint64, stop chan struct{}) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.fallbackStop != stop {
		return false
	}

	if s.fallbackAttempts >= s.opts.FallbackMaxRetries {
		s.lastError = FallbackFailedText
		s.stopFallbackLocked()
		s.logger.Error("Fallback retries exhausted", "attempts", s.fallbackAttempts)
		return false
	}

	if s.dialing {
		return true
	}
	s.fallbackAttempts++
	s.logger.Info("Attempting to reconnect from fallback", "attempt", s.fallbackAttempts, "max", s.opts.FallbackMaxRetries)
	s.dialLocked()
	return true
}

// readLoop is the serialized inbound event loop of one connection
func (s *Session) readLoop(conn Conn) {
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			s.onConnectionLost(conn, err)
			return
		}

		env, err := models.DecodeEnvelope(frame)
		if err != nil {
			s.logger.Debug("Dropping malformed frame", "error", err)
			continue
		}
		s.dispatch(env)
	}
}

func (s *Session) dispatch(env models.Envelope) {
	s.handlersMu.RLock()
	handlers := s.handlers[env.Event]
	s.handlersMu.RUnlock()

	for _, h := range handlers {
		s.runHandler(env, h)
	}
}

// runHandler contains a panicking handler so the read loop survives it
func (s *Session) runHandler(env models.Envelope, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Event handler panicked", "event", env.Event, "panic", r)
		}
	}()
	h(env.Data)
}

// onConnectionLost handles a drop the session did not ask for
func (s *Session) onConnectionLost(conn Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		// Closed locally or already replaced
		s.mu.Unlock()
		return
	}
	s.conn = nil
	s.lastError = err.Error()
	s.logger.Warn("Connection lost", "error", err)
	s.transition(StateReconnecting)

	if s.opts.FallbackEnabled && s.fallbackStop == nil {
		s.startFallbackLocked()
	} else {
		s.scheduleRetryLocked()
	}
	s.mu.Unlock()

	conn.Close()
	s.notify()
}
