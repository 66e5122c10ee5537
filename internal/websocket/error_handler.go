package websocket

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// ErrorType represents different categories of errors that can occur
type ErrorType string

const (
	HandlerError      ErrorType = "handler"
	SlowConsumerError ErrorType = "slow_consumer"
	MirrorError       ErrorType = "mirror"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity string

const (
	SeverityWarning  ErrorSeverity = "warning"
	SeverityError    ErrorSeverity = "error"
	SeverityCritical ErrorSeverity = "critical"
)

const defaultErrorHistorySize = 100

// ErrorEvent represents a single error occurrence
type ErrorEvent struct {
	Type       ErrorType     `json:"type"`
	Severity   ErrorSeverity `json:"severity"`
	ClientID   string        `json:"clientId,omitempty"`
	Message    string        `json:"message"`
	Error      error         `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
	StackTrace string        `json:"stackTrace,omitempty"`
}

// ErrorHandler contains failures of a single connection so they never
// take the hub down, and keeps a short history for diagnostics.
type ErrorHandler struct {
	hub *Hub

	errorCounts     map[ErrorType]int
	errorCountsLock sync.RWMutex

	// Error history (circular buffer)
	errorHistory     []ErrorEvent
	errorHistoryPos  int
	errorHistoryLock sync.RWMutex
}

func NewErrorHandler(hub *Hub) *ErrorHandler {
	return &ErrorHandler{
		hub:          hub,
		errorCounts:  make(map[ErrorType]int),
		errorHistory: make([]ErrorEvent, defaultErrorHistorySize),
	}
}

// RecoverHandler must be deferred around an event handler running on the
// hub loop. A panic disconnects the offending client and the loop carries on.
func (h *ErrorHandler) RecoverHandler(c *Client, event string) {
	r := recover()
	if r == nil {
		return
	}

	h.HandlePanic(c, "event:"+event, r)
	h.hub.unregisterClient(c, ReasonServerError)
	c.closeWithReason(ReasonServerError)
}

// HandlePanic records a recovered panic
func (h *ErrorHandler) HandlePanic(c *Client, where string, r any) {
	h.logErrorEvent(ErrorEvent{
		Type:       HandlerError,
		Severity:   SeverityCritical,
		ClientID:   c.id,
		Message:    fmt.Sprintf("panic in %s", where),
		Error:      fmt.Errorf("%v", r),
		Timestamp:  time.Now(),
		StackTrace: string(debug.Stack()),
	})
	h.hub.metrics.RecordPanic(where)
}

// HandleSlowConsumer closes a client whose send queue is full. The client is
// unregistered by its read pump once the transport is down.
func (h *ErrorHandler) HandleSlowConsumer(c *Client) {
	h.logErrorEvent(ErrorEvent{
		Type:      SlowConsumerError,
		Severity:  SeverityWarning,
		ClientID:  c.id,
		Message:   "send buffer full",
		Error:     ErrSendBufferFull,
		Timestamp: time.Now(),
	})
	c.closeWithReason(ReasonSlowConsumer)
}

// HandleMirrorError records a failed presence mirror update.
// The in-memory registry stays authoritative.
func (h *ErrorHandler) HandleMirrorError(operation string, err error) {
	h.logErrorEvent(ErrorEvent{
		Type:      MirrorError,
		Severity:  SeverityError,
		Message:   fmt.Sprintf("presence mirror operation '%s' failed", operation),
		Error:     err,
		Timestamp: time.Now(),
	})
}

func (h *ErrorHandler) logErrorEvent(event ErrorEvent) {
	h.errorCountsLock.Lock()
	h.errorCounts[event.Type]++
	h.errorCountsLock.Unlock()

	h.errorHistoryLock.Lock()
	h.errorHistory[h.errorHistoryPos] = event
	h.errorHistoryPos = (h.errorHistoryPos + 1) % len(h.errorHistory)
	h.errorHistoryLock.Unlock()

	attrs := []any{"type", event.Type, "severity", event.Severity, "error", event.Error}
	if event.ClientID != "" {
		attrs = append(attrs, "clientID", event.ClientID)
	}
	if event.StackTrace != "" {
		attrs = append(attrs, "stack", event.StackTrace)
	}

	switch event.Severity {
	case SeverityWarning:
		h.hub.logger.Warn(event.Message, attrs...)
	default:
		h.hub.logger.Error(event.Message, attrs...)
	}
}

// errorStats returns how many errors of each type occurred
func (h *ErrorHandler) errorStats() map[ErrorType]int {
	h.errorCountsLock.RLock()
	defer h.errorCountsLock.RUnlock()

	stats := make(map[ErrorType]int, len(h.errorCounts))
	for k, v := range h.errorCounts {
		stats[k] = v
	}
	return stats
}

// recentErrors returns the recent errors, oldest first
func (h *ErrorHandler) recentErrors() []ErrorEvent {
	h.errorHistoryLock.RLock()
	defer h.errorHistoryLock.RUnlock()

	size := len(h.errorHistory)
	history := make([]ErrorEvent, 0, size)
	for i := 0; i < size; i++ {
		pos := (h.errorHistoryPos + i) % size
		if !h.errorHistory[pos].Timestamp.IsZero() {
			history = append(history, h.errorHistory[pos])
		}
	}
	return history
}
