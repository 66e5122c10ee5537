package websocket

import (
	"time"

	"github.com/hashicorp/go-metrics"
)

const (
	defaultSendBufferSize  = 256
	defaultMaxFrameBytes   = 1 << 20
	defaultMirrorQueueSize = 128
	defaultMirrorTimeout   = 3 * time.Second
)

type hubConfig struct {
	sendBufferSize  int
	maxFrameBytes   int64
	allowedOrigins  []string
	metricSink      metrics.MetricSink
	mirror          PresenceMirror
	mirrorQueueSize int
	mirrorTimeout   time.Duration
	now             func() time.Time
}

func defaultHubConfig() hubConfig {
	return hubConfig{
		sendBufferSize:  defaultSendBufferSize,
		maxFrameBytes:   defaultMaxFrameBytes,
		allowedOrigins:  []string{"*"},
		metricSink:      &metrics.BlackholeSink{},
		mirrorQueueSize: defaultMirrorQueueSize,
		mirrorTimeout:   defaultMirrorTimeout,
		now:             time.Now,
	}
}

// Option customizes a Hub
type Option func(*hubConfig)

// WithSendBufferSize bounds the outbound queue of every connection.
// A connection whose queue is full is closed instead of stalling the hub.
func WithSendBufferSize(size int) Option {
	return func(c *hubConfig) {
		if size <= 0 {
			size = defaultSendBufferSize
		}
		c.sendBufferSize = size
	}
}

// WithMaxFrameBytes limits the size of a single inbound frame
func WithMaxFrameBytes(limit int64) Option {
	return func(c *hubConfig) {
		if limit <= 0 {
			limit = defaultMaxFrameBytes
		}
		c.maxFrameBytes = limit
	}
}

// WithAllowedOrigins controls which browser origins may upgrade.
// "*" allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(c *hubConfig) {
		if len(origins) > 0 {
			c.allowedOrigins = origins
		}
	}
}

// WithMetricSink allows you to chose how to collect the metrics emitted by
// the hub.
func WithMetricSink(ms metrics.MetricSink) Option {
	return func(c *hubConfig) {
		if ms == nil {
			ms = &metrics.BlackholeSink{}
		}
		c.metricSink = ms
	}
}

// WithPresenceMirror copies roster changes to an external store.
// Updates are applied asynchronously and never block the hub.
func WithPresenceMirror(m PresenceMirror) Option {
	return func(c *hubConfig) {
		c.mirror = m
	}
}

func withClock(now func() time.Time) Option {
	return func(c *hubConfig) {
		c.now = now
	}
}
