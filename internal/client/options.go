package client

import (
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-metrics"
)

const (
	defaultReconnectionAttempts = 5
	defaultReconnectionDelay    = time.Second
	defaultReconnectionDelayMax = 5 * time.Second
	defaultConnectRetries       = 3
	defaultFallbackInterval     = 3 * time.Second
	defaultFallbackMaxRetries   = 5
	defaultDialTimeout          = 20 * time.Second
)

// Options tunes reconnection and fallback behavior of a Session
type Options struct {
	// Connect errors tolerated before giving up when fallback is disabled
	ReconnectionAttempts int
	ReconnectionDelay    time.Duration
	ReconnectionDelayMax time.Duration

	// Connect errors after which fallback polling takes over
	ConnectRetries int

	FallbackEnabled    bool
	FallbackInterval   time.Duration
	FallbackMaxRetries int

	DialTimeout time.Duration

	Logger     *slog.Logger
	MetricSink metrics.MetricSink
}

func DefaultOptions() Options {
	return Options{
		ReconnectionAttempts: defaultReconnectionAttempts,
		ReconnectionDelay:    defaultReconnectionDelay,
		ReconnectionDelayMax: defaultReconnectionDelayMax,
		ConnectRetries:       defaultConnectRetries,
		FallbackEnabled:      true,
		FallbackInterval:     defaultFallbackInterval,
		FallbackMaxRetries:   defaultFallbackMaxRetries,
		DialTimeout:          defaultDialTimeout,
	}
}

// normalized replaces unusable values with defaults
func (o Options) normalized() Options {
	if o.ReconnectionAttempts <= 0 {
		o.ReconnectionAttempts = defaultReconnectionAttempts
	}
	if o.ReconnectionDelay <= 0 {
		o.ReconnectionDelay = defaultReconnectionDelay
	}
	if o.ReconnectionDelayMax < o.ReconnectionDelay {
		o.ReconnectionDelayMax = o.ReconnectionDelay
	}
	if o.ConnectRetries <= 0 {
		o.ConnectRetries = defaultConnectRetries
	}
	if o.FallbackInterval <= 0 {
		o.FallbackInterval = defaultFallbackInterval
	}
	if o.FallbackMaxRetries <= 0 {
		o.FallbackMaxRetries = defaultFallbackMaxRetries
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = defaultDialTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MetricSink == nil {
		o.MetricSink = &metrics.BlackholeSink{}
	}
	return o
}

func (o Options) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.ReconnectionDelay
	b.MaxInterval = o.ReconnectionDelayMax
	b.Multiplier = 2
	b.RandomizationFactor = 0.5
	b.Reset()
	return b
}

// clampDelay keeps a randomized backoff inside the configured bounds
func (o Options) clampDelay(d time.Duration) time.Duration {
	return min(max(d, o.ReconnectionDelay), o.ReconnectionDelayMax)
}
