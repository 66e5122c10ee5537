package client

import (
	"encoding/json"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"room-chat/internal/models"

	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 2 * time.Millisecond
)

func TestSession_Connect_Send_And_Receive(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	transport := &fakeTransport{script: func(int) (Conn, error) { return conn, nil }}
	s := NewSession(transport, fastOptions())

	var roster atomic.Value
	s.On(models.EventUserList, func(data json.RawMessage) {
		var ps []models.Participant
		if err := json.Unmarshal(data, &ps); err == nil {
			roster.Store(ps)
		}
	})

	// When the session connects
	s.Connect()
	req.Eventually(func() bool { return s.State() == StateConnected }, waitFor, tick)

	status := s.Status()
	req.Zero(status.RetryCount)
	req.Empty(status.LastError)
	req.False(status.UsingFallback)

	// Then events go out one frame each
	req.NoError(s.Send(models.EventSetUsername, "Ana"))
	frames := conn.frames()
	req.Len(frames, 1)
	env, err := models.DecodeEnvelope(frames[0])
	req.NoError(err)
	req.Equal(models.EventSetUsername, env.Event)

	// And inbound events reach their handlers
	frame, err := models.EncodeEvent(models.EventUserList, []models.Participant{{ID: "1", Name: "Ana"}})
	req.NoError(err)
	conn.inbound <- frame
	req.Eventually(func() bool {
		ps, _ := roster.Load().([]models.Participant)
		return len(ps) == 1 && ps[0].Name == "Ana"
	}, waitFor, tick)
}

func TestSession_Send_Requires_Connection(t *testing.T) {
	req := require.New(t)
	s := NewSession(failingTransport(), fastOptions())

	err := s.Send(models.EventMessage, models.MessageRequest{Text: "hola"})
	req.ErrorIs(err, ErrNotConnected)
}

func TestSession_Always_Failing_Transport_Falls_Back_Then_Gives_Up(t *testing.T) {
	req := require.New(t)
	transport := failingTransport()
	opts := fastOptions()
	s := NewSession(transport, opts)

	var dialsAtFallback atomic.Int64
	recorder := &changeRecorder{}
	s.OnStateChange(func(c StateChange) {
		if c.To == StateFallbackPolling {
			dialsAtFallback.Store(int64(transport.dialCount()))
		}
		recorder.record(c)
	})

	s.Connect()

	// Then the terminal error shows up once fallback attempts are spent
	req.Eventually(func() bool { return s.Status().LastError == FallbackFailedText }, waitFor, tick)

	req.Equal(int64(opts.ConnectRetries), dialsAtFallback.Load())
	req.Equal(opts.ConnectRetries+opts.FallbackMaxRetries, transport.dialCount())

	// And nothing else is attempted
	time.Sleep(10 * opts.FallbackInterval)
	req.Equal(opts.ConnectRetries+opts.FallbackMaxRetries, transport.dialCount())

	status := s.Status()
	req.Equal(StateFallbackPolling, status.State)
	req.True(status.UsingFallback)
	req.Equal(opts.FallbackMaxRetries, status.FallbackAttempts)
	req.Equal(FallbackFailedText, status.LastError)

	req.Equal([]StateChange{
		{From: StateIdle, To: StateConnecting},
		{From: StateConnecting, To: StateFallbackPolling},
	}, recorder.all())
}

func TestSession_Fallback_Disabled_Fails_After_Reconnection_Attempts(t *testing.T) {
	req := require.New(t)
	transport := failingTransport()
	opts := fastOptions()
	opts.FallbackEnabled = false
	s := NewSession(transport, opts)

	s.Connect()

	req.Eventually(func() bool { return s.State() == StateFailed }, waitFor, tick)
	req.Equal(opts.ReconnectionAttempts, transport.dialCount())

	status := s.Status()
	req.Equal(opts.ReconnectionAttempts, status.RetryCount)
	req.Equal(errRefused.Error(), status.LastError)
	req.False(status.UsingFallback)

	time.Sleep(20 * time.Millisecond)
	req.Equal(opts.ReconnectionAttempts, transport.dialCount())

	// A failed session can be started again
	s.Connect()
	req.Eventually(func() bool { return transport.dialCount() > opts.ReconnectionAttempts }, waitFor, tick)
	s.Disconnect()
}

func TestSession_Recovers_Before_Fallback(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	transport := &fakeTransport{script: func(n int) (Conn, error) {
		if n < 3 {
			return nil, errRefused
		}
		return conn, nil
	}}
	s := NewSession(transport, fastOptions())

	s.Connect()

	req.Eventually(func() bool { return s.State() == StateConnected }, waitFor, tick)
	req.Equal(3, transport.dialCount())
	status := s.Status()
	req.Zero(status.RetryCount)
	req.Empty(status.LastError)
}

func TestSession_Drop_Enters_Fallback_And_Recovers(t *testing.T) {
	req := require.New(t)
	first, second := newFakeConn(), newFakeConn()
	transport := &fakeTransport{script: func(n int) (Conn, error) {
		if n == 1 {
			return first, nil
		}
		return second, nil
	}}
	s := NewSession(transport, fastOptions())
	recorder := &changeRecorder{}
	s.OnStateChange(recorder.record)

	s.Connect()
	req.Eventually(func() bool { return s.State() == StateConnected }, waitFor, tick)

	// When the server drops the connection
	first.drop(io.ErrUnexpectedEOF)

	// Then the fallback timer brings the session back
	req.Eventually(func() bool {
		return s.State() == StateConnected && transport.dialCount() == 2
	}, waitFor, tick)
	req.True(first.isClosed())
	req.False(s.Status().UsingFallback)
	req.Empty(s.Status().LastError)

	req.Equal([]StateChange{
		{From: StateIdle, To: StateConnecting},
		{From: StateConnecting, To: StateConnected},
		{From: StateConnected, To: StateReconnecting},
		{From: StateReconnecting, To: StateFallbackPolling},
		{From: StateFallbackPolling, To: StateConnected},
	}, recorder.all())

	// And the fallback timer is gone
	time.Sleep(10 * fastOptions().FallbackInterval)
	req.Equal(2, transport.dialCount())
}

func TestSession_Drop_Without_Fallback_Retries_With_Backoff(t *testing.T) {
	req := require.New(t)
	first, second := newFakeConn(), newFakeConn()
	transport := &fakeTransport{script: func(n int) (Conn, error) {
		switch n {
		case 1:
			return first, nil
		case 2:
			return nil, errRefused
		default:
			return second, nil
		}
	}}
	opts := fastOptions()
	opts.FallbackEnabled = false
	s := NewSession(transport, opts)

	s.Connect()
	req.Eventually(func() bool { return s.State() == StateConnected }, waitFor, tick)

	first.drop(io.ErrUnexpectedEOF)

	req.Eventually(func() bool {
		return s.State() == StateConnected && transport.dialCount() == 3
	}, waitFor, tick)
	req.False(s.Status().UsingFallback)
}

func TestSession_Disconnect_Stops_Fallback_Timer(t *testing.T) {
	req := require.New(t)
	transport := failingTransport()
	opts := fastOptions()
	opts.FallbackMaxRetries = 1000
	s := NewSession(transport, opts)

	s.Connect()
	req.Eventually(func() bool { return s.State() == StateFallbackPolling }, waitFor, tick)

	// When the session is disconnected
	s.Disconnect()

	// Then no timer survives it
	status := s.Status()
	req.Equal(StateIdle, status.State)
	req.Zero(status.RetryCount)
	req.False(status.UsingFallback)

	dials := transport.dialCount()
	time.Sleep(10 * opts.FallbackInterval)
	req.Equal(dials, transport.dialCount())
	req.Equal(StateIdle, s.State())
}

func TestSession_Disconnect_Discards_Dial_In_Flight(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	transport := &fakeTransport{
		script:    func(int) (Conn, error) { return conn, nil },
		block:     make(chan struct{}),
		ignoreCtx: true,
	}
	s := NewSession(transport, fastOptions())

	s.Connect()
	req.Eventually(func() bool { return transport.dialCount() == 1 }, waitFor, tick)

	s.Disconnect()
	close(transport.block)

	// The late connection is closed and the session stays idle
	req.Eventually(conn.isClosed, waitFor, tick)
	req.Equal(StateIdle, s.State())
	req.ErrorIs(s.Send(models.EventGetUserList, nil), ErrNotConnected)
}

func TestSession_Disconnect_Closes_Live_Connection(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	transport := &fakeTransport{script: func(int) (Conn, error) { return conn, nil }}
	s := NewSession(transport, fastOptions())
	recorder := &changeRecorder{}
	s.OnStateChange(recorder.record)

	s.Connect()
	req.Eventually(func() bool { return s.State() == StateConnected }, waitFor, tick)

	s.Disconnect()

	req.True(conn.isClosed())
	req.Equal(StateIdle, s.State())

	// A local disconnect is not a drop
	time.Sleep(10 * fastOptions().FallbackInterval)
	req.Equal(1, transport.dialCount())
	req.Equal(StateChange{From: StateConnected, To: StateIdle}, recorder.all()[2])
	req.Len(recorder.all(), 3)
}

func TestSession_Observer_May_Call_Back_Into_Session(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	transport := &fakeTransport{script: func(int) (Conn, error) { return conn, nil }}
	s := NewSession(transport, fastOptions())
	recorder := &changeRecorder{}

	s.OnStateChange(func(c StateChange) {
		recorder.record(c)
		_ = s.Status()
		if c.To == StateConnected {
			s.Disconnect()
		}
	})

	s.Connect()

	req.Eventually(func() bool { return len(recorder.all()) == 3 }, waitFor, tick)
	req.Equal(StateIdle, s.State())
	req.Equal([]StateChange{
		{From: StateIdle, To: StateConnecting},
		{From: StateConnecting, To: StateConnected},
		{From: StateConnected, To: StateIdle},
	}, recorder.all())
}

func TestSession_Handler_Panic_Keeps_Reading(t *testing.T) {
	req := require.New(t)
	conn := newFakeConn()
	transport := &fakeTransport{script: func(int) (Conn, error) { return conn, nil }}
	s := NewSession(transport, fastOptions())

	var got atomic.Int64
	s.On(models.EventMessage, func(json.RawMessage) {
		if got.Add(1) == 1 {
			panic("boom")
		}
	})

	s.Connect()
	req.Eventually(func() bool { return s.State() == StateConnected }, waitFor, tick)

	frame, err := models.EncodeEvent(models.EventMessage, models.MessageRequest{Text: "hola"})
	req.NoError(err)
	conn.inbound <- frame
	conn.inbound <- []byte("garbage")
	conn.inbound <- frame

	req.Eventually(func() bool { return got.Load() == 2 }, waitFor, tick)
	req.Equal(StateConnected, s.State())
}

func TestOptions_Normalized_And_Clamped(t *testing.T) {
	req := require.New(t)

	opts := Options{ReconnectionDelay: time.Second, ReconnectionDelayMax: time.Millisecond}.normalized()
	req.Equal(time.Second, opts.ReconnectionDelayMax)
	req.Equal(defaultReconnectionAttempts, opts.ReconnectionAttempts)
	req.Equal(defaultFallbackInterval, opts.FallbackInterval)
	req.NotNil(opts.Logger)
	req.NotNil(opts.MetricSink)

	opts = DefaultOptions().normalized()
	req.Equal(time.Second, opts.clampDelay(0))
	req.Equal(5*time.Second, opts.clampDelay(time.Minute))
	req.Equal(2*time.Second, opts.clampDelay(2*time.Second))

	b := opts.newBackoff()
	for range 20 {
		d := opts.clampDelay(b.NextBackOff())
		req.GreaterOrEqual(d, opts.ReconnectionDelay)
		req.LessOrEqual(d, opts.ReconnectionDelayMax)
	}
}
