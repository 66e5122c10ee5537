package websocket

import (
	"log/slog"
	"time"

	"github.com/hashicorp/go-metrics"
)

var (
	MetricChatConnOpenedCount   = []string{"chat", "connection", "opened", "count"}
	MetricChatConnClosedCount   = []string{"chat", "connection", "closed", "count"}
	MetricChatParticipants      = []string{"chat", "participants"}
	MetricChatNameRejectedCount = []string{"chat", "name", "rejected", "count"}
	MetricChatDirectMissCount   = []string{"chat", "direct", "miss", "count"}
	MetricChatFanoutDelivered   = []string{"chat", "fanout", "delivered", "count"}
	MetricChatFanoutDropped     = []string{"chat", "fanout", "dropped", "count"}
	MetricChatFanoutDurationMs  = []string{"chat", "fanout", "duration", "ms"}
	MetricChatPanicCount        = []string{"chat", "handler", "panic", "count"}
	MetricChatMirrorErrorCount  = []string{"chat", "mirror", "error", "count"}
)

type TelemetryLabel string

var (
	LabelEvent     TelemetryLabel = "event"
	LabelReason    TelemetryLabel = "reason"
	LabelWhere     TelemetryLabel = "where"
	LabelOperation TelemetryLabel = "operation"
)

func (lab TelemetryLabel) M(val string) metrics.Label {
	return metrics.Label{Name: string(lab), Value: val}
}

func (lab TelemetryLabel) L(val any) slog.Attr {
	return slog.Attr{
		Key:   string(lab),
		Value: slog.AnyValue(val),
	}
}

// ConnectionMetrics emits hub telemetry to a go-metrics sink
type ConnectionMetrics struct {
	sink metrics.MetricSink
}

func NewConnectionMetrics(sink metrics.MetricSink) *ConnectionMetrics {
	if sink == nil {
		sink = &metrics.BlackholeSink{}
	}
	return &ConnectionMetrics{sink: sink}
}

func (cm *ConnectionMetrics) RecordConnectionOpened() {
	cm.sink.IncrCounter(MetricChatConnOpenedCount, 1)
}

func (cm *ConnectionMetrics) RecordConnectionClosed(reason DisconnectReason) {
	cm.sink.IncrCounterWithLabels(MetricChatConnClosedCount, 1,
		[]metrics.Label{LabelReason.M(reason.String())})
}

func (cm *ConnectionMetrics) RecordParticipants(n int) {
	cm.sink.SetGauge(MetricChatParticipants, float32(n))
}

func (cm *ConnectionMetrics) RecordNameRejected() {
	cm.sink.IncrCounter(MetricChatNameRejectedCount, 1)
}

func (cm *ConnectionMetrics) RecordDirectMiss() {
	cm.sink.IncrCounter(MetricChatDirectMissCount, 1)
}

// RecordFanout records the outcome of delivering one event.
// A zero duration skips the timing sample.
func (cm *ConnectionMetrics) RecordFanout(event string, delivered, dropped int, d time.Duration) {
	labels := []metrics.Label{LabelEvent.M(event)}
	if delivered > 0 {
		cm.sink.IncrCounterWithLabels(MetricChatFanoutDelivered, float32(delivered), labels)
	}
	if dropped > 0 {
		cm.sink.IncrCounterWithLabels(MetricChatFanoutDropped, float32(dropped), labels)
	}
	if d > 0 {
		cm.sink.AddSampleWithLabels(MetricChatFanoutDurationMs, float32(d)/float32(time.Millisecond), labels)
	}
}

func (cm *ConnectionMetrics) RecordPanic(where string) {
	cm.sink.IncrCounterWithLabels(MetricChatPanicCount, 1, []metrics.Label{LabelWhere.M(where)})
}

func (cm *ConnectionMetrics) RecordMirrorError(operation string) {
	cm.sink.IncrCounterWithLabels(MetricChatMirrorErrorCount, 1, []metrics.Label{LabelOperation.M(operation)})
}
