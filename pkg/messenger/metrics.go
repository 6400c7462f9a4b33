package messenger

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/messenger/internal/telemetry"
)

// hubMetrics pairs OpenTelemetry instruments with in-process counters readable through Stats.
type hubMetrics struct {
	publishedCounter metric.Int64Counter
	deliveryCounter  metric.Int64Counter
	deadCounter      metric.Int64Counter
	droppedCounter   metric.Int64Counter
	faultCounter     metric.Int64Counter
	sweepCounter     metric.Int64Counter
	purgedCounter    metric.Int64Counter
	subscriberGauge  metric.Int64Gauge
	publishDuration  metric.Float64Histogram

	published atomic.Uint64
	delivered atomic.Uint64
	dead      atomic.Uint64
	dropped   atomic.Uint64
	faults    atomic.Uint64
	sweeps    atomic.Uint64
	purged    atomic.Uint64
}

func newHubMetrics(meter metric.Meter) *hubMetrics {
	m := new(hubMetrics)
	m.publishedCounter, _ = meter.Int64Counter("messenger.messages.published",
		metric.WithDescription("Number of messages published to the hub"),
		metric.WithUnit("{message}"))
	m.deliveryCounter, _ = meter.Int64Counter("messenger.deliveries",
		metric.WithDescription("Number of handler invocations handed to a runner"),
		metric.WithUnit("{delivery}"))
	m.deadCounter, _ = meter.Int64Counter("messenger.deliveries.dead",
		metric.WithDescription("Number of deliveries skipped because the handler was reclaimed"),
		metric.WithUnit("{delivery}"))
	m.droppedCounter, _ = meter.Int64Counter("messenger.deliveries.dropped",
		metric.WithDescription("Number of deliveries a runner could not schedule"),
		metric.WithUnit("{delivery}"))
	m.faultCounter, _ = meter.Int64Counter("messenger.handler.faults",
		metric.WithDescription("Number of handler panics recovered by the hub"),
		metric.WithUnit("{fault}"))
	m.sweepCounter, _ = meter.Int64Counter("messenger.purge.sweeps",
		metric.WithDescription("Number of purge sweeps executed"),
		metric.WithUnit("{sweep}"))
	m.purgedCounter, _ = meter.Int64Counter("messenger.purge.removed",
		metric.WithDescription("Number of reclaimed subscriptions removed by purge sweeps"),
		metric.WithUnit("{subscription}"))
	m.subscriberGauge, _ = meter.Int64Gauge("messenger.subscribers",
		metric.WithDescription("Current number of subscriptions per message kind"),
		metric.WithUnit("{subscription}"))
	m.publishDuration, _ = meter.Float64Histogram("messenger.publish.duration",
		metric.WithDescription("Latency of hub publish operations excluding asynchronous handlers"),
		metric.WithUnit("ms"))
	return m
}

func (m *hubMetrics) recordPublish(ctx context.Context, kind Kind, dead int, started time.Time) {
	m.published.Add(1)
	m.dead.Add(uint64(dead))

	attrs := metric.WithAttributes(telemetry.KindAttributes(kind.Name())...)
	if m.publishedCounter != nil {
		m.publishedCounter.Add(ctx, 1, attrs)
	}
	if m.deadCounter != nil && dead > 0 {
		m.deadCounter.Add(ctx, int64(dead), attrs)
	}
	if m.publishDuration != nil {
		m.publishDuration.Record(ctx, float64(time.Since(started).Microseconds())/1000, attrs)
	}
}

func (m *hubMetrics) recordDelivery(kind Kind, policy string) {
	m.delivered.Add(1)
	if m.deliveryCounter != nil {
		m.deliveryCounter.Add(context.Background(), 1, metric.WithAttributes(
			telemetry.DeliveryAttributes(kind.Name(), policy, telemetry.ResultOK)...))
	}
}

func (m *hubMetrics) recordDrop(policy string) {
	m.dropped.Add(1)
	if m.droppedCounter != nil {
		m.droppedCounter.Add(context.Background(), 1, metric.WithAttributes(
			telemetry.AttrEnvironment.String(telemetry.Environment()),
			telemetry.AttrRunner.String(policy),
			telemetry.AttrResult.String(telemetry.ResultDropped)))
	}
}

func (m *hubMetrics) recordFault(kind Kind, policy string) {
	m.faults.Add(1)
	if m.faultCounter != nil {
		m.faultCounter.Add(context.Background(), 1, metric.WithAttributes(
			telemetry.DeliveryAttributes(kind.Name(), policy, telemetry.ResultPanic)...))
	}
}

func (m *hubMetrics) recordSweep(ctx context.Context) {
	m.sweeps.Add(1)
	if m.sweepCounter != nil {
		m.sweepCounter.Add(ctx, 1, metric.WithAttributes(
			telemetry.OperationAttributes("purge.sweep", telemetry.ResultOK)...))
	}
}

func (m *hubMetrics) recordPurged(ctx context.Context, kind Kind, removed int) {
	if removed <= 0 {
		return
	}
	m.purged.Add(uint64(removed))
	if m.purgedCounter != nil {
		m.purgedCounter.Add(ctx, int64(removed), metric.WithAttributes(telemetry.KindAttributes(kind.Name())...))
	}
}

func (m *hubMetrics) recordSubscribers(kind Kind, count int) {
	if m.subscriberGauge != nil {
		m.subscriberGauge.Record(context.Background(), int64(count), metric.WithAttributes(
			telemetry.KindAttributes(kind.Name())...))
	}
}
