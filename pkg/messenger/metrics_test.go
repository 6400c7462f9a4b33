package messenger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumOf(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestHubRecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { require.NoError(t, provider.Shutdown(context.Background())) }()

	hub := newTestHub(t, WithMeterProvider(provider), WithDefaultReference(ReferenceStrong))
	_, err := Subscribe(hub, func(*ping) { panic("boom") })
	require.NoError(t, err)
	_, err = Subscribe(hub, func(*ping) {})
	require.NoError(t, err)
	_, err = SubscribeOnMainThread(hub, func(*ping) {})
	require.NoError(t, err)

	require.NoError(t, hub.Publish(&ping{Envelope: NewEnvelope(t)}))

	metrics := collect(t, reader)
	// three subscriber change notifications plus the ping
	require.EqualValues(t, 4, sumOf(t, metrics["messenger.messages.published"]))
	// the main-thread subscriber has no dispatcher, so only the inline pair counts
	require.EqualValues(t, 2, sumOf(t, metrics["messenger.deliveries"]))
	require.EqualValues(t, 1, sumOf(t, metrics["messenger.handler.faults"]))
	require.EqualValues(t, 1, sumOf(t, metrics["messenger.deliveries.dropped"]))
	stats := hub.Stats()
	require.EqualValues(t, 2, stats.Delivered)
	require.EqualValues(t, 1, stats.Dropped)

	gauge, ok := metrics["messenger.subscribers"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	require.EqualValues(t, 3, gauge.DataPoints[0].Value)
	kind, ok := gauge.DataPoints[0].Attributes.Value(attribute.Key("message.kind"))
	require.True(t, ok)
	require.Equal(t, "*github.com/coachpo/messenger/pkg/messenger.ping", kind.AsString())

	_, ok = metrics["messenger.publish.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
}
