package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/coachpo/messenger/config"
	"github.com/coachpo/messenger/pkg/messenger"
)

type beat struct {
	messenger.Envelope
}

func TestParseEndpoint(t *testing.T) {
	host, insecure, err := parseEndpoint("https://example.com:4318")
	require.NoError(t, err)
	require.Equal(t, "example.com:4318", host)
	require.False(t, insecure)

	host, insecure, err = parseEndpoint("http://localhost:4318")
	require.NoError(t, err)
	require.Equal(t, "localhost:4318", host)
	require.True(t, insecure)
}

func TestInitNoEndpointUsesNoop(t *testing.T) {
	providers, err := Init(context.Background(), config.TelemetryConfig{}, config.EnvDev)
	require.NoError(t, err)
	require.False(t, providers.Enabled())
	require.NotNil(t, providers.TracerProvider)
	require.NotNil(t, providers.MeterProvider)
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitInvalidEndpoint(t *testing.T) {
	_, err := Init(context.Background(), config.TelemetryConfig{OTLPEndpoint: "://bad"}, config.EnvDev)
	require.Error(t, err)
}

func TestInitWithEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	providers, err := Init(context.Background(),
		config.TelemetryConfig{OTLPEndpoint: srv.URL, ServiceName: "messenger-test"}, config.EnvStaging)
	require.NoError(t, err)
	require.True(t, providers.Enabled())
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestHubInstrumentsReachInitProviders(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	spans := tracetest.NewSpanRecorder()
	providers, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "hub-test"}, config.EnvDev,
		WithMetricReader(reader), WithSpanProcessor(spans))
	require.NoError(t, err)
	require.True(t, providers.Enabled())
	defer func() { require.NoError(t, providers.Shutdown(context.Background())) }()

	hub, err := messenger.New(
		messenger.WithMeterProvider(providers.MeterProvider),
		messenger.WithTracerProvider(providers.TracerProvider),
		messenger.WithDefaultReference(messenger.ReferenceStrong))
	require.NoError(t, err)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	_, err = messenger.Subscribe(hub, func(*beat) {})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(&beat{Envelope: messenger.NewEnvelope(t)}))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	service, ok := rm.Resource.Set().Value("service.name")
	require.True(t, ok)
	require.Equal(t, "hub-test", service.AsString())

	found := make(map[string]metricdata.Metrics)
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}
	require.Contains(t, found, "messenger.messages.published")
	require.Contains(t, found, "messenger.deliveries")

	histogram, ok := found[PublishDurationInstrument].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.NotEmpty(t, histogram.DataPoints)
	require.Equal(t, PublishDurationBuckets, histogram.DataPoints[0].Bounds)

	var published int
	for _, span := range spans.Ended() {
		if span.Name() == "messenger.publish" {
			published++
		}
	}
	// one subscriber change notification plus the beat
	require.Equal(t, 2, published)
}
