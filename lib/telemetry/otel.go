// Package telemetry builds the OpenTelemetry providers a messenger process hands to
// its hubs. Providers are returned to the caller rather than installed globally.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/coachpo/messenger/config"
)

const (
	defaultServiceName    = "messenger"
	defaultExportInterval = 15 * time.Second

	// PublishDurationInstrument is the hub's publish latency histogram, in milliseconds.
	PublishDurationInstrument = "messenger.publish.duration"
)

// PublishDurationBuckets are the histogram boundaries applied to publish latency.
// Publishes only snapshot and hand off work, so the interesting range is sub-millisecond.
var PublishDurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 50}

// Providers carries the tracer and meter providers for a hub plus their shutdown.
type Providers struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider

	shutdown []func(context.Context) error
}

// Enabled reports whether any SDK provider backs p.
func (p *Providers) Enabled() bool {
	return len(p.shutdown) > 0
}

// Shutdown flushes and stops every SDK provider. It is safe on no-op providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for _, fn := range p.shutdown {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

type settings struct {
	exportInterval time.Duration
	readers        []sdkmetric.Reader
	processors     []sdktrace.SpanProcessor
}

// Option customises Init.
type Option func(*settings)

// WithExportInterval sets how often metrics are pushed to the collector.
func WithExportInterval(interval time.Duration) Option {
	return func(s *settings) {
		if interval > 0 {
			s.exportInterval = interval
		}
	}
}

// WithMetricReader attaches an extra reader, such as a manual reader for diagnostics.
// A reader enables the metric SDK even without an OTLP endpoint.
func WithMetricReader(reader sdkmetric.Reader) Option {
	return func(s *settings) {
		if reader != nil {
			s.readers = append(s.readers, reader)
		}
	}
}

// WithSpanProcessor attaches an extra span processor. A processor enables the trace
// SDK even without an OTLP endpoint.
func WithSpanProcessor(processor sdktrace.SpanProcessor) Option {
	return func(s *settings) {
		if processor != nil {
			s.processors = append(s.processors, processor)
		}
	}
}

// Init builds providers for cfg. With no endpoint and no extra readers or processors
// both providers are no-ops.
func Init(ctx context.Context, cfg config.TelemetryConfig, env config.Environment, opts ...Option) (*Providers, error) {
	s := settings{exportInterval: defaultExportInterval}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}

	var (
		host     string
		insecure bool
	)
	endpoint := strings.TrimSpace(cfg.OTLPEndpoint)
	if endpoint != "" {
		var err error
		if host, insecure, err = parseEndpoint(endpoint); err != nil {
			return nil, err
		}
	}

	providers := &Providers{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	}
	if endpoint == "" && len(s.readers) == 0 && len(s.processors) == 0 {
		return providers, nil
	}

	res, err := newResource(ctx, cfg.ServiceName, env)
	if err != nil {
		return nil, err
	}

	readers := s.readers
	processors := s.processors
	if endpoint != "" {
		metricOpts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(host)}
		traceOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(host)}
		if insecure {
			metricOpts = append(metricOpts, otlpmetrichttp.WithInsecure())
			traceOpts = append(traceOpts, otlptracehttp.WithInsecure())
		}
		metricExp, err := otlpmetrichttp.New(ctx, metricOpts...)
		if err != nil {
			return nil, fmt.Errorf("create metric exporter: %w", err)
		}
		traceExp, err := otlptracehttp.New(ctx, traceOpts...)
		if err != nil {
			return nil, fmt.Errorf("create trace exporter: %w", err)
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(metricExp, sdkmetric.WithInterval(s.exportInterval)))
		processors = append(processors, sdktrace.NewBatchSpanProcessor(traceExp))
	}

	if len(readers) > 0 {
		mpOpts := []sdkmetric.Option{sdkmetric.WithResource(res), sdkmetric.WithView(publishDurationView())}
		for _, reader := range readers {
			mpOpts = append(mpOpts, sdkmetric.WithReader(reader))
		}
		mp := sdkmetric.NewMeterProvider(mpOpts...)
		providers.MeterProvider = mp
		providers.shutdown = append(providers.shutdown, mp.Shutdown)
	}
	if len(processors) > 0 {
		tpOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
		for _, processor := range processors {
			tpOpts = append(tpOpts, sdktrace.WithSpanProcessor(processor))
		}
		tp := sdktrace.NewTracerProvider(tpOpts...)
		providers.TracerProvider = tp
		providers.shutdown = append(providers.shutdown, tp.Shutdown)
	}
	return providers, nil
}

func newResource(ctx context.Context, service string, env config.Environment) (*resource.Resource, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		service = defaultServiceName
	}
	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceName(service)),
		resource.WithProcessRuntimeName(),
	}
	if env != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.DeploymentEnvironment(strings.ToLower(string(env)))))
	}
	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}
	return res, nil
}

func publishDurationView() sdkmetric.View {
	return sdkmetric.NewView(
		sdkmetric.Instrument{Name: PublishDurationInstrument},
		sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{Boundaries: PublishDurationBuckets}},
	)
}

func parseEndpoint(raw string) (string, bool, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse otlp endpoint: %w", err)
	}
	host := parsed.Host
	if host == "" {
		host = raw
	}
	return host, parsed.Scheme != "https", nil
}
