package messenger

import (
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/coachpo/messenger/config"
	"github.com/coachpo/messenger/errs"
	"github.com/coachpo/messenger/lib/async"
)

// Reference selects how a subscription holds its handler.
type Reference uint8

const (
	// ReferenceDefault defers to the hub's configured default.
	ReferenceDefault Reference = iota
	// ReferenceWeak observes the handler without keeping it alive; the token owns it.
	ReferenceWeak
	// ReferenceStrong keeps the handler alive until it is unsubscribed.
	ReferenceStrong
)

func (r Reference) String() string {
	switch r {
	case ReferenceDefault:
		return "default"
	case ReferenceWeak:
		return config.ReferenceWeak
	case ReferenceStrong:
		return config.ReferenceStrong
	default:
		return "unknown"
	}
}

// ParseReference maps a configuration value onto a Reference.
func ParseReference(raw string) (Reference, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "default":
		return ReferenceDefault, nil
	case config.ReferenceWeak:
		return ReferenceWeak, nil
	case config.ReferenceStrong:
		return ReferenceStrong, nil
	default:
		return ReferenceDefault, errs.New("messenger/config", errs.CodeInvalid,
			errs.WithMessage("unknown reference mode"),
			errs.WithField("value", raw))
	}
}

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the logger used for fault and lifecycle reports.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithDispatcher installs the main-thread dispatcher used by RunOnMainThread subscriptions.
func WithDispatcher(dispatcher MainThreadDispatcher) Option {
	return func(h *Hub) {
		h.dispatcher = dispatcher
	}
}

// WithPool runs pool-policy handlers and purge sweeps on an externally owned pool.
// The hub does not shut it down.
func WithPool(pool *async.Pool) Option {
	return func(h *Hub) {
		if pool != nil {
			h.pool = pool
			h.ownsPool = false
		}
	}
}

// WithWorkers sizes the pool the hub creates when no pool is supplied.
func WithWorkers(workers, queueDepth int) Option {
	return func(h *Hub) {
		if workers > 0 {
			h.workers = workers
		}
		if queueDepth >= 0 {
			h.queueDepth = queueDepth
		}
	}
}

// WithDefaultReference sets the reference mode used when a subscriber passes ReferenceDefault.
func WithDefaultReference(reference Reference) Option {
	return func(h *Hub) {
		h.defaultReference = reference
	}
}

// WithPurgeInterval enables a janitor requesting a purge of every kind on each tick.
func WithPurgeInterval(interval time.Duration) Option {
	return func(h *Hub) {
		if interval > 0 {
			h.purgeInterval = interval
		}
	}
}

// WithMeterProvider overrides the global OpenTelemetry meter provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(h *Hub) {
		h.meterProvider = provider
	}
}

// WithTracerProvider overrides the global OpenTelemetry tracer provider.
func WithTracerProvider(provider trace.TracerProvider) Option {
	return func(h *Hub) {
		h.tracerProvider = provider
	}
}

// OptionsFromConfig translates the messenger section of the settings tree.
func OptionsFromConfig(cfg config.MessengerConfig) ([]Option, error) {
	ref, err := ParseReference(cfg.DefaultReference)
	if err != nil {
		return nil, err
	}
	opts := []Option{WithWorkers(cfg.Workers, cfg.QueueDepth)}
	if ref != ReferenceDefault {
		opts = append(opts, WithDefaultReference(ref))
	}
	if cfg.PurgeInterval > 0 {
		opts = append(opts, WithPurgeInterval(cfg.PurgeInterval))
	}
	return opts, nil
}

// SubscribeOption configures a single subscription.
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	reference Reference
	tag       string
	runner    Runner
}

// WithReference selects strong or weak handler ownership.
func WithReference(reference Reference) SubscribeOption {
	return func(o *subscribeOptions) {
		o.reference = reference
	}
}

// WithTag classifies the subscription for tag queries.
func WithTag(tag string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.tag = tag
	}
}

// WithRunner replaces the policy runner with a caller-supplied one.
func WithRunner(runner Runner) SubscribeOption {
	return func(o *subscribeOptions) {
		o.runner = runner
	}
}
