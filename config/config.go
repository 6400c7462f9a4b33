// Package config centralises runtime configuration helpers for messenger services.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/coachpo/messenger/errs"
)

// Environment identifies the runtime environment where the messenger operates.
type Environment string

const (
	// EnvDev marks the development environment.
	EnvDev Environment = "dev"
	// EnvStaging marks the staging environment.
	EnvStaging Environment = "staging"
	// EnvProd marks the production environment.
	EnvProd Environment = "prod"
)

const (
	// ReferenceWeak keeps handlers reachable only through their subscription token.
	ReferenceWeak = "weak"
	// ReferenceStrong lets the hub own handlers until they are unsubscribed.
	ReferenceStrong = "strong"
)

// MessengerConfig sizes the hub and its background worker pool.
type MessengerConfig struct {
	Workers          int           `yaml:"workers"`
	QueueDepth       int           `yaml:"queueDepth"`
	DefaultReference string        `yaml:"defaultReference"`
	PurgeInterval    time.Duration `yaml:"purgeInterval"`
}

// TelemetryConfig configures OpenTelemetry exporters.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus scrape endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Settings contains the configuration tree loaded from defaults and overrides.
type Settings struct {
	Environment Environment     `yaml:"environment"`
	Messenger   MessengerConfig `yaml:"messenger"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Logging     LoggingConfig   `yaml:"logging"`
	Metrics     MetricsConfig   `yaml:"metrics"`
}

// Default returns the default configuration.
func Default() Settings {
	workers := runtime.NumCPU()
	if workers <= 0 {
		workers = 4
	}
	return Settings{
		Environment: EnvProd,
		Messenger: MessengerConfig{
			Workers:          workers,
			QueueDepth:       1024,
			DefaultReference: ReferenceWeak,
			PurgeInterval:    0,
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: "",
			ServiceName:  "messenger",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{Addr: ""},
	}
}

// FromEnv loads configuration values from environment variables, overriding defaults.
func FromEnv() Settings {
	return applyEnv(Default())
}

// Load reads a YAML file over the defaults and then applies environment overrides.
// A missing file is not an error; the boolean reports whether the file was read.
func Load(path string) (Settings, bool, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	loaded := false
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Settings{}, false, fmt.Errorf("decode config %s: %w", path, err)
			}
			loaded = true
		case errors.Is(err, os.ErrNotExist):
		default:
			return Settings{}, false, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg = applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return Settings{}, loaded, err
	}
	return cfg, loaded, nil
}

func applyEnv(cfg Settings) Settings {
	if env := strings.TrimSpace(os.Getenv("MESSENGER_ENV")); env != "" {
		cfg.Environment = Environment(strings.ToLower(env))
	}
	if v := strings.TrimSpace(os.Getenv("MESSENGER_WORKERS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Messenger.Workers = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MESSENGER_QUEUE_DEPTH")); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Messenger.QueueDepth = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("MESSENGER_DEFAULT_REFERENCE")); v != "" {
		cfg.Messenger.DefaultReference = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("MESSENGER_PURGE_INTERVAL")); v != "" {
		if dur, err := time.ParseDuration(v); err == nil {
			cfg.Messenger.PurgeInterval = dur
		}
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("OTEL_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	if v := strings.TrimSpace(os.Getenv("MESSENGER_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("MESSENGER_LOG_FORMAT")); v != "" {
		cfg.Logging.Format = v
	}
	if v := strings.TrimSpace(os.Getenv("MESSENGER_METRICS_ADDR")); v != "" {
		cfg.Metrics.Addr = v
	}
	return cfg
}

// Validate checks the settings for values the runtime cannot honour.
func (s Settings) Validate() error {
	if s.Messenger.Workers <= 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("messenger.workers must be >0"))
	}
	if s.Messenger.QueueDepth < 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("messenger.queueDepth must be >=0"))
	}
	if s.Messenger.PurgeInterval < 0 {
		return errs.New("config", errs.CodeInvalid, errs.WithMessage("messenger.purgeInterval must be >=0"))
	}
	switch strings.ToLower(strings.TrimSpace(s.Messenger.DefaultReference)) {
	case ReferenceWeak, ReferenceStrong:
	default:
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("messenger.defaultReference must be weak or strong"),
			errs.WithField("value", s.Messenger.DefaultReference))
	}
	switch strings.ToLower(strings.TrimSpace(s.Logging.Format)) {
	case "", "text", "json":
	default:
		return errs.New("config", errs.CodeInvalid,
			errs.WithMessage("logging.format must be text or json"),
			errs.WithField("value", s.Logging.Format))
	}
	return nil
}

// Option mutates Settings when applied via Apply.
type Option func(*Settings)

// Apply applies the provided Option set to a copy of the base Settings.
func Apply(base Settings, opts ...Option) Settings {
	cfg := base
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// WithEnvironment configures the top-level environment.
func WithEnvironment(env Environment) Option {
	return func(s *Settings) {
		if env != "" {
			s.Environment = env
		}
	}
}

// WithWorkers overrides the worker pool size.
func WithWorkers(workers, queueDepth int) Option {
	return func(s *Settings) {
		if workers > 0 {
			s.Messenger.Workers = workers
		}
		if queueDepth >= 0 {
			s.Messenger.QueueDepth = queueDepth
		}
	}
}

// WithDefaultReference sets the reference mode used when a subscriber does not pick one.
func WithDefaultReference(reference string) Option {
	reference = strings.ToLower(strings.TrimSpace(reference))
	return func(s *Settings) {
		if reference != "" {
			s.Messenger.DefaultReference = reference
		}
	}
}

// WithPurgeInterval enables the periodic liveness sweep.
func WithPurgeInterval(interval time.Duration) Option {
	return func(s *Settings) {
		if interval >= 0 {
			s.Messenger.PurgeInterval = interval
		}
	}
}

// WithTelemetry overrides the OTLP endpoint and service name.
func WithTelemetry(endpoint, service string) Option {
	endpoint = strings.TrimSpace(endpoint)
	service = strings.TrimSpace(service)
	return func(s *Settings) {
		s.Telemetry.OTLPEndpoint = endpoint
		if service != "" {
			s.Telemetry.ServiceName = service
		}
	}
}

// WithLogging overrides the log level and format.
func WithLogging(level, format string) Option {
	return func(s *Settings) {
		if v := strings.TrimSpace(level); v != "" {
			s.Logging.Level = v
		}
		if v := strings.TrimSpace(format); v != "" {
			s.Logging.Format = v
		}
	}
}

// WithMetricsAddr sets the Prometheus listen address.
func WithMetricsAddr(addr string) Option {
	return func(s *Settings) {
		s.Metrics.Addr = strings.TrimSpace(addr)
	}
}
