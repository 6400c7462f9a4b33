// Command messenger-demo runs a hub with every runner policy wired up and serves
// its metrics until interrupted.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc"
	"golang.org/x/time/rate"

	"github.com/coachpo/messenger/config"
	"github.com/coachpo/messenger/internal/metrics"
	"github.com/coachpo/messenger/internal/observability"
	"github.com/coachpo/messenger/internal/telemetry"
	otelboot "github.com/coachpo/messenger/lib/telemetry"
	"github.com/coachpo/messenger/pkg/messenger"
)

const (
	defaultConfigPath        = "config/messenger.yaml"
	shutdownTimeout          = 15 * time.Second
	metricsShutdownTimeout   = 5 * time.Second
	lifecycleShutdownTimeout = 5 * time.Second
	hubShutdownTimeout       = 5 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	metricsReadHeaderTimeout = 5 * time.Second
)

// Tick is published by the demo clock.
type Tick struct {
	messenger.Envelope
	Seq int
	At  time.Time
}

// Status is published by the pool aggregator every few ticks.
type Status struct {
	messenger.Envelope
	Ticks int64
}

type flags struct {
	configPath string
	rate       float64
	statsPath  string
	transient  time.Duration
}

func init() {
	// The main goroutine drives the main-thread dispatcher.
	runtime.LockOSThread()
}

func main() {
	opts := parseFlags()
	ctx, cancel := newSignalContext()
	defer cancel()

	cfg, loadedFromFile, err := config.Load(resolveConfigPath(opts.configPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := observability.NewLogger(cfg.Logging, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "initialise logger: %v\n", err)
		os.Exit(1)
	}
	observability.SetLogger(logger)
	if !loadedFromFile {
		logger.Info("configuration file not found, using defaults")
	}
	logger.WithFields(logrus.Fields{
		"env":       cfg.Environment,
		"workers":   cfg.Messenger.Workers,
		"reference": cfg.Messenger.DefaultReference,
	}).Info("configuration initialised")

	telemetry.SetEnvironment(string(cfg.Environment))
	providers, err := otelboot.Init(ctx, cfg.Telemetry, cfg.Environment)
	if err != nil {
		logger.WithError(err).Fatal("initialise telemetry")
	}
	logger.WithField("exporting", providers.Enabled()).Info("telemetry initialised")

	dispatcher := messenger.NewLoopDispatcher(logger)
	hubOpts, err := messenger.OptionsFromConfig(cfg.Messenger)
	if err != nil {
		logger.WithError(err).Fatal("translate messenger config")
	}
	hubOpts = append(hubOpts,
		messenger.WithLogger(logger),
		messenger.WithDispatcher(dispatcher),
		messenger.WithMeterProvider(providers.MeterProvider),
		messenger.WithTracerProvider(providers.TracerProvider))
	hub, err := messenger.New(hubOpts...)
	if err != nil {
		logger.WithError(err).Fatal("initialise hub")
	}

	tokens, err := wireSubscribers(hub, logger, opts.transient)
	if err != nil {
		logger.WithError(err).Fatal("register subscribers")
	}

	var lifecycle conc.WaitGroup
	metricsServer := buildMetricsServer(cfg.Metrics, hub)
	if metricsServer != nil {
		startMetricsServer(&lifecycle, logger, metricsServer)
		logger.WithField("addr", metricsServer.Addr).Info("metrics listening")
	}
	lifecycle.Go(func() { runClock(ctx, hub, logger, opts.rate) })

	logger.Info("messenger demo started; awaiting shutdown signal")
	if err := dispatcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("main thread loop stopped")
	}
	logger.Info("shutdown signal received, initiating graceful shutdown")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	shutdownStart := time.Now()
	shutdownErr := performGracefulShutdown(shutdownCtx, logger, gracefulShutdownConfig{
		server:     metricsServer,
		mainCancel: cancel,
		lifecycle:  &lifecycle,
		dispatcher: dispatcher,
		hub:        hub,
		tokens:     tokens,
		statsPath:  opts.statsPath,
		telemetry:  providers.Shutdown,
	})
	logger.WithField("elapsed", time.Since(shutdownStart)).Info("shutdown completed")
	if shutdownErr != nil {
		os.Exit(1)
	}
}

func parseFlags() flags {
	var f flags
	flag.StringVar(&f.configPath, "config", "", fmt.Sprintf("Path to configuration file (default: %s)", defaultConfigPath))
	flag.Float64Var(&f.rate, "rate", 20, "Ticks published per second")
	flag.StringVar(&f.statsPath, "stats", "", "Write a JSON hub snapshot to this path on shutdown (- for stdout)")
	flag.DurationVar(&f.transient, "transient", 3*time.Second, "Lifetime of the weak transient subscriber")
	flag.Parse()
	return f
}

func newSignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Clean(defaultConfigPath)
}

// wireSubscribers registers one subscriber per runner policy. The returned tokens
// keep the long-lived weak subscriptions alive.
func wireSubscribers(hub *messenger.Hub, logger logrus.FieldLogger, transient time.Duration) ([]*messenger.Token, error) {
	var tokens []*messenger.Token

	changes, err := messenger.Subscribe(hub, func(msg *messenger.SubscriberChangeMessage) {
		logger.WithFields(logrus.Fields{
			"kind":        msg.MessageKind.String(),
			"subscribers": msg.SubscriberCount,
		}).Debug("subscribers changed")
	}, messenger.WithTag("audit"))
	if err != nil {
		return nil, err
	}
	tokens = append(tokens, changes)

	var seen atomic.Int64
	aggregator, err := messenger.SubscribeOnThreadPool(hub, func(tick *Tick) {
		n := seen.Add(1)
		if n%50 == 0 {
			if err := hub.Publish(&Status{Envelope: messenger.NewEnvelope("aggregator"), Ticks: n}); err != nil {
				logger.WithError(err).Warn("publish status")
			}
		}
	}, messenger.WithTag("aggregate"))
	if err != nil {
		return nil, err
	}
	tokens = append(tokens, aggregator)

	display, err := messenger.SubscribeOnMainThread(hub, func(status *Status) {
		logger.WithField("ticks", status.Ticks).Info("status")
	}, messenger.WithTag("display"))
	if err != nil {
		return nil, err
	}
	tokens = append(tokens, display)

	_, err = messenger.Subscribe(hub, func(tick *Tick) {
		if tick.Seq%100 == 0 {
			logger.WithField("seq", tick.Seq).Debug("tick")
		}
	}, messenger.WithReference(messenger.ReferenceStrong), messenger.WithTag("trace"))
	if err != nil {
		return nil, err
	}

	// The transient token lives until the timer fires; after that the weak handler
	// is reclaimed and the purge removes it.
	temp, err := messenger.Subscribe(hub, func(*Tick) {}, messenger.WithReference(messenger.ReferenceWeak), messenger.WithTag("transient"))
	if err != nil {
		return nil, err
	}
	time.AfterFunc(transient, func() {
		logger.WithField("subscription_id", string(temp.ID())).Info("dropping transient subscriber")
		temp = nil
		runtime.GC()
	})

	return tokens, nil
}

func runClock(ctx context.Context, hub *messenger.Hub, logger logrus.FieldLogger, perSecond float64) {
	if perSecond <= 0 {
		perSecond = 1
	}
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
	for seq := 1; ; seq++ {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := hub.Publish(&Tick{Envelope: messenger.NewEnvelope("clock"), Seq: seq, At: time.Now()}); err != nil {
			logger.WithError(err).Warn("publish tick")
			return
		}
	}
}

func buildMetricsServer(cfg config.MetricsConfig, hub *messenger.Hub) *http.Server {
	if cfg.Addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(metrics.NewRegistry(hub)))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: metricsReadHeaderTimeout,
	}
}

func startMetricsServer(lifecycle *conc.WaitGroup, logger logrus.FieldLogger, server *http.Server) {
	lifecycle.Go(func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("metrics server")
		}
	})
}

type gracefulShutdownConfig struct {
	server     *http.Server
	mainCancel context.CancelFunc
	lifecycle  *conc.WaitGroup
	dispatcher *messenger.LoopDispatcher
	hub        *messenger.Hub
	tokens     []*messenger.Token
	statsPath  string
	telemetry  func(context.Context) error
}

func performGracefulShutdown(ctx context.Context, logger logrus.FieldLogger, cfg gracefulShutdownConfig) error {
	var failures []error
	shutdownStep := func(name string, timeout time.Duration, fn func(context.Context) error) {
		stepCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		logger.Infof("shutdown: %s...", name)
		if err := fn(stepCtx); err != nil {
			failures = append(failures, fmt.Errorf("%s: %w", name, err))
		} else {
			logger.Infof("shutdown: %s completed", name)
		}
	}

	if cfg.server != nil {
		shutdownStep("stopping metrics server", metricsShutdownTimeout, func(stepCtx context.Context) error {
			return cfg.server.Shutdown(stepCtx)
		})
	}

	logger.Info("shutdown: cancelling main context")
	if cfg.mainCancel != nil {
		cfg.mainCancel()
	}

	if cfg.lifecycle != nil {
		shutdownStep("waiting for lifecycle goroutines", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
			done := make(chan struct{})
			go func() {
				cfg.lifecycle.Wait()
				close(done)
			}()
			select {
			case <-done:
				return nil
			case <-stepCtx.Done():
				return fmt.Errorf("timeout waiting for goroutines: %w", stepCtx.Err())
			}
		})
	}

	if cfg.hub != nil {
		if cfg.statsPath != "" {
			if err := writeStats(cfg.statsPath, cfg.hub.Stats()); err != nil {
				failures = append(failures, err)
			}
		}
		for _, token := range cfg.tokens {
			token.Release()
		}
		shutdownStep("closing hub", hubShutdownTimeout, cfg.hub.Close)
	}

	if cfg.dispatcher != nil {
		cfg.dispatcher.Close()
		if n := cfg.dispatcher.RunPending(); n > 0 {
			logger.WithField("actions", n).Info("shutdown: drained main thread queue")
		}
	}

	if cfg.telemetry != nil {
		shutdownStep("shutting down telemetry", telemetryShutdownTimeout, cfg.telemetry)
	}
	return observability.AggregateErrors("shutdown", failures, nil)
}

func writeStats(path string, stats messenger.Stats) error {
	payload, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}
	payload = append(payload, '\n')
	if path == "-" {
		_, err = os.Stdout.Write(payload)
		return err
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write stats %s: %w", path, err)
	}
	return nil
}
