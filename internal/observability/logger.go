// Package observability defines shared logging primitives.
package observability

import (
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/coachpo/messenger/config"
	"github.com/coachpo/messenger/errs"
)

var defaultLogger atomic.Pointer[logrus.Entry]

func init() {
	SetLogger(nil)
}

// NewLogger builds a logrus logger from the logging configuration.
func NewLogger(cfg config.LoggingConfig, out io.Writer) (*logrus.Logger, error) {
	if out == nil {
		out = os.Stdout
	}
	level := logrus.InfoLevel
	if raw := strings.TrimSpace(cfg.Level); raw != "" {
		parsed, err := logrus.ParseLevel(raw)
		if err != nil {
			return nil, errs.New("observability", errs.CodeInvalid,
				errs.WithMessage("unknown log level"),
				errs.WithField("level", raw),
				errs.WithCause(err))
		}
		level = parsed
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	switch strings.ToLower(strings.TrimSpace(cfg.Format)) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// SetLogger overrides the global logger used by the system. Nil installs a discarding logger.
func SetLogger(logger *logrus.Logger) {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	defaultLogger.Store(logrus.NewEntry(logger))
}

// Log returns the current global logger instance.
func Log() logrus.FieldLogger {
	return defaultLogger.Load()
}
