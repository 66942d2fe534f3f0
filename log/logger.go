package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/godamri/helix-activity/pkg/telemetry"
	"github.com/lmittmann/tint"
)

type Config struct {
	Level     string `envconfig:"LOG_LEVEL" default:"info" yaml:"level" validate:"oneof=debug info warn error"`
	Format    string `envconfig:"LOG_FORMAT" default:"json" yaml:"format" validate:"oneof=json console"`
	AddSource bool   `envconfig:"LOG_ADD_SOURCE" default:"false" yaml:"add_source"`
}

// New builds the process logger on stdout.
func New(cfg Config, service string) *slog.Logger {
	return NewWithWriter(cfg, service, os.Stdout)
}

// NewWithWriter builds a logger that writes to w. Every record carries the
// service name plus the trace and transaction ids found on the context.
func NewWithWriter(cfg Config, service string, w io.Writer) *slog.Logger {
	level := ParseLevel(cfg.Level)

	var handler slog.Handler
	if cfg.Format == "console" {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      level,
			AddSource:  cfg.AddSource,
			TimeFormat: time.TimeOnly,
		})
	} else {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     level,
			AddSource: cfg.AddSource,
		})
	}

	logger := slog.New(telemetry.NewOTelHandler(handler))
	if service != "" {
		logger = logger.With("service", service)
	}
	return logger
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
