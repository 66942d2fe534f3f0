package app

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Runner owns process lifecycle: signal handling and ordered cleanup.
type Runner struct {
	Logger          *slog.Logger
	ShutdownTimeout time.Duration

	closers []closer
}

type closer struct {
	name string
	fn   func(ctx context.Context) error
}

func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{Logger: logger, ShutdownTimeout: 10 * time.Second}
}

// OnShutdown registers cleanup. Closers run in reverse registration order,
// so resources are released after whatever was built on top of them.
func (r *Runner) OnShutdown(name string, fn func(ctx context.Context) error) {
	r.closers = append(r.closers, closer{name: name, fn: fn})
}

// Run calls fn with a context cancelled on SIGINT/SIGTERM. fn is expected to
// block until that context is done. Cleanup runs either way.
func (r *Runner) Run(fn func(ctx context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return r.run(ctx, fn)
}

func (r *Runner) run(ctx context.Context, fn func(ctx context.Context) error) error {
	r.Logger.Info("Service starting")

	runErr := fn(ctx)
	if runErr != nil {
		r.Logger.Error("Service stopped with error", "error", runErr)
	} else {
		r.Logger.Info("Shutdown signal received, cleaning up")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.ShutdownTimeout)
	defer cancel()

	errs := []error{runErr}
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if err := c.fn(shutdownCtx); err != nil {
			r.Logger.Error("Cleanup failed", "resource", c.name, "error", err)
			errs = append(errs, err)
		}
	}

	r.Logger.Info("Service shutdown complete")
	return errors.Join(errs...)
}
