package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// Probe reports whether one dependency is reachable.
type Probe func(ctx context.Context) error

const (
	StatusUp   = "UP"
	StatusDown = "DOWN"
)

// Checker serves liveness and readiness over the registered probes.
type Checker struct {
	mu      sync.RWMutex
	probes  map[string]Probe
	timeout time.Duration
	logger  *slog.Logger
}

// NewChecker uses timeout per readiness run. A slow dependency is reported
// as down so the load balancer stops routing to us.
func NewChecker(timeout time.Duration, logger *slog.Logger) *Checker {
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{
		probes:  make(map[string]Probe),
		timeout: timeout,
		logger:  logger.With("component", "health"),
	}
}

func (c *Checker) Register(name string, p Probe) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probes[name] = p
}

func (c *Checker) RegisterRoutes(r chi.Router) {
	r.Get("/health", c.HandleHealth)
	r.Get("/ready", c.HandleReadiness)
}

// HandleHealth is the liveness probe: the process is up.
func (c *Checker) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// Check runs every probe concurrently and returns per-probe status.
func (c *Checker) Check(ctx context.Context) (map[string]string, bool) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.mu.RLock()
	names := make([]string, 0, len(c.probes))
	for name := range c.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	probes := make([]Probe, len(names))
	for i, name := range names {
		probes[i] = c.probes[name]
	}
	c.mu.RUnlock()

	results := make([]error, len(probes))
	var wg sync.WaitGroup
	for i, p := range probes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = p(ctx)
		}()
	}
	wg.Wait()

	status := make(map[string]string, len(names)+1)
	healthy := true
	for i, name := range names {
		if results[i] != nil {
			c.logger.ErrorContext(ctx, "Readiness probe failed", "probe", name, "error", results[i])
			status[name] = StatusDown
			healthy = false
			continue
		}
		status[name] = StatusUp
	}
	status["status"] = StatusUp
	if !healthy {
		status["status"] = StatusDown
	}
	return status, healthy
}

func (c *Checker) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	status, healthy := c.Check(r.Context())

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(status); err != nil {
		c.logger.Error("Failed to write health response", "error", err)
	}
}
