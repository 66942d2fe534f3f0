package feature

import (
	"context"
	"os"
	"strings"
)

// ActivityLogReads enables activity records for read and query requests.
const ActivityLogReads = "activity-log-reads"

// Provider defines how we fetch flags.
type Provider interface {
	IsEnabled(ctx context.Context, key string) bool
}

// Manager answers flag lookups. A flag is on when any provider enables it.
type Manager struct {
	providers []Provider
}

// NewManager defaults to EnvProvider when no provider is given.
func NewManager(providers ...Provider) *Manager {
	if len(providers) == 0 {
		providers = []Provider{EnvProvider{}}
	}
	return &Manager{providers: providers}
}

func (m *Manager) IsEnabled(ctx context.Context, key string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.providers {
		if p.IsEnabled(ctx, key) {
			return true
		}
	}
	return false
}

// EnvProvider reads FEATURE_<KEY>=true, e.g. FEATURE_ACTIVITY_LOG_READS.
type EnvProvider struct{}

func (EnvProvider) IsEnabled(_ context.Context, key string) bool {
	envKey := "FEATURE_" + strings.ToUpper(strings.ReplaceAll(key, "-", "_"))
	val := strings.ToLower(os.Getenv(envKey))
	return val == "true" || val == "1"
}

// StaticProvider is a fixed flag set, typically from the config file.
type StaticProvider map[string]bool

func (s StaticProvider) IsEnabled(_ context.Context, key string) bool {
	return s[key]
}
