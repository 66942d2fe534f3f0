package feature

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProvider(t *testing.T) {
	ctx := context.Background()
	t.Setenv("FEATURE_ACTIVITY_LOG_READS", "TRUE")
	assert.True(t, EnvProvider{}.IsEnabled(ctx, ActivityLogReads))

	t.Setenv("FEATURE_ACTIVITY_LOG_READS", "no")
	assert.False(t, EnvProvider{}.IsEnabled(ctx, ActivityLogReads))
}

func TestManagerAnyProvider(t *testing.T) {
	ctx := context.Background()
	m := NewManager(StaticProvider{"a": false}, StaticProvider{"a": true})
	assert.True(t, m.IsEnabled(ctx, "a"))
	assert.False(t, m.IsEnabled(ctx, "b"))

	var nilManager *Manager
	assert.False(t, nilManager.IsEnabled(ctx, "a"))
}

func TestFileProviderReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.yaml")
	require.NoError(t, os.WriteFile(path, []byte("flags:\n  activity-log-reads: false\n"), 0o600))

	p, err := NewFileProvider(path, nil)
	require.NoError(t, err)
	assert.False(t, p.IsEnabled(context.Background(), ActivityLogReads))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Watch(ctx, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("flags:\n  activity-log-reads: true\n"), 0o600))
	var step time.Duration
	require.Eventually(t, func() bool {
		step += time.Hour
		future := time.Now().Add(step)
		_ = os.Chtimes(path, future, future)
		return p.IsEnabled(context.Background(), ActivityLogReads)
	}, time.Second, 20*time.Millisecond)
}

func TestFileProviderMissingFile(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}
