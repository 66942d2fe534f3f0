package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name    string `envconfig:"NAME" default:"svc" yaml:"name" validate:"required"`
	Port    int    `envconfig:"PORT" default:"8080" yaml:"port" validate:"gte=1,lte=65535"`
	Verbose bool   `envconfig:"VERBOSE" yaml:"verbose"`
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoaderPriority(t *testing.T) {
	path := writeFile(t, "name: from-file\nport: 9000\n")

	t.Run("file over defaults", func(t *testing.T) {
		cfg, err := NewLoader[testConfig]("CFGTEST", path).Load()
		require.NoError(t, err)
		assert.Equal(t, "from-file", cfg.Name)
		assert.Equal(t, 9000, cfg.Port)
	})

	t.Run("env over file", func(t *testing.T) {
		t.Setenv("CFGTEST_PORT", "9100")
		cfg, err := NewLoader[testConfig]("CFGTEST", path).Load()
		require.NoError(t, err)
		assert.Equal(t, 9100, cfg.Port)
	})

	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := NewLoader[testConfig]("CFGTEST", filepath.Join(t.TempDir(), "absent.yaml")).Load()
		require.NoError(t, err)
		assert.Equal(t, "svc", cfg.Name)
		assert.Equal(t, 8080, cfg.Port)
	})
}

func TestLoaderErrors(t *testing.T) {
	t.Run("invalid yaml", func(t *testing.T) {
		_, err := NewLoader[testConfig]("CFGTEST", writeFile(t, "name: [")).Load()
		assert.Error(t, err)
	})

	t.Run("validation", func(t *testing.T) {
		t.Setenv("CFGTEST_PORT", "70000")
		_, err := NewLoader[testConfig]("CFGTEST", "").Load()
		assert.ErrorContains(t, err, "validation failed")
	})
}

func TestContainerUpdate(t *testing.T) {
	c := NewContainer(testConfig{Name: "a", Port: 1})
	require.NoError(t, c.Update(testConfig{Name: "b", Port: 2}))
	assert.Equal(t, "b", c.Get().Name)

	assert.Error(t, c.Update(testConfig{Port: 2}))
	assert.Equal(t, "b", c.Get().Name, "rejected update keeps the previous value")
}

func TestFileWatcher(t *testing.T) {
	path := writeFile(t, "name: a\n")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	go NewFileWatcher(path, 10*time.Millisecond, nil).Watch(ctx, func() { calls.Add(1) })

	var step time.Duration
	require.Eventually(t, func() bool {
		step += time.Hour
		future := time.Now().Add(step)
		_ = os.Chtimes(path, future, future)
		return calls.Load() > 0
	}, time.Second, 20*time.Millisecond)
}

type nestedConfig struct {
	Log struct {
		Level string `envconfig:"LOG_LEVEL" default:"info" yaml:"level"`
	} `yaml:"log"`
	Sinks []string `envconfig:"SINKS" default:"stdout" yaml:"sinks"`
}

func TestLoaderNestedOverlay(t *testing.T) {
	path := writeFile(t, "log:\n  level: debug\nsinks: [kafka, postgres]\n")

	cfg, err := NewLoader[nestedConfig]("CFGTEST", path).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, []string{"kafka", "postgres"}, cfg.Sinks)

	t.Setenv("LOG_LEVEL", "error")
	cfg, err = NewLoader[nestedConfig]("CFGTEST", path).Load()
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level, "bare tag is honoured like envconfig does")
	assert.Equal(t, []string{"kafka", "postgres"}, cfg.Sinks)
}
