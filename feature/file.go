package feature

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/godamri/helix-activity/config"
	"gopkg.in/yaml.v3"
)

type flagFile struct {
	Flags map[string]bool `yaml:"flags"`
}

// FileProvider serves flags from a YAML file ("flags: {name: true}") and
// picks up edits while Watch runs.
type FileProvider struct {
	path   string
	store  *config.Container[flagFile]
	logger *slog.Logger
}

func NewFileProvider(path string, logger *slog.Logger) (*FileProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	initial, err := readFlagFile(path)
	if err != nil {
		return nil, err
	}
	return &FileProvider{
		path:   path,
		store:  config.NewContainer(initial),
		logger: logger.With("component", "feature_file"),
	}, nil
}

func (f *FileProvider) IsEnabled(_ context.Context, key string) bool {
	return f.store.Get().Flags[key]
}

// Watch reloads the file on change until ctx is done. A file that fails to
// parse leaves the previous flags in place.
func (f *FileProvider) Watch(ctx context.Context, interval time.Duration) {
	config.NewFileWatcher(f.path, interval, f.logger).Watch(ctx, func() {
		next, err := readFlagFile(f.path)
		if err == nil {
			err = f.store.Update(next)
		}
		if err != nil {
			f.logger.WarnContext(ctx, "Feature flag reload failed", "path", f.path, "error", err)
			return
		}
		f.logger.InfoContext(ctx, "Feature flags reloaded", "path", f.path, "count", len(next.Flags))
	})
}

func readFlagFile(path string) (flagFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return flagFile{}, fmt.Errorf("feature: failed to read flag file: %w", err)
	}
	var out flagFile
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return flagFile{}, fmt.Errorf("feature: failed to parse flag file: %w", err)
	}
	return out, nil
}
