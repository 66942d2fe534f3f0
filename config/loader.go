package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading from YAML and environment variables,
// then enforces the struct's validate tags.
// Priority: Env Vars > YAML > Defaults.
// This loader is immutable. It runs once at startup.
type Loader[T any] struct {
	envPrefix  string
	configPath string
	validate   *validator.Validate
}

func NewLoader[T any](envPrefix, configPath string) *Loader[T] {
	return &Loader[T]{
		envPrefix:  envPrefix,
		configPath: configPath,
		validate:   validator.New(),
	}
}

// Load reads the configuration. A missing file is not an error, a file that
// exists but cannot be parsed is.
func (l *Loader[T]) Load() (*T, error) {
	// Defaults and env first so the file can override defaults.
	var cfg T
	if err := envconfig.Process(l.envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to process env vars: %w", err)
	}

	if l.configPath != "" {
		found, err := decodeFile(l.configPath, &cfg)
		if err != nil {
			return nil, err
		}
		if found {
			// envconfig cannot tell a default from an explicit value, so
			// explicitly set variables are re-applied on top of the file.
			var fromEnv T
			if err := envconfig.Process(l.envPrefix, &fromEnv); err != nil {
				return nil, fmt.Errorf("config: failed to process env vars: %w", err)
			}
			overlayEnv(l.envPrefix, reflect.ValueOf(&cfg).Elem(), reflect.ValueOf(&fromEnv).Elem())
		}
	}

	if err := l.validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}

func decodeFile(path string, out any) (bool, error) {
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("config: failed to open config file: %w", err)
	}
	defer file.Close()

	if err := yaml.NewDecoder(file).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("config: failed to decode config file: %w", err)
	}
	return true, nil
}
