package config

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
)

// Container holds a hot-reloadable value for concurrent readers.
type Container[T any] struct {
	store    atomic.Pointer[T]
	mu       sync.Mutex // serialises writers
	validate *validator.Validate
}

func NewContainer[T any](initial T) *Container[T] {
	c := &Container[T]{validate: validator.New()}
	c.store.Store(&initial)
	return c
}

// Get returns the current snapshot. It never blocks.
func (c *Container[T]) Get() *T {
	return c.store.Load()
}

// Update validates next and swaps it in. On failure the previous value stays.
func (c *Container[T]) Update(next T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.validate.Struct(next); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}

	c.store.Store(&next)
	return nil
}
