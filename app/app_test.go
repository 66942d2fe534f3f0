package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunnerClosesInReverseOrder(t *testing.T) {
	r := NewRunner(nil)
	var order []string
	r.OnShutdown("db", func(context.Context) error { order = append(order, "db"); return nil })
	r.OnShutdown("sink", func(context.Context) error { order = append(order, "sink"); return errors.New("flush failed") })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})

	assert.Equal(t, []string{"sink", "db"}, order)
	assert.EqualError(t, err, "flush failed")
}

func TestRunnerReturnsStartupError(t *testing.T) {
	r := NewRunner(nil)
	closed := false
	r.OnShutdown("db", func(context.Context) error { closed = true; return nil })

	err := r.run(context.Background(), func(context.Context) error { return errors.New("bind: address in use") })

	assert.EqualError(t, err, "bind: address in use")
	assert.True(t, closed)
}
