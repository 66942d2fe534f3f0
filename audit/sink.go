package audit

import (
	"context"
	"errors"

	"github.com/godamri/helix-activity/activity"
)

// Record is an activity event as persisted, with its assigned id.
type Record struct {
	ID string `json:"_id"`
	activity.Event
}

// Sink defines where activity records go (stdout, Kafka, Postgres, Redis).
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

// NoopSink discards records. Used when auditing is disabled.
type NoopSink struct{}

func (NoopSink) Write(context.Context, Record) error { return nil }

// MultiSink writes every record to all sinks, even when one of them fails.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
