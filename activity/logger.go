package activity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/godamri/helix-activity/pkg/contextx"
	"github.com/godamri/helix-activity/router"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ActivityResourcePath is where activity records are created.
const ActivityResourcePath = "audit/activity"

// ErrNilRequest is a caller bug and is never suspended.
var ErrNilRequest = errors.New("activity: request can not be nil")

// Logger records the effect of one operation on a managed object.
type Logger interface {
	Log(ctx context.Context, req *Request, message, objectID string, before, after json.RawMessage, status Status) error
}

// RouterLogger creates activity records through a router.Connection.
// It holds no mutable state and is safe for concurrent use.
type RouterLogger struct {
	conn           router.Connection
	comparator     ChangeComparator
	suspend        bool
	logFullObjects bool
	logger         *slog.Logger
	now            func() time.Time
}

type Option func(*RouterLogger)

// WithComparator replaces the router-backed comparator.
func WithComparator(c ChangeComparator) Option {
	return func(l *RouterLogger) { l.comparator = c }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *RouterLogger) { l.now = now }
}

func NewRouterLogger(conn router.Connection, cfg Config, logger *slog.Logger, opts ...Option) *RouterLogger {
	if logger == nil {
		logger = slog.Default()
	}
	l := &RouterLogger{
		conn:           conn,
		comparator:     NewRouterComparator(conn),
		suspend:        cfg.SuspendExceptions,
		logFullObjects: cfg.LogFullObjects,
		logger:         logger.With("component", "activity_logger"),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log builds the activity record for req and submits it.
//
// With SuspendExceptions set, any failure is logged as a warning and nil is
// returned. Otherwise a router.ResourceError is returned as-is and any other
// failure is wrapped with router.NewInternalError.
func (l *RouterLogger) Log(ctx context.Context, req *Request, message, objectID string, before, after json.RawMessage, status Status) error {
	if req == nil {
		return ErrNilRequest
	}

	ctx, span := tracer.Start(ctx, "activity.Log",
		trace.WithAttributes(
			attribute.String("activity.operation", string(req.Type)),
			attribute.String("activity.resource", req.ResourcePath),
			attribute.String("activity.status", string(status)),
		),
	)
	defer span.End()

	err := l.emit(ctx, req, message, objectID, before, after, status)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "activity log failed")
	}
	return l.settle(ctx, req, objectID, err)
}

func (l *RouterLogger) emit(ctx context.Context, req *Request, message, objectID string, before, after json.RawMessage, status Status) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("activity: panic while building record: %v", rec)
		}
	}()

	actor, _ := contextx.LookupAuthPrincipalID(ctx)
	txID, _ := contextx.LookupTransactionID(ctx)

	changed, err := l.comparator.ChangedFields(ctx, PolicyWatchedFields, before, after)
	if err != nil {
		return err
	}
	passwords, err := l.comparator.ChangedFields(ctx, PolicyPasswordFields, before, after)
	if err != nil {
		return err
	}

	b := NewBuilder()
	// Revision comes from the payloads as given, never from the redacted copies.
	if rev, ok := Revision(before, after); ok {
		b.Revision(rev)
	}

	event, err := b.
		Timestamp(l.now()).
		TransactionID(txID).
		UserID(actor).
		RunAs(actor).
		OperationFrom(req).
		Before(JSONForLog(before, req.Type, l.logFullObjects)).
		After(JSONForLog(after, req.Type, l.logFullObjects)).
		ChangedFields(changed).
		Message(message).
		ObjectID(objectID).
		PasswordChanged(len(passwords) > 0).
		Status(status).
		Build()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("activity: failed to encode record: %w", err)
	}

	if _, err := l.conn.Create(ctx, router.CreateRequest{
		ResourcePath: ActivityResourcePath,
		Content:      payload,
	}); err != nil {
		return err
	}

	eventsSubmitted.WithLabelValues(string(status)).Inc()
	return nil
}

type failureKind string

const (
	failureNone     failureKind = ""
	failureResource failureKind = "resource"
	failureInternal failureKind = "internal"
)

func classify(err error) failureKind {
	if err == nil {
		return failureNone
	}
	if _, ok := router.AsResourceError(err); ok {
		return failureResource
	}
	return failureInternal
}

// settle applies the suspension policy to the outcome of emit.
func (l *RouterLogger) settle(ctx context.Context, req *Request, objectID string, err error) error {
	kind := classify(err)
	if kind == failureNone {
		return nil
	}

	logFailures.WithLabelValues(string(kind), strconv.FormatBool(l.suspend)).Inc()

	if l.suspend {
		l.logger.WarnContext(ctx, "Failed to write activity log",
			"error", err,
			"kind", string(kind),
			"operation", string(req.Type),
			"resource", req.ResourcePath,
			"object_id", objectID,
		)
		return nil
	}

	if kind == failureResource {
		return err
	}
	return router.NewInternalError(err)
}
