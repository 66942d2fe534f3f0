package activity

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/godamri/helix-activity/router"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ComparePolicy names the field filter the audit service applies.
type ComparePolicy string

const (
	PolicyWatchedFields  ComparePolicy = "getChangedWatchedFields"
	PolicyPasswordFields ComparePolicy = "getChangedPasswordFields"
)

// AuditResourcePath is the resource the comparison actions are addressed to.
const AuditResourcePath = "audit"

// ChangeComparator reports the fields that differ between two object states.
type ChangeComparator interface {
	ChangedFields(ctx context.Context, policy ComparePolicy, before, after json.RawMessage) ([]string, error)
}

// RouterComparator delegates comparison to the audit service, which owns
// the watched-field configuration and can see through protected values.
type RouterComparator struct {
	conn router.Connection
}

func NewRouterComparator(conn router.Connection) *RouterComparator {
	return &RouterComparator{conn: conn}
}

type compareContent struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
}

func (c *RouterComparator) ChangedFields(ctx context.Context, policy ComparePolicy, before, after json.RawMessage) ([]string, error) {
	ctx, span := tracer.Start(ctx, "activity.ChangedFields",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("activity.compare_policy", string(policy))),
	)
	defer span.End()

	content, err := json.Marshal(compareContent{
		Before: orNull(before),
		After:  orNull(after),
	})
	if err != nil {
		return nil, fmt.Errorf("activity: failed to encode comparison content: %w", err)
	}

	resp, err := c.conn.Action(ctx, router.ActionRequest{
		ResourcePath: AuditResourcePath,
		Action:       string(policy),
		Content:      content,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	fields := []string{}
	if len(resp.Content) > 0 {
		if err := json.Unmarshal(resp.Content, &fields); err != nil {
			return nil, fmt.Errorf("activity: %s returned a non string-list response: %w", policy, err)
		}
	}
	if fields == nil {
		fields = []string{}
	}
	return fields, nil
}

func orNull(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("null")
	}
	return v
}
