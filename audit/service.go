package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/godamri/helix-activity/activity"
	"github.com/godamri/helix-activity/router"
	"github.com/google/uuid"
)

// Service backs the audit resources on the router: record creation on
// audit/activity and the changed-field actions on audit.
type Service struct {
	sink       Sink
	comparator *FieldComparator
	logger     *slog.Logger
}

func NewService(sink Sink, comparator *FieldComparator, logger *slog.Logger) *Service {
	if sink == nil {
		sink = NoopSink{}
	}
	if comparator == nil {
		comparator = &FieldComparator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		sink:       sink,
		comparator: comparator,
		logger:     logger.With("component", "audit_service"),
	}
}

func (s *Service) Register(r *router.Router) {
	r.HandleCreate(activity.ActivityResourcePath, s.CreateActivity)
	r.HandleAction(activity.AuditResourcePath, string(activity.PolicyWatchedFields), s.compareWith(s.comparator.ChangedWatchedFields))
	r.HandleAction(activity.AuditResourcePath, string(activity.PolicyPasswordFields), s.compareWith(s.comparator.ChangedPasswordFields))
}

// CreateActivity validates and persists one activity record.
func (s *Service) CreateActivity(ctx context.Context, req router.CreateRequest) (router.Response, error) {
	var ev activity.Event
	if err := json.Unmarshal(req.Content, &ev); err != nil {
		return router.Response{}, router.NewBadRequest(fmt.Sprintf("invalid activity record: %v", err))
	}
	if ev.EventName != activity.EventName {
		return router.Response{}, router.NewBadRequest(fmt.Sprintf("unexpected event name %q", ev.EventName))
	}
	if ev.Timestamp <= 0 {
		return router.Response{}, router.NewBadRequest("activity record has no timestamp")
	}
	if ev.ChangedFields == nil {
		ev.ChangedFields = []string{}
	}

	id := req.NewResourceID
	if id == "" {
		id = uuid.NewString()
	}
	rec := Record{ID: id, Event: ev}

	if err := s.sink.Write(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "Failed to persist activity record",
			"error", err,
			"record_id", id,
			"object_id", ev.ObjectID,
		)
		if rerr, ok := router.AsResourceError(err); ok {
			return router.Response{}, rerr
		}
		return router.Response{}, router.NewUnavailable("audit: activity record not persisted", err)
	}

	content, err := json.Marshal(rec)
	if err != nil {
		return router.Response{}, router.NewInternalError(err)
	}
	return router.Response{ID: id, Content: content}, nil
}

type compareRequest struct {
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
}

func (s *Service) compareWith(fn func(before, after json.RawMessage) ([]string, error)) router.ActionHandler {
	return func(_ context.Context, req router.ActionRequest) (router.Response, error) {
		var in compareRequest
		if len(req.Content) > 0 {
			if err := json.Unmarshal(req.Content, &in); err != nil {
				return router.Response{}, router.NewBadRequest(fmt.Sprintf("invalid comparison content: %v", err))
			}
		}
		fields, err := fn(in.Before, in.After)
		if err != nil {
			return router.Response{}, router.NewBadRequest(err.Error())
		}
		content, err := json.Marshal(fields)
		if err != nil {
			return router.Response{}, router.NewInternalError(err)
		}
		return router.Response{Content: content}, nil
	}
}
