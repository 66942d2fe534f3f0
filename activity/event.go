package activity

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// EventName identifies activity records among other audit topics.
const EventName = "activity"

// NullJSON is the explicit "no data available" payload.
var NullJSON = json.RawMessage("null")

type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
)

// Operation describes what the triggering request did.
type Operation struct {
	Method string `json:"method"`
	Detail string `json:"detail,omitempty"`
}

// OperationFromRequest derives the operation descriptor of req.
func OperationFromRequest(req *Request) Operation {
	op := Operation{Method: strings.ToUpper(string(req.Type))}
	if req.Type == RequestAction {
		op.Detail = req.Action
	}
	return op
}

// Event is an immutable activity record. Build it with Builder; the zero
// value is not a valid event.
type Event struct {
	EventName       string          `json:"eventName"`
	Timestamp       int64           `json:"timestamp"` // epoch millis
	TransactionID   string          `json:"transactionId,omitempty"`
	UserID          string          `json:"userId,omitempty"`
	RunAs           string          `json:"runAs,omitempty"`
	Operation       Operation       `json:"operation"`
	Before          json.RawMessage `json:"before"`
	After           json.RawMessage `json:"after"`
	ChangedFields   []string        `json:"changedFields"`
	Revision        *string         `json:"revision,omitempty"` // nil when neither state has one
	Message         string          `json:"message,omitempty"`
	ObjectID        string          `json:"objectId,omitempty"`
	PasswordChanged bool            `json:"passwordChanged"`
	Status          Status          `json:"status"`
}

// Time returns the event timestamp as a time.Time.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

var (
	ErrMissingEventName = errors.New("activity: event name is required")
	ErrMissingTimestamp = errors.New("activity: timestamp is required")
)

// Builder assembles an Event from discrete inputs.
type Builder struct {
	ev Event
}

func NewBuilder() *Builder {
	return &Builder{ev: Event{EventName: EventName}}
}

func (b *Builder) EventName(name string) *Builder      { b.ev.EventName = name; return b }
func (b *Builder) Timestamp(t time.Time) *Builder      { b.ev.Timestamp = t.UnixMilli(); return b }
func (b *Builder) TransactionID(id string) *Builder    { b.ev.TransactionID = id; return b }
func (b *Builder) UserID(id string) *Builder           { b.ev.UserID = id; return b }
func (b *Builder) RunAs(id string) *Builder            { b.ev.RunAs = id; return b }
func (b *Builder) Operation(op Operation) *Builder     { b.ev.Operation = op; return b }
func (b *Builder) Before(v json.RawMessage) *Builder   { b.ev.Before = v; return b }
func (b *Builder) After(v json.RawMessage) *Builder    { b.ev.After = v; return b }
func (b *Builder) Revision(rev string) *Builder        { b.ev.Revision = &rev; return b }
func (b *Builder) Message(msg string) *Builder         { b.ev.Message = msg; return b }
func (b *Builder) ObjectID(id string) *Builder         { b.ev.ObjectID = id; return b }
func (b *Builder) PasswordChanged(v bool) *Builder     { b.ev.PasswordChanged = v; return b }
func (b *Builder) Status(s Status) *Builder            { b.ev.Status = s; return b }
func (b *Builder) ChangedFields(f []string) *Builder   { b.ev.ChangedFields = f; return b }
func (b *Builder) OperationFrom(req *Request) *Builder { return b.Operation(OperationFromRequest(req)) }

// Build returns a copy that shares no memory with the builder inputs.
func (b *Builder) Build() (Event, error) {
	if b.ev.EventName == "" {
		return Event{}, ErrMissingEventName
	}
	if b.ev.Timestamp <= 0 {
		return Event{}, ErrMissingTimestamp
	}

	ev := b.ev
	ev.Before = cloneJSON(b.ev.Before)
	ev.After = cloneJSON(b.ev.After)
	if b.ev.Revision != nil {
		rev := *b.ev.Revision
		ev.Revision = &rev
	}
	ev.ChangedFields = make([]string, len(b.ev.ChangedFields))
	copy(ev.ChangedFields, b.ev.ChangedFields)
	return ev, nil
}

func cloneJSON(v json.RawMessage) json.RawMessage {
	if len(v) == 0 {
		return json.RawMessage("null")
	}
	out := make(json.RawMessage, len(v))
	copy(out, v)
	return out
}
