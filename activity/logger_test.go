package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/godamri/helix-activity/pkg/contextx"
	"github.com/godamri/helix-activity/router"
	"github.com/stretchr/testify/suite"
)

// fakeConnection records every call and answers comparator actions from a
// per-policy table.
type fakeConnection struct {
	mu        sync.Mutex
	creates   []router.CreateRequest
	actions   []router.ActionRequest
	changed   map[string][]string
	createErr error
	actionErr error
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{changed: map[string][]string{}}
}

func (f *fakeConnection) Create(_ context.Context, req router.CreateRequest) (router.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, req)
	if f.createErr != nil {
		return router.Response{}, f.createErr
	}
	return router.Response{ID: "rec-1"}, nil
}

func (f *fakeConnection) Action(_ context.Context, req router.ActionRequest) (router.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, req)
	if f.actionErr != nil {
		return router.Response{}, f.actionErr
	}
	fields := f.changed[req.Action]
	if fields == nil {
		fields = []string{}
	}
	content, _ := json.Marshal(fields)
	return router.Response{Content: content}, nil
}

func (f *fakeConnection) submitted() Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ev Event
	if len(f.creates) > 0 {
		_ = json.Unmarshal(f.creates[len(f.creates)-1].Content, &ev)
	}
	return ev
}

type RouterLoggerSuite struct {
	suite.Suite
	conn    *fakeConnection
	logBuf  *bytes.Buffer
	slogger *slog.Logger
	fixedAt time.Time
}

func TestRouterLoggerSuite(t *testing.T) {
	suite.Run(t, new(RouterLoggerSuite))
}

func (s *RouterLoggerSuite) SetupTest() {
	s.conn = newFakeConnection()
	s.logBuf = &bytes.Buffer{}
	s.slogger = slog.New(slog.NewJSONHandler(s.logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s.fixedAt = time.UnixMilli(1700000000123)
}

func (s *RouterLoggerSuite) newLogger(cfg Config) *RouterLogger {
	return NewRouterLogger(s.conn, cfg, s.slogger, WithClock(func() time.Time { return s.fixedAt }))
}

func (s *RouterLoggerSuite) ctx() context.Context {
	ctx := contextx.WithAuthPrincipalID(context.Background(), "openidm-admin")
	return contextx.WithTransactionID(ctx, "tx-42")
}

func updateRequest() *Request {
	return &Request{Type: RequestUpdate, ResourcePath: "managed/user/u1"}
}

// =============================================================================
// Happy path
// =============================================================================

func (s *RouterLoggerSuite) TestSuccessSubmitsOneRecordAndTwoComparisons() {
	l := s.newLogger(Config{})

	err := l.Log(s.ctx(), updateRequest(), "updated", "u1",
		json.RawMessage(`{"name":"a"}`), json.RawMessage(`{"name":"b"}`), StatusSuccess)
	s.Require().NoError(err)

	s.Require().Len(s.conn.creates, 1)
	s.Equal(ActivityResourcePath, s.conn.creates[0].ResourcePath)

	s.Require().Len(s.conn.actions, 2)
	s.Equal(AuditResourcePath, s.conn.actions[0].ResourcePath)
	s.Equal(string(PolicyWatchedFields), s.conn.actions[0].Action)
	s.Equal(AuditResourcePath, s.conn.actions[1].ResourcePath)
	s.Equal(string(PolicyPasswordFields), s.conn.actions[1].Action)
}

func (s *RouterLoggerSuite) TestUpdateScenario() {
	s.conn.changed[string(PolicyWatchedFields)] = []string{"name"}
	l := s.newLogger(Config{SuspendExceptions: false, LogFullObjects: false})

	before := json.RawMessage(`{"name":"a","_rev":"1"}`)
	after := json.RawMessage(`{"name":"b","_rev":"2"}`)

	err := l.Log(s.ctx(), updateRequest(), "user updated", "u1", before, after, StatusSuccess)
	s.Require().NoError(err)

	ev := s.conn.submitted()
	s.Equal(EventName, ev.EventName)
	s.Equal(s.fixedAt.UnixMilli(), ev.Timestamp)
	s.Equal("tx-42", ev.TransactionID)
	s.Equal("openidm-admin", ev.UserID)
	s.Equal(ev.UserID, ev.RunAs)
	s.Equal(Operation{Method: "UPDATE"}, ev.Operation)
	s.JSONEq(string(before), string(ev.Before))
	s.JSONEq(string(after), string(ev.After))
	s.Equal(strPtr("2"), ev.Revision)
	s.Equal([]string{"name"}, ev.ChangedFields)
	s.False(ev.PasswordChanged)
	s.Equal("user updated", ev.Message)
	s.Equal("u1", ev.ObjectID)
	s.Equal(StatusSuccess, ev.Status)
}

func (s *RouterLoggerSuite) TestComparatorSeesUnredactedPayloads() {
	l := s.newLogger(Config{})
	before := json.RawMessage(`{"name":"a"}`)

	err := l.Log(s.ctx(), &Request{Type: RequestRead, ResourcePath: "managed/user/u1"}, "", "u1", before, before, StatusSuccess)
	s.Require().NoError(err)

	var content struct {
		Before json.RawMessage `json:"before"`
		After  json.RawMessage `json:"after"`
	}
	s.Require().NoError(json.Unmarshal(s.conn.actions[0].Content, &content))
	s.JSONEq(`{"name":"a"}`, string(content.Before))

	ev := s.conn.submitted()
	s.Equal("null", string(ev.Before))
	s.Equal("null", string(ev.After))
}

func (s *RouterLoggerSuite) TestRevisionIgnoresRedaction() {
	l := s.newLogger(Config{})

	err := l.Log(s.ctx(), &Request{Type: RequestQuery, ResourcePath: "managed/user"}, "", "",
		nil, json.RawMessage(`{"_rev":"7"}`), StatusSuccess)
	s.Require().NoError(err)

	ev := s.conn.submitted()
	s.Equal("null", string(ev.After))
	s.Equal(strPtr("7"), ev.Revision)
}

func (s *RouterLoggerSuite) TestEmptyPayloadIsNullSentinel() {
	l := s.newLogger(Config{})

	err := l.Log(s.ctx(), updateRequest(), "", "u1", json.RawMessage{}, json.RawMessage(`{"a":1}`), StatusSuccess)
	s.Require().NoError(err)

	s.Len(s.conn.creates, 1)
	ev := s.conn.submitted()
	s.Equal("null", string(ev.Before))
	s.JSONEq(`{"a":1}`, string(ev.After))
}

func (s *RouterLoggerSuite) TestEmptyAfterRevisionIsKept() {
	l := s.newLogger(Config{})

	err := l.Log(s.ctx(), updateRequest(), "", "u1",
		json.RawMessage(`{"_rev":"1"}`), json.RawMessage(`{"_rev":""}`), StatusSuccess)
	s.Require().NoError(err)

	s.Equal(strPtr(""), s.conn.submitted().Revision)
	s.Contains(string(s.conn.creates[0].Content), `"revision":""`)
}

func (s *RouterLoggerSuite) TestConcurrentLogCalls() {
	l := s.newLogger(Config{})
	const n = 32

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			after := json.RawMessage(fmt.Sprintf(`{"_rev":"%d"}`, i))
			errs <- l.Log(s.ctx(), updateRequest(), "concurrent", fmt.Sprintf("u%d", i), nil, after, StatusSuccess)
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		s.NoError(err)
	}
	s.Len(s.conn.creates, n)
	s.Len(s.conn.actions, 2*n)
}

func (s *RouterLoggerSuite) TestPasswordChangedFlag() {
	s.Run("non-empty sensitive fields", func() {
		s.SetupTest()
		s.conn.changed[string(PolicyPasswordFields)] = []string{"password"}
		s.Require().NoError(s.newLogger(Config{}).Log(s.ctx(), updateRequest(), "", "u1", nil, nil, StatusSuccess))
		s.True(s.conn.submitted().PasswordChanged)
	})

	s.Run("empty sensitive fields", func() {
		s.SetupTest()
		s.Require().NoError(s.newLogger(Config{}).Log(s.ctx(), updateRequest(), "", "u1", nil, nil, StatusSuccess))
		s.False(s.conn.submitted().PasswordChanged)
	})
}

func (s *RouterLoggerSuite) TestAnonymousContext() {
	l := s.newLogger(Config{})

	err := l.Log(context.Background(), updateRequest(), "", "u1", nil, nil, StatusFailure)
	s.Require().NoError(err)

	ev := s.conn.submitted()
	s.Empty(ev.UserID)
	s.Empty(ev.RunAs)
	s.Empty(ev.TransactionID)
	s.Nil(ev.Revision)
	s.Equal([]string{}, ev.ChangedFields)
	s.Equal(StatusFailure, ev.Status)
}

func (s *RouterLoggerSuite) TestActionOperationDetail() {
	l := s.newLogger(Config{})

	req := &Request{Type: RequestAction, ResourcePath: "managed/user/u1", Action: "resetPassword"}
	s.Require().NoError(l.Log(s.ctx(), req, "", "u1", nil, nil, StatusSuccess))

	s.Equal(Operation{Method: "ACTION", Detail: "resetPassword"}, s.conn.submitted().Operation)
}

// =============================================================================
// Caller contract
// =============================================================================

func (s *RouterLoggerSuite) TestNilRequestIsNeverSuspended() {
	for _, suspend := range []bool{true, false} {
		l := s.newLogger(Config{SuspendExceptions: suspend})
		err := l.Log(s.ctx(), nil, "", "", nil, nil, StatusSuccess)
		s.ErrorIs(err, ErrNilRequest)
	}
	s.Empty(s.conn.creates)
	s.Empty(s.conn.actions)
}

// =============================================================================
// Failure policy
// =============================================================================

func (s *RouterLoggerSuite) TestSuspendedCreateFailure() {
	s.conn.createErr = router.NewUnavailable("audit store down", nil)
	l := s.newLogger(Config{SuspendExceptions: true})

	err := l.Log(s.ctx(), updateRequest(), "", "u1", nil, nil, StatusSuccess)
	s.NoError(err)
	s.Contains(s.logBuf.String(), `"level":"WARN"`)
	s.Contains(s.logBuf.String(), "Failed to write activity log")
}

func (s *RouterLoggerSuite) TestSuspendedComparatorFailure() {
	s.conn.actionErr = errors.New("connection reset")
	l := s.newLogger(Config{SuspendExceptions: true})

	err := l.Log(s.ctx(), updateRequest(), "", "u1", nil, nil, StatusSuccess)
	s.NoError(err)
	s.Empty(s.conn.creates)
	s.Contains(s.logBuf.String(), `"kind":"internal"`)
}

func (s *RouterLoggerSuite) TestResourceErrorPropagatesUnchanged() {
	original := router.NewUnavailable("audit store down", nil)
	s.conn.createErr = original
	l := s.newLogger(Config{SuspendExceptions: false})

	err := l.Log(s.ctx(), updateRequest(), "", "u1", nil, nil, StatusSuccess)
	s.Require().Error(err)

	rerr, ok := router.AsResourceError(err)
	s.Require().True(ok)
	s.Same(original, rerr)
	s.Equal("audit store down", rerr.Message)
	s.False(router.IsInternal(err))
	s.Empty(s.logBuf.String())
}

func (s *RouterLoggerSuite) TestComparatorResourceErrorPropagates() {
	s.conn.actionErr = router.NewNotFound("resource \"audit\" not found")
	l := s.newLogger(Config{})

	err := l.Log(s.ctx(), updateRequest(), "", "u1", nil, nil, StatusSuccess)
	rerr, ok := router.AsResourceError(err)
	s.Require().True(ok)
	s.Equal(404, rerr.Code)
	s.Empty(s.conn.creates)
}

func (s *RouterLoggerSuite) TestUnexpectedErrorIsWrappedAsInternal() {
	cause := errors.New("socket closed")
	s.conn.createErr = cause
	l := s.newLogger(Config{SuspendExceptions: false})

	err := l.Log(s.ctx(), updateRequest(), "", "u1", nil, nil, StatusSuccess)
	s.Require().Error(err)
	s.True(router.IsInternal(err))
	s.ErrorIs(err, cause)
}

func (s *RouterLoggerSuite) TestUndecodableComparatorResponseIsInternal() {
	l := NewRouterLogger(s.conn, Config{}, s.slogger, WithComparator(brokenComparator{}))

	err := l.Log(s.ctx(), updateRequest(), "", "u1", nil, nil, StatusSuccess)
	s.True(router.IsInternal(err))
}

func (s *RouterLoggerSuite) TestPanicIsReportedAsInternal() {
	l := NewRouterLogger(s.conn, Config{}, s.slogger, WithComparator(panickingComparator{}))

	err := l.Log(s.ctx(), updateRequest(), "", "u1", nil, nil, StatusSuccess)
	s.True(router.IsInternal(err))
	s.Contains(err.Error(), "panic")
}

func (s *RouterLoggerSuite) TestMissingClockIsInternal() {
	l := NewRouterLogger(s.conn, Config{}, s.slogger, WithClock(func() time.Time { return time.Time{} }))

	err := l.Log(s.ctx(), updateRequest(), "", "u1", nil, nil, StatusSuccess)
	s.True(router.IsInternal(err))
	s.ErrorIs(err, ErrMissingTimestamp)
}

type brokenComparator struct{}

func (brokenComparator) ChangedFields(context.Context, ComparePolicy, json.RawMessage, json.RawMessage) ([]string, error) {
	return nil, errors.New("activity: getChangedWatchedFields returned a non string-list response")
}

type panickingComparator struct{}

func (panickingComparator) ChangedFields(context.Context, ComparePolicy, json.RawMessage, json.RawMessage) ([]string, error) {
	panic("nil map")
}

func strPtr(v string) *string { return &v }
