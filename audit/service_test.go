package audit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/godamri/helix-activity/activity"
	"github.com/godamri/helix-activity/pkg/contextx"
	"github.com/godamri/helix-activity/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type recordingSink struct {
	mu      sync.Mutex
	records []Record
	err     error
}

func (r *recordingSink) Write(_ context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records = append(r.records, rec)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	sink   *recordingSink
	router *router.Router
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.sink = &recordingSink{}
	comparator, err := NewFieldComparator([]string{"/name", "/mail"}, []string{"/password"})
	s.Require().NoError(err)

	s.router = router.New()
	NewService(s.sink, comparator, nil).Register(s.router)
}

func (s *ServiceSuite) TestActivityLoggerEndToEnd() {
	logger := activity.NewRouterLogger(s.router, activity.Config{}, nil)
	ctx := contextx.WithAuthPrincipalID(context.Background(), "openidm-admin")
	ctx = contextx.WithTransactionID(ctx, "tx-1")

	err := logger.Log(ctx,
		&activity.Request{Type: activity.RequestUpdate, ResourcePath: "managed/user/u1"},
		"update", "u1",
		json.RawMessage(`{"name":"a","password":"x","_rev":"1"}`),
		json.RawMessage(`{"name":"b","password":"y","_rev":"2"}`),
		activity.StatusSuccess,
	)
	s.Require().NoError(err)

	s.Require().Len(s.sink.records, 1)
	rec := s.sink.records[0]
	s.NotEmpty(rec.ID)
	s.Equal([]string{"/name"}, rec.ChangedFields)
	s.True(rec.PasswordChanged)
	s.Require().NotNil(rec.Revision)
	s.Equal("2", *rec.Revision)
	s.Equal("openidm-admin", rec.UserID)
	s.Equal("openidm-admin", rec.RunAs)
	s.Equal("tx-1", rec.TransactionID)
}

func (s *ServiceSuite) TestSinkFailureSurfacesAsResourceError() {
	s.sink.err = errors.New("disk full")
	logger := activity.NewRouterLogger(s.router, activity.Config{}, nil)

	err := logger.Log(context.Background(), &activity.Request{Type: activity.RequestDelete}, "", "u1", nil, nil, activity.StatusSuccess)

	rerr, ok := router.AsResourceError(err)
	s.Require().True(ok)
	s.Equal(http.StatusServiceUnavailable, rerr.Code)
}

func (s *ServiceSuite) TestSinkFailureSuspended() {
	s.sink.err = errors.New("disk full")
	logger := activity.NewRouterLogger(s.router, activity.Config{SuspendExceptions: true}, nil)

	err := logger.Log(context.Background(), &activity.Request{Type: activity.RequestDelete}, "", "u1", nil, nil, activity.StatusSuccess)
	s.NoError(err)
}

func (s *ServiceSuite) TestCreateRejectsInvalidRecords() {
	cases := map[string]string{
		"not json":        `{`,
		"wrong event":     `{"eventName":"access","timestamp":1}`,
		"missing instant": `{"eventName":"activity"}`,
	}
	for name, body := range cases {
		s.Run(name, func() {
			_, err := s.router.Create(context.Background(), router.CreateRequest{
				ResourcePath: activity.ActivityResourcePath,
				Content:      json.RawMessage(body),
			})
			rerr, ok := router.AsResourceError(err)
			s.Require().True(ok)
			s.Equal(http.StatusBadRequest, rerr.Code)
		})
	}
	s.Empty(s.sink.records)
}

func (s *ServiceSuite) TestCreateHonoursRequestedID() {
	resp, err := s.router.Create(context.Background(), router.CreateRequest{
		ResourcePath:  activity.ActivityResourcePath,
		NewResourceID: "fixed-id",
		Content:       json.RawMessage(`{"eventName":"activity","timestamp":5,"status":"SUCCESS"}`),
	})
	s.Require().NoError(err)
	s.Equal("fixed-id", resp.ID)

	var rec Record
	s.Require().NoError(json.Unmarshal(resp.Content, &rec))
	s.Equal("fixed-id", rec.ID)
	s.Equal([]string{}, rec.ChangedFields)
}

func (s *ServiceSuite) TestCompareActionRejectsBadContent() {
	_, err := s.router.Action(context.Background(), router.ActionRequest{
		ResourcePath: activity.AuditResourcePath,
		Action:       string(activity.PolicyWatchedFields),
		Content:      json.RawMessage(`[1,2]`),
	})
	rerr, ok := router.AsResourceError(err)
	s.Require().True(ok)
	s.Equal(http.StatusBadRequest, rerr.Code)
}

func TestMultiSink(t *testing.T) {
	ok := &recordingSink{}
	failing := &recordingSink{err: errors.New("offline")}

	err := MultiSink{failing, ok}.Write(context.Background(), Record{ID: "1"})
	require.Error(t, err)
	assert.Len(t, ok.records, 1, "healthy sinks still receive the record")
	assert.NoError(t, MultiSink{}.Write(context.Background(), Record{}))
}

func TestConfigUses(t *testing.T) {
	cfg := Config{Sinks: []string{SinkStdout, SinkRedis}}
	assert.True(t, cfg.Uses(SinkRedis))
	assert.False(t, cfg.Uses(SinkKafka))
}
