package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/godamri/helix-activity/http/response"
	"github.com/godamri/helix-activity/pkg/contextx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRemote(t *testing.T) (*HTTPConnection, *string) {
	t.Helper()

	seenTx := new(string)
	r := New()
	r.HandleCreate("audit/activity", func(ctx context.Context, req CreateRequest) (Response, error) {
		*seenTx, _ = contextx.LookupTransactionID(ctx)
		return Response{ID: "rec-1", Content: req.Content}, nil
	})
	r.HandleAction("audit", "getChangedWatchedFields", func(context.Context, ActionRequest) (Response, error) {
		return Response{Content: json.RawMessage(`["mail"]`)}, nil
	})
	r.HandleAction("audit", "explode", func(context.Context, ActionRequest) (Response, error) {
		return Response{}, errors.New("disk full")
	})
	r.HandleAction("audit", "unavailable", func(context.Context, ActionRequest) (Response, error) {
		return Response{}, NewUnavailable("sink offline", nil)
	})

	// Mimic the server's trace middleware so the transaction id reaches handlers.
	h := NewHTTPHandler(r)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := req.Context()
		if tx := req.Header.Get(contextx.HeaderTransactionID); tx != "" {
			ctx = contextx.WithTransactionID(ctx, tx)
		}
		h.ServeHTTP(w, req.WithContext(ctx))
	}))
	t.Cleanup(srv.Close)

	return NewHTTPConnection(srv.URL, 0), seenTx
}

func TestHTTPConnectionCreate(t *testing.T) {
	conn, seenTx := newRemote(t)
	ctx := contextx.WithTransactionID(context.Background(), "tx-9")

	resp, err := conn.Create(ctx, CreateRequest{ResourcePath: "/audit/activity", Content: json.RawMessage(`{"eventName":"activity"}`)})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", resp.ID)
	assert.JSONEq(t, `{"eventName":"activity"}`, string(resp.Content))
	assert.Equal(t, "tx-9", *seenTx)
}

func TestHTTPConnectionAction(t *testing.T) {
	conn, _ := newRemote(t)

	resp, err := conn.Action(context.Background(), ActionRequest{ResourcePath: "audit", Action: "getChangedWatchedFields", Content: json.RawMessage(`{"before":null,"after":null}`)})
	require.NoError(t, err)
	assert.JSONEq(t, `["mail"]`, string(resp.Content))
}

func TestHTTPConnectionErrors(t *testing.T) {
	conn, _ := newRemote(t)

	t.Run("resource error keeps code and message", func(t *testing.T) {
		_, err := conn.Action(context.Background(), ActionRequest{ResourcePath: "audit", Action: "unavailable"})
		rerr, ok := AsResourceError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusServiceUnavailable, rerr.Code)
		assert.Equal(t, response.ErrServiceUnavail, rerr.Reason)
		assert.Equal(t, "sink offline", rerr.Message)
	})

	t.Run("plain handler error surfaces as internal", func(t *testing.T) {
		_, err := conn.Action(context.Background(), ActionRequest{ResourcePath: "audit", Action: "explode"})
		assert.True(t, IsInternal(err))
	})

	t.Run("unknown resource", func(t *testing.T) {
		_, err := conn.Create(context.Background(), CreateRequest{ResourcePath: "audit/config", Content: json.RawMessage(`{}`)})
		rerr, ok := AsResourceError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusNotFound, rerr.Code)
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		dead := NewHTTPConnection("http://127.0.0.1:1", 0)
		_, err := dead.Create(context.Background(), CreateRequest{ResourcePath: "audit/activity"})
		rerr, ok := AsResourceError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusServiceUnavailable, rerr.Code)
	})
}

func TestHTTPHandlerRejectsInvalidJSON(t *testing.T) {
	h := NewHTTPHandler(New())
	req := httptest.NewRequest(http.MethodPost, "/audit/activity", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var env response.RawEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.False(t, env.Success)
	assert.Equal(t, response.ErrBadRequest, env.Error.Code)
}

func TestHTTPConnectionNonEnvelopeResponse(t *testing.T) {
	serve := func(status int) *HTTPConnection {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.WriteHeader(status)
			_, _ = w.Write([]byte("<html>ok</html>"))
		}))
		t.Cleanup(srv.Close)
		return NewHTTPConnection(srv.URL, 0)
	}

	t.Run("success status with html is internal", func(t *testing.T) {
		_, err := serve(http.StatusOK).Create(context.Background(), CreateRequest{ResourcePath: "audit/activity"})
		rerr, ok := AsResourceError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusInternalServerError, rerr.Code)
		assert.True(t, IsInternal(err))
	})

	t.Run("error status is kept", func(t *testing.T) {
		_, err := serve(http.StatusBadGateway).Create(context.Background(), CreateRequest{ResourcePath: "audit/activity"})
		rerr, ok := AsResourceError(err)
		require.True(t, ok)
		assert.Equal(t, http.StatusBadGateway, rerr.Code)
	})
}

func TestHTTPConnectionSendsCredentials(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		gotAuth = req.Header.Get("Authorization")
		response.JSON(w, req, http.StatusCreated, Response{ID: "rec-1"})
	}))
	t.Cleanup(srv.Close)

	conn := NewHTTPConnection(srv.URL, 0, WithBearerToken("svc-token"))
	resp, err := conn.Create(context.Background(), CreateRequest{ResourcePath: "audit/activity", Content: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Equal(t, "rec-1", resp.ID)
	assert.Equal(t, "Bearer svc-token", gotAuth)
}
