package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/godamri/helix-activity/http/response"
	"github.com/godamri/helix-activity/router"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   int
		wantReason string
	}{
		{"no rows", fmt.Errorf("select: %w", sql.ErrNoRows), http.StatusNotFound, response.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505", Detail: "Key (id)=(1) already exists."}, http.StatusConflict, response.ErrAlreadyExists},
		{"foreign key", &pgconn.PgError{Code: "23503"}, http.StatusConflict, response.ErrConflict},
		{"check", &pgconn.PgError{Code: "23514", Message: "bad status"}, http.StatusBadRequest, response.ErrValidation},
		{"serialization", &pgconn.PgError{Code: "40001"}, http.StatusPreconditionFailed, response.ErrVersionMismatch},
		{"canceled", &pgconn.PgError{Code: "57014"}, http.StatusGatewayTimeout, response.ErrGatewayTimeout},
		{"other pg error", &pgconn.PgError{Code: "42P01"}, http.StatusInternalServerError, response.ErrSystem},
		{"deadline", context.DeadlineExceeded, http.StatusGatewayTimeout, response.ErrGatewayTimeout},
		{"connection", errors.New("dial tcp: connection refused"), http.StatusServiceUnavailable, response.ErrServiceUnavail},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rerr, ok := router.AsResourceError(MapError(tt.err))
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, rerr.Code)
			assert.Equal(t, tt.wantReason, rerr.Reason)
		})
	}

	assert.NoError(t, MapError(nil))
}
