package database

import (
	"context"
	"database/sql"
	"errors"
	"net/http"

	"github.com/godamri/helix-activity/http/response"
	"github.com/godamri/helix-activity/router"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// MapError translates a driver error into a router.ResourceError so it can
// cross the routing layer with a meaningful status. Anything unrecognised is
// treated as the store being unavailable.
func MapError(err error) error {
	if err == nil {
		return nil
	}

	if IsNoRows(err) {
		return router.NewNotFound("record not found")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return withReason(router.NewResourceError(http.StatusConflict, pgErr.Detail, err), response.ErrAlreadyExists)
		case "23503": // foreign_key_violation
			return router.NewResourceError(http.StatusConflict, "referenced record not found", err)
		case "23502", "23514": // not_null_violation, check_violation
			return withReason(router.NewResourceError(http.StatusBadRequest, pgErr.Message, err), response.ErrValidation)
		case "40001": // serialization_failure
			return router.NewResourceError(http.StatusPreconditionFailed, "retry transaction", err)
		case "57014": // query_canceled
			return router.NewResourceError(http.StatusGatewayTimeout, "query timeout", err)
		}
		return router.NewInternalError(err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return router.NewResourceError(http.StatusGatewayTimeout, "query timeout", err)
	}

	return router.NewUnavailable("database unavailable", err)
}

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func withReason(e *router.ResourceError, reason string) *router.ResourceError {
	e.Reason = reason
	return e
}
