package middleware

import (
	"encoding/hex"
	"net/http"

	"github.com/godamri/helix-activity/pkg/contextx"
	"github.com/google/uuid"
)

// TraceIDMiddleware assigns trace, request and transaction ids. An incoming
// X-Transaction-Id is kept so activity records of one logical transaction
// share it across services; otherwise the trace id is used.
func TraceIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(contextx.HeaderTraceID)
		if traceID == "" {
			uid := uuid.New()
			traceID = hex.EncodeToString(uid[:])
		}

		reqID := r.Header.Get(contextx.HeaderRequestID)
		if reqID == "" {
			reqID = uuid.NewString()
		}

		txID := r.Header.Get(contextx.HeaderTransactionID)
		if txID == "" {
			txID = traceID
		}

		w.Header().Set(contextx.HeaderTraceID, traceID)
		w.Header().Set(contextx.HeaderRequestID, reqID)
		w.Header().Set(contextx.HeaderTransactionID, txID)

		ctx := r.Context()
		ctx = contextx.WithTraceID(ctx, traceID)
		ctx = contextx.WithRequestID(ctx, reqID)
		ctx = contextx.WithTransactionID(ctx, txID)
		ctx = contextx.WithEntryPoint(ctx, "http")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
