package contextx

import (
	"context"
)

type contextKey string

// Headers carrying the ids across process boundaries.
const (
	HeaderTraceID       = "X-Trace-Id"
	HeaderRequestID     = "X-Request-Id"
	HeaderTransactionID = "X-Transaction-Id"
)

const (
	AuthPrincipalIDKey   contextKey = "helix.auth_principal_id"   // sub (who)
	AuthPrincipalTypeKey contextKey = "helix.auth_principal_type" // user | service
	AuthRolesKey         contextKey = "helix.auth_roles"
	AuthSessionIDKey     contextKey = "helix.auth_session_id" // jti / sid

	TraceIDKey       contextKey = "helix.trace_id"
	TransactionIDKey contextKey = "helix.transaction_id" // spans every hop of one business operation
	RequestIDKey     contextKey = "helix.request_id"
	EntryPointKey    contextKey = "helix.entry_point" // http | grpc | internal
)

func GetTraceID(ctx context.Context) string { return getString(ctx, TraceIDKey, "untriaged") }
func WithTraceID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, TraceIDKey, v)
}

func GetRequestID(ctx context.Context) string { return getString(ctx, RequestIDKey, "") }
func WithRequestID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, RequestIDKey, v)
}

func GetEntryPoint(ctx context.Context) string { return getString(ctx, EntryPointKey, "unknown") }
func WithEntryPoint(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, EntryPointKey, v)
}

// LookupTransactionID reports the transaction id carried by ctx, if any.
// Unlike GetTraceID there is no placeholder: audit records must not invent one.
func LookupTransactionID(ctx context.Context) (string, bool) {
	return lookupString(ctx, TransactionIDKey)
}
func WithTransactionID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, TransactionIDKey, v)
}

func GetAuthPrincipalID(ctx context.Context) string { return getString(ctx, AuthPrincipalIDKey, "") }

// LookupAuthPrincipalID reports the authenticated principal, if any.
func LookupAuthPrincipalID(ctx context.Context) (string, bool) {
	return lookupString(ctx, AuthPrincipalIDKey)
}
func WithAuthPrincipalID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, AuthPrincipalIDKey, v)
}

func GetAuthPrincipalType(ctx context.Context) string {
	return getString(ctx, AuthPrincipalTypeKey, "user")
}
func WithAuthPrincipalType(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, AuthPrincipalTypeKey, v)
}

func GetAuthRoles(ctx context.Context) []string { return getStringSlice(ctx, AuthRolesKey) }
func WithAuthRoles(ctx context.Context, v []string) context.Context {
	return context.WithValue(ctx, AuthRolesKey, v)
}

func GetAuthSessionID(ctx context.Context) string { return getString(ctx, AuthSessionIDKey, "") }
func WithAuthSessionID(ctx context.Context, v string) context.Context {
	return context.WithValue(ctx, AuthSessionIDKey, v)
}

func getString(ctx context.Context, key contextKey, fallback string) string {
	if v, ok := lookupString(ctx, key); ok {
		return v
	}
	return fallback
}

// lookupString treats an empty value the same as a missing one.
func lookupString(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if val, ok := ctx.Value(key).(string); ok && val != "" {
		return val, true
	}
	return "", false
}

func getStringSlice(ctx context.Context, key contextKey) []string {
	if ctx == nil {
		return nil
	}
	if val, ok := ctx.Value(key).([]string); ok {
		return val
	}
	return nil
}
