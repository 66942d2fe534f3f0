package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/godamri/helix-activity/http/response"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrUntrustedSource    = errors.New("untrusted source")
)

// AuthPayload is the transport-neutral view of a request a strategy sees.
type AuthPayload struct {
	Headers    map[string]string
	RemoteAddr string
	Method     string
	Path       string
}

// AuthStrategy resolves the principal and stores it with contextx. The
// principal id later becomes the actor of every activity record.
type AuthStrategy interface {
	Authenticate(ctx context.Context, payload AuthPayload) (context.Context, error)
}

type AuthMiddleware struct {
	strategy AuthStrategy
}

func NewAuthMiddleware(strategy AuthStrategy) *AuthMiddleware {
	if strategy == nil {
		strategy = AnonymousStrategy{}
	}
	return &AuthMiddleware{strategy: strategy}
}

func (m *AuthMiddleware) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, err := m.strategy.Authenticate(r.Context(), AuthPayload{
			Headers:    firstValues(r.Header),
			RemoteAddr: r.RemoteAddr,
			Method:     r.Method,
			Path:       r.URL.Path,
		})
		if err != nil {
			status, code := authFailure(err)
			response.ErrorJSON(w, r, status, code, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func authFailure(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUntrustedSource):
		return http.StatusForbidden, response.ErrForbidden
	case errors.Is(err, ErrMissingCredentials):
		return http.StatusUnauthorized, response.ErrMissingToken
	default:
		return http.StatusUnauthorized, response.ErrInvalidToken
	}
}

// GRPCUnaryInterceptor authenticates unary calls. Methods whose full name
// starts with one of skipPrefixes (e.g. the health service) pass through.
func (m *AuthMiddleware) GRPCUnaryInterceptor(skipPrefixes ...string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		for _, p := range skipPrefixes {
			if strings.HasPrefix(info.FullMethod, p) {
				return handler(ctx, req)
			}
		}

		md, _ := metadata.FromIncomingContext(ctx)
		remoteAddr := "0.0.0.0:0"
		if p, ok := peer.FromContext(ctx); ok {
			remoteAddr = p.Addr.String()
		}

		authCtx, err := m.strategy.Authenticate(ctx, AuthPayload{
			Headers:    firstValues(md),
			RemoteAddr: remoteAddr,
			Method:     info.FullMethod,
			Path:       info.FullMethod,
		})
		if err != nil {
			if errors.Is(err, ErrUntrustedSource) {
				return nil, status.Error(codes.PermissionDenied, err.Error())
			}
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		return handler(authCtx, req)
	}
}

// firstValues flattens HTTP headers or gRPC metadata (lowercase keys) into
// canonical header names.
func firstValues[M ~map[string][]string](in M) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		if len(v) > 0 {
			out[http.CanonicalHeaderKey(k)] = v[0]
		}
	}
	return out
}

// GetHeader looks a header up case-insensitively.
func (p *AuthPayload) GetHeader(key string) string {
	if v, ok := p.Headers[http.CanonicalHeaderKey(key)]; ok {
		return v
	}
	for k, v := range p.Headers {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
