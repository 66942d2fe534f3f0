package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/godamri/helix-activity/crypto"
	"github.com/godamri/helix-activity/pkg/contextx"
)

// JWTStrategy authenticates bearer tokens against the identity provider's
// JWKS. The token subject becomes the activity actor.
type JWTStrategy struct {
	verifier crypto.JWKSVerifier
	logger   *slog.Logger
}

func NewJWTStrategy(verifier crypto.JWKSVerifier, logger *slog.Logger) *JWTStrategy {
	if logger == nil {
		logger = slog.Default()
	}
	return &JWTStrategy{verifier: verifier, logger: logger}
}

func (s *JWTStrategy) Authenticate(ctx context.Context, payload AuthPayload) (context.Context, error) {
	authHeader := payload.GetHeader("Authorization")
	if authHeader == "" {
		return nil, fmt.Errorf("%w: authorization header", ErrMissingCredentials)
	}

	scheme, tokenStr, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || tokenStr == "" {
		return nil, fmt.Errorf("invalid authorization header format")
	}

	claims, err := s.verifier.VerifyToken(ctx, tokenStr)
	if err != nil {
		s.logger.WarnContext(ctx, "JWT verification failed", "error", err, "ip", payload.RemoteAddr)
		return nil, fmt.Errorf("invalid token")
	}
	id, typ := claims.Principal()
	if id == "" {
		return nil, fmt.Errorf("invalid token: no subject")
	}

	ctx = contextx.WithAuthPrincipalID(ctx, id)
	ctx = contextx.WithAuthPrincipalType(ctx, typ)
	ctx = contextx.WithAuthRoles(ctx, claims.RoleList())
	if claims.SessionID != "" {
		ctx = contextx.WithAuthSessionID(ctx, claims.SessionID)
	}
	return ctx, nil
}

// AnonymousStrategy lets every request through without a principal; the
// activity actor is then left empty.
type AnonymousStrategy struct{}

func (AnonymousStrategy) Authenticate(ctx context.Context, _ AuthPayload) (context.Context, error) {
	return ctx, nil
}
