package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	"github.com/godamri/helix-activity/pkg/contextx"
)

// TrustedHeaderStrategy accepts identity headers set by the gateway, but
// only from connections originating in a trusted proxy range.
type TrustedHeaderStrategy struct {
	trustedCIDRs []*net.IPNet
	logger       *slog.Logger

	headerUserID    string
	headerRoles     string
	headerActorType string
}

type TrustedHeaderConfig struct {
	TrustedProxies  []string `envconfig:"AUTH_TRUSTED_PROXIES" yaml:"trusted_proxies"`
	HeaderUserID    string   `envconfig:"AUTH_HEADER_USER_ID" default:"X-Helix-User-ID" yaml:"header_user_id"`
	HeaderRoles     string   `envconfig:"AUTH_HEADER_ROLES" default:"X-Helix-Role" yaml:"header_roles"`
	HeaderActorType string   `envconfig:"AUTH_HEADER_ACTOR_TYPE" default:"X-Helix-Actor-Type" yaml:"header_actor_type"`
}

func NewTrustedHeaderStrategy(cfg TrustedHeaderConfig, logger *slog.Logger) (*TrustedHeaderStrategy, error) {
	if len(cfg.TrustedProxies) == 0 {
		return nil, fmt.Errorf("auth: trusted proxies list cannot be empty in header mode")
	}

	cidrs := make([]*net.IPNet, 0, len(cfg.TrustedProxies))
	for _, cidr := range cfg.TrustedProxies {
		cidr = strings.TrimSpace(cidr)
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			ip := net.ParseIP(cidr)
			if ip == nil {
				return nil, fmt.Errorf("auth: invalid cidr %q", cidr)
			}
			bits := 32
			if ip.To4() == nil {
				bits = 128
			}
			ipNet = &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}
		}
		cidrs = append(cidrs, ipNet)
	}

	if cfg.HeaderUserID == "" {
		cfg.HeaderUserID = "X-Helix-User-ID"
	}
	if cfg.HeaderRoles == "" {
		cfg.HeaderRoles = "X-Helix-Role"
	}
	if cfg.HeaderActorType == "" {
		cfg.HeaderActorType = "X-Helix-Actor-Type"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &TrustedHeaderStrategy{
		trustedCIDRs:    cidrs,
		logger:          logger,
		headerUserID:    cfg.HeaderUserID,
		headerRoles:     cfg.HeaderRoles,
		headerActorType: cfg.HeaderActorType,
	}, nil
}

func (s *TrustedHeaderStrategy) Authenticate(ctx context.Context, payload AuthPayload) (context.Context, error) {
	host, _, err := net.SplitHostPort(payload.RemoteAddr)
	if err != nil {
		host = payload.RemoteAddr
	}
	ip := net.ParseIP(host)
	if ip == nil || !s.trusted(ip) {
		s.logger.WarnContext(ctx, "SECURITY ALERT: identity headers from untrusted source",
			"ip", host,
			"path", payload.Path,
		)
		return nil, ErrUntrustedSource
	}

	userID := payload.GetHeader(s.headerUserID)
	if userID == "" {
		return nil, fmt.Errorf("%w: identity header %s", ErrMissingCredentials, s.headerUserID)
	}

	roles := []string{}
	for _, role := range strings.Split(payload.GetHeader(s.headerRoles), ",") {
		if trimmed := strings.TrimSpace(role); trimmed != "" {
			roles = append(roles, trimmed)
		}
	}

	actorType := payload.GetHeader(s.headerActorType)
	if actorType == "" {
		actorType = "user"
	}

	ctx = contextx.WithAuthPrincipalID(ctx, userID)
	ctx = contextx.WithAuthPrincipalType(ctx, actorType)
	ctx = contextx.WithAuthRoles(ctx, roles)
	return ctx, nil
}

func (s *TrustedHeaderStrategy) trusted(ip net.IP) bool {
	for _, cidr := range s.trustedCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
