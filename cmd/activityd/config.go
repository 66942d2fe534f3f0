package main

import (
	"time"

	"github.com/godamri/helix-activity/activity"
	"github.com/godamri/helix-activity/audit"
	"github.com/godamri/helix-activity/cache"
	"github.com/godamri/helix-activity/crypto"
	"github.com/godamri/helix-activity/database"
	"github.com/godamri/helix-activity/log"
	"github.com/godamri/helix-activity/managed"
	"github.com/godamri/helix-activity/messaging"
	"github.com/godamri/helix-activity/server"
	"github.com/godamri/helix-activity/server/middleware"
)

type Config struct {
	ServiceName string `envconfig:"SERVICE_NAME" default:"helix-activity" yaml:"service_name" validate:"required"`

	Log      log.Config        `yaml:"log"`
	Server   server.Config     `yaml:"server"`
	Activity activity.Config   `yaml:"activity"`
	Audit    audit.Config      `yaml:"audit"`
	Managed  managed.Config    `yaml:"managed"`
	Hash     crypto.HashConfig `yaml:"hash"`

	Database database.Config  `yaml:"database"`
	Redis    cache.Config     `yaml:"redis"`
	Kafka    messaging.Config `yaml:"kafka"`

	Router      RouterConfig                 `yaml:"router"`
	Auth        AuthConfig                   `yaml:"auth"`
	Feature     FeatureConfig                `yaml:"feature"`
	RateLimit   middleware.RateLimitConfig   `yaml:"rate_limit"`
	Idempotency middleware.IdempotencyConfig `yaml:"idempotency"`
}

// RouterConfig points the activity logger at a remote audit service. Empty
// means the in-process audit service handles records.
type RouterConfig struct {
	AuditURL string        `envconfig:"ROUTER_AUDIT_URL" yaml:"audit_url" validate:"omitempty,url"`
	Timeout  time.Duration `envconfig:"ROUTER_TIMEOUT" default:"5s" yaml:"timeout"`

	// AuditToken is sent as a bearer token to the remote audit service.
	AuditToken string `envconfig:"ROUTER_AUDIT_TOKEN" yaml:"audit_token"`

	// ServiceRole is required to call the exposed /router endpoint. The
	// endpoint is not mounted when authentication is off.
	ServiceRole string `envconfig:"ROUTER_SERVICE_ROLE" default:"audit-writer" yaml:"service_role" validate:"required"`
}

type AuthConfig struct {
	Mode   string                         `envconfig:"AUTH_MODE" default:"none" yaml:"mode" validate:"oneof=none header jwt"`
	Header middleware.TrustedHeaderConfig `yaml:"header"`
	JWKS   crypto.JWKSConfig              `yaml:"jwks"`
}

type FeatureConfig struct {
	// FlagsFile is an optional YAML flag file, reloaded while running.
	FlagsFile      string        `envconfig:"FEATURE_FLAGS_FILE" yaml:"flags_file"`
	ReloadInterval time.Duration `envconfig:"FEATURE_RELOAD_INTERVAL" default:"5s" yaml:"reload_interval"`
}
