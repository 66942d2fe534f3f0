package crypto

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("crypto: invalid token")
	ErrExpiredToken = errors.New("crypto: token expired")
)

type JWKSVerifier interface {
	VerifyToken(ctx context.Context, token string) (*HelixClaims, error)
}

// JWKSConfig locates the identity provider whose tokens carry the actor.
type JWKSConfig struct {
	URL             string        `envconfig:"JWKS_URL" yaml:"url"`
	Issuer          string        `envconfig:"JWKS_ISSUER" yaml:"issuer"`
	RefreshInterval time.Duration `envconfig:"JWKS_REFRESH_INTERVAL" default:"15m" yaml:"refresh_interval"`
}

// minOnDemandRefresh bounds how often an unknown kid may trigger a fetch.
const minOnDemandRefresh = 10 * time.Second

type jwks struct {
	Keys []jsonWebKey `json:"keys"`
}

type jsonWebKey struct {
	Kty string `json:"kty"`
	Use string `json:"use"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet verifies RS256 tokens against a cached copy of the provider's
// signing keys.
type KeySet struct {
	url    string
	issuer string
	client *http.Client
	logger *slog.Logger

	mu          sync.RWMutex
	keys        map[string]*rsa.PublicKey
	lastRefresh time.Time
}

// NewJWKSCachingClient fetches the key set once and refreshes it until ctx is done.
func NewJWKSCachingClient(ctx context.Context, cfg JWKSConfig, logger *slog.Logger) (*KeySet, error) {
	if cfg.URL == "" || cfg.Issuer == "" {
		return nil, errors.New("crypto: JWKS_URL and JWKS_ISSUER are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.RefreshInterval
	if interval <= 0 {
		interval = 15 * time.Minute
	}

	ks := &KeySet{
		url:    cfg.URL,
		issuer: cfg.Issuer,
		client: &http.Client{Timeout: 5 * time.Second},
		logger: logger.With("component", "jwks"),
		keys:   map[string]*rsa.PublicKey{},
	}
	if err := ks.refresh(ctx); err != nil {
		return nil, fmt.Errorf("crypto: initial JWKS fetch: %w", err)
	}

	go ks.refreshLoop(ctx, interval)
	return ks, nil
}

func (ks *KeySet) refreshLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			if err := ks.refresh(fetchCtx); err != nil {
				// Old keys stay in place.
				ks.logger.Error("JWKS refresh failed", "error", err, "url", ks.url)
			}
			cancel()
		}
	}
}

func (ks *KeySet) refresh(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ks.url, nil)
	if err != nil {
		return err
	}
	resp, err := ks.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", ks.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d", ks.url, resp.StatusCode)
	}

	var set jwks
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return fmt.Errorf("decode key set: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if k.Kty != "RSA" || k.Use != "sig" || k.Kid == "" {
			ks.logger.Debug("Skipping unusable JWK", "kid", k.Kid, "kty", k.Kty, "use", k.Use)
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			ks.logger.Warn("Skipping malformed JWK", "kid", k.Kid, "error", err)
			continue
		}
		keys[k.Kid] = pub
	}
	if len(keys) == 0 {
		return errors.New("key set has no RSA signing keys")
	}

	ks.mu.Lock()
	ks.keys = keys
	ks.lastRefresh = time.Now()
	ks.mu.Unlock()
	return nil
}

func (k jsonWebKey) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	exp := new(big.Int).SetBytes(e)
	if exp.Sign() == 0 || !exp.IsInt64() || exp.Int64() > 1<<31-1 {
		return nil, errors.New("exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: int(exp.Int64())}, nil
}

// lookup returns the key for kid, refetching the set at most once per
// minOnDemandRefresh when the kid is unknown (key rotation).
func (ks *KeySet) lookup(ctx context.Context, kid string) (*rsa.PublicKey, bool) {
	ks.mu.RLock()
	key, ok := ks.keys[kid]
	stale := time.Since(ks.lastRefresh) >= minOnDemandRefresh
	ks.mu.RUnlock()
	if ok || !stale {
		return key, ok
	}

	ks.logger.WarnContext(ctx, "Unknown JWT key id, refreshing key set", "kid", kid)
	if err := ks.refresh(ctx); err != nil {
		ks.logger.ErrorContext(ctx, "JWKS refresh failed", "error", err, "url", ks.url)
		return nil, false
	}

	ks.mu.RLock()
	defer ks.mu.RUnlock()
	key, ok = ks.keys[kid]
	return key, ok
}

func (ks *KeySet) VerifyToken(ctx context.Context, token string) (*HelixClaims, error) {
	claims := &HelixClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := ks.lookup(ctx, kid)
		if !ok {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return key, nil
	},
		jwt.WithValidMethods([]string{"RS256", "RS384", "RS512"}),
		jwt.WithIssuer(ks.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
