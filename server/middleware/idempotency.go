package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/godamri/helix-activity/http/response"
	"github.com/godamri/helix-activity/pkg/contextx"
	"github.com/redis/go-redis/v9"
)

const processingMarker = "PROCESSING"

type IdempotencyConfig struct {
	HeaderKey string        `envconfig:"IDEMPOTENCY_HEADER" default:"Idempotency-Key" yaml:"header_key"`
	Expiry    time.Duration `envconfig:"IDEMPOTENCY_EXPIRY" default:"24h" yaml:"expiry"`
	// InFlightTTL bounds how long a crashed request keeps the key locked.
	InFlightTTL time.Duration `envconfig:"IDEMPOTENCY_INFLIGHT_TTL" default:"30s" yaml:"inflight_ttl"`
}

// storedResponse is what we cache in Redis.
type storedResponse struct {
	Status  int                 `json:"status"`
	Headers map[string][]string `json:"headers"`
	Body    []byte              `json:"body"`
}

type responseCapturer struct {
	http.ResponseWriter
	statusCode int
	body       bytes.Buffer
}

func (w *responseCapturer) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *responseCapturer) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a mutating request
// retried with the same key, so a retried create does not produce a second
// object and a second activity record.
func IdempotencyMiddleware(rdb redis.Cmdable, cfg IdempotencyConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.HeaderKey == "" {
		cfg.HeaderKey = "Idempotency-Key"
	}
	if cfg.InFlightTTL <= 0 {
		cfg.InFlightTTL = 30 * time.Second
	}
	return func(next http.Handler) http.Handler {
		if rdb == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(cfg.HeaderKey)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			// Scoped by principal to prevent cross-tenant collisions.
			principalID, ok := contextx.LookupAuthPrincipalID(r.Context())
			if !ok {
				principalID = "anon_ip:" + clientIP(r)
			}
			redisKey := "idempotency:" + principalID + ":" + key
			ctx := r.Context()

			acquired, err := rdb.SetNX(ctx, redisKey, processingMarker, cfg.InFlightTTL).Result()
			if err != nil {
				logger.ErrorContext(ctx, "Idempotency store unavailable", "error", err)
				response.ErrorJSON(w, r, http.StatusServiceUnavailable, response.ErrServiceUnavail, "idempotency store unavailable")
				return
			}

			if !acquired {
				val, err := rdb.Get(ctx, redisKey).Result()
				if err != nil {
					next.ServeHTTP(w, r)
					return
				}
				if val == processingMarker {
					response.ErrorJSON(w, r, http.StatusConflict, response.ErrConflict, "request is currently being processed")
					return
				}

				var stored storedResponse
				if err := json.Unmarshal([]byte(val), &stored); err == nil {
					logger.InfoContext(ctx, "Idempotency hit", "key", key, "principal", principalID)
					for k, v := range stored.Headers {
						for _, hv := range v {
							w.Header().Add(k, hv)
						}
					}
					w.Header().Set("X-Idempotency-Hit", "true")
					w.WriteHeader(stored.Status)
					_, _ = w.Write(stored.Body)
					return
				}

				logger.WarnContext(ctx, "Idempotency cache corrupted, reprocessing", "key", redisKey)
			}

			capturer := &responseCapturer{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(capturer, r)

			// Server errors stay retryable.
			if capturer.statusCode >= http.StatusInternalServerError {
				rdb.Del(ctx, redisKey)
				return
			}

			data, err := json.Marshal(storedResponse{
				Status:  capturer.statusCode,
				Headers: capturer.Header(),
				Body:    capturer.body.Bytes(),
			})
			if err != nil {
				rdb.Del(ctx, redisKey)
				return
			}
			rdb.Set(ctx, redisKey, data, cfg.Expiry)
		})
	}
}
