package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/godamri/helix-activity/http/response"
	"github.com/godamri/helix-activity/pkg/contextx"
	"github.com/redis/go-redis/v9"
)

type RateLimitConfig struct {
	// Rate requests per Period, 0 disables limiting.
	Rate   int           `envconfig:"RATE_LIMIT" default:"0" yaml:"rate" validate:"gte=0"`
	Period time.Duration `envconfig:"RATE_LIMIT_PERIOD" default:"1s" yaml:"period"`
	Burst  int           `envconfig:"RATE_LIMIT_BURST" default:"10" yaml:"burst" validate:"gte=0"`
}

// luaGCRA implements the Generic Cell Rate Algorithm. It returns -1 when
// the request is allowed, otherwise the seconds until it would be.
var luaGCRA = redis.NewScript(`
	local key = KEYS[1]
	local rate = tonumber(ARGV[1])
	local period = tonumber(ARGV[2])
	local burst = tonumber(ARGV[3])

	local emission_interval = period / rate
	local now = redis.call("TIME")
	local now_ts = tonumber(now[1]) + (tonumber(now[2]) / 1000000)

	local tat = redis.call("GET", key)
	if not tat then
		tat = now_ts
	else
		tat = tonumber(tat)
	end
	tat = math.max(now_ts, tat)

	local new_tat = tat + emission_interval
	local allow_at = new_tat - (burst * emission_interval)

	if allow_at <= now_ts then
		redis.call("SET", key, new_tat, "EX", math.ceil(period * 2))
		return -1
	end

	return math.ceil(allow_at - now_ts)
`)

// RateLimitMiddleware throttles per principal, or per client IP when the
// request is anonymous. It fails open when Redis is unreachable.
func RateLimitMiddleware(rdb redis.Scripter, cfg RateLimitConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if cfg.Rate <= 0 || rdb == nil {
			return next
		}
		limit := strconv.Itoa(cfg.Rate)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity := "ip:" + clientIP(r)
			if id, ok := contextx.LookupAuthPrincipalID(r.Context()); ok {
				identity = "user:" + id
			}

			res, err := luaGCRA.Run(r.Context(), rdb, []string{"rl:" + identity}, cfg.Rate, cfg.Period.Seconds(), cfg.Burst).Int64()
			if err != nil {
				logger.WarnContext(r.Context(), "Rate limiter unavailable, allowing request", "error", err)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", limit)
			if res >= 0 {
				w.Header().Set("Retry-After", strconv.FormatInt(res, 10))
				response.ErrorJSON(w, r, http.StatusTooManyRequests, response.ErrRateLimited, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP assumes the ingress strips untrusted X-Forwarded-For headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xrip := r.Header.Get("X-Real-Ip"); xrip != "" {
		return xrip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
