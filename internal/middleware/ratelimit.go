package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/iliyamo/field-reservation/internal/config"
)

// limiterScript implements a token bucket in Redis.  It returns
// {allowed, remaining_tokens, retry_after_ms}.
var limiterScript = redis.NewScript(`
	local key = KEYS[1]
	local now_ms = tonumber(ARGV[1])
	local capacity = tonumber(ARGV[2])
	local refill_tokens = tonumber(ARGV[3])
	local interval_ms = tonumber(ARGV[4])
	local ttl_seconds = tonumber(ARGV[5])

	local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
	local tokens = tonumber(state[1])
	local last_refill = tonumber(state[2])

	if tokens == nil or last_refill == nil then
		tokens = capacity
		last_refill = now_ms
	end

	if interval_ms > 0 and refill_tokens > 0 then
		local elapsed = math.max(0, now_ms - last_refill)
		local intervals = math.floor(elapsed / interval_ms)
		if intervals > 0 then
			tokens = math.min(capacity, tokens + (intervals * refill_tokens))
			last_refill = last_refill + (intervals * interval_ms)
		end
	end

	local allowed = 0
	local retry_after_ms = 0
	if tokens > 0 then
		allowed = 1
		tokens = tokens - 1
	else
		local until_next = interval_ms - (now_ms - last_refill)
		if until_next < 0 then until_next = 0 end
		retry_after_ms = until_next
	end

	redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last_refill, 'capacity', capacity)
	redis.call('EXPIRE', key, ttl_seconds)

	return { allowed, tokens, retry_after_ms }
`)

// NewTokenBucket returns a rate limiting middleware.  Buckets live in Redis
// when a client is available so every instance shares them; otherwise, and
// whenever a Redis call fails, an in-process limiter keyed the same way is
// used.  secret verifies bearer tokens for the user-keyed strategies.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, secret string) echo.MiddlewareFunc {
	if !cfg.Enabled {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	local := newLocalLimiter(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := buildRateKey(cfg, c, secret)

			var (
				allowed   bool
				remaining int64
				retryMs   int64
			)
			redisOK := false
			if rdb != nil {
				allowed, remaining, retryMs, redisOK = runScript(c, rdb, cfg, key)
			}
			if !redisOK {
				allowed, remaining, retryMs = local.take(key)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.Capacity))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					zerolog.Ctx(c.Request().Context()).Info().Str("key", key).Int64("retry_ms", retryMs).Msg("ratelimit: blocked")
				}
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}

			if cfg.Debug {
				c.Response().Header().Set("X-RateLimit-Key", key)
			}
			return next(c)
		}
	}
}

func runScript(c echo.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string) (allowed bool, remaining, retryMs int64, ok bool) {
	args := []interface{}{
		time.Now().UnixMilli(),
		cfg.Capacity,
		cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(),
		int64(cfg.TTL / time.Second),
	}
	vals, err := limiterScript.Run(c.Request().Context(), rdb, []string{key}, args...).Result()
	if err != nil {
		zerolog.Ctx(c.Request().Context()).Warn().Err(err).Str("key", key).Msg("ratelimit: redis error, using local limiter")
		return false, 0, 0, false
	}
	arr, isArr := vals.([]interface{})
	if !isArr || len(arr) != 3 {
		return false, 0, 0, false
	}
	return asInt64(arr[0]) == 1, asInt64(arr[1]), asInt64(arr[2]), true
}

// localLimiter keeps one x/time/rate limiter per key.  Entries idle for
// longer than the configured TTL are dropped on the next sweep.
type localLimiter struct {
	cfg       config.RateLimitConfig
	limiters  sync.Map // key -> *localEntry
	lastSweep time.Time
	mu        sync.Mutex
}

type localEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

func newLocalLimiter(cfg config.RateLimitConfig) *localLimiter {
	return &localLimiter{cfg: cfg, lastSweep: time.Now()}
}

func (l *localLimiter) get(key string, now time.Time) *localEntry {
	if v, ok := l.limiters.Load(key); ok {
		return v.(*localEntry)
	}
	lim := rate.NewLimiter(rate.Limit(l.cfg.PerSecond()), l.cfg.Capacity)
	actual, _ := l.limiters.LoadOrStore(key, &localEntry{lim: lim, lastSeen: now})
	return actual.(*localEntry)
}

func (l *localLimiter) take(key string) (allowed bool, remaining, retryMs int64) {
	now := time.Now()
	l.sweep(now)

	e := l.get(key, now)
	e.mu.Lock()
	e.lastSeen = now
	e.mu.Unlock()

	r := e.lim.ReserveN(now, 1)
	if !r.OK() {
		return false, 0, l.cfg.RefillInterval.Milliseconds()
	}
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return false, 0, delay.Milliseconds()
	}
	return true, int64(e.lim.TokensAt(now)), 0
}

func (l *localLimiter) sweep(now time.Time) {
	l.mu.Lock()
	if now.Sub(l.lastSweep) < l.cfg.TTL {
		l.mu.Unlock()
		return
	}
	l.lastSweep = now
	l.mu.Unlock()

	l.limiters.Range(func(k, v any) bool {
		e := v.(*localEntry)
		e.mu.Lock()
		idle := now.Sub(e.lastSeen) > l.cfg.TTL
		e.mu.Unlock()
		if idle {
			l.limiters.Delete(k)
		}
		return true
	})
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}

func buildRateKey(cfg config.RateLimitConfig, c echo.Context, secret string) string {
	parts := []string{cfg.Prefix}
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	uid := userID(c, secret)
	route := c.Request().Method + " " + c.Path()

	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", uid)
	case "route":
		parts = append(parts, "route", route)
	case "ip_user":
		parts = append(parts, "ip", ip, "user", uid)
	case "ip_route":
		parts = append(parts, "ip", ip, "route", route)
	case "user_route":
		parts = append(parts, "user", uid, "route", route)
	default:
		parts = append(parts, "ip", ip, "user", uid, "route", route)
	}
	return strings.Join(parts, ":")
}
