package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/bluebricks/rba-harness/internal/client"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

type RouteLimit struct {
	PathPrefix      string
	RatePerInterval int
	Interval        time.Duration
	Burst           int
	Cost            int
}

type LimiterConfig struct {
	RatePerInterval int
	Interval        time.Duration
	Burst           int
	HeaderKeys      []string
	RouteLimits     []RouteLimit

	// Redis mode (optional)
	Redis     *client.RedisClient
	KeyPrefix string
	BucketTTL time.Duration

	// IdleTTL drops in-memory buckets not used for this long.
	IdleTTL time.Duration

	TrustedProxyIPHeaders []string
	TrustedProxyCIDRs     []string
}

// RateLimiter is a per-client token bucket. Buckets live in memory unless a
// Redis client is configured, in which case they are shared between
// instances; Redis errors let requests through.
type RateLimiter struct {
	mu        sync.Mutex
	cfg       LimiterConfig
	buckets   map[string]*memBucket
	lastSweep time.Time
	now       func() time.Time
	trustedN  []*net.IPNet
}

type memBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(cfg LimiterConfig) *RateLimiter {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "rl:"
	}
	if cfg.BucketTTL <= 0 {
		cfg.BucketTTL = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.RatePerInterval <= 0 {
		cfg.RatePerInterval = 50
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RatePerInterval
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		cfg:       cfg,
		buckets:   make(map[string]*memBucket),
		lastSweep: time.Now(),
		now:       time.Now,
		trustedN:  parseCIDRs(cfg.TrustedProxyCIDRs),
	}
}

func (rl *RateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		perInterval, interval, burst, cost := rl.cfg.RatePerInterval, rl.cfg.Interval, rl.cfg.Burst, 1
		prefix := ""
		for _, rlmt := range rl.cfg.RouteLimits {
			if strings.HasPrefix(r.URL.Path, rlmt.PathPrefix) {
				prefix = rlmt.PathPrefix
				if rlmt.RatePerInterval > 0 {
					perInterval = rlmt.RatePerInterval
				}
				if rlmt.Interval > 0 {
					interval = rlmt.Interval
				}
				if rlmt.Burst > 0 {
					burst = rlmt.Burst
				}
				if rlmt.Cost > 0 {
					cost = rlmt.Cost
				}
				break
			}
		}

		key := rl.buildKey(r) + "|" + prefix

		if rl.cfg.Redis != nil {
			ok, err := redisAllow(r.Context(), rl.cfg.Redis, rl.cfg.KeyPrefix+key,
				perInterval, interval, burst, cost, rl.cfg.BucketTTL)
			if err != nil {
				logger.Warnf("[RateLimit] redis degraded: %v", err)
				w.Header().Set("X-RateLimit-Degraded", "true")
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				tooManyRequests(w)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		now := rl.now()
		if !rl.bucket(key, perInterval, interval, burst, now).AllowN(now, cost) {
			tooManyRequests(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func tooManyRequests(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "Too Many Requests"})
}

func (rl *RateLimiter) buildKey(r *http.Request) string {
	ipStr := clientIP(r, rl.cfg.TrustedProxyIPHeaders, rl.trustedN).String()
	if len(rl.cfg.HeaderKeys) == 0 {
		return ipStr
	}
	parts := []string{ipStr}
	for _, h := range rl.cfg.HeaderKeys {
		if v := strings.TrimSpace(r.Header.Get(h)); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, "|")
}

func (rl *RateLimiter) bucket(key string, perInterval int, interval time.Duration, burst int, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if now.Sub(rl.lastSweep) >= rl.cfg.IdleTTL {
		rl.evictIdle(now)
	}
	b, ok := rl.buckets[key]
	if !ok {
		b = &memBucket{lim: rate.NewLimiter(rate.Limit(float64(perInterval)/interval.Seconds()), burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// evictIdle must be called with rl.mu held.
func (rl *RateLimiter) evictIdle(now time.Time) {
	for key, b := range rl.buckets {
		if now.Sub(b.lastSeen) >= rl.cfg.IdleTTL {
			delete(rl.buckets, key)
		}
	}
	rl.lastSweep = now
}

var luaScript = redis.NewScript(`
-- KEYS = bucket key
-- ARGV = now_ms, rate_per_sec, capacity, cost, ttl_sec
local key = KEYS[1]
local now = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local cap = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local data = redis.call("HMGET", key, "tokens", "ts")
local tokens = tonumber(data[1])
local ts = tonumber(data[2])

if not tokens or not ts then
  tokens = cap
  ts = now
else
  local elapsed = (now - ts) / 1000
  tokens = math.min(cap, tokens + (elapsed * rate))
  ts = now
end

local allowed = 0
if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "ts", ts)
redis.call("EXPIRE", key, ttl)

return allowed
`)

func redisAllow(ctx context.Context, rdb *client.RedisClient, key string,
	perInterval int, interval time.Duration, burst, cost int, ttl time.Duration,
) (bool, error) {
	var allowed int64
	err := rdb.Guard(ctx, func(ctx context.Context) error {
		var err error
		allowed, err = luaScript.Run(ctx, rdb.Client, []string{key},
			time.Now().UnixMilli(),
			float64(perInterval)/interval.Seconds(),
			burst,
			cost,
			int(ttl.Seconds()),
		).Int64()
		return err
	})
	if err != nil {
		return false, err
	}
	return allowed == 1, nil
}

// StatsHandler reports the limiter mode and, in memory mode, the number of keys.
func (rl *RateLimiter) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := struct {
		Mode         string `json:"mode"`
		InMemoryKeys int    `json:"in_memory_keys,omitempty"`
		Breaker      string `json:"breaker,omitempty"`
	}{Mode: "memory"}
	if rl.cfg.Redis != nil {
		stats.Mode = "redis"
		stats.Breaker = rl.cfg.Redis.BreakerState()
	} else {
		rl.mu.Lock()
		stats.InMemoryKeys = len(rl.buckets)
		rl.mu.Unlock()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(stats)
}
