package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/redis/go-redis/v9"

	"github.com/bluebricks/rba-harness/internal/metrics"
	"github.com/bluebricks/rba-harness/internal/util/logger"
)

// TokenStore holds upstream JWTs keyed by user.
type TokenStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, token string, ttl time.Duration) error
}

// TokenCacheConfig controls expiry handling.
type TokenCacheConfig struct {
	KeyPrefix  string
	DefaultTTL time.Duration
	ExpirySkew time.Duration
}

// TokenCache avoids a token round trip per MFA follow-up. Store errors fall
// through to a fresh fetch.
type TokenCache struct {
	store TokenStore
	cfg   TokenCacheConfig
	now   func() time.Time
}

func NewTokenCache(store TokenStore, cfg TokenCacheConfig) *TokenCache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	return &TokenCache{store: store, cfg: cfg, now: time.Now}
}

// Token returns the cached token for userID or calls fetch and caches the result.
func (c *TokenCache) Token(ctx context.Context, userID string, fetch func(ctx context.Context) (string, error)) (string, error) {
	key := c.cfg.KeyPrefix + userID
	tok, ok, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		metrics.TokenCacheTotal.WithLabelValues("error").Inc()
		logger.Warnf("[TokenCache] lookup %s: %v", userID, err)
	case ok:
		metrics.TokenCacheTotal.WithLabelValues("hit").Inc()
		return tok, nil
	default:
		metrics.TokenCacheTotal.WithLabelValues("miss").Inc()
	}

	tok, err = fetch(ctx)
	if err != nil {
		return "", err
	}
	ttl := c.ttlFor(tok)
	if ttl > 0 {
		if err := c.store.Set(ctx, key, tok, ttl); err != nil {
			logger.Warnf("[TokenCache] store %s: %v", userID, err)
		}
	}
	return tok, nil
}

// ttlFor reads the exp claim without verifying the signature. Tokens that are
// not JWTs or carry no exp use the default TTL.
func (c *TokenCache) ttlFor(token string) time.Duration {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return c.cfg.DefaultTTL
	}
	return claims.ExpiresAt.Time.Sub(c.now()) - c.cfg.ExpirySkew
}

// RedisTokenStore keeps tokens in Redis behind the client's breaker.
type RedisTokenStore struct {
	rc *RedisClient
}

func NewRedisTokenStore(rc *RedisClient) *RedisTokenStore {
	return &RedisTokenStore{rc: rc}
}

// redisToken is the JSON record kept per key.
type redisToken struct {
	Token    string    `json:"token"`
	CachedAt time.Time `json:"cached_at"`
}

func (s *RedisTokenStore) Get(ctx context.Context, key string) (string, bool, error) {
	var rec redisToken
	err := s.rc.GetJSON(ctx, key, &rec)
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if rec.Token == "" {
		return "", false, nil
	}
	return rec.Token, true, nil
}

func (s *RedisTokenStore) Set(ctx context.Context, key, token string, ttl time.Duration) error {
	return s.rc.SetJSON(ctx, key, redisToken{Token: token, CachedAt: time.Now().UTC()}, ttl)
}

// MemoryTokenStore is the in-process fallback when Redis is not configured.
type MemoryTokenStore struct {
	mu      sync.Mutex
	entries map[string]memoryToken
	now     func() time.Time
}

type memoryToken struct {
	token   string
	expires time.Time
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{entries: map[string]memoryToken{}, now: time.Now}
}

func (s *MemoryTokenStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return "", false, nil
	}
	if !s.now().Before(e.expires) {
		delete(s.entries, key)
		return "", false, nil
	}
	return e.token, true, nil
}

func (s *MemoryTokenStore) Set(_ context.Context, key, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryToken{token: token, expires: s.now().Add(ttl)}
	return nil
}
