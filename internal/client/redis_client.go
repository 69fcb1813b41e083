package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bluebricks/rba-harness/internal/util/logger"
)

// RedisConfig defines configuration for the Redis client
type RedisConfig struct {
	URL             string
	PoolSize        int
	MinIdleConns    int
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ConnMaxIdleTime time.Duration
	Breaker         BreakerConfig
}

// BreakerConfig controls the circuit breaker in front of Redis.
type BreakerConfig struct {
	Enabled      bool
	FailureRatio float64
	MinRequests  uint32
	OpenTimeout  time.Duration
}

// ErrRedisUnavailable is returned while the breaker is open.
var ErrRedisUnavailable = errors.New("redis unavailable")

// RedisClient wraps redis.Client with tracing and an optional breaker.
type RedisClient struct {
	*redis.Client
	mu     sync.Mutex
	closed bool
	cb     *gobreaker.CircuitBreaker
}

// NewRedisClient parses cfg.URL, applies pool defaults and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*RedisClient, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10 * runtime.GOMAXPROCS(0)
	}
	if cfg.MinIdleConns == 0 {
		cfg.MinIdleConns = cfg.PoolSize / 4
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	if cfg.ConnMaxIdleTime == 0 {
		cfg.ConnMaxIdleTime = 5 * time.Minute
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout
	opts.ConnMaxIdleTime = cfg.ConnMaxIdleTime

	rc := newRedisClient(redis.NewClient(opts), cfg.Breaker)
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	logger.Infof("[Redis] connected to %s (db %d)", opts.Addr, opts.DB)
	return rc, nil
}

// NewRedisClientFrom wraps an existing client without pinging it.
func NewRedisClientFrom(c *redis.Client, breaker BreakerConfig) *RedisClient {
	return newRedisClient(c, breaker)
}

func newRedisClient(c *redis.Client, breaker BreakerConfig) *RedisClient {
	rc := &RedisClient{Client: c}
	if breaker.Enabled {
		rc.cb = newBreaker("redis", breaker)
	}
	c.AddHook(tracingHook{})
	return rc
}

func newBreaker(name string, cfg BreakerConfig) *gobreaker.CircuitBreaker {
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.5
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 10
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warnf("[Redis] circuit %s: %s -> %s", name, from, to)
		},
	})
}

// Close terminates the Redis client connection
func (c *RedisClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	logger.Infof("[Redis] closing client")
	return c.Client.Close()
}

// HealthCheck verifies Redis connectivity
func (c *RedisClient) HealthCheck(ctx context.Context) error {
	err := c.Guard(ctx, func(ctx context.Context) error {
		return c.Ping(ctx).Err()
	})
	if err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Guard runs fn through the breaker. redis.Nil is a result, not a failure.
func (c *RedisClient) Guard(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.cb == nil {
		return fn(ctx)
	}
	var miss bool
	_, err := c.cb.Execute(func() (interface{}, error) {
		err := fn(ctx)
		if errors.Is(err, redis.Nil) {
			miss = true
			return nil, nil
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if err == nil && miss {
		return redis.Nil
	}
	return err
}

// BreakerState returns the breaker state, or "disabled".
func (c *RedisClient) BreakerState() string {
	if c.cb == nil {
		return "disabled"
	}
	return c.cb.State().String()
}

// SetJSON marshals and sets a JSON value
func (c *RedisClient) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.Guard(ctx, func(ctx context.Context) error {
		return c.Set(ctx, key, data, ttl).Err()
	})
}

// GetJSON retrieves and unmarshals a JSON value. A missing key returns redis.Nil.
func (c *RedisClient) GetJSON(ctx context.Context, key string, dest interface{}) error {
	var data string
	err := c.Guard(ctx, func(ctx context.Context) error {
		var err error
		data, err = c.Get(ctx, key).Result()
		return err
	})
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dest)
}

type tracingHook struct{}

func (tracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		if span := trace.SpanFromContext(ctx); span.IsRecording() {
			span.SetAttributes(
				attribute.String("net.transport", network),
				attribute.String("net.peer.name", addr),
			)
		}
		return next(ctx, network, addr)
	}
}

func (tracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		span := trace.SpanFromContext(ctx)
		if span.IsRecording() {
			span.SetAttributes(
				attribute.String("db.system", "redis"),
				attribute.String("db.operation", cmd.Name()),
			)
		}
		err := next(ctx, cmd)
		if err != nil && !errors.Is(err, redis.Nil) && span.IsRecording() {
			span.RecordError(err)
		}
		return err
	}
}

func (tracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		span := trace.SpanFromContext(ctx)
		if span.IsRecording() {
			span.SetAttributes(
				attribute.String("db.system", "redis"),
				attribute.String("db.operation", "pipeline"),
				attribute.Int("db.command_count", len(cmds)),
			)
		}
		err := next(ctx, cmds)
		if err != nil && !errors.Is(err, redis.Nil) && span.IsRecording() {
			span.RecordError(err)
		}
		return err
	}
}
