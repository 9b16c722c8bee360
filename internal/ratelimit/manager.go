package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/libernet/sofia-billing/internal/config"
	internalsettings "github.com/libernet/sofia-billing/internal/settings"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// redisBreakerDuration is how long Redis is bypassed after a failure.
const redisBreakerDuration = 30 * time.Second

// Manager selects a limiter backend and enforces rate limits. When Redis is
// configured but failing, checks fall back to the in-memory limiter behind
// a simple circuit breaker.
type Manager struct {
	cfg           config.RedisConfig
	nowFn         func() time.Time
	memoryLimiter Limiter

	mu           sync.Mutex
	redisLimiter *RedisLimiter
	breakerUntil time.Time
}

// NewManager constructs a Manager from the Redis config; a disabled config
// yields a memory-only manager.
func NewManager(cfg config.RedisConfig) *Manager {
	m := &Manager{
		cfg:           cfg,
		nowFn:         time.Now,
		memoryLimiter: NewMemoryLimiter(),
	}
	if cfg.Enabled && cfg.Addr != "" {
		prefix := cfg.Prefix
		if prefix == "" {
			prefix = internalsettings.DefaultRateLimitRedisPrefix
		}
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		m.redisLimiter = NewRedisLimiter(client, prefix)
	}
	return m
}

// Allow checks whether the request should be allowed using the best
// available backend.
func (m *Manager) Allow(ctx context.Context, key string, limit int) (Result, error) {
	if m == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	now := m.nowFn()

	if limiter := m.activeRedis(now); limiter != nil {
		result, errAllow := limiter.Allow(ctx, key, limit, now)
		if errAllow == nil {
			return result, nil
		}
		m.tripBreaker(errAllow, now)
	}
	return m.memoryLimiter.Allow(ctx, key, limit, now)
}

// activeRedis returns the Redis limiter unless the breaker is open.
func (m *Manager) activeRedis(now time.Time) *RedisLimiter {
	if m.redisLimiter == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if now.Before(m.breakerUntil) {
		return nil
	}
	return m.redisLimiter
}

func (m *Manager) tripBreaker(cause error, now time.Time) {
	m.mu.Lock()
	m.breakerUntil = now.Add(redisBreakerDuration)
	m.mu.Unlock()
	log.WithError(cause).Warn("rate limit: redis unavailable, falling back to memory")
}
