package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds limiter tuning parameters.
type Config struct {
	// MaxAttempts is the failed-attempt threshold per window. An identity
	// at or above the threshold is blocked.
	MaxAttempts int
	// Window is the fixed window length.
	Window time.Duration
	// EnableIPThrottle additionally counts failures per source IP.
	EnableIPThrottle bool
}

// Limiter tracks failed login attempts per identity in Redis. Increment and
// window-start are a single INCR + conditional EXPIRE, so concurrent
// failures never under-count.
type Limiter struct {
	redis redis.UniversalClient
	cfg   Config
}

// New creates a [Limiter] backed by the given Redis client.
func New(client redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{redis: client, cfg: cfg}
}

func identityKey(identity string) string { return "la:" + identity }
func ipKey(ip string) string             { return "lai:" + ip }

// Check returns [ErrRateLimited] when the identity (or, when enabled, the
// source IP) has reached the attempt threshold within the current window.
func (l *Limiter) Check(ctx context.Context, identity, ip string) error {
	if err := l.checkCounter(ctx, identityKey(identity)); err != nil {
		return err
	}
	if l.cfg.EnableIPThrottle && ip != "" {
		return l.checkCounter(ctx, ipKey(ip))
	}
	return nil
}

// RecordFailure counts a failed attempt and returns the identity's counter
// value within the current window.
func (l *Limiter) RecordFailure(ctx context.Context, identity, ip string) (int64, error) {
	count, err := l.incrementWithTTL(ctx, identityKey(identity))
	if err != nil {
		return 0, err
	}
	if l.cfg.EnableIPThrottle && ip != "" {
		if _, err := l.incrementWithTTL(ctx, ipKey(ip)); err != nil {
			return count, err
		}
	}
	return count, nil
}

// Reset clears the counters for an identity. Called on successful login.
func (l *Limiter) Reset(ctx context.Context, identity, ip string) error {
	keys := []string{identityKey(identity)}
	if l.cfg.EnableIPThrottle && ip != "" {
		keys = append(keys, ipKey(ip))
	}
	if err := l.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current counter for an identity. Missing keys read as
// zero and do not reveal whether the identity exists.
func (l *Limiter) Attempts(ctx context.Context, identity string) (int64, error) {
	count, err := l.redis.Get(ctx, identityKey(identity)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return count, nil
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.cfg.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// First hit starts the window; later hits inherit its TTL.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.cfg.Window).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
