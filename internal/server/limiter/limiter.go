// Package limiter throttles second-factor attempts per user.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultMaxAttempts = 5
	DefaultLockout     = 5 * time.Minute

	keyPrefix = "pk:2fa:att:"
)

var (
	ErrLimited     = errors.New("too many two-factor attempts")
	ErrUnavailable = errors.New("attempt limiter unavailable")
)

// AttemptLimiter counts failed second-factor checks.
type AttemptLimiter interface {
	Check(ctx context.Context, userID int64) error
	RecordFailure(ctx context.Context, userID int64) error
	Reset(ctx context.Context, userID int64) error
}

type Config struct {
	MaxAttempts int
	Lockout     time.Duration
}

// RedisLimiter keeps one counter per user. The window starts at the first
// failure and the key expires after Lockout.
type RedisLimiter struct {
	rdb         redis.UniversalClient
	maxAttempts int64
	lockout     time.Duration
}

func NewRedisLimiter(rdb redis.UniversalClient, cfg Config) *RedisLimiter {
	max := cfg.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	lockout := cfg.Lockout
	if lockout <= 0 {
		lockout = DefaultLockout
	}
	return &RedisLimiter{rdb: rdb, maxAttempts: int64(max), lockout: lockout}
}

func key(userID int64) string {
	return keyPrefix + strconv.FormatInt(userID, 10)
}

func (l *RedisLimiter) Check(ctx context.Context, userID int64) error {
	n, err := l.rdb.Get(ctx, key(userID)).Int64()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n >= l.maxAttempts {
		return ErrLimited
	}
	return nil
}

func (l *RedisLimiter) RecordFailure(ctx context.Context, userID int64) error {
	k := key(userID)
	n, err := l.rdb.Incr(ctx, k).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if n == 1 {
		if err := l.rdb.Expire(ctx, k, l.lockout).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	if n >= l.maxAttempts {
		return ErrLimited
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, userID int64) error {
	if err := l.rdb.Del(ctx, key(userID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Nop never limits. Used when no redis address is configured.
type Nop struct{}

func (Nop) Check(context.Context, int64) error         { return nil }
func (Nop) RecordFailure(context.Context, int64) error { return nil }
func (Nop) Reset(context.Context, int64) error         { return nil }

// Open connects to redis when addr is set and returns Nop otherwise. The
// returned close function is always safe to call.
func Open(ctx context.Context, addr string, cfg Config) (AttemptLimiter, func() error, error) {
	if addr == "" {
		return Nop{}, func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewRedisLimiter(rdb, cfg), rdb.Close, nil
}
