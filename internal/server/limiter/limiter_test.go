package limiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLimiter(t *testing.T, cfg Config) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisLimiter(rdb, cfg), mr
}

func TestRedisLimiter_LocksAfterMaxAttempts(t *testing.T) {
	l, _ := newLimiter(t, Config{MaxAttempts: 3, Lockout: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.Check(ctx, 42))
	require.NoError(t, l.RecordFailure(ctx, 42))
	require.NoError(t, l.RecordFailure(ctx, 42))
	assert.NoError(t, l.Check(ctx, 42))

	assert.ErrorIs(t, l.RecordFailure(ctx, 42), ErrLimited)
	assert.ErrorIs(t, l.Check(ctx, 42), ErrLimited)

	// other users are unaffected
	assert.NoError(t, l.Check(ctx, 43))
}

func TestRedisLimiter_WindowExpires(t *testing.T) {
	l, mr := newLimiter(t, Config{MaxAttempts: 2, Lockout: time.Minute})
	ctx := context.Background()

	require.NoError(t, l.RecordFailure(ctx, 1))
	require.ErrorIs(t, l.RecordFailure(ctx, 1), ErrLimited)
	assert.Equal(t, time.Minute, mr.TTL(key(1)))

	mr.FastForward(61 * time.Second)
	assert.NoError(t, l.Check(ctx, 1))
}

func TestRedisLimiter_Reset(t *testing.T) {
	l, mr := newLimiter(t, Config{MaxAttempts: 1})
	ctx := context.Background()

	require.ErrorIs(t, l.RecordFailure(ctx, 5), ErrLimited)
	require.NoError(t, l.Reset(ctx, 5))
	assert.False(t, mr.Exists(key(5)))
	assert.NoError(t, l.Check(ctx, 5))
}

func TestRedisLimiter_Defaults(t *testing.T) {
	l, _ := newLimiter(t, Config{})
	assert.Equal(t, int64(DefaultMaxAttempts), l.maxAttempts)
	assert.Equal(t, DefaultLockout, l.lockout)
}

func TestRedisLimiter_Unavailable(t *testing.T) {
	l, mr := newLimiter(t, Config{})
	mr.Close()

	assert.ErrorIs(t, l.Check(context.Background(), 1), ErrUnavailable)
	assert.ErrorIs(t, l.RecordFailure(context.Background(), 1), ErrUnavailable)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	l, closeFn, err := Open(ctx, "", Config{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, l)
	assert.NoError(t, closeFn())

	mr := miniredis.RunT(t)
	l, closeFn, err = Open(ctx, mr.Addr(), Config{MaxAttempts: 2})
	require.NoError(t, err)
	defer closeFn()
	assert.IsType(t, &RedisLimiter{}, l)
}
