package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopLocker(t *testing.T) {
	unlock, err := NopLocker{}.Lock(context.Background(), "checkout:subscription:1", time.Minute)

	require.NoError(t, err)
	require.NotNil(t, unlock)
	unlock()
}

func TestNewRedisLockerFromURL(t *testing.T) {
	_, err := NewRedisLockerFromURL("redis://localhost:6379/0")
	assert.NoError(t, err)

	_, err = NewRedisLockerFromURL("http://localhost:6379")
	assert.Error(t, err)
}

func newTestLocker(t *testing.T) (RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := NewRedisLocker(client)
	locker.retries = 1
	locker.interval = time.Millisecond
	return locker, mr
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	// Given.
	locker, mr := newTestLocker(t)
	key := "checkout:subscription:1"

	// When.
	unlock, err := locker.Lock(context.Background(), key, time.Minute)

	// Then.
	require.NoError(t, err)
	token, err := mr.Get(key)
	require.NoError(t, err)
	assert.Len(t, token, 32)
	assert.Equal(t, time.Minute, mr.TTL(key))

	unlock()
	assert.False(t, mr.Exists(key))
}

func TestRedisLocker_HeldLockIsReportedAsLocked(t *testing.T) {
	locker, _ := newTestLocker(t)
	key := "checkout:subscription:1"
	unlock, err := locker.Lock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	defer unlock()

	_, err = locker.Lock(context.Background(), key, time.Minute)

	assert.ErrorIs(t, err, ErrLocked)
}

func TestRedisLocker_LockCanBeTakenAfterRelease(t *testing.T) {
	locker, _ := newTestLocker(t)
	key := "checkout:subscription:1"
	unlock, err := locker.Lock(context.Background(), key, time.Minute)
	require.NoError(t, err)
	unlock()

	unlock, err = locker.Lock(context.Background(), key, time.Minute)

	require.NoError(t, err)
	unlock()
}

func TestRedisLocker_ReleaseKeepsLockTakenOverByOthers(t *testing.T) {
	// Given.
	locker, mr := newTestLocker(t)
	key := "checkout:subscription:1"
	unlock, err := locker.Lock(context.Background(), key, time.Minute)
	require.NoError(t, err)

	// When the lock expired and another invocation acquired it.
	require.NoError(t, mr.Set(key, "other-token"))
	unlock()

	// Then.
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestRedisLocker_UnreachableServer(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	_, err := NewRedisLocker(client).Lock(context.Background(), "checkout:subscription:1", time.Minute)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
}

func TestNewToken(t *testing.T) {
	a, err := newToken()
	require.NoError(t, err)
	b, err := newToken()
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}
