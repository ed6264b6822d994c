// Package lock serializes payment attempts for the same subscription so that two
// concurrent submissions of a checkout link cannot both create a pending bill.
package lock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/luikyv/franchise-checkout/internal/errorutil"
	"github.com/redis/go-redis/v9"
)

var ErrLocked = errorutil.New("resource is locked")

type Locker interface {
	// Lock acquires key for at most ttl. The returned function releases it.
	Lock(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

type NopLocker struct{}

func (NopLocker) Lock(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}

// releaseScript deletes the key only when it still holds the caller's token, so an
// expired lock taken over by another invocation is not released by mistake.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client   redis.UniversalClient
	retries  int
	interval time.Duration
}

// NewRedisLocker creates a locker that retries a held lock a few times before giving up.
func NewRedisLocker(client redis.UniversalClient) RedisLocker {
	return RedisLocker{
		client:   client,
		retries:  5,
		interval: 200 * time.Millisecond,
	}
}

// NewRedisLockerFromURL parses a redis:// URL.
func NewRedisLockerFromURL(rawURL string) (RedisLocker, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return RedisLocker{}, fmt.Errorf("invalid redis url: %w", err)
	}
	return NewRedisLocker(redis.NewClient(opts)), nil
}

func (l RedisLocker) Lock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token, err := newToken()
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		acquired, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("could not acquire lock %s: %w", key, err)
		}
		if acquired {
			break
		}

		if attempt >= l.retries {
			return nil, ErrLocked
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.interval):
		}
	}

	return func() {
		// The request context may be done by now.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "could not release lock", "key", key, "error", err)
		}
	}, nil
}

func newToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("could not generate lock token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
