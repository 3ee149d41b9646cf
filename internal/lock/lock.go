// Package lock provides short-lived named locks used to suppress duplicate
// concurrent syncs of the same tenant.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker acquires and releases named locks.
type Locker interface {
	// Acquire tries once to take the lock. It returns a holder token when ok is true.
	Acquire(ctx context.Context, name string, ttl time.Duration) (token string, ok bool, err error)
	// Release frees the lock if token still holds it.
	Release(ctx context.Context, name, token string) error
}

// releaseScript deletes the key only when it still carries the caller's token.
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// Redis is a Locker backed by SET NX PX.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis locker. Keys are namespaced with prefix.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(name string) string {
	return fmt.Sprintf("%s:lock:%s", r.prefix, name)
}

// Acquire implements Locker.
func (r *Redis) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.client.SetNX(ctx, r.key(name), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquiring lock %q: %w", name, err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

// Release implements Locker. Releasing a lock held by someone else is a no-op.
func (r *Redis) Release(ctx context.Context, name, token string) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.key(name)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("releasing lock %q: %w", name, err)
	}
	return nil
}

// Noop is a Locker that always succeeds.
type Noop struct{}

// Acquire implements Locker.
func (Noop) Acquire(context.Context, string, time.Duration) (string, bool, error) {
	return "noop", true, nil
}

// Release implements Locker.
func (Noop) Release(context.Context, string, string) error {
	return nil
}

// Wait polls until the lock is acquired, ctx is done or Acquire fails.
func Wait(ctx context.Context, l Locker, name string, ttl, poll time.Duration) (string, error) {
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		token, ok, err := l.Acquire(ctx, name, ttl)
		if err != nil {
			return "", err
		}
		if ok {
			return token, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
	}
}
