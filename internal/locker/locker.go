package locker

import (
	"context"
	"fmt"
	"time"

	"paykit/internal/payments"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only while it still holds our value, so a
// lock that expired and was taken by someone else is left alone.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

type client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
}

// Redis is a payments.Locker backed by SET NX with a TTL.
type Redis struct {
	client client
}

func NewRedis(c *redis.Client) *Redis {
	return &Redis{client: c}
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return c, nil
}

func (l *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	owner := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", payments.ErrAlreadyProcessing, key)
	}
	return func() {
		// the request context may already be cancelled
		l.client.Eval(context.Background(), releaseScript, []string{key}, owner)
	}, nil
}

// Noop is used when no Redis is configured.
type Noop struct{}

func (Noop) Acquire(context.Context, string, time.Duration) (func(), error) {
	return func() {}, nil
}
