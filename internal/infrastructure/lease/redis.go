package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "taxprep:ai-run:"

// releaseScript deletes the key only while it still carries our token, so an
// expired lease taken over by another worker is never released by us.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLease keeps two workers from running the same tax return at once.
type RedisLease struct {
	client    redis.UniversalClient
	keyPrefix string
}

func NewRedisLease(client redis.UniversalClient, keyPrefix string) *RedisLease {
	if keyPrefix == "" {
		keyPrefix = defaultKeyPrefix
	}
	return &RedisLease{client: client, keyPrefix: keyPrefix}
}

// Dial connects to addr and pings it.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (l *RedisLease) Acquire(ctx context.Context, taxReturnID string, ttl time.Duration) (func(context.Context) error, bool, error) {
	key := l.keyPrefix + taxReturnID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire run lease: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.client, []string{key}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("release run lease: %w", err)
		}
		return nil
	}
	return release, true, nil
}
