package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisStore holds cross-replica cooldown claims and publishes alerts.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// releaseScript deletes a claim only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     20,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreFromClient(client, opts.Prefix), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "tuskguard"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close closes the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

// Ping checks connectivity.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) claimKey(key string) string {
	return fmt.Sprintf("%s:cooldown:%s", r.prefix, key)
}

// Claim sets the cooldown key with SET NX PX. It returns false when another
// holder already owns the key.
func (r *RedisStore) Claim(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.claimKey(key), token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim %s: %w", key, err)
	}
	return ok, nil
}

// Release removes a claim previously taken with token.
func (r *RedisStore) Release(ctx context.Context, key, token string) error {
	err := releaseScript.Run(ctx, r.client, []string{r.claimKey(key)}, token).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis release %s: %w", key, err)
	}
	return nil
}

// PublishAlert publishes an alert payload on the alerts channel.
func (r *RedisStore) PublishAlert(ctx context.Context, payload []byte) error {
	return r.client.Publish(ctx, r.prefix+":alerts", payload).Err()
}
