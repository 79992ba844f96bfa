package cdm

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lookup is a read-only keyed reference-data service used for
// enrichment. A miss or an unavailable backend degrades to a null
// enrichment field; it never fails the row.
type Lookup interface {
	Get(ctx context.Context, key string) (string, bool)
}

// RedisLookup resolves enrichment keys against a Redis keyspace.
type RedisLookup struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisLookup connects to Redis and verifies the connection.
func NewRedisLookup(address, password, keyPrefix string, db int) (*RedisLookup, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &RedisLookup{client: client, keyPrefix: keyPrefix}, nil
}

func (l *RedisLookup) Get(ctx context.Context, key string) (string, bool) {
	val, err := l.client.Get(ctx, l.keyPrefix+key).Result()
	if err != nil {
		// redis.Nil and transport errors both degrade to a miss.
		return "", false
	}
	return val, true
}

func (l *RedisLookup) Close() error {
	return l.client.Close()
}

// NoopLookup is used when no enrichment service is configured.
type NoopLookup struct{}

func (NoopLookup) Get(ctx context.Context, key string) (string, bool) { return "", false }
