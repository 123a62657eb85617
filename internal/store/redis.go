package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jmerrifield20/AyuTrack/internal/ledger"
)

// DefaultRedisKey is the key the ledger document is stored under.
const DefaultRedisKey = "ayutrack:ledger"

// Redis stores the ledger document under a single key.
type Redis struct {
	client redis.UniversalClient
	key    string
}

// NewRedis creates a Redis store. An empty key selects DefaultRedisKey.
func NewRedis(client redis.UniversalClient, key string) *Redis {
	if key == "" {
		key = DefaultRedisKey
	}
	return &Redis{client: client, key: key}
}

// DialRedis connects to a single Redis server.
func DialRedis(addr, password string, db int, key string) *Redis {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return NewRedis(rdb, key)
}

// Load implements ledger.Store.
func (r *Redis) Load(ctx context.Context) ([]ledger.Entry, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []ledger.Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", r.key, err)
	}
	return Unmarshal(b)
}

// Save implements ledger.Store.
func (r *Redis) Save(ctx context.Context, entries []ledger.Entry) error {
	b, err := Marshal(entries)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key, b, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", r.key, err)
	}
	return nil
}

// Close closes the client.
func (r *Redis) Close() error { return r.client.Close() }
