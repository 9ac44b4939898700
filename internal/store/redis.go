package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps snapshots as two plain string keys per user.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to redisURL and verifies the connection.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse redis url")
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to ping redis")
	}

	return &RedisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Load returns the snapshot of userID.
func (s *RedisStore) Load(ctx context.Context, userID string) (Record, error) {
	values, err := s.client.MGet(ctx, ThreadsKey(userID), ActiveKey(userID)).Result()
	if err != nil {
		return Record{}, errors.Wrap(err, "failed to read snapshot")
	}

	threads, ok := values[0].(string)
	if !ok {
		return Record{}, ErrNotFound
	}
	active, _ := values[1].(string)
	return Record{Threads: threads, ActiveThreadID: active}, nil
}

// Save overwrites both keys of userID atomically.
func (s *RedisStore) Save(ctx context.Context, userID string, rec Record) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, ThreadsKey(userID), rec.Threads, 0)
		pipe.Set(ctx, ActiveKey(userID), rec.ActiveThreadID, 0)
		return nil
	})
	return errors.Wrap(err, "failed to write snapshot")
}

// Delete drops both keys of userID.
func (s *RedisStore) Delete(ctx context.Context, userID string) error {
	err := s.client.Del(ctx, ThreadsKey(userID), ActiveKey(userID)).Err()
	return errors.Wrap(err, "failed to delete snapshot")
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
