package store

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisStore persists one snapshot per room under a fixed key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ SnapshotStore = &RedisStore{}

func NewRedisStore(client *redis.Client, prefix string) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("redis snapshot store: nil client")
	}
	if prefix == "" {
		prefix = "whiteroom:snapshot:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) key(roomID string) string { return s.prefix + roomID }

func (s *RedisStore) Load(ctx context.Context, roomID string) ([]byte, bool, error) {
	if roomID == "" {
		return nil, false, errors.New("redis snapshot store: empty room id")
	}
	data, err := s.client.Get(ctx, s.key(roomID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis snapshot store: load")
	}
	return data, true, nil
}

func (s *RedisStore) Save(ctx context.Context, roomID string, data []byte) error {
	if roomID == "" {
		return errors.New("redis snapshot store: empty room id")
	}
	if err := s.client.Set(ctx, s.key(roomID), data, 0).Err(); err != nil {
		return errors.Wrap(err, "redis snapshot store: save")
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
