package sessionstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "chatbot:session:"

type redisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// Save implements Store.
func (s *redisStore) Save(ctx context.Context, record *Record) error {
	now := time.Now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	val, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, redisKeyPrefix+record.ID, val, s.ttl).Err()
}

// Get implements Store. The key TTL is refreshed on read so a live session
// does not expire mid-conversation.
func (s *redisStore) Get(ctx context.Context, id string) (*Record, error) {
	key := redisKeyPrefix + id
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var record Record
	if err := json.Unmarshal([]byte(val), &record); err != nil {
		return nil, err
	}

	_ = s.client.Expire(ctx, key, s.ttl).Err()
	return &record, nil
}

// Delete implements Store.
func (s *redisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, redisKeyPrefix+id).Err()
}

// Close implements Store.
func (s *redisStore) Close() error {
	return s.client.Close()
}
