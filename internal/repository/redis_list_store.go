package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	domrepo "ChainSignal/internal/domain/repository"
)

// RedisListStore keeps each list in a Redis LIST, most recent at index 0.
type RedisListStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisListStore(client redis.UniversalClient, prefix string) *RedisListStore {
	return &RedisListStore{client: client, prefix: prefix}
}

func (s *RedisListStore) LoadList(ctx context.Context, key string) ([]json.RawMessage, error) {
	vals, err := s.client.LRange(ctx, s.wrapKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange %s: %w", key, err)
	}
	out := make([]json.RawMessage, 0, len(vals))
	for _, v := range vals {
		out = append(out, json.RawMessage(v))
	}
	return out, nil
}

// SaveList replaces the list atomically: DEL, RPUSH and LTRIM run in one MULTI.
func (s *RedisListStore) SaveList(ctx context.Context, key string, records []json.RawMessage, cap int) error {
	if cap > 0 && len(records) > cap {
		records = records[:cap]
	}
	k := s.wrapKey(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, k)
		if len(records) == 0 {
			return nil
		}
		vals := make([]interface{}, len(records))
		for i, r := range records {
			vals[i] = []byte(r)
		}
		pipe.RPush(ctx, k, vals...)
		if cap > 0 {
			pipe.LTrim(ctx, k, 0, int64(cap-1))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save %s: %w", key, err)
	}
	return nil
}

func (s *RedisListStore) wrapKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

var _ domrepo.ListStore = (*RedisListStore)(nil)
