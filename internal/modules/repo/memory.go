package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	lru "github.com/hashicorp/golang-lru"
	"github.com/redis/go-redis/v9"
)

// MemoryRepo is the process-wide key/value memory shared by all tasks.
type MemoryRepo interface {
	Set(ctx context.Context, key string, value any) error
	Get(ctx context.Context, key string) (any, bool, error)
}

// lruMemory keeps at most size keys, evicting the least recently used.
type lruMemory struct {
	cache *lru.Cache
}

func NewLRUMemory(size int) (MemoryRepo, error) {
	if size <= 0 {
		size = 10000
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &lruMemory{cache: c}, nil
}

func (m *lruMemory) Set(ctx context.Context, key string, value any) error {
	m.cache.Add(key, value)
	return nil
}

func (m *lruMemory) Get(ctx context.Context, key string) (any, bool, error) {
	v, ok := m.cache.Get(key)
	return v, ok, nil
}

// redisMemory stores JSON-encoded values under prefix+key without expiry.
type redisMemory struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisMemory(rdb *redis.Client, prefix string) MemoryRepo {
	return &redisMemory{rdb: rdb, prefix: prefix}
}

func (m *redisMemory) Set(ctx context.Context, key string, value any) error {
	data, err := sonic.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal memory value: %w", err)
	}
	return m.rdb.Set(ctx, m.prefix+key, data, 0).Err()
}

func (m *redisMemory) Get(ctx context.Context, key string) (any, bool, error) {
	data, err := m.rdb.Get(ctx, m.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v any
	if err := sonic.Unmarshal(data, &v); err != nil {
		return nil, false, fmt.Errorf("unmarshal memory value: %w", err)
	}
	return v, true, nil
}
