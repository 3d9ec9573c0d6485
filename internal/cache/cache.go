/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/cache/v9"
	"github.com/redis/go-redis/v9"

	"github.com/blnkfinance/tally/config"
	redis_db "github.com/blnkfinance/tally/internal/redis-db"
)

// ErrMiss is returned by Get when the key is not cached.
var ErrMiss = cache.ErrCacheMiss

// Cache is the key/value cache in front of the datasource. Only immutable
// lookups are cached, such as the id of a lazily created ledger account.
type Cache interface {
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Get decodes the cached value into data, which must be a pointer.
	// It returns ErrMiss when the key is absent.
	Get(ctx context.Context, key string, data interface{}) error

	Delete(ctx context.Context, key string) error
}

// RedisCache layers a process-local TinyLFU cache over redis.
type RedisCache struct {
	cache *cache.Cache
}

// cacheSize is the number of entries kept in the local tier.
const cacheSize = 128000

// localTTL bounds how long the local tier serves an entry without asking redis.
const localTTL = time.Minute

// NewCache connects to the configured redis.
func NewCache(cfg config.RedisConfig) (Cache, error) {
	client, err := redis_db.NewRedisClient([]string{cfg.Dns}, cfg.SkipTLSVerify)
	if err != nil {
		return nil, err
	}
	return NewFromClient(client.Client()), nil
}

// NewFromClient builds a cache over an existing client.
func NewFromClient(client redis.UniversalClient) *RedisCache {
	return &RedisCache{cache: cache.New(&cache.Options{
		Redis:      client,
		LocalCache: cache.NewTinyLFU(cacheSize, localTTL),
	})}
}

func (r *RedisCache) Set(ctx context.Context, key string, data interface{}, ttl time.Duration) error {
	return r.cache.Set(&cache.Item{
		Ctx:   ctx,
		Key:   key,
		Value: data,
		TTL:   ttl,
	})
}

func (r *RedisCache) Get(ctx context.Context, key string, data interface{}) error {
	return r.cache.Get(ctx, key, data)
}

func (r *RedisCache) Delete(ctx context.Context, key string) error {
	err := r.cache.Delete(ctx, key)
	if errors.Is(err, ErrMiss) {
		return nil
	}
	return err
}
