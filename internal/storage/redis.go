package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/user/contact-enricher/internal/domain"
	"github.com/user/contact-enricher/pkg/utils"
)

const enrichedKeyPrefix = "enriched:"

// RedisStore caches finished enrichments so repeated runs skip sites seen recently.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// generateKey creates a consistent Redis key for a website by hashing its normalized form.
func (s *RedisStore) generateKey(website string) string {
	return fmt.Sprintf("%s%s", enrichedKeyPrefix, utils.HashURL(utils.CacheKey(website)))
}

// Get returns the cached enrichment for website. ok is false on a cache miss.
func (s *RedisStore) Get(ctx context.Context, website string) (domain.Enrichment, bool, error) {
	var e domain.Enrichment
	val, err := s.client.Get(ctx, s.generateKey(website)).Bytes()
	if errors.Is(err, redis.Nil) {
		return e, false, nil
	}
	if err != nil {
		return e, false, err
	}
	if err := json.Unmarshal(val, &e); err != nil {
		// Drop the unreadable entry so the next run refreshes it.
		if delErr := s.Forget(ctx, website); delErr != nil {
			return e, false, errors.Join(fmt.Errorf("decode cached enrichment: %w", err), delErr)
		}
		return e, false, fmt.Errorf("decode cached enrichment: %w", err)
	}
	return e, true, nil
}

// Set stores e for website with the given TTL.
func (s *RedisStore) Set(ctx context.Context, website string, e domain.Enrichment, ttl time.Duration) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.generateKey(website), payload, ttl).Err()
}

// Forget removes a cached enrichment.
func (s *RedisStore) Forget(ctx context.Context, website string) error {
	return s.client.Del(ctx, s.generateKey(website)).Err()
}
