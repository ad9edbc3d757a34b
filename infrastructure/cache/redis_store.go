package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ahrav/go-affinity/internal/domain"
	"github.com/ahrav/go-affinity/internal/ports"
)

var _ ports.ActiveGroupStore = (*RedisStore)(nil)

// RedisStore keeps active results in Redis under ActiveKey(formID).
type RedisStore struct {
	client redis.Cmdable
	// ttl expires entries; zero keeps them until replaced or cleared.
	ttl time.Duration
}

// NewRedisStore creates a store over client.
func NewRedisStore(client redis.Cmdable, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

// SetActive replaces the active result for result.FormID.
func (s *RedisStore) SetActive(ctx context.Context, result domain.AffinityResult) error {
	key := ActiveKey(result.FormID)
	data, err := encodeResult(result)
	if err != nil {
		return ports.NewCacheError(key, "set", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return ports.NewCacheError(key, "set", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err))
	}
	return nil
}

// Active returns the active result for formID. A missing key is reported
// as ok == false, not as an error.
func (s *RedisStore) Active(ctx context.Context, formID string) (domain.AffinityResult, bool, error) {
	key := ActiveKey(formID)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.AffinityResult{}, false, nil
	}
	if err != nil {
		return domain.AffinityResult{}, false, ports.NewCacheError(key, "get", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err))
	}

	result, err := decodeResult(key, data)
	if err != nil {
		return domain.AffinityResult{}, false, err
	}
	return result, true, nil
}

// Clear deletes the active result for formID.
func (s *RedisStore) Clear(ctx context.Context, formID string) error {
	key := ActiveKey(formID)
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return ports.NewCacheError(key, "delete", fmt.Errorf("%w: %w", ports.ErrStoreUnavailable, err))
	}
	return nil
}

// NewRedisClient connects to addr and verifies the connection with PING.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return client, nil
}
