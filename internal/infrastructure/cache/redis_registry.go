package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/erp/inventory-engine/internal/domain/catalog"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	productKeyPrefix   = "catalog:product:"
	warehouseKeyPrefix = "catalog:warehouse:"
	reorderableKey     = "catalog:reorderable"
)

// RedisRegistry is a read-through cache in front of a catalog.Registry.
// Lookups that miss the cache hit the inner registry once per key even under
// concurrent callers; Redis failures fall back to the inner registry.
// Not-found results are never cached.
type RedisRegistry struct {
	inner  catalog.Registry
	client redis.UniversalClient
	ttl    time.Duration
	group  singleflight.Group
	logger *zap.Logger
}

// NewRedisRegistry wraps inner with a Redis cache whose entries live for ttl
func NewRedisRegistry(inner catalog.Registry, client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisRegistry{
		inner:  inner,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// ResolveProduct implements catalog.ProductRegistry
func (r *RedisRegistry) ResolveProduct(ctx context.Context, id uuid.UUID) (*catalog.ProductInfo, error) {
	return readThrough(ctx, r, productKeyPrefix+id.String(), func() (*catalog.ProductInfo, error) {
		return r.inner.ResolveProduct(ctx, id)
	})
}

// ResolveWarehouse implements catalog.WarehouseRegistry
func (r *RedisRegistry) ResolveWarehouse(ctx context.Context, id uuid.UUID) (*catalog.WarehouseInfo, error) {
	return readThrough(ctx, r, warehouseKeyPrefix+id.String(), func() (*catalog.WarehouseInfo, error) {
		return r.inner.ResolveWarehouse(ctx, id)
	})
}

// ListReorderable implements catalog.ReorderCatalog
func (r *RedisRegistry) ListReorderable(ctx context.Context) ([]catalog.ProductInfo, error) {
	list, err := readThrough(ctx, r, reorderableKey, func() (*[]catalog.ProductInfo, error) {
		products, err := r.inner.ListReorderable(ctx)
		if err != nil {
			return nil, err
		}
		return &products, nil
	})
	if err != nil {
		return nil, err
	}
	return *list, nil
}

// InvalidateProduct drops the cached product and the reorderable list
func (r *RedisRegistry) InvalidateProduct(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, productKeyPrefix+id.String(), reorderableKey).Err(); err != nil {
		return fmt.Errorf("invalidate product %s: %w", id, err)
	}
	return nil
}

// InvalidateWarehouse drops the cached warehouse
func (r *RedisRegistry) InvalidateWarehouse(ctx context.Context, id uuid.UUID) error {
	if err := r.client.Del(ctx, warehouseKeyPrefix+id.String()).Err(); err != nil {
		return fmt.Errorf("invalidate warehouse %s: %w", id, err)
	}
	return nil
}

func readThrough[T any](ctx context.Context, r *RedisRegistry, key string, load func() (*T, error)) (*T, error) {
	raw, err := r.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached T
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			return &cached, nil
		}
		r.logger.Warn("Discarding undecodable registry cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		r.logger.Warn("Registry cache read failed", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		loaded, err := load()
		if err != nil {
			return nil, err
		}
		if data, err := json.Marshal(loaded); err == nil {
			if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
				r.logger.Warn("Registry cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*T), nil
}

// Ensure RedisRegistry implements catalog.Registry
var _ catalog.Registry = (*RedisRegistry)(nil)
