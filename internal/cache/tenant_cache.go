// Package cache provides a Redis read-through cache for tenant records used
// on the anonymous widget path, where every request resolves a tenant by id.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-chatwidget-saas/internal/domain"
)

// TenantSource is the authoritative tenant loader behind the cache.
type TenantSource interface {
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
}

// KV is the subset of redis.Cmdable the cache needs. *redis.Client satisfies it.
type KV interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// TenantCache caches tenants as JSON under "tenant:<id>" for a short TTL.
// Redis failures degrade to direct loads; they never fail a lookup.
type TenantCache struct {
	kv  KV
	src TenantSource
	ttl time.Duration
}

// NewTenantCache wraps src with a Redis cache.
func NewTenantCache(kv KV, src TenantSource, ttl time.Duration) *TenantCache {
	return &TenantCache{kv: kv, src: src, ttl: ttl}
}

func tenantKey(id string) string { return "tenant:" + id }

// GetTenant returns the cached tenant or loads and caches it.
func (c *TenantCache) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	raw, err := c.kv.Get(ctx, tenantKey(id)).Bytes()
	switch {
	case err == nil:
		var t domain.Tenant
		if jerr := json.Unmarshal(raw, &t); jerr == nil {
			return &t, nil
		}
		log.Warn().Str("tenant_id", id).Msg("tenant_cache_decode_failed")
	case errors.Is(err, redis.Nil):
	default:
		log.Warn().Err(err).Str("tenant_id", id).Msg("tenant_cache_get_failed")
	}

	t, err := c.src.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if b, jerr := json.Marshal(t); jerr == nil {
		if serr := c.kv.Set(ctx, tenantKey(id), b, c.ttl).Err(); serr != nil {
			log.Warn().Err(serr).Str("tenant_id", id).Msg("tenant_cache_set_failed")
		}
	}
	return t, nil
}

// Invalidate drops the cached copy of a tenant.
func (c *TenantCache) Invalidate(ctx context.Context, id string) error {
	return c.kv.Del(ctx, tenantKey(id)).Err()
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
