package governance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DriftCache keeps recent drift reports in Redis so operator dashboards can
// poll cheaply. Reports are short lived and invalidated on every successful
// sync; a stale read is as acceptable as any lock-free drift snapshot.
type DriftCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewDriftCache instantiates the cache helper. A nil client disables
// caching entirely.
func NewDriftCache(client *redis.Client, ttl time.Duration) *DriftCache {
	return &DriftCache{client: client, ttl: ttl}
}

func (c *DriftCache) key(tenantID uuid.UUID, catalogVersion int) string {
	return fmt.Sprintf("governance:drift:%s:v%d", tenantID, catalogVersion)
}

// Get returns a cached report when present.
func (c *DriftCache) Get(ctx context.Context, tenantID uuid.UUID, catalogVersion int) (Report, bool, error) {
	if c == nil || c.client == nil {
		return Report{}, false, nil
	}
	payload, err := c.client.Get(ctx, c.key(tenantID, catalogVersion)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Report{}, false, nil
	}
	if err != nil {
		return Report{}, false, err
	}
	var report Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return Report{}, false, err
	}
	return report, true, nil
}

// Set stores a report under the tenant key.
func (c *DriftCache) Set(ctx context.Context, report Report) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(report.TenantID, report.CatalogVersion), payload, c.ttl).Err()
}

// Invalidate drops the cached report for a tenant.
func (c *DriftCache) Invalidate(ctx context.Context, tenantID uuid.UUID, catalogVersion int) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, c.key(tenantID, catalogVersion)).Err()
}
