package governance

import (
	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// LockKey derives the advisory-lock key for a tenant. XXH64 keeps unrelated
// tenants well spread across the 64-bit keyspace; a collision would only
// serialize two unrelated syncs, never corrupt state.
func LockKey(tenantID uuid.UUID) int64 {
	return int64(xxhash.Sum64String("governance:sync:" + tenantID.String()))
}
