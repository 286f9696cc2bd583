package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/pagemd/governance/internal/catalog"
	"github.com/pagemd/governance/internal/governance"
	"github.com/pagemd/governance/internal/tenant"
)

// syncAllParallelism bounds concurrent tenants. Locks are per tenant, so
// parallel tenants never contend with each other.
const syncAllParallelism = 4

// GovernanceService is the slice of the governance service the bulk job
// needs.
type GovernanceService interface {
	ListRoleTemplates() []catalog.RoleTemplate
	ListTenants(ctx context.Context) ([]tenant.Tenant, error)
	SyncRole(ctx context.Context, tenantID uuid.UUID, roleKey string) (governance.RoleDrift, error)
}

// SyncAllJob walks every registered tenant and repairs each canonical
// role. Contended tenants are skipped, not retried inline: whoever holds
// the lock is doing the same repair.
type SyncAllJob struct {
	service GovernanceService
	logger  *slog.Logger
}

// NewSyncAllJob constructs a SyncAllJob.
func NewSyncAllJob(service GovernanceService, logger *slog.Logger) *SyncAllJob {
	return &SyncAllJob{service: service, logger: logger}
}

// Handle processes TaskGovernanceSyncAll tasks. Sync is idempotent, so a
// retried task redoes no harm.
func (j *SyncAllJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SyncAllPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	roleKeys := payload.RoleKeys
	if len(roleKeys) == 0 {
		for _, tpl := range j.service.ListRoleTemplates() {
			roleKeys = append(roleKeys, tpl.Key)
		}
	}

	tenants, err := j.service.ListTenants(ctx)
	if err != nil {
		return fmt.Errorf("jobs: list tenants: %w", err)
	}

	var synced, skipped, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(syncAllParallelism)
	for _, tn := range tenants {
		if tn.Status != tenant.StatusActive {
			skipped.Add(1)
			continue
		}
		g.Go(func() error {
			for _, roleKey := range roleKeys {
				_, err := j.service.SyncRole(ctx, tn.ID, roleKey)
				switch {
				case errors.Is(err, governance.ErrSyncInProgress):
					j.logger.Info("sync-all: tenant busy, skipping",
						slog.String("tenant", tn.Slug), slog.String("roleKey", roleKey))
					skipped.Add(1)
				case err != nil:
					j.logger.Error("sync-all: role sync failed",
						slog.String("tenant", tn.Slug),
						slog.String("roleKey", roleKey),
						slog.Any("error", err))
					failed.Add(1)
				default:
					synced.Add(1)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	j.logger.Info("sync-all finished",
		slog.Int64("synced", synced.Load()),
		slog.Int64("skipped", skipped.Load()),
		slog.Int64("failed", failed.Load()))
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("jobs: sync-all: %d role syncs failed", n)
	}
	return nil
}
