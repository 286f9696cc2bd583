package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/pagemd/governance/internal/catalog"
	"github.com/pagemd/governance/internal/tenant"
)

// ActionRoleForceSync is the audit action recorded per completed sync.
const ActionRoleForceSync = "ROLE_FORCE_SYNC"

// RegistryPort resolves tenant identities.
type RegistryPort interface {
	Resolve(ctx context.Context, id uuid.UUID) (tenant.Tenant, error)
	List(ctx context.Context) ([]tenant.Tenant, error)
}

// AuditRecorder appends one entry per completed sync. Audit durability is
// deliberately decoupled from state correctness: a failed write is a
// monitoring signal, never a sync failure.
type AuditRecorder interface {
	Record(ctx context.Context, action string, tenantID uuid.UUID, details map[string]any) error
}

// CachePort caches drift reports per tenant.
type CachePort interface {
	Get(ctx context.Context, tenantID uuid.UUID, catalogVersion int) (Report, bool, error)
	Set(ctx context.Context, report Report) error
	Invalidate(ctx context.Context, tenantID uuid.UUID, catalogVersion int) error
}

// MetricsPort records engine outcomes.
type MetricsPort interface {
	ObserveSync(result string)
	ObserveDrift(status string)
	AuditWriteFailed()
}

// ServiceConfig collects the service dependencies. Audit, Cache and
// Metrics are optional.
type ServiceConfig struct {
	Catalog  *catalog.Catalog
	Repo     RepositoryPort
	Registry RegistryPort
	Audit    AuditRecorder
	Cache    CachePort
	Metrics  MetricsPort
	Logger   *slog.Logger
}

// Service orchestrates drift detection and remediation.
type Service struct {
	catalog  *catalog.Catalog
	repo     RepositoryPort
	registry RegistryPort
	audit    AuditRecorder
	cache    CachePort
	metrics  MetricsPort
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog:  cfg.Catalog,
		repo:     cfg.Repo,
		registry: cfg.Registry,
		audit:    cfg.Audit,
		cache:    cfg.Cache,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// ListRoleTemplates returns the canonical catalog in role key order.
func (s *Service) ListRoleTemplates() []catalog.RoleTemplate {
	return s.catalog.RoleTemplates()
}

// DriftReport computes the drift classification for every canonical role
// key of one tenant. Lock-free read; MISSING entries are normal output for
// a fresh tenant, never an error.
func (s *Service) DriftReport(ctx context.Context, tenantID uuid.UUID) (Report, error) {
	t, err := s.registry.Resolve(ctx, tenantID)
	if err != nil {
		return Report{}, err
	}

	if cached, ok, err := s.cacheGet(ctx, t.ID); err != nil {
		s.logger.Warn("drift cache read failed", slog.Any("error", err))
	} else if ok {
		return cached, nil
	}

	templates := s.catalog.RoleTemplates()
	report := Report{
		TenantID:       t.ID,
		CatalogVersion: s.catalog.Version(),
		Drift:          make([]RoleDrift, 0, len(templates)),
	}
	for _, tpl := range templates {
		state, err := s.repo.RoleState(ctx, t, tpl.Key, tpl.DisplayName)
		if err != nil {
			return Report{}, fmt.Errorf("governance: drift for %s: %w", tpl.Key, err)
		}
		drift := computeDrift(tpl, state, s.catalog.KnownPrivilege)
		s.observeDrift(drift.Status)
		report.Drift = append(report.Drift, drift)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, report); err != nil {
			s.logger.Warn("drift cache write failed", slog.Any("error", err))
		}
	}
	return report, nil
}

// RoleDriftFor computes the drift classification for a single role key.
func (s *Service) RoleDriftFor(ctx context.Context, tenantID uuid.UUID, roleKey string) (RoleDrift, error) {
	tpl, ok := s.catalog.Template(roleKey)
	if !ok {
		return RoleDrift{}, ErrUnknownRoleKey
	}
	t, err := s.registry.Resolve(ctx, tenantID)
	if err != nil {
		return RoleDrift{}, err
	}
	state, err := s.repo.RoleState(ctx, t, tpl.Key, tpl.DisplayName)
	if err != nil {
		return RoleDrift{}, fmt.Errorf("governance: drift for %s: %w", tpl.Key, err)
	}
	return computeDrift(tpl, state, s.catalog.KnownPrivilege), nil
}

// SyncRole repairs one tenant role to exactly match its canonical
// template. All mutations run inside one transaction under the tenant's
// advisory lock; the role id and every user assignment referencing it are
// left untouched. Re-running against an already synced role is a no-op.
func (s *Service) SyncRole(ctx context.Context, tenantID uuid.UUID, roleKey string) (RoleDrift, error) {
	tpl, ok := s.catalog.Template(roleKey)
	if !ok {
		return RoleDrift{}, ErrUnknownRoleKey
	}
	t, err := s.registry.Resolve(ctx, tenantID)
	if err != nil {
		return RoleDrift{}, err
	}

	var missing, extra []string
	var assignedUsers int64
	err = s.repo.SyncTx(ctx, t, func(ctx context.Context, tx SyncTx) error {
		role, err := tx.FetchRole(ctx, tpl.Key, tpl.DisplayName)
		created := false
		switch {
		case errors.Is(err, tenant.ErrRoleNotFound):
			role, err = tx.CreateRole(ctx, tpl.DisplayName,
				"Standard platform role: "+tpl.DisplayName, tpl.Key)
			if err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		}

		if !created && (role.SourceRoleKey != tpl.Key || role.Name != tpl.DisplayName || !role.IsSystemRole) {
			if err := tx.LinkRoleToTemplate(ctx, role.ID, tpl.Key, tpl.DisplayName); err != nil {
				return err
			}
		}

		current, err := tx.ListLinkedPrivilegeNames(ctx, role.ID)
		if err != nil {
			return err
		}
		currentSet := make(map[string]struct{}, len(current))
		for _, name := range current {
			currentSet[name] = struct{}{}
		}
		canonicalSet := make(map[string]struct{}, len(tpl.Privileges))
		for _, name := range tpl.Privileges {
			canonicalSet[name] = struct{}{}
		}

		missing = missing[:0]
		extra = extra[:0]
		for _, name := range tpl.Privileges {
			if _, ok := currentSet[name]; !ok {
				missing = append(missing, name)
			}
		}
		for _, name := range current {
			if _, ok := canonicalSet[name]; !ok {
				extra = append(extra, name)
			}
		}
		sort.Strings(missing)
		sort.Strings(extra)

		missingSet := make(map[string]struct{}, len(missing))
		for _, name := range missing {
			missingSet[name] = struct{}{}
		}

		// Privilege rows are schema-local: make sure every canonical name
		// exists before linking, then apply the minimal diff.
		for _, name := range tpl.Privileges {
			def, _ := s.catalog.PrivilegeDef(name)
			privilegeID, err := tx.FetchOrCreatePrivilege(ctx, name, def.Description, def.Category)
			if err != nil {
				return err
			}
			if _, ok := missingSet[name]; ok {
				if err := tx.LinkPrivilege(ctx, role.ID, privilegeID); err != nil {
					return err
				}
			}
		}
		for _, name := range extra {
			if err := tx.UnlinkPrivilegeByName(ctx, role.ID, name); err != nil {
				return err
			}
		}

		assignedUsers, err = tx.CountUsersReferencing(ctx, role.ID)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			s.observeSync("contended")
		} else {
			s.observeSync("error")
		}
		return RoleDrift{}, err
	}
	s.observeSync("ok")

	s.invalidateCache(ctx, t.ID)
	s.recordAudit(ctx, t.ID, tpl.Key, missing, extra, assignedUsers)

	return RoleDrift{
		RoleKey:     tpl.Key,
		DisplayName: tpl.DisplayName,
		Status:      StatusSynced,
		Linked:      true,
		Missing:     []string{},
		Extra:       []string{},
		Unknown:     []string{},
	}, nil
}

// ListTenants exposes the registry for bulk operations.
func (s *Service) ListTenants(ctx context.Context) ([]tenant.Tenant, error) {
	return s.registry.List(ctx)
}

func (s *Service) cacheGet(ctx context.Context, tenantID uuid.UUID) (Report, bool, error) {
	if s.cache == nil {
		return Report{}, false, nil
	}
	return s.cache.Get(ctx, tenantID, s.catalog.Version())
}

func (s *Service) invalidateCache(ctx context.Context, tenantID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tenantID, s.catalog.Version()); err != nil {
		s.logger.Warn("drift cache invalidate failed",
			slog.String("tenant", tenantID.String()), slog.Any("error", err))
	}
}

// recordAudit writes the ROLE_FORCE_SYNC entry after the commit. The sync
// already succeeded; a failed write is surfaced to monitoring only.
func (s *Service) recordAudit(ctx context.Context, tenantID uuid.UUID, roleKey string, missing, extra []string, assignedUsers int64) {
	if s.audit == nil {
		return
	}
	details := map[string]any{
		"roleKey":        roleKey,
		"missing":        missing,
		"extra":          extra,
		"assignedUsers":  assignedUsers,
		"catalogVersion": s.catalog.Version(),
	}
	if err := s.audit.Record(ctx, ActionRoleForceSync, tenantID, details); err != nil {
		s.logger.Error("audit write failed after sync",
			slog.String("tenant", tenantID.String()),
			slog.String("roleKey", roleKey),
			slog.Any("error", err))
		if s.metrics != nil {
			s.metrics.AuditWriteFailed()
		}
	}
}

func (s *Service) observeSync(result string) {
	if s.metrics != nil {
		s.metrics.ObserveSync(result)
	}
}

func (s *Service) observeDrift(status DriftStatus) {
	if s.metrics != nil {
		s.metrics.ObserveDrift(string(status))
	}
}
