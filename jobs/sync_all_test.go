package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagemd/governance/internal/catalog"
	"github.com/pagemd/governance/internal/governance"
	"github.com/pagemd/governance/internal/tenant"
)

type stubGovernance struct {
	mu      sync.Mutex
	tenants []tenant.Tenant
	synced  map[string]int
	errFor  map[string]error
}

func newStubGovernance(tenants ...tenant.Tenant) *stubGovernance {
	return &stubGovernance{
		tenants: tenants,
		synced:  map[string]int{},
		errFor:  map[string]error{},
	}
}

func (s *stubGovernance) ListRoleTemplates() []catalog.RoleTemplate {
	return []catalog.RoleTemplate{
		{Key: "CLINIC_ADMIN", DisplayName: "Clinic Admin"},
		{Key: "PHYSICIAN", DisplayName: "Physician"},
	}
}

func (s *stubGovernance) ListTenants(context.Context) ([]tenant.Tenant, error) {
	return s.tenants, nil
}

func (s *stubGovernance) SyncRole(_ context.Context, tenantID uuid.UUID, roleKey string) (governance.RoleDrift, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tenantID.String() + "/" + roleKey
	if err, ok := s.errFor[key]; ok {
		return governance.RoleDrift{}, err
	}
	s.synced[key]++
	return governance.RoleDrift{RoleKey: roleKey, Status: governance.StatusSynced}, nil
}

func activeTenant(slug string) tenant.Tenant {
	return tenant.Tenant{ID: uuid.New(), Slug: slug, Status: tenant.StatusActive}
}

func syncAllTask(t *testing.T, payload SyncAllPayload) *asynq.Task {
	t.Helper()
	task, err := NewSyncAllTask(payload)
	require.NoError(t, err)
	return task
}

func TestSyncAllCoversEveryTenantAndRole(t *testing.T) {
	a, b := activeTenant("alpha"), activeTenant("bravo")
	stub := newStubGovernance(a, b)
	job := NewSyncAllJob(stub, slog.New(slog.DiscardHandler))

	err := job.Handle(context.Background(), syncAllTask(t, SyncAllPayload{}))
	require.NoError(t, err)

	assert.Len(t, stub.synced, 4)
	assert.Equal(t, 1, stub.synced[a.ID.String()+"/PHYSICIAN"])
	assert.Equal(t, 1, stub.synced[b.ID.String()+"/CLINIC_ADMIN"])
}

func TestSyncAllSkipsSuspendedTenants(t *testing.T) {
	active := activeTenant("open")
	suspended := tenant.Tenant{ID: uuid.New(), Slug: "closed", Status: tenant.StatusSuspended}
	stub := newStubGovernance(active, suspended)
	job := NewSyncAllJob(stub, slog.New(slog.DiscardHandler))

	require.NoError(t, job.Handle(context.Background(), syncAllTask(t, SyncAllPayload{})))

	for key := range stub.synced {
		assert.NotContains(t, key, suspended.ID.String())
	}
}

func TestSyncAllScopedRoleKeys(t *testing.T) {
	a := activeTenant("alpha")
	stub := newStubGovernance(a)
	job := NewSyncAllJob(stub, slog.New(slog.DiscardHandler))

	require.NoError(t, job.Handle(context.Background(),
		syncAllTask(t, SyncAllPayload{RoleKeys: []string{"PHYSICIAN"}})))

	assert.Len(t, stub.synced, 1)
	assert.Equal(t, 1, stub.synced[a.ID.String()+"/PHYSICIAN"])
}

func TestSyncAllContentionIsNotAFailure(t *testing.T) {
	a := activeTenant("alpha")
	stub := newStubGovernance(a)
	stub.errFor[a.ID.String()+"/PHYSICIAN"] = governance.ErrSyncInProgress
	job := NewSyncAllJob(stub, slog.New(slog.DiscardHandler))

	err := job.Handle(context.Background(), syncAllTask(t, SyncAllPayload{}))
	assert.NoError(t, err)
}

func TestSyncAllReportsFailures(t *testing.T) {
	a := activeTenant("alpha")
	stub := newStubGovernance(a)
	stub.errFor[a.ID.String()+"/CLINIC_ADMIN"] = errors.New("schema gone")
	job := NewSyncAllJob(stub, slog.New(slog.DiscardHandler))

	err := job.Handle(context.Background(), syncAllTask(t, SyncAllPayload{}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 role syncs failed")
	// The other role still synced.
	assert.Equal(t, 1, stub.synced[a.ID.String()+"/PHYSICIAN"])
}

func TestSyncAllMalformedPayloadSkipsRetry(t *testing.T) {
	job := NewSyncAllJob(newStubGovernance(), slog.New(slog.DiscardHandler))
	task := asynq.NewTask(TaskGovernanceSyncAll, []byte("{not json"))
	err := job.Handle(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestSyncAllTaskPayloadRoundTrip(t *testing.T) {
	task := syncAllTask(t, SyncAllPayload{RoleKeys: []string{"FRONT_DESK"}})
	var payload SyncAllPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, []string{"FRONT_DESK"}, payload.RoleKeys)
	assert.Equal(t, TaskGovernanceSyncAll, task.Type())
}
