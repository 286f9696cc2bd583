// Package jobs contains the background task definitions and the Asynq
// worker wiring for bulk governance repair.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskGovernanceSyncAll repairs every canonical role across every
	// registered tenant.
	TaskGovernanceSyncAll = "governance:sync_all"
)

// SyncAllPayload scopes a bulk repair run. An empty RoleKeys slice means
// every canonical role.
type SyncAllPayload struct {
	RoleKeys []string `json:"roleKeys,omitempty"`
}

// NewSyncAllTask constructs an Asynq task for a bulk repair run.
func NewSyncAllTask(payload SyncAllPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGovernanceSyncAll, data), nil
}
