package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/pagemd/governance/internal/catalog"
	"github.com/pagemd/governance/internal/platform/httpx"
	"github.com/pagemd/governance/internal/tenant"
)

// TaskEnqueuer schedules background work. The returned id identifies the
// queued task for tracing.
type TaskEnqueuer interface {
	EnqueueSyncAll(ctx context.Context) (string, error)
}

// Handler exposes the governance endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer TaskEnqueuer
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, enqueuer TaskEnqueuer) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		enqueuer: enqueuer,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers governance routes. Callers wrap the router with
// platform-admin authorization.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/governance/roles", h.handleListRoleTemplates)
	r.Get("/tenants/{tenantID}/governance/drift", h.handleDriftReport)
	r.Post("/tenants/{tenantID}/governance/sync", h.handleSyncRole)
	r.Post("/governance/sync-all", h.handleSyncAll)
}

type roleTemplatesResponse struct {
	CatalogVersion int                    `json:"catalogVersion"`
	Roles          []catalog.RoleTemplate `json:"roles"`
}

func (h *Handler) handleListRoleTemplates(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, roleTemplatesResponse{
		CatalogVersion: h.service.catalog.Version(),
		Roles:          h.service.ListRoleTemplates(),
	})
}

func (h *Handler) handleDriftReport(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: tenant id must be a UUID", httpx.ErrValidation))
		return
	}
	report, err := h.service.DriftReport(r.Context(), tenantID)
	if err != nil {
		h.respondError(w, "drift report", err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

type syncRoleRequest struct {
	RoleKey string `json:"roleKey" validate:"required"`
}

type syncRoleResponse struct {
	TenantID uuid.UUID `json:"tenantId"`
	Result   RoleDrift `json:"result"`
}

func (h *Handler) handleSyncRole(w http.ResponseWriter, r *http.Request) {
	tenantID, err := uuid.Parse(chi.URLParam(r, "tenantID"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: tenant id must be a UUID", httpx.ErrValidation))
		return
	}
	var req syncRoleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed request body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: roleKey is required", httpx.ErrValidation))
		return
	}
	result, err := h.service.SyncRole(r.Context(), tenantID, req.RoleKey)
	if err != nil {
		h.respondError(w, "sync role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, syncRoleResponse{TenantID: tenantID, Result: result})
}

type syncAllResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

func (h *Handler) handleSyncAll(w http.ResponseWriter, r *http.Request) {
	if h.enqueuer == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Unavailable", "background queue is not configured")
		return
	}
	taskID, err := h.enqueuer.EnqueueSyncAll(r.Context())
	if err != nil {
		h.logger.Error("enqueue sync-all", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusAccepted, syncAllResponse{TaskID: taskID, Status: "queued"})
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		httpx.RespondError(w, fmt.Errorf("%w: tenant not found", httpx.ErrNotFound))
	case errors.Is(err, ErrUnknownRoleKey):
		httpx.RespondError(w, fmt.Errorf("%w: unknown role key", httpx.ErrValidation))
	case errors.Is(err, ErrSyncInProgress):
		httpx.RespondError(w, fmt.Errorf("%w: retry after the running sync finishes", httpx.ErrSyncInProgress))
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
