package tenant

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pagemd/governance/internal/platform/httpx"
)

// Handler exposes tenant registry endpoints.
type Handler struct {
	logger   *slog.Logger
	registry *Registry
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, registry *Registry) *Handler {
	return &Handler{
		logger:   logger,
		registry: registry,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers tenant routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/tenants", h.handleList)
	r.Post("/tenants", h.handleProvision)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.registry.List(r.Context())
	if err != nil {
		h.logger.Error("list tenants", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"tenants": tenants})
}

type provisionRequest struct {
	Slug        string `json:"slug" validate:"required"`
	DisplayName string `json:"displayName" validate:"required"`
}

func (h *Handler) handleProvision(w http.ResponseWriter, r *http.Request) {
	var req provisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed request body", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: slug and displayName are required", httpx.ErrValidation))
		return
	}
	t, err := h.registry.Provision(r.Context(), req.Slug, req.DisplayName)
	switch {
	case errors.Is(err, ErrInvalidSlug):
		httpx.RespondError(w, fmt.Errorf("%w: %s", httpx.ErrValidation, err))
		return
	case errors.Is(err, ErrSlugTaken):
		httpx.RespondError(w, fmt.Errorf("%w: slug already in use", httpx.ErrConflict))
		return
	case err != nil:
		h.logger.Error("provision tenant", slog.Any("error", err), slog.String("slug", req.Slug))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}
