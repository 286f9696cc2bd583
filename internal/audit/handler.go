package audit

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pagemd/governance/internal/platform/httpx"
)

// Handler exposes the audit endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/governance/audit", h.handleTimeline)
	r.Get("/governance/audit/verify", h.handleVerify)
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := TimelineFilters{Action: q.Get("action")}
	filters.Page, _ = strconv.Atoi(q.Get("page"))
	filters.PageSize, _ = strconv.Atoi(q.Get("pageSize"))

	if raw := q.Get("tenant"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: tenant must be a UUID", httpx.ErrValidation))
			return
		}
		filters.TenantID = id
	}
	for param, dst := range map[string]*time.Time{"from": &filters.From, "to": &filters.To} {
		if raw := q.Get(param); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				httpx.RespondError(w, fmt.Errorf("%w: %s must be RFC3339", httpx.ErrValidation, param))
				return
			}
			*dst = t
		}
	}

	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httpx.RespondError(w, fmt.Errorf("%w: limit must be a non-negative integer", httpx.ErrValidation))
			return
		}
		limit = n
	}
	result, err := h.service.VerifyIntegrity(r.Context(), limit)
	if err != nil {
		h.logger.Error("audit verify", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}
