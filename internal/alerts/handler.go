package alerts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wheelworks/wheelworks/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock alerts.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the alerts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers alert routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/{id}/acknowledge", h.acknowledge)
		r.Post("/evaluate/{itemID}", h.evaluate)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemID, _ := strconv.ParseInt(q.Get("item_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := Filter{
		ItemID:     itemID,
		Type:       AlertType(q.Get("type")),
		ActiveOnly: q.Get("include_resolved") != "true",
		Limit:      limit,
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	alerts, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list alerts", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	alert, err := h.service.Acknowledge(r.Context(), id)
	if err != nil {
		h.logger.Error("acknowledge alert", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, alert)
}

// evaluate forces a synchronous re-evaluation, useful after manual data fixes.
func (h *Handler) evaluate(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.Evaluate(r.Context(), itemID); err != nil {
		h.logger.Error("evaluate alerts", slog.Int64("item_id", itemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
