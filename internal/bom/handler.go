package bom

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wheelworks/wheelworks/internal/platform/httpx"
)

// Handler wires HTTP endpoints for bills of materials.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the BOM handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers BOM routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/boms", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/default", h.selectDefault)
		r.Get("/{id}", h.get)
		r.Put("/{id}", h.update)
		r.Delete("/{id}", h.remove)
		r.Post("/{id}/default", h.setDefault)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	boms, err := h.service.List(r.Context(), r.URL.Query().Get("product_type"))
	if err != nil {
		h.logger.Error("list boms", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"boms": boms})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	b, err := h.service.Create(r.Context(), input)
	if err != nil {
		h.logger.Error("create bom", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, b)
}

func (h *Handler) selectDefault(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	productType := q.Get("product_type")
	if productType == "" {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	b, err := h.service.SelectDefault(r.Context(), productType, q.Get("rim_size"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input Input
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	b, err := h.service.Update(r.Context(), id, input)
	if err != nil {
		h.logger.Error("update bom", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) setDefault(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	b, err := h.service.SetDefault(r.Context(), id)
	if err != nil {
		h.logger.Error("set default bom", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, b)
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
