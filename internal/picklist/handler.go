package picklist

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wheelworks/wheelworks/internal/platform/httpx"
)

// Handler wires HTTP endpoints for the pick list workflow.
type Handler struct {
	logger  *slog.Logger
	service *Service
	printer *DocumentPrinter
}

// NewHandler constructs the pick list handler.
func NewHandler(logger *slog.Logger, service *Service, printer *DocumentPrinter) *Handler {
	return &Handler{logger: logger, service: service, printer: printer}
}

// MountRoutes registers pick list routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/picklists", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.generate)
		r.Get("/{id}", h.get)
		r.Get("/{id}/document.pdf", h.document)
		r.Post("/{id}/assign", h.assign)
		r.Post("/{id}/complete", h.complete)
		r.Post("/{id}/cancel", h.cancel)
		r.Post("/{id}/items/{lineID}/scan", h.scan)
		r.Post("/{id}/items/{lineID}/skip", h.skip)
		r.Post("/{id}/items/{lineID}/location", h.assignLocation)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	orderID, _ := strconv.ParseInt(q.Get("order_id"), 10, 64)
	assigneeID, _ := strconv.ParseInt(q.Get("assignee_id"), 10, 64)
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	filter := Filter{
		Status:     Status(q.Get("status")),
		OrderID:    orderID,
		AssigneeID: assigneeID,
		Page:       page,
		PerPage:    perPage,
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	lists, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list pick lists", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"pick_lists": lists, "total": total})
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	var input GenerateInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pl, err := h.service.Generate(r.Context(), input)
	if err != nil {
		h.logger.Error("generate pick list", slog.Int64("order_id", input.OrderID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, pl)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pl, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) document(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pl, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	buf, err := h.printer.PickListPDF(pl)
	if err != nil {
		h.logger.Error("render pick list pdf", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="`+pl.Number+`.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) assign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input AssignInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pl, err := h.service.Assign(r.Context(), id, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) complete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pl, err := h.service.Complete(r.Context(), id)
	if err != nil {
		h.logger.Error("complete pick list", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pl, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel pick list", slog.Int64("id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request) {
	id, lineID, err := lineParams(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input ScanInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pl, err := h.service.Scan(r.Context(), id, lineID, input)
	if err != nil {
		h.logger.Error("scan pick list item", slog.Int64("id", id), slog.Int64("line_id", lineID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) skip(w http.ResponseWriter, r *http.Request) {
	id, lineID, err := lineParams(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pl, err := h.service.Skip(r.Context(), id, lineID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func (h *Handler) assignLocation(w http.ResponseWriter, r *http.Request) {
	id, lineID, err := lineParams(r)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var input ReassignLocationInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	pl, err := h.service.AssignLocation(r.Context(), id, lineID, input)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pl)
}

func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func lineParams(r *http.Request) (int64, int64, error) {
	id, err := idParam(r)
	if err != nil {
		return 0, 0, err
	}
	lineID, err := strconv.ParseInt(chi.URLParam(r, "lineID"), 10, 64)
	return id, lineID, err
}
