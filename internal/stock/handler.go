package stock

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wheelworks/wheelworks/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock levels, movements and serials.
type Handler struct {
	logger  *slog.Logger
	service *Service
	labels  *LabelPrinter
	summary *SummaryCache
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service, labels *LabelPrinter, summary *SummaryCache) *Handler {
	return &Handler{logger: logger, service: service, labels: labels, summary: summary}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/stock", func(r chi.Router) {
		r.Get("/summary", h.stockSummary)
		r.Get("/levels", h.listLevels)
		r.Get("/levels/{itemID}/{locationID}", h.getLevel)
		r.Get("/transactions", h.listTransactions)
		r.Post("/receive", h.receive)
		r.Post("/transfer", h.transfer)
		r.Post("/adjust", h.adjust)
		r.Post("/return", h.returnStock)
		r.Post("/scrap", h.scrap)
	})
	r.Route("/serials", func(r chi.Router) {
		r.Get("/", h.listSerials)
		r.Get("/{id}", h.getSerial)
		r.Get("/barcode/{code}", h.getSerialByBarcode)
		r.Get("/{id}/label.png", h.serialLabelPNG)
		r.Post("/labels.pdf", h.labelSheetPDF)
	})
}

// invalidateSummary drops the cached shop summary after a movement commits,
// so the next dashboard read is not stale for the remainder of the TTL.
func (h *Handler) invalidateSummary(ctx context.Context) {
	if h.summary == nil {
		return
	}
	h.summary.Invalidate(ctx)
}

func (h *Handler) stockSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.summary.Summary(r.Context())
	if err != nil {
		h.logger.Error("stock summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) listLevels(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemID, _ := strconv.ParseInt(q.Get("item_id"), 10, 64)
	locationID, _ := strconv.ParseInt(q.Get("location_id"), 10, 64)
	filter := LevelFilter{
		ItemID:       itemID,
		LocationID:   locationID,
		BelowReorder: q.Get("below_reorder") == "true",
	}
	levels, err := h.service.ListLevels(r.Context(), filter)
	if err != nil {
		h.logger.Error("list stock levels", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"levels": levels})
}

func (h *Handler) getLevel(w http.ResponseWriter, r *http.Request) {
	itemID, err1 := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	locationID, err2 := strconv.ParseInt(chi.URLParam(r, "locationID"), 10, 64)
	if err1 != nil || err2 != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	level, err := h.service.GetLevel(r.Context(), itemID, locationID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, level)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemID, _ := strconv.ParseInt(q.Get("item_id"), 10, 64)
	locationID, _ := strconv.ParseInt(q.Get("location_id"), 10, 64)
	limit, _ := strconv.Atoi(q.Get("limit"))
	filter := TransactionFilter{
		ItemID:     itemID,
		LocationID: locationID,
		Type:       TransactionType(q.Get("type")),
		Limit:      limit,
	}
	if raw := q.Get("from"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.From = t
		}
	}
	if raw := q.Get("to"); raw != "" {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			filter.To = t
		}
	}
	if filter.Type != "" && !filter.Type.IsValid() {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	txs, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.logger.Error("list transactions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var input ReceiveInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	tx, err := h.service.Receive(r.Context(), input)
	if err != nil {
		h.logger.Error("receive stock", slog.Int64("item_id", input.ItemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.invalidateSummary(r.Context())
	httpx.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var input TransferInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	tx, err := h.service.Transfer(r.Context(), input)
	if err != nil {
		h.logger.Error("transfer stock", slog.Int64("item_id", input.ItemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.invalidateSummary(r.Context())
	httpx.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) adjust(w http.ResponseWriter, r *http.Request) {
	var input AdjustInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	tx, err := h.service.Adjust(r.Context(), input)
	if err != nil {
		h.logger.Error("adjust stock", slog.Int64("item_id", input.ItemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.invalidateSummary(r.Context())
	httpx.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) returnStock(w http.ResponseWriter, r *http.Request) {
	var input ReturnInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	tx, err := h.service.Return(r.Context(), input)
	if err != nil {
		h.logger.Error("return stock", slog.Int64("item_id", input.ItemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.invalidateSummary(r.Context())
	httpx.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) scrap(w http.ResponseWriter, r *http.Request) {
	var input ScrapInput
	if err := httpx.DecodeJSON(r, &input); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	tx, err := h.service.Scrap(r.Context(), input)
	if err != nil {
		h.logger.Error("scrap stock", slog.Int64("item_id", input.ItemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.invalidateSummary(r.Context())
	httpx.JSON(w, http.StatusCreated, tx)
}

func (h *Handler) listSerials(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	itemID, _ := strconv.ParseInt(q.Get("item_id"), 10, 64)
	status := SerialStatus(q.Get("status"))
	if status != "" && !status.IsValid() {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	serials, err := h.service.ListSerials(r.Context(), itemID, status)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"serials": serials})
}

func (h *Handler) getSerial(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	serial, err := h.service.GetSerial(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, serial)
}

func (h *Handler) getSerialByBarcode(w http.ResponseWriter, r *http.Request) {
	serial, err := h.service.GetSerialByBarcode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, serial)
}

func (h *Handler) serialLabelPNG(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	serial, err := h.service.GetSerial(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	png, err := h.labels.BarcodePNG(serial.Barcode)
	if err != nil {
		h.logger.Error("render label", slog.Int64("serial_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

func (h *Handler) labelSheetPDF(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SerialIDs []int64 `json:"serial_ids"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil || len(req.SerialIDs) == 0 {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	serials := make([]SerialItem, 0, len(req.SerialIDs))
	for _, id := range req.SerialIDs {
		serial, err := h.service.GetSerial(r.Context(), id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		serials = append(serials, serial)
	}
	pdf, err := h.labels.LabelSheet(serials)
	if err != nil {
		h.logger.Error("render label sheet", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="labels.pdf"`)
	w.WriteHeader(http.StatusOK)
	_, _ = pdf.WriteTo(w)
}
