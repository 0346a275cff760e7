package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/wheelworks/wheelworks/internal/alerts"
	"github.com/wheelworks/wheelworks/internal/bom"
	"github.com/wheelworks/wheelworks/internal/catalog"
	"github.com/wheelworks/wheelworks/internal/picklist"
	"github.com/wheelworks/wheelworks/internal/stock"
	"github.com/wheelworks/wheelworks/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	CatalogHandler  *catalog.Handler
	StockHandler    *stock.Handler
	AlertsHandler   *alerts.Handler
	BOMHandler      *bom.Handler
	PickListHandler *picklist.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with Wheelworks defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {
		params.CatalogHandler.MountRoutes(r)
		params.StockHandler.MountRoutes(r)
		params.AlertsHandler.MountRoutes(r)
		params.BOMHandler.MountRoutes(r)
		params.PickListHandler.MountRoutes(r)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
