package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/finledger/finledger/internal/accounting/accounts"
	"github.com/finledger/finledger/internal/accounting/journals"
	"github.com/finledger/finledger/internal/accounting/mappings"
	"github.com/finledger/finledger/internal/accounting/periods"
	"github.com/finledger/finledger/internal/depreciation"
	"github.com/finledger/finledger/internal/ingest"
	"github.com/finledger/finledger/internal/observability"
	"github.com/finledger/finledger/internal/recon"
	"github.com/finledger/finledger/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger              *slog.Logger
	Config              *Config
	AccountsHandler     *accounts.Handler
	PeriodsHandler      *periods.Handler
	JournalsHandler     *journals.Handler
	MappingsHandler     *mappings.Handler
	IngestHandler       *ingest.Handler
	ReconHandler        *recon.Handler
	DepreciationHandler *depreciation.Handler
	JobsHandler         *jobs.Handler
	Metrics             *observability.Metrics
}

// NewRouter constructs the chi.Router with FinLedger defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if params.AccountsHandler != nil {
			r.Route("/accounts", params.AccountsHandler.MountRoutes)
		}
		if params.PeriodsHandler != nil {
			r.Route("/fiscal-periods", params.PeriodsHandler.MountRoutes)
		}
		if params.JournalsHandler != nil {
			r.Route("/journal-entries", params.JournalsHandler.MountRoutes)
		}
		if params.MappingsHandler != nil {
			r.Route("/account-mappings", params.MappingsHandler.MountRoutes)
		}
		if params.IngestHandler != nil {
			r.Route("/events", params.IngestHandler.MountRoutes)
		}
		if params.ReconHandler != nil {
			r.Route("/reconciliation", params.ReconHandler.MountRoutes)
		}
		if params.DepreciationHandler != nil {
			r.Route("/depreciation", params.DepreciationHandler.MountRoutes)
		}
		if params.JobsHandler != nil {
			r.Route("/jobs", params.JobsHandler.MountRoutes)
		}
	})

	return r
}
