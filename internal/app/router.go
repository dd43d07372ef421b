package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/invoice"
	"github.com/harborstay/harborstay/internal/nightaudit"
	"github.com/harborstay/harborstay/internal/observability"
	"github.com/harborstay/harborstay/internal/qr"
	"github.com/harborstay/harborstay/internal/recon"
	"github.com/harborstay/harborstay/internal/summary"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger            *slog.Logger
	Config            *Config
	FolioHandler      *folio.Handler
	QRHandler         *qr.Handler
	InvoiceHandler    *invoice.Handler
	SummaryHandler    *summary.Handler
	ReconHandler      *recon.Handler
	NightAuditHandler *nightaudit.Handler
	Metrics           *observability.Metrics
}

// NewRouter constructs the chi.Router with Harborstay defaults. The webhook
// endpoint stays outside the staff API group; the bank provider authenticates
// with the payload signature, not the API key.
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
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())

	r.Route("/webhooks", func(r chi.Router) {
		params.ReconHandler.MountRoutes(r)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(APIKeyAuth(params.Config.StaffAPIKeyHash, params.Logger))
		params.FolioHandler.MountRoutes(r)
		params.QRHandler.MountRoutes(r)
		params.InvoiceHandler.MountRoutes(r)
		params.SummaryHandler.MountRoutes(r)
		params.NightAuditHandler.MountRoutes(r)
		params.ReconHandler.MountStaffRoutes(r)
	})

	return r
}
