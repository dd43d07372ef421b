package nightaudit

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// Handler exposes a manual trigger for the audit.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the trigger route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/night-audit/run", h.run)
}

// run triggers an audit synchronously. Without a date parameter it audits the
// hotel date that just ended (yesterday, UTC). Reruns are safe; already posted
// folios report as skipped.
func (h *Handler) run(w http.ResponseWriter, r *http.Request) {
	date := time.Now().UTC().AddDate(0, 0, -1)
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("invalid date %q: %w", raw, httpx.ErrValidation))
			return
		}
		date = parsed
	}

	report, err := h.service.Run(r.Context(), date)
	if err != nil {
		h.logger.Error("night audit run", slog.String("date", date.Format("2006-01-02")), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}
