package invoice

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// Handler manages invoice endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers invoice routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/folios/{id}/invoices", h.generate)
	r.Get("/folios/{id}/invoices", h.listByFolio)
	r.Get("/invoices/{id}", h.get)
	r.Post("/invoices/{id}/cancel", h.cancel)
}

type invoiceView struct {
	ID             int64      `json:"id"`
	FolioID        int64      `json:"folio_id"`
	Code           string     `json:"code"`
	Subtotal       int64      `json:"subtotal"`
	SurchargeTotal int64      `json:"surcharge_total"`
	DiscountTotal  int64      `json:"discount_total"`
	TaxTotal       int64      `json:"tax_total"`
	Total          int64      `json:"total"`
	PaidTotal      int64      `json:"paid_total"`
	BalanceDue     int64      `json:"balance_due"`
	Cancelled      bool       `json:"cancelled"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	GeneratedAt    time.Time  `json:"generated_at"`
}

type lineView struct {
	ID          int64  `json:"id"`
	PostingID   int64  `json:"posting_id"`
	Kind        string `json:"kind"`
	Description string `json:"description,omitempty"`
	Amount      int64  `json:"amount"`
	TaxAmount   int64  `json:"tax_amount"`
}

func toInvoiceView(inv *Invoice) invoiceView {
	return invoiceView{
		ID:             inv.ID,
		FolioID:        inv.FolioID,
		Code:           inv.Code,
		Subtotal:       inv.Subtotal,
		SurchargeTotal: inv.SurchargeTotal,
		DiscountTotal:  inv.DiscountTotal,
		TaxTotal:       inv.TaxTotal,
		Total:          inv.Total,
		PaidTotal:      inv.PaidTotal,
		BalanceDue:     inv.BalanceDue,
		Cancelled:      inv.Cancelled,
		CancelledAt:    inv.CancelledAt,
		GeneratedAt:    inv.GeneratedAt,
	}
}

func toDetailView(d *WithLines) map[string]any {
	lines := make([]lineView, 0, len(d.Lines))
	for _, l := range d.Lines {
		lines = append(lines, lineView{
			ID:          l.ID,
			PostingID:   l.PostingID,
			Kind:        l.Kind,
			Description: l.Description,
			Amount:      l.Amount,
			TaxAmount:   l.TaxAmount,
		})
	}
	return map[string]any{"invoice": toInvoiceView(&d.Invoice), "lines": lines}
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	folioID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Generate(r.Context(), folioID)
	if err != nil {
		h.logger.Error("generate invoice", slog.Int64("folio_id", folioID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDetailView(detail))
}

func (h *Handler) listByFolio(w http.ResponseWriter, r *http.Request) {
	folioID, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	invoices, err := h.service.ListByFolio(r.Context(), folioID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	views := make([]invoiceView, 0, len(invoices))
	for i := range invoices {
		views = append(views, toInvoiceView(&invoices[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": views})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toDetailView(detail))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	inv, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel invoice", slog.Int64("invoice_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceView(inv))
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %w", httpx.ErrValidation)
	}
	return id, nil
}
