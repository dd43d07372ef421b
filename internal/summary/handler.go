package summary

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// Handler serves the summary endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers summary routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/folios/{id}/summary", h.get)
}

type stayView struct {
	ID        int64  `json:"id"`
	Code      string `json:"code"`
	GuestName string `json:"guest_name"`
	Status    string `json:"status"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	Nights    int    `json:"nights"`
	Occupants int    `json:"occupants"`
}

type folioView struct {
	ID           int64  `json:"id"`
	Status       string `json:"status"`
	TotalCharges int64  `json:"total_charges"`
	TotalCredits int64  `json:"total_credits"`
	TotalTax     int64  `json:"total_tax"`
	Balance      int64  `json:"balance"`
}

type postingView struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	Amount      int64  `json:"amount"`
	TaxAmount   int64  `json:"tax_amount"`
	Description string `json:"description,omitempty"`
	Voided      bool   `json:"voided"`
}

type invoiceView struct {
	ID         int64  `json:"id"`
	Code       string `json:"code"`
	Total      int64  `json:"total"`
	BalanceDue int64  `json:"balance_due"`
	Cancelled  bool   `json:"cancelled"`
}

type requestView struct {
	ID             string    `json:"id"`
	Narration      string    `json:"narration"`
	ExpectedAmount int64     `json:"expected_amount"`
	PaidAmount     *int64    `json:"paid_amount,omitempty"`
	Status         string    `json:"status"`
	ExpiresAt      time.Time `json:"expires_at"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("invalid id: %w", httpx.ErrValidation))
		return
	}
	view, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.logger.Error("folio summary", slog.Int64("folio_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	postings := make([]postingView, 0, len(view.Postings))
	for _, p := range view.Postings {
		postings = append(postings, postingView{
			ID:          p.ID,
			Kind:        string(p.Kind),
			Amount:      p.Amount,
			TaxAmount:   p.TaxAmount,
			Description: p.Description,
			Voided:      p.Voided,
		})
	}
	invoices := make([]invoiceView, 0, len(view.Invoices))
	for _, inv := range view.Invoices {
		invoices = append(invoices, invoiceView{
			ID:         inv.ID,
			Code:       inv.Code,
			Total:      inv.Total,
			BalanceDue: inv.BalanceDue,
			Cancelled:  inv.Cancelled,
		})
	}
	requests := make([]requestView, 0, len(view.Requests))
	for _, req := range view.Requests {
		requests = append(requests, requestView{
			ID:             req.ID.String(),
			Narration:      req.Narration,
			ExpectedAmount: req.ExpectedAmount,
			PaidAmount:     req.PaidAmount,
			Status:         string(req.Status),
			ExpiresAt:      req.ExpiresAt,
		})
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"stay": stayView{
			ID:        view.Stay.ID,
			Code:      view.Stay.Code,
			GuestName: view.Stay.GuestName,
			Status:    string(view.Stay.Status),
			CheckIn:   view.Stay.CheckIn.Format("2006-01-02"),
			CheckOut:  view.Stay.CheckOut.Format("2006-01-02"),
			Nights:    view.Stay.Nights,
			Occupants: view.Stay.Occupants,
		},
		"folio": folioView{
			ID:           view.Folio.ID,
			Status:       string(view.Folio.Status),
			TotalCharges: view.Folio.TotalCharges,
			TotalCredits: view.Folio.TotalCredits,
			TotalTax:     view.Folio.TotalTax,
			Balance:      view.Folio.Balance,
		},
		"postings":         postings,
		"invoices":         invoices,
		"payment_requests": requests,
		"outstanding":      view.Outstanding,
	})
}
