package qr

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// Handler manages payment request endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers payment request routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/qr-requests", h.create)
	r.Get("/qr-requests/{id}", h.get)
	r.Post("/qr-requests/{id}/cancel", h.cancel)
}

type createRequest struct {
	FolioID    int64 `json:"folio_id" validate:"required,gt=0"`
	Amount     int64 `json:"amount" validate:"required,gt=0"`
	TTLMinutes int   `json:"ttl_minutes" validate:"gte=0,lte=1440"`
}

type requestView struct {
	ID             uuid.UUID     `json:"id"`
	FolioID        int64         `json:"folio_id"`
	Narration      string        `json:"narration"`
	ExpectedAmount int64         `json:"expected_amount"`
	PaidAmount     *int64        `json:"paid_amount,omitempty"`
	AmountDiff     *int64        `json:"amount_diff,omitempty"`
	ImageRef       string        `json:"image_ref"`
	Status         RequestStatus `json:"status"`
	ExpiresAt      time.Time     `json:"expires_at"`
	ResolvedAt     *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// toRequestView exposes the classification and the signed amount difference
// so staff can resolve OVERPAID/UNDERPAID cases by hand.
func toRequestView(p *PaymentRequest) requestView {
	v := requestView{
		ID:             p.ID,
		FolioID:        p.FolioID,
		Narration:      p.Narration,
		ExpectedAmount: p.ExpectedAmount,
		PaidAmount:     p.PaidAmount,
		ImageRef:       p.ImageRef,
		Status:         p.Status,
		ExpiresAt:      p.ExpiresAt,
		ResolvedAt:     p.ResolvedAt,
		CreatedAt:      p.CreatedAt,
	}
	if p.PaidAmount != nil {
		diff := *p.PaidAmount - p.ExpectedAmount
		v.AmountDiff = &diff
	}
	return v
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err, httpx.ErrValidation))
		return
	}
	resp, err := h.service.Create(r.Context(), req.FolioID, req.Amount, time.Duration(req.TTLMinutes)*time.Minute)
	if err != nil {
		h.logger.Error("create payment request", slog.Int64("folio_id", req.FolioID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"request":        toRequestView(resp.Request),
		"bank_code":      resp.BankCode,
		"account_number": resp.AccountNumber,
		"holder_name":    resp.HolderName,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid id: %w", httpx.ErrValidation))
		return
	}
	p, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestView(p))
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("invalid id: %w", httpx.ErrValidation))
		return
	}
	p, err := h.service.Cancel(r.Context(), id)
	if err != nil {
		h.logger.Error("cancel payment request", slog.String("id", id.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toRequestView(p))
}
