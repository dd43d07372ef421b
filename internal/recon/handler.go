package recon

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harborstay/harborstay/internal/observability"
	"github.com/harborstay/harborstay/internal/platform/httpx"
	"github.com/harborstay/harborstay/internal/shared"
)

// Handler receives bank webhook deliveries.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	repo     *Repository
	audit    *shared.AuditLogger
	metrics  *observability.Metrics
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, repo *Repository, audit *shared.AuditLogger, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, repo: repo, audit: audit, metrics: metrics, validate: validator.New()}
}

// MountRoutes registers the public webhook route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/bank", h.receive)
}

// MountStaffRoutes registers review endpoints behind staff auth.
func (h *Handler) MountStaffRoutes(r chi.Router) {
	r.Get("/webhook-transactions/unmatched", h.listUnmatched)
	r.Get("/webhook-transactions/{externalID}", h.getTransaction)
}

// webhookPayload is the provider's notification body. Unknown fields are
// rejected at the boundary; business logic only sees the validated struct.
type webhookPayload struct {
	TransactionID string `json:"transaction_id" validate:"required,max=64"`
	Amount        int64  `json:"amount" validate:"required,gt=0"`
	Narration     string `json:"narration" validate:"required,max=512"`
	SenderAccount string `json:"sender_account" validate:"max=64"`
	SenderName    string `json:"sender_name" validate:"max=128"`
	BankCode      string `json:"bank_code" validate:"max=32"`
	TransferredAt int64  `json:"transferred_at" validate:"required,gt=0"`
	Signature     string `json:"signature" validate:"required,max=128"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	var payload webhookPayload
	if err := dec.Decode(&payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(payload); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err, httpx.ErrValidation))
		return
	}

	out := h.service.Process(r.Context(), Notification{
		ExternalID:    payload.TransactionID,
		Amount:        payload.Amount,
		Narration:     payload.Narration,
		SenderAccount: payload.SenderAccount,
		SenderName:    payload.SenderName,
		BankCode:      payload.BankCode,
		TransferredAt: time.Unix(payload.TransferredAt, 0).UTC(),
		Signature:     payload.Signature,
	})
	h.metrics.ObserveWebhookOutcome(string(out.Code))

	// Only a failed authenticity check is rejected; everything else is
	// acknowledged so the provider does not build a retry storm.
	if out.Code == OutcomeBadSignature {
		if h.audit != nil {
			_ = h.audit.Record(r.Context(), shared.AuditLog{
				Action:   "webhook.rejected",
				Entity:   "webhook_transaction",
				EntityID: payload.TransactionID,
				Meta:     map[string]any{"reason": "signature mismatch"},
			})
		}
		httpx.RespondError(w, fmt.Errorf("transaction %s: %w", payload.TransactionID, httpx.ErrAuthenticity))
		return
	}

	resp := map[string]any{
		"status":    "ok",
		"outcome":   out.Code,
		"duplicate": out.Duplicate,
	}
	if out.Detail != "" {
		resp["detail"] = out.Detail
	}
	if out.RequestID != nil {
		resp["request_id"] = out.RequestID.String()
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) listUnmatched(w http.ResponseWriter, r *http.Request) {
	txns, err := h.repo.ListUnmatched(r.Context(), 100)
	if err != nil {
		h.logger.Error("list unmatched transactions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": txns})
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	externalID := chi.URLParam(r, "externalID")
	txn, err := h.repo.GetByExternalID(r.Context(), externalID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}
