package folio

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// Handler manages folio endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers folio routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/folios", h.openFolio)
	r.Get("/folios/{id}", h.getFolio)
	r.Post("/folios/{id}/postings", h.createPosting)
	r.Post("/folios/{id}/deposit", h.postDeposit)
	r.Post("/folios/{id}/close", h.closeFolio)
	r.Post("/postings/{id}/void", h.voidPosting)
}

type openFolioRequest struct {
	StayID int64 `json:"stay_id" validate:"required,gt=0"`
}

type postingRequest struct {
	Kind        string `json:"kind" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	TaxRateBps  *int64 `json:"tax_rate_bps" validate:"omitempty,gte=0"`
	Reference   string `json:"reference" validate:"max=128"`
	Description string `json:"description" validate:"max=256"`
	ApprovedBy  int64  `json:"approved_by" validate:"gte=0"`
}

type depositRequest struct {
	OverrideAmount *int64 `json:"override_amount" validate:"omitempty,gt=0"`
}

type folioView struct {
	ID           int64      `json:"id"`
	StayID       int64      `json:"stay_id"`
	Status       Status     `json:"status"`
	TotalCharges int64      `json:"total_charges"`
	TotalCredits int64      `json:"total_credits"`
	TotalTax     int64      `json:"total_tax"`
	Balance      int64      `json:"balance"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
}

type postingView struct {
	ID          int64       `json:"id"`
	FolioID     int64       `json:"folio_id"`
	Kind        PostingKind `json:"kind"`
	Amount      int64       `json:"amount"`
	TaxAmount   int64       `json:"tax_amount"`
	Reference   string      `json:"reference,omitempty"`
	Description string      `json:"description,omitempty"`
	ChargeDate  *string     `json:"charge_date,omitempty"`
	Voided      bool        `json:"voided"`
	CreatedAt   time.Time   `json:"created_at"`
}

func toFolioView(f *Folio) folioView {
	return folioView{
		ID:           f.ID,
		StayID:       f.StayID,
		Status:       f.Status,
		TotalCharges: f.TotalCharges,
		TotalCredits: f.TotalCredits,
		TotalTax:     f.TotalTax,
		Balance:      f.Balance,
		OpenedAt:     f.OpenedAt,
		ClosedAt:     f.ClosedAt,
	}
}

func toPostingView(p *Posting) postingView {
	v := postingView{
		ID:          p.ID,
		FolioID:     p.FolioID,
		Kind:        p.Kind,
		Amount:      p.Amount,
		TaxAmount:   p.TaxAmount,
		Reference:   p.Reference,
		Description: p.Description,
		Voided:      p.Voided,
		CreatedAt:   p.CreatedAt,
	}
	if p.ChargeDate != nil {
		d := p.ChargeDate.Format("2006-01-02")
		v.ChargeDate = &d
	}
	return v
}

func (h *Handler) openFolio(w http.ResponseWriter, r *http.Request) {
	var req openFolioRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err, httpx.ErrValidation))
		return
	}
	f, err := h.service.Open(r.Context(), req.StayID)
	if err != nil {
		h.logger.Error("open folio", slog.Int64("stay_id", req.StayID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFolioView(f))
}

func (h *Handler) getFolio(w http.ResponseWriter, r *http.Request) {
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
	postings := make([]postingView, 0, len(detail.Postings))
	for i := range detail.Postings {
		postings = append(postings, toPostingView(&detail.Postings[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"folio":    toFolioView(&detail.Folio),
		"postings": postings,
	})
}

func (h *Handler) createPosting(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req postingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err, httpx.ErrValidation))
		return
	}
	p, err := h.service.Post(r.Context(), PostRequest{
		FolioID:     id,
		Kind:        PostingKind(req.Kind),
		Amount:      req.Amount,
		TaxRateBps:  req.TaxRateBps,
		Reference:   req.Reference,
		Description: req.Description,
		ApprovedBy:  req.ApprovedBy,
	})
	if err != nil {
		h.logger.Error("create posting", slog.Int64("folio_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPostingView(p))
}

func (h *Handler) postDeposit(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req depositRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("%s: %w", err, httpx.ErrValidation))
		return
	}
	p, err := h.service.PostDeposit(r.Context(), id, req.OverrideAmount)
	if err != nil {
		h.logger.Error("post deposit", slog.Int64("folio_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPostingView(p))
}

func (h *Handler) closeFolio(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f, err := h.service.Close(r.Context(), id)
	if err != nil {
		h.logger.Error("close folio", slog.Int64("folio_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFolioView(f))
}

func (h *Handler) voidPosting(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	p, err := h.service.Void(r.Context(), id)
	if err != nil {
		h.logger.Error("void posting", slog.Int64("posting_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPostingView(p))
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id: %w", httpx.ErrValidation)
	}
	return id, nil
}
