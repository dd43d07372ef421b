package folio

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harborstay/harborstay/internal/platform/httpx"
	"github.com/harborstay/harborstay/internal/policy"
	"github.com/harborstay/harborstay/internal/stay"
)

// RepositoryPort defines data access methods for folios.
type RepositoryPort interface {
	Open(ctx context.Context, stayID int64) (*Folio, error)
	Get(ctx context.Context, id int64) (*Folio, error)
	ListPostings(ctx context.Context, folioID int64) ([]Posting, error)
	GetPosting(ctx context.Context, id int64) (*Posting, error)
	Post(ctx context.Context, folioID int64, input PostingInput) (*Posting, error)
	VoidPosting(ctx context.Context, postingID int64) (*Posting, error)
	Close(ctx context.Context, folioID int64, requiredCharge int64) (*Folio, error)
	PaidByReference(ctx context.Context, folioID int64, reference string) (paid, refunded int64, err error)
}

// StayPort looks up stays in the booking system.
type StayPort interface {
	Get(ctx context.Context, id int64) (*stay.Stay, error)
}

// PolicyPort loads the active deposit rule.
type PolicyPort interface {
	ActiveDepositRule(ctx context.Context) (policy.DepositRule, error)
}

// ServiceConfig carries the financial knobs.
type ServiceConfig struct {
	TaxRateBps              int64
	RefundApprovalThreshold int64
}

// Service handles folio business logic.
type Service struct {
	repo     RepositoryPort
	stays    StayPort
	policies PolicyPort
	cfg      ServiceConfig
	logger   *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, stays StayPort, policies PolicyPort, cfg ServiceConfig, logger *slog.Logger) *Service {
	return &Service{repo: repo, stays: stays, policies: policies, cfg: cfg, logger: logger}
}

// Open returns the stay's open folio, creating one when missing.
func (s *Service) Open(ctx context.Context, stayID int64) (*Folio, error) {
	st, err := s.stays.Get(ctx, stayID)
	if err != nil {
		return nil, err
	}
	switch st.Status {
	case stay.StatusCancelled, stay.StatusNoShow, stay.StatusCheckedOut:
		return nil, fmt.Errorf("stay %d is %s: %w", stayID, st.Status, httpx.ErrConflict)
	}
	return s.repo.Open(ctx, stayID)
}

// Get returns a folio with its postings.
func (s *Service) Get(ctx context.Context, folioID int64) (*WithPostings, error) {
	f, err := s.repo.Get(ctx, folioID)
	if err != nil {
		return nil, err
	}
	postings, err := s.repo.ListPostings(ctx, folioID)
	if err != nil {
		return nil, err
	}
	return &WithPostings{Folio: *f, Postings: postings}, nil
}

// PostRequest describes a manual posting.
type PostRequest struct {
	FolioID     int64
	Kind        PostingKind
	Amount      int64
	TaxRateBps  *int64
	Reference   string
	Description string
	ApprovedBy  int64
}

// Post appends a ledger line. Tax applies only to room and surcharge kinds;
// an explicit rate overrides the configured flat rate.
func (s *Service) Post(ctx context.Context, req PostRequest) (*Posting, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("unknown posting kind %q: %w", req.Kind, httpx.ErrValidation)
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", httpx.ErrValidation)
	}
	if req.Kind == KindRefund {
		if err := s.checkRefund(ctx, req); err != nil {
			return nil, err
		}
	}
	return s.repo.Post(ctx, req.FolioID, PostingInput{
		Kind:        req.Kind,
		Amount:      req.Amount,
		TaxAmount:   s.taxFor(req.Kind, req.Amount, req.TaxRateBps),
		Reference:   req.Reference,
		Description: req.Description,
	})
}

func (s *Service) checkRefund(ctx context.Context, req PostRequest) error {
	if req.Reference == "" {
		return fmt.Errorf("refund requires the original payment reference: %w", httpx.ErrValidation)
	}
	paid, refunded, err := s.repo.PaidByReference(ctx, req.FolioID, req.Reference)
	if err != nil {
		return err
	}
	if req.Amount > paid-refunded {
		return fmt.Errorf("refund %d exceeds remaining payment %d for %s: %w", req.Amount, paid-refunded, req.Reference, httpx.ErrBusinessRule)
	}
	if s.cfg.RefundApprovalThreshold > 0 && req.Amount > s.cfg.RefundApprovalThreshold && req.ApprovedBy == 0 {
		return fmt.Errorf("refund above %d requires approval: %w", s.cfg.RefundApprovalThreshold, httpx.ErrBusinessRule)
	}
	return nil
}

// PostDeposit evaluates the deposit policy for the stay and posts the result.
// A second non-void deposit on the same folio is rejected as a conflict.
func (s *Service) PostDeposit(ctx context.Context, folioID int64, override *int64) (*Posting, error) {
	f, err := s.repo.Get(ctx, folioID)
	if err != nil {
		return nil, err
	}
	st, err := s.stays.Get(ctx, f.StayID)
	if err != nil {
		return nil, err
	}
	rule, err := s.policies.ActiveDepositRule(ctx)
	if err != nil {
		return nil, err
	}
	amount := policy.DepositAmount(policy.StayInfo{
		Nights:      st.Nights,
		Occupants:   st.Occupants,
		RoomRate:    st.RoomRate,
		TotalAmount: st.TotalAmount,
	}, rule, override)
	if amount <= 0 {
		return nil, fmt.Errorf("no deposit due for stay %d: %w", st.ID, httpx.ErrBusinessRule)
	}
	return s.repo.Post(ctx, folioID, PostingInput{
		Kind:        KindDeposit,
		Amount:      amount,
		Description: fmt.Sprintf("Deposit for stay %s", st.Code),
	})
}

// PostRoomCharge posts a night-audit room charge for one calendar date. The
// (folio, date) unique index makes repeat runs surface ErrDuplicate.
func (s *Service) PostRoomCharge(ctx context.Context, folioID int64, amount int64, date time.Time, description string) (*Posting, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("room rate must be positive: %w", httpx.ErrValidation)
	}
	d := date
	return s.repo.Post(ctx, folioID, PostingInput{
		Kind:        KindRoom,
		Amount:      amount,
		TaxAmount:   s.taxFor(KindRoom, amount, nil),
		Description: description,
		ChargeDate:  &d,
	})
}

// PostSurcharge posts an evaluated policy surcharge for a charge date.
func (s *Service) PostSurcharge(ctx context.Context, folioID int64, sc policy.Surcharge, date time.Time) (*Posting, error) {
	d := date
	return s.repo.Post(ctx, folioID, PostingInput{
		Kind:        KindSurcharge,
		Amount:      sc.Amount,
		TaxAmount:   s.taxFor(KindSurcharge, sc.Amount, nil),
		Reference:   fmt.Sprintf("policy:%d", sc.PolicyID),
		Description: sc.Name,
		ChargeDate:  &d,
	})
}

// Void marks a posting void and recomputes the balance.
func (s *Service) Void(ctx context.Context, postingID int64) (*Posting, error) {
	return s.repo.VoidPosting(ctx, postingID)
}

// Close transitions the folio to CLOSED. The non-void charges must cover the
// stay total before closing.
func (s *Service) Close(ctx context.Context, folioID int64) (*Folio, error) {
	f, err := s.repo.Get(ctx, folioID)
	if err != nil {
		return nil, err
	}
	st, err := s.stays.Get(ctx, f.StayID)
	if err != nil {
		return nil, err
	}
	return s.repo.Close(ctx, folioID, st.TotalAmount)
}

func (s *Service) taxFor(kind PostingKind, amount int64, override *int64) int64 {
	if !kind.Taxable() {
		return 0
	}
	rate := s.cfg.TaxRateBps
	if override != nil {
		rate = *override
	}
	if rate <= 0 {
		return 0
	}
	return (amount*rate + 5000) / 10000
}
