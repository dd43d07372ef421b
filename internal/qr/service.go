package qr

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/harborstay/harborstay/internal/bank"
	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/platform/httpx"
	"github.com/harborstay/harborstay/internal/stay"
)

// RepositoryPort defines data access methods for payment requests.
type RepositoryPort interface {
	Create(ctx context.Context, p *PaymentRequest) (*PaymentRequest, error)
	Get(ctx context.Context, id uuid.UUID) (*PaymentRequest, error)
	ListByFolio(ctx context.Context, folioID int64) ([]PaymentRequest, error)
	Cancel(ctx context.Context, id uuid.UUID) (*PaymentRequest, error)
	ExpireSweep(ctx context.Context) (int64, error)
}

// FolioPort looks up folios.
type FolioPort interface {
	Get(ctx context.Context, id int64) (*folio.Folio, error)
}

// StayPort looks up stays.
type StayPort interface {
	Get(ctx context.Context, id int64) (*stay.Stay, error)
}

// BankPort resolves the receiving account.
type BankPort interface {
	GetDefault(ctx context.Context) (*bank.Account, error)
}

// ImagePort generates the scannable transfer image.
type ImagePort interface {
	Generate(ctx context.Context, amount int64, narration, bankCode, accountNumber string) (string, error)
}

// Service handles payment request business logic.
type Service struct {
	repo       RepositoryPort
	folios     FolioPort
	stays      StayPort
	banks      BankPort
	images     ImagePort
	defaultTTL time.Duration
	logger     *slog.Logger

	// injectable for tests
	now      func() time.Time
	randCode func() (string, error)
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, folios FolioPort, stays StayPort, banks BankPort, images ImagePort, defaultTTL time.Duration, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		folios:     folios,
		stays:      stays,
		banks:      banks,
		images:     images,
		defaultTTL: defaultTTL,
		logger:     logger,
		now:        time.Now,
		randCode:   randomCode,
	}
}

// randomCode draws a uniform 6-digit code.
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Create builds a new PENDING payment request for a folio. The image comes
// from the external provider first; when that call fails nothing is
// persisted. Code-pair collisions retry with a fresh random code.
func (s *Service) Create(ctx context.Context, folioID, amount int64, ttl time.Duration) (*CreateResponse, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("amount must be positive: %w", httpx.ErrValidation)
	}
	f, err := s.folios.Get(ctx, folioID)
	if err != nil {
		return nil, err
	}
	if f.Status != folio.StatusOpen {
		return nil, fmt.Errorf("folio %d is closed: %w", folioID, httpx.ErrConflict)
	}
	st, err := s.stays.Get(ctx, f.StayID)
	if err != nil {
		return nil, err
	}
	account, err := s.banks.GetDefault(ctx)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	const maxAttempts = 3
	for attempt := 0; attempt < maxAttempts; attempt++ {
		code, err := s.randCode()
		if err != nil {
			return nil, err
		}
		narration := fmt.Sprintf("%s %s", st.Code, code)

		imageRef, err := s.images.Generate(ctx, amount, narration, account.BankCode, account.AccountNumber)
		if err != nil {
			return nil, err
		}

		created, err := s.repo.Create(ctx, &PaymentRequest{
			ID:             uuid.New(),
			FolioID:        folioID,
			InvoiceCode:    st.Code,
			RandomCode:     code,
			Narration:      narration,
			ExpectedAmount: amount,
			ImageRef:       imageRef,
			ExpiresAt:      s.now().Add(ttl),
		})
		if err != nil {
			if errors.Is(err, httpx.ErrDuplicate) {
				continue
			}
			return nil, err
		}
		return &CreateResponse{
			Request:       created,
			BankCode:      account.BankCode,
			AccountNumber: account.AccountNumber,
			HolderName:    account.HolderName,
		}, nil
	}
	return nil, fmt.Errorf("could not allocate a unique code pair for %s: %w", st.Code, httpx.ErrConflict)
}

// Get returns one payment request.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*PaymentRequest, error) {
	return s.repo.Get(ctx, id)
}

// ListByFolio returns a folio's payment requests.
func (s *Service) ListByFolio(ctx context.Context, folioID int64) ([]PaymentRequest, error) {
	return s.repo.ListByFolio(ctx, folioID)
}

// Cancel is the explicit staff transition out of PENDING.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*PaymentRequest, error) {
	return s.repo.Cancel(ctx, id)
}

// ExpireSweep transitions overdue PENDING requests to EXPIRED. Runs on a
// schedule, independent of reconciliation.
func (s *Service) ExpireSweep(ctx context.Context) (int64, error) {
	swept, err := s.repo.ExpireSweep(ctx)
	if err != nil {
		return 0, err
	}
	if swept > 0 {
		s.logger.Info("expired pending payment requests", slog.Int64("count", swept))
	}
	return swept, nil
}
