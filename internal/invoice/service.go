package invoice

import (
	"context"
	"log/slog"
)

// RepositoryPort defines persistence for invoice snapshots.
type RepositoryPort interface {
	Generate(ctx context.Context, folioID int64) (*WithLines, error)
	Get(ctx context.Context, id int64) (*WithLines, error)
	ListByFolio(ctx context.Context, folioID int64) ([]Invoice, error)
	Cancel(ctx context.Context, id int64) (*Invoice, error)
}

// Service handles invoice business logic.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Generate freezes the folio's ledger into a new snapshot. Repeat calls on an
// unchanged folio produce a new header with identical totals and lines.
func (s *Service) Generate(ctx context.Context, folioID int64) (*WithLines, error) {
	inv, err := s.repo.Generate(ctx, folioID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoice generated",
		slog.Int64("folio_id", folioID),
		slog.String("code", inv.Invoice.Code),
		slog.Int64("total", inv.Invoice.Total),
		slog.Int64("balance_due", inv.Invoice.BalanceDue))
	return inv, nil
}

// Get returns a snapshot with its lines.
func (s *Service) Get(ctx context.Context, id int64) (*WithLines, error) {
	return s.repo.Get(ctx, id)
}

// ListByFolio returns a folio's snapshot headers, newest first.
func (s *Service) ListByFolio(ctx context.Context, folioID int64) ([]Invoice, error) {
	return s.repo.ListByFolio(ctx, folioID)
}

// Cancel flags a snapshot cancelled. The ledger is untouched; staff regenerate
// after correcting postings.
func (s *Service) Cancel(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := s.repo.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	s.logger.Info("invoice cancelled", slog.Int64("invoice_id", id), slog.String("code", inv.Code))
	return inv, nil
}
