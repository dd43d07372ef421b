// Package summary assembles the payment-summary view consumed by the booking
// and reporting layers.
package summary

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/invoice"
	"github.com/harborstay/harborstay/internal/qr"
	"github.com/harborstay/harborstay/internal/stay"
)

// FolioPort reads the ledger.
type FolioPort interface {
	Get(ctx context.Context, folioID int64) (*folio.WithPostings, error)
}

// StayPort reads the booking record.
type StayPort interface {
	Get(ctx context.Context, id int64) (*stay.Stay, error)
}

// InvoicePort lists a folio's snapshots.
type InvoicePort interface {
	ListByFolio(ctx context.Context, folioID int64) ([]invoice.Invoice, error)
}

// RequestPort lists a folio's payment requests.
type RequestPort interface {
	ListByFolio(ctx context.Context, folioID int64) ([]qr.PaymentRequest, error)
}

// View is the composed summary for one folio.
type View struct {
	Stay     stay.Stay           `json:"stay"`
	Folio    folio.Folio         `json:"folio"`
	Postings []folio.Posting     `json:"postings"`
	Invoices []invoice.Invoice   `json:"invoices"`
	Requests []qr.PaymentRequest `json:"payment_requests"`
	// Outstanding mirrors the folio balance; zero or negative means settled.
	Outstanding int64 `json:"outstanding"`
}

// Service builds summary views. Concurrent requests for the same folio
// coalesce onto one build, and a built view is kept briefly in Redis.
type Service struct {
	folios   FolioPort
	stays    StayPort
	invoices InvoicePort
	requests RequestPort
	cache    *Cache
	logger   *slog.Logger

	group singleflight.Group
}

// NewService builds a Service instance. Cache may be nil.
func NewService(folios FolioPort, stays StayPort, invoices InvoicePort, requests RequestPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{folios: folios, stays: stays, invoices: invoices, requests: requests, cache: cache, logger: logger}
}

// Get returns the summary view for a folio.
func (s *Service) Get(ctx context.Context, folioID int64) (*View, error) {
	key := cacheKey(folioID)
	ch := s.group.DoChan(key, func() (any, error) {
		var view View
		if err := s.cache.Fetch(ctx, key, &view, func(ctx context.Context) (*View, error) {
			return s.build(ctx, folioID)
		}); err != nil {
			return nil, err
		}
		return &view, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*View), nil
	}
}

func (s *Service) build(ctx context.Context, folioID int64) (*View, error) {
	detail, err := s.folios.Get(ctx, folioID)
	if err != nil {
		return nil, err
	}
	st, err := s.stays.Get(ctx, detail.Folio.StayID)
	if err != nil {
		return nil, err
	}
	invoices, err := s.invoices.ListByFolio(ctx, folioID)
	if err != nil {
		return nil, err
	}
	requests, err := s.requests.ListByFolio(ctx, folioID)
	if err != nil {
		return nil, err
	}
	return &View{
		Stay:        *st,
		Folio:       detail.Folio,
		Postings:    detail.Postings,
		Invoices:    invoices,
		Requests:    requests,
		Outstanding: detail.Folio.Balance,
	}, nil
}
