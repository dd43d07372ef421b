// Package nightaudit posts each in-house stay's nightly room charge and
// policy surcharges for one hotel date.
package nightaudit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/platform/httpx"
	"github.com/harborstay/harborstay/internal/policy"
	"github.com/harborstay/harborstay/internal/stay"
)

// StayPort lists the stays the audit walks.
type StayPort interface {
	ListInHouse(ctx context.Context) ([]stay.Stay, error)
}

// FolioPort posts the audit's ledger lines.
type FolioPort interface {
	Open(ctx context.Context, stayID int64) (*folio.Folio, error)
	PostRoomCharge(ctx context.Context, folioID int64, amount int64, date time.Time, description string) (*folio.Posting, error)
	PostSurcharge(ctx context.Context, folioID int64, sc policy.Surcharge, date time.Time) (*folio.Posting, error)
}

// PolicyPort loads the surcharge policy set active on a date.
type PolicyPort interface {
	ListSurcharges(ctx context.Context, date time.Time) ([]policy.SurchargePolicy, error)
}

// LockPort serializes runs process-wide. Acquire returns ErrLeaseHeld (wrapped
// as a conflict by the service) when another run is active for the date.
type LockPort interface {
	Acquire(ctx context.Context, date string) (release func(context.Context), err error)
}

// MetricsPort counts per-folio outcomes.
type MetricsPort interface {
	ObserveAuditFolio(result string)
}

// Report summarizes one audit run. Failed folios carry their error text so
// staff can retrigger after fixing the cause; a rerun skips what already
// posted.
type Report struct {
	Date      string   `json:"date"`
	Processed int      `json:"processed"`
	Skipped   int      `json:"skipped"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// Service runs the nightly audit.
type Service struct {
	stays       StayPort
	folios      FolioPort
	policies    PolicyPort
	lock        LockPort
	metrics     MetricsPort
	concurrency int
	logger      *slog.Logger
}

// NewService builds a Service instance.
func NewService(stays StayPort, folios FolioPort, policies PolicyPort, lock LockPort, metrics MetricsPort, concurrency int, logger *slog.Logger) *Service {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Service{
		stays:       stays,
		folios:      folios,
		policies:    policies,
		lock:        lock,
		metrics:     metrics,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run audits every in-house stay for the given hotel date. The run is
// idempotent per (folio, date): unique indexes turn repeated room and
// surcharge postings into skips, so a rerun after a partial failure posts
// only what is still missing. One folio's failure never stops the batch.
func (s *Service) Run(ctx context.Context, date time.Time) (*Report, error) {
	dateStr := date.Format("2006-01-02")

	release, err := s.lock.Acquire(ctx, dateStr)
	if err != nil {
		return nil, fmt.Errorf("night audit for %s already running: %w", dateStr, httpx.ErrConflict)
	}
	defer release(ctx)

	stays, err := s.stays.ListInHouse(ctx)
	if err != nil {
		return nil, fmt.Errorf("list in-house stays: %w", err)
	}
	policies, err := s.policies.ListSurcharges(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("load surcharge policies: %w", err)
	}

	report := &Report{Date: dateStr}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, st := range stays {
		st := st
		g.Go(func() error {
			result, err := s.auditStay(gctx, st, date, policies)
			if s.metrics != nil {
				s.metrics.ObserveAuditFolio(result)
			}
			mu.Lock()
			defer mu.Unlock()
			switch result {
			case "processed":
				report.Processed++
			case "skipped":
				report.Skipped++
			default:
				report.Failed++
				report.Errors = append(report.Errors, fmt.Sprintf("stay %s: %v", st.Code, err))
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("night audit finished",
		slog.String("date", dateStr),
		slog.Int("processed", report.Processed),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed))
	return report, nil
}

// auditStay posts one stay's room charge and surcharges. Returns the result
// label used for both the report and the metrics counter.
func (s *Service) auditStay(ctx context.Context, st stay.Stay, date time.Time, policies []policy.SurchargePolicy) (string, error) {
	f, err := s.folios.Open(ctx, st.ID)
	if err != nil {
		return "failed", fmt.Errorf("open folio: %w", err)
	}

	posted := false
	desc := fmt.Sprintf("Room charge %s", date.Format("2006-01-02"))
	if _, err := s.folios.PostRoomCharge(ctx, f.ID, st.RoomRate, date, desc); err != nil {
		// A duplicate room charge still walks the surcharges below: a rerun
		// after a partial failure must post whatever is missing.
		if !errors.Is(err, httpx.ErrDuplicate) {
			return "failed", fmt.Errorf("post room charge: %w", err)
		}
	} else {
		posted = true
	}

	info := policy.StayInfo{
		Nights:      st.Nights,
		Occupants:   st.Occupants,
		RoomRate:    st.RoomRate,
		TotalAmount: st.TotalAmount,
	}
	for _, sc := range policy.ApplicableSurcharges(info, date, policies) {
		if _, err := s.folios.PostSurcharge(ctx, f.ID, sc, date); err != nil {
			if errors.Is(err, httpx.ErrDuplicate) {
				continue
			}
			return "failed", fmt.Errorf("post surcharge %q: %w", sc.Name, err)
		}
		posted = true
	}
	if !posted {
		return "skipped", nil
	}
	return "processed", nil
}
