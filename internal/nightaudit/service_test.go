package nightaudit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/platform/httpx"
	"github.com/harborstay/harborstay/internal/policy"
	"github.com/harborstay/harborstay/internal/stay"
)

type fakeStays struct {
	stays []stay.Stay
}

func (f *fakeStays) ListInHouse(ctx context.Context) ([]stay.Stay, error) {
	return f.stays, nil
}

type fakeFolios struct {
	mu       sync.Mutex
	nextID   int64
	byStay   map[int64]int64
	postings []folio.Posting
	// failStay makes every posting for that stay's folio fail.
	failStay int64
	// failNextSurcharge fails the next surcharge posting once.
	failNextSurcharge bool
}

func newFakeFolios() *fakeFolios {
	return &fakeFolios{byStay: make(map[int64]int64)}
}

func (f *fakeFolios) Open(ctx context.Context, stayID int64) (*folio.Folio, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.byStay[stayID]
	if !ok {
		f.nextID++
		id = f.nextID
		f.byStay[stayID] = id
	}
	return &folio.Folio{ID: id, StayID: stayID, Status: folio.StatusOpen}, nil
}

func (f *fakeFolios) PostRoomCharge(ctx context.Context, folioID int64, amount int64, date time.Time, description string) (*folio.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stayFor(folioID) == f.failStay {
		return nil, fmt.Errorf("db down")
	}
	for _, p := range f.postings {
		if p.FolioID == folioID && p.Kind == folio.KindRoom && p.ChargeDate != nil && p.ChargeDate.Equal(date) {
			return nil, fmt.Errorf("room charge exists: %w", httpx.ErrDuplicate)
		}
	}
	return f.append(folioID, folio.KindRoom, amount, date), nil
}

func (f *fakeFolios) PostSurcharge(ctx context.Context, folioID int64, sc policy.Surcharge, date time.Time) (*folio.Posting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNextSurcharge {
		f.failNextSurcharge = false
		return nil, fmt.Errorf("db down")
	}
	ref := fmt.Sprintf("policy:%d", sc.PolicyID)
	for _, p := range f.postings {
		if p.FolioID == folioID && p.Kind == folio.KindSurcharge && p.Reference == ref && p.ChargeDate != nil && p.ChargeDate.Equal(date) {
			return nil, fmt.Errorf("surcharge exists: %w", httpx.ErrDuplicate)
		}
	}
	p := f.append(folioID, folio.KindSurcharge, sc.Amount, date)
	p.Reference = ref
	f.postings[len(f.postings)-1].Reference = ref
	return p, nil
}

func (f *fakeFolios) append(folioID int64, kind folio.PostingKind, amount int64, date time.Time) *folio.Posting {
	d := date
	p := folio.Posting{
		ID:         int64(len(f.postings) + 1),
		FolioID:    folioID,
		Kind:       kind,
		Amount:     amount,
		ChargeDate: &d,
	}
	f.postings = append(f.postings, p)
	return &p
}

func (f *fakeFolios) stayFor(folioID int64) int64 {
	for stayID, id := range f.byStay {
		if id == folioID {
			return stayID
		}
	}
	return 0
}

func (f *fakeFolios) count(kind folio.PostingKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.postings {
		if p.Kind == kind {
			n++
		}
	}
	return n
}

type fakePolicies struct {
	policies []policy.SurchargePolicy
}

func (f *fakePolicies) ListSurcharges(ctx context.Context, date time.Time) ([]policy.SurchargePolicy, error) {
	return f.policies, nil
}

type fakeLock struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLock() *fakeLock {
	return &fakeLock{held: make(map[string]bool)}
}

func (l *fakeLock) Acquire(ctx context.Context, date string) (func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[date] {
		return nil, fmt.Errorf("held: %w", httpx.ErrConflict)
	}
	l.held[date] = true
	return func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.held[date] = false
	}, nil
}

type countingMetrics struct {
	mu      sync.Mutex
	results map[string]int
}

func (m *countingMetrics) ObserveAuditFolio(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.results == nil {
		m.results = make(map[string]int)
	}
	m.results[result]++
}

func auditDate() time.Time {
	return time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC)
}

func inHouseStays(n int) []stay.Stay {
	stays := make([]stay.Stay, 0, n)
	for i := 1; i <= n; i++ {
		stays = append(stays, stay.Stay{
			ID:        int64(i),
			Code:      fmt.Sprintf("BKG%04d", 1000+i),
			Status:    stay.StatusInHouse,
			Nights:    3,
			Occupants: 2,
			RoomRate:  800_000,
		})
	}
	return stays
}

func TestRunPostsRoomAndSurcharges(t *testing.T) {
	folios := newFakeFolios()
	metrics := &countingMetrics{}
	svc := NewService(
		&fakeStays{stays: inHouseStays(3)},
		folios,
		&fakePolicies{policies: []policy.SurchargePolicy{
			{ID: 1, Name: "Weekend", Kind: policy.SurchargeWeekend, Amount: 100_000},
		}},
		newFakeLock(),
		metrics,
		2,
		slog.Default(),
	)

	report, err := svc.Run(context.Background(), auditDate())
	require.NoError(t, err)
	require.Equal(t, 3, report.Processed)
	require.Zero(t, report.Skipped)
	require.Zero(t, report.Failed)
	require.Equal(t, 3, folios.count(folio.KindRoom))
	require.Equal(t, 3, folios.count(folio.KindSurcharge))
	require.Equal(t, 3, metrics.results["processed"])
}

func TestRunTwiceSkipsAuditedFolios(t *testing.T) {
	folios := newFakeFolios()
	svc := NewService(
		&fakeStays{stays: inHouseStays(2)},
		folios,
		&fakePolicies{policies: []policy.SurchargePolicy{
			{ID: 1, Name: "Weekend", Kind: policy.SurchargeWeekend, Amount: 100_000},
		}},
		newFakeLock(),
		&countingMetrics{},
		2,
		slog.Default(),
	)
	ctx := context.Background()

	first, err := svc.Run(ctx, auditDate())
	require.NoError(t, err)
	require.Equal(t, 2, first.Processed)

	second, err := svc.Run(ctx, auditDate())
	require.NoError(t, err)
	require.Zero(t, second.Processed)
	require.Equal(t, 2, second.Skipped)
	// Still exactly one room charge and one surcharge per folio.
	require.Equal(t, 2, folios.count(folio.KindRoom))
	require.Equal(t, 2, folios.count(folio.KindSurcharge))
}

func TestRerunPostsMissedSurcharges(t *testing.T) {
	folios := newFakeFolios()
	folios.failNextSurcharge = true
	svc := NewService(
		&fakeStays{stays: inHouseStays(1)},
		folios,
		&fakePolicies{policies: []policy.SurchargePolicy{
			{ID: 1, Name: "Weekend", Kind: policy.SurchargeWeekend, Amount: 100_000},
		}},
		newFakeLock(),
		nil,
		1,
		slog.Default(),
	)
	ctx := context.Background()

	// First run commits the room charge but the surcharge posting fails.
	first, err := svc.Run(ctx, auditDate())
	require.NoError(t, err)
	require.Equal(t, 1, first.Failed)
	require.Equal(t, 1, folios.count(folio.KindRoom))
	require.Zero(t, folios.count(folio.KindSurcharge))

	// The rerun hits the room-charge duplicate and still posts the surcharge.
	second, err := svc.Run(ctx, auditDate())
	require.NoError(t, err)
	require.Equal(t, 1, second.Processed)
	require.Equal(t, 1, folios.count(folio.KindRoom))
	require.Equal(t, 1, folios.count(folio.KindSurcharge))
}

func TestRunNextDatePostsAgain(t *testing.T) {
	folios := newFakeFolios()
	svc := NewService(&fakeStays{stays: inHouseStays(1)}, folios, &fakePolicies{}, newFakeLock(), nil, 1, slog.Default())
	ctx := context.Background()

	_, err := svc.Run(ctx, auditDate())
	require.NoError(t, err)
	_, err = svc.Run(ctx, auditDate().AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Equal(t, 2, folios.count(folio.KindRoom))
}

func TestRunCollectsFailuresAndContinues(t *testing.T) {
	folios := newFakeFolios()
	folios.failStay = 2
	svc := NewService(&fakeStays{stays: inHouseStays(3)}, folios, &fakePolicies{}, newFakeLock(), nil, 1, slog.Default())

	report, err := svc.Run(context.Background(), auditDate())
	require.NoError(t, err)
	require.Equal(t, 2, report.Processed)
	require.Equal(t, 1, report.Failed)
	require.Len(t, report.Errors, 1)
	require.Contains(t, report.Errors[0], "BKG1002")
}

func TestRunRefusesWhileLeaseHeld(t *testing.T) {
	lock := newFakeLock()
	release, err := lock.Acquire(context.Background(), auditDate().Format("2006-01-02"))
	require.NoError(t, err)
	defer release(context.Background())

	svc := NewService(&fakeStays{stays: inHouseStays(1)}, newFakeFolios(), &fakePolicies{}, lock, nil, 1, slog.Default())
	_, err = svc.Run(context.Background(), auditDate())
	require.ErrorIs(t, err, httpx.ErrConflict)
}
