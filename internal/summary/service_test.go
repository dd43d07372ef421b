package summary

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/invoice"
	"github.com/harborstay/harborstay/internal/platform/httpx"
	"github.com/harborstay/harborstay/internal/qr"
	"github.com/harborstay/harborstay/internal/stay"
)

type fakeFolios struct {
	calls int64
	block chan struct{}
}

func (f *fakeFolios) Get(ctx context.Context, folioID int64) (*folio.WithPostings, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	if folioID != 7 {
		return nil, fmt.Errorf("folio: %w", httpx.ErrNotFound)
	}
	return &folio.WithPostings{
		Folio: folio.Folio{ID: 7, StayID: 1, Status: folio.StatusOpen, TotalCharges: 2_400_000, TotalCredits: 2_000_000, TotalTax: 240_000, Balance: 640_000},
		Postings: []folio.Posting{
			{ID: 1, FolioID: 7, Kind: folio.KindRoom, Amount: 2_400_000, TaxAmount: 240_000},
			{ID: 2, FolioID: 7, Kind: folio.KindPayment, Amount: 2_000_000},
		},
	}, nil
}

type fakeStays struct{}

func (fakeStays) Get(ctx context.Context, id int64) (*stay.Stay, error) {
	return &stay.Stay{ID: 1, Code: "BKG1042", Status: stay.StatusInHouse, CheckIn: time.Now(), CheckOut: time.Now().AddDate(0, 0, 3)}, nil
}

type fakeInvoices struct{}

func (fakeInvoices) ListByFolio(ctx context.Context, folioID int64) ([]invoice.Invoice, error) {
	return []invoice.Invoice{{ID: 1, FolioID: folioID, Code: "INV-00000001", Total: 2_640_000, BalanceDue: 640_000}}, nil
}

type fakeRequests struct{}

func (fakeRequests) ListByFolio(ctx context.Context, folioID int64) ([]qr.PaymentRequest, error) {
	return []qr.PaymentRequest{{ID: uuid.New(), FolioID: folioID, Status: qr.StatusMatched}}, nil
}

func TestGetComposesView(t *testing.T) {
	folios := &fakeFolios{}
	svc := NewService(folios, fakeStays{}, fakeInvoices{}, fakeRequests{}, nil, slog.Default())

	view, err := svc.Get(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "BKG1042", view.Stay.Code)
	require.Len(t, view.Postings, 2)
	require.Len(t, view.Invoices, 1)
	require.Len(t, view.Requests, 1)
	require.Equal(t, int64(640_000), view.Outstanding)
}

func TestGetPropagatesNotFound(t *testing.T) {
	svc := NewService(&fakeFolios{}, fakeStays{}, fakeInvoices{}, fakeRequests{}, nil, slog.Default())
	_, err := svc.Get(context.Background(), 99)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestConcurrentGetsCoalesce(t *testing.T) {
	folios := &fakeFolios{block: make(chan struct{})}
	svc := NewService(folios, fakeStays{}, fakeInvoices{}, fakeRequests{}, nil, slog.Default())

	const readers = 8
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			view, err := svc.Get(context.Background(), 7)
			require.NoError(t, err)
			require.Equal(t, int64(640_000), view.Outstanding)
		}()
	}

	// Let the goroutines pile up on the in-flight build, then release it.
	time.Sleep(50 * time.Millisecond)
	close(folios.block)
	wg.Wait()

	require.Equal(t, int64(1), atomic.LoadInt64(&folios.calls))
}

func TestCachedGetSkipsRebuild(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	folios := &fakeFolios{}
	svc := NewService(folios, fakeStays{}, fakeInvoices{}, fakeRequests{}, NewCache(client, time.Minute), slog.Default())
	ctx := context.Background()

	first, err := svc.Get(ctx, 7)
	require.NoError(t, err)
	second, err := svc.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, first.Outstanding, second.Outstanding)
	require.Equal(t, int64(1), atomic.LoadInt64(&folios.calls))

	// Expired entries rebuild.
	srv.FastForward(2 * time.Minute)
	_, err = svc.Get(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(2), atomic.LoadInt64(&folios.calls))
}
