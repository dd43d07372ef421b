package qr

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/harborstay/harborstay/internal/bank"
	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/platform/httpx"
	"github.com/harborstay/harborstay/internal/stay"
)

type memoryRequestRepo struct {
	requests map[uuid.UUID]*PaymentRequest
}

func newMemoryRequestRepo() *memoryRequestRepo {
	return &memoryRequestRepo{requests: make(map[uuid.UUID]*PaymentRequest)}
}

func (r *memoryRequestRepo) Create(ctx context.Context, p *PaymentRequest) (*PaymentRequest, error) {
	for _, existing := range r.requests {
		if existing.Status == StatusPending && existing.InvoiceCode == p.InvoiceCode && existing.RandomCode == p.RandomCode {
			return nil, fmt.Errorf("code pair taken: %w", httpx.ErrDuplicate)
		}
	}
	p.Status = StatusPending
	p.CreatedAt = time.Now()
	r.requests[p.ID] = p
	return p, nil
}

func (r *memoryRequestRepo) Get(ctx context.Context, id uuid.UUID) (*PaymentRequest, error) {
	p, ok := r.requests[id]
	if !ok {
		return nil, fmt.Errorf("payment request: %w", httpx.ErrNotFound)
	}
	return p, nil
}

func (r *memoryRequestRepo) ListByFolio(ctx context.Context, folioID int64) ([]PaymentRequest, error) {
	var out []PaymentRequest
	for _, p := range r.requests {
		if p.FolioID == folioID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memoryRequestRepo) Cancel(ctx context.Context, id uuid.UUID) (*PaymentRequest, error) {
	p, ok := r.requests[id]
	if !ok {
		return nil, fmt.Errorf("payment request: %w", httpx.ErrNotFound)
	}
	if p.Status != StatusPending {
		return nil, fmt.Errorf("request %s is %s: %w", id, p.Status, httpx.ErrConflict)
	}
	p.Status = StatusCancelled
	return p, nil
}

func (r *memoryRequestRepo) ExpireSweep(ctx context.Context) (int64, error) {
	var swept int64
	now := time.Now()
	for _, p := range r.requests {
		if p.Status == StatusPending && now.After(p.ExpiresAt) {
			p.Status = StatusExpired
			swept++
		}
	}
	return swept, nil
}

type fakeFolios struct {
	folios map[int64]*folio.Folio
}

func (f *fakeFolios) Get(ctx context.Context, id int64) (*folio.Folio, error) {
	fo, ok := f.folios[id]
	if !ok {
		return nil, fmt.Errorf("folio: %w", httpx.ErrNotFound)
	}
	return fo, nil
}

type fakeStays struct {
	stays map[int64]*stay.Stay
}

func (s *fakeStays) Get(ctx context.Context, id int64) (*stay.Stay, error) {
	st, ok := s.stays[id]
	if !ok {
		return nil, fmt.Errorf("stay: %w", httpx.ErrNotFound)
	}
	return st, nil
}

type fakeBanks struct{}

func (fakeBanks) GetDefault(ctx context.Context) (*bank.Account, error) {
	return &bank.Account{ID: 1, BankCode: "VCB", AccountNumber: "0071000123456", HolderName: "HARBORSTAY CO", Default: true}, nil
}

type fakeImages struct {
	calls int
	fail  bool
}

func (f *fakeImages) Generate(ctx context.Context, amount int64, narration, bankCode, accountNumber string) (string, error) {
	f.calls++
	if f.fail {
		return "", fmt.Errorf("provider timeout: %w", httpx.ErrExternalService)
	}
	return fmt.Sprintf("https://img.test/%d", f.calls), nil
}

func newQRService(t *testing.T) (*Service, *memoryRequestRepo, *fakeImages) {
	t.Helper()
	repo := newMemoryRequestRepo()
	folios := &fakeFolios{folios: map[int64]*folio.Folio{
		7: {ID: 7, StayID: 1, Status: folio.StatusOpen},
		8: {ID: 8, StayID: 1, Status: folio.StatusClosed},
	}}
	stays := &fakeStays{stays: map[int64]*stay.Stay{
		1: {ID: 1, Code: "BKG1042", Status: stay.StatusInHouse},
	}}
	images := &fakeImages{}
	svc := NewService(repo, folios, stays, &fakeBanks{}, images, 15*time.Minute, slog.Default())
	return svc, repo, images
}

func TestCreatePaymentRequest(t *testing.T) {
	svc, repo, _ := newQRService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, 7, 2_400_000, time.Hour)
	require.NoError(t, err)
	req := resp.Request
	require.Equal(t, StatusPending, req.Status)
	require.Equal(t, "BKG1042", req.InvoiceCode)
	require.Len(t, req.RandomCode, 6)
	require.Equal(t, "BKG1042 "+req.RandomCode, req.Narration)
	require.NotEmpty(t, req.ImageRef)
	require.Equal(t, "VCB", resp.BankCode)
	require.Equal(t, "HARBORSTAY CO", resp.HolderName)
	require.Len(t, repo.requests, 1)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newQRService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, 7, 0, time.Hour)
	require.ErrorIs(t, err, httpx.ErrValidation)

	_, err = svc.Create(ctx, 8, 1000, time.Hour)
	require.ErrorIs(t, err, httpx.ErrConflict)

	_, err = svc.Create(ctx, 99, 1000, time.Hour)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestCreateProviderFailurePersistsNothing(t *testing.T) {
	svc, repo, images := newQRService(t)
	images.fail = true

	_, err := svc.Create(context.Background(), 7, 1000, time.Hour)
	require.ErrorIs(t, err, httpx.ErrExternalService)
	require.Empty(t, repo.requests)
}

func TestCreateRetriesOnCodeCollision(t *testing.T) {
	svc, repo, _ := newQRService(t)
	ctx := context.Background()

	codes := []string{"111111", "111111", "222222"}
	svc.randCode = func() (string, error) {
		code := codes[0]
		if len(codes) > 1 {
			codes = codes[1:]
		}
		return code, nil
	}

	first, err := svc.Create(ctx, 7, 1000, time.Hour)
	require.NoError(t, err)
	require.Equal(t, "111111", first.Request.RandomCode)

	// The second create collides once and retries with a fresh code.
	second, err := svc.Create(ctx, 7, 1000, time.Hour)
	require.NoError(t, err)
	require.Equal(t, "222222", second.Request.RandomCode)
	require.Len(t, repo.requests, 2)
}

func TestCreateGivesUpAfterRepeatedCollisions(t *testing.T) {
	svc, _, _ := newQRService(t)
	ctx := context.Background()
	svc.randCode = func() (string, error) { return "333333", nil }

	_, err := svc.Create(ctx, 7, 1000, time.Hour)
	require.NoError(t, err)

	_, err = svc.Create(ctx, 7, 1000, time.Hour)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestCancelOnlyPending(t *testing.T) {
	svc, _, _ := newQRService(t)
	ctx := context.Background()

	resp, err := svc.Create(ctx, 7, 1000, time.Hour)
	require.NoError(t, err)

	cancelled, err := svc.Cancel(ctx, resp.Request.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(ctx, resp.Request.ID)
	require.ErrorIs(t, err, httpx.ErrConflict)
}

func TestExpireSweep(t *testing.T) {
	svc, repo, _ := newQRService(t)
	ctx := context.Background()

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	overdue, err := svc.Create(ctx, 7, 1000, time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	live, err := svc.Create(ctx, 7, 1000, time.Hour)
	require.NoError(t, err)

	swept, err := svc.ExpireSweep(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), swept)
	require.Equal(t, StatusExpired, repo.requests[overdue.Request.ID].Status)
	require.Equal(t, StatusPending, repo.requests[live.Request.ID].Status)
}
