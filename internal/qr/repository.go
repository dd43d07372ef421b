package qr

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborstay/harborstay/internal/platform/httpx"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for payment requests.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const requestColumns = `id, folio_id, invoice_code, random_code, narration, expected_amount, paid_amount, external_ref, image_ref, status, expires_at, resolved_at, created_at`

func scanRequest(row pgx.Row) (*PaymentRequest, error) {
	var p PaymentRequest
	var paidAmount pgtype.Int8
	var resolvedAt pgtype.Timestamptz
	err := row.Scan(&p.ID, &p.FolioID, &p.InvoiceCode, &p.RandomCode, &p.Narration, &p.ExpectedAmount, &paidAmount, &p.ExternalRef, &p.ImageRef, &p.Status, &p.ExpiresAt, &resolvedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("payment request: %w", httpx.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if paidAmount.Valid {
		p.PaidAmount = &paidAmount.Int64
	}
	if resolvedAt.Valid {
		p.ResolvedAt = &resolvedAt.Time
	}
	return &p, nil
}

// Create persists a PENDING request. A live (invoice_code, random_code)
// collision surfaces as ErrDuplicate so the caller can roll a new code.
func (r *Repository) Create(ctx context.Context, p *PaymentRequest) (*PaymentRequest, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO qr_payment_requests
(id, folio_id, invoice_code, random_code, narration, expected_amount, external_ref, image_ref, status, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, '', $7, $8, $9, NOW())
RETURNING `+requestColumns,
		p.ID, p.FolioID, p.InvoiceCode, p.RandomCode, p.Narration, p.ExpectedAmount, p.ImageRef, StatusPending, p.ExpiresAt)
	created, err := scanRequest(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("code pair %s/%s already pending: %w", p.InvoiceCode, p.RandomCode, httpx.ErrDuplicate)
		}
		return nil, err
	}
	return created, nil
}

// Get retrieves one request by id.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*PaymentRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM qr_payment_requests WHERE id = $1`, id)
	return scanRequest(row)
}

// ListByFolio returns all requests referencing a folio, newest first.
func (r *Repository) ListByFolio(ctx context.Context, folioID int64) ([]PaymentRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+requestColumns+` FROM qr_payment_requests WHERE folio_id = $1 ORDER BY created_at DESC`, folioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentRequest
	for rows.Next() {
		p, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// FindPending locates the PENDING request for an exact code pair.
func (r *Repository) FindPending(ctx context.Context, invoiceCode, randomCode string) (*PaymentRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+requestColumns+` FROM qr_payment_requests
WHERE invoice_code = $1 AND random_code = $2 AND status = $3`, invoiceCode, randomCode, StatusPending)
	return scanRequest(row)
}

// Cancel transitions PENDING to CANCELLED. Lost races surface as conflicts.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID) (*PaymentRequest, error) {
	row := r.pool.QueryRow(ctx, `UPDATE qr_payment_requests
SET status = $2, resolved_at = NOW()
WHERE id = $1 AND status = $3
RETURNING `+requestColumns, id, StatusCancelled, StatusPending)
	p, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, fmt.Errorf("payment request %s is not pending: %w", id, httpx.ErrConflict)
		}
		return nil, err
	}
	return p, nil
}

// MarkExpired transitions a single PENDING request to EXPIRED, used when a
// webhook discovers an expired request before the sweep does.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `UPDATE qr_payment_requests
SET status = $2, resolved_at = NOW()
WHERE id = $1 AND status = $3`, id, StatusExpired, StatusPending)
	return err
}

// ExpireSweep transitions every PENDING request past its expiry to EXPIRED
// and returns how many were swept.
func (r *Repository) ExpireSweep(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE qr_payment_requests
SET status = $1, resolved_at = NOW()
WHERE status = $2 AND expires_at < NOW()`, StatusExpired, StatusPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ResolveTx is the compare-and-swap at the heart of reconciliation: it moves
// the request out of PENDING only if it still is PENDING. The boolean reports
// whether this caller won the swap; losers must not post.
func ResolveTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, status RequestStatus, paidAmount int64, externalRef string) (bool, error) {
	if !status.Resolved() {
		return false, fmt.Errorf("qr: %s is not a resolved status", status)
	}
	tag, err := tx.Exec(ctx, `UPDATE qr_payment_requests
SET status = $2, paid_amount = $3, external_ref = $4, resolved_at = NOW()
WHERE id = $1 AND status = $5`, id, status, paidAmount, externalRef, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
