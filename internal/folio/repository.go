package folio

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborstay/harborstay/internal/platform/db"
	"github.com/harborstay/harborstay/internal/platform/httpx"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for folios and postings.
// Every mutation runs in one transaction that locks the folio row, so writes
// to the same folio serialize while different folios proceed independently.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const folioColumns = `id, stay_id, status, total_charges, total_credits, total_tax, balance, opened_at, closed_at, updated_at`

func scanFolio(row pgx.Row) (*Folio, error) {
	var f Folio
	var closedAt pgtype.Timestamptz
	err := row.Scan(&f.ID, &f.StayID, &f.Status, &f.TotalCharges, &f.TotalCredits, &f.TotalTax, &f.Balance, &f.OpenedAt, &closedAt, &f.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("folio: %w", httpx.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if closedAt.Valid {
		f.ClosedAt = &closedAt.Time
	}
	return &f, nil
}

// Open returns the open folio for the stay, creating it when absent. A
// partial unique index on (stay_id) WHERE status='OPEN' makes concurrent
// opens collapse onto one row.
func (r *Repository) Open(ctx context.Context, stayID int64) (*Folio, error) {
	if f, err := r.findOpenByStay(ctx, stayID); err == nil {
		return f, nil
	} else if !errors.Is(err, httpx.ErrNotFound) {
		return nil, err
	}

	row := r.pool.QueryRow(ctx, `INSERT INTO folios (stay_id, status, opened_at, updated_at)
VALUES ($1, $2, NOW(), NOW())
RETURNING `+folioColumns, stayID, StatusOpen)
	f, err := scanFolio(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return r.findOpenByStay(ctx, stayID)
		}
		return nil, err
	}
	return f, nil
}

func (r *Repository) findOpenByStay(ctx context.Context, stayID int64) (*Folio, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+folioColumns+` FROM folios WHERE stay_id = $1 AND status = $2`, stayID, StatusOpen)
	return scanFolio(row)
}

// Get retrieves one folio by id.
func (r *Repository) Get(ctx context.Context, id int64) (*Folio, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+folioColumns+` FROM folios WHERE id = $1`, id)
	return scanFolio(row)
}

const postingColumns = `id, folio_id, kind, amount, tax_amount, reference, description, charge_date, voided, voided_at, created_at`

func scanPosting(row pgx.Row) (*Posting, error) {
	var p Posting
	var chargeDate pgtype.Date
	var voidedAt pgtype.Timestamptz
	err := row.Scan(&p.ID, &p.FolioID, &p.Kind, &p.Amount, &p.TaxAmount, &p.Reference, &p.Description, &chargeDate, &p.Voided, &voidedAt, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("posting: %w", httpx.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if chargeDate.Valid {
		d := chargeDate.Time
		p.ChargeDate = &d
	}
	if voidedAt.Valid {
		p.VoidedAt = &voidedAt.Time
	}
	return &p, nil
}

// ListPostings returns every ledger line of a folio in creation order.
func (r *Repository) ListPostings(ctx context.Context, folioID int64) ([]Posting, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+postingColumns+` FROM postings WHERE folio_id = $1 ORDER BY id`, folioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var postings []Posting
	for rows.Next() {
		p, err := scanPosting(rows)
		if err != nil {
			return nil, err
		}
		postings = append(postings, *p)
	}
	return postings, rows.Err()
}

// GetPosting retrieves one posting by id.
func (r *Repository) GetPosting(ctx context.Context, id int64) (*Posting, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+postingColumns+` FROM postings WHERE id = $1`, id)
	return scanPosting(row)
}

// Post appends a posting and recomputes the cached balance atomically.
func (r *Repository) Post(ctx context.Context, folioID int64, input PostingInput) (*Posting, error) {
	var posting *Posting
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		f, err := LockTx(ctx, tx, folioID)
		if err != nil {
			return err
		}
		if f.Status != StatusOpen {
			return fmt.Errorf("folio %d is closed: %w", folioID, httpx.ErrConflict)
		}
		posting, err = InsertPostingTx(ctx, tx, folioID, input)
		if err != nil {
			return err
		}
		_, err = RecomputeBalanceTx(ctx, tx, folioID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return posting, nil
}

// VoidPosting flips the void flag and recomputes the balance. Fails when the
// owning folio is closed.
func (r *Repository) VoidPosting(ctx context.Context, postingID int64) (*Posting, error) {
	var posting *Posting
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `SELECT folio_id FROM postings WHERE id = $1`, postingID)
		var folioID int64
		if err := row.Scan(&folioID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("posting %d: %w", postingID, httpx.ErrNotFound)
			}
			return err
		}

		f, err := LockTx(ctx, tx, folioID)
		if err != nil {
			return err
		}
		if f.Status != StatusOpen {
			return fmt.Errorf("folio %d is closed: %w", folioID, httpx.ErrConflict)
		}

		p, err := scanPosting(tx.QueryRow(ctx, `UPDATE postings SET voided = TRUE, voided_at = NOW()
WHERE id = $1 AND NOT voided
RETURNING `+postingColumns, postingID))
		if err != nil {
			if errors.Is(err, httpx.ErrNotFound) {
				return fmt.Errorf("posting %d already voided: %w", postingID, httpx.ErrConflict)
			}
			return err
		}
		posting = p
		_, err = RecomputeBalanceTx(ctx, tx, folioID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return posting, nil
}

// Close transitions OPEN to CLOSED after a final recompute under lock. The
// caller decides whether the charges cover the stay; requiredCharge enforces
// it inside the same transaction.
func (r *Repository) Close(ctx context.Context, folioID int64, requiredCharge int64) (*Folio, error) {
	var closed *Folio
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		f, err := LockTx(ctx, tx, folioID)
		if err != nil {
			return err
		}
		if f.Status != StatusOpen {
			return fmt.Errorf("folio %d is closed: %w", folioID, httpx.ErrConflict)
		}
		f, err = RecomputeBalanceTx(ctx, tx, folioID)
		if err != nil {
			return err
		}
		if f.TotalCharges < requiredCharge {
			return fmt.Errorf("folio %d charges %d below required %d: %w", folioID, f.TotalCharges, requiredCharge, httpx.ErrBusinessRule)
		}
		closed, err = scanFolio(tx.QueryRow(ctx, `UPDATE folios SET status = $2, closed_at = NOW(), updated_at = NOW()
WHERE id = $1 AND status = $3
RETURNING `+folioColumns, folioID, StatusClosed, StatusOpen))
		return err
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// PaidByReference sums non-void payments and refunds carrying the reference,
// used to guard refunds against over-refunding.
func (r *Repository) PaidByReference(ctx context.Context, folioID int64, reference string) (paid, refunded int64, err error) {
	err = r.pool.QueryRow(ctx, `SELECT
	COALESCE(SUM(CASE WHEN kind = $3 THEN amount ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN kind = $4 THEN amount ELSE 0 END), 0)
FROM postings
WHERE folio_id = $1 AND reference = $2 AND NOT voided`, folioID, reference, KindPayment, KindRefund).Scan(&paid, &refunded)
	return paid, refunded, err
}

// --- Transaction-scoped helpers ---
//
// The reconciliation engine and the night audit compose these inside their
// own transactions so a payment posting commits together with the QR status
// swap or the audit idempotency insert.

// LockTx loads a folio row FOR UPDATE, serializing writers per folio.
func LockTx(ctx context.Context, tx pgx.Tx, folioID int64) (*Folio, error) {
	row := tx.QueryRow(ctx, `SELECT `+folioColumns+` FROM folios WHERE id = $1 FOR UPDATE`, folioID)
	return scanFolio(row)
}

// InsertPostingTx appends a posting inside tx. A unique-violation on the
// room-charge-per-date, surcharge-per-date or single-deposit indexes surfaces
// as ErrDuplicate.
func InsertPostingTx(ctx context.Context, tx pgx.Tx, folioID int64, input PostingInput) (*Posting, error) {
	var chargeDate pgtype.Date
	if input.ChargeDate != nil {
		chargeDate = pgtype.Date{Time: *input.ChargeDate, Valid: true}
	}
	row := tx.QueryRow(ctx, `INSERT INTO postings (folio_id, kind, amount, tax_amount, reference, description, charge_date, voided, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, NOW())
RETURNING `+postingColumns,
		folioID, input.Kind, input.Amount, input.TaxAmount, input.Reference, input.Description, chargeDate)
	p, err := scanPosting(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, fmt.Errorf("posting %s for folio %d: %w", input.Kind, folioID, httpx.ErrDuplicate)
		}
		return nil, err
	}
	return p, nil
}

// RecomputeBalanceTx rebuilds the cached totals from the non-void postings.
func RecomputeBalanceTx(ctx context.Context, tx pgx.Tx, folioID int64) (*Folio, error) {
	row := tx.QueryRow(ctx, `UPDATE folios f SET
	total_charges = s.charges,
	total_credits = s.credits,
	total_tax = s.tax,
	balance = s.charges - s.credits + s.tax,
	updated_at = NOW()
FROM (
	SELECT
		COALESCE(SUM(CASE WHEN kind IN ('ROOM','SURCHARGE','DEPOSIT','REFUND') THEN amount ELSE 0 END), 0) AS charges,
		COALESCE(SUM(CASE WHEN kind IN ('PAYMENT','DISCOUNT') THEN amount ELSE 0 END), 0) AS credits,
		COALESCE(SUM(CASE WHEN kind = 'TAX' THEN amount ELSE 0 END), 0) + COALESCE(SUM(tax_amount), 0) AS tax
	FROM postings
	WHERE folio_id = $1 AND NOT voided
) s
WHERE f.id = $1
RETURNING f.id, f.stay_id, f.status, f.total_charges, f.total_credits, f.total_tax, f.balance, f.opened_at, f.closed_at, f.updated_at`, folioID)
	return scanFolio(row)
}
