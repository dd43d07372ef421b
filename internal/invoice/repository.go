package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/platform/db"
	"github.com/harborstay/harborstay/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for invoice snapshots.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, folio_id, code, subtotal, surcharge_total, discount_total, tax_total, total, paid_total, balance_due, cancelled, cancelled_at, generated_at`

func scanInvoice(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var cancelledAt pgtype.Timestamptz
	err := row.Scan(&inv.ID, &inv.FolioID, &inv.Code, &inv.Subtotal, &inv.SurchargeTotal, &inv.DiscountTotal, &inv.TaxTotal, &inv.Total, &inv.PaidTotal, &inv.BalanceDue, &inv.Cancelled, &cancelledAt, &inv.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("invoice: %w", httpx.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if cancelledAt.Valid {
		inv.CancelledAt = &cancelledAt.Time
	}
	return &inv, nil
}

// Generate freezes the folio's current non-void postings into a new snapshot.
// The folio row is locked for the duration so no posting can slip between the
// read and the insert. Regeneration creates a new header; prior snapshots and
// the ledger itself are untouched.
func (r *Repository) Generate(ctx context.Context, folioID int64) (*WithLines, error) {
	var out *WithLines
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := folio.LockTx(ctx, tx, folioID); err != nil {
			return err
		}
		f, err := folio.RecomputeBalanceTx(ctx, tx, folioID)
		if err != nil {
			return err
		}

		rows, err := tx.Query(ctx, `SELECT id, kind, amount, tax_amount, description
FROM postings WHERE folio_id = $1 AND NOT voided ORDER BY id`, folioID)
		if err != nil {
			return err
		}
		var frozen []Line
		for rows.Next() {
			var l Line
			if err := rows.Scan(&l.PostingID, &l.Kind, &l.Amount, &l.TaxAmount, &l.Description); err != nil {
				rows.Close()
				return err
			}
			frozen = append(frozen, l)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(frozen) == 0 {
			return fmt.Errorf("folio %d has no postings to invoice: %w", folioID, httpx.ErrBusinessRule)
		}

		totals := Summarize(frozen)

		header, err := scanInvoice(tx.QueryRow(ctx, `INSERT INTO invoices
(folio_id, code, subtotal, surcharge_total, discount_total, tax_total, total, paid_total, balance_due, cancelled, generated_at)
VALUES ($1, '', $2, $3, $4, $5, $6, $7, $8, FALSE, NOW())
RETURNING `+invoiceColumns,
			folioID, totals.Subtotal, totals.SurchargeTotal, totals.DiscountTotal, totals.TaxTotal, totals.Total, totals.PaidTotal, f.Balance))
		if err != nil {
			return err
		}
		header, err = scanInvoice(tx.QueryRow(ctx, `UPDATE invoices
SET code = 'INV-' || to_char(id, 'FM00000000')
WHERE id = $1
RETURNING `+invoiceColumns, header.ID))
		if err != nil {
			return err
		}

		lines := make([]Line, 0, len(frozen))
		for _, src := range frozen {
			var line Line
			err := tx.QueryRow(ctx, `INSERT INTO invoice_lines (invoice_id, posting_id, kind, description, amount, tax_amount)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, invoice_id, posting_id, kind, description, amount, tax_amount`,
				header.ID, src.PostingID, src.Kind, src.Description, src.Amount, src.TaxAmount).
				Scan(&line.ID, &line.InvoiceID, &line.PostingID, &line.Kind, &line.Description, &line.Amount, &line.TaxAmount)
			if err != nil {
				return err
			}
			lines = append(lines, line)
		}

		out = &WithLines{Invoice: *header, Lines: lines}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Get retrieves one snapshot with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (*WithLines, error) {
	header, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		return nil, err
	}
	lines, err := r.listLines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &WithLines{Invoice: *header, Lines: lines}, nil
}

func (r *Repository) listLines(ctx context.Context, invoiceID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, invoice_id, posting_id, kind, description, amount, tax_amount
FROM invoice_lines WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.InvoiceID, &l.PostingID, &l.Kind, &l.Description, &l.Amount, &l.TaxAmount); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListByFolio returns a folio's snapshots newest first, headers only.
func (r *Repository) ListByFolio(ctx context.Context, folioID int64) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE folio_id = $1 ORDER BY id DESC`, folioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// Cancel flips the terminal cancelled flag. Cancelling twice is a conflict.
func (r *Repository) Cancel(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `UPDATE invoices SET cancelled = TRUE, cancelled_at = NOW()
WHERE id = $1 AND NOT cancelled
RETURNING `+invoiceColumns, id))
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			if _, getErr := r.Get(ctx, id); getErr == nil {
				return nil, fmt.Errorf("invoice %d already cancelled: %w", id, httpx.ErrConflict)
			}
		}
		return nil, err
	}
	return inv, nil
}
