package recon

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/platform/db"
	"github.com/harborstay/harborstay/internal/platform/httpx"
	"github.com/harborstay/harborstay/internal/qr"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for webhook transactions
// and the combined resolve-and-post transaction.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const txnColumns = `id, external_id, amount, narration, sender_account, sender_name, bank_code, transferred_at, outcome, outcome_detail, request_id, posting_id, received_at, processed_at`

func scanTxn(row pgx.Row) (*WebhookTransaction, error) {
	var t WebhookTransaction
	var outcome, detail pgtype.Text
	var requestID pgtype.UUID
	var postingID pgtype.Int8
	var processedAt pgtype.Timestamptz
	err := row.Scan(&t.ID, &t.ExternalID, &t.Amount, &t.Narration, &t.SenderAccount, &t.SenderName, &t.BankCode, &t.TransferredAt, &outcome, &detail, &requestID, &postingID, &t.ReceivedAt, &processedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("webhook transaction: %w", httpx.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	t.Outcome = OutcomeCode(outcome.String)
	t.OutcomeDetail = detail.String
	if requestID.Valid {
		id := uuid.UUID(requestID.Bytes)
		t.RequestID = &id
	}
	if postingID.Valid {
		t.PostingID = &postingID.Int64
	}
	if processedAt.Valid {
		t.ProcessedAt = &processedAt.Time
	}
	return &t, nil
}

// Insert records a notification exactly once per external id. This is the
// idempotency gate: the second return value is false when the id was already
// recorded and the stored transaction is returned instead.
func (r *Repository) Insert(ctx context.Context, n Notification) (*WebhookTransaction, bool, error) {
	row := r.pool.QueryRow(ctx, `INSERT INTO webhook_transactions
(external_id, amount, narration, sender_account, sender_name, bank_code, transferred_at, received_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
RETURNING `+txnColumns,
		n.ExternalID, n.Amount, n.Narration, n.SenderAccount, n.SenderName, n.BankCode, n.TransferredAt)
	t, err := scanTxn(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			existing, err := r.GetByExternalID(ctx, n.ExternalID)
			if err != nil {
				return nil, false, err
			}
			return existing, false, nil
		}
		return nil, false, err
	}
	return t, true, nil
}

// GetByExternalID retrieves the recorded transaction for an external id.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*WebhookTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+txnColumns+` FROM webhook_transactions WHERE external_id = $1`, externalID)
	return scanTxn(row)
}

// ListUnmatched returns transactions needing manual review, newest first.
func (r *Repository) ListUnmatched(ctx context.Context, limit int) ([]WebhookTransaction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `SELECT `+txnColumns+` FROM webhook_transactions
WHERE outcome IN ($1, $2, $3, $4)
ORDER BY received_at DESC LIMIT $5`,
		OutcomeNoCodeFound, OutcomeNoPendingRequest, OutcomeAlreadyResolved, OutcomeInternalError, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WebhookTransaction
	for rows.Next() {
		t, err := scanTxn(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// MarkOutcome records the outcome of a non-posting path.
func (r *Repository) MarkOutcome(ctx context.Context, txnID int64, code OutcomeCode, detail string, requestID *uuid.UUID) error {
	var reqID pgtype.UUID
	if requestID != nil {
		reqID = pgtype.UUID{Bytes: *requestID, Valid: true}
	}
	_, err := r.pool.Exec(ctx, `UPDATE webhook_transactions
SET outcome = $2, outcome_detail = $3, request_id = $4, processed_at = NOW()
WHERE id = $1`, txnID, code, detail, reqID)
	return err
}

// ResolveAndPost is the atomic resolution unit: the compare-and-swap on the
// payment request, the PAYMENT posting for the received amount, the balance
// recompute and the outcome record commit or roll back together. The boolean
// reports whether this caller won the swap.
func (r *Repository) ResolveAndPost(ctx context.Context, txnID int64, requestID uuid.UUID, folioID int64, status qr.RequestStatus, code OutcomeCode, detail string, received int64, externalID string) (*folio.Posting, bool, error) {
	var posting *folio.Posting
	won := false
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		won, err = qr.ResolveTx(ctx, tx, requestID, status, received, externalID)
		if err != nil {
			return err
		}
		if !won {
			return nil
		}

		f, err := folio.LockTx(ctx, tx, folioID)
		if err != nil {
			return err
		}
		if f.Status != folio.StatusOpen {
			return fmt.Errorf("folio %d closed before payment settled: %w", folioID, httpx.ErrConflict)
		}
		posting, err = folio.InsertPostingTx(ctx, tx, folioID, folio.PostingInput{
			Kind:        folio.KindPayment,
			Amount:      received,
			Reference:   externalID,
			Description: detail,
		})
		if err != nil {
			return err
		}
		if _, err := folio.RecomputeBalanceTx(ctx, tx, folioID); err != nil {
			return err
		}

		reqID := pgtype.UUID{Bytes: requestID, Valid: true}
		_, err = tx.Exec(ctx, `UPDATE webhook_transactions
SET outcome = $2, outcome_detail = $3, request_id = $4, posting_id = $5, processed_at = NOW()
WHERE id = $1`, txnID, code, detail, reqID, posting.ID)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return posting, won, nil
}
