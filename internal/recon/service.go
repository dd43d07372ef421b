package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/harborstay/harborstay/internal/folio"
	"github.com/harborstay/harborstay/internal/platform/httpx"
	"github.com/harborstay/harborstay/internal/qr"
)

// RepositoryPort defines persistence for webhook transactions.
type RepositoryPort interface {
	Insert(ctx context.Context, n Notification) (*WebhookTransaction, bool, error)
	MarkOutcome(ctx context.Context, txnID int64, code OutcomeCode, detail string, requestID *uuid.UUID) error
	ResolveAndPost(ctx context.Context, txnID int64, requestID uuid.UUID, folioID int64, status qr.RequestStatus, code OutcomeCode, detail string, received int64, externalID string) (posting *folio.Posting, won bool, err error)
}

// RequestPort looks up and expires payment requests.
type RequestPort interface {
	FindPending(ctx context.Context, invoiceCode, randomCode string) (*qr.PaymentRequest, error)
	MarkExpired(ctx context.Context, id uuid.UUID) error
}

// Service runs the reconciliation pipeline.
type Service struct {
	repo      RepositoryPort
	requests  RequestPort
	signer    *Signer
	tolerance int64
	logger    *slog.Logger

	now func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, requests RequestPort, signer *Signer, tolerance int64, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		requests:  requests,
		signer:    signer,
		tolerance: tolerance,
		logger:    logger,
		now:       time.Now,
	}
}

// Process reconciles one notification. Every path ends in a recorded outcome;
// infrastructure failures surface as OutcomeInternalError so the transport
// can still acknowledge the provider. Only OutcomeBadSignature is meant to be
// rejected upstream.
func (s *Service) Process(ctx context.Context, n Notification) Outcome {
	// Step 1: dedupe. The unique insert on the external id is the idempotency
	// boundary for the whole pipeline; a replay returns the stored outcome
	// verbatim and performs no further writes.
	txn, inserted, err := s.repo.Insert(ctx, n)
	if err != nil {
		s.logger.Error("record webhook transaction", slog.String("external_id", n.ExternalID), slog.Any("error", err))
		return Outcome{Code: OutcomeInternalError, Detail: "could not record transaction"}
	}
	if !inserted {
		return s.storedOutcome(txn)
	}

	// Step 2: authenticity. The transaction row doubles as the audit record;
	// nothing else is persisted for a rejected delivery.
	if err := s.signer.Verify(n); err != nil {
		return s.finish(ctx, txn.ID, Outcome{Code: OutcomeBadSignature, Detail: "signature mismatch"}, nil)
	}

	// Step 3: parse the narration.
	invoiceCode, randomCode, ok := ParseCodes(n.Narration)
	if !ok {
		return s.finish(ctx, txn.ID, Outcome{Code: OutcomeNoCodeFound, Detail: "no code pair in narration"}, nil)
	}

	// Step 4: look up the pending request for the exact code pair.
	req, err := s.requests.FindPending(ctx, invoiceCode, randomCode)
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			detail := fmt.Sprintf("no pending request for %s %s", invoiceCode, randomCode)
			return s.finish(ctx, txn.ID, Outcome{Code: OutcomeNoPendingRequest, Detail: detail}, nil)
		}
		return s.internalError(ctx, txn.ID, "lookup pending request", err)
	}

	// Step 5: expiry precedence. A late transfer never posts, even when the
	// amount matches exactly.
	if req.Expired(s.now()) {
		if err := s.requests.MarkExpired(ctx, req.ID); err != nil {
			return s.internalError(ctx, txn.ID, "expire request", err)
		}
		detail := fmt.Sprintf("request %s expired at %s", req.ID, req.ExpiresAt.Format(time.RFC3339))
		return s.finish(ctx, txn.ID, Outcome{Code: OutcomeExpiredRequest, Detail: detail}, &req.ID)
	}

	// Step 6: classify the received amount against the expected one.
	status, code := s.classify(n.Amount, req.ExpectedAmount)
	diff := n.Amount - req.ExpectedAmount
	detail := fmt.Sprintf("%s payment %d against %s (expected %d)", code, n.Amount, req.Narration, req.ExpectedAmount)

	// Step 7: atomic resolution. Exactly one caller wins the status swap and
	// posts the received amount; step 8 handles the loser.
	posting, won, err := s.repo.ResolveAndPost(ctx, txn.ID, req.ID, req.FolioID, status, code, detail, n.Amount, n.ExternalID)
	if err != nil {
		return s.internalError(ctx, txn.ID, "resolve and post", err)
	}
	if !won {
		return s.finish(ctx, txn.ID, Outcome{Code: OutcomeAlreadyResolved, Detail: "request already resolved"}, &req.ID)
	}

	s.logger.Info("payment reconciled",
		slog.String("external_id", n.ExternalID),
		slog.String("request_id", req.ID.String()),
		slog.String("outcome", string(code)),
		slog.Int64("amount", n.Amount),
		slog.Int64("diff", diff))
	reqID := req.ID
	return Outcome{Code: code, Detail: detail, RequestID: &reqID, PostingID: &posting.ID, AmountDiff: diff}
}

func (s *Service) classify(received, expected int64) (qr.RequestStatus, OutcomeCode) {
	diff := received - expected
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= s.tolerance:
		return qr.StatusMatched, OutcomeMatched
	case received > expected:
		return qr.StatusOverpaid, OutcomeOverpaid
	default:
		return qr.StatusUnderpaid, OutcomeUnderpaid
	}
}

// storedOutcome replays the recorded result of a duplicate delivery.
func (s *Service) storedOutcome(txn *WebhookTransaction) Outcome {
	code := txn.Outcome
	if code == "" {
		// First delivery is still in flight or crashed before recording.
		code = OutcomeInternalError
	}
	return Outcome{
		Code:      code,
		Detail:    txn.OutcomeDetail,
		Duplicate: true,
		RequestID: txn.RequestID,
		PostingID: txn.PostingID,
	}
}

// finish persists a non-posting outcome on the transaction record.
func (s *Service) finish(ctx context.Context, txnID int64, out Outcome, requestID *uuid.UUID) Outcome {
	out.RequestID = requestID
	if err := s.repo.MarkOutcome(ctx, txnID, out.Code, out.Detail, requestID); err != nil {
		s.logger.Error("mark webhook outcome", slog.Int64("txn_id", txnID), slog.Any("error", err))
	}
	return out
}

func (s *Service) internalError(ctx context.Context, txnID int64, op string, err error) Outcome {
	s.logger.Error("webhook processing failed", slog.String("op", op), slog.Int64("txn_id", txnID), slog.Any("error", err))
	return s.finish(ctx, txnID, Outcome{Code: OutcomeInternalError, Detail: op + " failed"}, nil)
}
