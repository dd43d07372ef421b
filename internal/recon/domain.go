// Package recon reconciles inbound bank-transfer notifications against
// pending QR payment requests and posts the result to the folio ledger.
package recon

import (
	"time"

	"github.com/google/uuid"
)

// OutcomeCode classifies how one notification was handled. The code is
// persisted on the WebhookTransaction so replays return it verbatim.
type OutcomeCode string

const (
	OutcomeMatched          OutcomeCode = "MATCHED"
	OutcomeOverpaid         OutcomeCode = "OVERPAID"
	OutcomeUnderpaid        OutcomeCode = "UNDERPAID"
	OutcomeNoCodeFound      OutcomeCode = "UNMATCHED_NO_CODE"
	OutcomeNoPendingRequest OutcomeCode = "UNMATCHED_NO_REQUEST"
	OutcomeAlreadyResolved  OutcomeCode = "UNMATCHED_ALREADY_RESOLVED"
	OutcomeExpiredRequest   OutcomeCode = "EXPIRED_REQUEST"
	OutcomeBadSignature     OutcomeCode = "REJECTED_SIGNATURE"
	OutcomeInternalError    OutcomeCode = "INTERNAL_ERROR"
)

// Posted reports whether the outcome created a payment posting.
func (c OutcomeCode) Posted() bool {
	return c == OutcomeMatched || c == OutcomeOverpaid || c == OutcomeUnderpaid
}

// Notification is the parsed inbound webhook payload.
type Notification struct {
	ExternalID    string
	Amount        int64
	Narration     string
	SenderAccount string
	SenderName    string
	BankCode      string
	TransferredAt time.Time
	// Signature is the authenticity token computed by the provider over the
	// canonical payload.
	Signature string
}

// WebhookTransaction is the durable, deduplicated record of one inbound
// notification, keyed by the provider's external transaction id.
type WebhookTransaction struct {
	ID            int64
	ExternalID    string
	Amount        int64
	Narration     string
	SenderAccount string
	SenderName    string
	BankCode      string
	TransferredAt time.Time
	Outcome       OutcomeCode
	OutcomeDetail string
	RequestID     *uuid.UUID
	PostingID     *int64
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
}

// Outcome is the explicit result returned to the transport layer. Processing
// failures become an outcome rather than a propagated error so the provider
// is always acknowledged (retry-storm avoidance); the transaction record is
// the audit trail for those cases.
type Outcome struct {
	Code      OutcomeCode
	Detail    string
	Duplicate bool
	RequestID *uuid.UUID
	PostingID *int64
	// AmountDiff is received minus expected when a request was classified.
	AmountDiff int64
}
