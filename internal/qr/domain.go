// Package qr manages short-lived QR payment requests. A request leaves
// PENDING exactly once: reconciliation resolves it to MATCHED, OVERPAID or
// UNDERPAID, the sweep (or a late webhook) expires it, or staff cancel it.
// Resolved states are terminal; a follow-up top-up transfer needs a fresh
// request.
package qr

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus enumerates payment request states.
type RequestStatus string

const (
	StatusPending   RequestStatus = "PENDING"
	StatusMatched   RequestStatus = "MATCHED"
	StatusOverpaid  RequestStatus = "OVERPAID"
	StatusUnderpaid RequestStatus = "UNDERPAID"
	StatusExpired   RequestStatus = "EXPIRED"
	StatusCancelled RequestStatus = "CANCELLED"
)

// Resolved reports whether the status carries a payment classification.
func (s RequestStatus) Resolved() bool {
	return s == StatusMatched || s == StatusOverpaid || s == StatusUnderpaid
}

// PaymentRequest is an ephemeral payment intent. The (invoice code, random
// code) pair is globally unique while PENDING and is what the payer puts in
// the transfer narration.
type PaymentRequest struct {
	ID             uuid.UUID
	FolioID        int64
	InvoiceCode    string
	RandomCode     string
	Narration      string
	ExpectedAmount int64
	// PaidAmount is the received amount once resolved.
	PaidAmount  *int64
	ExternalRef string
	ImageRef    string
	Status      RequestStatus
	ExpiresAt   time.Time
	ResolvedAt  *time.Time
	CreatedAt   time.Time
}

// Expired reports whether the request's validity window has passed.
func (p *PaymentRequest) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// CreateResponse is returned to the client after a request is created.
type CreateResponse struct {
	Request       *PaymentRequest
	BankCode      string
	AccountNumber string
	HolderName    string
}
