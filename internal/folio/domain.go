// Package folio owns the per-stay ledger: postings and the derived balance.
package folio

import "time"

// Status enumerates folio lifecycle states.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

// PostingKind enumerates ledger line kinds.
type PostingKind string

const (
	KindRoom      PostingKind = "ROOM"
	KindSurcharge PostingKind = "SURCHARGE"
	KindDiscount  PostingKind = "DISCOUNT"
	KindTax       PostingKind = "TAX"
	KindDeposit   PostingKind = "DEPOSIT"
	KindPayment   PostingKind = "PAYMENT"
	KindRefund    PostingKind = "REFUND"
)

// IsCharge reports whether the kind increases the balance due. Refunds return
// money to the guest, so the amount becomes owed again.
func (k PostingKind) IsCharge() bool {
	switch k {
	case KindRoom, KindSurcharge, KindDeposit, KindRefund:
		return true
	}
	return false
}

// IsCredit reports whether the kind decreases the balance due.
func (k PostingKind) IsCredit() bool {
	switch k {
	case KindPayment, KindDiscount:
		return true
	}
	return false
}

// Taxable reports whether the flat tax rate applies to the kind.
func (k PostingKind) Taxable() bool {
	return k == KindRoom || k == KindSurcharge
}

// Valid reports whether the kind is known.
func (k PostingKind) Valid() bool {
	return k.IsCharge() || k.IsCredit() || k == KindTax
}

// Folio is the running ledger of one stay. The cached totals are derived and
// recomputed on every mutation; the postings remain the source of truth.
// Invariant: Balance == TotalCharges - TotalCredits + TotalTax.
type Folio struct {
	ID           int64
	StayID       int64
	Status       Status
	TotalCharges int64
	TotalCredits int64
	TotalTax     int64
	Balance      int64
	OpenedAt     time.Time
	ClosedAt     *time.Time
	UpdatedAt    time.Time
}

// Posting is one immutable ledger line. Only the void flag may change after
// creation; voided postings are excluded from the balance.
type Posting struct {
	ID          int64
	FolioID     int64
	Kind        PostingKind
	Amount      int64
	TaxAmount   int64
	Reference   string
	Description string
	// ChargeDate is set for night-audit room charges and anchors their
	// once-per-date idempotency.
	ChargeDate *time.Time
	Voided     bool
	VoidedAt   *time.Time
	CreatedAt  time.Time
}

// PostingInput describes a posting to append.
type PostingInput struct {
	Kind        PostingKind
	Amount      int64
	TaxAmount   int64
	Reference   string
	Description string
	ChargeDate  *time.Time
}

// WithPostings bundles a folio with its ledger lines.
type WithPostings struct {
	Folio    Folio
	Postings []Posting
}
