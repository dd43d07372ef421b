// Package invoice freezes folio ledgers into immutable billing snapshots.
package invoice

import "time"

// Invoice is a frozen view of a folio at one instant. Header totals and line
// items never change after generation; only the cancelled flag may flip, once.
type Invoice struct {
	ID             int64
	FolioID        int64
	Code           string
	Subtotal       int64
	SurchargeTotal int64
	DiscountTotal  int64
	TaxTotal       int64
	Total          int64
	PaidTotal      int64
	BalanceDue     int64
	Cancelled      bool
	CancelledAt    *time.Time
	GeneratedAt    time.Time
}

// Line is one frozen ledger line. PostingID points back at the source posting
// for audit trails but the copied values are authoritative for the snapshot.
type Line struct {
	ID          int64
	InvoiceID   int64
	PostingID   int64
	Kind        string
	Description string
	Amount      int64
	TaxAmount   int64
}

// WithLines bundles a header with its lines.
type WithLines struct {
	Invoice Invoice
	Lines   []Line
}

// Totals are the header aggregates derived from the frozen lines.
type Totals struct {
	Subtotal       int64
	SurchargeTotal int64
	DiscountTotal  int64
	TaxTotal       int64
	Total          int64
	PaidTotal      int64
}

// Summarize derives header totals from the lines about to be frozen. Room
// charges form the subtotal; deposits and refunds pass through the balance
// but are not part of the billed total.
func Summarize(lines []Line) Totals {
	var t Totals
	for _, l := range lines {
		t.TaxTotal += l.TaxAmount
		switch l.Kind {
		case "ROOM":
			t.Subtotal += l.Amount
		case "SURCHARGE":
			t.SurchargeTotal += l.Amount
		case "DISCOUNT":
			t.DiscountTotal += l.Amount
		case "TAX":
			t.TaxTotal += l.Amount
		case "PAYMENT":
			t.PaidTotal += l.Amount
		}
	}
	t.Total = t.Subtotal + t.SurchargeTotal - t.DiscountTotal + t.TaxTotal
	return t
}
