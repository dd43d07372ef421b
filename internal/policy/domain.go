// Package policy computes deposit amounts and surcharges. Evaluation is pure:
// given stay attributes, a date and a policy set it always produces the same
// charges, so the ledger can be replayed from inputs.
package policy

import "time"

// DepositMethod enumerates how a deposit amount is derived.
type DepositMethod string

const (
	// DepositPercent derives the deposit from the stay total, in basis points.
	DepositPercent DepositMethod = "PERCENT"
	// DepositFixed is a flat amount per stay.
	DepositFixed DepositMethod = "FIXED"
	// DepositNights charges the room rate for the first N nights.
	DepositNights DepositMethod = "NIGHTS"
)

// DepositRule describes the active deposit policy.
type DepositRule struct {
	ID     int64
	Method DepositMethod
	// Value is basis points for PERCENT, an amount for FIXED and a night
	// count for NIGHTS.
	Value int64
}

// SurchargeKind enumerates surcharge categories. At most one policy per kind
// applies on a given date.
type SurchargeKind string

const (
	SurchargeWeekend       SurchargeKind = "WEEKEND"
	SurchargeExtraOccupant SurchargeKind = "EXTRA_OCCUPANT"
	SurchargeSeasonal      SurchargeKind = "SEASONAL"
)

// WeekdayMask selects the days of week a policy applies to, bit 0 = Sunday.
type WeekdayMask uint8

// Matches reports whether the mask covers the given weekday.
func (m WeekdayMask) Matches(d time.Weekday) bool {
	return m&(1<<uint(d)) != 0
}

// MaskFor builds a mask from weekdays.
func MaskFor(days ...time.Weekday) WeekdayMask {
	var m WeekdayMask
	for _, d := range days {
		m |= 1 << uint(d)
	}
	return m
}

// SurchargePolicy is one configured surcharge rule.
type SurchargePolicy struct {
	ID         int64
	Name       string
	Kind       SurchargeKind
	Amount     int64
	PercentBps int64
	// MinOccupants applies to EXTRA_OCCUPANT policies; the surcharge is
	// charged per occupant above this count.
	MinOccupants int
	Priority     int
	ValidFrom    time.Time
	ValidTo      time.Time
	Weekdays     WeekdayMask
	CreatedAt    time.Time
}

// Surcharge is one evaluated charge ready for posting.
type Surcharge struct {
	PolicyID int64
	Name     string
	Kind     SurchargeKind
	Amount   int64
}

// StayInfo carries the stay attributes evaluation depends on.
type StayInfo struct {
	Nights      int
	Occupants   int
	RoomRate    int64
	TotalAmount int64
}
