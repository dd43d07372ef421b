// Package stay provides read-only access to the booking system's stays.
// Booking CRUD lives in the booking service; this package only consumes it.
package stay

import "time"

// Status enumerates stay lifecycle states.
type Status string

const (
	StatusConfirmed  Status = "CONFIRMED"
	StatusInHouse    Status = "IN_HOUSE"
	StatusCheckedOut Status = "CHECKED_OUT"
	StatusCancelled  Status = "CANCELLED"
	StatusNoShow     Status = "NO_SHOW"
)

// Stay is the booking summary the ledger needs.
type Stay struct {
	ID          int64
	Code        string
	GuestName   string
	Status      Status
	CheckIn     time.Time
	CheckOut    time.Time
	Nights      int
	Occupants   int
	RoomRate    int64
	TotalAmount int64
}
