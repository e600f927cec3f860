package domain

import "time"

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "Pending"
	PaymentPaid     PaymentStatus = "Paid"
	PaymentRefunded PaymentStatus = "Refunded"
)

type PaymentMode string

const (
	PaymentCash   PaymentMode = "Cash"
	PaymentUPI    PaymentMode = "UPI"
	PaymentCard   PaymentMode = "Card"
	PaymentOnline PaymentMode = "Online"
)

// Booking is one buyer's purchase. BuyerPhone groups the bookings of a
// single buyer. Usage fields (PeopleEntered, Passes[].PeopleEntered,
// CheckedIn, CheckedInAt, ScannedBy) are only changed by gate admissions.
type Booking struct {
	ID            string
	Code          string
	PassTypeID    string
	PassTypeName  string
	BuyerName     string
	BuyerPhone    string
	TotalPeople   int
	PeopleEntered int
	Passes        []SubPass
	TotalAmount   int64
	PaymentStatus PaymentStatus
	PaymentMode   PaymentMode
	Notes         string
	IsOwnerPass   bool
	CheckedIn     bool
	CheckedInAt   *time.Time
	ScannedBy     string
	CreatedAt     time.Time
}

type SubPass struct {
	PassTypeID    string
	PassTypeName  string
	PeopleCount   int
	PeopleEntered int
}

type PassType struct {
	ID            string
	Name          string
	Price         int64
	MaxPeople     int
	ValidForEvent string
	Description   string
	IsActive      bool
}

type EntryStatus string

const (
	StatusCheckedIn          EntryStatus = "Checked-in"
	StatusPartiallyCheckedIn EntryStatus = "Partially Checked-in"
	StatusDenied             EntryStatus = "Denied"
)

// EntryLog is the immutable record of one admission. PeopleEntered is the
// count admitted by that attempt, not the running total.
type EntryLog struct {
	ID            string
	BookingID     string
	ScannedBy     string
	PeopleEntered int
	Status        EntryStatus
	AdminOverride bool
	ScannedAt     time.Time
}

// EntryLogView is an EntryLog joined with the booking it refers to.
type EntryLogView struct {
	EntryLog
	BookingCode string
	BuyerName   string
	BuyerPhone  string
}
