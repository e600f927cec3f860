package domain

import "time"

// Routing keys of the events relayed from the outbox.
const (
	EventEntryAdmitted  = "entry.admitted"
	EventBookingCreated = "booking.created"
)

type EntryAdmittedEvent struct {
	EntryLogID    string      `json:"entry_log_id"`
	BookingID     string      `json:"booking_id"`
	BookingCode   string      `json:"booking_code"`
	BuyerPhone    string      `json:"buyer_phone"`
	ScannedBy     string      `json:"scanned_by"`
	PeopleEntered int         `json:"people_entered"`
	TotalEntered  int         `json:"total_entered"`
	Status        EntryStatus `json:"status"`
	AdminOverride bool        `json:"admin_override"`
	ScannedAt     time.Time   `json:"scanned_at"`
}

type BookingCreatedEvent struct {
	BookingID     string        `json:"booking_id"`
	BookingCode   string        `json:"booking_code"`
	BuyerName     string        `json:"buyer_name"`
	BuyerPhone    string        `json:"buyer_phone"`
	PassType      string        `json:"pass_type"`
	TotalPeople   int           `json:"total_people"`
	TotalAmount   int64         `json:"total_amount"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	CreatedAt     time.Time     `json:"created_at"`
}
