package http

import (
	"time"

	"github.com/robertarktes/event-pass-gate/internal/domain"
	"github.com/robertarktes/event-pass-gate/internal/gate"
)

// passTypeRef is the embedded pass type of a booking.
type passTypeRef struct {
	ID   string `json:"_id,omitempty"`
	Name string `json:"name"`
}

func passTypeOf(b domain.Booking) passTypeRef {
	if b.Shape() == domain.ShapePasses {
		return passTypeRef{Name: b.PassTypeLabel()}
	}
	return passTypeRef{ID: b.PassTypeID, Name: b.PassTypeLabel()}
}

type primaryView struct {
	ID                 string      `json:"id"`
	BookingID          string      `json:"booking_id"`
	BuyerName          string      `json:"buyer_name"`
	BuyerPhone         string      `json:"buyer_phone"`
	PassType           passTypeRef `json:"pass_type_id"`
	TotalPeople        int         `json:"total_people"`
	CheckedIn          bool        `json:"checked_in"`
	CheckedInAt        *time.Time  `json:"checked_in_at"`
	TotalPeopleEntered int         `json:"total_people_entered"`
	PeopleEntered      int         `json:"people_entered"`
	ScannedBy          string      `json:"scanned_by"`
	Notes              string      `json:"notes"`
	CanEnter           bool        `json:"canEnter"`
	UnpaidCount        int         `json:"unpaid_count"`
}

// newPrimaryView reports the primary booking with totals aggregated over
// every booking of the buyer.
func newPrimaryView(p *gate.ResolvedPass) primaryView {
	b := p.Primary
	return primaryView{
		ID:                 b.ID,
		BookingID:          b.Code,
		BuyerName:          b.BuyerName,
		BuyerPhone:         b.BuyerPhone,
		PassType:           passTypeOf(b),
		TotalPeople:        p.TotalPeople,
		CheckedIn:          b.CheckedIn,
		CheckedInAt:        b.CheckedInAt,
		TotalPeopleEntered: p.TotalEntered,
		PeopleEntered:      p.TotalEntered,
		ScannedBy:          b.ScannedBy,
		Notes:              b.Notes,
		CanEnter:           p.CanEnter,
		UnpaidCount:        p.UnpaidCount,
	}
}

type bookingSummary struct {
	ID            string               `json:"_id"`
	BookingID     string               `json:"booking_id"`
	BuyerName     string               `json:"buyer_name"`
	BuyerPhone    string               `json:"buyer_phone"`
	PassType      passTypeRef          `json:"pass_type_id"`
	TotalPeople   int                  `json:"total_people"`
	PeopleEntered int                  `json:"people_entered"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	PaymentMode   domain.PaymentMode   `json:"payment_mode"`
	TotalAmount   int64                `json:"total_amount"`
	CheckedIn     bool                 `json:"checked_in"`
	CheckedInAt   *time.Time           `json:"checked_in_at"`
}

func newBookingSummary(b domain.Booking) bookingSummary {
	capacity, entered := domain.Usage(b)
	return bookingSummary{
		ID:            b.ID,
		BookingID:     b.Code,
		BuyerName:     b.BuyerName,
		BuyerPhone:    b.BuyerPhone,
		PassType:      passTypeOf(b),
		TotalPeople:   capacity,
		PeopleEntered: entered,
		PaymentStatus: b.PaymentStatus,
		PaymentMode:   b.PaymentMode,
		TotalAmount:   b.TotalAmount,
		CheckedIn:     b.CheckedIn,
		CheckedInAt:   b.CheckedInAt,
	}
}

type searchResponse struct {
	Message     string           `json:"message"`
	Booking     primaryView      `json:"booking"`
	AllBookings []bookingSummary `json:"allBookings"`
}

type admissionView struct {
	ID            string             `json:"id"`
	BookingID     string             `json:"booking_id"`
	BuyerName     string             `json:"buyer_name"`
	PassType      string             `json:"pass_type"`
	TotalAllowed  int                `json:"total_allowed"`
	TotalEntered  int                `json:"total_entered"`
	Remaining     int                `json:"remaining"`
	ThisEntry     int                `json:"this_entry"`
	Status        domain.EntryStatus `json:"status"`
	FullyUtilized bool               `json:"fully_utilized"`
	EntryLogID    string             `json:"entry_log_id"`
}

type entryBookingRef struct {
	ID         string `json:"_id"`
	BookingID  string `json:"booking_id"`
	BuyerName  string `json:"buyer_name"`
	BuyerPhone string `json:"buyer_phone"`
}

type entryLogView struct {
	ID            string             `json:"_id"`
	Booking       entryBookingRef    `json:"booking_id"`
	ScannedBy     string             `json:"scanned_by"`
	PeopleEntered int                `json:"people_entered"`
	Status        domain.EntryStatus `json:"status"`
	AdminOverride bool               `json:"admin_override"`
	ScannedAt     time.Time          `json:"scanned_at"`
}

func newEntryLogView(l domain.EntryLogView) entryLogView {
	return entryLogView{
		ID: l.ID,
		Booking: entryBookingRef{
			ID:         l.BookingID,
			BookingID:  l.BookingCode,
			BuyerName:  l.BuyerName,
			BuyerPhone: l.BuyerPhone,
		},
		ScannedBy:     l.ScannedBy,
		PeopleEntered: l.PeopleEntered,
		Status:        l.Status,
		AdminOverride: l.AdminOverride,
		ScannedAt:     l.ScannedAt,
	}
}

type gateBookingView struct {
	ID            string               `json:"_id"`
	BookingID     string               `json:"booking_id"`
	BuyerName     string               `json:"buyer_name"`
	BuyerPhone    string               `json:"buyer_phone"`
	TotalPeople   int                  `json:"total_people"`
	PeopleEntered int                  `json:"people_entered"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
}

type subPassView struct {
	PassTypeID    string `json:"pass_type_id"`
	PassTypeName  string `json:"pass_type_name"`
	PeopleCount   int    `json:"people_count"`
	PeopleEntered int    `json:"people_entered"`
}

type bookingView struct {
	ID            string               `json:"_id"`
	BookingID     string               `json:"booking_id"`
	PassType      passTypeRef          `json:"pass_type_id"`
	BuyerName     string               `json:"buyer_name"`
	BuyerPhone    string               `json:"buyer_phone"`
	TotalPeople   int                  `json:"total_people"`
	PeopleEntered int                  `json:"people_entered"`
	Passes        []subPassView        `json:"passes,omitempty"`
	TotalAmount   int64                `json:"total_amount"`
	PaymentStatus domain.PaymentStatus `json:"payment_status"`
	PaymentMode   domain.PaymentMode   `json:"payment_mode"`
	Notes         string               `json:"notes"`
	IsOwnerPass   bool                 `json:"is_owner_pass"`
	CheckedIn     bool                 `json:"checked_in"`
	CheckedInAt   *time.Time           `json:"checked_in_at"`
	ScannedBy     string               `json:"scanned_by"`
	CreatedAt     time.Time            `json:"createdAt"`
}

func newBookingView(b domain.Booking) bookingView {
	capacity, entered := domain.Usage(b)
	v := bookingView{
		ID:            b.ID,
		BookingID:     b.Code,
		PassType:      passTypeOf(b),
		BuyerName:     b.BuyerName,
		BuyerPhone:    b.BuyerPhone,
		TotalPeople:   capacity,
		PeopleEntered: entered,
		TotalAmount:   b.TotalAmount,
		PaymentStatus: b.PaymentStatus,
		PaymentMode:   b.PaymentMode,
		Notes:         b.Notes,
		IsOwnerPass:   b.IsOwnerPass,
		CheckedIn:     b.CheckedIn,
		CheckedInAt:   b.CheckedInAt,
		ScannedBy:     b.ScannedBy,
		CreatedAt:     b.CreatedAt,
	}
	for _, p := range b.Passes {
		v.Passes = append(v.Passes, subPassView(p))
	}
	return v
}

type passTypeView struct {
	ID            string `json:"_id"`
	Name          string `json:"name"`
	Price         int64  `json:"price"`
	MaxPeople     int    `json:"max_people"`
	ValidForEvent string `json:"valid_for_event"`
	Description   string `json:"description"`
	IsActive      bool   `json:"is_active"`
}
