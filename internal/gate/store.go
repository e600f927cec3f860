// Package gate holds the check-in logic run at the venue entrance: resolving
// a scanned value to a buyer's bookings and admitting people against a
// booking's entitlement.
package gate

import (
	"context"

	"github.com/robertarktes/event-pass-gate/internal/domain"
)

// BookingFinder is the read side of the booking store. Lookups of a single
// booking return domain.ErrBookingNotFound when nothing matches; list
// lookups return bookings in insertion order.
type BookingFinder interface {
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
	FindBookingByCode(ctx context.Context, code string) (*domain.Booking, error)
	FindBookingsByPhone(ctx context.Context, phone string) ([]domain.Booking, error)
	SearchBookingsByName(ctx context.Context, fragment string) ([]domain.Booking, error)
	ListBookings(ctx context.Context) ([]domain.Booking, error)
}

// ApplyFunc mutates the usage fields of a locked booking and returns the
// entry log to append. Returning an error discards the mutation.
type ApplyFunc func(b *domain.Booking) (domain.EntryLog, error)

// EntryRecorder runs apply against the current state of one booking while
// holding that booking exclusively, then persists the booking and the
// returned log in a single transaction. It may call apply more than once
// when the transaction has to be retried.
type EntryRecorder interface {
	RecordEntry(ctx context.Context, bookingID string, apply ApplyFunc) error
}

type EntryLogReader interface {
	ListEntryLogs(ctx context.Context, limit int) ([]domain.EntryLogView, error)
}
