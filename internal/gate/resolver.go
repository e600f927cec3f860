package gate

import (
	"context"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-pass-gate/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var phonePattern = regexp.MustCompile(`^\d{10}$`)

// ResolvedPass is what gate staff see after a scan: the booking that was
// matched and every booking considered part of the same purchase group,
// with capacity and usage summed across the group.
type ResolvedPass struct {
	Primary      domain.Booking
	Bookings     []domain.Booking
	TotalPeople  int
	TotalEntered int
	CanEnter     bool
	UnpaidCount  int
}

type Resolver struct {
	bookings BookingFinder
}

func NewResolver(bookings BookingFinder) *Resolver {
	return &Resolver{bookings: bookings}
}

// Resolve matches searchValue as a 10 digit phone number, then as a booking
// code, then as a case-insensitive fragment of the buyer name. Unpaid
// bookings are returned like any other.
func (r *Resolver) Resolve(ctx context.Context, searchValue string) (*ResolvedPass, error) {
	ctx, span := otel.Tracer("gate").Start(ctx, "gate.Resolve")
	defer span.End()

	value := strings.TrimSpace(searchValue)
	if value == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "pass ID or mobile number required")
	}

	primary, bookings, err := r.lookup(ctx, value)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if primary == nil || len(bookings) == 0 {
		return nil, domain.ErrNotFound
	}

	capacity, entered := domain.Totals(bookings)
	unpaid := 0
	for _, b := range bookings {
		if b.PaymentStatus != domain.PaymentPaid {
			unpaid++
		}
	}
	span.SetAttributes(
		attribute.Int("gate.bookings", len(bookings)),
		attribute.Int("gate.unpaid", unpaid),
	)

	return &ResolvedPass{
		Primary:      *primary,
		Bookings:     bookings,
		TotalPeople:  capacity,
		TotalEntered: entered,
		CanEnter:     entered < capacity,
		UnpaidCount:  unpaid,
	}, nil
}

func (r *Resolver) lookup(ctx context.Context, value string) (*domain.Booking, []domain.Booking, error) {
	if phonePattern.MatchString(value) {
		bookings, err := r.bookings.FindBookingsByPhone(ctx, value)
		if err != nil {
			return nil, nil, errors.Wrap(err, "find bookings by phone")
		}
		return first(bookings), bookings, nil
	}

	primary, err := r.bookings.FindBookingByCode(ctx, value)
	switch {
	case err == nil:
		if primary.BuyerPhone == "" {
			return primary, []domain.Booking{*primary}, nil
		}
		siblings, err := r.bookings.FindBookingsByPhone(ctx, primary.BuyerPhone)
		if err != nil {
			return nil, nil, errors.Wrap(err, "find sibling bookings")
		}
		return primary, includeBooking(siblings, *primary), nil
	case !errors.Is(err, domain.ErrBookingNotFound):
		return nil, nil, errors.Wrap(err, "find booking by code")
	}

	bookings, err := r.bookings.SearchBookingsByName(ctx, value)
	if err != nil {
		return nil, nil, errors.Wrap(err, "search bookings by name")
	}
	return first(bookings), bookings, nil
}

func first(bookings []domain.Booking) *domain.Booking {
	if len(bookings) == 0 {
		return nil
	}
	b := bookings[0]
	return &b
}

// includeBooking prepends b unless the set already contains it.
func includeBooking(bookings []domain.Booking, b domain.Booking) []domain.Booking {
	for _, s := range bookings {
		if s.ID == b.ID {
			return bookings
		}
	}
	return append([]domain.Booking{b}, bookings...)
}
