package domain

import (
	"strings"
	"time"
)

// Shape tells which entitlement schema a booking uses. Older bookings carry
// a flat TotalPeople/PeopleEntered pair; newer ones carry sub-passes.
type Shape int

const (
	ShapeFlat Shape = iota
	ShapePasses
)

func (b Booking) Shape() Shape {
	if len(b.Passes) > 0 {
		return ShapePasses
	}
	return ShapeFlat
}

// Usage returns the capacity and the entered count of a single booking.
func Usage(b Booking) (capacity, entered int) {
	switch b.Shape() {
	case ShapePasses:
		for _, p := range b.Passes {
			capacity += p.PeopleCount
			entered += p.PeopleEntered
		}
	default:
		capacity, entered = b.TotalPeople, b.PeopleEntered
	}
	return capacity, entered
}

// Totals sums Usage over a set of bookings, choosing the shape per booking.
func Totals(bookings []Booking) (capacity, entered int) {
	for _, b := range bookings {
		c, e := Usage(b)
		capacity += c
		entered += e
	}
	return capacity, entered
}

// PassTypeLabel is the display name of what the booking grants.
func (b Booking) PassTypeLabel() string {
	if b.Shape() == ShapePasses {
		names := make([]string, len(b.Passes))
		for i, p := range b.Passes {
			names[i] = p.PassTypeName
		}
		return strings.Join(names, ", ")
	}
	if b.PassTypeName == "" {
		return "Unknown"
	}
	return b.PassTypeName
}

// RecordEntry applies an admission of count people to the booking and
// returns the new running total. Capacity policy is the caller's concern:
// sub-passes are filled greedily in order and saturate at PeopleCount, so
// people admitted beyond every sub-pass's headroom only show in the
// PeopleEntered snapshot.
func (b *Booking) RecordEntry(count int, operator string, at time.Time) int {
	_, current := Usage(*b)
	newTotal := current + count

	if b.Shape() == ShapePasses {
		left := count
		for i := range b.Passes {
			if left <= 0 {
				break
			}
			p := &b.Passes[i]
			room := p.PeopleCount - p.PeopleEntered
			if room <= 0 {
				continue
			}
			n := min(left, room)
			p.PeopleEntered += n
			left -= n
		}
	}
	b.PeopleEntered = newTotal

	b.CheckedIn = newTotal > 0
	if b.CheckedIn && b.CheckedInAt == nil {
		t := at
		b.CheckedInAt = &t
	}
	b.ScannedBy = operator
	return newTotal
}

// ClassifyEntry derives the log status of an admission from the running
// total it produced.
func ClassifyEntry(newTotal, capacity int) EntryStatus {
	switch {
	case newTotal >= capacity:
		return StatusCheckedIn
	case newTotal > 0:
		return StatusPartiallyCheckedIn
	default:
		return StatusDenied
	}
}
