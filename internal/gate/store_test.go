package gate

import (
	"context"
	"strings"
	"sync"

	"github.com/robertarktes/event-pass-gate/internal/domain"
)

// memStore keeps bookings in insertion order and serializes RecordEntry
// per booking the way the database row lock does.
type memStore struct {
	mu       sync.Mutex
	order    []string
	bookings map[string]domain.Booking
	locks    map[string]*sync.Mutex
	logs     []domain.EntryLog
	writes   int
}

func newMemStore(bookings ...domain.Booking) *memStore {
	s := &memStore{bookings: map[string]domain.Booking{}, locks: map[string]*sync.Mutex{}}
	for _, b := range bookings {
		s.add(b)
	}
	return s
}

func (s *memStore) add(b domain.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, b.ID)
	s.bookings[b.ID] = clone(b)
	s.locks[b.ID] = &sync.Mutex{}
}

func clone(b domain.Booking) domain.Booking {
	if b.Passes != nil {
		b.Passes = append([]domain.SubPass(nil), b.Passes...)
	}
	if b.CheckedInAt != nil {
		t := *b.CheckedInAt
		b.CheckedInAt = &t
	}
	return b
}

func (s *memStore) booking(id string) domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.bookings[id])
}

func (s *memStore) entryLogs() []domain.EntryLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.EntryLog(nil), s.logs...)
}

func (s *memStore) filter(match func(domain.Booking) bool) []domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Booking
	for _, id := range s.order {
		if b := s.bookings[id]; match(b) {
			out = append(out, clone(b))
		}
	}
	return out
}

func (s *memStore) GetBooking(_ context.Context, id string) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	b = clone(b)
	return &b, nil
}

func (s *memStore) FindBookingByCode(_ context.Context, code string) (*domain.Booking, error) {
	found := s.filter(func(b domain.Booking) bool { return b.Code == code || b.ID == code })
	if len(found) == 0 {
		return nil, domain.ErrBookingNotFound
	}
	return &found[0], nil
}

func (s *memStore) FindBookingsByPhone(_ context.Context, phone string) ([]domain.Booking, error) {
	return s.filter(func(b domain.Booking) bool { return b.BuyerPhone == phone }), nil
}

func (s *memStore) SearchBookingsByName(_ context.Context, fragment string) ([]domain.Booking, error) {
	fragment = strings.ToLower(fragment)
	return s.filter(func(b domain.Booking) bool {
		return strings.Contains(strings.ToLower(b.BuyerName), fragment)
	}), nil
}

func (s *memStore) ListBookings(_ context.Context) ([]domain.Booking, error) {
	return s.filter(func(domain.Booking) bool { return true }), nil
}

func (s *memStore) RecordEntry(_ context.Context, bookingID string, apply ApplyFunc) error {
	s.mu.Lock()
	lock, ok := s.locks[bookingID]
	s.mu.Unlock()
	if !ok {
		return domain.ErrBookingNotFound
	}

	lock.Lock()
	defer lock.Unlock()

	b := s.booking(bookingID)
	log, err := apply(&b)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.bookings[bookingID] = b
	s.logs = append(s.logs, log)
	s.writes++
	return nil
}
