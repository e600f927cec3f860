package booking

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/event-pass-gate/internal/domain"
)

type fakeCatalog map[string]domain.PassType

func (c fakeCatalog) GetPassType(_ context.Context, id string) (*domain.PassType, error) {
	pt, ok := c[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &pt, nil
}

type fakeStore struct {
	bookings map[string]domain.Booking
	codes    map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{bookings: map[string]domain.Booking{}, codes: map[string]bool{}}
}

func (s *fakeStore) CreateBooking(_ context.Context, b domain.Booking) error {
	if s.codes[b.Code] {
		return domain.ErrConflict
	}
	s.codes[b.Code] = true
	s.bookings[b.ID] = b
	return nil
}

func (s *fakeStore) GetBooking(_ context.Context, id string) (*domain.Booking, error) {
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrBookingNotFound
	}
	return &b, nil
}

var catalog = fakeCatalog{
	"teens":  {ID: "teens", Name: "Teens", Price: 500, MaxPeople: 1, IsActive: true},
	"couple": {ID: "couple", Name: "Couple", Price: 1200, MaxPeople: 2, IsActive: true},
	"family": {ID: "family", Name: "Family", Price: 2000, MaxPeople: 4, IsActive: true},
}

func newTestService(store Store) *Service {
	s := NewService(store, catalog)
	n := 0
	s.now = func() time.Time { return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC) }
	s.newID = func() string { n++; return fmt.Sprintf("id-%d", n) }
	return s
}

func TestService_CreatePricing(t *testing.T) {
	tests := []struct {
		name       string
		req        CreateRequest
		wantAmount int64
		wantPeople int
	}{
		{"list price per pass", CreateRequest{PassTypeID: "couple", BuyerName: "Asha", TotalPasses: 3}, 3600, 2},
		{"single pass by default", CreateRequest{PassTypeID: "family", BuyerName: "Asha"}, 2000, 4},
		{"custom price wins", CreateRequest{PassTypeID: "couple", BuyerName: "Asha", TotalPasses: 3, CustomPrice: 999}, 999, 2},
		{"owner pass is free", CreateRequest{PassTypeID: "couple", BuyerName: "Asha", CustomPrice: 999, IsOwnerPass: true}, 0, 2},
		{"explicit total people", CreateRequest{PassTypeID: "couple", BuyerName: "Asha", TotalPeople: 5}, 1200, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := newTestService(newFakeStore()).Create(context.Background(), tt.req)
			if err != nil {
				t.Fatal(err)
			}
			if b.TotalAmount != tt.wantAmount {
				t.Errorf("expected amount %d, got %d", tt.wantAmount, b.TotalAmount)
			}
			if b.TotalPeople != tt.wantPeople {
				t.Errorf("expected %d people, got %d", tt.wantPeople, b.TotalPeople)
			}
			if b.Shape() != domain.ShapeFlat {
				t.Errorf("expected flat shape")
			}
		})
	}
}

func TestService_CreateRichBooking(t *testing.T) {
	b, err := newTestService(newFakeStore()).Create(context.Background(), CreateRequest{
		BuyerName: "Vikram",
		Passes:    []PassRequest{{PassTypeID: "teens"}, {PassTypeID: "family", PeopleCount: 3}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if b.Shape() != domain.ShapePasses || len(b.Passes) != 2 {
		t.Fatalf("expected rich shape with 2 passes, got %+v", b.Passes)
	}
	if b.Passes[0].PeopleCount != 1 || b.Passes[1].PeopleCount != 3 {
		t.Errorf("unexpected pass capacities %+v", b.Passes)
	}
	if b.TotalAmount != 2500 {
		t.Errorf("expected summed price 2500, got %d", b.TotalAmount)
	}
	if capacity, _ := domain.Usage(*b); capacity != 4 {
		t.Errorf("expected capacity 4, got %d", capacity)
	}
}

func TestService_CreatePaymentDefaults(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	pending, err := svc.Create(ctx, CreateRequest{PassTypeID: "teens", BuyerName: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if pending.PaymentStatus != domain.PaymentPending || pending.PaymentMode != domain.PaymentCash {
		t.Errorf("expected Pending/Cash, got %s/%s", pending.PaymentStatus, pending.PaymentMode)
	}

	paid, err := svc.Create(ctx, CreateRequest{PassTypeID: "teens", BuyerName: "A", MarkAsPaid: true, PaymentMode: domain.PaymentUPI})
	if err != nil {
		t.Fatal(err)
	}
	if paid.PaymentStatus != domain.PaymentPaid || paid.PaymentMode != domain.PaymentUPI {
		t.Errorf("expected Paid/UPI, got %s/%s", paid.PaymentStatus, paid.PaymentMode)
	}

	explicit, err := svc.Create(ctx, CreateRequest{PassTypeID: "teens", BuyerName: "A", MarkAsPaid: true, PaymentStatus: domain.PaymentRefunded})
	if err != nil {
		t.Fatal(err)
	}
	if explicit.PaymentStatus != domain.PaymentRefunded {
		t.Errorf("expected explicit status to win, got %s", explicit.PaymentStatus)
	}
}

func TestService_CreateRejectsBadInput(t *testing.T) {
	svc := newTestService(newFakeStore())
	ctx := context.Background()

	for _, req := range []CreateRequest{
		{PassTypeID: "teens"},
		{BuyerName: "A"},
		{PassTypeID: "vip", BuyerName: "A"},
		{BuyerName: "A", Passes: []PassRequest{{PassTypeID: "vip"}}},
	} {
		if _, err := svc.Create(ctx, req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected invalid input for %+v, got %v", req, err)
		}
	}
}

func TestService_CreateRetriesCodeCollision(t *testing.T) {
	store := newFakeStore()
	store.codes["PS-TAKEN000"] = true
	svc := newTestService(store)
	codes := []string{"PS-TAKEN000", "PS-FRESH001"}
	svc.newCode = func() string {
		c := codes[0]
		codes = codes[1:]
		return c
	}

	b, err := svc.Create(context.Background(), CreateRequest{PassTypeID: "teens", BuyerName: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if b.Code != "PS-FRESH001" {
		t.Errorf("expected second code, got %s", b.Code)
	}

	got, err := svc.Get(context.Background(), b.ID)
	if err != nil || got.Code != b.Code {
		t.Errorf("expected stored booking, got %v %v", got, err)
	}
}

func TestNewCodeFormat(t *testing.T) {
	code := newCode()
	if len(code) != 11 || code[:3] != "PS-" {
		t.Errorf("unexpected code %q", code)
	}
}
