// Package booking creates bookings priced against the pass-type catalog.
package booking

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-pass-gate/internal/domain"
)

const codeAttempts = 3

type PassTypeReader interface {
	GetPassType(ctx context.Context, id string) (*domain.PassType, error)
}

type Store interface {
	CreateBooking(ctx context.Context, b domain.Booking) error
	GetBooking(ctx context.Context, id string) (*domain.Booking, error)
}

type PassRequest struct {
	PassTypeID  string
	PeopleCount int
}

type CreateRequest struct {
	PassTypeID    string
	BuyerName     string
	BuyerPhone    string
	TotalPeople   int
	TotalPasses   int
	CustomPrice   int64
	IsOwnerPass   bool
	MarkAsPaid    bool
	PaymentStatus domain.PaymentStatus
	PaymentMode   domain.PaymentMode
	Notes         string
	Passes        []PassRequest
}

type Service struct {
	store   Store
	catalog PassTypeReader
	now     func() time.Time
	newID   func() string
	newCode func() string
}

func NewService(store Store, catalog PassTypeReader) *Service {
	return &Service{
		store:   store,
		catalog: catalog,
		now:     time.Now,
		newID:   uuid.NewString,
		newCode: newCode,
	}
}

// newCode returns a printable booking code such as PS-3F9A01BC.
func newCode() string {
	return "PS-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

func (s *Service) Create(ctx context.Context, req CreateRequest) (*domain.Booking, error) {
	if strings.TrimSpace(req.BuyerName) == "" {
		return nil, errors.Wrap(domain.ErrInvalidInput, "buyer_name is required")
	}
	if req.PassTypeID == "" && len(req.Passes) == 0 {
		return nil, errors.Wrap(domain.ErrInvalidInput, "pass_type_id or passes is required")
	}

	b := domain.Booking{
		ID:            s.newID(),
		BuyerName:     strings.TrimSpace(req.BuyerName),
		BuyerPhone:    strings.TrimSpace(req.BuyerPhone),
		PaymentStatus: paymentStatus(req),
		PaymentMode:   req.PaymentMode,
		Notes:         req.Notes,
		IsOwnerPass:   req.IsOwnerPass,
		CreatedAt:     s.now().UTC(),
	}
	if b.PaymentMode == "" {
		b.PaymentMode = domain.PaymentCash
	}

	var listPrice int64
	if len(req.Passes) > 0 {
		for _, pr := range req.Passes {
			pt, err := s.passType(ctx, pr.PassTypeID)
			if err != nil {
				return nil, err
			}
			count := pr.PeopleCount
			if count <= 0 {
				count = pt.MaxPeople
			}
			b.Passes = append(b.Passes, domain.SubPass{
				PassTypeID:   pt.ID,
				PassTypeName: pt.Name,
				PeopleCount:  count,
			})
			listPrice += pt.Price
		}
	} else {
		pt, err := s.passType(ctx, req.PassTypeID)
		if err != nil {
			return nil, err
		}
		b.PassTypeID = pt.ID
		b.PassTypeName = pt.Name
		b.TotalPeople = req.TotalPeople
		if b.TotalPeople <= 0 {
			b.TotalPeople = pt.MaxPeople
		}
		passes := req.TotalPasses
		if passes <= 0 {
			passes = 1
		}
		listPrice = pt.Price * int64(passes)
	}
	b.TotalAmount = amount(req, listPrice)

	var err error
	for attempt := 0; attempt < codeAttempts; attempt++ {
		b.Code = s.newCode()
		err = s.store.CreateBooking(ctx, b)
		if !errors.Is(err, domain.ErrConflict) {
			break
		}
	}
	if err != nil {
		return nil, errors.Wrap(err, "create booking")
	}
	return &b, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Booking, error) {
	return s.store.GetBooking(ctx, id)
}

func (s *Service) passType(ctx context.Context, id string) (*domain.PassType, error) {
	pt, err := s.catalog.GetPassType(ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, errors.Wrapf(domain.ErrInvalidInput, "invalid pass type %q", id)
	}
	return pt, err
}

// amount prices a booking: owner passes are free, a positive custom price
// replaces the list price.
func amount(req CreateRequest, listPrice int64) int64 {
	switch {
	case req.IsOwnerPass:
		return 0
	case req.CustomPrice > 0:
		return req.CustomPrice
	default:
		return listPrice
	}
}

func paymentStatus(req CreateRequest) domain.PaymentStatus {
	switch {
	case req.PaymentStatus != "":
		return req.PaymentStatus
	case req.MarkAsPaid:
		return domain.PaymentPaid
	default:
		return domain.PaymentPending
	}
}
