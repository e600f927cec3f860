package gate

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-pass-gate/internal/domain"
	"github.com/robertarktes/event-pass-gate/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

type AdmitRequest struct {
	BookingID     string
	Count         int
	Operator      string
	AdminOverride bool
	AdminPIN      string
}

// Admission is the capacity snapshot of a booking right after an entry.
type Admission struct {
	BookingID     string
	BookingCode   string
	BuyerName     string
	PassType      string
	Allowed       int
	Entered       int
	Remaining     int
	Admitted      int
	Status        domain.EntryStatus
	FullyUtilized bool
	LogID         string
}

type Accumulator struct {
	entries  EntryRecorder
	adminPIN []byte
	now      func() time.Time
	newID    func() string
}

// NewAccumulator returns an Accumulator that accepts overrides carrying
// adminPIN. An empty adminPIN refuses every override.
func NewAccumulator(entries EntryRecorder, adminPIN string) *Accumulator {
	return &Accumulator{
		entries:  entries,
		adminPIN: []byte(adminPIN),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Admit lets req.Count more people in on a booking. Without a valid
// override the booking's running total never passes its capacity. Refused
// attempts change nothing and write no log.
func (a *Accumulator) Admit(ctx context.Context, req AdmitRequest) (*Admission, error) {
	ctx, span := otel.Tracer("gate").Start(ctx, "gate.Admit")
	defer span.End()
	span.SetAttributes(
		attribute.String("gate.booking_id", req.BookingID),
		attribute.Int("gate.count", req.Count),
		attribute.Bool("gate.override", req.AdminOverride),
	)

	adm, err := a.admit(ctx, req)
	if err != nil {
		span.RecordError(err)
		observability.CheckinRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}

	observability.CheckinsTotal.WithLabelValues(string(adm.Status)).Inc()
	observability.PeopleAdmitted.Add(float64(adm.Admitted))
	if req.AdminOverride {
		observability.AdminOverrides.Inc()
	}
	return adm, nil
}

func (a *Accumulator) admit(ctx context.Context, req AdmitRequest) (*Admission, error) {
	switch {
	case req.BookingID == "":
		return nil, errors.Wrap(domain.ErrInvalidInput, "booking_id is required")
	case req.Count < 1:
		return nil, errors.Wrapf(domain.ErrInvalidInput, "people_entered must be at least 1, got %d", req.Count)
	case req.Operator == "":
		return nil, errors.Wrap(domain.ErrInvalidInput, "scanned_by is required")
	}

	if req.AdminOverride && !a.pinMatches(req.AdminPIN) {
		return nil, domain.ErrInvalidOverride
	}

	var adm Admission
	err := a.entries.RecordEntry(ctx, req.BookingID, func(b *domain.Booking) (domain.EntryLog, error) {
		capacity, current := domain.Usage(*b)

		if !req.AdminOverride {
			if current >= capacity {
				return domain.EntryLog{}, &domain.CapacityError{
					Reason:    domain.ErrFullyUtilized,
					Allowed:   capacity,
					Entered:   current,
					Remaining: 0,
					Requested: req.Count,
				}
			}
			if current+req.Count > capacity {
				return domain.EntryLog{}, &domain.CapacityError{
					Reason:    domain.ErrCapacityExceeded,
					Allowed:   capacity,
					Entered:   current,
					Remaining: capacity - current,
					Requested: req.Count,
				}
			}
		}

		now := a.now()
		newTotal := b.RecordEntry(req.Count, req.Operator, now)
		status := domain.ClassifyEntry(newTotal, capacity)

		log := domain.EntryLog{
			ID:            a.newID(),
			BookingID:     b.ID,
			ScannedBy:     req.Operator,
			PeopleEntered: req.Count,
			Status:        status,
			AdminOverride: req.AdminOverride,
			ScannedAt:     now,
		}
		adm = Admission{
			BookingID:     b.ID,
			BookingCode:   b.Code,
			BuyerName:     b.BuyerName,
			PassType:      b.PassTypeLabel(),
			Allowed:       capacity,
			Entered:       newTotal,
			Remaining:     max(capacity-newTotal, 0),
			Admitted:      req.Count,
			Status:        status,
			FullyUtilized: newTotal >= capacity,
			LogID:         log.ID,
		}
		return log, nil
	})
	if err != nil {
		return nil, err
	}
	return &adm, nil
}

func (a *Accumulator) pinMatches(pin string) bool {
	if len(a.adminPIN) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare(a.adminPIN, []byte(pin)) == 1
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidOverride):
		return "invalid_pin"
	case errors.Is(err, domain.ErrBookingNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrFullyUtilized):
		return "fully_utilized"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, domain.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, domain.ErrSerializationFailure):
		return "conflict"
	default:
		return "error"
	}
}
