package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-pass-gate/internal/domain"
)

const bookingColumns = `id, booking_code, pass_type_id, pass_type_name, buyer_name, buyer_phone,
	total_people, people_entered, total_amount, payment_status, payment_mode, notes,
	is_owner_pass, checked_in, checked_in_at, scanned_by, created_at`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var (
		b            domain.Booking
		status, mode string
	)
	err := row.Scan(&b.ID, &b.Code, &b.PassTypeID, &b.PassTypeName, &b.BuyerName, &b.BuyerPhone,
		&b.TotalPeople, &b.PeopleEntered, &b.TotalAmount, &status, &mode, &b.Notes,
		&b.IsOwnerPass, &b.CheckedIn, &b.CheckedInAt, &b.ScannedBy, &b.CreatedAt)
	if err != nil {
		return domain.Booking{}, err
	}
	b.PaymentStatus = domain.PaymentStatus(status)
	b.PaymentMode = domain.PaymentMode(mode)
	return b, nil
}

func (r *Repository) CreateBooking(ctx context.Context, b domain.Booking) error {
	id, err := uuid.Parse(b.ID)
	if err != nil {
		return errors.Wrapf(domain.ErrInvalidInput, "booking id %q", b.ID)
	}
	record, err := newOutboxRecord("booking", id, domain.EventBookingCreated, bookingCreatedEvent(b))
	if err != nil {
		return err
	}

	return r.WithTx(ctx, func(tx pgx.Tx) error {
		if err := insertBooking(ctx, tx, b); err != nil {
			return err
		}
		return r.InsertOutbox(ctx, tx, record)
	})
}

// bookingCreatedEvent reports the booking's capacity across every sub-pass.
func bookingCreatedEvent(b domain.Booking) domain.BookingCreatedEvent {
	capacity, _ := domain.Usage(b)
	return domain.BookingCreatedEvent{
		BookingID:     b.ID,
		BookingCode:   b.Code,
		BuyerName:     b.BuyerName,
		BuyerPhone:    b.BuyerPhone,
		PassType:      b.PassTypeLabel(),
		TotalPeople:   capacity,
		TotalAmount:   b.TotalAmount,
		PaymentStatus: b.PaymentStatus,
		CreatedAt:     b.CreatedAt,
	}
}

func insertBooking(ctx context.Context, tx pgx.Tx, b domain.Booking) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO bookings (id, booking_code, pass_type_id, pass_type_name, buyer_name, buyer_phone,
			total_people, people_entered, total_amount, payment_status, payment_mode, notes,
			is_owner_pass, checked_in, checked_in_at, scanned_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, b.ID, b.Code, b.PassTypeID, b.PassTypeName, b.BuyerName, b.BuyerPhone,
		b.TotalPeople, b.PeopleEntered, b.TotalAmount, string(b.PaymentStatus), string(b.PaymentMode), b.Notes,
		b.IsOwnerPass, b.CheckedIn, b.CheckedInAt, b.ScannedBy, b.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(domain.ErrConflict, "booking code %s already exists", b.Code)
		}
		return err
	}

	for i, p := range b.Passes {
		_, err := tx.Exec(ctx, `
			INSERT INTO booking_passes (booking_id, position, pass_type_id, pass_type_name, people_count, people_entered)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, b.ID, i, p.PassTypeID, p.PassTypeName, p.PeopleCount, p.PeopleEntered)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) GetBooking(ctx context.Context, id string) (*domain.Booking, error) {
	b, err := r.getBooking(ctx, r.pool, id, false)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// getBooking loads one booking with its sub-passes. With forUpdate set the
// rows stay locked until q's transaction ends.
func (r *Repository) getBooking(ctx context.Context, q querier, id string, forUpdate bool) (domain.Booking, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	lock := ""
	if forUpdate {
		lock = " FOR UPDATE"
	}

	b, err := scanBooking(q.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`+lock, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, domain.ErrBookingNotFound
	}
	if err != nil {
		return domain.Booking{}, err
	}

	rows, err := q.Query(ctx, `
		SELECT pass_type_id, pass_type_name, people_count, people_entered
		FROM booking_passes WHERE booking_id = $1 ORDER BY position`+lock, id)
	if err != nil {
		return domain.Booking{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.SubPass
		if err := rows.Scan(&p.PassTypeID, &p.PassTypeName, &p.PeopleCount, &p.PeopleEntered); err != nil {
			return domain.Booking{}, err
		}
		b.Passes = append(b.Passes, p)
	}
	return b, rows.Err()
}

// FindBookingByCode matches the printed booking code first and falls back
// to the storage id.
func (r *Repository) FindBookingByCode(ctx context.Context, code string) (*domain.Booking, error) {
	bookings, err := r.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE booking_code = $1`, code)
	if err != nil {
		return nil, err
	}
	if len(bookings) > 0 {
		return &bookings[0], nil
	}
	return r.GetBooking(ctx, code)
}

func (r *Repository) FindBookingsByPhone(ctx context.Context, phone string) ([]domain.Booking, error) {
	return r.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings WHERE buyer_phone = $1 ORDER BY created_at, id`, phone)
}

func (r *Repository) SearchBookingsByName(ctx context.Context, fragment string) ([]domain.Booking, error) {
	return r.queryBookings(ctx, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE strpos(lower(buyer_name), lower($1)) > 0 ORDER BY created_at, id`, fragment)
}

func (r *Repository) ListBookings(ctx context.Context) ([]domain.Booking, error) {
	return r.queryBookings(ctx, `SELECT `+bookingColumns+` FROM bookings ORDER BY created_at, id`)
}

func (r *Repository) queryBookings(ctx context.Context, sql string, args ...any) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.attachPasses(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// attachPasses loads the sub-passes of every booking in one round trip.
func (r *Repository) attachPasses(ctx context.Context, bookings []domain.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]string, len(bookings))
	index := make(map[string]int, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
		index[b.ID] = i
	}

	rows, err := r.pool.Query(ctx, `
		SELECT booking_id, pass_type_id, pass_type_name, people_count, people_entered
		FROM booking_passes WHERE booking_id = ANY($1::UUID[]) ORDER BY booking_id, position
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			bookingID string
			p         domain.SubPass
		)
		if err := rows.Scan(&bookingID, &p.PassTypeID, &p.PassTypeName, &p.PeopleCount, &p.PeopleEntered); err != nil {
			return err
		}
		if i, ok := index[bookingID]; ok {
			bookings[i].Passes = append(bookings[i].Passes, p)
		}
	}
	return rows.Err()
}
