package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-pass-gate/internal/domain"
	"github.com/robertarktes/event-pass-gate/internal/gate"
)

const maxEntryAttempts = 3

// RecordEntry locks the booking, lets apply decide the admission and
// persists the new counters, the entry log and its outbox event atomically.
// Serialization failures and lost updates are retried a bounded number of
// times.
func (r *Repository) RecordEntry(ctx context.Context, bookingID string, apply gate.ApplyFunc) error {
	id, err := uuid.Parse(bookingID)
	if err != nil {
		return domain.ErrBookingNotFound
	}

	for attempt := 1; ; attempt++ {
		err = r.WithTx(ctx, func(tx pgx.Tx) error {
			return r.recordEntry(ctx, tx, id, apply)
		})
		retryable := errors.Is(err, domain.ErrSerializationFailure) || errors.Is(err, domain.ErrConflict)
		if !retryable {
			return err
		}
		if attempt == maxEntryAttempts {
			return errors.Mark(errors.Wrapf(err, "record entry after %d attempts", attempt), domain.ErrSerializationFailure)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func (r *Repository) recordEntry(ctx context.Context, tx pgx.Tx, id uuid.UUID, apply gate.ApplyFunc) error {
	b, err := r.getBooking(ctx, tx, id.String(), true)
	if err != nil {
		return err
	}
	prev := b.PeopleEntered

	log, err := apply(&b)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE bookings SET people_entered = $2, checked_in = $3, checked_in_at = $4, scanned_by = $5
		WHERE id = $1 AND people_entered = $6
	`, b.ID, b.PeopleEntered, b.CheckedIn, b.CheckedInAt, b.ScannedBy, prev)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrConflict, "booking %s changed concurrently", b.ID)
	}

	for i, p := range b.Passes {
		_, err := tx.Exec(ctx, `
			UPDATE booking_passes SET people_entered = $3 WHERE booking_id = $1 AND position = $2
		`, b.ID, i, p.PeopleEntered)
		if err != nil {
			return err
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO entry_logs (id, booking_id, scanned_by, people_entered, status, admin_override, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, log.ID, log.BookingID, log.ScannedBy, log.PeopleEntered, string(log.Status), log.AdminOverride, log.ScannedAt)
	if err != nil {
		return err
	}

	record, err := newOutboxRecord("booking", id, domain.EventEntryAdmitted, domain.EntryAdmittedEvent{
		EntryLogID:    log.ID,
		BookingID:     b.ID,
		BookingCode:   b.Code,
		BuyerPhone:    b.BuyerPhone,
		ScannedBy:     log.ScannedBy,
		PeopleEntered: log.PeopleEntered,
		TotalEntered:  b.PeopleEntered,
		Status:        log.Status,
		AdminOverride: log.AdminOverride,
		ScannedAt:     log.ScannedAt,
	})
	if err != nil {
		return err
	}
	return r.InsertOutbox(ctx, tx, record)
}

// ListEntryLogs returns the most recent entry logs, newest first, joined
// with the buyer details of their booking.
func (r *Repository) ListEntryLogs(ctx context.Context, limit int) ([]domain.EntryLogView, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.booking_id, l.scanned_by, l.people_entered, l.status, l.admin_override, l.scanned_at,
			COALESCE(b.booking_code, ''), COALESCE(b.buyer_name, ''), COALESCE(b.buyer_phone, '')
		FROM entry_logs AS l LEFT JOIN bookings AS b ON b.id = l.booking_id
		ORDER BY l.scanned_at DESC, l.id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.EntryLogView
	for rows.Next() {
		var (
			v      domain.EntryLogView
			status string
		)
		err := rows.Scan(&v.ID, &v.BookingID, &v.ScannedBy, &v.PeopleEntered, &status, &v.AdminOverride, &v.ScannedAt,
			&v.BookingCode, &v.BuyerName, &v.BuyerPhone)
		if err != nil {
			return nil, err
		}
		v.Status = domain.EntryStatus(status)
		logs = append(logs, v)
	}
	return logs, rows.Err()
}
