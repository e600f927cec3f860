package crdb

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	booking_code TEXT NOT NULL UNIQUE,
	pass_type_id TEXT NOT NULL DEFAULT '',
	pass_type_name TEXT NOT NULL DEFAULT '',
	buyer_name TEXT NOT NULL,
	buyer_phone TEXT NOT NULL DEFAULT '',
	total_people INT8 NOT NULL DEFAULT 0,
	people_entered INT8 NOT NULL DEFAULT 0,
	total_amount INT8 NOT NULL DEFAULT 0,
	payment_status TEXT NOT NULL DEFAULT 'Pending' CHECK (payment_status IN ('Pending', 'Paid', 'Refunded')),
	payment_mode TEXT NOT NULL DEFAULT 'Cash' CHECK (payment_mode IN ('Cash', 'UPI', 'Card', 'Online')),
	notes TEXT NOT NULL DEFAULT '',
	is_owner_pass BOOL NOT NULL DEFAULT false,
	checked_in BOOL NOT NULL DEFAULT false,
	checked_in_at TIMESTAMPTZ,
	scanned_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	INDEX bookings_buyer_phone_idx (buyer_phone),
	INDEX bookings_created_at_idx (created_at)
);
CREATE TABLE IF NOT EXISTS booking_passes (
	booking_id UUID NOT NULL REFERENCES bookings (id) ON DELETE CASCADE,
	position INT8 NOT NULL,
	pass_type_id TEXT NOT NULL DEFAULT '',
	pass_type_name TEXT NOT NULL DEFAULT '',
	people_count INT8 NOT NULL,
	people_entered INT8 NOT NULL DEFAULT 0,
	PRIMARY KEY (booking_id, position)
);
CREATE TABLE IF NOT EXISTS entry_logs (
	id UUID PRIMARY KEY,
	booking_id UUID NOT NULL,
	scanned_by TEXT NOT NULL,
	people_entered INT8 NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('Checked-in', 'Partially Checked-in', 'Denied')),
	admin_override BOOL NOT NULL DEFAULT false,
	scanned_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	INDEX entry_logs_booking_idx (booking_id),
	INDEX entry_logs_scanned_at_idx (scanned_at DESC)
);
CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL DEFAULT 'NEW' CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL,
	INDEX outbox_status_created_idx (status, created_at)
);
`

// EnsureSchema creates the tables the repository needs when missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}
