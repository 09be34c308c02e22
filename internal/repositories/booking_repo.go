package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	intdb "matsched/internal/db"
	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

type BookingRepo struct {
	DB        intdb.DBTX
	ForUpdate bool
}

// ClaimSeat relies on uniq_bookings_live_seat: a duplicate key means another
// caller already holds the seat.
func (r BookingRepo) ClaimSeat(ctx context.Context, hold models.SeatHold) (int64, bool, error) {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO bookings (reference, schedule_id, seat_number, operator_id, status, reserved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		hold.Reference, hold.ScheduleID, hold.SeatNumber, hold.OperatorID, models.BookingTempReserved,
		hold.ReservedAt.UTC(), now, now)
	if intdb.IsDuplicateKey(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("claim seat %d: %w", hold.SeatNumber, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (r BookingRepo) MarkPendingPayment(ctx context.Context, id int64, p models.PendingDetails) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE bookings SET status = ?, passenger_id = ?, phone = ?, pickup = ?, dropoff = ?, pickup_order = ?, dropoff_order = ?,
			segment_fare = ?, platform_fee = ?, operator_amount = ?, total_amount = ?, reserved_at = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.BookingPendingPayment, intdb.NullInt64(p.PassengerID), p.Phone, p.Pickup, p.Dropoff, p.PickupOrder, p.DropoffOrder,
		p.SegmentFare, p.PlatformFee, p.OperatorAmount, p.TotalAmount, p.ReservedAt.UTC(), time.Now().UTC(),
		id, models.BookingTempReserved)
	if err != nil {
		return false, err
	}
	return intdb.RowsAffected(res) == 1, nil
}

const bookingColumns = `id, reference, schedule_id, seat_number, operator_id, passenger_id, phone, status, pickup, dropoff,
	pickup_order, dropoff_order, segment_fare, platform_fee, operator_amount, total_amount, reserved_at,
	checkout_reference, receipt, payer_phone, confirmed_at, created_at, updated_at`

func scanBooking(row interface{ Scan(...any) error }) (models.Booking, error) {
	var b models.Booking
	var passenger sql.NullInt64
	var reserved, confirmed sql.NullTime
	var checkout, receipt sql.NullString
	err := row.Scan(&b.ID, &b.Reference, &b.ScheduleID, &b.SeatNumber, &b.OperatorID, &passenger, &b.Phone, &b.Status,
		&b.Pickup, &b.Dropoff, &b.PickupOrder, &b.DropoffOrder, &b.SegmentFare, &b.PlatformFee, &b.OperatorAmount,
		&b.TotalAmount, &reserved, &checkout, &receipt, &b.PayerPhone, &confirmed, &b.CreatedAt, &b.UpdatedAt)
	b.PassengerID = intdb.Int64Ptr(passenger)
	b.CheckoutReference, b.Receipt = checkout.String, receipt.String
	if reserved.Valid {
		t := reserved.Time
		b.ReservedAt = &t
	}
	if confirmed.Valid {
		t := confirmed.Time
		b.ConfirmedAt = &t
	}
	return b, err
}

func (r BookingRepo) getBy(ctx context.Context, where string, arg any) (models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE ` + where + ` LIMIT 1`
	if r.ForUpdate {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(r.DB.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Booking{}, domain.NotFoundError{Resource: "booking", Err: err}
	}
	return b, err
}

func (r BookingRepo) GetBooking(ctx context.Context, id int64) (models.Booking, error) {
	return r.getBy(ctx, `id = ?`, id)
}

func (r BookingRepo) GetBookingByReference(ctx context.Context, reference string) (models.Booking, error) {
	return r.getBy(ctx, `reference = ?`, reference)
}

func (r BookingRepo) GetBookingByCheckout(ctx context.Context, checkoutRef string) (models.Booking, error) {
	if checkoutRef == "" {
		return models.Booking{}, domain.NotFoundError{Resource: "booking"}
	}
	return r.getBy(ctx, `checkout_reference = ?`, checkoutRef)
}

func (r BookingRepo) SetCheckoutReference(ctx context.Context, id int64, checkoutRef string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE bookings SET checkout_reference = ?, updated_at = ? WHERE id = ?`,
		intdb.NullIfEmpty(checkoutRef), time.Now().UTC(), id)
	if intdb.IsDuplicateKey(err) {
		return domain.ConflictError{Resource: "booking", Msg: "checkout reference already used", Err: err}
	}
	return err
}

func (r BookingRepo) ConfirmBooking(ctx context.Context, id int64, c models.Confirmation) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE bookings SET status = ?, receipt = ?, payer_phone = ?, confirmed_at = ?, reserved_at = NULL, updated_at = ?
		WHERE id = ? AND status = ?`,
		models.BookingConfirmed, intdb.NullIfEmpty(c.Receipt), c.PayerPhone, c.ConfirmedAt.UTC(), time.Now().UTC(),
		id, models.BookingPendingPayment)
	if err != nil {
		return false, err
	}
	return intdb.RowsAffected(res) == 1, nil
}

func (r BookingRepo) CancelScheduleBookings(ctx context.Context, scheduleID int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE bookings SET status = ?, reserved_at = NULL, updated_at = ?
		WHERE schedule_id = ? AND status IN (?, ?, ?)`,
		models.BookingCancelled, time.Now().UTC(), scheduleID,
		models.BookingTempReserved, models.BookingPendingPayment, models.BookingConfirmed)
	if err != nil {
		return 0, fmt.Errorf("cancel bookings of schedule %d: %w", scheduleID, err)
	}
	return intdb.RowsAffected(res), nil
}

func (r BookingRepo) ListConfirmedSpans(ctx context.Context, scheduleID int64) ([]models.SegmentSpan, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT pickup_order, dropoff_order FROM bookings WHERE schedule_id = ? AND status = ?`,
		scheduleID, models.BookingConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.SegmentSpan
	for rows.Next() {
		var sp models.SegmentSpan
		if err := rows.Scan(&sp.PickupOrder, &sp.DropoffOrder); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

func (r BookingRepo) DeleteBooking(ctx context.Context, id int64, statuses ...models.BookingStatus) (bool, error) {
	query := `DELETE FROM bookings WHERE id = ?`
	args := []any{id}
	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return intdb.RowsAffected(res) == 1, nil
}

func (r BookingRepo) DeleteStaleHolds(ctx context.Context, status models.BookingStatus, reservedBefore time.Time) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `
		DELETE FROM bookings WHERE status = ? AND reserved_at IS NOT NULL AND reserved_at < ?`,
		status, reservedBefore.UTC())
	if err != nil {
		return 0, err
	}
	return intdb.RowsAffected(res), nil
}
