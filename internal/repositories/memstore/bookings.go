package memstore

import (
	"context"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

func (v view) ClaimSeat(_ context.Context, hold models.SeatHold) (int64, bool, error) {
	defer v.lock()()
	for _, b := range v.s.t.bookings {
		if b.ScheduleID == hold.ScheduleID && b.SeatNumber == hold.SeatNumber && b.Status != models.BookingCancelled {
			return 0, false, nil
		}
	}
	now := time.Now().UTC()
	reserved := hold.ReservedAt.UTC()
	b := models.Booking{
		ID:         v.s.t.id(),
		Reference:  hold.Reference,
		ScheduleID: hold.ScheduleID,
		SeatNumber: hold.SeatNumber,
		OperatorID: hold.OperatorID,
		Status:     models.BookingTempReserved,
		ReservedAt: &reserved,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	v.s.t.bookings[b.ID] = b
	return b.ID, true, nil
}

func (v view) MarkPendingPayment(_ context.Context, id int64, p models.PendingDetails) (bool, error) {
	defer v.lock()()
	b, ok := v.s.t.bookings[id]
	if !ok || b.Status != models.BookingTempReserved {
		return false, nil
	}
	reserved := p.ReservedAt.UTC()
	b.Status = models.BookingPendingPayment
	b.PassengerID = p.PassengerID
	b.Phone = p.Phone
	b.Pickup, b.Dropoff = p.Pickup, p.Dropoff
	b.PickupOrder, b.DropoffOrder = p.PickupOrder, p.DropoffOrder
	b.SegmentFare = p.SegmentFare
	b.PlatformFee = p.PlatformFee
	b.OperatorAmount = p.OperatorAmount
	b.TotalAmount = p.TotalAmount
	b.ReservedAt = &reserved
	b.UpdatedAt = time.Now().UTC()
	v.s.t.bookings[id] = b
	return true, nil
}

func (v view) find(match func(models.Booking) bool) (models.Booking, error) {
	defer v.lock()()
	for _, b := range v.s.t.bookings {
		if match(b) {
			return b, nil
		}
	}
	return models.Booking{}, domain.NotFoundError{Resource: "booking"}
}

func (v view) GetBooking(_ context.Context, id int64) (models.Booking, error) {
	return v.find(func(b models.Booking) bool { return b.ID == id })
}

func (v view) GetBookingByReference(_ context.Context, reference string) (models.Booking, error) {
	return v.find(func(b models.Booking) bool { return reference != "" && b.Reference == reference })
}

func (v view) GetBookingByCheckout(_ context.Context, checkoutRef string) (models.Booking, error) {
	return v.find(func(b models.Booking) bool { return checkoutRef != "" && b.CheckoutReference == checkoutRef })
}

func (v view) SetCheckoutReference(_ context.Context, id int64, checkoutRef string) error {
	defer v.lock()()
	b, ok := v.s.t.bookings[id]
	if !ok {
		return nil
	}
	b.CheckoutReference = checkoutRef
	b.UpdatedAt = time.Now().UTC()
	v.s.t.bookings[id] = b
	return nil
}

func (v view) ConfirmBooking(_ context.Context, id int64, c models.Confirmation) (bool, error) {
	defer v.lock()()
	b, ok := v.s.t.bookings[id]
	if !ok || b.Status != models.BookingPendingPayment {
		return false, nil
	}
	at := c.ConfirmedAt.UTC()
	b.Status = models.BookingConfirmed
	b.Receipt = c.Receipt
	b.PayerPhone = c.PayerPhone
	b.ConfirmedAt = &at
	b.ReservedAt = nil
	b.UpdatedAt = time.Now().UTC()
	v.s.t.bookings[id] = b
	return true, nil
}

func (v view) ListConfirmedSpans(_ context.Context, scheduleID int64) ([]models.SegmentSpan, error) {
	defer v.lock()()
	var out []models.SegmentSpan
	for _, b := range v.s.t.bookings {
		if b.ScheduleID == scheduleID && b.Status == models.BookingConfirmed {
			out = append(out, models.SegmentSpan{PickupOrder: b.PickupOrder, DropoffOrder: b.DropoffOrder})
		}
	}
	return out, nil
}

func (v view) CancelScheduleBookings(_ context.Context, scheduleID int64) (int64, error) {
	defer v.lock()()
	var n int64
	now := time.Now().UTC()
	for id, b := range v.s.t.bookings {
		if b.ScheduleID != scheduleID || b.Status == models.BookingCancelled {
			continue
		}
		b.Status = models.BookingCancelled
		b.ReservedAt = nil
		b.UpdatedAt = now
		v.s.t.bookings[id] = b
		n++
	}
	return n, nil
}

func (v view) DeleteBooking(_ context.Context, id int64, statuses ...models.BookingStatus) (bool, error) {
	defer v.lock()()
	b, ok := v.s.t.bookings[id]
	if !ok {
		return false, nil
	}
	if len(statuses) > 0 {
		match := false
		for _, s := range statuses {
			if b.Status == s {
				match = true
				break
			}
		}
		if !match {
			return false, nil
		}
	}
	delete(v.s.t.bookings, id)
	return true, nil
}

func (v view) DeleteStaleHolds(_ context.Context, status models.BookingStatus, reservedBefore time.Time) (int64, error) {
	defer v.lock()()
	var n int64
	for id, b := range v.s.t.bookings {
		if b.Status == status && b.ReservedAt != nil && b.ReservedAt.Before(reservedBefore) {
			delete(v.s.t.bookings, id)
			n++
		}
	}
	return n, nil
}
