package services

import (
	"context"
	"fmt"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/payments"
	"matsched/internal/realtime"
	"matsched/internal/repositories"
	"matsched/internal/utils"
)

type ConfirmationOutcome string

const (
	OutcomeConfirmed ConfirmationOutcome = "confirmed"
	// OutcomeIgnored covers duplicates and notifications for bookings that
	// expired or were already settled.
	OutcomeIgnored   ConfirmationOutcome = "ignored"
	OutcomeDiscarded ConfirmationOutcome = "discarded"
)

type ConfirmationResult struct {
	Outcome      ConfirmationOutcome `json:"outcome"`
	BookingID    int64               `json:"bookingId"`
	ScheduleID   int64               `json:"scheduleId,omitempty"`
	SeatsLeft    int                 `json:"seatsLeft"`
	ScheduleFull bool                `json:"scheduleFull"`
}

// PaymentService applies asynchronous payment results to bookings.
type PaymentService struct {
	Store    repositories.Store
	Notifier Notifier
	Recycler VehicleRecycler
	Now      func() time.Time
}

// HandleCallback resolves the booking a gateway callback belongs to and
// applies it. Unknown checkout references and successes missing the paid
// amount or receipt are ignored.
func (s PaymentService) HandleCallback(ctx context.Context, cb payments.Callback) (ConfirmationResult, error) {
	if err := cb.Validate(); err != nil {
		utils.LogEvent(utils.RequestIDFrom(ctx), "payment", "callback_incomplete", err.Error())
		return ConfirmationResult{Outcome: OutcomeIgnored}, nil
	}
	b, err := s.Store.Bookings().GetBookingByCheckout(ctx, cb.CheckoutRequestID)
	if err != nil {
		if domain.IsNotFound(err) {
			utils.LogEvent(utils.RequestIDFrom(ctx), "payment", "callback_unmatched", "checkout="+cb.CheckoutRequestID)
			return ConfirmationResult{Outcome: OutcomeIgnored}, nil
		}
		return ConfirmationResult{}, domain.InternalError{Msg: "resolve callback", Err: err}
	}
	return s.HandleNotification(ctx, cb.Notification(b.ID))
}

// HandleNotification confirms or discards a pending booking. It is safe to
// deliver the same notification any number of times: only the call that
// flips pending_payment to confirmed takes a seat off the schedule. A payment
// for a schedule that stopped taking bookings is handled like a failed one.
func (s PaymentService) HandleNotification(ctx context.Context, n models.PaymentNotification) (ConfirmationResult, error) {
	reqID := utils.RequestIDFrom(ctx)
	res := ConfirmationResult{Outcome: OutcomeIgnored, BookingID: n.BookingID}

	b, err := s.Store.Bookings().GetBooking(ctx, n.BookingID)
	if err != nil {
		if domain.IsNotFound(err) {
			utils.LogEvent(reqID, "payment", "late_notification", fmt.Sprintf("booking_id=%d result=%d receipt=%s", n.BookingID, n.ResultCode, n.Receipt))
			return res, nil
		}
		return res, domain.InternalError{Msg: "load booking", Err: err}
	}
	res.ScheduleID = b.ScheduleID
	if b.Status != models.BookingPendingPayment {
		utils.LogEvent(reqID, "payment", "duplicate_notification", fmt.Sprintf("booking_id=%d status=%s", b.ID, b.Status))
		return res, nil
	}

	if !n.Succeeded() {
		deleted, err := s.Store.Bookings().DeleteBooking(ctx, b.ID, models.BookingPendingPayment)
		if err != nil {
			return res, domain.InternalError{Msg: "discard booking", Err: err}
		}
		if deleted {
			res.Outcome = OutcomeDiscarded
		}
		utils.LogEvent(reqID, "payment", "payment_failed", fmt.Sprintf("booking_id=%d code=%d desc=%s", b.ID, n.ResultCode, n.ResultDesc))
		return res, nil
	}
	if n.Amount > 0 && n.Amount < b.TotalAmount {
		return res, domain.ValidationError{
			Field: "amount",
			Msg:   fmt.Sprintf("paid %d of %d", n.Amount, b.TotalAmount),
			Err:   domain.ErrUnderpayment,
		}
	}

	var (
		sched     models.Schedule
		remaining int
		confirmed bool
		discarded bool
	)
	err = retryTx(ctx, 0, func() error {
		confirmed, discarded = false, false
		return s.Store.InTx(ctx, func(r repositories.Repos) error {
			// Schedule first: cancellation locks the schedule before its bookings.
			var err error
			sched, err = r.Schedules().GetSchedule(ctx, b.ScheduleID)
			if err != nil {
				if domain.IsNotFound(err) {
					utils.LogEvent(reqID, "payment", "schedule_missing_fault", fmt.Sprintf("booking_id=%d schedule_id=%d", b.ID, b.ScheduleID))
					return domain.InternalError{Msg: "schedule missing during confirmation", Err: domain.ErrScheduleNotFound}
				}
				return err
			}
			if !sched.Bookable() {
				discarded, err = r.Bookings().DeleteBooking(ctx, b.ID, models.BookingPendingPayment)
				return err
			}

			ok, err := r.Bookings().ConfirmBooking(ctx, b.ID, models.Confirmation{
				Receipt:     n.Receipt,
				PayerPhone:  n.PayerPhone,
				ConfirmedAt: nowOr(s.Now),
			})
			if err != nil || !ok {
				return err
			}
			left, ok, err := r.Schedules().DecrementSeats(ctx, sched.ID)
			if err != nil {
				return err
			}
			if !ok {
				utils.LogEvent(reqID, "payment", "seat_underflow_fault", fmt.Sprintf("booking_id=%d schedule_id=%d", b.ID, sched.ID))
				return domain.InternalError{Msg: "seat counter would go negative", Err: domain.ErrSeatCounterUnderflow}
			}
			remaining = left
			confirmed = true
			return nil
		})
	})
	if err != nil {
		if domain.IsInternal(err) {
			return res, err
		}
		return res, domain.InternalError{Msg: "confirm booking", Err: err}
	}
	if discarded {
		res.Outcome = OutcomeDiscarded
		utils.LogEvent(reqID, "payment", "schedule_closed",
			fmt.Sprintf("booking_id=%d schedule_id=%d status=%s receipt=%s", b.ID, sched.ID, sched.Status, n.Receipt))
		return res, nil
	}
	if !confirmed {
		utils.LogEvent(reqID, "payment", "duplicate_notification", fmt.Sprintf("booking_id=%d lost confirm race", b.ID))
		return res, nil
	}

	res.Outcome = OutcomeConfirmed
	res.SeatsLeft = remaining
	res.ScheduleFull = remaining == 0
	utils.LogEvent(reqID, "payment", "booking_confirmed",
		fmt.Sprintf("booking_id=%d schedule_id=%d seat=%d seats_left=%d receipt=%s", b.ID, sched.ID, b.SeatNumber, remaining, n.Receipt))

	s.notifier().Publish(realtime.ScheduleRoom(sched.ID), realtime.EventSeatBooked, map[string]any{
		"seatNumber": b.SeatNumber,
		"scheduleId": sched.ID,
		"pickup":     b.Pickup,
		"dropoff":    b.Dropoff,
		"seatsLeft":  remaining,
	})

	if remaining == 0 {
		utils.LogEvent(reqID, "payment", "schedule_full", fmt.Sprintf("schedule_id=%d route_key=%s", sched.ID, sched.RouteKey))
		if err := s.recycler().VehicleFreed(ctx, sched.RouteKey, sched.ID); err != nil {
			utils.LogEvent(reqID, "payment", "recycle_failed", fmt.Sprintf("route_key=%s err=%v", sched.RouteKey, err))
		}
	}
	return res, nil
}

func (s PaymentService) notifier() Notifier {
	if s.Notifier == nil {
		return nopNotifier{}
	}
	return s.Notifier
}

func (s PaymentService) recycler() VehicleRecycler {
	if s.Recycler == nil {
		return nopRecycler{}
	}
	return s.Recycler
}
