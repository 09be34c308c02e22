package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/fare"
	"matsched/internal/payments"
	"matsched/internal/repositories"
	"matsched/internal/utils"

	"github.com/google/uuid"
)

const cleanupTimeout = 5 * time.Second

// BookingRequest is a passenger's ask for one seat on a schedule.
type BookingRequest struct {
	ScheduleID  int64  `json:"scheduleId"`
	Phone       string `json:"phone"`
	Pickup      string `json:"pickup"`
	Dropoff     string `json:"dropoff"`
	PassengerID *int64 `json:"-"`
}

// BookingResult is a held seat plus the payment prompt sent for it.
type BookingResult struct {
	Booking  models.Booking    `json:"booking"`
	Quote    fare.Quote        `json:"quote"`
	Checkout payments.Checkout `json:"checkout"`
}

type BookingService struct {
	Store    repositories.Store
	Payments PaymentInitiator
	Now      func() time.Time
	// MaxTxAttempts bounds reruns of the claim transaction on deadlock.
	MaxTxAttempts int
}

// Initiate holds the lowest free seat, moves it to pending_payment and sends
// the payment prompt. If the prompt cannot be sent the booking is deleted
// before the error is returned.
func (s BookingService) Initiate(ctx context.Context, req BookingRequest) (BookingResult, error) {
	reqID := utils.RequestIDFrom(ctx)

	booking, quote, err := s.Allocate(ctx, req)
	if err != nil {
		return BookingResult{}, err
	}

	checkout, err := s.Payments.Initiate(ctx, payments.Request{
		Phone:       booking.Phone,
		Amount:      booking.TotalAmount,
		Reference:   booking.Reference,
		Description: fmt.Sprintf("Seat %d %s-%s", booking.SeatNumber, booking.Pickup, booking.Dropoff),
	})
	if err != nil {
		s.discard(ctx, booking.ID)
		utils.LogEvent(reqID, "booking", "payment_initiation_failed", fmt.Sprintf("booking_id=%d err=%v", booking.ID, err))
		return BookingResult{}, domain.DomainError{
			Code: "payment_initiation_failed",
			Err:  fmt.Errorf("%w: %v", domain.ErrPaymentInitiation, err),
		}
	}

	if checkout.CheckoutRequestID != "" {
		if err := s.Store.Bookings().SetCheckoutReference(ctx, booking.ID, checkout.CheckoutRequestID); err != nil {
			// The gateway already has the reference; the booking can still be
			// confirmed through the generic endpoint.
			utils.LogEvent(reqID, "booking", "checkout_ref_failed", fmt.Sprintf("booking_id=%d err=%v", booking.ID, err))
		}
		booking.CheckoutReference = checkout.CheckoutRequestID
	}
	utils.LogEvent(reqID, "booking", "payment_prompted", fmt.Sprintf("booking_id=%d phone=%s amount=%d", booking.ID, utils.MaskPhone(booking.Phone), booking.TotalAmount))
	return BookingResult{Booking: booking, Quote: quote, Checkout: checkout}, nil
}

// Allocate validates the request, prices the segment and claims the lowest
// free seat number. The claim and its pending_payment enrichment commit
// together.
func (s BookingService) Allocate(ctx context.Context, req BookingRequest) (models.Booking, fare.Quote, error) {
	reqID := utils.RequestIDFrom(ctx)

	phone, ok := utils.NormalizePhone(req.Phone)
	if !ok {
		return models.Booking{}, fare.Quote{}, domain.ValidationError{Field: "phone", Msg: "expected a Kenyan mobile number", Err: domain.ErrInvalidPhoneNumber}
	}
	if req.ScheduleID <= 0 {
		return models.Booking{}, fare.Quote{}, domain.ValidationError{Field: "scheduleId", Msg: "required"}
	}

	sched, err := s.Store.Schedules().GetSchedule(ctx, req.ScheduleID)
	if err != nil {
		return models.Booking{}, fare.Quote{}, scheduleLookupError(err)
	}
	if !sched.Bookable() {
		return models.Booking{}, fare.Quote{}, domain.ConflictError{
			Resource: "schedule",
			Msg:      fmt.Sprintf("schedule %d is %s", sched.ID, inactiveReason(sched)),
			Err:      domain.ErrScheduleInactive,
		}
	}
	if sched.SeatsAvailable <= 0 {
		return models.Booking{}, fare.Quote{}, scheduleFull(sched.ID)
	}

	route, err := s.Store.Routes().GetRoute(ctx, sched.RouteID)
	if err != nil {
		if domain.IsNotFound(err) {
			return models.Booking{}, fare.Quote{}, domain.InternalError{Msg: "schedule route missing", Err: err}
		}
		return models.Booking{}, fare.Quote{}, domain.InternalError{Msg: "load route", Err: err}
	}
	quote, err := fare.Price(route.Stops, req.Pickup, req.Dropoff)
	if err != nil {
		return models.Booking{}, fare.Quote{}, err
	}

	capacity := sched.Capacity
	if capacity <= 0 {
		capacity = models.VehicleMatatu.DefaultCapacity()
	}
	span := models.SegmentSpan{PickupOrder: quote.Pickup.Order, DropoffOrder: quote.Dropoff.Order}
	now := nowOr(s.Now)

	var booking models.Booking
	err = retryTx(ctx, s.MaxTxAttempts, func() error {
		return s.Store.InTx(ctx, func(r repositories.Repos) error {
			spans, err := r.Bookings().ListConfirmedSpans(ctx, sched.ID)
			if err != nil {
				return err
			}
			if err := fare.CheckCapacity(route.Stops, spans, span, capacity); err != nil {
				return err
			}

			hold := models.SeatHold{
				Reference:  newReference(),
				ScheduleID: sched.ID,
				OperatorID: sched.OperatorID,
				ReservedAt: now,
			}
			for seat := 1; seat <= capacity; seat++ {
				hold.SeatNumber = seat
				id, claimed, err := r.Bookings().ClaimSeat(ctx, hold)
				if err != nil {
					return err
				}
				if !claimed {
					continue
				}
				ok, err := r.Bookings().MarkPendingPayment(ctx, id, models.PendingDetails{
					PassengerID:    req.PassengerID,
					Phone:          phone,
					Pickup:         quote.Pickup.Name,
					Dropoff:        quote.Dropoff.Name,
					PickupOrder:    quote.Pickup.Order,
					DropoffOrder:   quote.Dropoff.Order,
					SegmentFare:    quote.SegmentFare,
					PlatformFee:    quote.PlatformFee,
					OperatorAmount: quote.OperatorAmount,
					TotalAmount:    quote.Total,
					ReservedAt:     now,
				})
				if err != nil {
					return err
				}
				if !ok {
					return domain.InternalError{Msg: fmt.Sprintf("seat hold %d vanished before enrichment", id)}
				}
				booking, err = r.Bookings().GetBooking(ctx, id)
				return err
			}
			return scheduleFull(sched.ID)
		})
	})
	if err != nil {
		if domain.IsConflict(err) || domain.IsValidation(err) || domain.IsInternal(err) {
			return models.Booking{}, fare.Quote{}, err
		}
		return models.Booking{}, fare.Quote{}, domain.InternalError{Msg: "claim seat", Err: err}
	}

	utils.LogEvent(reqID, "booking", "seat_claimed",
		fmt.Sprintf("booking_id=%d schedule_id=%d seat=%d segment=%s->%s total=%d", booking.ID, sched.ID, booking.SeatNumber, booking.Pickup, booking.Dropoff, booking.TotalAmount))
	return booking, quote, nil
}

// Get returns a booking. Passengers only see their own bookings and admins
// those of their operator.
func (s BookingService) Get(ctx context.Context, rc domain.RequestContext, id int64) (models.Booking, error) {
	b, err := s.Store.Bookings().GetBooking(ctx, id)
	if err != nil {
		return models.Booking{}, err
	}
	switch {
	case rc.IsAdminOf(b.OperatorID):
	case b.PassengerID != nil && *b.PassengerID == rc.UserID:
	case rc.Role == domain.RoleDriver && rc.OperatorID == b.OperatorID:
	default:
		return models.Booking{}, domain.NotFoundError{Resource: "booking"}
	}
	return b, nil
}

// Verify checks that a booking is confirmed and rides scheduleID.
func (s BookingService) Verify(ctx context.Context, bookingID, scheduleID int64) (models.Booking, error) {
	b, err := s.Store.Bookings().GetBooking(ctx, bookingID)
	if err != nil {
		return models.Booking{}, err
	}
	if b.ScheduleID != scheduleID {
		return models.Booking{}, domain.ValidationError{Field: "scheduleId", Msg: "booking is for another schedule"}
	}
	if b.Status != models.BookingConfirmed {
		return models.Booking{}, domain.ValidationError{Field: "bookingId", Msg: fmt.Sprintf("booking is %s", b.Status)}
	}
	utils.LogEvent(utils.RequestIDFrom(ctx), "booking", "verified", fmt.Sprintf("booking_id=%d schedule_id=%d", bookingID, scheduleID))
	return b, nil
}

// discard deletes a booking whose payment prompt failed. It outlives the
// request context so a cancelled client cannot leave the seat held.
func (s BookingService) discard(ctx context.Context, id int64) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if _, err := s.Store.Bookings().DeleteBooking(cctx, id, models.BookingTempReserved, models.BookingPendingPayment); err != nil {
		utils.LogEvent(utils.RequestIDFrom(ctx), "booking", "cleanup_failed", fmt.Sprintf("booking_id=%d err=%v", id, err))
	}
}

func newReference() string {
	return "MS" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func scheduleLookupError(err error) error {
	if domain.IsNotFound(err) {
		return domain.NotFoundError{Resource: "schedule", Err: domain.ErrScheduleNotFound}
	}
	return domain.InternalError{Msg: "load schedule", Err: err}
}

func scheduleFull(id int64) error {
	return domain.ConflictError{Resource: "schedule", Msg: fmt.Sprintf("schedule %d has no free seat", id), Err: domain.ErrScheduleFull}
}

func inactiveReason(s models.Schedule) string {
	if !s.IsActive {
		return "inactive"
	}
	return string(s.Status)
}
