package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"matsched/internal/domain"
	"matsched/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatePricesSegmentAndTakesLowestSeat(t *testing.T) {
	f := newFixture(t, 14)
	svc := BookingService{Store: f.store, Now: clock}
	ctx := context.Background()

	b1, q, err := svc.Allocate(ctx, f.request())
	require.NoError(t, err)
	assert.Equal(t, int64(120), q.SegmentFare)
	assert.Equal(t, int64(122), q.Total)
	assert.Equal(t, 1, b1.SeatNumber)
	assert.Equal(t, models.BookingPendingPayment, b1.Status)
	assert.Equal(t, "254712345678", b1.Phone)
	assert.Equal(t, int64(122), b1.TotalAmount)
	assert.Equal(t, int64(120), b1.OperatorAmount)
	assert.Equal(t, 1, b1.PickupOrder)
	assert.Equal(t, 3, b1.DropoffOrder)
	assert.NotEmpty(t, b1.Reference)

	b2, _, err := svc.Allocate(ctx, f.request())
	require.NoError(t, err)
	assert.Equal(t, 2, b2.SeatNumber)
}

func TestAllocateReusesLowestFreedSeat(t *testing.T) {
	f := newFixture(t, 14)
	svc := BookingService{Store: f.store, Now: clock}
	ctx := context.Background()

	b1, _, err := svc.Allocate(ctx, f.request())
	require.NoError(t, err)
	_, _, err = svc.Allocate(ctx, f.request())
	require.NoError(t, err)

	_, err = f.store.Bookings().DeleteBooking(ctx, b1.ID)
	require.NoError(t, err)

	b3, _, err := svc.Allocate(ctx, f.request())
	require.NoError(t, err)
	assert.Equal(t, 1, b3.SeatNumber)
}

func TestAllocateConcurrentClaimsNeverShareASeat(t *testing.T) {
	const capacity = 14
	f := newFixture(t, capacity)
	svc := BookingService{Store: f.store, Now: clock}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		seats []int
		full  int
	)
	for i := 0; i < capacity+6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, _, err := svc.Allocate(context.Background(), f.request())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errors.Is(err, domain.ErrScheduleFull) {
					full++
					return
				}
				t.Errorf("unexpected error: %v", err)
				return
			}
			seats = append(seats, b.SeatNumber)
		}()
	}
	wg.Wait()

	sort.Ints(seats)
	want := make([]int, capacity)
	for i := range want {
		want[i] = i + 1
	}
	assert.Equal(t, want, seats)
	assert.Equal(t, 6, full)
}

func TestFifteenthBookingOnFullScheduleIsRejected(t *testing.T) {
	f := newFixture(t, 14)
	ctx := context.Background()
	booking := BookingService{Store: f.store, Payments: &fakeInitiator{}, Now: clock}
	payment := PaymentService{Store: f.store, Now: clock}

	for i := 0; i < 14; i++ {
		res, err := booking.Initiate(ctx, f.request())
		require.NoError(t, err)
		out, err := payment.HandleNotification(ctx, success(res.Booking.ID, 122))
		require.NoError(t, err)
		require.Equal(t, OutcomeConfirmed, out.Outcome)
	}

	sched, err := f.store.Schedules().GetSchedule(ctx, f.schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sched.SeatsAvailable)

	_, err = booking.Initiate(ctx, f.request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrScheduleFull))
	assert.True(t, domain.IsConflict(err))
}

func TestInitiateStoresCheckoutReference(t *testing.T) {
	f := newFixture(t, 14)
	pay := &fakeInitiator{}
	svc := BookingService{Store: f.store, Payments: pay, Now: clock}

	res, err := svc.Initiate(context.Background(), f.request())
	require.NoError(t, err)
	require.Len(t, pay.calls, 1)
	assert.Equal(t, int64(122), pay.calls[0].Amount)
	assert.Equal(t, "254712345678", pay.calls[0].Phone)
	assert.Equal(t, res.Booking.Reference, pay.calls[0].Reference)

	stored, err := f.store.Bookings().GetBookingByCheckout(context.Background(), res.Checkout.CheckoutRequestID)
	require.NoError(t, err)
	assert.Equal(t, res.Booking.ID, stored.ID)
}

func TestInitiateDeletesBookingWhenPaymentPromptFails(t *testing.T) {
	f := newFixture(t, 14)
	failing := &fakeInitiator{err: errors.New("gateway down")}
	svc := BookingService{Store: f.store, Payments: failing, Now: clock}
	ctx := context.Background()

	_, err := svc.Initiate(ctx, f.request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrPaymentInitiation))
	require.Len(t, failing.calls, 1)

	_, err = f.store.Bookings().GetBookingByReference(ctx, failing.calls[0].Reference)
	assert.True(t, domain.IsNotFound(err))

	svc.Payments = &fakeInitiator{}
	res, err := svc.Initiate(ctx, f.request())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Booking.SeatNumber)
}

func TestAllocateRejections(t *testing.T) {
	f := newFixture(t, 14)
	svc := BookingService{Store: f.store, Now: clock}
	ctx := context.Background()

	req := f.request()
	req.Phone = "12345"
	_, _, err := svc.Allocate(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrInvalidPhoneNumber))
	assert.True(t, domain.IsValidation(err))

	req = f.request()
	req.Pickup, req.Dropoff = "Juja", "CBD"
	_, _, err = svc.Allocate(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrInvalidSegment))

	req = f.request()
	req.Dropoff = "Ruiru"
	_, _, err = svc.Allocate(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrInvalidSegment))

	req = f.request()
	req.ScheduleID = 999
	_, _, err = svc.Allocate(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrScheduleNotFound))
	assert.True(t, domain.IsNotFound(err))

	_, err = f.store.Schedules().TransitionSchedule(ctx, f.schedule.ID, models.ScheduleInTransit)
	require.NoError(t, err)
	_, _, err = svc.Allocate(ctx, f.request())
	assert.True(t, errors.Is(err, domain.ErrScheduleInactive))
}

func TestAllocateChecksHopLoadBeforeClaiming(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	// Two confirmed riders on CBD -> Thika Rd fill that hop while the
	// schedule counter still reports free seats.
	for seat := 1; seat <= 2; seat++ {
		id, ok, err := f.store.Bookings().ClaimSeat(ctx, models.SeatHold{Reference: "R" + string(rune('0'+seat)), ScheduleID: f.schedule.ID, SeatNumber: seat, OperatorID: testOperator, ReservedAt: fixedNow})
		require.NoError(t, err)
		require.True(t, ok)
		_, err = f.store.Bookings().MarkPendingPayment(ctx, id, models.PendingDetails{Phone: "254712345678", Pickup: "CBD", Dropoff: "Thika Rd", PickupOrder: 1, DropoffOrder: 2, ReservedAt: fixedNow})
		require.NoError(t, err)
		_, err = f.store.Bookings().ConfirmBooking(ctx, id, models.Confirmation{ConfirmedAt: fixedNow})
		require.NoError(t, err)
	}

	svc := BookingService{Store: f.store, Now: clock}
	_, _, err := svc.Allocate(ctx, f.request())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrSegmentCapacityExceeded))
	assert.Contains(t, err.Error(), "CBD -> Thika Rd")

	req := f.request()
	req.Pickup = "Thika Rd"
	_, _, err = svc.Allocate(ctx, req)
	assert.True(t, errors.Is(err, domain.ErrScheduleFull), "hop is free but every seat number is taken: %v", err)
}

func TestVerifyBooking(t *testing.T) {
	f := newFixture(t, 14)
	ctx := context.Background()
	booking := BookingService{Store: f.store, Payments: &fakeInitiator{}, Now: clock}
	payment := PaymentService{Store: f.store, Now: clock}

	res, err := booking.Initiate(ctx, f.request())
	require.NoError(t, err)

	_, err = booking.Verify(ctx, res.Booking.ID, f.schedule.ID)
	assert.True(t, domain.IsValidation(err), "pending booking must not verify")

	_, err = payment.HandleNotification(ctx, success(res.Booking.ID, 122))
	require.NoError(t, err)

	b, err := booking.Verify(ctx, res.Booking.ID, f.schedule.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingConfirmed, b.Status)

	_, err = booking.Verify(ctx, res.Booking.ID, f.schedule.ID+1)
	assert.True(t, domain.IsValidation(err))
}

func TestGetBookingHidesOtherPassengers(t *testing.T) {
	f := newFixture(t, 14)
	ctx := context.Background()
	owner := int64(41)
	svc := BookingService{Store: f.store, Now: clock}

	req := f.request()
	req.PassengerID = &owner
	b, _, err := svc.Allocate(ctx, req)
	require.NoError(t, err)

	_, err = svc.Get(ctx, domain.RequestContext{UserID: owner, Role: domain.RolePassenger}, b.ID)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, domain.RequestContext{UserID: 99, Role: domain.RolePassenger}, b.ID)
	assert.True(t, domain.IsNotFound(err))
	_, err = svc.Get(ctx, domain.RequestContext{UserID: 5, Role: domain.RoleAdmin, OperatorID: testOperator}, b.ID)
	assert.NoError(t, err)
}

func TestNewReferenceFitsAccountReference(t *testing.T) {
	ref := newReference()
	assert.Len(t, ref, 12)
	assert.NotEqual(t, ref, newReference())
}
