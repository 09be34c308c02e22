// Package repositories defines the storage contracts of the reservation core
// and their MySQL implementation.
package repositories

import (
	"context"
	"time"

	"matsched/internal/domain/models"
)

type RouteRepository interface {
	CreateRoute(ctx context.Context, r *models.Route) error
	UpdateRoute(ctx context.Context, r *models.Route) error
	GetRoute(ctx context.Context, id int64) (models.Route, error)
	// ListRoutes returns the operator's routes by name, without stops.
	ListRoutes(ctx context.Context, operatorID int64) ([]models.Route, error)
	// DeactivateRoute soft-deletes an active route.
	DeactivateRoute(ctx context.Context, id int64) (bool, error)
}

type VehicleRepository interface {
	CreateVehicle(ctx context.Context, v *models.Vehicle) error
	GetVehicle(ctx context.Context, id int64) (models.Vehicle, error)
	// UpdateVehicle rewrites plate, type, capacity and driver. Status is
	// only changed through the conditional methods below.
	UpdateVehicle(ctx context.Context, v *models.Vehicle) error
	ListVehicles(ctx context.Context, operatorID int64) ([]models.Vehicle, error)
	// ClaimAvailableVehicle flips one available vehicle of the operator to
	// scheduled and returns it.
	ClaimAvailableVehicle(ctx context.Context, operatorID int64) (models.Vehicle, error)
	// ClaimVehicle flips a specific vehicle from available to scheduled.
	ClaimVehicle(ctx context.Context, id int64) (bool, error)
	SetVehicleStatus(ctx context.Context, id int64, to models.VehicleStatus, from ...models.VehicleStatus) (bool, error)
	// ReleaseVehicle returns a scheduled or in-transit vehicle to available
	// unless a live schedule other than exceptScheduleID still holds it.
	ReleaseVehicle(ctx context.Context, id, exceptScheduleID int64) (bool, error)
}

type ScheduleRepository interface {
	CreateSchedule(ctx context.Context, s *models.Schedule) error
	GetSchedule(ctx context.Context, id int64) (models.Schedule, error)
	// TransitionSchedule moves a schedule to to when its current status is a
	// legal source. false means nothing changed.
	TransitionSchedule(ctx context.Context, id int64, to models.ScheduleStatus) (bool, error)
	// DecrementSeats takes one seat off seats_available if any remain.
	DecrementSeats(ctx context.Context, id int64) (remaining int, ok bool, err error)
	ListOverdueSchedules(ctx context.Context, now time.Time, limit int) ([]models.Schedule, error)
	ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]models.Schedule, error)
}

type BookingRepository interface {
	// ClaimSeat inserts a temp_reserved row for (schedule, seat) only if no
	// live row holds that seat. claimed is false when the seat is taken.
	ClaimSeat(ctx context.Context, hold models.SeatHold) (id int64, claimed bool, err error)
	MarkPendingPayment(ctx context.Context, id int64, p models.PendingDetails) (bool, error)
	GetBooking(ctx context.Context, id int64) (models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (models.Booking, error)
	GetBookingByCheckout(ctx context.Context, checkoutRef string) (models.Booking, error)
	SetCheckoutReference(ctx context.Context, id int64, checkoutRef string) error
	// ConfirmBooking flips pending_payment to confirmed.
	ConfirmBooking(ctx context.Context, id int64, c models.Confirmation) (bool, error)
	ListConfirmedSpans(ctx context.Context, scheduleID int64) ([]models.SegmentSpan, error)
	// CancelScheduleBookings moves every live booking of the schedule to
	// cancelled and returns how many changed.
	CancelScheduleBookings(ctx context.Context, scheduleID int64) (int64, error)
	// DeleteBooking removes the row when its status is one of statuses.
	DeleteBooking(ctx context.Context, id int64, statuses ...models.BookingStatus) (bool, error)
	DeleteStaleHolds(ctx context.Context, status models.BookingStatus, reservedBefore time.Time) (int64, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
}

// Repos groups the repositories bound to one connection or transaction.
type Repos interface {
	Routes() RouteRepository
	Vehicles() VehicleRepository
	Schedules() ScheduleRepository
	Bookings() BookingRepository
	Users() UserRepository
}

// Store is the top-level storage handle. InTx runs fn against repositories
// bound to a single transaction; fn's error rolls everything back.
type Store interface {
	Repos
	InTx(ctx context.Context, fn func(Repos) error) error
	Ping(ctx context.Context) error
}
