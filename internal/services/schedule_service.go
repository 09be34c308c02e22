package services

import (
	"context"
	"fmt"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/queue"
	"matsched/internal/repositories"
	"matsched/internal/utils"
)

type CreateScheduleInput struct {
	RouteID       int64     `json:"routeId"`
	VehicleID     int64     `json:"vehicleId"`
	DepartureTime time.Time `json:"departureTime"`
	IsRoundTrip   *bool     `json:"isRoundTrip"`
	DriverID      *int64    `json:"driverId"`
}

// ScheduleService covers the direct dispatch path and the trip lifecycle.
type ScheduleService struct {
	Store    repositories.Store
	Planner  ReturnPlanner
	Recycler VehicleRecycler
	Now      func() time.Time
}

// CreateSchedule books a specific vehicle onto a route. It does not consult
// the driver queue.
func (s ScheduleService) CreateSchedule(ctx context.Context, rc domain.RequestContext, in CreateScheduleInput) (models.Schedule, error) {
	if in.RouteID <= 0 {
		return models.Schedule{}, domain.ValidationError{Field: "routeId", Msg: "required"}
	}
	if in.VehicleID <= 0 {
		return models.Schedule{}, domain.ValidationError{Field: "vehicleId", Msg: "required"}
	}
	if in.DepartureTime.IsZero() {
		return models.Schedule{}, domain.ValidationError{Field: "departureTime", Msg: "required"}
	}

	route, err := s.Store.Routes().GetRoute(ctx, in.RouteID)
	if err != nil {
		return models.Schedule{}, err
	}
	if !rc.IsAdminOf(route.OperatorID) {
		return models.Schedule{}, forbidden("route belongs to another operator")
	}
	if !route.IsActive {
		return models.Schedule{}, domain.ValidationError{Field: "routeId", Msg: "route is inactive", Err: domain.ErrInvalidRoute}
	}
	veh, err := s.Store.Vehicles().GetVehicle(ctx, in.VehicleID)
	if err != nil {
		return models.Schedule{}, err
	}
	if veh.OperatorID != route.OperatorID {
		return models.Schedule{}, domain.ValidationError{Field: "vehicleId", Msg: "vehicle belongs to another operator"}
	}

	roundTrip := true
	if in.IsRoundTrip != nil {
		roundTrip = *in.IsRoundTrip
	}
	departure := in.DepartureTime.UTC()
	expected := s.Planner.ExpectedReturn(departure, route.EstimatedMinutes, roundTrip)
	driverID := in.DriverID
	if driverID == nil {
		driverID = veh.DriverID
	}

	sched := models.Schedule{
		RouteID:            route.ID,
		VehicleID:          veh.ID,
		OperatorID:         route.OperatorID,
		DriverID:           driverID,
		RouteKey:           queue.RouteKey(route.OperatorID, route.Origin, route.Destination),
		Origin:             route.Origin,
		Destination:        route.Destination,
		DepartureTime:      departure,
		Status:             models.ScheduleScheduled,
		Capacity:           veh.Capacity,
		SeatsAvailable:     veh.Capacity,
		ExpectedReturnTime: &expected,
		IsRoundTrip:        roundTrip,
		IsActive:           true,
	}
	err = s.Store.InTx(ctx, func(r repositories.Repos) error {
		ok, err := r.Vehicles().ClaimVehicle(ctx, veh.ID)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ConflictError{Resource: "vehicle", Msg: fmt.Sprintf("vehicle %s is not available", veh.Plate), Err: domain.ErrNoVehicleAvailable}
		}
		return r.Schedules().CreateSchedule(ctx, &sched)
	})
	if err != nil {
		if domain.IsConflict(err) {
			return models.Schedule{}, err
		}
		return models.Schedule{}, domain.InternalError{Msg: "create schedule", Err: err}
	}

	utils.LogEvent(utils.RequestIDFrom(ctx), "schedule", "created",
		fmt.Sprintf("schedule_id=%d vehicle_id=%d route_id=%d departure=%s return=%s", sched.ID, veh.ID, route.ID,
			departure.Format(time.RFC3339), expected.Format(time.RFC3339)))
	return sched, nil
}

func (s ScheduleService) GetSchedule(ctx context.Context, id int64) (models.Schedule, error) {
	sched, err := s.Store.Schedules().GetSchedule(ctx, id)
	if err != nil {
		return models.Schedule{}, scheduleLookupError(err)
	}
	return sched, nil
}

// CancelSchedule stops a live schedule, cancels its held, pending and
// confirmed bookings and frees its vehicle.
func (s ScheduleService) CancelSchedule(ctx context.Context, rc domain.RequestContext, id int64) (models.Schedule, error) {
	sched, err := s.GetSchedule(ctx, id)
	if err != nil {
		return models.Schedule{}, err
	}
	if !rc.IsAdminOf(sched.OperatorID) {
		return models.Schedule{}, forbidden("schedule belongs to another operator")
	}
	return s.finish(ctx, sched, models.ScheduleCancelled)
}

// StartTrip moves a scheduled trip and its vehicle to in_transit.
func (s ScheduleService) StartTrip(ctx context.Context, rc domain.RequestContext, id int64) (models.Schedule, error) {
	sched, err := s.GetSchedule(ctx, id)
	if err != nil {
		return models.Schedule{}, err
	}
	if err := s.authorizeCrew(ctx, rc, sched); err != nil {
		return models.Schedule{}, err
	}

	err = s.Store.InTx(ctx, func(r repositories.Repos) error {
		ok, err := r.Schedules().TransitionSchedule(ctx, id, models.ScheduleInTransit)
		if err != nil {
			return err
		}
		if !ok {
			return invalidTransition(sched.Status, models.ScheduleInTransit)
		}
		_, err = r.Vehicles().SetVehicleStatus(ctx, sched.VehicleID, models.VehicleInTransit, models.VehicleScheduled)
		return err
	})
	if err != nil {
		return models.Schedule{}, wrapLifecycle(err)
	}
	utils.LogEvent(utils.RequestIDFrom(ctx), "schedule", "trip_started", fmt.Sprintf("schedule_id=%d vehicle_id=%d", id, sched.VehicleID))
	return s.GetSchedule(ctx, id)
}

// CompleteTrip ends a trip, frees the vehicle and advances the driver queue.
func (s ScheduleService) CompleteTrip(ctx context.Context, rc domain.RequestContext, id int64) (models.Schedule, error) {
	sched, err := s.GetSchedule(ctx, id)
	if err != nil {
		return models.Schedule{}, err
	}
	if err := s.authorizeCrew(ctx, rc, sched); err != nil {
		return models.Schedule{}, err
	}
	return s.finish(ctx, sched, models.ScheduleCompleted)
}

func (s ScheduleService) finish(ctx context.Context, sched models.Schedule, to models.ScheduleStatus) (models.Schedule, error) {
	reqID := utils.RequestIDFrom(ctx)
	var cancelled int64
	err := s.Store.InTx(ctx, func(r repositories.Repos) error {
		ok, err := r.Schedules().TransitionSchedule(ctx, sched.ID, to)
		if err != nil {
			return err
		}
		if !ok {
			return invalidTransition(sched.Status, to)
		}
		if to == models.ScheduleCancelled {
			if cancelled, err = r.Bookings().CancelScheduleBookings(ctx, sched.ID); err != nil {
				return err
			}
		}
		_, err = r.Vehicles().ReleaseVehicle(ctx, sched.VehicleID, sched.ID)
		return err
	})
	if err != nil {
		return models.Schedule{}, wrapLifecycle(err)
	}
	utils.LogEvent(reqID, "schedule", "trip_"+string(to),
		fmt.Sprintf("schedule_id=%d vehicle_id=%d bookings_cancelled=%d", sched.ID, sched.VehicleID, cancelled))

	if s.Recycler != nil {
		if err := s.Recycler.VehicleFreed(ctx, sched.RouteKey, sched.ID); err != nil {
			utils.LogEvent(reqID, "schedule", "recycle_failed", fmt.Sprintf("route_key=%s err=%v", sched.RouteKey, err))
		}
	}
	return s.GetSchedule(ctx, sched.ID)
}

// authorizeCrew lets the schedule's driver, the vehicle's assigned driver or
// an operator admin act on a trip.
func (s ScheduleService) authorizeCrew(ctx context.Context, rc domain.RequestContext, sched models.Schedule) error {
	if rc.IsAdminOf(sched.OperatorID) {
		return nil
	}
	if rc.Role != domain.RoleDriver {
		return forbidden("only the trip's driver may do this")
	}
	if sched.DriverID != nil && *sched.DriverID == rc.UserID {
		return nil
	}
	veh, err := s.Store.Vehicles().GetVehicle(ctx, sched.VehicleID)
	if err == nil && veh.DriverID != nil && *veh.DriverID == rc.UserID {
		return nil
	}
	return forbidden("schedule is assigned to another driver")
}

func forbidden(msg string) error {
	return domain.DomainError{Code: "forbidden", Err: fmt.Errorf("%w: %s", domain.ErrForbidden, msg)}
}

func invalidTransition(from, to models.ScheduleStatus) error {
	return domain.ConflictError{
		Resource: "schedule",
		Msg:      fmt.Sprintf("cannot move from %s to %s", from, to),
		Err:      domain.ErrInvalidTransition,
	}
}

func wrapLifecycle(err error) error {
	if domain.IsConflict(err) || domain.IsValidation(err) || domain.IsNotFound(err) {
		return err
	}
	return domain.InternalError{Msg: "update schedule", Err: err}
}
