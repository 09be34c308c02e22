package services

import (
	"context"
	"fmt"
	"math"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/realtime"
	"matsched/internal/repositories"
	"matsched/internal/utils"
)

const (
	defaultTripMinutes = 45
	restMinutes        = 15
)

// TrafficMultiplier is the journey-time factor for a departure hour (0-23).
// Morning and evening peaks weigh most; the late-morning and afternoon bands
// less. Band edges are inclusive, and 9 counts as morning peak.
func TrafficMultiplier(hour int) float64 {
	switch {
	case (hour >= 7 && hour <= 9) || (hour >= 17 && hour <= 20):
		return 1.8
	case (hour >= 9 && hour <= 11) || (hour >= 14 && hour <= 16):
		return 1.3
	default:
		return 1.0
	}
}

// ReturnPlanner estimates when a vehicle will be back from a trip.
type ReturnPlanner struct {
	// Location decides the local hour used for the traffic multiplier.
	Location *time.Location
}

func (p ReturnPlanner) location() *time.Location {
	if p.Location != nil {
		return p.Location
	}
	return time.UTC
}

// TripMinutes returns the rounded trip duration including the rest stop.
func (p ReturnPlanner) TripMinutes(departure time.Time, estimatedMinutes int, roundTrip bool) int {
	oneWay := estimatedMinutes
	if oneWay <= 0 {
		oneWay = defaultTripMinutes
	}
	travel := float64(oneWay)
	if roundTrip {
		travel *= 2
	}
	mult := TrafficMultiplier(departure.In(p.location()).Hour())
	return int(math.Round(travel*mult + restMinutes))
}

func (p ReturnPlanner) ExpectedReturn(departure time.Time, estimatedMinutes int, roundTrip bool) time.Time {
	return departure.Add(time.Duration(p.TripMinutes(departure, estimatedMinutes, roundTrip)) * time.Minute)
}

// ReturnService force-completes schedules whose expected return time passed.
type ReturnService struct {
	Store     repositories.Store
	Notifier  Notifier
	Recycler  VehicleRecycler
	Now       func() time.Time
	BatchSize int
}

// SweepOverdue completes every overdue scheduled or in-transit schedule and
// returns how many it completed. A schedule already completed by someone else
// is skipped, so repeated sweeps never double-apply. The vehicle is announced
// as available only when it was actually released.
func (s ReturnService) SweepOverdue(ctx context.Context) (int, error) {
	reqID := utils.RequestIDFrom(ctx)
	now := nowOr(s.Now)

	overdue, err := s.Store.Schedules().ListOverdueSchedules(ctx, now, s.BatchSize)
	if err != nil {
		return 0, domain.InternalError{Msg: "list overdue schedules", Err: err}
	}

	done := 0
	for _, sched := range overdue {
		out, err := s.complete(ctx, sched)
		if err != nil {
			utils.LogEvent(reqID, "return", "complete_failed", fmt.Sprintf("schedule_id=%d err=%v", sched.ID, err))
			continue
		}
		if !out.completed {
			continue
		}
		done++
		if !out.released {
			// Another live schedule already holds the vehicle.
			utils.LogEvent(reqID, "return", "vehicle_still_booked",
				fmt.Sprintf("schedule_id=%d vehicle_id=%d", sched.ID, sched.VehicleID))
			continue
		}
		utils.LogEvent(reqID, "return", "vehicle_returned",
			fmt.Sprintf("schedule_id=%d vehicle_id=%d due=%s", sched.ID, sched.VehicleID, sched.ExpectedReturnTime.Format(time.RFC3339)))

		s.notifier().Publish(realtime.OperatorRoom(sched.OperatorID), realtime.EventVehicleReturned, map[string]any{
			"vehicleId":  sched.VehicleID,
			"plate":      out.plate,
			"scheduleId": sched.ID,
			"message":    fmt.Sprintf("%s has returned and is now available", out.plate),
		})
		if err := s.recycler().VehicleFreed(ctx, sched.RouteKey, sched.ID); err != nil {
			utils.LogEvent(reqID, "return", "recycle_failed", fmt.Sprintf("route_key=%s err=%v", sched.RouteKey, err))
		}
	}
	return done, nil
}

type returnOutcome struct {
	plate     string
	completed bool
	released  bool
}

func (s ReturnService) complete(ctx context.Context, sched models.Schedule) (returnOutcome, error) {
	var out returnOutcome
	err := s.Store.InTx(ctx, func(r repositories.Repos) error {
		moved, err := r.Schedules().TransitionSchedule(ctx, sched.ID, models.ScheduleCompleted)
		if err != nil || !moved {
			return err
		}
		released, err := r.Vehicles().ReleaseVehicle(ctx, sched.VehicleID, sched.ID)
		if err != nil {
			return err
		}
		veh, err := r.Vehicles().GetVehicle(ctx, sched.VehicleID)
		if err != nil && !domain.IsNotFound(err) {
			return err
		}
		out = returnOutcome{plate: veh.Plate, completed: true, released: released}
		return nil
	})
	return out, err
}

func (s ReturnService) notifier() Notifier {
	if s.Notifier == nil {
		return nopNotifier{}
	}
	return s.Notifier
}

func (s ReturnService) recycler() VehicleRecycler {
	if s.Recycler == nil {
		return nopRecycler{}
	}
	return s.Recycler
}
