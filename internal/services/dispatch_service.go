package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/queue"
	"matsched/internal/realtime"
	"matsched/internal/repositories"
	"matsched/internal/utils"
)

const DefaultDepartureDelay = 5 * time.Minute

// DriverJoin announces a driver ready to work a route.
type DriverJoin struct {
	DriverID   int64 `json:"driverId"`
	OperatorID int64 `json:"operatorId"`
	RouteID    int64 `json:"routeId"`
}

// QueueStatus is one driver's view of a route-key queue. Position counts
// waiting drivers only and is 0 once the driver holds a vehicle.
type QueueStatus struct {
	RouteKey string            `json:"routeKey"`
	Status   queue.EntryStatus `json:"status"`
	Position int               `json:"position"`
	Schedule *models.Schedule  `json:"schedule,omitempty"`
}

// DispatchService runs the per-route-key driver queue: it hands free
// vehicles to the driver at the head and advances the queue when that
// driver's vehicle is freed.
type DispatchService struct {
	Store          repositories.Store
	Queue          queue.Store
	Notifier       Notifier
	Planner        ReturnPlanner
	DepartureDelay time.Duration
	Now            func() time.Time
}

// DriverAvailable appends the driver to the route-key queue. When the key is
// idle the driver is at the head and a vehicle is claimed at once. Joining
// again while queued only reports the current status.
func (s DispatchService) DriverAvailable(ctx context.Context, j DriverJoin) (QueueStatus, error) {
	reqID := utils.RequestIDFrom(ctx)
	route, err := s.Store.Routes().GetRoute(ctx, j.RouteID)
	if err != nil {
		return QueueStatus{}, err
	}
	if route.OperatorID != j.OperatorID {
		return QueueStatus{}, domain.ValidationError{Field: "routeId", Msg: "route belongs to another operator", Err: domain.ErrForbidden}
	}
	if !route.IsActive {
		return QueueStatus{}, domain.ValidationError{Field: "routeId", Msg: "route is inactive", Err: domain.ErrInvalidRoute}
	}
	key := queue.RouteKey(route.OperatorID, route.Origin, route.Destination)

	unlock, err := s.Queue.Lock(ctx, key)
	if err != nil {
		return QueueStatus{}, domain.InternalError{Msg: "lock route queue", Err: err}
	}
	defer unlock()

	entries, err := s.Queue.Entries(ctx, key)
	if err != nil {
		return QueueStatus{}, domain.InternalError{Msg: "read route queue", Err: err}
	}
	if queue.IndexOf(entries, j.DriverID) >= 0 {
		return s.statusLocked(ctx, key, j.DriverID)
	}

	err = s.Queue.Enqueue(ctx, key, queue.Entry{
		DriverID:   j.DriverID,
		OperatorID: route.OperatorID,
		RouteID:    route.ID,
		Status:     queue.EntryWaiting,
		JoinedAt:   nowOr(s.Now),
	})
	if err != nil {
		return QueueStatus{}, domain.InternalError{Msg: "enqueue driver", Err: err}
	}
	utils.LogEvent(reqID, "queue", "driver_joined", fmt.Sprintf("driver_id=%d route_key=%s", j.DriverID, key))

	active, err := s.Queue.IsActive(ctx, key)
	if err != nil {
		return QueueStatus{}, domain.InternalError{Msg: "read route state", Err: err}
	}
	if !active {
		if err := s.Queue.SetActive(ctx, key, true); err != nil {
			return QueueStatus{}, domain.InternalError{Msg: "activate route", Err: err}
		}
	}
	if err := s.assignHead(ctx, key); err != nil {
		return QueueStatus{}, err
	}

	st, err := s.statusLocked(ctx, key, j.DriverID)
	if err != nil {
		return QueueStatus{}, err
	}
	if st.Status == queue.EntryWaiting {
		s.notifier().Publish(realtime.DriverRoom(j.DriverID), realtime.EventQueueUpdate, st.Position)
	}
	return st, nil
}

// VehicleFreed advances the queue for routeKey after the head driver's
// schedule scheduleID stopped needing its vehicle. A scheduleID that does not
// belong to the head (for example an admin-created schedule) leaves the queue
// alone. A waiting head gets another assignment attempt.
func (s DispatchService) VehicleFreed(ctx context.Context, routeKey string, scheduleID int64) error {
	if routeKey == "" {
		return nil
	}
	reqID := utils.RequestIDFrom(ctx)

	unlock, err := s.Queue.Lock(ctx, routeKey)
	if err != nil {
		return domain.InternalError{Msg: "lock route queue", Err: err}
	}
	defer unlock()

	head, ok, err := s.Queue.Head(ctx, routeKey)
	if err != nil {
		return domain.InternalError{Msg: "read queue head", Err: err}
	}
	if !ok {
		return s.Queue.SetActive(ctx, routeKey, false)
	}

	if head.Status == queue.EntryWaiting {
		if err := s.assignHead(ctx, routeKey); err != nil {
			return err
		}
		return s.broadcastPositions(ctx, routeKey)
	}
	if scheduleID != 0 && head.ScheduleID != scheduleID {
		utils.LogEvent(reqID, "queue", "free_ignored",
			fmt.Sprintf("route_key=%s schedule_id=%d head_schedule_id=%d", routeKey, scheduleID, head.ScheduleID))
		return nil
	}

	if _, _, err := s.Queue.Shift(ctx, routeKey); err != nil {
		return domain.InternalError{Msg: "shift queue", Err: err}
	}
	if head.VehicleID != 0 {
		if _, err := s.Store.Vehicles().ReleaseVehicle(ctx, head.VehicleID, head.ScheduleID); err != nil {
			return domain.InternalError{Msg: "release vehicle", Err: err}
		}
	}
	if err := s.Queue.SetActive(ctx, routeKey, false); err != nil {
		return domain.InternalError{Msg: "deactivate route", Err: err}
	}
	utils.LogEvent(reqID, "queue", "queue_advanced",
		fmt.Sprintf("route_key=%s driver_id=%d vehicle_id=%d", routeKey, head.DriverID, head.VehicleID))

	entries, err := s.Queue.Entries(ctx, routeKey)
	if err != nil {
		return domain.InternalError{Msg: "read route queue", Err: err}
	}
	if len(entries) > 0 {
		if err := s.Queue.SetActive(ctx, routeKey, true); err != nil {
			return domain.InternalError{Msg: "activate route", Err: err}
		}
		if err := s.assignHead(ctx, routeKey); err != nil {
			return err
		}
	}
	return s.broadcastPositions(ctx, routeKey)
}

// Status reports where driverID stands on routeKey.
func (s DispatchService) Status(ctx context.Context, routeKey string, driverID int64) (QueueStatus, error) {
	unlock, err := s.Queue.Lock(ctx, routeKey)
	if err != nil {
		return QueueStatus{}, domain.InternalError{Msg: "lock route queue", Err: err}
	}
	defer unlock()
	return s.statusLocked(ctx, routeKey, driverID)
}

// RouteKeyFor derives the queue key of a route.
func (s DispatchService) RouteKeyFor(ctx context.Context, routeID int64) (string, models.Route, error) {
	route, err := s.Store.Routes().GetRoute(ctx, routeID)
	if err != nil {
		return "", models.Route{}, err
	}
	return queue.RouteKey(route.OperatorID, route.Origin, route.Destination), route, nil
}

// Entries lists a route-key queue in order.
func (s DispatchService) Entries(ctx context.Context, routeKey string) ([]queue.Entry, bool, error) {
	entries, err := s.Queue.Entries(ctx, routeKey)
	if err != nil {
		return nil, false, domain.InternalError{Msg: "read route queue", Err: err}
	}
	active, err := s.Queue.IsActive(ctx, routeKey)
	if err != nil {
		return nil, false, domain.InternalError{Msg: "read route state", Err: err}
	}
	return entries, active, nil
}

func (s DispatchService) statusLocked(ctx context.Context, key string, driverID int64) (QueueStatus, error) {
	entries, err := s.Queue.Entries(ctx, key)
	if err != nil {
		return QueueStatus{}, domain.InternalError{Msg: "read route queue", Err: err}
	}
	i := queue.IndexOf(entries, driverID)
	if i < 0 {
		return QueueStatus{}, domain.NotFoundError{Resource: "queue entry"}
	}
	e := entries[i]
	st := QueueStatus{RouteKey: key, Status: e.Status}
	if e.Status == queue.EntryWaiting {
		st.Position = queue.WaitingPositions(entries)[driverID]
		return st, nil
	}
	if e.ScheduleID != 0 {
		sched, err := s.Store.Schedules().GetSchedule(ctx, e.ScheduleID)
		if err == nil {
			st.Schedule = &sched
		}
	}
	return st, nil
}

// assignHead gives the waiting head entry a vehicle and a fresh schedule.
// With no available vehicle the head keeps waiting. Callers hold the key lock.
func (s DispatchService) assignHead(ctx context.Context, key string) error {
	reqID := utils.RequestIDFrom(ctx)
	head, ok, err := s.Queue.Head(ctx, key)
	if err != nil {
		return domain.InternalError{Msg: "read queue head", Err: err}
	}
	if !ok || head.Status != queue.EntryWaiting {
		return nil
	}

	route, err := s.Store.Routes().GetRoute(ctx, head.RouteID)
	if err != nil {
		return err
	}

	delay := s.DepartureDelay
	if delay <= 0 {
		delay = DefaultDepartureDelay
	}
	departure := nowOr(s.Now).Add(delay)
	expected := s.Planner.ExpectedReturn(departure, route.EstimatedMinutes, true)

	var (
		veh   models.Vehicle
		sched models.Schedule
	)
	err = s.Store.InTx(ctx, func(r repositories.Repos) error {
		var err error
		veh, err = r.Vehicles().ClaimAvailableVehicle(ctx, head.OperatorID)
		if err != nil {
			return err
		}
		capacity := veh.Capacity
		if capacity <= 0 {
			capacity = veh.Type.DefaultCapacity()
		}
		driverID := head.DriverID
		sched = models.Schedule{
			RouteID:            route.ID,
			VehicleID:          veh.ID,
			OperatorID:         head.OperatorID,
			DriverID:           &driverID,
			RouteKey:           key,
			Origin:             route.Origin,
			Destination:        route.Destination,
			DepartureTime:      departure,
			Status:             models.ScheduleScheduled,
			Capacity:           capacity,
			SeatsAvailable:     capacity,
			ExpectedReturnTime: &expected,
			IsRoundTrip:        true,
			IsActive:           true,
		}
		return r.Schedules().CreateSchedule(ctx, &sched)
	})
	if errors.Is(err, domain.ErrNoVehicleAvailable) {
		utils.LogEvent(reqID, "queue", "no_vehicle", fmt.Sprintf("route_key=%s driver_id=%d", key, head.DriverID))
		return nil
	}
	if err != nil {
		return domain.InternalError{Msg: "assign vehicle", Err: err}
	}

	head.Status = queue.EntryAssigned
	head.VehicleID = veh.ID
	head.ScheduleID = sched.ID
	if err := s.Queue.ReplaceHead(ctx, key, head); err != nil {
		return domain.InternalError{Msg: "update queue head", Err: err}
	}
	utils.LogEvent(reqID, "queue", "vehicle_assigned",
		fmt.Sprintf("route_key=%s driver_id=%d vehicle_id=%d schedule_id=%d", key, head.DriverID, veh.ID, sched.ID))

	s.notifier().Publish(realtime.DriverRoom(head.DriverID), realtime.EventDriverAssigned, map[string]any{
		"scheduleId": sched.ID,
		"route":      map[string]string{"from": route.Origin, "to": route.Destination},
		"vehicle": map[string]any{
			"id":       veh.ID,
			"plate":    veh.Plate,
			"capacity": sched.Capacity,
		},
		"departureTime":  sched.DepartureTime,
		"seatsAvailable": sched.SeatsAvailable,
	})
	return nil
}

func (s DispatchService) broadcastPositions(ctx context.Context, key string) error {
	entries, err := s.Queue.Entries(ctx, key)
	if err != nil {
		return domain.InternalError{Msg: "read route queue", Err: err}
	}
	for driverID, pos := range queue.WaitingPositions(entries) {
		s.notifier().Publish(realtime.DriverRoom(driverID), realtime.EventQueueUpdate, pos)
	}
	return nil
}

func (s DispatchService) notifier() Notifier {
	if s.Notifier == nil {
		return nopNotifier{}
	}
	return s.Notifier
}
