package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/utils"
)

const (
	defaultSearchWindow = 120 * time.Minute
	maxSearchWindow     = 24 * time.Hour
	searchLimit         = 50
	pastPageSize        = 20
)

// TripSearch asks for trips between two places departing around At.
type TripSearch struct {
	From          string
	To            string
	At            time.Time
	WindowMinutes int
}

// TripOption is one bookable schedule in a search result.
type TripOption struct {
	models.Schedule
	Plate       string `json:"plate"`
	WaitMinutes int    `json:"waitMinutes"`
}

// SchedulePage is one page of an operator's schedule history.
type SchedulePage struct {
	Page      int               `json:"page"`
	Schedules []models.Schedule `json:"schedules"`
	HasMore   bool              `json:"hasMore"`
}

// DriverTrip is a schedule as its driver sees it.
type DriverTrip struct {
	models.Schedule
	Plate       string `json:"plate"`
	BookedSeats int    `json:"bookedSeats"`
}

// Search lists bookable schedules whose origin and destination contain From
// and To and that depart within the window either side of At, soonest wait
// first. Trips that already left are not offered.
func (s ScheduleService) Search(ctx context.Context, q TripSearch) ([]TripOption, error) {
	from, to := utils.NormalizeSpace(q.From), utils.NormalizeSpace(q.To)
	if from == "" {
		return nil, domain.ValidationError{Field: "from", Msg: "required"}
	}
	if to == "" {
		return nil, domain.ValidationError{Field: "to", Msg: "required"}
	}
	window := defaultSearchWindow
	if q.WindowMinutes < 0 {
		return nil, domain.ValidationError{Field: "window", Msg: "must not be negative"}
	}
	if q.WindowMinutes > 0 {
		window = time.Duration(min(q.WindowMinutes, int(maxSearchWindow/time.Minute))) * time.Minute
	}

	now := nowOr(s.Now)
	at := q.At
	if at.IsZero() {
		at = now
	}
	after := at.Add(-window)
	if after.Before(now) {
		after = now
	}
	before := at.Add(window)
	if !before.After(after) {
		return []TripOption{}, nil
	}

	found, err := s.Store.Schedules().ListSchedules(ctx, models.ScheduleFilter{
		Origin:        from,
		Destination:   to,
		Statuses:      []models.ScheduleStatus{models.ScheduleScheduled},
		DepartsAfter:  after,
		DepartsBefore: before,
		WithSeatsLeft: true,
		Limit:         searchLimit,
	})
	if err != nil {
		return nil, domain.InternalError{Msg: "search schedules", Err: err}
	}

	out := make([]TripOption, 0, len(found))
	plates := map[int64]string{}
	for _, sched := range found {
		plate, ok := plates[sched.VehicleID]
		if !ok {
			if veh, err := s.Store.Vehicles().GetVehicle(ctx, sched.VehicleID); err == nil {
				plate = veh.Plate
			}
			plates[sched.VehicleID] = plate
		}
		out = append(out, TripOption{
			Schedule:    sched,
			Plate:       plate,
			WaitMinutes: int(sched.DepartureTime.Sub(now).Round(time.Minute) / time.Minute),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].WaitMinutes < out[j].WaitMinutes })

	utils.LogEvent(utils.RequestIDFrom(ctx), "schedule", "searched",
		fmt.Sprintf("from=%q to=%q window=%s results=%d", strings.ToLower(from), strings.ToLower(to), window, len(out)))
	return out, nil
}

// TodaySchedules lists the admin's schedules departing today in the
// operator's local time.
func (s ScheduleService) TodaySchedules(ctx context.Context, rc domain.RequestContext) ([]models.Schedule, error) {
	if rc.Role != domain.RoleAdmin || rc.OperatorID == 0 {
		return nil, forbidden("only operator admins list schedules")
	}
	start, end := s.today()
	found, err := s.Store.Schedules().ListSchedules(ctx, models.ScheduleFilter{
		OperatorID:    rc.OperatorID,
		DepartsAfter:  start,
		DepartsBefore: end,
	})
	if err != nil {
		return nil, domain.InternalError{Msg: "list schedules", Err: err}
	}
	return nonNil(found), nil
}

// PastSchedules pages through schedules that departed before today, newest
// first. Pages start at 1.
func (s ScheduleService) PastSchedules(ctx context.Context, rc domain.RequestContext, page int) (SchedulePage, error) {
	if rc.Role != domain.RoleAdmin || rc.OperatorID == 0 {
		return SchedulePage{}, forbidden("only operator admins list schedules")
	}
	if page < 1 {
		page = 1
	}
	start, _ := s.today()
	// One extra row tells whether another page exists.
	found, err := s.Store.Schedules().ListSchedules(ctx, models.ScheduleFilter{
		OperatorID:    rc.OperatorID,
		DepartsBefore: start,
		NewestFirst:   true,
		Limit:         pastPageSize + 1,
		Offset:        (page - 1) * pastPageSize,
	})
	if err != nil {
		return SchedulePage{}, domain.InternalError{Msg: "list past schedules", Err: err}
	}
	res := SchedulePage{Page: page, Schedules: nonNil(found)}
	if len(found) > pastPageSize {
		res.Schedules, res.HasMore = found[:pastPageSize], true
	}
	return res, nil
}

// DriverSchedules lists today's trips assigned to the calling driver.
func (s ScheduleService) DriverSchedules(ctx context.Context, rc domain.RequestContext) ([]DriverTrip, error) {
	if rc.Role != domain.RoleDriver {
		return nil, forbidden("only drivers have a schedule")
	}
	start, end := s.today()
	found, err := s.Store.Schedules().ListSchedules(ctx, models.ScheduleFilter{
		DriverID:      rc.UserID,
		DepartsAfter:  start,
		DepartsBefore: end,
	})
	if err != nil {
		return nil, domain.InternalError{Msg: "list driver schedules", Err: err}
	}
	out := make([]DriverTrip, 0, len(found))
	for _, sched := range found {
		trip := DriverTrip{Schedule: sched, BookedSeats: sched.Capacity - sched.SeatsAvailable}
		if veh, err := s.Store.Vehicles().GetVehicle(ctx, sched.VehicleID); err == nil {
			trip.Plate = veh.Plate
		}
		out = append(out, trip)
	}
	return out, nil
}

// today returns the bounds of the current local day.
func (s ScheduleService) today() (time.Time, time.Time) {
	now := nowOr(s.Now).In(s.Planner.location())
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.AddDate(0, 0, 1)
}

func nonNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
