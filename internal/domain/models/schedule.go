package models

import "time"

type ScheduleStatus string

const (
	ScheduleScheduled ScheduleStatus = "scheduled"
	ScheduleInTransit ScheduleStatus = "in_transit"
	ScheduleCompleted ScheduleStatus = "completed"
	ScheduleCancelled ScheduleStatus = "cancelled"
)

var scheduleTransitions = map[ScheduleStatus][]ScheduleStatus{
	ScheduleScheduled: {ScheduleInTransit, ScheduleCompleted, ScheduleCancelled},
	ScheduleInTransit: {ScheduleCompleted, ScheduleCancelled},
}

// CanTransition reports whether from -> to is a legal schedule move.
// completed and cancelled are terminal.
func (from ScheduleStatus) CanTransition(to ScheduleStatus) bool {
	for _, s := range scheduleTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SourcesFor lists the statuses that may move to to.
func SourcesFor(to ScheduleStatus) []ScheduleStatus {
	var out []ScheduleStatus
	for _, from := range []ScheduleStatus{ScheduleScheduled, ScheduleInTransit} {
		if from.CanTransition(to) {
			out = append(out, from)
		}
	}
	return out
}

// Schedule is one departure of one vehicle on one route.
type Schedule struct {
	ID                 int64          `json:"id"`
	RouteID            int64          `json:"routeId"`
	VehicleID          int64          `json:"vehicleId"`
	OperatorID         int64          `json:"operatorId"`
	DriverID           *int64         `json:"driverId,omitempty"`
	RouteKey           string         `json:"routeKey"`
	Origin             string         `json:"origin"`
	Destination        string         `json:"destination"`
	DepartureTime      time.Time      `json:"departureTime"`
	Status             ScheduleStatus `json:"status"`
	Capacity           int            `json:"capacity"`
	SeatsAvailable     int            `json:"seatsAvailable"`
	ExpectedReturnTime *time.Time     `json:"expectedReturnTime,omitempty"`
	IsRoundTrip        bool           `json:"isRoundTrip"`
	IsActive           bool           `json:"isActive"`
	CreatedAt          time.Time      `json:"createdAt"`
	UpdatedAt          time.Time      `json:"updatedAt"`
}

// Bookable reports whether new reservations may be taken.
func (s Schedule) Bookable() bool {
	return s.IsActive && s.Status == ScheduleScheduled
}

// ScheduleFilter selects active schedules. Zero fields do not filter.
type ScheduleFilter struct {
	OperatorID int64
	DriverID   int64
	// Origin and Destination match case-insensitive substrings.
	Origin        string
	Destination   string
	Statuses      []ScheduleStatus
	DepartsAfter  time.Time // inclusive
	DepartsBefore time.Time // exclusive
	WithSeatsLeft bool
	NewestFirst   bool
	Limit         int
	Offset        int
}
