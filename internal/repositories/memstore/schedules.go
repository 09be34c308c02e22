package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

func (v view) CreateSchedule(_ context.Context, s *models.Schedule) error {
	defer v.lock()()
	now := time.Now().UTC()
	if s.Status == "" {
		s.Status = models.ScheduleScheduled
	}
	s.ID = v.s.t.id()
	s.CreatedAt, s.UpdatedAt = now, now
	v.s.t.schedules[s.ID] = *s
	return nil
}

func (v view) GetSchedule(_ context.Context, id int64) (models.Schedule, error) {
	defer v.lock()()
	s, ok := v.s.t.schedules[id]
	if !ok {
		return models.Schedule{}, domain.NotFoundError{Resource: "schedule", Err: domain.ErrScheduleNotFound}
	}
	return s, nil
}

func (v view) TransitionSchedule(_ context.Context, id int64, to models.ScheduleStatus) (bool, error) {
	if len(models.SourcesFor(to)) == 0 {
		return false, domain.ValidationError{Field: "status", Msg: fmt.Sprintf("cannot move to %s", to), Err: domain.ErrInvalidTransition}
	}
	defer v.lock()()
	s, ok := v.s.t.schedules[id]
	if !ok || !s.Status.CanTransition(to) {
		return false, nil
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	v.s.t.schedules[id] = s
	return true, nil
}

func (v view) DecrementSeats(_ context.Context, id int64) (int, bool, error) {
	defer v.lock()()
	s, ok := v.s.t.schedules[id]
	if !ok {
		return 0, false, domain.NotFoundError{Resource: "schedule", Err: domain.ErrScheduleNotFound}
	}
	if s.SeatsAvailable <= 0 {
		return s.SeatsAvailable, false, nil
	}
	s.SeatsAvailable--
	s.UpdatedAt = time.Now().UTC()
	v.s.t.schedules[id] = s
	return s.SeatsAvailable, true, nil
}

func (v view) ListOverdueSchedules(_ context.Context, now time.Time, limit int) ([]models.Schedule, error) {
	defer v.lock()()
	if limit <= 0 {
		limit = 100
	}
	var out []models.Schedule
	for _, s := range v.s.t.schedules {
		if !s.IsActive || (s.Status != models.ScheduleScheduled && s.Status != models.ScheduleInTransit) {
			continue
		}
		if s.ExpectedReturnTime == nil || s.ExpectedReturnTime.After(now) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpectedReturnTime.Before(*out[j].ExpectedReturnTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (v view) ListSchedules(_ context.Context, f models.ScheduleFilter) ([]models.Schedule, error) {
	defer v.lock()()
	origin, dest := strings.ToLower(f.Origin), strings.ToLower(f.Destination)
	var out []models.Schedule
	for _, s := range v.s.t.schedules {
		switch {
		case !s.IsActive,
			f.OperatorID > 0 && s.OperatorID != f.OperatorID,
			f.DriverID > 0 && (s.DriverID == nil || *s.DriverID != f.DriverID),
			origin != "" && !strings.Contains(strings.ToLower(s.Origin), origin),
			dest != "" && !strings.Contains(strings.ToLower(s.Destination), dest),
			len(f.Statuses) > 0 && !slices.Contains(f.Statuses, s.Status),
			!f.DepartsAfter.IsZero() && s.DepartureTime.Before(f.DepartsAfter),
			!f.DepartsBefore.IsZero() && !s.DepartureTime.Before(f.DepartsBefore),
			f.WithSeatsLeft && s.SeatsAvailable <= 0:
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.NewestFirst {
			a, b = b, a
		}
		if !a.DepartureTime.Equal(b.DepartureTime) {
			return a.DepartureTime.Before(b.DepartureTime)
		}
		return a.ID < b.ID
	})

	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[max(f.Offset, 0):]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
