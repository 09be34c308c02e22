package services

import (
	"context"
	"testing"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f fixture) addSchedule(t *testing.T, veh models.Vehicle, departs time.Time, seats int, driverID *int64) models.Schedule {
	t.Helper()
	sc := models.Schedule{
		RouteID:        f.route.ID,
		VehicleID:      veh.ID,
		OperatorID:     testOperator,
		DriverID:       driverID,
		RouteKey:       f.schedule.RouteKey,
		Origin:         f.route.Origin,
		Destination:    f.route.Destination,
		DepartureTime:  departs,
		Status:         models.ScheduleScheduled,
		Capacity:       veh.Capacity,
		SeatsAvailable: seats,
		IsActive:       true,
	}
	require.NoError(t, f.store.Schedules().CreateSchedule(context.Background(), &sc))
	return sc
}

func TestSearchFindsBookableTripsInWindow(t *testing.T) {
	f := newFixture(t, 14)
	ctx := context.Background()
	svc := ScheduleService{Store: f.store, Now: clock}
	spare := f.addVehicle(t, "KDB 002B", 14)

	soon := f.addSchedule(t, spare, fixedNow.Add(10*time.Minute), 3, nil)
	f.addSchedule(t, spare, fixedNow.Add(20*time.Minute), 0, nil)
	f.addSchedule(t, spare, fixedNow.Add(-10*time.Minute), 9, nil)
	later := f.addSchedule(t, spare, fixedNow.Add(3*time.Hour), 9, nil)

	trips, err := svc.Search(ctx, TripSearch{From: "cbd", To: " juja "})
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, soon.ID, trips[0].ID)
	assert.Equal(t, 10, trips[0].WaitMinutes)
	assert.Equal(t, "KDB 002B", trips[0].Plate)
	assert.Equal(t, f.schedule.ID, trips[1].ID)
	assert.Equal(t, "KDA 001A", trips[1].Plate)

	trips, err = svc.Search(ctx, TripSearch{From: "CBD", To: "Juja", WindowMinutes: 240})
	require.NoError(t, err)
	require.Len(t, trips, 3)
	assert.Equal(t, later.ID, trips[2].ID)
	assert.Equal(t, 180, trips[2].WaitMinutes)

	// A window around a later time still never offers departed trips.
	trips, err = svc.Search(ctx, TripSearch{From: "CBD", To: "Juja", At: fixedNow.Add(3 * time.Hour), WindowMinutes: 30})
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, later.ID, trips[0].ID)

	trips, err = svc.Search(ctx, TripSearch{From: "Juja", To: "CBD"})
	require.NoError(t, err)
	assert.Empty(t, trips)
}

func TestSearchValidatesInput(t *testing.T) {
	f := newFixture(t, 14)
	svc := ScheduleService{Store: f.store, Now: clock}
	ctx := context.Background()

	_, err := svc.Search(ctx, TripSearch{To: "Juja"})
	assert.True(t, domain.IsValidation(err))
	_, err = svc.Search(ctx, TripSearch{From: "CBD", To: "  "})
	assert.True(t, domain.IsValidation(err))
	_, err = svc.Search(ctx, TripSearch{From: "CBD", To: "Juja", WindowMinutes: -5})
	assert.True(t, domain.IsValidation(err))

	// Entirely in the past.
	trips, err := svc.Search(ctx, TripSearch{From: "CBD", To: "Juja", At: fixedNow.Add(-5 * time.Hour), WindowMinutes: 60})
	require.NoError(t, err)
	assert.Empty(t, trips)
}

func TestTodayAndPastSchedulesUseLocalDay(t *testing.T) {
	f := newFixture(t, 14)
	ctx := context.Background()
	eat := time.FixedZone("EAT", 3*60*60)
	svc := ScheduleService{Store: f.store, Now: clock, Planner: ReturnPlanner{Location: eat}}
	spare := f.addVehicle(t, "KDB 002B", 14)

	// 22:00 UTC on the 1st is already the 2nd in Nairobi.
	early := f.addSchedule(t, spare, time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC), 14, nil)
	var past []models.Schedule
	for i := 1; i <= 22; i++ {
		past = append(past, f.addSchedule(t, spare, time.Date(2026, 3, 1, 20, 0, 0, 0, time.UTC).Add(-time.Duration(i)*time.Hour), 14, nil))
	}

	today, err := svc.TodaySchedules(ctx, admin)
	require.NoError(t, err)
	require.Len(t, today, 2)
	assert.Equal(t, early.ID, today[0].ID)
	assert.Equal(t, f.schedule.ID, today[1].ID)

	page, err := svc.PastSchedules(ctx, admin, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	require.Len(t, page.Schedules, 20)
	assert.True(t, page.HasMore)
	assert.Equal(t, past[0].ID, page.Schedules[0].ID)

	page, err = svc.PastSchedules(ctx, admin, 2)
	require.NoError(t, err)
	require.Len(t, page.Schedules, 2)
	assert.False(t, page.HasMore)
	assert.Equal(t, past[21].ID, page.Schedules[1].ID)

	page, err = svc.PastSchedules(ctx, admin, 3)
	require.NoError(t, err)
	assert.Empty(t, page.Schedules)
	assert.NotNil(t, page.Schedules)

	other := domain.RequestContext{UserID: 2, Role: domain.RoleAdmin, OperatorID: 99}
	today, err = svc.TodaySchedules(ctx, other)
	require.NoError(t, err)
	assert.Empty(t, today)

	_, err = svc.TodaySchedules(ctx, domain.RequestContext{UserID: 3, Role: domain.RolePassenger})
	assert.True(t, domain.IsForbidden(err))
}

func TestDriverSchedulesShowsBookedSeats(t *testing.T) {
	f := newFixture(t, 14)
	ctx := context.Background()
	svc := ScheduleService{Store: f.store, Now: clock}
	spare := f.addVehicle(t, "KDB 002B", 14)
	driverID := int64(55)

	mine := f.addSchedule(t, spare, fixedNow.Add(2*time.Hour), 11, &driverID)
	f.addSchedule(t, spare, fixedNow.Add(26*time.Hour), 14, &driverID)

	driver := domain.RequestContext{UserID: driverID, Role: domain.RoleDriver, OperatorID: testOperator}
	trips, err := svc.DriverSchedules(ctx, driver)
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, mine.ID, trips[0].ID)
	assert.Equal(t, 3, trips[0].BookedSeats)
	assert.Equal(t, "KDB 002B", trips[0].Plate)

	trips, err = svc.DriverSchedules(ctx, domain.RequestContext{UserID: 56, Role: domain.RoleDriver, OperatorID: testOperator})
	require.NoError(t, err)
	assert.Empty(t, trips)

	_, err = svc.DriverSchedules(ctx, admin)
	assert.True(t, domain.IsForbidden(err))
}
