package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	intdb "matsched/internal/db"
	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

type ScheduleRepo struct {
	DB        intdb.DBTX
	ForUpdate bool
}

func (r ScheduleRepo) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	now := time.Now().UTC()
	if s.Status == "" {
		s.Status = models.ScheduleScheduled
	}
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO schedules (route_id, vehicle_id, operator_id, driver_id, route_key, origin, destination, departure_time,
			status, capacity, seats_available, expected_return_time, is_round_trip, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RouteID, s.VehicleID, s.OperatorID, intdb.NullInt64(s.DriverID), s.RouteKey, s.Origin, s.Destination,
		s.DepartureTime.UTC(), s.Status, s.Capacity, s.SeatsAvailable, nullTime(s.ExpectedReturnTime),
		s.IsRoundTrip, s.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	if s.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("schedule id: %w", err)
	}
	s.CreatedAt, s.UpdatedAt = now, now
	return nil
}

const scheduleColumns = `id, route_id, vehicle_id, operator_id, driver_id, route_key, origin, destination, departure_time,
	status, capacity, seats_available, expected_return_time, is_round_trip, is_active, created_at, updated_at`

func scanSchedule(row interface{ Scan(...any) error }) (models.Schedule, error) {
	var s models.Schedule
	var driver sql.NullInt64
	var ret sql.NullTime
	err := row.Scan(&s.ID, &s.RouteID, &s.VehicleID, &s.OperatorID, &driver, &s.RouteKey, &s.Origin, &s.Destination,
		&s.DepartureTime, &s.Status, &s.Capacity, &s.SeatsAvailable, &ret, &s.IsRoundTrip, &s.IsActive,
		&s.CreatedAt, &s.UpdatedAt)
	s.DriverID = intdb.Int64Ptr(driver)
	if ret.Valid {
		t := ret.Time
		s.ExpectedReturnTime = &t
	}
	return s, err
}

func (r ScheduleRepo) GetSchedule(ctx context.Context, id int64) (models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM schedules WHERE id = ?`
	if r.ForUpdate {
		query += ` FOR UPDATE`
	}
	s, err := scanSchedule(r.DB.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Schedule{}, domain.NotFoundError{Resource: "schedule", Err: domain.ErrScheduleNotFound}
	}
	return s, err
}

func (r ScheduleRepo) TransitionSchedule(ctx context.Context, id int64, to models.ScheduleStatus) (bool, error) {
	from := models.SourcesFor(to)
	if len(from) == 0 {
		return false, domain.ValidationError{Field: "status", Msg: fmt.Sprintf("cannot move to %s", to), Err: domain.ErrInvalidTransition}
	}
	args := []any{to, time.Now().UTC(), id}
	for _, s := range from {
		args = append(args, s)
	}
	res, err := r.DB.ExecContext(ctx,
		`UPDATE schedules SET status = ?, updated_at = ? WHERE id = ? AND status IN (`+placeholders(len(from))+`)`,
		args...)
	if err != nil {
		return false, err
	}
	return intdb.RowsAffected(res) == 1, nil
}

func (r ScheduleRepo) DecrementSeats(ctx context.Context, id int64) (int, bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE schedules SET seats_available = seats_available - 1, updated_at = ?
		WHERE id = ? AND seats_available > 0`, time.Now().UTC(), id)
	if err != nil {
		return 0, false, err
	}
	changed := intdb.RowsAffected(res) == 1

	var remaining int
	err = r.DB.QueryRowContext(ctx, `SELECT seats_available FROM schedules WHERE id = ?`, id).Scan(&remaining)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, domain.NotFoundError{Resource: "schedule", Err: domain.ErrScheduleNotFound}
	}
	if err != nil {
		return 0, false, err
	}
	return remaining, changed, nil
}

func (r ScheduleRepo) ListOverdueSchedules(ctx context.Context, now time.Time, limit int) ([]models.Schedule, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE status IN (?, ?) AND is_active = TRUE AND expected_return_time IS NOT NULL AND expected_return_time <= ?
		ORDER BY expected_return_time ASC LIMIT ?`,
		models.ScheduleScheduled, models.ScheduleInTransit, now.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func (r ScheduleRepo) ListSchedules(ctx context.Context, f models.ScheduleFilter) ([]models.Schedule, error) {
	where := []string{"is_active = TRUE"}
	var args []any
	if f.OperatorID > 0 {
		where = append(where, "operator_id = ?")
		args = append(args, f.OperatorID)
	}
	if f.DriverID > 0 {
		where = append(where, "driver_id = ?")
		args = append(args, f.DriverID)
	}
	if f.Origin != "" {
		where = append(where, "LOWER(origin) LIKE ?")
		args = append(args, containsPattern(f.Origin))
	}
	if f.Destination != "" {
		where = append(where, "LOWER(destination) LIKE ?")
		args = append(args, containsPattern(f.Destination))
	}
	if len(f.Statuses) > 0 {
		where = append(where, "status IN ("+placeholders(len(f.Statuses))+")")
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if !f.DepartsAfter.IsZero() {
		where = append(where, "departure_time >= ?")
		args = append(args, f.DepartsAfter.UTC())
	}
	if !f.DepartsBefore.IsZero() {
		where = append(where, "departure_time < ?")
		args = append(args, f.DepartsBefore.UTC())
	}
	if f.WithSeatsLeft {
		where = append(where, "seats_available > 0")
	}
	order := "departure_time ASC, id ASC"
	if f.NewestFirst {
		order = "departure_time DESC, id DESC"
	}
	args = append(args, listLimit(f.Limit), max(f.Offset, 0))

	rows, err := r.DB.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM schedules WHERE `+
		strings.Join(where, " AND ")+` ORDER BY `+order+` LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func listLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	return min(n, maxListLimit)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE operand matching s anywhere, case-insensitively.
func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
