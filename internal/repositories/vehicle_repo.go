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

// claimCandidates bounds how many available vehicles one claim pass races for.
const claimCandidates = 5

type VehicleRepo struct {
	DB intdb.DBTX
}

func (r VehicleRepo) CreateVehicle(ctx context.Context, v *models.Vehicle) error {
	now := time.Now().UTC()
	if v.Status == "" {
		v.Status = models.VehicleAvailable
	}
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO vehicles (operator_id, plate, vehicle_type, capacity, status, driver_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		v.OperatorID, v.Plate, v.Type, v.Capacity, v.Status, intdb.NullInt64(v.DriverID), now, now)
	if intdb.IsDuplicateKey(err) {
		return domain.ConflictError{Resource: "vehicle", Msg: fmt.Sprintf("plate %s already registered", v.Plate), Err: err}
	}
	if err != nil {
		return fmt.Errorf("insert vehicle: %w", err)
	}
	if v.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("vehicle id: %w", err)
	}
	v.CreatedAt, v.UpdatedAt = now, now
	return nil
}

const vehicleColumns = `id, operator_id, plate, vehicle_type, capacity, status, driver_id, created_at, updated_at`

func scanVehicle(row interface{ Scan(...any) error }) (models.Vehicle, error) {
	var v models.Vehicle
	var driver sql.NullInt64
	err := row.Scan(&v.ID, &v.OperatorID, &v.Plate, &v.Type, &v.Capacity, &v.Status, &driver, &v.CreatedAt, &v.UpdatedAt)
	v.DriverID = intdb.Int64Ptr(driver)
	return v, err
}

func (r VehicleRepo) GetVehicle(ctx context.Context, id int64) (models.Vehicle, error) {
	v, err := scanVehicle(r.DB.QueryRowContext(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Vehicle{}, domain.NotFoundError{Resource: "vehicle", Err: err}
	}
	return v, err
}

func (r VehicleRepo) UpdateVehicle(ctx context.Context, v *models.Vehicle) error {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE vehicles SET plate = ?, vehicle_type = ?, capacity = ?, driver_id = ?, updated_at = ?
		WHERE id = ?`,
		v.Plate, v.Type, v.Capacity, intdb.NullInt64(v.DriverID), now, v.ID)
	if intdb.IsDuplicateKey(err) {
		return domain.ConflictError{Resource: "vehicle", Msg: fmt.Sprintf("plate %s already registered", v.Plate), Err: err}
	}
	if err != nil {
		return fmt.Errorf("update vehicle: %w", err)
	}
	if intdb.RowsAffected(res) == 0 {
		// MySQL reports 0 for an unchanged row, so tell that apart from a missing one.
		if _, err := r.GetVehicle(ctx, v.ID); err != nil {
			return err
		}
	}
	v.UpdatedAt = now
	return nil
}

func (r VehicleRepo) ListVehicles(ctx context.Context, operatorID int64) ([]models.Vehicle, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+vehicleColumns+` FROM vehicles WHERE operator_id = ? ORDER BY plate ASC`, operatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r VehicleRepo) ClaimAvailableVehicle(ctx context.Context, operatorID int64) (models.Vehicle, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id FROM vehicles WHERE operator_id = ? AND status = ? ORDER BY id ASC LIMIT ?`,
		operatorID, models.VehicleAvailable, claimCandidates)
	if err != nil {
		return models.Vehicle{}, err
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return models.Vehicle{}, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return models.Vehicle{}, err
	}

	for _, id := range ids {
		ok, err := r.ClaimVehicle(ctx, id)
		if err != nil {
			return models.Vehicle{}, err
		}
		if ok {
			return r.GetVehicle(ctx, id)
		}
	}
	return models.Vehicle{}, domain.ConflictError{
		Resource: "vehicle",
		Msg:      fmt.Sprintf("operator %d has no available vehicle", operatorID),
		Err:      domain.ErrNoVehicleAvailable,
	}
}

func (r VehicleRepo) ClaimVehicle(ctx context.Context, id int64) (bool, error) {
	return r.SetVehicleStatus(ctx, id, models.VehicleScheduled, models.VehicleAvailable)
}

func (r VehicleRepo) SetVehicleStatus(ctx context.Context, id int64, to models.VehicleStatus, from ...models.VehicleStatus) (bool, error) {
	query := `UPDATE vehicles SET status = ?, updated_at = ? WHERE id = ?`
	args := []any{to, time.Now().UTC(), id}
	if len(from) > 0 {
		query += ` AND status IN (` + placeholders(len(from)) + `)`
		for _, s := range from {
			args = append(args, s)
		}
	}
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return intdb.RowsAffected(res) == 1, nil
}

func (r VehicleRepo) ReleaseVehicle(ctx context.Context, id, exceptScheduleID int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE vehicles SET status = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
		AND NOT EXISTS (
			SELECT 1 FROM schedules s
			WHERE s.vehicle_id = ? AND s.id <> ? AND s.status IN (?, ?)
		)`,
		models.VehicleAvailable, time.Now().UTC(), id, models.VehicleScheduled, models.VehicleInTransit,
		id, exceptScheduleID, models.ScheduleScheduled, models.ScheduleInTransit)
	if err != nil {
		return false, err
	}
	return intdb.RowsAffected(res) == 1, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
