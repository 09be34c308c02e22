package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	intdb "matsched/internal/db"
	"matsched/internal/domain"
	"matsched/internal/domain/models"
)

type RouteRepo struct {
	DB intdb.DBTX
}

// CreateRoute inserts the route row and its stops. Callers wanting both to
// land together run it inside Store.InTx.
func (r RouteRepo) CreateRoute(ctx context.Context, route *models.Route) error {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		INSERT INTO routes (operator_id, name, origin, destination, distance_km, estimated_minutes, price, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		route.OperatorID, route.Name, route.Origin, route.Destination, route.DistanceKm,
		route.EstimatedMinutes, route.Price, route.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("insert route: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("route id: %w", err)
	}
	route.ID = id
	route.CreatedAt = now
	route.UpdatedAt = now
	return r.insertStops(ctx, id, route.Stops)
}

// UpdateRoute rewrites the route row and replaces its stop list. Stored
// booking fares are not touched.
func (r RouteRepo) UpdateRoute(ctx context.Context, route *models.Route) error {
	now := time.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE routes SET name = ?, origin = ?, destination = ?, distance_km = ?, estimated_minutes = ?, price = ?, is_active = ?, updated_at = ?
		WHERE id = ?`,
		route.Name, route.Origin, route.Destination, route.DistanceKm, route.EstimatedMinutes,
		route.Price, route.IsActive, now, route.ID)
	if err != nil {
		return fmt.Errorf("update route: %w", err)
	}
	if intdb.RowsAffected(res) == 0 {
		var exists int
		err := r.DB.QueryRowContext(ctx, `SELECT 1 FROM routes WHERE id = ?`, route.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundError{Resource: "route", Err: err}
		}
		if err != nil {
			return err
		}
	}
	if _, err := r.DB.ExecContext(ctx, `DELETE FROM route_stops WHERE route_id = ?`, route.ID); err != nil {
		return fmt.Errorf("clear stops: %w", err)
	}
	route.UpdatedAt = now
	return r.insertStops(ctx, route.ID, route.Stops)
}

func (r RouteRepo) insertStops(ctx context.Context, routeID int64, stops []models.Stop) error {
	for _, s := range stops {
		_, err := r.DB.ExecContext(ctx, `
			INSERT INTO route_stops (route_id, stop_order, name, fare_from_start, latitude, longitude)
			VALUES (?, ?, ?, ?, ?, ?)`,
			routeID, s.Order, s.Name, s.FareFromStart, nullFloat(s.Latitude), nullFloat(s.Longitude))
		if err != nil {
			return fmt.Errorf("insert stop %q: %w", s.Name, err)
		}
	}
	return nil
}

const routeColumns = `id, operator_id, name, origin, destination, distance_km, estimated_minutes, price, is_active, created_at, updated_at`

func scanRoute(row interface{ Scan(...any) error }) (models.Route, error) {
	var route models.Route
	err := row.Scan(&route.ID, &route.OperatorID, &route.Name, &route.Origin, &route.Destination, &route.DistanceKm,
		&route.EstimatedMinutes, &route.Price, &route.IsActive, &route.CreatedAt, &route.UpdatedAt)
	return route, err
}

func (r RouteRepo) GetRoute(ctx context.Context, id int64) (models.Route, error) {
	route, err := scanRoute(r.DB.QueryRowContext(ctx, `SELECT `+routeColumns+` FROM routes WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Route{}, domain.NotFoundError{Resource: "route", Err: err}
	}
	if err != nil {
		return models.Route{}, err
	}

	rows, err := r.DB.QueryContext(ctx, `
		SELECT stop_order, name, fare_from_start, latitude, longitude
		FROM route_stops WHERE route_id = ? ORDER BY stop_order ASC`, id)
	if err != nil {
		return models.Route{}, err
	}
	defer rows.Close()

	for rows.Next() {
		var s models.Stop
		var lat, lng sql.NullFloat64
		if err := rows.Scan(&s.Order, &s.Name, &s.FareFromStart, &lat, &lng); err != nil {
			return models.Route{}, err
		}
		if lat.Valid {
			s.Latitude = &lat.Float64
		}
		if lng.Valid {
			s.Longitude = &lng.Float64
		}
		route.Stops = append(route.Stops, s)
	}
	return route, rows.Err()
}

func (r RouteRepo) ListRoutes(ctx context.Context, operatorID int64) ([]models.Route, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+routeColumns+` FROM routes WHERE operator_id = ? ORDER BY name ASC, id ASC`, operatorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Route
	for rows.Next() {
		route, err := scanRoute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, route)
	}
	return out, rows.Err()
}

func (r RouteRepo) DeactivateRoute(ctx context.Context, id int64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE routes SET is_active = FALSE, updated_at = ? WHERE id = ? AND is_active = TRUE`,
		time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("deactivate route: %w", err)
	}
	return intdb.RowsAffected(res) == 1, nil
}

func nullFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
