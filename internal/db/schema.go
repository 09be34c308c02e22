package db

import (
	"context"
	"fmt"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS operators (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS users (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(120) NOT NULL,
		email VARCHAR(190) NOT NULL,
		phone VARCHAR(20) NOT NULL DEFAULT '',
		password_hash VARCHAR(255) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'passenger',
		operator_id BIGINT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uniq_users_email (email)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS routes (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		operator_id BIGINT NOT NULL,
		name VARCHAR(160) NOT NULL,
		origin VARCHAR(120) NOT NULL,
		destination VARCHAR(120) NOT NULL,
		distance_km DECIMAL(8,2) NOT NULL DEFAULT 0,
		estimated_minutes INT NOT NULL DEFAULT 45,
		price BIGINT NOT NULL,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		KEY idx_routes_operator (operator_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS route_stops (
		route_id BIGINT NOT NULL,
		stop_order INT NOT NULL,
		name VARCHAR(120) NOT NULL,
		fare_from_start BIGINT NOT NULL,
		latitude DOUBLE NULL,
		longitude DOUBLE NULL,
		PRIMARY KEY (route_id, stop_order)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS vehicles (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		operator_id BIGINT NOT NULL,
		plate VARCHAR(20) NOT NULL,
		vehicle_type VARCHAR(20) NOT NULL DEFAULT 'matatu',
		capacity INT NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'available',
		driver_id BIGINT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uniq_vehicles_plate (plate),
		KEY idx_vehicles_operator_status (operator_id, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS schedules (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		route_id BIGINT NOT NULL,
		vehicle_id BIGINT NOT NULL,
		operator_id BIGINT NOT NULL,
		driver_id BIGINT NULL,
		route_key VARCHAR(255) NOT NULL,
		origin VARCHAR(120) NOT NULL,
		destination VARCHAR(120) NOT NULL,
		departure_time DATETIME NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'scheduled',
		capacity INT NOT NULL,
		seats_available INT NOT NULL,
		expected_return_time DATETIME NULL,
		is_round_trip TINYINT(1) NOT NULL DEFAULT 1,
		is_active TINYINT(1) NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		KEY idx_schedules_return (status, expected_return_time),
		KEY idx_schedules_vehicle (vehicle_id, status),
		KEY idx_schedules_operator_departure (operator_id, departure_time),
		KEY idx_schedules_driver_departure (driver_id, departure_time),
		CONSTRAINT chk_seats_available CHECK (seats_available >= 0)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	// live_seat is NULL for cancelled rows so they never block a seat number.
	// checkout_reference stays NULL until a prompt is sent, which keeps
	// uniq_bookings_checkout from colliding on unpaid rows.
	`CREATE TABLE IF NOT EXISTS bookings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		reference CHAR(36) NOT NULL,
		schedule_id BIGINT NOT NULL,
		seat_number INT NOT NULL,
		live_seat INT GENERATED ALWAYS AS (CASE WHEN status <> 'cancelled' THEN seat_number END) STORED,
		operator_id BIGINT NOT NULL,
		passenger_id BIGINT NULL,
		phone VARCHAR(20) NOT NULL DEFAULT '',
		status VARCHAR(20) NOT NULL,
		pickup VARCHAR(120) NOT NULL DEFAULT '',
		dropoff VARCHAR(120) NOT NULL DEFAULT '',
		pickup_order INT NOT NULL DEFAULT 0,
		dropoff_order INT NOT NULL DEFAULT 0,
		segment_fare BIGINT NOT NULL DEFAULT 0,
		platform_fee BIGINT NOT NULL DEFAULT 0,
		operator_amount BIGINT NOT NULL DEFAULT 0,
		total_amount BIGINT NOT NULL DEFAULT 0,
		reserved_at DATETIME NULL,
		checkout_reference VARCHAR(100) NULL,
		receipt VARCHAR(60) NULL,
		payer_phone VARCHAR(20) NOT NULL DEFAULT '',
		confirmed_at DATETIME NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE KEY uniq_bookings_reference (reference),
		UNIQUE KEY uniq_bookings_live_seat (schedule_id, live_seat),
		KEY idx_bookings_status_reserved (status, reserved_at),
		UNIQUE KEY uniq_bookings_checkout (checkout_reference),
		KEY idx_bookings_schedule_status (schedule_id, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates missing tables. Existing tables are left untouched.
func EnsureSchema(ctx context.Context, q DBTX) error {
	for i, stmt := range schema {
		if _, err := q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
