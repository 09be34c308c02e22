package repositories

import (
	"context"
	"database/sql"
	"fmt"

	intdb "matsched/internal/db"
)

// MySQLStore implements Store over a *sql.DB pool.
type MySQLStore struct {
	DB *sql.DB
}

func NewMySQLStore(db *sql.DB) MySQLStore {
	return MySQLStore{DB: db}
}

func (s MySQLStore) Routes() RouteRepository       { return RouteRepo{DB: s.DB} }
func (s MySQLStore) Vehicles() VehicleRepository   { return VehicleRepo{DB: s.DB} }
func (s MySQLStore) Schedules() ScheduleRepository { return ScheduleRepo{DB: s.DB} }
func (s MySQLStore) Bookings() BookingRepository   { return BookingRepo{DB: s.DB} }
func (s MySQLStore) Users() UserRepository         { return UserRepo{DB: s.DB} }

func (s MySQLStore) Ping(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("db not configured")
	}
	return s.DB.PingContext(ctx)
}

func (s MySQLStore) InTx(ctx context.Context, fn func(Repos) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(txRepos{tx: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// txRepos binds every repository to one transaction. Booking and schedule
// reads lock their row.
type txRepos struct {
	tx intdb.DBTX
}

func (r txRepos) Routes() RouteRepository       { return RouteRepo{DB: r.tx} }
func (r txRepos) Vehicles() VehicleRepository   { return VehicleRepo{DB: r.tx} }
func (r txRepos) Schedules() ScheduleRepository { return ScheduleRepo{DB: r.tx, ForUpdate: true} }
func (r txRepos) Bookings() BookingRepository   { return BookingRepo{DB: r.tx, ForUpdate: true} }
func (r txRepos) Users() UserRepository         { return UserRepo{DB: r.tx} }
