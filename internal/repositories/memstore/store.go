// Package memstore keeps the reservation tables in process memory. It
// serves single-instance deployments and tests; every Store method and every
// InTx body runs under one mutex, and a failed InTx restores the snapshot
// taken when it began.
package memstore

import (
	"context"
	"sync"

	"matsched/internal/domain/models"
	"matsched/internal/repositories"
)

type tables struct {
	nextID    int64
	routes    map[int64]models.Route
	vehicles  map[int64]models.Vehicle
	schedules map[int64]models.Schedule
	bookings  map[int64]models.Booking
	users     map[int64]models.User
}

func newTables() *tables {
	return &tables{
		routes:    map[int64]models.Route{},
		vehicles:  map[int64]models.Vehicle{},
		schedules: map[int64]models.Schedule{},
		bookings:  map[int64]models.Booking{},
		users:     map[int64]models.User{},
	}
}

func (t *tables) id() int64 {
	t.nextID++
	return t.nextID
}

func (t *tables) clone() *tables {
	c := &tables{
		nextID:    t.nextID,
		routes:    make(map[int64]models.Route, len(t.routes)),
		vehicles:  make(map[int64]models.Vehicle, len(t.vehicles)),
		schedules: make(map[int64]models.Schedule, len(t.schedules)),
		bookings:  make(map[int64]models.Booking, len(t.bookings)),
		users:     make(map[int64]models.User, len(t.users)),
	}
	for k, v := range t.routes {
		c.routes[k] = v
	}
	for k, v := range t.vehicles {
		c.vehicles[k] = v
	}
	for k, v := range t.schedules {
		c.schedules[k] = v
	}
	for k, v := range t.bookings {
		c.bookings[k] = v
	}
	for k, v := range t.users {
		c.users[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	t  *tables
}

var _ repositories.Store = (*Store)(nil)

func New() *Store {
	return &Store{t: newTables()}
}

func (s *Store) view(locked bool) view { return view{s: s, locked: locked} }

func (s *Store) Routes() repositories.RouteRepository       { return s.view(false) }
func (s *Store) Vehicles() repositories.VehicleRepository   { return s.view(false) }
func (s *Store) Schedules() repositories.ScheduleRepository { return s.view(false) }
func (s *Store) Bookings() repositories.BookingRepository   { return s.view(false) }
func (s *Store) Users() repositories.UserRepository         { return s.view(false) }

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) InTx(ctx context.Context, fn func(repositories.Repos) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.t.clone()
	if err := fn(txView{v: s.view(true)}); err != nil {
		s.t = snapshot
		return err
	}
	return nil
}

type txView struct{ v view }

func (t txView) Routes() repositories.RouteRepository       { return t.v }
func (t txView) Vehicles() repositories.VehicleRepository   { return t.v }
func (t txView) Schedules() repositories.ScheduleRepository { return t.v }
func (t txView) Bookings() repositories.BookingRepository   { return t.v }
func (t txView) Users() repositories.UserRepository         { return t.v }

// view implements every repository. locked views run inside InTx and must
// not take the mutex again.
type view struct {
	s      *Store
	locked bool
}

func (v view) lock() func() {
	if v.locked {
		return func() {}
	}
	v.s.mu.Lock()
	return v.s.mu.Unlock
}
