package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"matsched/internal/domain/models"
	"matsched/internal/payments"
	"matsched/internal/queue"
	"matsched/internal/repositories/memstore"

	"github.com/stretchr/testify/require"
)

type published struct {
	Room    string
	Event   string
	Payload any
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []published
}

func (n *recordingNotifier) Publish(room, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, published{Room: room, Event: event, Payload: payload})
}

func (n *recordingNotifier) named(event string) []published {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []published
	for _, e := range n.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// lastPosition returns the latest queue-update sent to room, or 0.
func (n *recordingNotifier) lastPosition(room string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.events) - 1; i >= 0; i-- {
		e := n.events[i]
		if e.Room == room && e.Event == "queue-update" {
			return e.Payload.(int)
		}
	}
	return 0
}

type fakeInitiator struct {
	mu    sync.Mutex
	err   error
	calls []payments.Request
}

func (f *fakeInitiator) Initiate(_ context.Context, req payments.Request) (payments.Checkout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return payments.Checkout{}, f.err
	}
	return payments.Checkout{CheckoutRequestID: "ws_CO_" + req.Reference}, nil
}

type recyclerCall struct {
	RouteKey   string
	ScheduleID int64
}

type recordingRecycler struct {
	mu    sync.Mutex
	calls []recyclerCall
}

func (r *recordingRecycler) VehicleFreed(_ context.Context, key string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, recyclerCall{RouteKey: key, ScheduleID: id})
	return nil
}

const (
	testOperator = int64(7)
	testPhone    = "0712345678"
)

var fixedNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type fixture struct {
	store    *memstore.Store
	route    models.Route
	vehicle  models.Vehicle
	schedule models.Schedule
}

// newFixture seeds the CBD -> Juja route with one vehicle of the given
// capacity and a bookable schedule on it.
func newFixture(t *testing.T, capacity int) fixture {
	t.Helper()
	ctx := context.Background()
	st := memstore.New()

	route := models.Route{
		OperatorID:       testOperator,
		Name:             "CBD - Juja",
		Origin:           "CBD",
		Destination:      "Juja",
		EstimatedMinutes: 60,
		Price:            120,
		IsActive:         true,
		Stops: []models.Stop{
			{Order: 1, Name: "CBD", FareFromStart: 0},
			{Order: 2, Name: "Thika Rd", FareFromStart: 80},
			{Order: 3, Name: "Juja", FareFromStart: 120},
		},
	}
	require.NoError(t, st.Routes().CreateRoute(ctx, &route))

	veh := models.Vehicle{OperatorID: testOperator, Plate: "KDA 001A", Type: models.VehicleMatatu, Capacity: capacity, Status: models.VehicleScheduled}
	require.NoError(t, st.Vehicles().CreateVehicle(ctx, &veh))

	ret := fixedNow.Add(3 * time.Hour)
	sched := models.Schedule{
		RouteID:            route.ID,
		VehicleID:          veh.ID,
		OperatorID:         testOperator,
		RouteKey:           queue.RouteKey(testOperator, route.Origin, route.Destination),
		Origin:             route.Origin,
		Destination:        route.Destination,
		DepartureTime:      fixedNow.Add(30 * time.Minute),
		Status:             models.ScheduleScheduled,
		Capacity:           capacity,
		SeatsAvailable:     capacity,
		ExpectedReturnTime: &ret,
		IsRoundTrip:        true,
		IsActive:           true,
	}
	require.NoError(t, st.Schedules().CreateSchedule(ctx, &sched))

	return fixture{store: st, route: route, vehicle: veh, schedule: sched}
}

func (f fixture) request() BookingRequest {
	return BookingRequest{ScheduleID: f.schedule.ID, Phone: testPhone, Pickup: "CBD", Dropoff: "Juja"}
}

func (f fixture) addVehicle(t *testing.T, plate string, capacity int) models.Vehicle {
	t.Helper()
	veh := models.Vehicle{OperatorID: testOperator, Plate: plate, Type: models.VehicleMatatu, Capacity: capacity, Status: models.VehicleAvailable}
	require.NoError(t, f.store.Vehicles().CreateVehicle(context.Background(), &veh))
	return veh
}

func success(bookingID, amount int64) models.PaymentNotification {
	return models.PaymentNotification{BookingID: bookingID, ResultCode: 0, Amount: amount, Receipt: "QK12345", PayerPhone: "254712345678"}
}
