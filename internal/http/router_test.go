package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	stdhttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	intconfig "matsched/internal/config"
	"matsched/internal/domain"
	"matsched/internal/domain/models"
	h "matsched/internal/http/handlers"
	"matsched/internal/payments"
	"matsched/internal/queue"
	"matsched/internal/realtime"
	"matsched/internal/repositories/memstore"
	"matsched/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	store  *memstore.Store
	auth   services.AuthService
	admin  string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memstore.New()
	auth := services.AuthService{Store: st, Secret: []byte("router-test")}
	dispatch := services.DispatchService{Store: st, Queue: queue.NewMemoryStore(), Notifier: realtime.Discard{}}
	hs := &h.Handlers{
		Store:     st,
		Auth:      auth,
		Routes:    services.RouteService{Store: st},
		Vehicles:  services.VehicleService{Store: st},
		Schedules: services.ScheduleService{Store: st, Recycler: dispatch},
		Bookings:  services.BookingService{Store: st, Payments: payments.Loopback{}},
		Payments:  services.PaymentService{Store: st, Notifier: realtime.Discard{}, Recycler: dispatch},
		Dispatch:  dispatch,
		Docs:      services.DocsService{Store: st},

		CallbackToken: "cb-secret",
	}

	op := int64(7)
	adminUser := models.User{Name: "Admin", Email: "admin@sacco.test", Role: domain.RoleAdmin, OperatorID: &op}
	require.NoError(t, st.Users().CreateUser(context.Background(), &adminUser))
	token, err := auth.Issue(adminUser)
	require.NoError(t, err)

	return &testServer{t: t, router: NewRouter(intconfig.Env{}, hs), store: st, auth: auth, admin: token}
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// seedSchedule creates a CBD -> Juja route, a vehicle and a schedule through
// the admin API.
func (s *testServer) seedSchedule() models.Schedule {
	s.t.Helper()
	w := s.do(stdhttp.MethodPost, "/api/admin/routes", s.admin, services.RouteInput{
		Origin: "CBD", Destination: "Juja", EstimatedMinutes: 60, Price: 120,
		Stops: []models.Stop{{Name: "CBD"}, {Name: "Thika Rd", FareFromStart: 80}, {Name: "Juja", FareFromStart: 120}},
	})
	require.Equal(s.t, stdhttp.StatusCreated, w.Code, w.Body.String())
	route := decode[models.Route](s.t, w)

	w = s.do(stdhttp.MethodPost, "/api/admin/vehicles", s.admin, services.VehicleInput{Plate: "KDA 001A"})
	require.Equal(s.t, stdhttp.StatusCreated, w.Code, w.Body.String())
	veh := decode[models.Vehicle](s.t, w)

	w = s.do(stdhttp.MethodPost, "/api/admin/schedules", s.admin, services.CreateScheduleInput{
		RouteID: route.ID, VehicleID: veh.ID, DepartureTime: time.Now().Add(time.Hour),
	})
	require.Equal(s.t, stdhttp.StatusCreated, w.Code, w.Body.String())
	return decode[models.Schedule](s.t, w)
}

func TestBookPayAndTicketOverHTTP(t *testing.T) {
	s := newTestServer(t)
	sched := s.seedSchedule()

	w := s.do(stdhttp.MethodGet, fmt.Sprintf("/api/routes/%d/quote?pickup=Thika%%20Rd&dropoff=Juja", sched.RouteID), "", nil)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"segmentFare":40`)

	w = s.do(stdhttp.MethodPost, "/api/bookings", "", services.BookingRequest{
		ScheduleID: sched.ID, Phone: "0712345678", Pickup: "CBD", Dropoff: "Juja",
	})
	require.Equal(t, stdhttp.StatusCreated, w.Code, w.Body.String())
	res := decode[services.BookingResult](t, w)
	assert.Equal(t, models.BookingPendingPayment, res.Booking.Status)
	assert.Equal(t, 1, res.Booking.SeatNumber)

	stored, err := s.store.Bookings().GetBooking(context.Background(), res.Booking.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.CheckoutReference)
	assert.NotContains(t, w.Body.String(), stored.CheckoutReference)

	callback := stkCallback(stored.CheckoutReference, res.Booking.TotalAmount, "NLJ7RT61SV")
	w = s.do(stdhttp.MethodPost, "/api/payments/mpesa/callback?token=cb-secret", "", callback)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, w.Body.String())

	w = s.do(stdhttp.MethodGet, fmt.Sprintf("/api/bookings/%d", res.Booking.ID), s.admin, nil)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.BookingConfirmed, decode[models.Booking](t, w).Status)

	w = s.do(stdhttp.MethodGet, fmt.Sprintf("/api/schedules/%d", sched.ID), "", nil)
	assert.Equal(t, sched.SeatsAvailable-1, decode[models.Schedule](t, w).SeatsAvailable)

	w = s.do(stdhttp.MethodGet, fmt.Sprintf("/api/bookings/%d/ticket", res.Booking.ID), s.admin, nil)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))
}

func stkCallback(checkoutID string, amount int64, receipt string) map[string]any {
	var items []map[string]any
	if amount > 0 {
		items = append(items, map[string]any{"Name": "Amount", "Value": amount})
	}
	if receipt != "" {
		items = append(items, map[string]any{"Name": "MpesaReceiptNumber", "Value": receipt})
	}
	items = append(items, map[string]any{"Name": "PhoneNumber", "Value": 254712345678})
	return map[string]any{"Body": map[string]any{"stkCallback": map[string]any{
		"MerchantRequestID": "m-1",
		"CheckoutRequestID": checkoutID,
		"ResultCode":        0,
		"ResultDesc":        "The service request is processed successfully.",
		"CallbackMetadata":  map[string]any{"Item": items},
	}}}
}

func TestCallbackNeedsTokenAndPaymentDetails(t *testing.T) {
	s := newTestServer(t)
	sched := s.seedSchedule()

	w := s.do(stdhttp.MethodPost, "/api/bookings", "", services.BookingRequest{
		ScheduleID: sched.ID, Phone: "0712345678", Pickup: "CBD", Dropoff: "Juja",
	})
	require.Equal(t, stdhttp.StatusCreated, w.Code, w.Body.String())
	res := decode[services.BookingResult](t, w)
	stored, err := s.store.Bookings().GetBooking(context.Background(), res.Booking.ID)
	require.NoError(t, err)

	paid := stkCallback(stored.CheckoutReference, res.Booking.TotalAmount, "NLJ7RT61SV")
	for _, path := range []string{
		"/api/payments/mpesa/callback",
		"/api/payments/mpesa/callback?token=",
		"/api/payments/mpesa/callback?token=guess",
	} {
		w = s.do(stdhttp.MethodPost, path, "", paid)
		assert.Equal(t, stdhttp.StatusNotFound, w.Code, path)
	}

	// A success without amount or receipt is acknowledged but changes nothing.
	w = s.do(stdhttp.MethodPost, "/api/payments/mpesa/callback?token=cb-secret", "", stkCallback(stored.CheckoutReference, 0, ""))
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.JSONEq(t, `{"ResultCode":0,"ResultDesc":"Accepted"}`, w.Body.String())

	got, err := s.store.Bookings().GetBooking(context.Background(), res.Booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingPendingPayment, got.Status)

	w = s.do(stdhttp.MethodGet, fmt.Sprintf("/api/schedules/%d", sched.ID), "", nil)
	assert.Equal(t, sched.SeatsAvailable, decode[models.Schedule](t, w).SeatsAvailable)
}

func TestManualConfirmationRequiresOperatorAdmin(t *testing.T) {
	s := newTestServer(t)
	sched := s.seedSchedule()

	w := s.do(stdhttp.MethodPost, "/api/bookings", "", services.BookingRequest{
		ScheduleID: sched.ID, Phone: "0712345678", Pickup: "CBD", Dropoff: "Thika Rd",
	})
	require.Equal(t, stdhttp.StatusCreated, w.Code, w.Body.String())
	res := decode[services.BookingResult](t, w)

	path := fmt.Sprintf("/api/bookings/%d/confirm", res.Booking.ID)
	body := map[string]any{"resultCode": 0, "amount": res.Booking.TotalAmount - 1, "receipt": "CASH-1"}
	w = s.do(stdhttp.MethodPost, path, s.admin, body)
	require.Equal(t, stdhttp.StatusBadRequest, w.Code)
	assert.Equal(t, "underpayment", decode[h.ErrorResponse](t, w).Code)

	body["amount"] = res.Booking.TotalAmount
	w = s.do(stdhttp.MethodPost, path, s.admin, body)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, services.OutcomeConfirmed, decode[services.ConfirmationResult](t, w).Outcome)

	w = s.do(stdhttp.MethodPost, path, s.admin, body)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.Equal(t, services.OutcomeIgnored, decode[services.ConfirmationResult](t, w).Outcome)

	w = s.do(stdhttp.MethodPost, path, "", body)
	assert.Equal(t, stdhttp.StatusUnauthorized, w.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	sched := s.seedSchedule()

	w := s.do(stdhttp.MethodPost, "/api/bookings", "", services.BookingRequest{
		ScheduleID: sched.ID, Phone: "12345", Pickup: "CBD", Dropoff: "Juja",
	})
	assert.Equal(t, stdhttp.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_phone_number", decode[h.ErrorResponse](t, w).Code)

	w = s.do(stdhttp.MethodPost, "/api/bookings", "", services.BookingRequest{
		ScheduleID: sched.ID, Phone: "0712345678", Pickup: "Juja", Dropoff: "CBD",
	})
	assert.Equal(t, stdhttp.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_segment", decode[h.ErrorResponse](t, w).Code)

	w = s.do(stdhttp.MethodGet, "/api/schedules/999", "", nil)
	assert.Equal(t, stdhttp.StatusNotFound, w.Code)

	w = s.do(stdhttp.MethodGet, "/api/schedules/abc", "", nil)
	assert.Equal(t, stdhttp.StatusBadRequest, w.Code)

	w = s.do(stdhttp.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@sacco.test", "password": "nope"})
	assert.Equal(t, stdhttp.StatusUnauthorized, w.Code)

	w = s.do(stdhttp.MethodGet, "/api/jobs", "", nil)
	assert.Equal(t, stdhttp.StatusUnauthorized, w.Code)
	w = s.do(stdhttp.MethodGet, "/api/jobs", s.admin, nil)
	assert.Equal(t, stdhttp.StatusOK, w.Code)

	w = s.do(stdhttp.MethodGet, "/api/nowhere", "", nil)
	assert.Equal(t, stdhttp.StatusNotFound, w.Code)
}

func TestDriverLoginJoinsQueue(t *testing.T) {
	s := newTestServer(t)
	sched := s.seedSchedule()

	w := s.do(stdhttp.MethodPost, "/api/auth/register", s.admin, services.RegisterInput{
		Name: "Otieno", Email: "otieno@sacco.test", Phone: "0711000222", Password: "secret1", Role: domain.RoleDriver,
	})
	require.Equal(t, stdhttp.StatusCreated, w.Code, w.Body.String())

	// The only vehicle is already on a schedule, so the driver waits first in line.
	w = s.do(stdhttp.MethodPost, "/api/auth/login", "", map[string]any{
		"email": "otieno@sacco.test", "password": "secret1", "route_id": sched.RouteID,
	})
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	login := decode[struct {
		Token string               `json:"token"`
		Queue services.QueueStatus `json:"queue"`
	}](t, w)
	require.NotEmpty(t, login.Token)
	assert.Equal(t, queue.EntryWaiting, login.Queue.Status)
	assert.Equal(t, 1, login.Queue.Position)

	w = s.do(stdhttp.MethodGet, fmt.Sprintf("/api/driver/queue?routeId=%d", sched.RouteID), login.Token, nil)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, decode[services.QueueStatus](t, w).Position)

	w = s.do(stdhttp.MethodGet, fmt.Sprintf("/api/admin/queue?routeId=%d", sched.RouteID), s.admin, nil)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"driverId"`)

	w = s.do(stdhttp.MethodGet, fmt.Sprintf("/api/admin/queue?routeId=%d", sched.RouteID), login.Token, nil)
	assert.Equal(t, stdhttp.StatusForbidden, w.Code)

	// Cancelling the schedule frees the vehicle, which goes to the waiting driver.
	w = s.do(stdhttp.MethodPost, fmt.Sprintf("/api/admin/schedules/%d/cancel", sched.ID), s.admin, nil)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())

	w = s.do(stdhttp.MethodGet, fmt.Sprintf("/api/driver/queue?routeId=%d", sched.RouteID), login.Token, nil)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	st := decode[services.QueueStatus](t, w)
	assert.Equal(t, queue.EntryAssigned, st.Status)
	require.NotNil(t, st.Schedule)
	assert.NotEqual(t, sched.ID, st.Schedule.ID)
}

func TestTripSearchAndAdminListings(t *testing.T) {
	s := newTestServer(t)
	sched := s.seedSchedule()

	w := s.do(stdhttp.MethodGet, "/api/schedules/search?from=cbd&to=JUJA", "", nil)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	found := decode[struct {
		Trips []services.TripOption `json:"trips"`
	}](t, w)
	require.Len(t, found.Trips, 1)
	assert.Equal(t, sched.ID, found.Trips[0].ID)
	assert.Equal(t, "KDA 001A", found.Trips[0].Plate)
	assert.InDelta(t, 60, found.Trips[0].WaitMinutes, 1)

	w = s.do(stdhttp.MethodGet, "/api/schedules/search?from=Juja&to=CBD", "", nil)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.JSONEq(t, `{"trips":[]}`, w.Body.String())

	w = s.do(stdhttp.MethodGet, "/api/schedules/search?to=Juja", "", nil)
	assert.Equal(t, stdhttp.StatusBadRequest, w.Code)
	w = s.do(stdhttp.MethodGet, "/api/schedules/search?from=CBD&to=Juja&at=tomorrow", "", nil)
	assert.Equal(t, stdhttp.StatusBadRequest, w.Code)

	w = s.do(stdhttp.MethodGet, "/api/admin/routes", s.admin, nil)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"origin":"CBD"`)

	w = s.do(stdhttp.MethodGet, "/api/admin/vehicles", s.admin, nil)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	vs := decode[struct {
		Vehicles []models.Vehicle `json:"vehicles"`
	}](t, w)
	require.Len(t, vs.Vehicles, 1)
	assert.Equal(t, models.VehicleScheduled, vs.Vehicles[0].Status)

	// A vehicle serving a schedule cannot go to maintenance.
	path := fmt.Sprintf("/api/admin/vehicles/%d", vs.Vehicles[0].ID)
	w = s.do(stdhttp.MethodPut, path, s.admin, map[string]any{"plate": "KDA 001A", "status": "maintenance"})
	assert.Equal(t, stdhttp.StatusConflict, w.Code, w.Body.String())

	w = s.do(stdhttp.MethodGet, "/api/admin/schedules/past?page=1", s.admin, nil)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"page":1,"schedules":[],"hasMore":false}`, w.Body.String())

	w = s.do(stdhttp.MethodGet, "/api/admin/schedules/past?page=x", s.admin, nil)
	assert.Equal(t, stdhttp.StatusBadRequest, w.Code)

	w = s.do(stdhttp.MethodGet, "/api/admin/schedules", "", nil)
	assert.Equal(t, stdhttp.StatusUnauthorized, w.Code)

	// Deleting the route hides it from new schedules but not from readers.
	w = s.do(stdhttp.MethodDelete, fmt.Sprintf("/api/admin/routes/%d", sched.RouteID), s.admin, nil)
	require.Equal(t, stdhttp.StatusNoContent, w.Code, w.Body.String())
	w = s.do(stdhttp.MethodGet, fmt.Sprintf("/api/routes/%d", sched.RouteID), "", nil)
	require.Equal(t, stdhttp.StatusOK, w.Code)
	assert.False(t, decode[models.Route](t, w).IsActive)

	w = s.do(stdhttp.MethodPost, "/api/admin/vehicles", s.admin, services.VehicleInput{Plate: "KDB 002B"})
	require.Equal(t, stdhttp.StatusCreated, w.Code, w.Body.String())
	spare := decode[models.Vehicle](t, w)
	w = s.do(stdhttp.MethodPost, "/api/admin/schedules", s.admin, services.CreateScheduleInput{
		RouteID: sched.RouteID, VehicleID: spare.ID, DepartureTime: time.Now().Add(time.Hour),
	})
	assert.Equal(t, stdhttp.StatusBadRequest, w.Code, w.Body.String())

	w = s.do(stdhttp.MethodPut, fmt.Sprintf("/api/admin/vehicles/%d", spare.ID), s.admin, map[string]any{"plate": "KDB 002B", "status": "maintenance"})
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, models.VehicleMaintenance, decode[models.Vehicle](t, w).Status)
}

func TestDriverSeesOwnSchedule(t *testing.T) {
	s := newTestServer(t)
	sched := s.seedSchedule()

	w := s.do(stdhttp.MethodPost, "/api/auth/register", s.admin, services.RegisterInput{
		Name: "Wanjiru", Email: "wanjiru@sacco.test", Phone: "0711000333", Password: "secret1", Role: domain.RoleDriver,
	})
	require.Equal(t, stdhttp.StatusCreated, w.Code, w.Body.String())

	w = s.do(stdhttp.MethodPost, "/api/auth/login", "", map[string]any{"email": "wanjiru@sacco.test", "password": "secret1"})
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	login := decode[struct {
		Token string     `json:"token"`
		User  h.AuthUser `json:"user"`
	}](t, w)
	token, driverID := login.Token, login.User.ID

	w = s.do(stdhttp.MethodPost, "/api/admin/vehicles", s.admin, services.VehicleInput{Plate: "KDC 003C"})
	require.Equal(t, stdhttp.StatusCreated, w.Code, w.Body.String())
	veh := decode[models.Vehicle](t, w)

	// Midday UTC keeps the trip inside today whatever time the test runs.
	midday := time.Now().UTC().Truncate(24 * time.Hour).Add(12 * time.Hour)
	w = s.do(stdhttp.MethodPost, "/api/admin/schedules", s.admin, services.CreateScheduleInput{
		RouteID: sched.RouteID, VehicleID: veh.ID, DepartureTime: midday, DriverID: &driverID,
	})
	require.Equal(t, stdhttp.StatusCreated, w.Code, w.Body.String())
	mine := decode[models.Schedule](t, w)

	w = s.do(stdhttp.MethodGet, "/api/driver/schedule", token, nil)
	require.Equal(t, stdhttp.StatusOK, w.Code, w.Body.String())
	got := decode[struct {
		Trips []services.DriverTrip `json:"trips"`
	}](t, w)
	require.Len(t, got.Trips, 1)
	assert.Equal(t, mine.ID, got.Trips[0].ID)
	assert.Equal(t, "KDC 003C", got.Trips[0].Plate)
	assert.Zero(t, got.Trips[0].BookedSeats)

	w = s.do(stdhttp.MethodGet, "/api/driver/schedule", s.admin, nil)
	assert.Equal(t, stdhttp.StatusForbidden, w.Code)
}
