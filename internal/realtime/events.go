package realtime

import "strconv"

// Event names pushed to subscribers.
const (
	EventSeatBooked      = "seat-booked"
	EventDriverAssigned  = "driver-assigned"
	EventQueueUpdate     = "queue-update"
	EventVehicleReturned = "vehicle-returned"
)

func ScheduleRoom(id int64) string { return "schedule:" + strconv.FormatInt(id, 10) }
func DriverRoom(id int64) string   { return "driver:" + strconv.FormatInt(id, 10) }
func OperatorRoom(id int64) string { return "operator:" + strconv.FormatInt(id, 10) }

// Message is the envelope written to websocket clients.
type Message struct {
	Event     string `json:"event"`
	Room      string `json:"room"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Discard drops every event. Used when no hub is wired.
type Discard struct{}

func (Discard) Publish(string, string, any) {}
