// Package queue holds per-route-key FIFO queues of drivers waiting for a
// vehicle, together with the route-key active flag.
package queue

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type EntryStatus string

const (
	EntryWaiting  EntryStatus = "waiting"
	EntryAssigned EntryStatus = "assigned"
)

type Entry struct {
	DriverID   int64       `json:"driverId"`
	OperatorID int64       `json:"operatorId"`
	RouteID    int64       `json:"routeId"`
	VehicleID  int64       `json:"vehicleId,omitempty"`
	ScheduleID int64       `json:"scheduleId,omitempty"`
	Status     EntryStatus `json:"status"`
	JoinedAt   time.Time   `json:"joinedAt"`
}

// Store is the queue persistence contract. Callers serialize compound
// updates on a route key by holding Lock.
type Store interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
	Enqueue(ctx context.Context, key string, e Entry) error
	Head(ctx context.Context, key string) (Entry, bool, error)
	ReplaceHead(ctx context.Context, key string, e Entry) error
	Shift(ctx context.Context, key string) (Entry, bool, error)
	Entries(ctx context.Context, key string) ([]Entry, error)
	IsActive(ctx context.Context, key string) (bool, error)
	SetActive(ctx context.Context, key string, active bool) error
}

// RouteKey identifies one operator's origin/destination pair.
func RouteKey(operatorID int64, origin, destination string) string {
	return fmt.Sprintf("%d:%s:%s", operatorID, keyPart(origin), keyPart(destination))
}

func keyPart(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), "-")
}

// WaitingPositions maps each waiting driver to its 1-based place among the
// waiting entries of entries.
func WaitingPositions(entries []Entry) map[int64]int {
	out := make(map[int64]int, len(entries))
	pos := 0
	for _, e := range entries {
		if e.Status != EntryWaiting {
			continue
		}
		pos++
		out[e.DriverID] = pos
	}
	return out
}

// IndexOf returns the index of driverID in entries, or -1.
func IndexOf(entries []Entry, driverID int64) int {
	for i, e := range entries {
		if e.DriverID == driverID {
			return i
		}
	}
	return -1
}
