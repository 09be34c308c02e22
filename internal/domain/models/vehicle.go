package models

import "time"

type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleScheduled   VehicleStatus = "scheduled"
	VehicleInTransit   VehicleStatus = "in_transit"
	VehicleMaintenance VehicleStatus = "maintenance"
)

type VehicleType string

const (
	VehicleMatatu VehicleType = "matatu"
	VehicleBus    VehicleType = "bus"
)

const (
	MinVehicleCapacity = 14
	MaxVehicleCapacity = 60
)

// DefaultCapacity returns the seat count used when none is supplied.
func (t VehicleType) DefaultCapacity() int {
	if t == VehicleBus {
		return 33
	}
	return 14
}

type Vehicle struct {
	ID         int64         `json:"id"`
	OperatorID int64         `json:"operatorId"`
	Plate      string        `json:"plate"`
	Type       VehicleType   `json:"type"`
	Capacity   int           `json:"capacity"`
	Status     VehicleStatus `json:"status"`
	DriverID   *int64        `json:"driverId,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
}
