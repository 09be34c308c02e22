package models

import "time"

// Stop is one ordered boarding point; FareFromStart is the cumulative fare
// from the route origin.
type Stop struct {
	Order         int      `json:"order"`
	Name          string   `json:"name"`
	FareFromStart int64    `json:"fareFromStart"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
}

type Route struct {
	ID               int64     `json:"id"`
	OperatorID       int64     `json:"operatorId"`
	Name             string    `json:"name"`
	Origin           string    `json:"origin"`
	Destination      string    `json:"destination"`
	DistanceKm       float64   `json:"distanceKm"`
	EstimatedMinutes int       `json:"estimatedMinutes"`
	Price            int64     `json:"price"`
	IsActive         bool      `json:"isActive"`
	Stops            []Stop    `json:"stops"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}
