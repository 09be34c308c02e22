package models

import "time"

type BookingStatus string

const (
	BookingTempReserved   BookingStatus = "temp_reserved"
	BookingPendingPayment BookingStatus = "pending_payment"
	BookingConfirmed      BookingStatus = "confirmed"
	BookingCancelled      BookingStatus = "cancelled"
)

// Booking is one seat on one schedule for one pickup/dropoff span.
type Booking struct {
	ID                int64         `json:"id"`
	Reference         string        `json:"reference"`
	ScheduleID        int64         `json:"scheduleId"`
	SeatNumber        int           `json:"seatNumber"`
	OperatorID        int64         `json:"operatorId"`
	PassengerID       *int64        `json:"passengerId,omitempty"`
	Phone             string        `json:"phone"`
	Status            BookingStatus `json:"status"`
	Pickup            string        `json:"pickup"`
	Dropoff           string        `json:"dropoff"`
	PickupOrder       int           `json:"pickupOrder"`
	DropoffOrder      int           `json:"dropoffOrder"`
	SegmentFare       int64         `json:"segmentFare"`
	PlatformFee       int64         `json:"platformFee"`
	OperatorAmount    int64         `json:"operatorAmount"`
	TotalAmount       int64         `json:"totalAmount"`
	ReservedAt        *time.Time    `json:"reservedAt,omitempty"`
	CheckoutReference string        `json:"-"`
	Receipt           string        `json:"receipt,omitempty"`
	PayerPhone        string        `json:"payerPhone,omitempty"`
	ConfirmedAt       *time.Time    `json:"confirmedAt,omitempty"`
	CreatedAt         time.Time     `json:"createdAt"`
	UpdatedAt         time.Time     `json:"updatedAt"`
}

// SeatHold is the minimal row written when a seat number is claimed.
type SeatHold struct {
	Reference  string
	ScheduleID int64
	SeatNumber int
	OperatorID int64
	ReservedAt time.Time
}

// PendingDetails enriches a held seat once it moves to pending_payment.
type PendingDetails struct {
	PassengerID    *int64
	Phone          string
	Pickup         string
	Dropoff        string
	PickupOrder    int
	DropoffOrder   int
	SegmentFare    int64
	PlatformFee    int64
	OperatorAmount int64
	TotalAmount    int64
	ReservedAt     time.Time
}

// Confirmation is what a successful payment writes onto a booking.
type Confirmation struct {
	Receipt     string
	PayerPhone  string
	ConfirmedAt time.Time
}

// SegmentSpan is the [pickup, dropoff) order range a live booking occupies.
type SegmentSpan struct {
	PickupOrder  int
	DropoffOrder int
}
