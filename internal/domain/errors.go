package domain

import (
	"errors"
	"fmt"
)

// DomainError keeps backward compatibility for generic codes.
type DomainError struct {
	Code string
	Err  error
}

func (e DomainError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	if e.Code == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e DomainError) Unwrap() error {
	return e.Err
}

type NotFoundError struct {
	Resource string
	Err      error
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

func (e NotFoundError) Unwrap() error { return e.Err }

type ValidationError struct {
	Field string
	Msg   string
	Err   error
}

func (e ValidationError) Error() string {
	if e.Msg != "" && e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Msg)
	}
	if e.Msg != "" {
		return e.Msg
	}
	if e.Field != "" {
		return fmt.Sprintf("invalid %s", e.Field)
	}
	return "validation error"
}

func (e ValidationError) Unwrap() error { return e.Err }

type ConflictError struct {
	Resource string
	Msg      string
	Err      error
}

func (e ConflictError) Error() string {
	switch {
	case e.Msg != "" && e.Resource != "":
		return fmt.Sprintf("%s conflict: %s", e.Resource, e.Msg)
	case e.Msg != "":
		return e.Msg
	case e.Resource != "":
		return fmt.Sprintf("%s conflict", e.Resource)
	default:
		return "conflict"
	}
}

func (e ConflictError) Unwrap() error { return e.Err }

type InternalError struct {
	Msg string
	Err error
}

func (e InternalError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	return "internal error"
}

func (e InternalError) Unwrap() error { return e.Err }

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsConflict(err error) bool {
	var target ConflictError
	return errors.As(err, &target)
}

func IsInternal(err error) bool {
	var target InternalError
	return errors.As(err, &target)
}

// IsForbidden reports whether err carries ErrForbidden.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}

// Reasons carried inside the typed errors above. Match with errors.Is.
var (
	ErrInvalidSegment          = errors.New("invalid segment")
	ErrInvalidRoute            = errors.New("invalid route")
	ErrInvalidPhoneNumber      = errors.New("invalid phone number")
	ErrScheduleNotFound        = errors.New("schedule not found")
	ErrScheduleInactive        = errors.New("schedule inactive")
	ErrSegmentCapacityExceeded = errors.New("segment capacity exceeded")
	ErrScheduleFull            = errors.New("schedule full")
	ErrSeatCounterUnderflow    = errors.New("seat counter underflow")
	ErrInvalidTransition       = errors.New("invalid status transition")
	ErrNoVehicleAvailable      = errors.New("no vehicle available")
	ErrPaymentInitiation       = errors.New("payment initiation failed")
	ErrUnderpayment            = errors.New("amount below booking total")
	ErrForbidden               = errors.New("forbidden")
)

// ReasonCode returns a stable machine code for the reason wrapped in err.
func ReasonCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSegment):
		return "invalid_segment"
	case errors.Is(err, ErrInvalidRoute):
		return "invalid_route"
	case errors.Is(err, ErrInvalidPhoneNumber):
		return "invalid_phone_number"
	case errors.Is(err, ErrScheduleNotFound):
		return "schedule_not_found"
	case errors.Is(err, ErrScheduleInactive):
		return "schedule_inactive"
	case errors.Is(err, ErrSegmentCapacityExceeded):
		return "segment_capacity_exceeded"
	case errors.Is(err, ErrScheduleFull):
		return "schedule_full"
	case errors.Is(err, ErrSeatCounterUnderflow):
		return "seat_counter_underflow"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrNoVehicleAvailable):
		return "no_vehicle_available"
	case errors.Is(err, ErrPaymentInitiation):
		return "payment_initiation_failed"
	case errors.Is(err, ErrUnderpayment):
		return "underpayment"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	}
	return ""
}
