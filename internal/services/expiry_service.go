package services

import (
	"context"
	"fmt"
	"time"

	"matsched/internal/domain"
	"matsched/internal/domain/models"
	"matsched/internal/repositories"
	"matsched/internal/utils"
)

const (
	DefaultHoldTimeout    = 5 * time.Minute
	DefaultPendingTimeout = 15 * time.Minute
)

// ExpiryService deletes seat holds that were never paid for.
type ExpiryService struct {
	Store repositories.Store
	// HoldTimeout applies to temp_reserved rows, PendingTimeout to
	// pending_payment rows whose payment result never arrived.
	HoldTimeout    time.Duration
	PendingTimeout time.Duration
	Now            func() time.Time
}

// Sweep removes expired holds and returns how many rows it deleted. Each
// delete is conditional on status and age, so concurrent sweeps are safe.
func (s ExpiryService) Sweep(ctx context.Context) (int, error) {
	now := nowOr(s.Now)
	hold := s.HoldTimeout
	if hold <= 0 {
		hold = DefaultHoldTimeout
	}
	pending := s.PendingTimeout
	if pending <= 0 {
		pending = DefaultPendingTimeout
	}
	if pending < hold {
		pending = hold
	}

	held, err := s.Store.Bookings().DeleteStaleHolds(ctx, models.BookingTempReserved, now.Add(-hold))
	if err != nil {
		return 0, domain.InternalError{Msg: "expire temp holds", Err: err}
	}
	unpaid, err := s.Store.Bookings().DeleteStaleHolds(ctx, models.BookingPendingPayment, now.Add(-pending))
	if err != nil {
		return int(held), domain.InternalError{Msg: "expire unpaid bookings", Err: err}
	}
	if held+unpaid > 0 {
		utils.LogEvent(utils.RequestIDFrom(ctx), "expiry", "holds_expired", fmt.Sprintf("temp_reserved=%d pending_payment=%d", held, unpaid))
	}
	return int(held + unpaid), nil
}
