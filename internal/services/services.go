// Package services holds the reservation and dispatch workflows: seat
// allocation, payment confirmation, hold expiry, the driver queue and the
// return-time sweep, plus the administrative operations around them.
package services

import (
	"context"
	"errors"
	"time"

	intdb "matsched/internal/db"
	"matsched/internal/payments"
	"matsched/internal/utils"
)

// Notifier pushes best-effort events to subscribers of a room.
type Notifier interface {
	Publish(room, event string, payload any)
}

// PaymentInitiator starts a payment prompt for a booking.
type PaymentInitiator interface {
	Initiate(ctx context.Context, req payments.Request) (payments.Checkout, error)
}

// VehicleRecycler is told when the vehicle serving scheduleID on routeKey is
// no longer needed by that schedule.
type VehicleRecycler interface {
	VehicleFreed(ctx context.Context, routeKey string, scheduleID int64) error
}

type nopRecycler struct{}

func (nopRecycler) VehicleFreed(context.Context, string, int64) error { return nil }

type nopNotifier struct{}

func (nopNotifier) Publish(string, string, any) {}

const defaultTxAttempts = 3

// retryTx re-runs fn while it fails with a deadlock or lock wait timeout.
func retryTx(ctx context.Context, attempts int, fn func() error) error {
	if attempts <= 0 {
		attempts = defaultTxAttempts
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil || !intdb.IsRetryable(err) {
			return err
		}
		utils.LogEvent(utils.RequestIDFrom(ctx), "store", "tx_retry", err.Error())
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(time.Duration(i+1) * 20 * time.Millisecond):
		}
	}
	return err
}

func nowOr(now func() time.Time) time.Time {
	if now != nil {
		return now().UTC()
	}
	return utils.NowUTC()
}
