// Package ratelimit enforces the Dexcom call budget shared by every user of the deployment
package ratelimit

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/tidepool-org/dexcom-sync/common"
)

// LedgerUpdate receives the stored call timestamps and returns the ones to
// store, write is false when nothing must be written
type LedgerUpdate func(calls []time.Time) (updated []time.Time, write bool)

// Ledger is the persisted list of recent calls.
// UpdateLedger must run fn and the write in a single backend transaction,
// fn may be called again when the backend retries on conflict.
type Ledger interface {
	UpdateLedger(ctx context.Context, fn LedgerUpdate) error
}

// Config of the limiter
type Config struct {
	Ceiling int
	Window  time.Duration
	// FailOpen admits the call when the ledger is unavailable
	FailOpen bool
}

// Reservation is the answer to one call request
type Reservation struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

// Limiter is a rolling window limiter backed by a Ledger
type Limiter struct {
	logger *log.Logger
	ledger Ledger
	config Config
	clock  common.Clock
}

func NewLimiter(logger *log.Logger, ledger Ledger, config Config, clock common.Clock) *Limiter {
	if clock == nil {
		clock = common.SystemClock
	}
	return &Limiter{
		logger: logger,
		ledger: ledger,
		config: config,
		clock:  clock,
	}
}

// CheckAndReserve admits or denies one call, recording it when admitted.
// An error is only returned when the ledger fails and FailOpen is off.
func (l *Limiter) CheckAndReserve(ctx context.Context) (Reservation, error) {
	var reservation Reservation
	err := l.ledger.UpdateLedger(ctx, func(calls []time.Time) ([]time.Time, bool) {
		// fn may run several times, only the last run counts
		now := l.clock()
		fresh := l.freshCalls(calls, now)
		remaining := l.config.Ceiling - len(fresh)
		reservation = Reservation{
			Remaining: remaining,
			ResetTime: l.resetTime(fresh, now),
		}
		if remaining <= 0 {
			reservation.Remaining = 0
			return nil, false
		}
		reservation.Allowed = true
		reservation.Remaining = remaining - 1
		return append(fresh, now), true
	})
	if err == nil {
		return reservation, nil
	}

	if !l.config.FailOpen {
		return Reservation{}, fmt.Errorf("rate ledger unavailable: %w", err)
	}
	common.DegradedPath(common.PolicyRateLimiterFailOpen)
	l.logger.Printf("%s: rate ledger unavailable, admitting the call: %v", common.PolicyRateLimiterFailOpen, err)
	now := l.clock()
	return Reservation{
		Allowed:   true,
		Remaining: l.config.Ceiling,
		ResetTime: now.Add(l.config.Window),
	}, nil
}

// freshCalls keeps the calls newer than now - window
func (l *Limiter) freshCalls(calls []time.Time, now time.Time) []time.Time {
	threshold := now.Add(-l.config.Window)
	fresh := make([]time.Time, 0, len(calls)+1)
	for _, call := range calls {
		if call.After(threshold) {
			fresh = append(fresh, call)
		}
	}
	return fresh
}

// resetTime is when the oldest fresh call leaves the window
func (l *Limiter) resetTime(fresh []time.Time, now time.Time) time.Time {
	if len(fresh) == 0 {
		return now.Add(l.config.Window)
	}
	oldest := fresh[0]
	for _, call := range fresh[1:] {
		if call.Before(oldest) {
			oldest = call
		}
	}
	return oldest.Add(l.config.Window)
}
