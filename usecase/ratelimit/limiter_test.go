package ratelimit

import (
	"context"
	"errors"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLogger = log.New(os.Stdout, "ratelimit-test ", log.LstdFlags|log.Lshortfile)

// memoryLedger serializes updates with a mutex, as a backend transaction would
type memoryLedger struct {
	mu    sync.Mutex
	calls []time.Time
	err   error
}

func (m *memoryLedger) UpdateLedger(ctx context.Context, fn LedgerUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	current := append([]time.Time(nil), m.calls...)
	if updated, write := fn(current); write {
		m.calls = updated
	}
	return nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func TestLimiter_RollingWindow(t *testing.T) {
	t0 := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)
	clock := &fakeClock{now: t0}
	ledger := &memoryLedger{}
	limiter := NewLimiter(testLogger, ledger, Config{Ceiling: 3, Window: time.Second}, clock.Now)
	ctx := context.Background()

	for i, offset := range []time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond} {
		clock.now = t0.Add(offset)
		r, err := limiter.CheckAndReserve(ctx)
		require.NoError(t, err)
		assert.True(t, r.Allowed, "call %d", i)
		assert.Equal(t, 2-i, r.Remaining)
	}

	clock.now = t0.Add(300 * time.Millisecond)
	r, err := limiter.CheckAndReserve(ctx)
	require.NoError(t, err)
	assert.False(t, r.Allowed)
	assert.Equal(t, 0, r.Remaining)
	assert.Equal(t, t0.Add(time.Second), r.ResetTime)
	assert.Len(t, ledger.calls, 3, "a denied call is not recorded")

	clock.now = t0.Add(1100 * time.Millisecond)
	r, err = limiter.CheckAndReserve(ctx)
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Len(t, ledger.calls, 2, "expired calls are dropped from the ledger")
}

func TestLimiter_EmptyLedgerResetTime(t *testing.T) {
	now := time.Date(2024, time.May, 2, 10, 0, 0, 0, time.UTC)
	limiter := NewLimiter(testLogger, &memoryLedger{}, Config{Ceiling: 60000, Window: time.Hour}, func() time.Time { return now })

	r, err := limiter.CheckAndReserve(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, 59999, r.Remaining)
	assert.Equal(t, now.Add(time.Hour), r.ResetTime)
}

func TestLimiter_FailOpen(t *testing.T) {
	ledger := &memoryLedger{err: errors.New("no primary")}
	limiter := NewLimiter(testLogger, ledger, Config{Ceiling: 5, Window: time.Hour, FailOpen: true}, nil)

	r, err := limiter.CheckAndReserve(context.Background())
	require.NoError(t, err)
	assert.True(t, r.Allowed)
	assert.Equal(t, 5, r.Remaining)
}

func TestLimiter_FailClosed(t *testing.T) {
	ledger := &memoryLedger{err: errors.New("no primary")}
	limiter := NewLimiter(testLogger, ledger, Config{Ceiling: 5, Window: time.Hour}, nil)

	r, err := limiter.CheckAndReserve(context.Background())
	assert.Error(t, err)
	assert.False(t, r.Allowed)
}

func TestLimiter_Concurrent(t *testing.T) {
	limiter := NewLimiter(testLogger, &memoryLedger{}, Config{Ceiling: 10, Window: time.Hour}, nil)
	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := limiter.CheckAndReserve(context.Background())
			if err == nil && r.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}
