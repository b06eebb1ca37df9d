package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tidepool-org/dexcom-sync/schema"
	"golang.org/x/sync/errgroup"
)

const (
	// SweepWindow is the span fetched for each user by the sweep
	SweepWindow  = 60 * time.Minute
	sweepWorkers = 4

	outcomeSynced  = "synced"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

var errSweepRateLimited = errors.New("rate limited")

var sweepUsersCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name:      "sweep_users_total",
	Help:      "Number of users processed by the scheduled sweep, by outcome",
	Subsystem: "dexcomsync",
	Namespace: "dblp",
}, []string{"outcome"})

// RunSweeps sweeps every interval until ctx is done.
// A tick firing while the previous sweep still runs is skipped.
func (s *Synchronizer) RunSweeps(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var running atomic.Bool

	s.logger.Printf("sweep scheduled every %s", interval)
	for {
		select {
		case <-ctx.Done():
			s.logger.Print("sweep scheduler stopped")
			return
		case <-ticker.C:
			if !running.CompareAndSwap(false, true) {
				s.logger.Print("previous sweep still running, skipping this tick")
				continue
			}
			go func() {
				defer running.Store(false)
				s.Sweep(ctx)
			}()
		}
	}
}

// Sweep synchronizes the last SweepWindow of every connected user.
// A user failure is logged and never stops the others.
func (s *Synchronizer) Sweep(ctx context.Context) {
	start := time.Now()
	credentials, err := s.credentials.ListCredentials(ctx)
	if err != nil {
		s.logger.Printf("sweep: unable to list the credentials: %v", err)
		return
	}

	var synced, skipped, failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(sweepWorkers)
	for _, credential := range credentials {
		credential := credential
		g.Go(func() error {
			switch outcome := s.sweepUser(ctx, credential); outcome {
			case outcomeSynced:
				synced.Add(1)
			case outcomeSkipped:
				skipped.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	g.Wait()
	s.logger.Printf("sweep done in %d ms: %d users, %d synced, %d skipped, %d failed",
		time.Since(start).Milliseconds(), len(credentials), synced.Load(), skipped.Load(), failed.Load())
}

func (s *Synchronizer) sweepUser(ctx context.Context, credential schema.Credential) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Printf("[%s] sweep: panic: %v", credential.UserID, r)
			outcome = outcomeFailed
		}
		sweepUsersCounter.WithLabelValues(outcome).Inc()
	}()

	count, err := s.syncUser(ctx, credential)
	if errors.Is(err, errSweepRateLimited) {
		s.logger.Printf("[%s] sweep: rate limit reached, skipped", credential.UserID)
		return outcomeSkipped
	}
	if err != nil {
		s.logger.Printf("[%s] sweep: %v", credential.UserID, err)
		return outcomeFailed
	}
	if count > 0 {
		s.logger.Printf("[%s] sweep: %d readings stored", credential.UserID, count)
	}
	return outcomeSynced
}

func (s *Synchronizer) syncUser(ctx context.Context, credential schema.Credential) (int, error) {
	reservation, err := s.limiter.CheckAndReserve(ctx)
	if err != nil {
		return 0, fmt.Errorf("rate limit check failed: %w", err)
	}
	if !reservation.Allowed {
		return 0, errSweepRateLimited
	}

	fresh, derr := s.tokens.ensureFresh(ctx, &credential)
	if derr != nil {
		return 0, fmt.Errorf("token refresh failed: %w", derr)
	}

	readings, derr := s.syncWindow(ctx, fresh, schema.LastWindow(SweepWindow, s.clock()))
	if derr != nil {
		return 0, fmt.Errorf("sync failed: %w", derr)
	}
	syncedReadingsHistogram.WithLabelValues("sweep").Observe(float64(len(readings)))
	return len(readings), nil
}
