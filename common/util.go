package common

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type timeItKey struct{}

// timings collects named durations for one request, printed by the api middleware
type timings struct {
	mu      sync.Mutex
	started map[string]time.Time
	results []string
}

// IsValidUUID check if the uuid is valid
func IsValidUUID(u string) bool {
	_, err := uuid.Parse(u)
	return err == nil
}

// TimeItContext returns a context able to record timers
func TimeItContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, timeItKey{}, &timings{started: make(map[string]time.Time)})
}

func timingsFrom(ctx context.Context) *timings {
	t, _ := ctx.Value(timeItKey{}).(*timings)
	return t
}

// TimeIt starts the timer name, no-op when the context has no timers
func TimeIt(ctx context.Context, name string) {
	t := timingsFrom(ctx)
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, present := t.started[name]; present {
		return
	}
	t.started[name] = time.Now()
}

// TimeEnd stops the timer name and returns its duration in ms
func TimeEnd(ctx context.Context, name string) int64 {
	t := timingsFrom(ctx)
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	start, present := t.started[name]
	if !present {
		return 0
	}
	delete(t.started, name)
	dur := time.Since(start).Milliseconds()
	t.results = append(t.results, fmt.Sprintf("%s:%dms", name, dur))
	return dur
}

// TimeResults formats the stopped timers
func TimeResults(ctx context.Context) string {
	t := timingsFrom(ctx)
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.results, " ")
}
