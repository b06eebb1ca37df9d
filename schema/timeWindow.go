package schema

import (
	"fmt"
	"time"
)

// SandboxFallbackSpan is the span used when a request falls outside the sandbox data
const SandboxFallbackSpan = 12 * time.Hour

// DefaultSelector is used when the caller gives no dates
const DefaultSelector = "24h"

var selectors = map[string]time.Duration{
	"1h":  time.Hour,
	"24h": 24 * time.Hour,
	"3d":  3 * 24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"14d": 14 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
	"90d": 90 * 24 * time.Hour,
}

// TimeWindow is a [Start, End] time interval
type TimeWindow struct {
	Start time.Time `json:"startDate" bson:"start"`
	End   time.Time `json:"endDate" bson:"end"`
}

func NewTimeWindow(start time.Time, end time.Time) TimeWindow {
	return TimeWindow{Start: start, End: end}
}

// ResolveSelector converts a logical selector ("24h", "7d"...) into the window ending at now
func ResolveSelector(selector string, now time.Time) (TimeWindow, error) {
	if selector == "" {
		selector = DefaultSelector
	}
	span, ok := selectors[selector]
	if !ok {
		return TimeWindow{}, fmt.Errorf("unknown range selector %q", selector)
	}
	return NewTimeWindow(now.Add(-span), now), nil
}

// LastWindow is the window of length span ending at now
func LastWindow(span time.Duration, now time.Time) TimeWindow {
	return NewTimeWindow(now.Add(-span), now)
}

func (w TimeWindow) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w TimeWindow) Equal(w2 TimeWindow) bool {
	return w.Start.Equal(w2.Start) && w.End.Equal(w2.End)
}

// Contains is true when w2 lies entirely inside w
func (w TimeWindow) Contains(w2 TimeWindow) bool {
	return TimeAfterOrEqual(w2.Start, w.Start) && TimeBeforeOrEqual(w2.End, w.End)
}

// OverLaps is true when both windows share more than a single instant
func (w TimeWindow) OverLaps(w2 TimeWindow) bool {
	return w.Start.Before(w2.End) && w2.Start.Before(w.End)
}

// Intersect returns the common part of both windows, only meaningful when they overlap
func (w TimeWindow) Intersect(w2 TimeWindow) TimeWindow {
	return NewTimeWindow(TimeMax(w.Start, w2.Start), TimeMin(w.End, w2.End))
}

// Latest returns the last span of w, or w itself when shorter
func (w TimeWindow) Latest(span time.Duration) TimeWindow {
	return NewTimeWindow(w.End.Add(-DurationMin(span, w.Duration())), w.End)
}

// FitInto moves the requested window w into the available one.
//
// Inside: unchanged. Partial overlap: the intersection. Outside: the latest
// SandboxFallbackSpan of available. The boolean reports an adjustment.
func (w TimeWindow) FitInto(available TimeWindow) (TimeWindow, bool) {
	if available.Contains(w) {
		return w, false
	}
	if w.OverLaps(available) {
		return w.Intersect(available), true
	}
	return available.Latest(SandboxFallbackSpan), true
}
