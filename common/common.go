package common

import "time"

// Clock returns the current instant, replaced in tests
type Clock func() time.Time

// SystemClock is the default Clock
func SystemClock() time.Time {
	return time.Now().UTC()
}
