package schema

import "time"

func TimeBeforeOrEqual(t time.Time, t2 time.Time) bool {
	return t.Before(t2) || t.Equal(t2)
}

func TimeAfterOrEqual(t time.Time, t2 time.Time) bool {
	return t.After(t2) || t.Equal(t2)
}

// TimeBetween tests timeToTest in [start, end]
func TimeBetween(timeToTest time.Time, start time.Time, end time.Time) bool {
	return TimeAfterOrEqual(timeToTest, start) && TimeBeforeOrEqual(timeToTest, end)
}

func TimeMin(time1 time.Time, time2 time.Time) time.Time {
	if time2.Before(time1) {
		return time2
	}
	return time1
}

func TimeMax(time1 time.Time, time2 time.Time) time.Time {
	if time2.After(time1) {
		return time2
	}
	return time1
}

func DurationMin(d1 time.Duration, d2 time.Duration) time.Duration {
	if d2 < d1 {
		return d2
	}
	return d1
}
