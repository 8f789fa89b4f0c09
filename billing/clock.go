package billing

import "time"

// Clock supplies the current time. Production code passes nil to use the
// wall clock; tests inject a fixed instant.
type Clock func() time.Time

func orSystemClock(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// startOfDay truncates t to midnight UTC. Due dates carry no time component,
// so every date comparison in the engine goes through this.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysIn returns the number of days in the given month.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
