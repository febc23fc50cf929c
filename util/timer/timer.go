package timer

import "time"

// SetInterval calls f every duration until the returned ticker is stopped.
func SetInterval(duration time.Duration, f func()) *time.Ticker {
	t := time.NewTicker(duration)
	go func() {
		for range t.C {
			f()
		}
	}()
	return t
}
