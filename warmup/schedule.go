package warmup

import (
	"math/rand"
	"time"
)

const (
	// RetrySpacing separates steps released back into the queue in one
	// batch, so retries never hit a shared session simultaneously.
	RetrySpacing = 90 * time.Second

	businessDayStart = 8  // 08:00 local
	businessDayEnd   = 21 // 21:00 local

	// minLeadTime is how far into the future a same-day slot must land.
	minLeadTime = 5 * time.Minute
)

// StaggerTimes spreads n steps from start in RetrySpacing increments. The
// first slot is start itself.
func StaggerTimes(start time.Time, n int) []time.Time {
	times := make([]time.Time, n)
	for i := 0; i < n; i++ {
		times[i] = start.Add(time.Duration(i) * RetrySpacing)
	}
	return times
}

// BusinessWindowSlot picks a uniformly random send time inside the 08:00
// to 21:00 local window, dayOffset days from now. For today the window
// starts no earlier than now plus minLeadTime; if that leaves no room the
// slot rolls over to tomorrow's full window.
func BusinessWindowSlot(now time.Time, dayOffset int, rng *rand.Rand) time.Time {
	day := now.AddDate(0, 0, dayOffset)
	start := time.Date(day.Year(), day.Month(), day.Day(), businessDayStart, 0, 0, 0, now.Location())
	end := time.Date(day.Year(), day.Month(), day.Day(), businessDayEnd, 0, 0, 0, now.Location())

	if dayOffset == 0 {
		if earliest := now.Add(minLeadTime); earliest.After(start) {
			start = earliest
		}
		if !start.Before(end) {
			return BusinessWindowSlot(now, 1, rng)
		}
	}

	return start.Add(time.Duration(rng.Int63n(int64(end.Sub(start)))))
}
