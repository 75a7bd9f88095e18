package warmup

import (
	"errors"
	"time"
)

// ErrInvalidWarmupDay is returned when a caller asks for the limit of a
// negative warmup day.
var ErrInvalidWarmupDay = errors.New("warmup day must not be negative")

// MaxDailyLimit is the allowance once an account is fully warmed up.
const MaxDailyLimit = 25

// DailyLimit returns how many outreach actions an account may perform on
// the given warmup day, across every channel the account serves. New
// accounts start at 5 actions per day and step up weekly until the full
// allowance is reached on day 28.
func DailyLimit(day int) (int, error) {
	if day < 0 {
		return 0, ErrInvalidWarmupDay
	}
	switch {
	case day < 7:
		return 5, nil
	case day < 14:
		return 10, nil
	case day < 21:
		return 15, nil
	case day < 28:
		return 20, nil
	default:
		return MaxDailyLimit, nil
	}
}

// Day computes the warmup day for an account whose first successful action
// happened at firstActionAt. Day 0 is the calendar day of that first
// action; an account with no actions yet is on day 0.
func Day(firstActionAt, now time.Time) int {
	if firstActionAt.IsZero() || now.Before(firstActionAt) {
		return 0
	}
	return int(now.Sub(firstActionAt) / (24 * time.Hour))
}
