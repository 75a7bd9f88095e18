package warmup

import (
	"math/rand"
	"sync"
	"time"
)

// AccountUsage is the slice of step storage the limiter reads: when an
// account first acted, and how much it has executed in a time window.
type AccountUsage interface {
	AccountFirstAction(accountID uint) (*time.Time, error)
	CountExecutedSince(accountID uint, from, to time.Time) (int64, error)
}

// Decision is the limiter's verdict for one claimed step.
type Decision struct {
	Admit          bool
	WarmupDay      int
	DailyCap       int
	SentToday      int
	NextEligibleAt time.Time // set only on deferral
}

// Limiter enforces the warmup ramp per sender account. Account lookups
// are cached for the duration of one scheduling pass, and admissions
// count against the cached total so a single pass cannot overrun the cap.
// The store stays untouched; callers persist any rescheduling themselves.
type Limiter struct {
	usage AccountUsage
	rng   *rand.Rand

	mu    sync.Mutex
	first map[uint]time.Time
	sent  map[uint]int
}

func NewLimiter(usage AccountUsage, rng *rand.Rand) *Limiter {
	return &Limiter{
		usage: usage,
		rng:   rng,
		first: make(map[uint]time.Time),
		sent:  make(map[uint]int),
	}
}

// BeginPass drops cached account state so the next Admit reads fresh
// usage from the store.
func (l *Limiter) BeginPass() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.first = make(map[uint]time.Time)
	l.sent = make(map[uint]int)
}

// Admit decides whether the account may perform one more action at now.
// A deferred decision carries the next slot at which the account could
// be served again.
func (l *Limiter) Admit(accountID uint, now time.Time) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	first, ok := l.first[accountID]
	if !ok {
		t, err := l.usage.AccountFirstAction(accountID)
		if err != nil {
			return Decision{}, err
		}
		if t != nil {
			first = *t
		}
		l.first[accountID] = first
	}

	day := Day(first, now)
	limit, err := DailyLimit(day)
	if err != nil {
		return Decision{}, err
	}

	sent, ok := l.sent[accountID]
	if !ok {
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		n, err := l.usage.CountExecutedSince(accountID, dayStart, now)
		if err != nil {
			return Decision{}, err
		}
		sent = int(n)
		l.sent[accountID] = sent
	}

	d := Decision{WarmupDay: day, DailyCap: limit, SentToday: sent}
	if sent < limit {
		d.Admit = true
		l.sent[accountID] = sent + 1
		return d, nil
	}

	d.NextEligibleAt = BusinessWindowSlot(now, 1, l.rng)
	return d, nil
}
