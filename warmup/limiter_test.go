package warmup

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUsage is an in-memory stand-in for the step store's account usage
// queries. It records the window passed to CountExecutedSince so tests
// can check the limiter counts against the right day boundary.
type fakeUsage struct {
	first    map[uint]time.Time
	executed map[uint]int64

	countCalls int
	lastFrom   time.Time
	lastTo     time.Time
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{
		first:    make(map[uint]time.Time),
		executed: make(map[uint]int64),
	}
}

func (f *fakeUsage) AccountFirstAction(accountID uint) (*time.Time, error) {
	if t, ok := f.first[accountID]; ok {
		return &t, nil
	}
	return nil, nil
}

func (f *fakeUsage) CountExecutedSince(accountID uint, from, to time.Time) (int64, error) {
	f.countCalls++
	f.lastFrom = from
	f.lastTo = to
	return f.executed[accountID], nil
}

func testLimiter(usage *fakeUsage) *Limiter {
	return NewLimiter(usage, rand.New(rand.NewSource(1)))
}

func TestLimiter_NewAccountAdmitsFive(t *testing.T) {
	usage := newFakeUsage()
	l := testLimiter(usage)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		d, err := l.Admit(1, now)
		require.NoError(t, err)
		assert.True(t, d.Admit, "admission %d", i+1)
		assert.Equal(t, 0, d.WarmupDay)
		assert.Equal(t, 5, d.DailyCap)
		assert.Equal(t, i, d.SentToday)
	}

	d, err := l.Admit(1, now)
	require.NoError(t, err)
	assert.False(t, d.Admit)
	assert.Equal(t, 5, d.SentToday)
	assert.False(t, d.NextEligibleAt.IsZero())
}

func TestLimiter_CountsStoredSends(t *testing.T) {
	usage := newFakeUsage()
	usage.executed[7] = 3
	l := testLimiter(usage)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	d, err := l.Admit(7, now)
	require.NoError(t, err)
	assert.True(t, d.Admit)
	assert.Equal(t, 3, d.SentToday)

	d, err = l.Admit(7, now)
	require.NoError(t, err)
	assert.True(t, d.Admit)

	d, err = l.Admit(7, now)
	require.NoError(t, err)
	assert.False(t, d.Admit, "cap of 5 reached")
}

func TestLimiter_WarmedUpAccountGetsFullAllowance(t *testing.T) {
	usage := newFakeUsage()
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	usage.first[1] = now.AddDate(0, 0, -60)
	l := testLimiter(usage)

	d, err := l.Admit(1, now)
	require.NoError(t, err)
	assert.True(t, d.Admit)
	assert.Equal(t, 60, d.WarmupDay)
	assert.Equal(t, MaxDailyLimit, d.DailyCap)
}

func TestLimiter_MidRampAccountDefersAtCap(t *testing.T) {
	usage := newFakeUsage()
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	usage.first[1] = now.AddDate(0, 0, -10)
	usage.executed[1] = 10
	l := testLimiter(usage)

	d, err := l.Admit(1, now)
	require.NoError(t, err)
	assert.False(t, d.Admit)
	assert.Equal(t, 10, d.WarmupDay)
	assert.Equal(t, 10, d.DailyCap)
	assert.True(t, d.NextEligibleAt.After(now))
}

func TestLimiter_CountsFromLocalMidnight(t *testing.T) {
	usage := newFakeUsage()
	l := testLimiter(usage)
	now := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)

	_, err := l.Admit(1, now)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), usage.lastFrom)
	assert.Equal(t, now, usage.lastTo)
}

func TestLimiter_CachesWithinPass(t *testing.T) {
	usage := newFakeUsage()
	l := testLimiter(usage)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	_, err := l.Admit(1, now)
	require.NoError(t, err)
	_, err = l.Admit(1, now)
	require.NoError(t, err)
	assert.Equal(t, 1, usage.countCalls, "one store read per account per pass")

	l.BeginPass()
	_, err = l.Admit(1, now)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.countCalls, "BeginPass forces a fresh read")
}

func TestLimiter_AdmissionsReserveAgainstCap(t *testing.T) {
	// The store reports 4 sends all pass long; without the in-pass
	// reservation a burst of admissions would blow through the cap.
	usage := newFakeUsage()
	usage.executed[1] = 4
	l := testLimiter(usage)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	d, err := l.Admit(1, now)
	require.NoError(t, err)
	assert.True(t, d.Admit)

	d, err = l.Admit(1, now)
	require.NoError(t, err)
	assert.False(t, d.Admit)
}

func TestLimiter_DeferTargetsNextDayWindow(t *testing.T) {
	usage := newFakeUsage()
	usage.executed[1] = 5
	l := testLimiter(usage)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	d, err := l.Admit(1, now)
	require.NoError(t, err)
	require.False(t, d.Admit)

	assert.Equal(t, 11, d.NextEligibleAt.Day())
	assert.GreaterOrEqual(t, d.NextEligibleAt.Hour(), 8)
	assert.Less(t, d.NextEligibleAt.Hour(), 21)
}

func TestLimiter_AccountsAreIndependent(t *testing.T) {
	usage := newFakeUsage()
	usage.executed[1] = 5
	l := testLimiter(usage)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	d, err := l.Admit(1, now)
	require.NoError(t, err)
	assert.False(t, d.Admit)

	d, err = l.Admit(2, now)
	require.NoError(t, err)
	assert.True(t, d.Admit, "account 2 has its own budget")
}
