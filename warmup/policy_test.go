package warmup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyLimit_RampsWeekly(t *testing.T) {
	cases := []struct {
		day  int
		want int
	}{
		{0, 5},
		{6, 5},
		{7, 10},
		{13, 10},
		{14, 15},
		{20, 15},
		{21, 20},
		{27, 20},
		{28, 25},
		{100, 25},
	}

	for _, tc := range cases {
		got, err := DailyLimit(tc.day)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "day %d", tc.day)
	}
}

func TestDailyLimit_NegativeDay(t *testing.T) {
	_, err := DailyLimit(-1)
	assert.ErrorIs(t, err, ErrInvalidWarmupDay)
}

func TestDailyLimit_MonotoneAndBounded(t *testing.T) {
	allowed := map[int]bool{5: true, 10: true, 15: true, 20: true, 25: true}

	prev := 0
	for day := 0; day <= 365; day++ {
		limit, err := DailyLimit(day)
		require.NoError(t, err)
		assert.True(t, allowed[limit], "day %d yielded %d", day, limit)
		assert.GreaterOrEqual(t, limit, prev, "allowance shrank on day %d", day)
		prev = limit
	}
}

func TestDay_NoActionsYet(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, Day(time.Time{}, now))
}

func TestDay_CountsFullDaysSinceFirstAction(t *testing.T) {
	first := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, 0, Day(first, first))
	assert.Equal(t, 0, Day(first, first.Add(23*time.Hour)))
	assert.Equal(t, 1, Day(first, first.Add(25*time.Hour)))
	assert.Equal(t, 7, Day(first, first.AddDate(0, 0, 7)))
	assert.Equal(t, 30, Day(first, first.AddDate(0, 0, 30)))
}

func TestDay_ClockBeforeFirstAction(t *testing.T) {
	first := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, Day(first, first.Add(-time.Hour)))
}
