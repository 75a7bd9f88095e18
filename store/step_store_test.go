package store

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"reachloop/config"
	"reachloop/models"
)

func openTestStore(t *testing.T) *StepStore {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "steps.db") + "?_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, config.MigrateDB(db))

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return NewStepStore(db)
}

// seedStep inserts one scheduled step, filling in whatever the test left
// at its zero value. Tests seeding several steps must vary the contact or
// step index themselves to stay clear of the dedupe index.
func seedStep(t *testing.T, st *StepStore, step models.ScheduledStep) *models.ScheduledStep {
	t.Helper()

	if step.WorkspaceID == 0 {
		step.WorkspaceID = 1
	}
	if step.CampaignID == 0 {
		step.CampaignID = 1
	}
	if step.ContactID == 0 {
		step.ContactID = 1
	}
	if step.SenderAccountID == 0 {
		step.SenderAccountID = 1
	}
	if step.Channel == "" {
		step.Channel = models.ChannelEmail
	}
	if step.Status == "" {
		step.Status = models.StepStatusPending
	}
	if step.ScheduledAt.IsZero() {
		step.ScheduledAt = time.Now().Add(-time.Minute)
	}
	require.NoError(t, st.DB().Create(&step).Error)
	return &step
}

func stepByID(t *testing.T, st *StepStore, id uint) *models.ScheduledStep {
	t.Helper()
	step, err := st.GetStep(id)
	require.NoError(t, err)
	return step
}

func TestEnqueue_IgnoresDuplicates(t *testing.T) {
	st := openTestStore(t)
	base := models.ScheduledStep{
		WorkspaceID: 1, CampaignID: 1, SenderAccountID: 1,
		Channel: models.ChannelEmail, Status: models.StepStatusPending,
		ScheduledAt: time.Now(),
	}

	first := base
	first.ContactID, first.StepIndex = 1, 0
	second := base
	second.ContactID, second.StepIndex = 2, 0

	n, err := st.Enqueue([]models.ScheduledStep{first, second})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	// Re-scheduling replays the same rows plus one genuinely new step.
	third := base
	third.ContactID, third.StepIndex = 1, 1
	n, err = st.Enqueue([]models.ScheduledStep{first, second, third})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	var total int64
	require.NoError(t, st.DB().Model(&models.ScheduledStep{}).Count(&total).Error)
	assert.EqualValues(t, 3, total)
}

func TestEnqueue_EmptyBatch(t *testing.T) {
	st := openTestStore(t)
	n, err := st.Enqueue(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDue_ReturnsOldestFirst(t *testing.T) {
	st := openTestStore(t)
	now := time.Now()

	newer := seedStep(t, st, models.ScheduledStep{ContactID: 1, ScheduledAt: now.Add(-time.Hour)})
	older := seedStep(t, st, models.ScheduledStep{ContactID: 2, ScheduledAt: now.Add(-2 * time.Hour)})
	approved := seedStep(t, st, models.ScheduledStep{ContactID: 3, Status: models.StepStatusApproved, ScheduledAt: now.Add(-30 * time.Minute)})
	seedStep(t, st, models.ScheduledStep{ContactID: 4, ScheduledAt: now.Add(time.Hour)})
	seedStep(t, st, models.ScheduledStep{ContactID: 5, Status: models.StepStatusDeferred, ScheduledAt: now.Add(-time.Hour)})
	seedStep(t, st, models.ScheduledStep{ContactID: 6, Status: models.StepStatusFailed, ScheduledAt: now.Add(-time.Hour)})

	due, err := st.Due(now, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	assert.Equal(t, older.ID, due[0].ID)
	assert.Equal(t, newer.ID, due[1].ID)
	assert.Equal(t, approved.ID, due[2].ID)
}

func TestDue_HonorsLimit(t *testing.T) {
	st := openTestStore(t)
	now := time.Now()
	for i := uint(1); i <= 5; i++ {
		seedStep(t, st, models.ScheduledStep{ContactID: i, ScheduledAt: now.Add(-time.Hour)})
	}

	due, err := st.Due(now, 2)
	require.NoError(t, err)
	assert.Len(t, due, 2)
}

func TestDue_HoldsBackWhileContactChannelExecuting(t *testing.T) {
	st := openTestStore(t)
	now := time.Now()

	seedStep(t, st, models.ScheduledStep{ContactID: 1, StepIndex: 0, Status: models.StepStatusExecuting})
	blocked := seedStep(t, st, models.ScheduledStep{ContactID: 1, StepIndex: 1, ScheduledAt: now.Add(-time.Hour)})
	otherChannel := seedStep(t, st, models.ScheduledStep{ContactID: 1, StepIndex: 2, Channel: models.ChannelSMS, ScheduledAt: now.Add(-time.Hour)})
	otherContact := seedStep(t, st, models.ScheduledStep{ContactID: 2, StepIndex: 0, ScheduledAt: now.Add(-time.Hour)})

	due, err := st.Due(now, 10)
	require.NoError(t, err)

	ids := make(map[uint]bool, len(due))
	for _, s := range due {
		ids[s.ID] = true
	}
	assert.False(t, ids[blocked.ID], "same contact and channel must wait")
	assert.True(t, ids[otherChannel.ID])
	assert.True(t, ids[otherContact.ID])
}

func TestClaim_MovesToExecuting(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{})

	ok, err := st.Claim(step.ID, models.StepStatusPending)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, models.StepStatusExecuting, stepByID(t, st, step.ID).Status)
}

func TestClaim_FailsOnStatusMismatch(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Status: models.StepStatusApproved})

	ok, err := st.Claim(step.ID, models.StepStatusPending)
	require.NoError(t, err)
	assert.False(t, ok, "the stored status moved on, the claim must lose")
}

func TestClaim_OneWinnerUnderContention(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{})

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.Claim(step.ID, models.StepStatusPending)
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
	assert.Equal(t, models.StepStatusExecuting, stepByID(t, st, step.ID).Status)
}

func TestMarkSent_RecordsExecution(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Status: models.StepStatusExecuting})
	executedAt := time.Now()

	require.NoError(t, st.MarkSent(step.ID, executedAt, "msg-1"))

	got := stepByID(t, st, step.ID)
	assert.Equal(t, models.StepStatusSent, got.Status)
	require.NotNil(t, got.ExecutedAt)
	assert.WithinDuration(t, executedAt, *got.ExecutedAt, time.Second)
	assert.Equal(t, "msg-1", got.MessageID)
	assert.Empty(t, got.ErrorCode)
	assert.Nil(t, got.ErrorMessage)
}

func TestMarkSent_RequiresExecuting(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{})

	err := st.MarkSent(step.ID, time.Now(), "msg-1")
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestMarkCompleted_RecordsExecution(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Channel: models.ChannelPhone, Status: models.StepStatusExecuting})

	require.NoError(t, st.MarkCompleted(step.ID, time.Now(), "task-1"))
	assert.Equal(t, models.StepStatusCompleted, stepByID(t, st, step.ID).Status)
}

func TestMarkFailed_KeepsCodeAndMessage(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Status: models.StepStatusExecuting})

	require.NoError(t, st.MarkFailed(step.ID, time.Now(), models.ErrCodeSessionExpired, "login expired"))

	got := stepByID(t, st, step.ID)
	assert.Equal(t, models.StepStatusFailed, got.Status)
	assert.Equal(t, models.ErrCodeSessionExpired, got.ErrorCode)
	require.NotNil(t, got.ErrorMessage)
	assert.Equal(t, "login expired", *got.ErrorMessage)
}

func TestMarkFailed_EmptyCodeBecomesUnknown(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Status: models.StepStatusExecuting})

	require.NoError(t, st.MarkFailed(step.ID, time.Now(), "", "something broke"))
	assert.Equal(t, models.ErrCodeUnknown, stepByID(t, st, step.ID).ErrorCode)
}

func TestReleaseToPending_ReschedulesWithoutError(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Status: models.StepStatusExecuting})
	slot := time.Now().Add(3 * time.Hour)

	require.NoError(t, st.ReleaseToPending(step.ID, slot))

	got := stepByID(t, st, step.ID)
	assert.Equal(t, models.StepStatusPending, got.Status)
	assert.WithinDuration(t, slot, got.ScheduledAt, time.Second)
	assert.Empty(t, got.ErrorCode)
	assert.Nil(t, got.ErrorMessage)
	assert.Nil(t, got.ExecutedAt)
}

func TestSkipExecuting_KeepsReason(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Status: models.StepStatusExecuting})

	require.NoError(t, st.SkipExecuting(step.ID, "contact opted out"))

	got := stepByID(t, st, step.ID)
	assert.Equal(t, models.StepStatusSkipped, got.Status)
	require.NotNil(t, got.SkipReason)
	assert.Equal(t, "contact opted out", *got.SkipReason)
}

func TestMarkRequiresApproval(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Status: models.StepStatusExecuting})

	require.NoError(t, st.MarkRequiresApproval(step.ID))
	assert.Equal(t, models.StepStatusRequiresApproval, stepByID(t, st, step.ID).Status)
}

func TestApprove_ReleasesHeldStep(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Status: models.StepStatusRequiresApproval})
	now := time.Now()

	require.NoError(t, st.Approve(step.ID, 42, now))

	got := stepByID(t, st, step.ID)
	assert.Equal(t, models.StepStatusApproved, got.Status)
	require.NotNil(t, got.ReviewedBy)
	assert.EqualValues(t, 42, *got.ReviewedBy)
	require.NotNil(t, got.ReviewedAt)
	assert.WithinDuration(t, now, *got.ReviewedAt, time.Second)
}

func TestApprove_OnlyFromHeldState(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{})

	err := st.Approve(step.ID, 42, time.Now())
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestApprove_MissingStep(t *testing.T) {
	st := openTestStore(t)
	err := st.Approve(9999, 42, time.Now())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestReject_SkipsWithReason(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Status: models.StepStatusRequiresApproval})

	require.NoError(t, st.Reject(step.ID, 42, time.Now(), "off brand"))

	got := stepByID(t, st, step.ID)
	assert.Equal(t, models.StepStatusSkipped, got.Status)
	require.NotNil(t, got.SkipReason)
	assert.Equal(t, "off brand", *got.SkipReason)

	// A rejected step can never be approved afterwards.
	err := st.Approve(step.ID, 42, time.Now())
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestResetFailed_StaggersAndClearsErrors(t *testing.T) {
	st := openTestStore(t)
	executed := time.Now().Add(-time.Hour)
	msg := "boom"
	a := seedStep(t, st, models.ScheduledStep{ContactID: 1, Status: models.StepStatusFailed, ExecutedAt: &executed, ErrorCode: models.ErrCodeProxyError, ErrorMessage: &msg})
	b := seedStep(t, st, models.ScheduledStep{ContactID: 2, Status: models.StepStatusFailed, ExecutedAt: &executed, ErrorCode: models.ErrCodeProxyError, ErrorMessage: &msg})

	now := time.Now()
	n, err := st.ResetFailed(1, ResetFilter{}, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	first := stepByID(t, st, a.ID)
	second := stepByID(t, st, b.ID)
	assert.Equal(t, models.StepStatusPending, first.Status)
	assert.Empty(t, first.ErrorCode)
	assert.Nil(t, first.ErrorMessage)
	assert.Nil(t, first.ExecutedAt)
	assert.WithinDuration(t, now, first.ScheduledAt, time.Second)
	assert.WithinDuration(t, now.Add(90*time.Second), second.ScheduledAt, time.Second)

	// Nothing is failed anymore, so a replayed reset is a no-op.
	n, err = st.ResetFailed(1, ResetFilter{}, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResetFailed_FiltersByErrorCode(t *testing.T) {
	st := openTestStore(t)
	expired := seedStep(t, st, models.ScheduledStep{ContactID: 1, Status: models.StepStatusFailed, ErrorCode: models.ErrCodeSessionExpired})
	proxied := seedStep(t, st, models.ScheduledStep{ContactID: 2, Status: models.StepStatusFailed, ErrorCode: models.ErrCodeProxyError})

	n, err := st.ResetFailed(1, ResetFilter{ErrorCode: models.ErrCodeSessionExpired}, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.Equal(t, models.StepStatusPending, stepByID(t, st, expired.ID).Status)
	assert.Equal(t, models.StepStatusFailed, stepByID(t, st, proxied.ID).Status)
}

func TestResetFailed_FiltersByContacts(t *testing.T) {
	st := openTestStore(t)
	wanted := seedStep(t, st, models.ScheduledStep{ContactID: 1, Status: models.StepStatusFailed, ErrorCode: models.ErrCodeOther})
	other := seedStep(t, st, models.ScheduledStep{ContactID: 2, Status: models.StepStatusFailed, ErrorCode: models.ErrCodeOther})

	n, err := st.ResetFailed(1, ResetFilter{ContactIDs: []uint{1}}, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.Equal(t, models.StepStatusPending, stepByID(t, st, wanted.ID).Status)
	assert.Equal(t, models.StepStatusFailed, stepByID(t, st, other.ID).Status)
}

func TestResetFailed_ScopedToCampaign(t *testing.T) {
	st := openTestStore(t)
	mine := seedStep(t, st, models.ScheduledStep{CampaignID: 1, ContactID: 1, Status: models.StepStatusFailed, ErrorCode: models.ErrCodeOther})
	theirs := seedStep(t, st, models.ScheduledStep{CampaignID: 2, ContactID: 1, Status: models.StepStatusFailed, ErrorCode: models.ErrCodeOther})

	n, err := st.ResetFailed(1, ResetFilter{}, time.Now())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.Equal(t, models.StepStatusPending, stepByID(t, st, mine.ID).Status)
	assert.Equal(t, models.StepStatusFailed, stepByID(t, st, theirs.ID).Status)
}

func TestResetStaleExecuting_RecoversOldClaims(t *testing.T) {
	st := openTestStore(t)
	now := time.Now()

	stale := seedStep(t, st, models.ScheduledStep{ContactID: 1, Status: models.StepStatusExecuting})
	fresh := seedStep(t, st, models.ScheduledStep{ContactID: 2, Status: models.StepStatusExecuting})
	require.NoError(t, st.DB().Model(&models.ScheduledStep{}).
		Where("id = ?", stale.ID).
		UpdateColumn("updated_at", now.Add(-10*time.Minute)).Error)

	n, err := st.ResetStaleExecuting(now, 5*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	assert.Equal(t, models.StepStatusPending, stepByID(t, st, stale.ID).Status)
	assert.Equal(t, models.StepStatusExecuting, stepByID(t, st, fresh.ID).Status)
}

func TestParkAndUnpark(t *testing.T) {
	st := openTestStore(t)
	pending := seedStep(t, st, models.ScheduledStep{ContactID: 1})
	approved := seedStep(t, st, models.ScheduledStep{ContactID: 2, Status: models.StepStatusApproved})

	n, err := st.ParkPending(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, models.StepStatusDeferred, stepByID(t, st, pending.ID).Status)
	assert.Equal(t, models.StepStatusApproved, stepByID(t, st, approved.ID).Status)

	n, err = st.UnparkDeferred(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	assert.Equal(t, models.StepStatusPending, stepByID(t, st, pending.ID).Status)
}

func TestDeleteCampaignData_RemovesStepsAndEvents(t *testing.T) {
	st := openTestStore(t)
	mine := seedStep(t, st, models.ScheduledStep{CampaignID: 1, ContactID: 1})
	theirs := seedStep(t, st, models.ScheduledStep{CampaignID: 2, ContactID: 1})
	require.NoError(t, st.RecordEvent(&models.EngagementEvent{
		WorkspaceID: 1, CampaignID: 1, ContactID: 1, StepID: mine.ID,
		Channel: models.ChannelEmail, EventType: models.EventTypeSent, OccurredAt: time.Now(),
	}))

	require.NoError(t, st.DeleteCampaignData(1))

	var steps, events int64
	require.NoError(t, st.DB().Unscoped().Model(&models.ScheduledStep{}).Where("campaign_id = ?", 1).Count(&steps).Error)
	require.NoError(t, st.DB().Unscoped().Model(&models.EngagementEvent{}).Where("campaign_id = ?", 1).Count(&events).Error)
	assert.Zero(t, steps)
	assert.Zero(t, events)

	_, err := st.GetStep(theirs.ID)
	assert.NoError(t, err, "other campaigns keep their rows")
}
