package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"reachloop/models"
)

func TestGetStep_NotFound(t *testing.T) {
	st := openTestStore(t)
	_, err := st.GetStep(9999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestStepByMessageID(t *testing.T) {
	st := openTestStore(t)
	step := seedStep(t, st, models.ScheduledStep{Status: models.StepStatusSent, MessageID: "msg-abc"})

	got, err := st.StepByMessageID("msg-abc")
	require.NoError(t, err)
	assert.Equal(t, step.ID, got.ID)

	_, err = st.StepByMessageID("msg-unknown")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestListSteps_FiltersAndPages(t *testing.T) {
	st := openTestStore(t)
	now := time.Now()
	for i := uint(1); i <= 5; i++ {
		seedStep(t, st, models.ScheduledStep{ContactID: i, ScheduledAt: now.Add(time.Duration(i) * time.Minute)})
	}
	failed := seedStep(t, st, models.ScheduledStep{ContactID: 6, Status: models.StepStatusFailed, ErrorCode: models.ErrCodeProxyError})

	steps, total, err := st.ListSteps(1, "", "", 1, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 6, total)
	assert.Len(t, steps, 3)

	steps, total, err = st.ListSteps(1, "", "", 2, 3)
	require.NoError(t, err)
	assert.EqualValues(t, 6, total)
	assert.Len(t, steps, 3)

	steps, total, err = st.ListSteps(1, models.StepStatusFailed, "", 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, steps, 1)
	assert.Equal(t, failed.ID, steps[0].ID)

	_, total, err = st.ListSteps(1, models.StepStatusFailed, models.ErrCodeSessionExpired, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestAccountFirstAction(t *testing.T) {
	st := openTestStore(t)

	first, err := st.AccountFirstAction(1)
	require.NoError(t, err)
	assert.Nil(t, first, "no executed steps yet")

	early := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	seedStep(t, st, models.ScheduledStep{ContactID: 1, Status: models.StepStatusSent, ExecutedAt: &late})
	seedStep(t, st, models.ScheduledStep{ContactID: 2, Status: models.StepStatusCompleted, ExecutedAt: &early})
	seedStep(t, st, models.ScheduledStep{ContactID: 3, Status: models.StepStatusFailed, ExecutedAt: &early})

	first, err = st.AccountFirstAction(1)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.True(t, first.Equal(early), "earliest successful execution wins, failures do not count")
}

func TestCountExecutedSince_WindowIsHalfOpen(t *testing.T) {
	st := openTestStore(t)
	from := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	to := from.Add(12 * time.Hour)

	inside := from.Add(time.Hour)
	atEnd := to
	before := from.Add(-time.Minute)
	seedStep(t, st, models.ScheduledStep{ContactID: 1, Status: models.StepStatusSent, ExecutedAt: &inside})
	seedStep(t, st, models.ScheduledStep{ContactID: 2, Status: models.StepStatusCompleted, ExecutedAt: &inside})
	seedStep(t, st, models.ScheduledStep{ContactID: 3, Status: models.StepStatusSent, ExecutedAt: &atEnd})
	seedStep(t, st, models.ScheduledStep{ContactID: 4, Status: models.StepStatusSent, ExecutedAt: &before})
	seedStep(t, st, models.ScheduledStep{ContactID: 5, Status: models.StepStatusFailed, ExecutedAt: &inside})
	seedStep(t, st, models.ScheduledStep{ContactID: 6, SenderAccountID: 2, Status: models.StepStatusSent, ExecutedAt: &inside})

	n, err := st.CountExecutedSince(1, from, to)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStatusCounts(t *testing.T) {
	st := openTestStore(t)
	seedStep(t, st, models.ScheduledStep{ContactID: 1})
	seedStep(t, st, models.ScheduledStep{ContactID: 2})
	seedStep(t, st, models.ScheduledStep{ContactID: 3, Status: models.StepStatusSent})
	seedStep(t, st, models.ScheduledStep{ContactID: 4, Status: models.StepStatusFailed})
	seedStep(t, st, models.ScheduledStep{CampaignID: 2, ContactID: 1})

	counts, err := st.StatusCounts(1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, counts[models.StepStatusPending])
	assert.EqualValues(t, 1, counts[models.StepStatusSent])
	assert.EqualValues(t, 1, counts[models.StepStatusFailed])
	assert.Zero(t, counts[models.StepStatusExecuting])
}

func TestFailureCounts_OrderedByVolume(t *testing.T) {
	st := openTestStore(t)
	for i := uint(1); i <= 3; i++ {
		seedStep(t, st, models.ScheduledStep{ContactID: i, Status: models.StepStatusFailed, ErrorCode: models.ErrCodeSessionExpired})
	}
	seedStep(t, st, models.ScheduledStep{ContactID: 4, Status: models.StepStatusFailed, ErrorCode: models.ErrCodeProxyError})
	seedStep(t, st, models.ScheduledStep{ContactID: 5, Status: models.StepStatusSent, ErrorCode: ""})

	counts, err := st.FailureCounts(1)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, models.ErrCodeSessionExpired, counts[0].ErrorCode)
	assert.EqualValues(t, 3, counts[0].Count)
	assert.Equal(t, models.ErrCodeProxyError, counts[1].ErrorCode)
	assert.EqualValues(t, 1, counts[1].Count)
}

func TestCampaignSendCounts_GroupsByStepIndex(t *testing.T) {
	st := openTestStore(t)
	seedStep(t, st, models.ScheduledStep{ContactID: 1, StepIndex: 0, Status: models.StepStatusSent})
	seedStep(t, st, models.ScheduledStep{ContactID: 2, StepIndex: 0, Status: models.StepStatusSent})
	seedStep(t, st, models.ScheduledStep{ContactID: 1, StepIndex: 1, Channel: models.ChannelPhone, Status: models.StepStatusCompleted})
	seedStep(t, st, models.ScheduledStep{ContactID: 2, StepIndex: 1, Channel: models.ChannelPhone})

	counts, err := st.CampaignSendCounts(1)
	require.NoError(t, err)
	require.Len(t, counts, 2)

	byIndex := make(map[int]StepSendCount, len(counts))
	for _, c := range counts {
		byIndex[c.StepIndex] = c
	}
	assert.EqualValues(t, 2, byIndex[0].Sent)
	assert.Equal(t, models.ChannelEmail, byIndex[0].Channel)
	assert.EqualValues(t, 1, byIndex[1].Sent, "pending steps are not sends")
	assert.Equal(t, models.ChannelPhone, byIndex[1].Channel)
}

func TestCampaignEventCounts(t *testing.T) {
	st := openTestStore(t)
	now := time.Now()
	for i := 0; i < 2; i++ {
		require.NoError(t, st.RecordEvent(&models.EngagementEvent{
			WorkspaceID: 1, CampaignID: 1, ContactID: uint(i + 1), StepID: uint(i + 1), StepIndex: 0,
			Channel: models.ChannelEmail, EventType: models.EventTypeOpened, OccurredAt: now,
		}))
	}
	require.NoError(t, st.RecordEvent(&models.EngagementEvent{
		WorkspaceID: 1, CampaignID: 1, ContactID: 1, StepID: 1, StepIndex: 0,
		Channel: models.ChannelEmail, EventType: models.EventTypeReplied, OccurredAt: now,
	}))

	counts, err := st.CampaignEventCounts(1)
	require.NoError(t, err)
	require.Len(t, counts, 2)

	byType := make(map[string]int64, len(counts))
	for _, c := range counts {
		byType[c.EventType] = c.Count
	}
	assert.EqualValues(t, 2, byType[models.EventTypeOpened])
	assert.EqualValues(t, 1, byType[models.EventTypeReplied])
}

func TestEventVolume_CountsWindow(t *testing.T) {
	st := openTestStore(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	record := func(at time.Time) {
		require.NoError(t, st.RecordEvent(&models.EngagementEvent{
			WorkspaceID: 1, CampaignID: 1, ContactID: 1, StepID: 1,
			Channel: models.ChannelEmail, EventType: models.EventTypeOpened, OccurredAt: at,
		}))
	}
	record(now.Add(-2 * time.Hour))
	record(now.Add(-23 * time.Hour))
	record(now.Add(-30 * time.Hour))

	last, err := st.EventVolume(1, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, last)

	prior, err := st.EventVolume(1, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, prior)
}

func TestHasEvent(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.RecordEvent(&models.EngagementEvent{
		WorkspaceID: 1, CampaignID: 1, ContactID: 1, StepID: 5,
		Channel: models.ChannelEmail, EventType: models.EventTypeReplied, OccurredAt: time.Now(),
	}))

	has, err := st.HasEvent(5, models.EventTypeReplied)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = st.HasEvent(5, models.EventTypeBounced)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestContactStatusCounts_JoinsCampaignMembers(t *testing.T) {
	st := openTestStore(t)

	replied := models.Contact{WorkspaceID: 1, Email: "a@example.com", Status: models.ContactStatusReplied}
	pending := models.Contact{WorkspaceID: 1, Email: "b@example.com"}
	outsider := models.Contact{WorkspaceID: 1, Email: "c@example.com"}
	require.NoError(t, st.DB().Create(&replied).Error)
	require.NoError(t, st.DB().Create(&pending).Error)
	require.NoError(t, st.DB().Create(&outsider).Error)

	require.NoError(t, st.DB().Create(&models.CampaignContact{CampaignID: 1, ContactID: replied.ID}).Error)
	require.NoError(t, st.DB().Create(&models.CampaignContact{CampaignID: 1, ContactID: pending.ID}).Error)
	require.NoError(t, st.DB().Create(&models.CampaignContact{CampaignID: 2, ContactID: outsider.ID}).Error)

	counts, err := st.ContactStatusCounts(1)
	require.NoError(t, err)
	assert.EqualValues(t, 1, counts[models.ContactStatusReplied])
	assert.EqualValues(t, 1, counts[models.ContactStatusPending])

	var total int64
	for _, n := range counts {
		total += n
	}
	assert.EqualValues(t, 2, total)
}

func TestMarkContactContacted(t *testing.T) {
	st := openTestStore(t)
	contact := models.Contact{WorkspaceID: 1, Email: "a@example.com"}
	require.NoError(t, st.DB().Create(&contact).Error)
	now := time.Now()

	require.NoError(t, st.MarkContactContacted(contact.ID, now))

	var got models.Contact
	require.NoError(t, st.DB().First(&got, contact.ID).Error)
	assert.Equal(t, models.ContactStatusContacted, got.Status)
	require.NotNil(t, got.LastContactedAt)
	assert.WithinDuration(t, now, *got.LastContactedAt, time.Second)
}

func TestMarkContactContacted_NeverDowngrades(t *testing.T) {
	st := openTestStore(t)
	contact := models.Contact{WorkspaceID: 1, Email: "a@example.com", Status: models.ContactStatusReplied}
	require.NoError(t, st.DB().Create(&contact).Error)

	require.NoError(t, st.MarkContactContacted(contact.ID, time.Now()))

	var got models.Contact
	require.NoError(t, st.DB().First(&got, contact.ID).Error)
	assert.Equal(t, models.ContactStatusReplied, got.Status, "a later send keeps the replied state")
	assert.NotNil(t, got.LastContactedAt, "the touch is still stamped")
}

func TestAdvanceContactStatus(t *testing.T) {
	st := openTestStore(t)
	contact := models.Contact{WorkspaceID: 1, Email: "a@example.com", Status: models.ContactStatusContacted}
	require.NoError(t, st.DB().Create(&contact).Error)

	require.NoError(t, st.AdvanceContactStatus(contact.ID, models.ContactStatusReplied))
	var got models.Contact
	require.NoError(t, st.DB().First(&got, contact.ID).Error)
	assert.Equal(t, models.ContactStatusReplied, got.Status)

	require.NoError(t, st.AdvanceContactStatus(contact.ID, models.ContactStatusContacted))
	require.NoError(t, st.DB().First(&got, contact.ID).Error)
	assert.Equal(t, models.ContactStatusReplied, got.Status, "downgrades are ignored")
}

func TestContactByEmail_CaseInsensitive(t *testing.T) {
	st := openTestStore(t)
	contact := models.Contact{WorkspaceID: 1, Email: "Jane.Doe@Example.com"}
	require.NoError(t, st.DB().Create(&contact).Error)

	got, err := st.ContactByEmail(1, "jane.doe@example.com")
	require.NoError(t, err)
	assert.Equal(t, contact.ID, got.ID)

	_, err = st.ContactByEmail(2, "jane.doe@example.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound, "lookups stay inside the workspace")
}

func TestLatestExecutedStepForContact(t *testing.T) {
	st := openTestStore(t)
	early := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)

	seedStep(t, st, models.ScheduledStep{ContactID: 1, StepIndex: 0, Status: models.StepStatusSent, ExecutedAt: &early})
	latest := seedStep(t, st, models.ScheduledStep{ContactID: 1, StepIndex: 1, Status: models.StepStatusSent, ExecutedAt: &late})
	seedStep(t, st, models.ScheduledStep{ContactID: 1, StepIndex: 2})

	got, err := st.LatestExecutedStepForContact(1)
	require.NoError(t, err)
	assert.Equal(t, latest.ID, got.ID)

	_, err = st.LatestExecutedStepForContact(42)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCampaignStepDefs_OrderedBySequence(t *testing.T) {
	st := openTestStore(t)
	require.NoError(t, st.DB().Create(&models.CampaignStep{CampaignID: 1, StepIndex: 1, Channel: models.ChannelSMS}).Error)
	require.NoError(t, st.DB().Create(&models.CampaignStep{CampaignID: 1, StepIndex: 0, Channel: models.ChannelEmail}).Error)
	require.NoError(t, st.DB().Create(&models.CampaignStep{CampaignID: 2, StepIndex: 0, Channel: models.ChannelEmail}).Error)

	defs, err := st.CampaignStepDefs(1)
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, 0, defs[0].StepIndex)
	assert.Equal(t, 1, defs[1].StepIndex)
}
