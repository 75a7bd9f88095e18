package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reachloop/models"
)

var allErrorCodes = []models.ErrorCode{
	models.ErrCodeConnectionTimeout,
	models.ErrCodeAccountNotLinked,
	models.ErrCodeSessionExpired,
	models.ErrCodeProxyError,
	models.ErrCodeMissingRecipient,
	models.ErrCodeWarmupDeferred,
	models.ErrCodeRateLimited,
	models.ErrCodeOther,
	models.ErrCodeUnknown,
}

func TestAdviceFor_CoversEveryErrorCode(t *testing.T) {
	for _, code := range allErrorCodes {
		label, rec := AdviceFor(code)
		assert.NotEmpty(t, label, "label for %s", code)
		assert.NotEmpty(t, rec, "recommendation for %s", code)
	}
}

func TestAdviceFor_UnknownCodeFallsBack(t *testing.T) {
	label, rec := AdviceFor("made_up_code")
	fallbackLabel, fallbackRec := AdviceFor(models.ErrCodeUnknown)
	assert.Equal(t, fallbackLabel, label)
	assert.Equal(t, fallbackRec, rec)
}

func TestFailureSummary_GroupsAndOrders(t *testing.T) {
	e, st := openTestEngine(t)
	executedAt := monNow.Add(-time.Hour)

	for i := uint(1); i <= 3; i++ {
		step := models.ScheduledStep{
			WorkspaceID: 1, CampaignID: 1, ContactID: i, SenderAccountID: 1,
			Channel: models.ChannelLinkedInMessage, Status: models.StepStatusFailed,
			ScheduledAt: executedAt, ExecutedAt: &executedAt, ErrorCode: models.ErrCodeSessionExpired,
		}
		require.NoError(t, st.DB().Create(&step).Error)
	}
	step := models.ScheduledStep{
		WorkspaceID: 1, CampaignID: 1, ContactID: 4, SenderAccountID: 1,
		Channel: models.ChannelEmail, Status: models.StepStatusFailed,
		ScheduledAt: executedAt, ExecutedAt: &executedAt, ErrorCode: models.ErrCodeConnectionTimeout,
	}
	require.NoError(t, st.DB().Create(&step).Error)

	summary, err := e.FailureSummary(1)
	require.NoError(t, err)
	require.Len(t, summary, 2)

	assert.Equal(t, models.ErrCodeSessionExpired, summary[0].Code)
	assert.EqualValues(t, 3, summary[0].Count)
	assert.Equal(t, "Session expired", summary[0].Label)
	assert.NotEmpty(t, summary[0].Recommendation)

	assert.Equal(t, models.ErrCodeConnectionTimeout, summary[1].Code)
	assert.EqualValues(t, 1, summary[1].Count)
}

func TestFailureSummary_NoFailures(t *testing.T) {
	e, _ := openTestEngine(t)

	summary, err := e.FailureSummary(1)
	require.NoError(t, err)
	assert.Empty(t, summary)
}
