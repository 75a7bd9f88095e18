package store

import (
	"time"

	"reachloop/models"
)

// GetStep loads a single step by id.
func (s *StepStore) GetStep(id uint) (*models.ScheduledStep, error) {
	var step models.ScheduledStep
	if err := s.db.First(&step, id).Error; err != nil {
		return nil, err
	}
	return &step, nil
}

// StepByMessageID resolves the step behind a provider message id, used to
// attach inbound engagement events.
func (s *StepStore) StepByMessageID(messageID string) (*models.ScheduledStep, error) {
	var step models.ScheduledStep
	if err := s.db.Where("message_id = ?", messageID).Order("id ASC").First(&step).Error; err != nil {
		return nil, err
	}
	return &step, nil
}

// ListSteps pages through a campaign's steps, optionally narrowed by
// status and error code.
func (s *StepStore) ListSteps(campaignID uint, status models.StepStatus, errorCode models.ErrorCode, page, limit int) ([]models.ScheduledStep, int64, error) {
	q := s.db.Model(&models.ScheduledStep{}).Where("campaign_id = ?", campaignID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if errorCode != "" {
		q = q.Where("error_code = ?", errorCode)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var steps []models.ScheduledStep
	err := q.Order("scheduled_at ASC, id ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&steps).Error
	return steps, total, err
}

// AccountFirstAction returns when the account first successfully executed
// a step, or nil if it never has. This anchors the warmup ramp.
func (s *StepStore) AccountFirstAction(accountID uint) (*time.Time, error) {
	var row struct {
		First *time.Time
	}
	err := s.db.Model(&models.ScheduledStep{}).
		Select("MIN(executed_at) AS first").
		Where("sender_account_id = ? AND status IN ?", accountID,
			[]models.StepStatus{models.StepStatusSent, models.StepStatusCompleted}).
		Scan(&row).Error
	return row.First, err
}

// CountExecutedSince counts the account's successfully executed steps in
// [from, to), across all channels.
func (s *StepStore) CountExecutedSince(accountID uint, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.ScheduledStep{}).
		Where("sender_account_id = ? AND status IN ? AND executed_at >= ? AND executed_at < ?",
			accountID,
			[]models.StepStatus{models.StepStatusSent, models.StepStatusCompleted},
			from, to).
		Count(&n).Error
	return n, err
}

// StatusCounts tallies a campaign's steps by lifecycle state.
func (s *StepStore) StatusCounts(campaignID uint) (map[models.StepStatus]int64, error) {
	var rows []struct {
		Status models.StepStatus
		Count  int64
	}
	err := s.db.Model(&models.ScheduledStep{}).
		Select("status, COUNT(*) AS count").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[models.StepStatus]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// FailureCount is the number of failed steps sharing one error code.
type FailureCount struct {
	ErrorCode models.ErrorCode `json:"error_code"`
	Count     int64            `json:"count"`
}

// FailureCounts groups a campaign's failed steps by error category.
// Warmup deferrals never reach failed, so they cannot appear here.
func (s *StepStore) FailureCounts(campaignID uint) ([]FailureCount, error) {
	var rows []FailureCount
	err := s.db.Model(&models.ScheduledStep{}).
		Select("error_code, COUNT(*) AS count").
		Where("campaign_id = ? AND status = ?", campaignID, models.StepStatusFailed).
		Group("error_code").
		Order("count DESC").
		Scan(&rows).Error
	return rows, err
}

// StepSendCount is the delivered volume for one step index.
type StepSendCount struct {
	StepIndex int            `json:"step_index"`
	Channel   models.Channel `json:"channel"`
	Sent      int64          `json:"sent"`
}

// CampaignSendCounts returns per-step-index sent volume (sent plus
// completed) for a campaign.
func (s *StepStore) CampaignSendCounts(campaignID uint) ([]StepSendCount, error) {
	var rows []StepSendCount
	err := s.db.Model(&models.ScheduledStep{}).
		Select("step_index, channel, COUNT(*) AS sent").
		Where("campaign_id = ? AND status IN ?", campaignID,
			[]models.StepStatus{models.StepStatusSent, models.StepStatusCompleted}).
		Group("step_index, channel").
		Scan(&rows).Error
	return rows, err
}

// StepEventCount is the engagement volume for one step index and event
// type.
type StepEventCount struct {
	StepIndex int    `json:"step_index"`
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// CampaignEventCounts returns per-step-index engagement volume for a
// campaign, grouped by event type.
func (s *StepStore) CampaignEventCounts(campaignID uint) ([]StepEventCount, error) {
	var rows []StepEventCount
	err := s.db.Model(&models.EngagementEvent{}).
		Select("step_index, event_type, COUNT(*) AS count").
		Where("campaign_id = ?", campaignID).
		Group("step_index, event_type").
		Scan(&rows).Error
	return rows, err
}

// EventVolume counts a campaign's engagement events in [from, to).
func (s *StepStore) EventVolume(campaignID uint, from, to time.Time) (int64, error) {
	var n int64
	err := s.db.Model(&models.EngagementEvent{}).
		Where("campaign_id = ? AND occurred_at >= ? AND occurred_at < ?", campaignID, from, to).
		Count(&n).Error
	return n, err
}

// RecordEvent appends one engagement event to the campaign's log.
func (s *StepStore) RecordEvent(ev *models.EngagementEvent) error {
	return s.db.Create(ev).Error
}

// ContactStatusCounts tallies a campaign's attached contacts by their
// lifecycle status.
func (s *StepStore) ContactStatusCounts(campaignID uint) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := s.db.Model(&models.Contact{}).
		Select("contacts.status, COUNT(*) AS count").
		Joins("JOIN campaign_contacts ON campaign_contacts.contact_id = contacts.id AND campaign_contacts.deleted_at IS NULL").
		Where("campaign_contacts.campaign_id = ?", campaignID).
		Group("contacts.status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

// MarkContactContacted stamps an outbound touch on the contact and lifts
// its status to contacted unless a stronger state already applies.
func (s *StepStore) MarkContactContacted(contactID uint, now time.Time) error {
	var contact models.Contact
	if err := s.db.First(&contact, contactID).Error; err != nil {
		return err
	}

	updates := map[string]interface{}{"last_contacted_at": now}
	if models.ContactStatusOutranks(models.ContactStatusContacted, contact.Status) {
		updates["status"] = models.ContactStatusContacted
	}
	return s.db.Model(&contact).Updates(updates).Error
}

// AdvanceContactStatus lifts a contact to next if it outranks the current
// status. Downgrades are ignored, so a late send never flips a replied
// contact back to contacted.
func (s *StepStore) AdvanceContactStatus(contactID uint, next string) error {
	var contact models.Contact
	if err := s.db.First(&contact, contactID).Error; err != nil {
		return err
	}
	if !models.ContactStatusOutranks(next, contact.Status) {
		return nil
	}
	return s.db.Model(&contact).Update("status", next).Error
}

// CampaignStepDefs returns a campaign's step definitions in sequence
// order.
func (s *StepStore) CampaignStepDefs(campaignID uint) ([]models.CampaignStep, error) {
	var defs []models.CampaignStep
	err := s.db.Where("campaign_id = ?", campaignID).
		Order("step_index ASC").
		Find(&defs).Error
	return defs, err
}

// HasEvent reports whether the step already has an event of this type,
// which keeps repeated mailbox polls from double-counting a reply.
func (s *StepStore) HasEvent(stepID uint, eventType string) (bool, error) {
	var n int64
	err := s.db.Model(&models.EngagementEvent{}).
		Where("step_id = ? AND event_type = ?", stepID, eventType).
		Count(&n).Error
	return n > 0, err
}

// ContactByEmail finds a workspace's contact by address,
// case-insensitively.
func (s *StepStore) ContactByEmail(workspaceID uint, email string) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.Where("workspace_id = ? AND LOWER(email) = LOWER(?)", workspaceID, email).
		Order("id ASC").
		First(&contact).Error
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

// LatestExecutedStepForContact returns the contact's most recently
// executed outbound step, used to attribute replies that carry no
// usable In-Reply-To header.
func (s *StepStore) LatestExecutedStepForContact(contactID uint) (*models.ScheduledStep, error) {
	var step models.ScheduledStep
	err := s.db.Where("contact_id = ? AND status IN ?", contactID,
		[]models.StepStatus{models.StepStatusSent, models.StepStatusCompleted}).
		Order("executed_at DESC, id DESC").
		First(&step).Error
	if err != nil {
		return nil, err
	}
	return &step, nil
}
