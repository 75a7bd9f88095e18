package store

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"reachloop/models"
	"reachloop/warmup"
)

// Error message constants
var (
	ErrInvalidStateTransition = errors.New("step is not in a state that allows this transition")
)

// StepStore owns every mutation of scheduled steps. The compare-and-set
// Claim is the single point of mutual exclusion between scheduler passes,
// so all other transitions condition on the status they expect to leave.
type StepStore struct {
	db *gorm.DB
}

func NewStepStore(db *gorm.DB) *StepStore {
	return &StepStore{db: db}
}

// DB exposes the underlying handle for callers that join step data with
// other tables.
func (s *StepStore) DB() *gorm.DB {
	return s.db
}

// Enqueue inserts scheduled steps in bulk. Rows that collide on
// (campaign_id, contact_id, step_index) are ignored, so re-scheduling a
// campaign never duplicates outstanding work. Returns the number of rows
// actually inserted.
func (s *StepStore) Enqueue(steps []models.ScheduledStep) (int64, error) {
	if len(steps) == 0 {
		return 0, nil
	}
	res := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "campaign_id"},
			{Name: "contact_id"},
			{Name: "step_index"},
		},
		DoNothing: true,
	}).CreateInBatches(&steps, 200)
	return res.RowsAffected, res.Error
}

// Due returns steps eligible for execution at now, oldest due first with
// id as the tie-break. Steps whose contact already has an executing step
// on the same channel are held back until that execution settles.
func (s *StepStore) Due(now time.Time, limit int) ([]models.ScheduledStep, error) {
	var steps []models.ScheduledStep
	err := s.db.
		Where("status IN ?", []models.StepStatus{models.StepStatusPending, models.StepStatusApproved}).
		Where("scheduled_at <= ?", now).
		Where(`NOT EXISTS (
			SELECT 1 FROM scheduled_steps running
			WHERE running.deleted_at IS NULL
			AND running.status = ?
			AND running.contact_id = scheduled_steps.contact_id
			AND running.channel = scheduled_steps.channel
		)`, models.StepStatusExecuting).
		Order("scheduled_at ASC, id ASC").
		Limit(limit).
		Find(&steps).Error
	return steps, err
}

// Claim moves a step from its observed status to executing. The update is
// conditioned on the stored status still matching, so when two passes
// race on one row exactly one claim reports true.
func (s *StepStore) Claim(stepID uint, from models.StepStatus) (bool, error) {
	res := s.db.Model(&models.ScheduledStep{}).
		Where("id = ? AND status = ?", stepID, from).
		Update("status", models.StepStatusExecuting)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkRequiresApproval parks a claimed step for human review.
func (s *StepStore) MarkRequiresApproval(stepID uint) error {
	return s.transitionFromExecuting(stepID, map[string]interface{}{
		"status": models.StepStatusRequiresApproval,
	})
}

// ReleaseToPending hands a claimed step back to the queue with a new
// scheduled time. Used for warmup deferrals, which are not failures and
// leave the error fields untouched.
func (s *StepStore) ReleaseToPending(stepID uint, scheduledAt time.Time) error {
	return s.transitionFromExecuting(stepID, map[string]interface{}{
		"status":       models.StepStatusPending,
		"scheduled_at": scheduledAt,
	})
}

// MarkSent records a successful send on a wire channel.
func (s *StepStore) MarkSent(stepID uint, executedAt time.Time, messageID string) error {
	return s.transitionFromExecuting(stepID, map[string]interface{}{
		"status":      models.StepStatusSent,
		"executed_at": executedAt,
		"message_id":  messageID,
	})
}

// MarkCompleted records success on a channel that finishes instantly,
// such as logging a call task.
func (s *StepStore) MarkCompleted(stepID uint, executedAt time.Time, messageID string) error {
	return s.transitionFromExecuting(stepID, map[string]interface{}{
		"status":      models.StepStatusCompleted,
		"executed_at": executedAt,
		"message_id":  messageID,
	})
}

// SkipExecuting abandons a claimed step without sending, keeping the
// reason for audit.
func (s *StepStore) SkipExecuting(stepID uint, reason string) error {
	return s.transitionFromExecuting(stepID, map[string]interface{}{
		"status":      models.StepStatusSkipped,
		"skip_reason": reason,
	})
}

// MarkFailed records an execution failure with its classified code.
func (s *StepStore) MarkFailed(stepID uint, executedAt time.Time, code models.ErrorCode, message string) error {
	if code == "" {
		code = models.ErrCodeUnknown
	}
	return s.transitionFromExecuting(stepID, map[string]interface{}{
		"status":        models.StepStatusFailed,
		"executed_at":   executedAt,
		"error_code":    code,
		"error_message": message,
	})
}

func (s *StepStore) transitionFromExecuting(stepID uint, updates map[string]interface{}) error {
	res := s.db.Model(&models.ScheduledStep{}).
		Where("id = ? AND status = ?", stepID, models.StepStatusExecuting).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInvalidStateTransition
	}
	return nil
}

// Approve releases a step held for review back into the queue.
func (s *StepStore) Approve(stepID, reviewerID uint, now time.Time) error {
	return s.review(stepID, map[string]interface{}{
		"status":      models.StepStatusApproved,
		"reviewed_by": reviewerID,
		"reviewed_at": now,
	})
}

// Reject permanently skips a step held for review. The reason is kept for
// audit.
func (s *StepStore) Reject(stepID, reviewerID uint, now time.Time, reason string) error {
	return s.review(stepID, map[string]interface{}{
		"status":      models.StepStatusSkipped,
		"reviewed_by": reviewerID,
		"reviewed_at": now,
		"skip_reason": reason,
	})
}

func (s *StepStore) review(stepID uint, updates map[string]interface{}) error {
	res := s.db.Model(&models.ScheduledStep{}).
		Where("id = ? AND status = ?", stepID, models.StepStatusRequiresApproval).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.Model(&models.ScheduledStep{}).Where("id = ?", stepID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return gorm.ErrRecordNotFound
		}
		return ErrInvalidStateTransition
	}
	return nil
}

// ResetFilter narrows a failed-step reset to one error category and/or an
// explicit set of contacts. Zero values match everything.
type ResetFilter struct {
	ErrorCode  models.ErrorCode
	ContactIDs []uint
}

// ResetFailed returns failed steps to pending, clears their error fields
// and spreads their new scheduled times with the retry stagger. A second
// call over the same set is a no-op because the rows are no longer
// failed.
func (s *StepStore) ResetFailed(campaignID uint, filter ResetFilter, now time.Time) (int64, error) {
	return s.resetSteps(now, func(tx *gorm.DB) *gorm.DB {
		q := tx.Where("campaign_id = ? AND status = ?", campaignID, models.StepStatusFailed)
		if filter.ErrorCode != "" {
			q = q.Where("error_code = ?", filter.ErrorCode)
		}
		if len(filter.ContactIDs) > 0 {
			q = q.Where("contact_id IN ?", filter.ContactIDs)
		}
		return q
	})
}

// ResetStaleExecuting recovers steps whose executor presumably died: any
// row still executing with no update for olderThan is treated like a
// failed step and staggered back into the queue.
func (s *StepStore) ResetStaleExecuting(now time.Time, olderThan time.Duration) (int64, error) {
	cutoff := now.Add(-olderThan)
	return s.resetSteps(now, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status = ? AND updated_at < ?", models.StepStatusExecuting, cutoff)
	})
}

func (s *StepStore) resetSteps(now time.Time, scope func(*gorm.DB) *gorm.DB) (int64, error) {
	var total int64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var ids []uint
		if err := scope(tx.Model(&models.ScheduledStep{})).Order("id ASC").Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		slots := warmup.StaggerTimes(now, len(ids))
		for i, id := range ids {
			res := tx.Model(&models.ScheduledStep{}).Where("id = ?", id).Updates(map[string]interface{}{
				"status":        models.StepStatusPending,
				"scheduled_at":  slots[i],
				"executed_at":   nil,
				"error_code":    "",
				"error_message": nil,
			})
			if res.Error != nil {
				return res.Error
			}
			total += res.RowsAffected
		}
		return nil
	})
	return total, err
}

// ParkPending sidelines a paused campaign's queue: pending becomes
// deferred, which the due query never selects.
func (s *StepStore) ParkPending(campaignID uint) (int64, error) {
	res := s.db.Model(&models.ScheduledStep{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.StepStatusPending).
		Update("status", models.StepStatusDeferred)
	return res.RowsAffected, res.Error
}

// UnparkDeferred reverses ParkPending when a campaign resumes.
func (s *StepStore) UnparkDeferred(campaignID uint) (int64, error) {
	res := s.db.Model(&models.ScheduledStep{}).
		Where("campaign_id = ? AND status = ?", campaignID, models.StepStatusDeferred).
		Update("status", models.StepStatusPending)
	return res.RowsAffected, res.Error
}

// DeleteCampaignData removes a campaign's steps and events for good. Part
// of the campaign deletion cascade, the only path that physically deletes
// step rows.
func (s *StepStore) DeleteCampaignData(campaignID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("campaign_id = ?", campaignID).Delete(&models.EngagementEvent{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("campaign_id = ?", campaignID).Delete(&models.ScheduledStep{}).Error
	})
}
