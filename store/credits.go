package store

import (
	"time"

	"gorm.io/gorm"

	"reachloop/models"
)

// ConsumeCredit atomically spends one send credit. Returns false when
// the workspace has none left, leaving the balance untouched.
func (s *StepStore) ConsumeCredit(workspaceID uint) (bool, error) {
	res := s.db.Model(&models.Workspace{}).
		Where("id = ? AND send_credits > 0", workspaceID).
		Updates(map[string]interface{}{
			"send_credits":     gorm.Expr("send_credits - 1"),
			"credits_consumed": gorm.Expr("credits_consumed + 1"),
		})
	return res.RowsAffected == 1, res.Error
}

// RefundCredit returns one credit after a send that definitively failed.
func (s *StepStore) RefundCredit(workspaceID uint) error {
	return s.db.Model(&models.Workspace{}).
		Where("id = ?", workspaceID).
		Updates(map[string]interface{}{
			"send_credits":     gorm.Expr("send_credits + 1"),
			"credits_consumed": gorm.Expr("credits_consumed - 1"),
		}).Error
}

// AddCredits tops up a workspace after a completed purchase.
func (s *StepStore) AddCredits(workspaceID uint, credits int) error {
	return s.db.Model(&models.Workspace{}).
		Where("id = ?", workspaceID).
		Update("send_credits", gorm.Expr("send_credits + ?", credits)).Error
}

// NoteAccountError records the latest delivery problem on the sender
// account so the settings UI can surface it.
func (s *StepStore) NoteAccountError(accountID uint, msg string, now time.Time) error {
	return s.db.Model(&models.SenderAccount{}).
		Where("id = ?", accountID).
		Updates(map[string]interface{}{
			"last_error":    msg,
			"last_error_at": now,
		}).Error
}
