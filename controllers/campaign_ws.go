package controller

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"reachloop/models"
)

type progressUpdate struct {
	Message   string `json:"message"`
	Percent   int    `json:"percent"`
	Status    string `json:"status"`
	Total     int64  `json:"total"`
	Executed  int64  `json:"executed"`
	Failed    int64  `json:"failed"`
	Remaining int64  `json:"remaining"`
}

// HandleCampaignProgressWS streams live execution progress for one
// campaign. The client sends {"campaign_id": N} once, then receives a
// progress frame every few seconds until the campaign settles or the
// socket closes.
func (cc *CampaignController) HandleCampaignProgressWS(c *websocket.Conn) {
	defer c.Close()

	user, ok := c.Locals("user").(*models.User)
	if !ok {
		return
	}

	var input struct {
		CampaignID uint `json:"campaign_id"`
	}
	if err := c.ReadJSON(&input); err != nil {
		cc.Logger.Printf("Progress stream read error: %v", err)
		return
	}

	var campaign models.Campaign
	if err := cc.DB.Where("id = ? AND workspace_id = ?", input.CampaignID, user.WorkspaceID).
		First(&campaign).Error; err != nil {
		c.WriteJSON(progressUpdate{Status: "error", Message: "Campaign not found"})
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		update, settled, err := cc.progressSnapshot(campaign.ID)
		if err != nil {
			cc.Logger.Printf("Progress stream for campaign %d: %v", campaign.ID, err)
			return
		}
		if err := c.WriteJSON(update); err != nil {
			return
		}
		if settled {
			return
		}
		<-ticker.C
	}
}

// progressSnapshot builds one progress frame. settled is true once no
// step can still change state, at which point the stream ends.
func (cc *CampaignController) progressSnapshot(campaignID uint) (progressUpdate, bool, error) {
	counts, err := cc.Store.StatusCounts(campaignID)
	if err != nil {
		return progressUpdate{}, false, err
	}

	var campaign models.Campaign
	if err := cc.DB.First(&campaign, campaignID).Error; err != nil {
		return progressUpdate{}, false, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	executed := counts[models.StepStatusSent] + counts[models.StepStatusCompleted]
	failed := counts[models.StepStatusFailed]
	settledSteps := executed + failed + counts[models.StepStatusSkipped]
	remaining := total - settledSteps

	update := progressUpdate{
		Status:    campaign.Status,
		Total:     total,
		Executed:  executed,
		Failed:    failed,
		Remaining: remaining,
	}
	if total > 0 {
		update.Percent = int(settledSteps * 100 / total)
	}

	switch {
	case total == 0:
		update.Message = "No steps scheduled yet"
	case remaining == 0:
		update.Message = "All steps settled"
	default:
		update.Message = "Executing scheduled steps..."
	}

	settled := campaign.Status == models.CampaignStatusCompleted || (total > 0 && remaining == 0)
	return update, settled, nil
}
