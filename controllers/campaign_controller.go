package controller

import (
	"log"
	"math/rand"
	"time"

	"reachloop/models"
	"reachloop/store"
	"reachloop/utils"
	"reachloop/warmup"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CampaignController struct {
	DB     *gorm.DB
	Store  *store.StepStore
	Logger *log.Logger
	rng    *rand.Rand
}

func NewCampaignController(db *gorm.DB, st *store.StepStore, logger *log.Logger) *CampaignController {
	return &CampaignController{
		DB:     db,
		Store:  st,
		Logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type campaignStepInput struct {
	Channel   models.Channel `json:"channel"`
	Subject   string         `json:"subject"`
	Body      string         `json:"body" validate:"required"`
	DelayDays int            `json:"delay_days" validate:"gte=0"`
}

// CreateCampaign creates a draft campaign with its step sequence
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input struct {
		Name             string              `json:"name" validate:"required,min=1,max=200"`
		Description      string              `json:"description"`
		RequiresApproval bool                `json:"requires_approval"`
		TrackOpens       *bool               `json:"track_opens"`
		TrackClicks      *bool               `json:"track_clicks"`
		Steps            []campaignStepInput `json:"steps" validate:"required,min=1"`
	}

	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	for _, s := range input.Steps {
		if !s.Channel.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Unknown channel: " + string(s.Channel),
			})
		}
	}

	campaign := models.Campaign{
		WorkspaceID:      user.WorkspaceID,
		CreatedBy:        user.ID,
		Name:             input.Name,
		Description:      input.Description,
		Status:           models.CampaignStatusDraft,
		RequiresApproval: input.RequiresApproval,
		TrackOpens:       true,
		TrackClicks:      true,
	}
	if input.TrackOpens != nil {
		campaign.TrackOpens = *input.TrackOpens
	}
	if input.TrackClicks != nil {
		campaign.TrackClicks = *input.TrackClicks
	}

	tx := cc.DB.Begin()

	if err := tx.Create(&campaign).Error; err != nil {
		tx.Rollback()
		cc.Logger.Printf("Failed to create campaign: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to create campaign",
		})
	}

	for i, s := range input.Steps {
		step := models.CampaignStep{
			CampaignID: campaign.ID,
			StepIndex:  i,
			Channel:    s.Channel,
			Subject:    s.Subject,
			Body:       s.Body,
			DelayDays:  s.DelayDays,
		}
		if err := tx.Create(&step).Error; err != nil {
			tx.Rollback()
			cc.Logger.Printf("Failed to create campaign step: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to create campaign steps",
			})
		}
	}

	tx.Commit()

	utils.LogEvent("campaign_created", map[string]interface{}{
		"campaign_id":  campaign.ID,
		"workspace_id": user.WorkspaceID,
		"steps":        len(input.Steps),
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message":  "Campaign created successfully",
		"campaign": campaign,
	})
}

// GetCampaigns returns all campaigns in the caller's workspace
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var campaigns []models.Campaign
	if err := cc.DB.Where("workspace_id = ?", user.WorkspaceID).
		Order("created_at DESC").
		Find(&campaigns).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch campaigns",
		})
	}

	return c.JSON(campaigns)
}

// GetCampaign returns a single campaign with its step sequence
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	campaign, ok := campaignForRequest(c, cc.DB)
	if !ok {
		return nil
	}

	if err := cc.DB.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("campaign_steps.step_index ASC")
	}).First(campaign, campaign.ID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load campaign",
		})
	}

	counts, err := cc.Store.StatusCounts(campaign.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load campaign progress",
		})
	}

	return c.JSON(fiber.Map{
		"campaign":    campaign,
		"step_counts": counts,
	})
}

// UpdateCampaign edits campaign metadata while it is not running
func (cc *CampaignController) UpdateCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaign, ok := campaignForRequest(c, cc.DB)
	if !ok {
		return nil
	}

	if campaign.Status == models.CampaignStatusActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Pause the campaign before editing it",
		})
	}

	var input struct {
		Name             *string `json:"name"`
		Description      *string `json:"description"`
		RequiresApproval *bool   `json:"requires_approval"`
		TrackOpens       *bool   `json:"track_opens"`
		TrackClicks      *bool   `json:"track_clicks"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	updates := map[string]interface{}{}
	if input.Name != nil {
		updates["name"] = *input.Name
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.RequiresApproval != nil {
		updates["requires_approval"] = *input.RequiresApproval
	}
	if input.TrackOpens != nil {
		updates["track_opens"] = *input.TrackOpens
	}
	if input.TrackClicks != nil {
		updates["track_clicks"] = *input.TrackClicks
	}
	if len(updates) == 0 {
		return c.JSON(fiber.Map{"message": "Nothing to update"})
	}

	if err := cc.DB.Model(campaign).Updates(updates).Error; err != nil {
		cc.Logger.Printf("Failed to update campaign %d for workspace %d: %v", campaign.ID, user.WorkspaceID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update campaign",
		})
	}

	return c.JSON(fiber.Map{
		"message":  "Campaign updated successfully",
		"campaign": campaign,
	})
}

// DeleteCampaign removes the campaign and everything scheduled under it
func (cc *CampaignController) DeleteCampaign(c *fiber.Ctx) error {
	campaign, ok := campaignForRequest(c, cc.DB)
	if !ok {
		return nil
	}

	if err := cc.Store.DeleteCampaignData(campaign.ID); err != nil {
		cc.Logger.Printf("Failed to delete scheduled data for campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign data",
		})
	}

	tx := cc.DB.Begin()
	if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.CampaignStep{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign steps",
		})
	}
	if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.CampaignContact{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign contacts",
		})
	}
	if err := tx.Where("campaign_id = ?", campaign.ID).Delete(&models.CampaignAccount{}).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign accounts",
		})
	}
	if err := tx.Delete(campaign).Error; err != nil {
		tx.Rollback()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete campaign",
		})
	}
	tx.Commit()

	return c.JSON(fiber.Map{"message": "Campaign deleted successfully"})
}

// AddContacts attaches workspace contacts to the campaign
func (cc *CampaignController) AddContacts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaign, ok := campaignForRequest(c, cc.DB)
	if !ok {
		return nil
	}

	var input struct {
		ContactIDs []uint `json:"contact_ids" validate:"required,min=1"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var count int64
	if err := cc.DB.Model(&models.Contact{}).
		Where("id IN ? AND workspace_id = ?", input.ContactIDs, user.WorkspaceID).
		Count(&count).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to verify contacts",
		})
	}
	if count != int64(len(input.ContactIDs)) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Some contacts do not exist in this workspace",
		})
	}

	links := make([]models.CampaignContact, 0, len(input.ContactIDs))
	for _, id := range input.ContactIDs {
		links = append(links, models.CampaignContact{
			CampaignID: campaign.ID,
			ContactID:  id,
		})
	}
	res := cc.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(&links)
	if res.Error != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to add contacts",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Contacts added to campaign",
		"added":   res.RowsAffected,
	})
}

// AddAccounts attaches sender accounts to the campaign
func (cc *CampaignController) AddAccounts(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaign, ok := campaignForRequest(c, cc.DB)
	if !ok {
		return nil
	}

	var input struct {
		AccountIDs []uint `json:"account_ids" validate:"required,min=1"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	var accounts []models.SenderAccount
	if err := cc.DB.Where("id IN ? AND workspace_id = ?", input.AccountIDs, user.WorkspaceID).
		Find(&accounts).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to verify accounts",
		})
	}
	if len(accounts) != len(input.AccountIDs) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Some accounts do not exist in this workspace",
		})
	}

	for _, id := range input.AccountIDs {
		link := models.CampaignAccount{CampaignID: campaign.ID, SenderAccountID: id}
		if err := cc.DB.Where(&link).FirstOrCreate(&link).Error; err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to add accounts",
			})
		}
	}

	return c.JSON(fiber.Map{"message": "Accounts added to campaign"})
}

// ScheduleCampaign expands contacts x steps into scheduled touches and
// activates the campaign
func (cc *CampaignController) ScheduleCampaign(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	campaign, ok := campaignForRequest(c, cc.DB)
	if !ok {
		return nil
	}
	if campaign.Status == models.CampaignStatusCompleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Campaign has already completed",
		})
	}

	var defs []models.CampaignStep
	if err := cc.DB.Where("campaign_id = ?", campaign.ID).
		Order("step_index ASC").
		Find(&defs).Error; err != nil || len(defs) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign has no steps",
		})
	}

	var contacts []models.Contact
	if err := cc.DB.
		Joins("JOIN campaign_contacts ON campaign_contacts.contact_id = contacts.id AND campaign_contacts.deleted_at IS NULL").
		Where("campaign_contacts.campaign_id = ?", campaign.ID).
		Find(&contacts).Error; err != nil || len(contacts) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Campaign has no contacts",
		})
	}

	accountByType, err := cc.campaignAccountsByType(campaign.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load campaign accounts",
		})
	}
	for _, d := range defs {
		if d.Channel.IsTask() {
			continue
		}
		if _, ok := accountByType[models.AccountTypeFor(d.Channel)]; !ok {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "No active " + models.AccountTypeFor(d.Channel) + " sender account attached to this campaign",
			})
		}
	}

	var workspace models.Workspace
	if err := cc.DB.First(&workspace, user.WorkspaceID).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load workspace",
		})
	}
	needsApproval := campaign.RequiresApproval || workspace.RequireApproval

	loc, err := time.LoadLocation(workspace.Timezone)
	if err != nil {
		loc = time.Local
	}
	now := time.Now().In(loc)

	initialStatus := models.StepStatusPending
	if needsApproval {
		initialStatus = models.StepStatusRequiresApproval
	}

	steps := make([]models.ScheduledStep, 0, len(contacts)*len(defs))
	for _, contact := range contacts {
		dayOffset := 0
		for _, d := range defs {
			dayOffset += d.DelayDays

			var accountID uint
			if !d.Channel.IsTask() {
				accountID = accountByType[models.AccountTypeFor(d.Channel)].ID
			}

			steps = append(steps, models.ScheduledStep{
				WorkspaceID:     campaign.WorkspaceID,
				CampaignID:      campaign.ID,
				ContactID:       contact.ID,
				StepIndex:       d.StepIndex,
				SenderAccountID: accountID,
				Channel:         d.Channel,
				Subject:         d.Subject,
				Body:            d.Body,
				Status:          initialStatus,
				ScheduledAt:     warmup.BusinessWindowSlot(now, dayOffset, cc.rng),
			})
		}
	}

	inserted, err := cc.Store.Enqueue(steps)
	if err != nil {
		cc.Logger.Printf("Failed to enqueue steps for campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to schedule campaign",
		})
	}

	updates := map[string]interface{}{
		"status":       models.CampaignStatusActive,
		"scheduled_at": time.Now(),
	}
	if campaign.StartedAt == nil {
		updates["started_at"] = time.Now()
	}
	if err := cc.DB.Model(campaign).Updates(updates).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to activate campaign",
		})
	}

	utils.LogEvent("campaign_scheduled", map[string]interface{}{
		"campaign_id": campaign.ID,
		"steps":       len(steps),
		"inserted":    inserted,
	})

	return c.JSON(fiber.Map{
		"message":   "Campaign scheduled",
		"total":     len(steps),
		"scheduled": inserted,
		"skipped":   int64(len(steps)) - inserted,
	})
}

// PauseCampaign parks all pending steps so the scheduler skips them
func (cc *CampaignController) PauseCampaign(c *fiber.Ctx) error {
	campaign, ok := campaignForRequest(c, cc.DB)
	if !ok {
		return nil
	}
	if campaign.Status != models.CampaignStatusActive {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Only active campaigns can be paused",
		})
	}

	parked, err := cc.Store.ParkPending(campaign.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to pause campaign",
		})
	}
	if err := cc.DB.Model(campaign).Update("status", models.CampaignStatusPaused).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to pause campaign",
		})
	}

	return c.JSON(fiber.Map{
		"message": "Campaign paused",
		"parked":  parked,
	})
}

// ResumeCampaign releases parked steps back to the scheduler
func (cc *CampaignController) ResumeCampaign(c *fiber.Ctx) error {
	campaign, ok := campaignForRequest(c, cc.DB)
	if !ok {
		return nil
	}
	if campaign.Status != models.CampaignStatusPaused {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Only paused campaigns can be resumed",
		})
	}

	released, err := cc.Store.UnparkDeferred(campaign.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resume campaign",
		})
	}
	if err := cc.DB.Model(campaign).Update("status", models.CampaignStatusActive).Error; err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resume campaign",
		})
	}

	return c.JSON(fiber.Map{
		"message":  "Campaign resumed",
		"released": released,
	})
}

// GetCampaignProgress reports step status counts and completion
func (cc *CampaignController) GetCampaignProgress(c *fiber.Ctx) error {
	campaign, ok := campaignForRequest(c, cc.DB)
	if !ok {
		return nil
	}

	counts, err := cc.Store.StatusCounts(campaign.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load progress",
		})
	}

	var total, done int64
	for status, n := range counts {
		total += n
		switch status {
		case models.StepStatusSent, models.StepStatusCompleted,
			models.StepStatusFailed, models.StepStatusSkipped:
			done += n
		}
	}
	percent := 0
	if total > 0 {
		percent = int(100 * done / total)
	}

	return c.JSON(fiber.Map{
		"campaign_id":   campaign.ID,
		"status":        campaign.Status,
		"step_counts":   counts,
		"total_steps":   total,
		"settled_steps": done,
		"percent":       percent,
	})
}

// campaignAccountsByType returns the first active sender account per
// account type attached to the campaign.
func (cc *CampaignController) campaignAccountsByType(campaignID uint) (map[string]*models.SenderAccount, error) {
	var accounts []models.SenderAccount
	err := cc.DB.
		Joins("JOIN campaign_accounts ON campaign_accounts.sender_account_id = sender_accounts.id AND campaign_accounts.deleted_at IS NULL").
		Where("campaign_accounts.campaign_id = ? AND sender_accounts.is_active = ?", campaignID, true).
		Order("sender_accounts.id ASC").
		Find(&accounts).Error
	if err != nil {
		return nil, err
	}

	byType := make(map[string]*models.SenderAccount)
	for i := range accounts {
		if _, ok := byType[accounts[i].Type]; !ok {
			byType[accounts[i].Type] = &accounts[i]
		}
	}
	return byType, nil
}
