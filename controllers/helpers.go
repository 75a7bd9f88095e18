package controller

import (
	"errors"

	"reachloop/models"
	"reachloop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// campaignForRequest loads the campaign named by the :id route param,
// scoped to the caller's workspace. It writes the error response itself
// and returns ok=false when the campaign cannot be resolved.
func campaignForRequest(c *fiber.Ctx, db *gorm.DB) (*models.Campaign, bool) {
	user := c.Locals("user").(*models.User)

	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid campaign id"})
		return nil, false
	}

	var campaign models.Campaign
	if err := db.Where("id = ? AND workspace_id = ?", id, user.WorkspaceID).First(&campaign).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Campaign not found"})
		} else {
			c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to load campaign"})
		}
		return nil, false
	}
	return &campaign, true
}
