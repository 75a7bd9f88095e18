package controller

import (
	"log"

	"reachloop/monitor"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type MonitorController struct {
	DB     *gorm.DB
	Engine *monitor.Engine
	Logger *log.Logger
}

func NewMonitorController(db *gorm.DB, engine *monitor.Engine, logger *log.Logger) *MonitorController {
	return &MonitorController{DB: db, Engine: engine, Logger: logger}
}

// GetCampaignHealth scores every step of the campaign against its
// channel benchmarks and rolls the scores up into an overall verdict.
func (mc *MonitorController) GetCampaignHealth(c *fiber.Ctx) error {
	campaign, ok := campaignForRequest(c, mc.DB)
	if !ok {
		return nil
	}

	health, err := mc.Engine.CampaignHealth(campaign.ID)
	if err != nil {
		mc.Logger.Printf("Failed to compute health for campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute campaign health",
		})
	}
	return c.JSON(health)
}

// GetCampaignInsights summarizes how far the campaign has progressed
// through its contact list.
func (mc *MonitorController) GetCampaignInsights(c *fiber.Ctx) error {
	campaign, ok := campaignForRequest(c, mc.DB)
	if !ok {
		return nil
	}

	insights, err := mc.Engine.CampaignInsights(campaign.ID)
	if err != nil {
		mc.Logger.Printf("Failed to compute insights for campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute campaign insights",
		})
	}
	return c.JSON(insights)
}

// GetFailureSummary groups the campaign's failed steps by error code
// and attaches a remediation hint to each group.
func (mc *MonitorController) GetFailureSummary(c *fiber.Ctx) error {
	campaign, ok := campaignForRequest(c, mc.DB)
	if !ok {
		return nil
	}

	failures, err := mc.Engine.FailureSummary(campaign.ID)
	if err != nil {
		mc.Logger.Printf("Failed to summarize failures for campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to summarize failures",
		})
	}
	return c.JSON(fiber.Map{"failures": failures})
}
