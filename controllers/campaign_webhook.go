package controller

import (
	"time"

	"reachloop/models"
	"reachloop/utils"

	"github.com/gofiber/fiber/v2"
)

// HandleEngagementWebhook ingests delivery and engagement events posted
// back by providers. Events are matched to steps by provider message id.
func (cc *CampaignController) HandleEngagementWebhook(c *fiber.Ctx) error {
	var input struct {
		EventType string `json:"event_type"`
		MessageID string `json:"message_id"`
		Timestamp int64  `json:"timestamp"`
		URL       string `json:"url"`
		Details   string `json:"details"`
	}

	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if !models.KnownEventType(input.EventType) || input.EventType == models.EventTypeSent {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Unknown event type",
		})
	}
	if input.MessageID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "message_id is required",
		})
	}

	step, err := cc.Store.StepByMessageID(input.MessageID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No step for this message id",
		})
	}

	occurredAt := time.Now()
	if input.Timestamp > 0 {
		occurredAt = time.Unix(input.Timestamp, 0)
	}

	// Terminal events only count once per step
	switch input.EventType {
	case models.EventTypeReplied, models.EventTypeBounced, models.EventTypeUnsubscribed:
		seen, err := cc.Store.HasEvent(step.ID, input.EventType)
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to check event history",
			})
		}
		if seen {
			return c.JSON(fiber.Map{"message": "Event already recorded"})
		}
	}

	if err := cc.recordStepEvent(step, input.EventType, occurredAt, c.IP(), c.Get("User-Agent"), input.Details); err != nil {
		cc.Logger.Printf("Failed to record %s event for step %d: %v", input.EventType, step.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to record event",
		})
	}

	// Bounces, replies and unsubscribes change what the contact may still
	// receive
	switch input.EventType {
	case models.EventTypeReplied:
		cc.advanceContact(step.ContactID, models.ContactStatusReplied)
	case models.EventTypeBounced:
		cc.advanceContact(step.ContactID, models.ContactStatusBounced)
	case models.EventTypeUnsubscribed:
		cc.advanceContact(step.ContactID, models.ContactStatusUnsubscribed)
	}

	return c.JSON(fiber.Map{"message": "Webhook processed successfully"})
}

// HandleOpenTracking serves the open pixel referenced from tracked email
// bodies and records the open.
func (cc *CampaignController) HandleOpenTracking(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	token := c.Params("token")

	if !utils.ValidTrackingToken(messageID, token) {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid token")
	}

	if step, err := cc.Store.StepByMessageID(messageID); err == nil {
		if err := cc.recordStepEvent(step, models.EventTypeOpened, time.Now(), c.IP(), c.Get("User-Agent"), ""); err != nil {
			cc.Logger.Printf("Failed to record open for message %s: %v", messageID, err)
		}
	}

	// Return transparent pixel
	return c.Type("gif").Send(transparentPixel())
}

// HandleClickTracking records the click and forwards the visitor to the
// original link target.
func (cc *CampaignController) HandleClickTracking(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	token := c.Params("token")
	originalURL := c.Query("url")

	if !utils.ValidTrackingToken(messageID, token) {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid token")
	}
	if originalURL == "" {
		return c.Status(fiber.StatusBadRequest).SendString("Missing redirect target")
	}

	if step, err := cc.Store.StepByMessageID(messageID); err == nil {
		if err := cc.recordClick(step, originalURL, c.IP(), c.Get("User-Agent")); err != nil {
			cc.Logger.Printf("Failed to record click for message %s: %v", messageID, err)
		}
	}

	// Redirect to original URL
	return c.Redirect(originalURL, fiber.StatusFound)
}

// HandleUnsubscribe flips the contact behind the message to unsubscribed
// and confirms with a minimal page. Linked from email footers.
func (cc *CampaignController) HandleUnsubscribe(c *fiber.Ctx) error {
	messageID := c.Params("messageID")
	token := c.Params("token")

	if !utils.ValidTrackingToken(messageID, token) {
		return c.Status(fiber.StatusBadRequest).SendString("Invalid token")
	}

	step, err := cc.Store.StepByMessageID(messageID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).SendString("Unknown message")
	}

	seen, err := cc.Store.HasEvent(step.ID, models.EventTypeUnsubscribed)
	if err == nil && !seen {
		if err := cc.recordStepEvent(step, models.EventTypeUnsubscribed, time.Now(), c.IP(), c.Get("User-Agent"), ""); err != nil {
			cc.Logger.Printf("Failed to record unsubscribe for message %s: %v", messageID, err)
		}
	}
	cc.advanceContact(step.ContactID, models.ContactStatusUnsubscribed)

	c.Set("Content-Type", "text/html; charset=utf-8")
	return c.SendString("<html><body><p>You have been unsubscribed.</p></body></html>")
}

func (cc *CampaignController) recordStepEvent(step *models.ScheduledStep, eventType string, occurredAt time.Time, ip, userAgent, details string) error {
	return cc.Store.RecordEvent(&models.EngagementEvent{
		WorkspaceID: step.WorkspaceID,
		CampaignID:  step.CampaignID,
		ContactID:   step.ContactID,
		StepID:      step.ID,
		StepIndex:   step.StepIndex,
		Channel:     step.Channel,
		EventType:   eventType,
		OccurredAt:  occurredAt,
		IPAddress:   ip,
		UserAgent:   userAgent,
		Details:     details,
	})
}

func (cc *CampaignController) recordClick(step *models.ScheduledStep, target, ip, userAgent string) error {
	now := time.Now()
	event := models.EngagementEvent{
		WorkspaceID: step.WorkspaceID,
		CampaignID:  step.CampaignID,
		ContactID:   step.ContactID,
		StepID:      step.ID,
		StepIndex:   step.StepIndex,
		Channel:     step.Channel,
		EventType:   models.EventTypeClicked,
		OccurredAt:  now,
		IPAddress:   ip,
		UserAgent:   userAgent,
	}
	if err := cc.Store.RecordEvent(&event); err != nil {
		return err
	}
	return cc.DB.Create(&models.ClickEvent{
		EventID:   event.ID,
		URL:       target,
		ClickedAt: now,
	}).Error
}

func (cc *CampaignController) advanceContact(contactID uint, status string) {
	if err := cc.Store.AdvanceContactStatus(contactID, status); err != nil {
		cc.Logger.Printf("Failed to advance contact %d to %s: %v", contactID, status, err)
	}
}

func transparentPixel() []byte {
	// 1x1 transparent GIF
	return []byte{
		0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
		0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
		0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
		0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
		0x01, 0x00, 0x3b,
	}
}
