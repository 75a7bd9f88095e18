package controller

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"reachloop/models"
	"reachloop/store"
	"reachloop/worker"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type StepController struct {
	DB        *gorm.DB
	Store     *store.StepStore
	Scheduler *worker.SchedulerWorker
	Logger    *log.Logger
}

func NewStepController(db *gorm.DB, st *store.StepStore, scheduler *worker.SchedulerWorker, logger *log.Logger) *StepController {
	return &StepController{DB: db, Store: st, Scheduler: scheduler, Logger: logger}
}

// ListSteps pages through a campaign's scheduled steps. Supports
// ?status=, ?error_code=, ?page= and ?limit= query filters.
func (sc *StepController) ListSteps(c *fiber.Ctx) error {
	campaign, ok := campaignForRequest(c, sc.DB)
	if !ok {
		return nil
	}

	status := models.StepStatus(c.Query("status"))
	errorCode := models.ErrorCode(c.Query("error_code"))

	page, _ := strconv.Atoi(c.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	steps, total, err := sc.Store.ListSteps(campaign.ID, status, errorCode, page, limit)
	if err != nil {
		sc.Logger.Printf("Failed to list steps for campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list steps",
		})
	}

	return c.JSON(fiber.Map{
		"steps": steps,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// ApproveStep releases a step held for review back into the queue.
func (sc *StepController) ApproveStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	step, ok := sc.stepForRequest(c, user)
	if !ok {
		return nil
	}

	if err := sc.Store.Approve(step.ID, user.ID, time.Now()); err != nil {
		return sc.reviewError(c, step.ID, "approve", err)
	}

	sc.Logger.Printf("Step %d approved by user %d", step.ID, user.ID)
	return c.JSON(fiber.Map{"message": "Step approved"})
}

// RejectStep permanently skips a step held for review.
func (sc *StepController) RejectStep(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	step, ok := sc.stepForRequest(c, user)
	if !ok {
		return nil
	}

	var input struct {
		Reason string `json:"reason"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}
	if input.Reason == "" {
		input.Reason = "Rejected by reviewer"
	}

	if err := sc.Store.Reject(step.ID, user.ID, time.Now(), input.Reason); err != nil {
		return sc.reviewError(c, step.ID, "reject", err)
	}

	sc.Logger.Printf("Step %d rejected by user %d: %s", step.ID, user.ID, input.Reason)
	return c.JSON(fiber.Map{"message": "Step rejected"})
}

// ResetFailedSteps returns a campaign's failed steps to the queue,
// optionally narrowed to one error code or an explicit contact set.
func (sc *StepController) ResetFailedSteps(c *fiber.Ctx) error {
	campaign, ok := campaignForRequest(c, sc.DB)
	if !ok {
		return nil
	}

	var input struct {
		ErrorCode  string `json:"error_code"`
		ContactIDs []uint `json:"contact_ids"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&input); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	filter := store.ResetFilter{
		ErrorCode:  models.ErrorCode(input.ErrorCode),
		ContactIDs: input.ContactIDs,
	}
	reset, err := sc.Store.ResetFailed(campaign.ID, filter, time.Now())
	if err != nil {
		sc.Logger.Printf("Failed to reset steps for campaign %d: %v", campaign.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to reset steps",
		})
	}

	sc.Logger.Printf("Reset %d failed steps for campaign %d", reset, campaign.ID)
	return c.JSON(fiber.Map{
		"message": "Failed steps reset",
		"reset":   reset,
	})
}

// TriggerReschedule kicks off a scheduler pass outside the normal tick.
// The pass runs in the background; the response only acknowledges it.
func (sc *StepController) TriggerReschedule(c *fiber.Ctx) error {
	go sc.Scheduler.RunPass(context.Background())
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Scheduler pass started",
	})
}

// stepForRequest loads the step named by the :id route param, scoped to
// the caller's workspace. Writes the error response itself.
func (sc *StepController) stepForRequest(c *fiber.Ctx, user *models.User) (*models.ScheduledStep, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid step id"})
		return nil, false
	}

	step, err := sc.Store.GetStep(uint(id))
	if err != nil || step.WorkspaceID != user.WorkspaceID {
		c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Step not found"})
		return nil, false
	}
	return step, true
}

func (sc *StepController) reviewError(c *fiber.Ctx, stepID uint, action string, err error) error {
	switch {
	case errors.Is(err, store.ErrInvalidStateTransition):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Step is not awaiting approval",
		})
	case errors.Is(err, gorm.ErrRecordNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Step not found",
		})
	default:
		sc.Logger.Printf("Failed to %s step %d: %v", action, stepID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to update step",
		})
	}
}
