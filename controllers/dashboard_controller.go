package controller

import (
	"log"
	"time"

	"reachloop/models"
	"reachloop/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DashboardController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewDashboardController(db *gorm.DB, logger *log.Logger) *DashboardController {
	return &DashboardController{
		DB:     db,
		Logger: logger,
	}
}

type DashboardStats struct {
	MessagesSent int64   `json:"messages_sent"`
	OpenRate     float64 `json:"open_rate"`
	ClickRate    float64 `json:"click_rate"`
	ReplyRate    float64 `json:"reply_rate"`
	BounceRate   float64 `json:"bounce_rate"`
}

type TimeSeriesData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

type Dataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BorderColor     string    `json:"borderColor"`
	BackgroundColor string    `json:"backgroundColor"`
}

type CampaignSummary struct {
	ID        uint    `json:"id"`
	Name      string  `json:"name"`
	Status    string  `json:"status"`
	Sent      int     `json:"sent"`
	OpenRate  float64 `json:"open_rate"`
	ReplyRate float64 `json:"reply_rate"`
}

var executedStatuses = []models.StepStatus{models.StepStatusSent, models.StepStatusCompleted}

// statsWindow resolves the time_frame query param into a start time.
func statsWindow(c *fiber.Ctx, now time.Time) time.Time {
	switch c.Query("time_frame", "week") {
	case "hour":
		return now.Add(-1 * time.Hour)
	case "day":
		return now.Add(-24 * time.Hour)
	case "month":
		return now.Add(-30 * 24 * time.Hour)
	default:
		return now.Add(-7 * 24 * time.Hour)
	}
}

// GetDashboardStats returns the workspace-wide summary cards: messages
// executed across all channels in the window and the engagement rates
// against them.
func (dc *DashboardController) GetDashboardStats(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	now := time.Now()
	startTime := statsWindow(c, now)

	var stats DashboardStats
	if err := dc.DB.Model(&models.ScheduledStep{}).
		Where("workspace_id = ? AND status IN ? AND executed_at BETWEEN ? AND ?",
			user.WorkspaceID, executedStatuses, startTime, now).
		Count(&stats.MessagesSent).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get send stats", err)
	}

	if stats.MessagesSent > 0 {
		countEvents := func(eventType string) int64 {
			var n int64
			dc.DB.Model(&models.EngagementEvent{}).
				Where("workspace_id = ? AND event_type = ? AND occurred_at BETWEEN ? AND ?",
					user.WorkspaceID, eventType, startTime, now).
				Count(&n)
			return n
		}

		sent := float64(stats.MessagesSent)
		stats.OpenRate = float64(countEvents(models.EventTypeOpened)) / sent * 100
		stats.ClickRate = float64(countEvents(models.EventTypeClicked)) / sent * 100
		stats.ReplyRate = float64(countEvents(models.EventTypeReplied)) / sent * 100
		stats.BounceRate = float64(countEvents(models.EventTypeBounced)) / sent * 100
	}

	return c.JSON(utils.SuccessResponse(stats))
}

// GetSendVolumeOverTime returns time series data for the volume chart.
func (dc *DashboardController) GetSendVolumeOverTime(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	timeRange := c.Query("range", "year") // month, year

	now := time.Now()
	var startTime time.Time
	var labels []string
	var interval string

	if timeRange == "month" {
		startTime = now.Add(-30 * 24 * time.Hour)
		labels = []string{"Week 1", "Week 2", "Week 3", "Week 4"}
		interval = "week"
	} else {
		startTime = now.Add(-365 * 24 * time.Hour)
		labels = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
		interval = "month"
	}

	data := TimeSeriesData{
		Labels: labels,
		Datasets: []Dataset{
			{
				Label:           "Messages Sent",
				BorderColor:     "#10B981",
				BackgroundColor: "rgba(16, 185, 129, 0.1)",
			},
			{
				Label:           "Opened",
				BorderColor:     "#3B82F6",
				BackgroundColor: "rgba(59, 130, 246, 0.1)",
			},
			{
				Label:           "Clicked",
				BorderColor:     "#EF4444",
				BackgroundColor: "rgba(239, 68, 68, 0.1)",
			},
			{
				Label:           "Replied",
				BorderColor:     "#8B5CF6",
				BackgroundColor: "rgba(139, 92, 246, 0.1)",
			},
		},
	}

	for i := range labels {
		var start, end time.Time
		if interval == "week" {
			start = startTime.Add(time.Duration(i) * 7 * 24 * time.Hour)
			end = start.Add(7 * 24 * time.Hour)
		} else {
			start = time.Date(now.Year(), time.Month(i+1), 1, 0, 0, 0, 0, now.Location())
			end = start.AddDate(0, 1, 0)
		}

		var sentCount int64
		dc.DB.Model(&models.ScheduledStep{}).
			Where("workspace_id = ? AND status IN ? AND executed_at BETWEEN ? AND ?",
				user.WorkspaceID, executedStatuses, start, end).
			Count(&sentCount)

		eventCount := func(eventType string) int64 {
			var n int64
			dc.DB.Model(&models.EngagementEvent{}).
				Where("workspace_id = ? AND event_type = ? AND occurred_at BETWEEN ? AND ?",
					user.WorkspaceID, eventType, start, end).
				Count(&n)
			return n
		}

		data.Datasets[0].Data = append(data.Datasets[0].Data, float64(sentCount))
		data.Datasets[1].Data = append(data.Datasets[1].Data, float64(eventCount(models.EventTypeOpened)))
		data.Datasets[2].Data = append(data.Datasets[2].Data, float64(eventCount(models.EventTypeClicked)))
		data.Datasets[3].Data = append(data.Datasets[3].Data, float64(eventCount(models.EventTypeReplied)))
	}

	return c.JSON(utils.SuccessResponse(data))
}

// GetStepStatusBreakdown returns data for the outcome donut chart.
func (dc *DashboardController) GetStepStatusBreakdown(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	timeRange := c.Query("range", "week") // week, month

	now := time.Now()
	startTime := now.Add(-7 * 24 * time.Hour)
	if timeRange == "month" {
		startTime = now.Add(-30 * 24 * time.Hour)
	}

	data := struct {
		Labels   []string `json:"labels"`
		Datasets []struct {
			Data            []int64  `json:"data"`
			BackgroundColor []string `json:"backgroundColor"`
		} `json:"datasets"`
	}{
		Labels: []string{"Delivered", "Failed", "Skipped"},
		Datasets: []struct {
			Data            []int64  `json:"data"`
			BackgroundColor []string `json:"backgroundColor"`
		}{
			{
				Data:            make([]int64, 3),
				BackgroundColor: []string{"#3B82F6", "#EF4444", "#D1D5DB"},
			},
		},
	}

	counts := []struct {
		statuses []models.StepStatus
		slot     int
	}{
		{executedStatuses, 0},
		{[]models.StepStatus{models.StepStatusFailed}, 1},
		{[]models.StepStatus{models.StepStatusSkipped}, 2},
	}
	for _, group := range counts {
		if err := dc.DB.Model(&models.ScheduledStep{}).
			Where("workspace_id = ? AND status IN ? AND updated_at BETWEEN ? AND ?",
				user.WorkspaceID, group.statuses, startTime, now).
			Count(&data.Datasets[0].Data[group.slot]).Error; err != nil {
			return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get status breakdown", err)
		}
	}

	return c.JSON(utils.SuccessResponse(data))
}

// GetRecentCampaigns returns data for the recent campaigns table.
func (dc *DashboardController) GetRecentCampaigns(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)
	limit := c.QueryInt("limit", 3)

	var campaigns []models.Campaign
	if err := dc.DB.Where("workspace_id = ?", user.WorkspaceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&campaigns).Error; err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to get campaigns", err)
	}

	summaries := make([]CampaignSummary, 0, len(campaigns))
	for _, campaign := range campaigns {
		var sentCount int64
		dc.DB.Model(&models.ScheduledStep{}).
			Where("campaign_id = ? AND status IN ?", campaign.ID, executedStatuses).
			Count(&sentCount)

		var openCount, replyCount int64
		dc.DB.Model(&models.EngagementEvent{}).
			Where("campaign_id = ? AND event_type = ?", campaign.ID, models.EventTypeOpened).
			Count(&openCount)
		dc.DB.Model(&models.EngagementEvent{}).
			Where("campaign_id = ? AND event_type = ?", campaign.ID, models.EventTypeReplied).
			Count(&replyCount)

		var openRate, replyRate float64
		if sentCount > 0 {
			openRate = float64(openCount) / float64(sentCount) * 100
			replyRate = float64(replyCount) / float64(sentCount) * 100
		}

		summaries = append(summaries, CampaignSummary{
			ID:        campaign.ID,
			Name:      campaign.Name,
			Status:    campaign.Status,
			Sent:      int(sentCount),
			OpenRate:  openRate,
			ReplyRate: replyRate,
		})
	}

	return c.JSON(utils.SuccessResponse(summaries))
}
