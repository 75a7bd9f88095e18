package monitor

import (
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"reachloop/models"
	"reachloop/store"
)

// Recommendation priorities, most urgent first.
const (
	PriorityCritical = "critical"
	PriorityHigh     = "high"
	PriorityMedium   = "medium"
	PriorityLow      = "low"
)

// Recommendation is one actionable piece of advice attached to a step's
// health report.
type Recommendation struct {
	Priority string `json:"priority"`
	Message  string `json:"message"`
}

// StepCounts aggregates outcomes for one step index across a campaign.
type StepCounts struct {
	Sent         int64 `json:"sent"`
	Delivered    int64 `json:"delivered"`
	Opened       int64 `json:"opened"`
	Clicked      int64 `json:"clicked"`
	Replied      int64 `json:"replied"`
	Bounced      int64 `json:"bounced"`
	Unsubscribed int64 `json:"unsubscribed"`
}

// StepHealth is the scored health report for one step index.
type StepHealth struct {
	StepIndex int            `json:"step_index"`
	Channel   models.Channel `json:"channel"`

	StepCounts

	OpenRate   int `json:"open_rate"`
	ClickRate  int `json:"click_rate"`
	ReplyRate  int `json:"reply_rate"`
	BounceRate int `json:"bounce_rate"`

	HealthScore     int              `json:"health_score"`
	Performance     string           `json:"performance"`
	Issues          []string         `json:"issues"`
	Recommendations []Recommendation `json:"recommendations"`
}

// CampaignHealth rolls per-step reports into a campaign-level verdict.
type CampaignHealth struct {
	CampaignID      uint           `json:"campaign_id"`
	OverallHealth   string         `json:"overall_health"`
	AverageScore    int            `json:"average_score"`
	BestChannel     models.Channel `json:"best_channel,omitempty"`
	EngagementTrend string         `json:"engagement_trend"`
	Steps           []StepHealth   `json:"steps"`
	GeneratedAt     time.Time      `json:"generated_at"`
}

// ChannelTotals carries the reply performance of one channel across all
// of a campaign's steps.
type ChannelTotals struct {
	Channel models.Channel
	Sent    int64
	Replied int64
}

// ScoreStep grades one step's aggregate counts against the channel
// benchmark. Scoring starts at 100 and deducts per finding; a step with
// no sends yet short-circuits to a neutral 50.
func ScoreStep(stepIndex int, channel models.Channel, counts StepCounts) StepHealth {
	h := StepHealth{
		StepIndex:  stepIndex,
		Channel:    channel,
		StepCounts: counts,
	}

	if counts.Sent == 0 {
		h.HealthScore = 50
		h.Performance = "average"
		h.Issues = []string{"No messages sent yet"}
		h.Recommendations = []Recommendation{{
			Priority: PriorityLow,
			Message:  "Wait for the first sends before judging this step",
		}}
		return h
	}

	h.OpenRate = ratePercent(counts.Opened, counts.Sent)
	h.ClickRate = ratePercent(counts.Clicked, counts.Sent)
	h.ReplyRate = ratePercent(counts.Replied, counts.Sent)
	h.BounceRate = ratePercent(counts.Bounced, counts.Sent)

	bench := BenchmarkFor(channel)
	score := 100

	switch {
	case float64(h.OpenRate) < 0.5*bench.OpenRate:
		score -= 20
		h.Issues = append(h.Issues, fmt.Sprintf("Open rate %d%% is well below the %.0f%% benchmark", h.OpenRate, bench.OpenRate))
		h.Recommendations = append(h.Recommendations, Recommendation{
			Priority: PriorityHigh,
			Message:  "Improve your subject line and preview text",
		})
	case float64(h.OpenRate) < 0.8*bench.OpenRate:
		score -= 10
		h.Issues = append(h.Issues, fmt.Sprintf("Open rate %d%% is below the %.0f%% benchmark", h.OpenRate, bench.OpenRate))
	}

	if float64(h.ReplyRate) < 0.5*bench.ReplyRate {
		score -= 15
		h.Issues = append(h.Issues, fmt.Sprintf("Reply rate %d%% is well below the %.0f%% benchmark", h.ReplyRate, bench.ReplyRate))
		h.Recommendations = append(h.Recommendations, Recommendation{
			Priority: PriorityHigh,
			Message:  "Revise your call to action to invite a reply",
		})
	}

	if float64(h.BounceRate) > 2*bench.BounceRate {
		score -= 25
		h.Issues = append(h.Issues, fmt.Sprintf("Bounce rate %d%% is more than double the %.0f%% benchmark", h.BounceRate, bench.BounceRate))
		h.Recommendations = append(h.Recommendations, Recommendation{
			Priority: PriorityCritical,
			Message:  "Verify contact data before sending more",
		})
	}

	// Strictly more than 5% of sends unsubscribed.
	if counts.Unsubscribed*20 > counts.Sent {
		score -= 20
		h.Issues = append(h.Issues, fmt.Sprintf("%d contacts unsubscribed after this step", counts.Unsubscribed))
		h.Recommendations = append(h.Recommendations, Recommendation{
			Priority: PriorityHigh,
			Message:  "Review message tone and send frequency",
		})
	}

	if channel == models.ChannelEmail && float64(h.ClickRate) < 0.5*bench.ClickRate {
		score -= 10
		h.Issues = append(h.Issues, fmt.Sprintf("Click rate %d%% is well below the %.0f%% benchmark", h.ClickRate, bench.ClickRate))
		h.Recommendations = append(h.Recommendations, Recommendation{
			Priority: PriorityMedium,
			Message:  "Make your call-to-action link more visible",
		})
	}

	if score < 0 {
		score = 0
	}
	h.HealthScore = score
	h.Performance = PerformanceLabel(score)
	return h
}

// PerformanceLabel maps a step score to its verdict band.
func PerformanceLabel(score int) string {
	switch {
	case score >= 90:
		return "excellent"
	case score >= 75:
		return "good"
	case score >= 60:
		return "average"
	case score >= 40:
		return "below_average"
	default:
		return "poor"
	}
}

// OverallLabel maps the mean step score to the campaign verdict.
func OverallLabel(mean float64) string {
	switch {
	case mean >= 80:
		return "healthy"
	case mean >= 60:
		return "needs_attention"
	case mean >= 40:
		return "at_risk"
	default:
		return "critical"
	}
}

// BestChannel picks the channel with the highest reply ratio among those
// that have sent anything. Ties keep the earliest channel in totals
// order.
func BestChannel(totals []ChannelTotals) models.Channel {
	var best models.Channel
	bestRatio := -1.0
	for _, t := range totals {
		if t.Sent == 0 {
			continue
		}
		ratio := float64(t.Replied) / float64(t.Sent)
		if ratio > bestRatio {
			bestRatio = ratio
			best = t.Channel
		}
	}
	return best
}

// Trend compares the last 24h of engagement volume against the 24h
// before it.
func Trend(last, prior int64) string {
	switch {
	case last == 0 && prior == 0:
		return "stable"
	case prior == 0:
		return "improving"
	}
	ratio := float64(last) / float64(prior)
	switch {
	case ratio >= 1.2:
		return "improving"
	case ratio <= 0.8:
		return "declining"
	default:
		return "stable"
	}
}

func ratePercent(count, sent int64) int {
	if sent == 0 {
		return 0
	}
	return int(math.Round(100 * float64(count) / float64(sent)))
}

// Engine reads step history and engagement events and produces health
// reports. It never writes back, so it can run alongside the scheduler
// without coordination.
type Engine struct {
	store  *store.StepStore
	logger *log.Logger
	now    func() time.Time
}

func NewEngine(st *store.StepStore, logger *log.Logger) *Engine {
	return &Engine{store: st, logger: logger, now: time.Now}
}

// CampaignHealth assembles and scores the full health report for one
// campaign.
func (e *Engine) CampaignHealth(campaignID uint) (*CampaignHealth, error) {
	defs, err := e.store.CampaignStepDefs(campaignID)
	if err != nil {
		return nil, err
	}
	sends, err := e.store.CampaignSendCounts(campaignID)
	if err != nil {
		return nil, err
	}
	events, err := e.store.CampaignEventCounts(campaignID)
	if err != nil {
		return nil, err
	}

	countsByStep := make(map[int]*StepCounts)
	channelByStep := make(map[int]models.Channel)
	var order []int
	ensure := func(idx int, channel models.Channel) *StepCounts {
		if c, ok := countsByStep[idx]; ok {
			return c
		}
		c := &StepCounts{}
		countsByStep[idx] = c
		channelByStep[idx] = channel
		order = append(order, idx)
		return c
	}

	for _, d := range defs {
		ensure(d.StepIndex, d.Channel)
	}
	for _, s := range sends {
		ensure(s.StepIndex, s.Channel).Sent += s.Sent
	}
	for _, ev := range events {
		c, ok := countsByStep[ev.StepIndex]
		if !ok {
			continue
		}
		switch ev.EventType {
		case models.EventTypeDelivered:
			c.Delivered += ev.Count
		case models.EventTypeOpened:
			c.Opened += ev.Count
		case models.EventTypeClicked:
			c.Clicked += ev.Count
		case models.EventTypeReplied:
			c.Replied += ev.Count
		case models.EventTypeBounced:
			c.Bounced += ev.Count
		case models.EventTypeUnsubscribed:
			c.Unsubscribed += ev.Count
		}
	}
	sort.Ints(order)

	steps := make([]StepHealth, 0, len(order))
	var totalScore float64
	var totals []ChannelTotals
	channelSlot := make(map[models.Channel]int)
	for _, idx := range order {
		h := ScoreStep(idx, channelByStep[idx], *countsByStep[idx])
		steps = append(steps, h)
		totalScore += float64(h.HealthScore)

		slot, ok := channelSlot[h.Channel]
		if !ok {
			slot = len(totals)
			channelSlot[h.Channel] = slot
			totals = append(totals, ChannelTotals{Channel: h.Channel})
		}
		totals[slot].Sent += h.Sent
		totals[slot].Replied += h.Replied
	}

	// A campaign with no steps reads as an unsent one.
	mean := 50.0
	if len(steps) > 0 {
		mean = totalScore / float64(len(steps))
	}

	now := e.now()
	last, err := e.store.EventVolume(campaignID, now.Add(-24*time.Hour), now)
	if err != nil {
		return nil, err
	}
	prior, err := e.store.EventVolume(campaignID, now.Add(-48*time.Hour), now.Add(-24*time.Hour))
	if err != nil {
		return nil, err
	}

	return &CampaignHealth{
		CampaignID:      campaignID,
		OverallHealth:   OverallLabel(mean),
		AverageScore:    int(math.Round(mean)),
		BestChannel:     BestChannel(totals),
		EngagementTrend: Trend(last, prior),
		Steps:           steps,
		GeneratedAt:     now,
	}, nil
}
