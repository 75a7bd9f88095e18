package monitor

import (
	"fmt"

	"reachloop/models"
)

// Insights is the contact-level narrative for a campaign.
type Insights struct {
	CampaignID    uint             `json:"campaign_id"`
	TotalContacts int64            `json:"total_contacts"`
	StatusCounts  map[string]int64 `json:"status_counts"`
	Narrative     []string         `json:"narrative"`
}

// CampaignInsights summarizes where a campaign's contacts stand.
func (e *Engine) CampaignInsights(campaignID uint) (*Insights, error) {
	counts, err := e.store.ContactStatusCounts(campaignID)
	if err != nil {
		return nil, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	return &Insights{
		CampaignID:    campaignID,
		TotalContacts: total,
		StatusCounts:  counts,
		Narrative:     SummarizeContacts(counts),
	}, nil
}

// SummarizeContacts renders contact-status counts as short narrative
// lines, in a fixed order so reports stay diffable.
func SummarizeContacts(counts map[string]int64) []string {
	var total int64
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return []string{"No contacts in this campaign yet"}
	}

	pending := counts[models.ContactStatusPending]
	contacted := counts[models.ContactStatusContacted]
	replied := counts[models.ContactStatusReplied]
	bounced := counts[models.ContactStatusBounced]
	unsubscribed := counts[models.ContactStatusUnsubscribed]
	doNotContact := counts[models.ContactStatusDoNotContact]

	reached := contacted + replied + bounced + unsubscribed

	var lines []string
	lines = append(lines, fmt.Sprintf("%d of %d contacts reached so far (%d%%)", reached, total, ratePercent(reached, total)))

	if replied > 0 {
		lines = append(lines, fmt.Sprintf("%d contacts replied (%d%% of those reached)", replied, ratePercent(replied, reached)))
	} else if reached > 0 {
		lines = append(lines, "No replies yet; give the sequence time to play out")
	}

	if bounced > 0 {
		if bounced*20 > total {
			lines = append(lines, fmt.Sprintf("%d addresses bounced; re-verify this list before sending more", bounced))
		} else {
			lines = append(lines, fmt.Sprintf("%d addresses bounced", bounced))
		}
	}
	if unsubscribed > 0 {
		lines = append(lines, fmt.Sprintf("%d contacts unsubscribed", unsubscribed))
	}
	if doNotContact > 0 {
		lines = append(lines, fmt.Sprintf("%d contacts are marked do-not-contact and will be skipped", doNotContact))
	}
	if pending > 0 {
		lines = append(lines, fmt.Sprintf("%d contacts are still waiting on their first touch", pending))
	}
	return lines
}
