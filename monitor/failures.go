package monitor

import "reachloop/models"

// FailureAdvice is one error category with its failure count and the
// canned guidance shown next to the bulk-retry control.
type FailureAdvice struct {
	Code           models.ErrorCode `json:"code"`
	Label          string           `json:"label"`
	Recommendation string           `json:"recommendation"`
	Count          int64            `json:"count"`
}

// The advice table is a closed mapping keyed on the error taxonomy, so
// the UI never has to parse diagnostic text.
var adviceTable = map[models.ErrorCode]struct {
	Label          string
	Recommendation string
}{
	models.ErrCodeConnectionTimeout: {"Connection timed out", "Retry these steps; timeouts usually clear on their own"},
	models.ErrCodeAccountNotLinked:  {"Sender account not linked", "Reconnect the sender account, then retry"},
	models.ErrCodeSessionExpired:    {"Session expired", "Sign the sender account back in, then retry"},
	models.ErrCodeProxyError:        {"Proxy error", "Check the proxy configured on the sender account"},
	models.ErrCodeMissingRecipient:  {"Missing recipient handle", "Fill in the missing contact field, then retry"},
	models.ErrCodeWarmupDeferred:    {"Deferred by warmup limit", "No action needed; these resume in the next send window"},
	models.ErrCodeRateLimited:       {"Rate limited by destination", "Wait before retrying, or spread sends across more accounts"},
	models.ErrCodeOther:             {"Send failed", "Check the error details and retry if it looks transient"},
	models.ErrCodeUnknown:           {"Unknown error", "Check the error details; contact support if it keeps happening"},
}

// AdviceFor returns the label and recommendation for an error category.
// Unrecognized codes fall back to the unknown entry.
func AdviceFor(code models.ErrorCode) (string, string) {
	if a, ok := adviceTable[code]; ok {
		return a.Label, a.Recommendation
	}
	a := adviceTable[models.ErrCodeUnknown]
	return a.Label, a.Recommendation
}

// FailureSummary reports a campaign's failed steps grouped by error
// category, most frequent first, each with its canned advice. The codes
// feed straight back into reset-failed's category filter.
func (e *Engine) FailureSummary(campaignID uint) ([]FailureAdvice, error) {
	counts, err := e.store.FailureCounts(campaignID)
	if err != nil {
		return nil, err
	}

	summary := make([]FailureAdvice, 0, len(counts))
	for _, c := range counts {
		label, rec := AdviceFor(c.ErrorCode)
		summary = append(summary, FailureAdvice{
			Code:           c.ErrorCode,
			Label:          label,
			Recommendation: rec,
			Count:          c.Count,
		})
	}
	return summary, nil
}
