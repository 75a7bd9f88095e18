package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"reachloop/adapter"
	"reachloop/config"
	"reachloop/models"
	"reachloop/store"
	"reachloop/utils"
	"reachloop/warmup"
)

// Rows stuck in executing longer than this are presumed lost to a crash
// or a hung adapter call and get swept back to pending.
const staleExecutingAfter = 5 * time.Minute

// SchedulerWorker drives the outreach state machine: every tick it
// sweeps stale claims, pulls due steps, applies the approval and warmup
// gates, and dispatches survivors to the channel adapters.
type SchedulerWorker struct {
	store    *store.StepStore
	limiter  *warmup.Limiter
	adapters map[models.Channel]adapter.ExecutionAdapter
	logger   *log.Logger

	interval    time.Duration
	execTimeout time.Duration
	batchSize   int
	concurrency int

	now func() time.Time
	rng *rand.Rand
}

func NewSchedulerWorker(st *store.StepStore, limiter *warmup.Limiter, adapters map[models.Channel]adapter.ExecutionAdapter, cfg *config.Config, logger *log.Logger) *SchedulerWorker {
	return &SchedulerWorker{
		store:       st,
		limiter:     limiter,
		adapters:    adapters,
		logger:      logger,
		interval:    time.Duration(cfg.SchedulerIntervalSec) * time.Second,
		execTimeout: time.Duration(cfg.ExecutionTimeoutSec) * time.Second,
		batchSize:   cfg.SchedulerBatchSize,
		concurrency: cfg.SchedulerConcurrency,
		now:         time.Now,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (sw *SchedulerWorker) Start(ctx context.Context) {
	sw.logger.Println("Scheduler worker started")

	ticker := time.NewTicker(sw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.logger.Println("Scheduler worker shutting down...")
			return
		case <-ticker.C:
			sw.RunPass(ctx)
		}
	}
}

// passState caches the rows a single pass looks up repeatedly, so one
// pass sees one consistent view. It is rebuilt from scratch every tick.
type passState struct {
	campaigns  map[uint]*models.Campaign
	workspaces map[uint]*models.Workspace
	accounts   map[uint]*models.SenderAccount
	contacts   map[uint]*models.Contact
	claimed    map[string]bool
}

// RunPass executes one scheduling cycle. Claims happen sequentially in
// due order so tie-breaking stays deterministic; the adapter calls fan
// out behind the claim.
func (sw *SchedulerWorker) RunPass(ctx context.Context) {
	now := sw.now()

	if swept, err := sw.store.ResetStaleExecuting(now, staleExecutingAfter); err != nil {
		sw.logger.Printf("Stale executing sweep failed: %v", err)
	} else if swept > 0 {
		sw.logger.Printf("Swept %d stale executing steps back to pending", swept)
	}

	sw.limiter.BeginPass()

	due, err := sw.store.Due(now, sw.batchSize)
	if err != nil {
		sw.logger.Printf("Due step query failed: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	ps := &passState{
		campaigns:  make(map[uint]*models.Campaign),
		workspaces: make(map[uint]*models.Workspace),
		accounts:   make(map[uint]*models.SenderAccount),
		contacts:   make(map[uint]*models.Contact),
		claimed:    make(map[string]bool),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sw.concurrency)

	campaignIDs := make(map[uint]bool)
	for i := range due {
		step := due[i]
		campaignIDs[step.CampaignID] = true

		// One executing step per contact and channel at a time.
		pair := fmt.Sprintf("%d|%s", step.ContactID, step.Channel)
		if ps.claimed[pair] {
			continue
		}

		ok, err := sw.store.Claim(step.ID, step.Status)
		if err != nil {
			sw.logger.Printf("Claim failed for step %d: %v", step.ID, err)
			continue
		}
		if !ok {
			// Lost the race to another scheduler instance.
			continue
		}
		ps.claimed[pair] = true

		campaign, err := sw.campaign(ps, step.CampaignID)
		if err != nil {
			sw.logger.Printf("Campaign %d lookup failed for step %d: %v", step.CampaignID, step.ID, err)
			sw.release(step.ID, step.ScheduledAt)
			continue
		}

		// Steps claimed out of pending get held for review when the
		// campaign or workspace demands approval.
		if step.Status == models.StepStatusPending {
			required, err := sw.approvalRequired(ps, campaign)
			if err != nil {
				sw.logger.Printf("Approval policy lookup failed for step %d: %v", step.ID, err)
				sw.release(step.ID, step.ScheduledAt)
				continue
			}
			if required {
				if err := sw.store.MarkRequiresApproval(step.ID); err != nil {
					sw.logger.Printf("Could not hold step %d for approval: %v", step.ID, err)
				}
				continue
			}
		}

		// Task channels have no sending account; the step just raises
		// work for a rep.
		var account *models.SenderAccount
		if !step.Channel.IsTask() {
			account, err = sw.account(ps, step.SenderAccountID)
			if err != nil {
				sw.logger.Printf("Account %d lookup failed for step %d: %v", step.SenderAccountID, step.ID, err)
				sw.release(step.ID, step.ScheduledAt)
				continue
			}

			if step.Channel.IsLinkedIn() && account.WarmupEnabled {
				decision, err := sw.limiter.Admit(account.ID, now)
				if err != nil {
					sw.logger.Printf("Warmup admission failed for step %d: %v", step.ID, err)
					sw.release(step.ID, step.ScheduledAt)
					continue
				}
				if !decision.Admit {
					// Not a failure. The step slides to the next
					// eligible window with no error recorded.
					sw.logger.Printf("Step %d deferred by warmup (account %d, day %d, %d/%d sent), next slot %s",
						step.ID, account.ID, decision.WarmupDay, decision.SentToday, decision.DailyCap,
						decision.NextEligibleAt.Format(time.RFC3339))
					sw.release(step.ID, decision.NextEligibleAt)
					continue
				}
			}
		}

		contact, err := sw.contact(ps, step.ContactID)
		if err != nil {
			sw.logger.Printf("Contact %d lookup failed for step %d: %v", step.ContactID, step.ID, err)
			sw.release(step.ID, step.ScheduledAt)
			continue
		}
		if contact.Status == models.ContactStatusUnsubscribed || contact.Status == models.ContactStatusDoNotContact {
			sw.skipExecuting(step.ID, "contact opted out")
			continue
		}

		charged := false
		if !step.Channel.IsTask() {
			ok, err := sw.store.ConsumeCredit(campaign.WorkspaceID)
			if err != nil {
				sw.logger.Printf("Credit check failed for workspace %d: %v", campaign.WorkspaceID, err)
				sw.release(step.ID, step.ScheduledAt)
				continue
			}
			if !ok {
				// Out of credits is a deferral, not a failure; the step
				// slides to a later business-window slot.
				sw.logger.Printf("Workspace %d is out of send credits; deferring step %d", campaign.WorkspaceID, step.ID)
				sw.release(step.ID, warmup.BusinessWindowSlot(now, 0, sw.rng))
				continue
			}
			charged = true
		}

		st, ws, trackOpens := step, campaign.WorkspaceID, campaign.TrackOpens
		g.Go(func() error {
			sw.executeStep(gctx, st, contact, account, ws, trackOpens, charged)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		sw.logger.Printf("Execution group finished with error: %v", err)
	}

	for campaignID := range campaignIDs {
		sw.maybeCompleteCampaign(campaignID)
	}
}

// executeStep runs one claimed step through its channel adapter and
// records the outcome.
func (sw *SchedulerWorker) executeStep(ctx context.Context, step models.ScheduledStep, contact *models.Contact, account *models.SenderAccount, workspaceID uint, trackOpens, charged bool) {
	ad, ok := sw.adapters[step.Channel]
	if !ok {
		sw.failStep(step, account, workspaceID, charged, models.ErrCodeOther, fmt.Sprintf("no adapter registered for channel %s", step.Channel))
		return
	}

	req := adapter.Request{
		Step:       &step,
		Contact:    contact,
		Account:    account,
		Subject:    utils.Personalize(step.Subject, contact),
		Body:       utils.Personalize(step.Body, contact),
		TrackOpens: trackOpens,
	}

	execCtx, cancel := context.WithTimeout(ctx, sw.execTimeout)
	defer cancel()

	result, err := ad.Execute(execCtx, req)
	now := sw.now()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			// The send may still have landed. Leave the row executing
			// and let the staleness sweep recover it.
			sw.logger.Printf("Step %d did not finish within %s; leaving it for the stale sweep", step.ID, sw.execTimeout)
			return
		}
		sw.failStep(step, account, workspaceID, charged, adapter.Classify(err), err.Error())
		return
	}

	if result.Completed {
		err = sw.store.MarkCompleted(step.ID, now, result.MessageID)
	} else {
		err = sw.store.MarkSent(step.ID, now, result.MessageID)
	}
	if err != nil {
		// Most likely the stale sweep reclaimed the row while the
		// adapter was running.
		sw.logger.Printf("Could not record success for step %d: %v", step.ID, err)
		return
	}

	if err := sw.store.MarkContactContacted(step.ContactID, now); err != nil {
		sw.logger.Printf("Could not stamp contact %d as contacted: %v", step.ContactID, err)
	}
	if err := sw.store.RecordEvent(&models.EngagementEvent{
		WorkspaceID: step.WorkspaceID,
		CampaignID:  step.CampaignID,
		ContactID:   step.ContactID,
		StepID:      step.ID,
		StepIndex:   step.StepIndex,
		Channel:     step.Channel,
		EventType:   models.EventTypeSent,
		OccurredAt:  now,
	}); err != nil {
		sw.logger.Printf("Could not record sent event for step %d: %v", step.ID, err)
	}
}

func (sw *SchedulerWorker) failStep(step models.ScheduledStep, account *models.SenderAccount, workspaceID uint, charged bool, code models.ErrorCode, msg string) {
	now := sw.now()
	sw.logger.Printf("Step %d failed (%s): %s", step.ID, code, msg)

	if err := sw.store.MarkFailed(step.ID, now, code, msg); err != nil {
		sw.logger.Printf("Could not record failure for step %d: %v", step.ID, err)
		return
	}
	if charged {
		if err := sw.store.RefundCredit(workspaceID); err != nil {
			sw.logger.Printf("Could not refund credit to workspace %d: %v", workspaceID, err)
		}
	}
	if account != nil {
		if err := sw.store.NoteAccountError(account.ID, msg, now); err != nil {
			sw.logger.Printf("Could not note error on account %d: %v", account.ID, err)
		}
	}
}

// release hands a claimed step back to pending with a new wake-up time.
func (sw *SchedulerWorker) release(stepID uint, scheduledAt time.Time) {
	if err := sw.store.ReleaseToPending(stepID, scheduledAt); err != nil {
		sw.logger.Printf("Could not release step %d back to pending: %v", stepID, err)
	}
}

func (sw *SchedulerWorker) skipExecuting(stepID uint, reason string) {
	if err := sw.store.SkipExecuting(stepID, reason); err != nil && !errors.Is(err, store.ErrInvalidStateTransition) {
		sw.logger.Printf("Could not skip step %d: %v", stepID, err)
	}
}

func (sw *SchedulerWorker) campaign(ps *passState, id uint) (*models.Campaign, error) {
	if c, ok := ps.campaigns[id]; ok {
		return c, nil
	}
	var c models.Campaign
	if err := sw.store.DB().First(&c, id).Error; err != nil {
		return nil, err
	}
	ps.campaigns[id] = &c
	return &c, nil
}

func (sw *SchedulerWorker) workspace(ps *passState, id uint) (*models.Workspace, error) {
	if w, ok := ps.workspaces[id]; ok {
		return w, nil
	}
	var w models.Workspace
	if err := sw.store.DB().First(&w, id).Error; err != nil {
		return nil, err
	}
	ps.workspaces[id] = &w
	return &w, nil
}

func (sw *SchedulerWorker) account(ps *passState, id uint) (*models.SenderAccount, error) {
	if a, ok := ps.accounts[id]; ok {
		return a, nil
	}
	var a models.SenderAccount
	if err := sw.store.DB().First(&a, id).Error; err != nil {
		return nil, err
	}
	ps.accounts[id] = &a
	return &a, nil
}

func (sw *SchedulerWorker) contact(ps *passState, id uint) (*models.Contact, error) {
	if c, ok := ps.contacts[id]; ok {
		return c, nil
	}
	var c models.Contact
	if err := sw.store.DB().First(&c, id).Error; err != nil {
		return nil, err
	}
	ps.contacts[id] = &c
	return &c, nil
}

func (sw *SchedulerWorker) approvalRequired(ps *passState, campaign *models.Campaign) (bool, error) {
	if campaign.RequiresApproval {
		return true, nil
	}
	ws, err := sw.workspace(ps, campaign.WorkspaceID)
	if err != nil {
		return false, err
	}
	return ws.RequireApproval, nil
}

// maybeCompleteCampaign flips an active campaign to completed once no
// step can still run.
func (sw *SchedulerWorker) maybeCompleteCampaign(campaignID uint) {
	counts, err := sw.store.StatusCounts(campaignID)
	if err != nil {
		sw.logger.Printf("Status count failed for campaign %d: %v", campaignID, err)
		return
	}
	open := counts[models.StepStatusPending] + counts[models.StepStatusApproved] +
		counts[models.StepStatusRequiresApproval] + counts[models.StepStatusExecuting] +
		counts[models.StepStatusDeferred]
	if open > 0 {
		return
	}

	now := sw.now()
	res := sw.store.DB().Model(&models.Campaign{}).
		Where("id = ? AND status = ?", campaignID, models.CampaignStatusActive).
		Updates(map[string]interface{}{
			"status":       models.CampaignStatusCompleted,
			"completed_at": now,
		})
	if res.Error != nil {
		sw.logger.Printf("Could not complete campaign %d: %v", campaignID, res.Error)
		return
	}
	if res.RowsAffected == 1 {
		sw.logger.Printf("Campaign %d completed", campaignID)
	}
}
