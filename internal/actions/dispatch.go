package actions

import (
	"context"
	"fmt"
	"time"

	"linkedin-outreach/internal/failure"
	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/notify"
	"linkedin-outreach/internal/queue"
	"linkedin-outreach/internal/workerpool"
)

// Summary counts what one due-action pass did
type Summary struct {
	Due         int `json:"due"`
	Dispatched  int `json:"dispatched"`
	Rescheduled int `json:"rescheduled"`
	Failed      int `json:"failed"`
	Skipped     int `json:"skipped"`
}

// ProcessDueActions takes up to batch pending actions that are due, earliest first,
// applies the campaign and limit guards and publishes the survivors for execution
func (s *Service) ProcessDueActions(ctx context.Context, batch int) (Summary, error) {
	var sum Summary
	now := s.now()

	due, err := s.actions.GetDue(now, batch)
	if err != nil {
		return sum, err
	}
	sum.Due = len(due)

	campaigns := make(map[string]*models.Campaign)
	accounts := make(map[string]bool)
	dispatched := make(map[string]int)

	for _, a := range due {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}

		s.mu.Lock()
		_, busy := s.inFlight[a.ID]
		s.mu.Unlock()
		if busy {
			sum.Skipped++
			continue
		}

		c, ok := campaigns[a.CampaignID]
		if !ok {
			if c, err = s.campaigns.Get(a.CampaignID); err != nil {
				return sum, err
			}
			campaigns[a.CampaignID] = c
		}

		if c == nil || c.Status != models.CampaignRunning {
			s.failNow(a, failure.Errorf(failure.CampaignNotRunning, "guard", "campaign not running"))
			sum.Failed++
			continue
		}

		method, ok := a.Type.Method()
		if !ok {
			s.failNow(a, failure.Errorf(failure.UnsupportedAction, "guard", "no executor method for action type %q", a.Type))
			sum.Failed++
			continue
		}

		if !accounts[a.AccountID] {
			if err := s.loadAccountLimits(a.AccountID); err != nil {
				return sum, err
			}
			accounts[a.AccountID] = true
		}

		under, err := s.underCap(c, a, method, now, dispatched[c.ID])
		if err != nil {
			return sum, err
		}
		if !under {
			s.rateLimited(a, failure.Errorf(failure.RateLimited, "guard", "daily limit reached for %s", method))
			sum.Rescheduled++
			continue
		}

		if !s.claim(a.ID) {
			sum.Skipped++
			continue
		}
		if _, err := s.queue.Publish(TopicActions, dispatch{ActionID: a.ID}); err != nil {
			s.release(a.ID)
			return sum, fmt.Errorf("failed to publish action %s: %w", a.ID, err)
		}

		s.limiter.RecordUsage(a.AccountID, method)
		dispatched[c.ID]++
		sum.Dispatched++

		s.logger.Debug().
			Str("actionId", a.ID).
			Str("campaignId", a.CampaignID).
			Str("accountId", a.AccountID).
			Str("type", string(a.Type)).
			Msg("Action dispatched")
	}

	if sum.Due > 0 {
		s.logger.Info().
			Int("due", sum.Due).
			Int("dispatched", sum.Dispatched).
			Int("rescheduled", sum.Rescheduled).
			Int("failed", sum.Failed).
			Int("skipped", sum.Skipped).
			Msg("Processed due actions")
	}

	return sum, nil
}

func (s *Service) loadAccountLimits(accountID string) error {
	account, err := s.accounts.Get(accountID)
	if err != nil {
		return err
	}
	if account != nil {
		s.limiter.SetAccountLimits(accountID, account.Limits)
	}
	return nil
}

// underCap checks the account limiter and the campaign's daily cap
func (s *Service) underCap(c *models.Campaign, a *models.CampaignAction, m models.Method, now time.Time, inBatch int) (bool, error) {
	if !s.limiter.CheckLimit(a.AccountID, m) {
		return false, nil
	}

	completed, err := s.actions.CountCompletedSince(c.ID, now.Add(-24*time.Hour))
	if err != nil {
		return false, err
	}
	return completed+inBatch < s.cfg.CampaignDailyCap, nil
}

// nextWindow picks a random time inside the reschedule window of the following day
func (s *Service) nextWindow(now time.Time) time.Time {
	day := now.AddDate(0, 0, 1)
	start := time.Date(day.Year(), day.Month(), day.Day(), s.schedule.RescheduleStartHour, 0, 0, 0, now.Location())
	span := time.Duration(s.schedule.RescheduleEndHour-s.schedule.RescheduleStartHour) * time.Hour
	if span <= 0 {
		return start
	}

	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return start.Add(time.Duration(s.rnd.Int63n(int64(span))))
}

// onDispatch hands each action to its own execution so one slow account does not hold the topic
func (s *Service) onDispatch(_ context.Context, msg queue.Message) error {
	d, ok := msg.Payload.(dispatch)
	if !ok {
		return fmt.Errorf("unexpected dispatch payload %T", msg.Payload)
	}

	s.mu.Lock()
	if s.closed {
		delete(s.inFlight, d.ActionID)
		s.mu.Unlock()
		return failure.Errorf(failure.Shutdown, "dispatch", "action service is shut down")
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.execute(d.ActionID)
	}()
	return nil
}

// execute resolves the action, re-validates its campaign and runs it on the worker pool
func (s *Service) execute(actionID string) {
	a, err := s.actions.Get(actionID)
	if err != nil || a == nil || a.Status != models.ActionPending {
		if err != nil {
			s.logger.Error().Err(err).Str("actionId", actionID).Msg("Failed to load dispatched action")
		}
		s.release(actionID)
		return
	}

	res, err := s.run(a)
	out := outcome{ActionID: a.ID, Result: res, Err: err, FinishedAt: s.now()}

	// Once closing, the result consumer may already be gone
	s.mu.Lock()
	closed := s.closed
	if !closed {
		s.results.Add(1)
	}
	s.mu.Unlock()
	if closed {
		s.handleOutcome(out)
		return
	}

	if _, perr := s.queue.Publish(TopicResults, out); perr != nil {
		s.logger.Warn().Err(perr).Str("actionId", a.ID).Msg("Result topic unavailable, handling result inline")
		s.handleOutcome(out)
		s.results.Done()
	}
}

func (s *Service) run(a *models.CampaignAction) (*workerpool.Result, error) {
	c, err := s.campaigns.Get(a.CampaignID)
	if err != nil {
		return nil, failure.New(failure.Transient, "resolve campaign", err)
	}
	if c == nil || c.Status != models.CampaignRunning {
		return nil, failure.Errorf(failure.CampaignNotRunning, "resolve campaign", "campaign not running")
	}

	lead, err := s.leads.Get(a.LeadID)
	if err != nil {
		return nil, failure.New(failure.Transient, "resolve lead", err)
	}
	if lead == nil {
		return nil, failure.Errorf(failure.UnsupportedAction, "resolve lead", "lead %s not found", a.LeadID)
	}

	method, ok := a.Type.Method()
	if !ok {
		return nil, failure.Errorf(failure.UnsupportedAction, "resolve method", "no executor method for action type %q", a.Type)
	}

	if err := s.accounts.MarkUsed(a.AccountID, s.now()); err != nil {
		s.logger.Warn().Err(err).Str("accountId", a.AccountID).Msg("Failed to touch account")
	}

	return s.executor.ExecuteAction(s.ctx, workerpool.Request{
		ActionID:   a.ID,
		AccountID:  a.AccountID,
		Method:     method,
		ProfileURL: lead.ProfileURL,
		Message:    models.Text(a.Payload),
		Subject:    models.Subject(a.Payload),
	})
}

// failNow records a guard failure that ends the action without a retry
func (s *Service) failNow(a *models.CampaignAction, err error) {
	class := failure.ClassOf(err)
	if _, ferr := s.actions.Fail(a.ID, a.RetryCount, err.Error(), string(class)); ferr != nil {
		s.logger.Error().Err(ferr).Str("actionId", a.ID).Msg("Failed to mark action failed")
		return
	}

	s.logger.Warn().
		Str("actionId", a.ID).
		Str("campaignId", a.CampaignID).
		Str("class", string(class)).
		Err(err).
		Msg("Action failed")

	s.emit(notify.Event{
		Kind:       notify.ActionFailed,
		CampaignID: a.CampaignID,
		ActionID:   a.ID,
		LeadID:     a.LeadID,
		AccountID:  a.AccountID,
		Reason:     err.Error(),
	})

	if class != failure.CampaignNotRunning {
		s.failLead(a.LeadID)
	}
	s.refreshAnalytics(a.CampaignID)
}

// rateLimited pushes the action into the next day's window without consuming a retry
func (s *Service) rateLimited(a *models.CampaignAction, err error) {
	at := s.nextWindow(s.now())
	if _, rerr := s.actions.Reschedule(a.ID, at, a.RetryCount, err.Error(), string(failure.RateLimited)); rerr != nil {
		s.logger.Error().Err(rerr).Str("actionId", a.ID).Msg("Failed to reschedule rate limited action")
		return
	}

	s.logger.Info().
		Str("actionId", a.ID).
		Str("accountId", a.AccountID).
		Time("scheduledFor", at).
		Msg("Action rescheduled by rate limit")

	s.emit(notify.Event{
		Kind:       notify.ActionRateLimited,
		CampaignID: a.CampaignID,
		ActionID:   a.ID,
		AccountID:  a.AccountID,
		Reason:     err.Error(),
		Data:       map[string]any{"scheduledFor": at},
	})
}
