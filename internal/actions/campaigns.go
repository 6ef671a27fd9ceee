package actions

import (
	"context"
	"fmt"

	"linkedin-outreach/internal/failure"
	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/notify"
)

// StartCampaign attaches the campaign's lead lists, moves it to running and
// schedules the first step for every enrolled lead. It returns the number of
// actions created.
func (s *Service) StartCampaign(ctx context.Context, id string) (int, error) {
	c, err := s.campaigns.Get(id)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, ErrCampaignNotFound
	}
	if len(c.LeadListIDs) == 0 {
		return 0, ErrNoLeadLists
	}
	if c.Status != models.CampaignDraft {
		return 0, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, models.CampaignRunning)
	}

	seq, err := s.sequences.Get(c.SequenceID)
	if err != nil {
		return 0, err
	}
	if seq == nil {
		return 0, ErrSequenceNotFound
	}

	attached, err := s.leads.AttachLists(c.ID, c.LeadListIDs)
	if err != nil {
		return 0, err
	}

	ok, err := s.campaigns.Transition(c.ID, models.CampaignRunning, "", s.now(), models.CampaignDraft)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: campaign changed status concurrently", ErrInvalidTransition)
	}
	c.Status = models.CampaignRunning

	created, err := s.enrollNew(ctx, c, seq)
	if err != nil {
		return created, err
	}

	s.logger.Info().
		Str("campaignId", c.ID).
		Int64("attached", attached).
		Int("created", created).
		Msg("Campaign started")

	s.emit(notify.Event{Kind: notify.CampaignStarted, CampaignID: c.ID, Data: map[string]any{"actions": created}})
	s.refreshAnalytics(c.ID)
	return created, nil
}

// PauseCampaign moves a running campaign to paused with a recorded reason
func (s *Service) PauseCampaign(id, reason string) error {
	if err := s.transition(id, models.CampaignPaused, reason, models.CampaignRunning); err != nil {
		return err
	}

	s.logger.Warn().Str("campaignId", id).Str("reason", reason).Msg("Campaign paused")
	s.emit(notify.Event{Kind: notify.CampaignPaused, CampaignID: id, Reason: reason})
	return nil
}

// ResumeCampaign moves a paused campaign back to running. Actions that were
// failed because the campaign was not running become pending again, and leads
// whose next step was never scheduled get it now.
func (s *Service) ResumeCampaign(ctx context.Context, id string) (int, error) {
	if err := s.transition(id, models.CampaignRunning, "", models.CampaignPaused); err != nil {
		return 0, err
	}

	reset, err := s.actions.ResetFailed(id, s.now(), string(failure.CampaignNotRunning))
	if err != nil {
		return 0, err
	}

	c, err := s.campaigns.Get(id)
	if err != nil {
		return len(reset), err
	}
	created, err := s.continueIdle(ctx, c)
	if err != nil {
		return len(reset), err
	}

	s.logger.Info().
		Str("campaignId", id).
		Int("reset", len(reset)).
		Int("created", created).
		Msg("Campaign resumed")

	s.emit(notify.Event{Kind: notify.CampaignResumed, CampaignID: id})
	s.refreshAnalytics(id)
	return len(reset) + created, nil
}

// StopCampaign ends a campaign. Its pending actions fail at their next dispatch.
func (s *Service) StopCampaign(id string) error {
	if err := s.transition(id, models.CampaignStopped, "", models.CampaignDraft, models.CampaignRunning, models.CampaignPaused); err != nil {
		return err
	}

	s.logger.Info().Str("campaignId", id).Msg("Campaign stopped")
	s.emit(notify.Event{Kind: notify.CampaignStopped, CampaignID: id})
	return nil
}

// RetryFailedActions moves each lead's latest failed action back to pending,
// due now with a fresh retry budget. A completed campaign with retried actions
// is running again.
func (s *Service) RetryFailedActions(id string) (int, error) {
	c, err := s.campaigns.Get(id)
	if err != nil {
		return 0, err
	}
	if c == nil {
		return 0, ErrCampaignNotFound
	}

	leadIDs, err := s.actions.ResetFailed(id, s.now(), "")
	if err != nil {
		return 0, err
	}

	for _, leadID := range leadIDs {
		lead, err := s.leads.Get(leadID)
		if err != nil {
			return len(leadIDs), err
		}
		if lead == nil || lead.Status != models.LeadFailed {
			continue
		}
		lead.Status = statusFromFlags(lead)
		if err := s.leads.UpdateProgress(lead); err != nil {
			return len(leadIDs), err
		}
	}

	if len(leadIDs) > 0 && c.Status == models.CampaignCompleted {
		if _, err := s.campaigns.Transition(id, models.CampaignRunning, "", s.now(), models.CampaignCompleted); err != nil {
			return len(leadIDs), err
		}
	}

	s.logger.Info().Str("campaignId", id).Int("reset", len(leadIDs)).Msg("Failed actions reset")
	s.refreshAnalytics(id)
	return len(leadIDs), nil
}

// Enroll schedules work for a running campaign: first steps for new leads,
// and the next step for leads stalled past their status threshold
func (s *Service) Enroll(ctx context.Context, c *models.Campaign) (int, error) {
	seq, err := s.sequences.Get(c.SequenceID)
	if err != nil {
		return 0, err
	}
	if seq == nil {
		return 0, ErrSequenceNotFound
	}

	if _, err := s.leads.AttachLists(c.ID, c.LeadListIDs); err != nil {
		return 0, err
	}

	created, err := s.enrollNew(ctx, c, seq)
	if err != nil {
		return created, err
	}

	now := s.now()
	stalled, err := s.leads.ListStalled(c.ID, now.Add(-s.cfg.InviteFollowupAfter), now.Add(-s.cfg.MessageFollowupAfter))
	if err != nil {
		return created, err
	}
	n, err := s.continueLeads(ctx, c, seq, stalled)
	created += n
	if err != nil {
		return created, err
	}

	if created > 0 {
		s.logger.Info().Str("campaignId", c.ID).Int("created", created).Msg("Leads enrolled")
	}
	s.maybeComplete(c.ID)
	return created, nil
}

// enrollNew schedules the first step for leads that never had an action,
// staggered by their position
func (s *Service) enrollNew(ctx context.Context, c *models.Campaign, seq *models.Sequence) (int, error) {
	leads, err := s.leads.ListUnstarted(c.ID)
	if err != nil {
		return 0, err
	}

	now := s.now()
	created := 0
	for _, lead := range leads {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}

		plan, ok := s.planner.First(seq, lead, now, created)
		if !ok {
			lead.Status = models.LeadSequenceCompleted
			if err := s.leads.UpdateProgress(lead); err != nil {
				return created, err
			}
			continue
		}
		if s.createPlanned(c, lead, plan) {
			created++
		}
	}

	return created, nil
}

func (s *Service) continueIdle(ctx context.Context, c *models.Campaign) (int, error) {
	if c == nil {
		return 0, ErrCampaignNotFound
	}
	seq, err := s.sequences.Get(c.SequenceID)
	if err != nil {
		return 0, err
	}
	if seq == nil {
		return 0, ErrSequenceNotFound
	}

	idle, err := s.leads.ListIdle(c.ID)
	if err != nil {
		return 0, err
	}
	return s.continueLeads(ctx, c, seq, idle)
}

// continueLeads schedules the step after each lead's last completed node
func (s *Service) continueLeads(ctx context.Context, c *models.Campaign, seq *models.Sequence, leads []*models.Lead) (int, error) {
	now := s.now()
	created := 0
	for _, lead := range leads {
		if ctx.Err() != nil {
			return created, ctx.Err()
		}

		plan, ok := s.planner.Next(seq, lead, lead.LastActionNodeID, now)
		if !ok {
			lead.Status = models.LeadSequenceCompleted
			if err := s.leads.UpdateProgress(lead); err != nil {
				return created, err
			}
			s.emit(notify.Event{Kind: notify.LeadCompleted, CampaignID: c.ID, LeadID: lead.ID})
			continue
		}
		if s.createPlanned(c, lead, plan) {
			created++
		}
	}
	return created, nil
}

func (s *Service) transition(id string, to models.CampaignStatus, reason string, from ...models.CampaignStatus) error {
	ok, err := s.campaigns.Transition(id, to, reason, s.now(), from...)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	c, err := s.campaigns.Get(id)
	if err != nil {
		return err
	}
	if c == nil {
		return ErrCampaignNotFound
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
}
