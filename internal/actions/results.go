package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"linkedin-outreach/internal/failure"
	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/notify"
	"linkedin-outreach/internal/queue"
	"linkedin-outreach/internal/sequence"
	"linkedin-outreach/internal/storage"
	"linkedin-outreach/internal/workerpool"
)

// ResultAlreadyConnected is reported by a session when an invite finds the lead already connected
const ResultAlreadyConnected = "already_connected"

// Backoff returns the retry delay for the n-th retry: base doubled per retry, capped at limit
func Backoff(n int, base, limit time.Duration) time.Duration {
	if n < 1 {
		n = 1
	}
	d := base
	for i := 1; i < n && d < limit; i++ {
		d *= 2
	}
	if d > limit {
		return limit
	}
	return d
}

func (s *Service) onResult(_ context.Context, msg queue.Message) error {
	out, ok := msg.Payload.(outcome)
	if !ok {
		return fmt.Errorf("unexpected result payload %T", msg.Payload)
	}
	defer s.results.Done()
	s.handleOutcome(out)
	return nil
}

func (s *Service) handleOutcome(out outcome) {
	defer s.release(out.ActionID)

	a, err := s.actions.Get(out.ActionID)
	if err != nil {
		s.logger.Error().Err(err).Str("actionId", out.ActionID).Msg("Failed to load action for result")
		return
	}
	if a == nil || a.Status != models.ActionPending {
		// Already resolved by an earlier delivery
		return
	}

	if out.Err != nil {
		s.handleFailure(a, out.Err, out.FinishedAt)
		return
	}
	s.handleSuccess(a, out.Result, out.FinishedAt)
}

func (s *Service) handleSuccess(a *models.CampaignAction, res *workerpool.Result, at time.Time) {
	response := ""
	if res != nil {
		response = res.Message
	}

	ok, err := s.actions.Complete(a.ID, at, response)
	if err != nil {
		s.logger.Error().Err(err).Str("actionId", a.ID).Msg("Failed to complete action")
		return
	}
	if !ok {
		return
	}

	s.logger.Info().
		Str("actionId", a.ID).
		Str("campaignId", a.CampaignID).
		Str("leadId", a.LeadID).
		Str("type", string(a.Type)).
		Msg("Action completed")

	lead, err := s.leads.Get(a.LeadID)
	if err != nil || lead == nil {
		if err != nil {
			s.logger.Error().Err(err).Str("leadId", a.LeadID).Msg("Failed to load lead")
		}
		s.refreshAnalytics(a.CampaignID)
		return
	}

	applyOutcome(lead, a.Type, res)
	lead.LastActionAt = &at
	lead.LastActionNodeID = a.NodeID

	c, err := s.campaigns.Get(a.CampaignID)
	if err != nil {
		s.logger.Error().Err(err).Str("campaignId", a.CampaignID).Msg("Failed to load campaign")
	}

	finished := false
	if c != nil && c.Status == models.CampaignRunning {
		finished = s.advance(c, lead, a.NodeID, at)
	}

	if err := s.leads.UpdateProgress(lead); err != nil {
		s.logger.Error().Err(err).Str("leadId", lead.ID).Msg("Failed to update lead progress")
	}
	if err := s.campaigns.TouchLastRun(a.CampaignID, at); err != nil {
		s.logger.Warn().Err(err).Str("campaignId", a.CampaignID).Msg("Failed to touch campaign")
	}
	s.refreshAnalytics(a.CampaignID)

	s.emit(notify.Event{
		Kind:       notify.ActionCompleted,
		CampaignID: a.CampaignID,
		ActionID:   a.ID,
		LeadID:     a.LeadID,
		AccountID:  a.AccountID,
		Data:       map[string]any{"type": string(a.Type), "response": response},
	})

	if finished {
		s.emit(notify.Event{Kind: notify.LeadCompleted, CampaignID: a.CampaignID, LeadID: a.LeadID})
		s.maybeComplete(a.CampaignID)
	}
}

// advance creates the lead's next action, or marks its sequence completed.
// It reports whether the sequence is finished.
func (s *Service) advance(c *models.Campaign, lead *models.Lead, nodeID string, at time.Time) bool {
	seq, err := s.sequences.Get(c.SequenceID)
	if err != nil || seq == nil {
		s.logger.Error().Err(err).Str("sequenceId", c.SequenceID).Msg("Failed to load sequence")
		return false
	}

	plan, ok := s.planner.Next(seq, lead, nodeID, at)
	if !ok {
		lead.Status = models.LeadSequenceCompleted
		return true
	}

	s.createPlanned(c, lead, plan)
	return false
}

// createPlanned stores a planned action; a lead that already holds a pending action is skipped
func (s *Service) createPlanned(c *models.Campaign, lead *models.Lead, plan *sequence.Plan) bool {
	action := &models.CampaignAction{
		ID:           uuid.NewString(),
		CampaignID:   c.ID,
		LeadID:       lead.ID,
		AccountID:    c.AccountID,
		Type:         plan.Type,
		Status:       models.ActionPending,
		ScheduledFor: plan.ScheduledFor,
		NodeID:       plan.NodeID,
		Payload:      plan.Payload,
	}

	if err := s.actions.Create(action); err != nil {
		if errors.Is(err, storage.ErrPendingExists) {
			s.logger.Debug().Str("leadId", lead.ID).Msg("Lead already has a pending action")
			return false
		}
		s.logger.Error().Err(err).Str("leadId", lead.ID).Msg("Failed to create next action")
		return false
	}

	s.logger.Debug().
		Str("actionId", action.ID).
		Str("leadId", lead.ID).
		Str("type", string(action.Type)).
		Time("scheduledFor", action.ScheduledFor).
		Msg("Next action scheduled")
	return true
}

// applyOutcome updates the lead's denormalized state for a completed action
func applyOutcome(lead *models.Lead, t models.ActionType, res *workerpool.Result) {
	switch t {
	case models.ActionInviteSent:
		lead.Flags.InviteSent = true
		if res != nil && res.Action == ResultAlreadyConnected {
			lead.ConnectionStatus = models.ConnectionConnected
			if lead.Status == models.LeadNew || lead.Status == models.LeadInviteSent {
				lead.Status = models.LeadConnected
			}
			return
		}
		if lead.ConnectionStatus != models.ConnectionConnected {
			lead.ConnectionStatus = models.ConnectionPending
		}
		if lead.Status == models.LeadNew {
			lead.Status = models.LeadInviteSent
		}
	case models.ActionMessageSent:
		lead.Flags.MessageSent = true
		lead.Status = models.LeadMessageSent
	case models.ActionProfileViewed:
		lead.Flags.ProfileViewed = true
	case models.ActionProfileFollow:
		lead.Flags.Followed = true
	case models.ActionPostLiked:
		lead.Flags.PostLiked = true
	case models.ActionSkillsEndorsed:
		lead.Flags.SkillsEndorsed = true
	case models.ActionEmailSent:
		lead.Flags.EmailSent = true
	}
}

func (s *Service) handleFailure(a *models.CampaignAction, err error, at time.Time) {
	class := failure.ClassOf(err)

	switch {
	case class == failure.RateLimited:
		s.rateLimited(a, err)
		return

	case class == failure.Shutdown:
		// Interrupted by shutdown: keep it due with its retry budget intact
		if _, rerr := s.actions.Reschedule(a.ID, a.ScheduledFor, a.RetryCount, err.Error(), string(class)); rerr != nil {
			s.logger.Error().Err(rerr).Str("actionId", a.ID).Msg("Failed to record interrupted action")
		}
		s.logger.Info().Str("actionId", a.ID).Msg("Action interrupted by shutdown, left pending")
		return

	case !class.Retryable():
		if class == failure.SessionInvalid {
			s.emit(notify.Event{
				Kind:       notify.SessionInvalid,
				CampaignID: a.CampaignID,
				AccountID:  a.AccountID,
				Reason:     err.Error(),
			})
		}
		s.failNow(a, err)
		s.maybeComplete(a.CampaignID)
		return
	}

	retries := a.RetryCount + 1
	if retries > s.cfg.MaxRetries {
		s.failNow(a, err)
		s.maybeComplete(a.CampaignID)
		return
	}

	delay := Backoff(retries, s.cfg.BackoffBase, s.cfg.BackoffMax)
	next := at.Add(delay)
	if _, rerr := s.actions.Reschedule(a.ID, next, retries, err.Error(), string(class)); rerr != nil {
		s.logger.Error().Err(rerr).Str("actionId", a.ID).Msg("Failed to reschedule action")
		return
	}

	s.logger.Warn().
		Str("actionId", a.ID).
		Str("campaignId", a.CampaignID).
		Str("class", string(class)).
		Int("retryCount", retries).
		Dur("delay", delay).
		Err(err).
		Msg("Action failed, retry scheduled")

	s.emit(notify.Event{
		Kind:       notify.ActionRetryScheduled,
		CampaignID: a.CampaignID,
		ActionID:   a.ID,
		LeadID:     a.LeadID,
		AccountID:  a.AccountID,
		Reason:     err.Error(),
		Data:       map[string]any{"retryCount": retries, "scheduledFor": next},
	})
	s.refreshAnalytics(a.CampaignID)
}

// failLead marks the lead failed after its action failed for good
func (s *Service) failLead(leadID string) {
	lead, err := s.leads.Get(leadID)
	if err != nil || lead == nil {
		return
	}
	lead.Status = models.LeadFailed
	if err := s.leads.UpdateProgress(lead); err != nil {
		s.logger.Error().Err(err).Str("leadId", leadID).Msg("Failed to mark lead failed")
	}
}

// statusFromFlags derives a lead status from what it has completed so far
func statusFromFlags(lead *models.Lead) models.LeadStatus {
	switch {
	case lead.Flags.MessageSent:
		return models.LeadMessageSent
	case lead.ConnectionStatus == models.ConnectionConnected:
		return models.LeadConnected
	case lead.Flags.InviteSent:
		return models.LeadInviteSent
	}
	return models.LeadNew
}

// ComputeAnalytics builds campaign analytics from action and lead aggregates
func ComputeAnalytics(actions map[models.ActionType]map[models.ActionStatus]int, leads map[models.LeadStatus]int) models.CampaignAnalytics {
	var a models.CampaignAnalytics

	for t, byStatus := range actions {
		done := byStatus[models.ActionCompleted]
		switch t {
		case models.ActionInviteSent:
			a.InvitesSent = done
		case models.ActionMessageSent:
			a.MessagesSent = done
		case models.ActionProfileViewed:
			a.ProfilesViewed = done
		case models.ActionProfileFollow:
			a.Follows = done
		case models.ActionPostLiked:
			a.Likes = done
		case models.ActionSkillsEndorsed:
			a.Endorsements = done
		case models.ActionEmailSent:
			a.EmailsSent = done
		}
		a.Completed += done
		a.Failed += byStatus[models.ActionFailed]
		a.Pending += byStatus[models.ActionPending]
	}

	accepted := leads[models.LeadConnected] + leads[models.LeadMessageSent] + leads[models.LeadReplied]
	if a.InvitesSent > 0 {
		a.AcceptanceRate = float64(accepted) / float64(a.InvitesSent) * 100
	}
	if a.MessagesSent > 0 {
		a.ReplyRate = float64(leads[models.LeadReplied]) / float64(a.MessagesSent) * 100
	}

	return a
}

func (s *Service) refreshAnalytics(campaignID string) {
	counts, err := s.actions.CountByTypeAndStatus(campaignID)
	if err != nil {
		s.logger.Error().Err(err).Str("campaignId", campaignID).Msg("Failed to aggregate actions")
		return
	}
	leads, err := s.leads.CountByStatus(campaignID)
	if err != nil {
		s.logger.Error().Err(err).Str("campaignId", campaignID).Msg("Failed to aggregate leads")
		return
	}

	if err := s.campaigns.UpdateAnalytics(campaignID, ComputeAnalytics(counts, leads)); err != nil {
		s.logger.Error().Err(err).Str("campaignId", campaignID).Msg("Failed to store analytics")
	}
}

// maybeComplete finishes a running campaign that has no pending work and no active leads
func (s *Service) maybeComplete(campaignID string) {
	pending, err := s.actions.CountPending(campaignID)
	if err != nil || pending > 0 {
		return
	}
	active, err := s.leads.CountActive(campaignID)
	if err != nil || active > 0 {
		return
	}
	byStatus, err := s.leads.CountByStatus(campaignID)
	if err != nil || len(byStatus) == 0 {
		return
	}

	ok, err := s.campaigns.Transition(campaignID, models.CampaignCompleted, "", s.now(), models.CampaignRunning)
	if err != nil {
		s.logger.Error().Err(err).Str("campaignId", campaignID).Msg("Failed to complete campaign")
		return
	}
	if ok {
		s.logger.Info().Str("campaignId", campaignID).Msg("Campaign completed")
		s.emit(notify.Event{Kind: notify.CampaignCompleted, CampaignID: campaignID})
	}
}
