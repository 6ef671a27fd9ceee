package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// SentrySink reports alerting events as sentry messages and keeps the rest as breadcrumbs
type SentrySink struct {
	hub    *sentry.Hub
	logger zerolog.Logger
}

// NewSentrySink creates a sink with its own sentry client
func NewSentrySink(dsn string, logger zerolog.Logger) (*SentrySink, error) {
	client, err := sentry.NewClient(sentry.ClientOptions{Dsn: dsn})
	if err != nil {
		return nil, fmt.Errorf("failed to create sentry client: %w", err)
	}
	return newSentrySink(sentry.NewHub(client, sentry.NewScope()), logger), nil
}

func newSentrySink(hub *sentry.Hub, logger zerolog.Logger) *SentrySink {
	return &SentrySink{
		hub:    hub,
		logger: logger.With().Str("module", "notify").Str("sink", "sentry").Logger(),
	}
}

// Notify implements Sink
func (s *SentrySink) Notify(_ context.Context, ev Event) {
	data := map[string]interface{}{}
	for k, v := range ev.Data {
		data[k] = v
	}
	for k, v := range map[string]string{
		"campaignId": ev.CampaignID,
		"actionId":   ev.ActionID,
		"leadId":     ev.LeadID,
		"accountId":  ev.AccountID,
		"reason":     ev.Reason,
	} {
		if v != "" {
			data[k] = v
		}
	}

	if !ev.Kind.Alerting() {
		s.hub.AddBreadcrumb(&sentry.Breadcrumb{
			Type:      "info",
			Category:  string(ev.Kind),
			Data:      data,
			Timestamp: ev.At,
		}, nil)
		return
	}

	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("event_type", string(ev.Kind))
		if ev.CampaignID != "" {
			scope.SetTag("campaign_id", ev.CampaignID)
		}
		for k, v := range data {
			scope.SetExtra(k, v)
		}
		scope.SetLevel(sentry.LevelWarning)
		if id := s.hub.CaptureMessage(message(ev)); id == nil {
			s.logger.Debug().Str("event", string(ev.Kind)).Msg("Sentry dropped event")
		}
	})
}

// Close flushes queued sentry events
func (s *SentrySink) Close() {
	s.hub.Flush(2 * time.Second)
}

func message(ev Event) string {
	if ev.Reason == "" {
		return string(ev.Kind)
	}
	return fmt.Sprintf("%s: %s", ev.Kind, ev.Reason)
}
