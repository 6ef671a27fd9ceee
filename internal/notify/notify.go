// Package notify delivers engine lifecycle events to outside observers.
//
// Sinks are fire-and-forget: delivery problems are logged by the sink and never
// reach the caller.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Kind names a lifecycle event
type Kind string

const (
	ActionCompleted      Kind = "action.completed"
	ActionFailed         Kind = "action.failed"
	ActionRetryScheduled Kind = "action.retry_scheduled"
	ActionRateLimited    Kind = "action.rate_limited"
	LeadCompleted        Kind = "lead.sequence_completed"
	CampaignStarted      Kind = "campaign.started"
	CampaignPaused       Kind = "campaign.paused"
	CampaignResumed      Kind = "campaign.resumed"
	CampaignStopped      Kind = "campaign.stopped"
	CampaignCompleted    Kind = "campaign.completed"
	SessionInvalid       Kind = "account.session_invalid"
)

// Event is one lifecycle notification
type Event struct {
	Kind       Kind           `json:"kind"`
	CampaignID string         `json:"campaignId,omitempty"`
	ActionID   string         `json:"actionId,omitempty"`
	LeadID     string         `json:"leadId,omitempty"`
	AccountID  string         `json:"accountId,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
}

// Sink receives events
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// Nop discards events
type Nop struct{}

// Notify implements Sink
func (Nop) Notify(context.Context, Event) {}

// LogSink writes events to the structured log
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink logging at info, or warn for events needing attention
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("module", "notify").Logger()}
}

// Notify implements Sink
func (s *LogSink) Notify(_ context.Context, ev Event) {
	e := s.logger.Info()
	if ev.Kind.Alerting() {
		e = s.logger.Warn()
	}
	e = e.Str("event", string(ev.Kind))
	if ev.CampaignID != "" {
		e = e.Str("campaignId", ev.CampaignID)
	}
	if ev.ActionID != "" {
		e = e.Str("actionId", ev.ActionID)
	}
	if ev.LeadID != "" {
		e = e.Str("leadId", ev.LeadID)
	}
	if ev.AccountID != "" {
		e = e.Str("accountId", ev.AccountID)
	}
	if ev.Reason != "" {
		e = e.Str("reason", ev.Reason)
	}
	if len(ev.Data) > 0 {
		e = e.Interface("data", ev.Data)
	}
	e.Msg("Lifecycle event")
}

// Alerting reports whether the event needs operator attention
func (k Kind) Alerting() bool {
	switch k {
	case CampaignPaused, SessionInvalid, ActionFailed:
		return true
	}
	return false
}

// Multi fans an event out to several sinks
type Multi []Sink

// Notify implements Sink
func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, s := range m {
		s.Notify(ctx, ev)
	}
}

// Async decouples callers from slow sinks with a bounded buffer.
// Events arriving while the buffer is full are dropped and counted.
type Async struct {
	next   Sink
	events chan Event
	logger zerolog.Logger

	mu      sync.Mutex
	closed  bool
	dropped int
	done    chan struct{}
}

// NewAsync starts forwarding buffered events to next
func NewAsync(next Sink, buffer int, logger zerolog.Logger) *Async {
	a := &Async{
		next:   next,
		events: make(chan Event, buffer),
		logger: logger.With().Str("module", "notify").Logger(),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for ev := range a.events {
		a.next.Notify(context.Background(), ev)
	}
}

// Notify implements Sink
func (a *Async) Notify(_ context.Context, ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}

	select {
	case a.events <- ev:
	default:
		a.dropped++
		a.logger.Warn().Str("event", string(ev.Kind)).Int("dropped", a.dropped).Msg("Event buffer full, dropping event")
	}
}

// Dropped returns how many events were lost to a full buffer
func (a *Async) Dropped() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close delivers what is buffered and stops the forwarder
func (a *Async) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.events)
	a.mu.Unlock()

	<-a.done
}
