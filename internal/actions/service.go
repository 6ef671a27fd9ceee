// Package actions runs the lifecycle of scheduled campaign actions.
//
// Due actions are checked against the campaign state and the account limits,
// published on the dispatch topic and executed through the worker pool. Their
// results come back on the result topic, where the action is completed or
// retried and the lead is advanced to its next sequence step.
package actions

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/notify"
	"linkedin-outreach/internal/queue"
	"linkedin-outreach/internal/ratelimit"
	"linkedin-outreach/internal/sequence"
	"linkedin-outreach/internal/storage"
	"linkedin-outreach/internal/workerpool"
)

const resultDrainTimeout = 5 * time.Second

// Queue topics
const (
	TopicActions = "campaign-actions"
	TopicResults = "action-results"
)

var (
	ErrCampaignNotFound  = errors.New("campaign not found")
	ErrSequenceNotFound  = errors.New("sequence not found")
	ErrNoLeadLists       = errors.New("campaign has no lead lists")
	ErrInvalidTransition = errors.New("campaign cannot make this transition from its current status")
)

// Executor runs one action on an account's session
type Executor interface {
	ExecuteAction(ctx context.Context, req workerpool.Request) (*workerpool.Result, error)
	Stats() workerpool.Stats
}

// Deps are the collaborators of the service
type Deps struct {
	Campaigns *storage.CampaignStore
	Sequences *storage.SequenceStore
	Leads     *storage.LeadStore
	Actions   *storage.ActionStore
	Accounts  *storage.AccountStore

	Queue    *queue.Queue
	Executor Executor
	Limiter  *ratelimit.Limiter
	Planner  *sequence.Planner
	Sink     notify.Sink

	// Rand drives the rate-limit reschedule window; nil uses a time seed
	Rand *rand.Rand
}

// dispatch is the payload of the action topic
type dispatch struct {
	ActionID string
}

// outcome is the payload of the result topic
type outcome struct {
	ActionID   string
	Result     *workerpool.Result
	Err        error
	FinishedAt time.Time
}

// Service is the action state machine
type Service struct {
	cfg      config.EngineConfig
	schedule config.ScheduleConfig

	campaigns *storage.CampaignStore
	sequences *storage.SequenceStore
	leads     *storage.LeadStore
	actions   *storage.ActionStore
	accounts  *storage.AccountStore

	queue    *queue.Queue
	executor Executor
	limiter  *ratelimit.Limiter
	planner  *sequence.Planner
	sink     notify.Sink
	logger   zerolog.Logger

	now   func() time.Time
	rndMu sync.Mutex
	rnd   *rand.Rand

	mu       sync.Mutex
	inFlight map[string]struct{}
	subs     []*queue.Subscription
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// results counts outcomes published but not yet handled
	results sync.WaitGroup
}

// New creates the service. Start must be called before actions are processed.
func New(cfg config.EngineConfig, schedule config.ScheduleConfig, deps Deps, logger zerolog.Logger) *Service {
	rnd := deps.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	sink := deps.Sink
	if sink == nil {
		sink = notify.Nop{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		cfg:       cfg,
		schedule:  schedule,
		campaigns: deps.Campaigns,
		sequences: deps.Sequences,
		leads:     deps.Leads,
		actions:   deps.Actions,
		accounts:  deps.Accounts,
		queue:     deps.Queue,
		executor:  deps.Executor,
		limiter:   deps.Limiter,
		planner:   deps.Planner,
		sink:      sink,
		logger:    logger.With().Str("module", "actions").Logger(),
		now:       time.Now,
		rnd:       rnd,
		inFlight:  make(map[string]struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// SetClock replaces the time source
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Start subscribes the dispatch and result consumers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dispatchSub, err := s.queue.Subscribe(TopicActions, s.onDispatch)
	if err != nil {
		return err
	}
	resultSub, err := s.queue.Subscribe(TopicResults, s.onResult)
	if err != nil {
		dispatchSub.Unsubscribe()
		return err
	}
	s.subs = append(s.subs, dispatchSub, resultSub)

	s.logger.Info().Msg("Action service started")
	return nil
}

// Close stops consuming, rejects running executions and waits for them
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.drainResults()

	s.mu.Lock()
	for _, sub := range s.subs {
		sub.Unsubscribe()
	}
	s.subs = nil
	s.mu.Unlock()

	s.logger.Info().Msg("Action service stopped")
}

// drainResults waits for published outcomes to be handled before the result
// consumer goes away, giving up if the queue stops delivering
func (s *Service) drainResults() {
	done := make(chan struct{})
	go func() {
		s.results.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(resultDrainTimeout):
		s.logger.Warn().Msg("Timed out waiting for pending results")
	}
}

// claim marks an action as dispatched and not yet resolved
func (s *Service) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inFlight[id]; ok {
		return false
	}
	s.inFlight[id] = struct{}{}
	return true
}

func (s *Service) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inFlight, id)
}

// InFlight returns the number of dispatched actions awaiting their result
func (s *Service) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inFlight)
}

func (s *Service) emit(ev notify.Event) {
	if ev.At.IsZero() {
		ev.At = s.now().UTC()
	}
	s.sink.Notify(s.ctx, ev)
}

// Status is the operational view of the engine
type Status struct {
	Workers        workerpool.Stats `json:"workers"`
	PendingActions int              `json:"pending_actions"`
	InFlight       int              `json:"in_flight"`
	QueueDepth     map[string]int   `json:"queue_depth"`
}

// Status reports worker usage, pending work and queue depth
func (s *Service) Status() (Status, error) {
	pending, err := s.actions.CountPending("")
	if err != nil {
		return Status{}, err
	}

	return Status{
		Workers:        s.executor.Stats(),
		PendingActions: pending,
		InFlight:       s.InFlight(),
		QueueDepth:     s.queue.Depth(),
	}, nil
}
