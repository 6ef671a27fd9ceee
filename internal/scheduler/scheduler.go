// Package scheduler drives the engine's periodic work.
//
// Four independent repeating ticks run until Stop: action execution, lead
// enrollment, campaign health checks and statistics rollups. A tick that is
// still running when its next turn comes is skipped rather than overlapped.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"linkedin-outreach/internal/actions"
	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/storage"
)

// ErrTickInProgress is returned when a tick is requested while the same tick is running
var ErrTickInProgress = errors.New("tick already in progress")

// Tick names
const (
	TickExecution  = "execution"
	TickEnrollment = "enrollment"
	TickHealth     = "health"
	TickStats      = "stats"
)

// Deps are the collaborators of the scheduler
type Deps struct {
	Service   *actions.Service
	Campaigns *storage.CampaignStore
	Actions   *storage.ActionStore
	Leads     *storage.LeadStore
	Stats     *storage.StatsStore
}

// Scheduler runs the periodic ticks
type Scheduler struct {
	cfg    config.EngineConfig
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	busy map[string]*atomic.Bool

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New creates a scheduler; Start begins the ticks
func New(cfg config.EngineConfig, deps Deps, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With().Str("module", "scheduler").Logger(),
		now:    time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		busy: map[string]*atomic.Bool{
			TickExecution:  {},
			TickEnrollment: {},
			TickHealth:     {},
			TickStats:      {},
		},
	}
}

// SetClock replaces the time source used for health windows and snapshots
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Start launches the repeating ticks. They stop when ctx ends or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)

	s.every(ctx, TickExecution, s.executionInterval, s.RunExecution)
	s.every(ctx, TickEnrollment, func() time.Duration { return s.cfg.EnrollmentInterval }, s.RunEnrollment)
	s.every(ctx, TickHealth, func() time.Duration { return s.cfg.HealthInterval }, s.RunHealth)
	s.every(ctx, TickStats, func() time.Duration { return s.cfg.StatsInterval }, s.RunStats)

	s.logger.Info().
		Dur("executionMin", s.cfg.ExecutionIntervalMin).
		Dur("executionMax", s.cfg.ExecutionIntervalMax).
		Dur("enrollment", s.cfg.EnrollmentInterval).
		Dur("health", s.cfg.HealthInterval).
		Dur("stats", s.cfg.StatsInterval).
		Msg("Scheduler started")
}

// Stop cancels the timers and waits for running ticks to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.logger.Info().Msg("Scheduler stopped")
}

// every runs fn after each interval until ctx ends. The next interval is drawn
// when the previous one fires so jittered cadences vary per turn.
func (s *Scheduler) every(ctx context.Context, name string, interval func() time.Duration, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(interval())
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
			}

			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				if err := fn(ctx); err != nil && !errors.Is(err, ErrTickInProgress) && ctx.Err() == nil {
					s.logger.Error().Err(err).Str("tick", name).Msg("Tick failed")
				}
			}()

			timer.Reset(interval())
		}
	}()
}

func (s *Scheduler) executionInterval() time.Duration {
	lo, hi := s.cfg.ExecutionIntervalMin, s.cfg.ExecutionIntervalMax
	if hi <= lo {
		return lo
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return lo + time.Duration(s.rnd.Int63n(int64(hi-lo)))
}

// guard runs fn unless the named tick is already running
func (s *Scheduler) guard(name string, fn func() error) error {
	flag := s.busy[name]
	if !flag.CompareAndSwap(false, true) {
		s.logger.Debug().Str("tick", name).Msg("Previous tick still running, skipping")
		return ErrTickInProgress
	}
	defer flag.Store(false)

	start := time.Now()
	err := fn()
	s.logger.Debug().Str("tick", name).Dur("took", time.Since(start)).Msg("Tick finished")
	return err
}

// RunExecution processes one batch of due actions
func (s *Scheduler) RunExecution(ctx context.Context) error {
	return s.guard(TickExecution, func() error {
		_, err := s.deps.Service.ProcessDueActions(ctx, s.cfg.BatchSize)
		return err
	})
}

// RunEnrollment schedules next actions for every running campaign
func (s *Scheduler) RunEnrollment(ctx context.Context) error {
	return s.guard(TickEnrollment, func() error {
		return s.forCampaigns(ctx, TickEnrollment, []models.CampaignStatus{models.CampaignRunning}, func(ctx context.Context, c *models.Campaign) error {
			_, err := s.deps.Service.Enroll(ctx, c)
			return err
		})
	})
}

// RunHealth pauses running campaigns whose recent actions mostly fail
func (s *Scheduler) RunHealth(ctx context.Context) error {
	return s.guard(TickHealth, func() error {
		return s.forCampaigns(ctx, TickHealth, []models.CampaignStatus{models.CampaignRunning}, s.checkHealth)
	})
}

// RunStats persists a statistics snapshot for every active campaign
func (s *Scheduler) RunStats(ctx context.Context) error {
	return s.guard(TickStats, func() error {
		return s.forCampaigns(ctx, TickStats, []models.CampaignStatus{models.CampaignRunning, models.CampaignPaused}, s.snapshot)
	})
}

// forCampaigns applies fn to the campaigns in the given statuses with bounded concurrency.
// A failing campaign is logged and does not stop the others.
func (s *Scheduler) forCampaigns(ctx context.Context, tick string, statuses []models.CampaignStatus, fn func(context.Context, *models.Campaign) error) error {
	var campaigns []*models.Campaign
	for _, st := range statuses {
		list, err := s.deps.Campaigns.ListByStatus(st)
		if err != nil {
			return err
		}
		campaigns = append(campaigns, list...)
	}

	var failed atomic.Int32
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.TickConcurrency)

	for _, c := range campaigns {
		c := c
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			if err := fn(gctx, c); err != nil {
				failed.Add(1)
				s.logger.Error().Err(err).Str("tick", tick).Str("campaignId", c.ID).Msg("Campaign tick failed")
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%s tick failed for %d of %d campaigns", tick, n, len(campaigns))
	}
	return nil
}

func (s *Scheduler) checkHealth(_ context.Context, c *models.Campaign) error {
	completed, failed, err := s.deps.Actions.Outcomes(c.ID, s.now().Add(-s.cfg.HealthWindow))
	if err != nil {
		return err
	}

	pause, reason := Evaluate(completed, failed, s.cfg)
	if !pause {
		return nil
	}

	s.logger.Warn().
		Str("campaignId", c.ID).
		Int("completed", completed).
		Int("failed", failed).
		Msg("Campaign unhealthy, pausing")

	err = s.deps.Service.PauseCampaign(c.ID, reason)
	if errors.Is(err, actions.ErrInvalidTransition) {
		// Paused or stopped by someone else meanwhile
		return nil
	}
	return err
}

// Evaluate decides from a window's outcomes whether a campaign must be paused
func Evaluate(completed, failed int, cfg config.EngineConfig) (bool, string) {
	total := completed + failed
	if total == 0 {
		return false, ""
	}

	rate := float64(failed) / float64(total)
	if total >= cfg.HealthMinSample && rate > cfg.HealthFailureRate {
		return true, fmt.Sprintf("failure rate %.0f%% over the last %s (%d of %d actions failed)",
			rate*100, cfg.HealthWindow, failed, total)
	}
	if failed >= cfg.HealthConsecutiveFailures && completed == 0 {
		return true, fmt.Sprintf("%d failed actions without a success over the last %s", failed, cfg.HealthWindow)
	}
	return false, ""
}

func (s *Scheduler) snapshot(_ context.Context, c *models.Campaign) error {
	counts, err := s.deps.Actions.CountByTypeAndStatus(c.ID)
	if err != nil {
		return err
	}
	leads, err := s.deps.Leads.CountByStatus(c.ID)
	if err != nil {
		return err
	}

	analytics := actions.ComputeAnalytics(counts, leads)
	snap := &models.StatsSnapshot{
		CampaignID:   c.ID,
		Actions:      counts,
		LeadStatuses: leads,
		Analytics:    analytics,
		TakenAt:      s.now(),
	}

	if err := s.deps.Stats.Save(snap); err != nil {
		return err
	}
	if err := s.deps.Campaigns.UpdateAnalytics(c.ID, analytics); err != nil {
		return err
	}

	s.logger.Debug().
		Str("campaignId", c.ID).
		Int("completed", analytics.Completed).
		Int("failed", analytics.Failed).
		Int("pending", analytics.Pending).
		Msg("Stats snapshot saved")
	return nil
}
