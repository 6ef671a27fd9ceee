package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"linkedin-outreach/internal/actions"
	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/models"
	"linkedin-outreach/internal/notify"
	"linkedin-outreach/internal/queue"
	"linkedin-outreach/internal/ratelimit"
	"linkedin-outreach/internal/sequence"
	"linkedin-outreach/internal/storage"
	"linkedin-outreach/internal/workerpool"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type executor struct {
	mu    sync.Mutex
	calls int
	block chan struct{}
}

func (e *executor) ExecuteAction(ctx context.Context, req workerpool.Request) (*workerpool.Result, error) {
	e.mu.Lock()
	e.calls++
	block := e.block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &workerpool.Result{Action: string(req.Method)}, nil
}

func (e *executor) Stats() workerpool.Stats { return workerpool.Stats{} }

func (e *executor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type fixture struct {
	sched     *Scheduler
	svc       *actions.Service
	campaigns *storage.CampaignStore
	leads     *storage.LeadStore
	actions   *storage.ActionStore
	stats     *storage.StatsStore
	exec      *executor
	now       time.Time
}

func newFixture(t *testing.T, mutate func(*config.Config)) *fixture {
	t.Helper()

	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}

	db, err := storage.Open(filepath.Join(t.TempDir(), "sched.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	f := &fixture{
		campaigns: storage.NewCampaignStore(db),
		leads:     storage.NewLeadStore(db),
		actions:   storage.NewActionStore(db),
		stats:     storage.NewStatsStore(db),
		exec:      &executor{},
		now:       time.Now().UTC(),
	}
	sequences := storage.NewSequenceStore(db)
	accounts := storage.NewAccountStore(db)

	require.NoError(t, accounts.Save(&models.Account{ID: "acc1", Region: "us", SessionValid: true}))
	require.NoError(t, sequences.Save(&models.Sequence{
		ID: "s1",
		Nodes: []models.Node{
			{ID: "start", Type: models.NodeStart},
			{ID: "invite", Type: models.NodeSendInvite},
			{ID: "end", Type: models.NodeEnd},
		},
		Edges: []models.Edge{
			{Source: "start", Target: "invite"},
			{Source: "invite", Target: "end"},
		},
	}))

	clock := func() time.Time { return f.now }

	limiter := ratelimit.New(ratelimit.FromConfig(cfg.Limits), zerolog.Nop())
	limiter.SetClock(clock)

	q := queue.New(zerolog.Nop())
	f.svc = actions.New(cfg.Engine, cfg.Schedule, actions.Deps{
		Campaigns: f.campaigns,
		Sequences: sequences,
		Leads:     f.leads,
		Actions:   f.actions,
		Accounts:  accounts,
		Queue:     q,
		Executor:  f.exec,
		Limiter:   limiter,
		Planner:   sequence.NewPlanner(cfg.Engine, rand.New(rand.NewSource(1))),
		Sink:      notify.Nop{},
		Rand:      rand.New(rand.NewSource(2)),
	}, zerolog.Nop())
	f.svc.SetClock(clock)
	require.NoError(t, f.svc.Start())

	f.sched = New(cfg.Engine, Deps{
		Service:   f.svc,
		Campaigns: f.campaigns,
		Actions:   f.actions,
		Leads:     f.leads,
		Stats:     f.stats,
	}, zerolog.Nop())
	f.sched.SetClock(clock)

	t.Cleanup(func() {
		f.sched.Stop()
		f.svc.Close()
		q.Close()
	})
	return f
}

func (f *fixture) campaign(t *testing.T, id string, status models.CampaignStatus) {
	t.Helper()
	require.NoError(t, f.campaigns.Save(&models.Campaign{
		ID: id, SequenceID: "s1", AccountID: "acc1", LeadListIDs: []string{"list-" + id}, Status: status,
	}))
}

func (f *fixture) lead(t *testing.T, campaignID, id string) {
	t.Helper()
	require.NoError(t, f.leads.Save(&models.Lead{
		ID: id, ListID: "list-" + campaignID, ProfileURL: "https://www.linkedin.com/in/" + id,
	}))
}

func (f *fixture) outcomes(t *testing.T, campaignID string, completed, failed int) {
	t.Helper()
	add := func(i int, status models.ActionStatus) {
		id := fmt.Sprintf("%s-%s-%d", campaignID, status, i)
		f.lead(t, campaignID, id)
		require.NoError(t, f.actions.Create(&models.CampaignAction{
			ID: id, CampaignID: campaignID, LeadID: id, AccountID: "acc1",
			Type: models.ActionInviteSent, Status: status, ScheduledFor: f.now,
		}))
	}
	for i := 0; i < completed; i++ {
		add(i, models.ActionCompleted)
	}
	for i := 0; i < failed; i++ {
		add(i, models.ActionFailed)
	}
}

func TestEvaluate(t *testing.T) {
	cfg := config.Default().Engine

	tests := []struct {
		name      string
		completed int
		failed    int
		pause     bool
	}{
		{"no activity", 0, 0, false},
		{"healthy", 9, 1, false},
		{"half failing is tolerated", 5, 5, false},
		{"majority failing over sample", 4, 6, true},
		{"small sample with some success", 1, 4, false},
		{"failures without success", 0, 5, true},
		{"too few failures without success", 0, 4, false},
		{"large failing sample", 30, 70, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pause, reason := Evaluate(tt.completed, tt.failed, cfg)
			assert.Equal(t, tt.pause, pause)
			if tt.pause {
				assert.NotEmpty(t, reason)
			} else {
				assert.Empty(t, reason)
			}
		})
	}
}

func TestRunHealthPausesFailingCampaign(t *testing.T) {
	f := newFixture(t, nil)
	f.campaign(t, "bad", models.CampaignRunning)
	f.campaign(t, "good", models.CampaignRunning)
	f.outcomes(t, "bad", 4, 6)
	f.outcomes(t, "good", 9, 1)

	require.NoError(t, f.sched.RunHealth(context.Background()))

	bad, err := f.campaigns.Get("bad")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPaused, bad.Status)
	assert.Contains(t, bad.PauseReason, "failure rate")

	good, err := f.campaigns.Get("good")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignRunning, good.Status)
}

func TestRunHealthIgnoresPausedCampaigns(t *testing.T) {
	f := newFixture(t, nil)
	f.campaign(t, "c1", models.CampaignPaused)
	f.outcomes(t, "c1", 0, 8)

	require.NoError(t, f.sched.RunHealth(context.Background()))

	c, err := f.campaigns.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, models.CampaignPaused, c.Status)
	assert.Empty(t, c.PauseReason)
}

func TestRunStatsSavesSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	f.campaign(t, "c1", models.CampaignRunning)
	f.campaign(t, "draft", models.CampaignDraft)
	f.outcomes(t, "c1", 3, 1)

	require.NoError(t, f.sched.RunStats(context.Background()))

	snap, err := f.stats.Latest("c1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 3, snap.Actions[models.ActionInviteSent][models.ActionCompleted])
	assert.Equal(t, 3, snap.Analytics.InvitesSent)
	assert.Equal(t, 1, snap.Analytics.Failed)

	c, err := f.campaigns.Get("c1")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Analytics.Completed)

	none, err := f.stats.Latest("draft")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestRunEnrollmentSchedulesNewLeads(t *testing.T) {
	f := newFixture(t, nil)
	f.campaign(t, "c1", models.CampaignRunning)
	f.campaign(t, "c2", models.CampaignDraft)
	f.lead(t, "c1", "a")
	f.lead(t, "c1", "b")
	f.lead(t, "c2", "z")

	require.NoError(t, f.sched.RunEnrollment(context.Background()))

	list, err := f.actions.ListByCampaign("c1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = f.actions.ListByCampaign("c2")
	require.NoError(t, err)
	assert.Empty(t, list)

	// A second pass finds nothing new
	require.NoError(t, f.sched.RunEnrollment(context.Background()))
	list, err = f.actions.ListByCampaign("c1")
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRunExecutionDispatchesDueActions(t *testing.T) {
	f := newFixture(t, nil)
	f.campaign(t, "c1", models.CampaignRunning)
	f.lead(t, "c1", "a")
	require.NoError(t, f.sched.RunEnrollment(context.Background()))

	require.NoError(t, f.sched.RunExecution(context.Background()))
	require.Eventually(t, func() bool { return f.svc.InFlight() == 0 && f.exec.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	list, err := f.actions.ListByCampaign("c1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, models.ActionCompleted, list[0].Status)
}

func TestOverlappingTickIsSkipped(t *testing.T) {
	f := newFixture(t, nil)

	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_ = f.sched.guard(TickStats, func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, f.sched.RunStats(context.Background()), ErrTickInProgress)
	// Other ticks are unaffected
	assert.NoError(t, f.sched.RunHealth(context.Background()))

	close(release)
	require.Eventually(t, func() bool {
		return f.sched.RunStats(context.Background()) == nil
	}, time.Second, 5*time.Millisecond)
}

func TestStartStop(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Engine.ExecutionIntervalMin = 5 * time.Millisecond
		cfg.Engine.ExecutionIntervalMax = 10 * time.Millisecond
		cfg.Engine.EnrollmentInterval = 5 * time.Millisecond
		cfg.Engine.HealthInterval = 20 * time.Millisecond
		cfg.Engine.StatsInterval = 20 * time.Millisecond
	})
	f.campaign(t, "c1", models.CampaignRunning)
	f.campaign(t, "held", models.CampaignPaused)
	f.lead(t, "c1", "a")

	f.sched.Start(context.Background())
	f.sched.Start(context.Background())

	require.Eventually(t, func() bool {
		list, err := f.actions.ListByCampaign("c1")
		return err == nil && len(list) == 1 && list[0].Status == models.ActionCompleted
	}, 3*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		snap, err := f.stats.Latest("held")
		return err == nil && snap != nil
	}, 3*time.Second, 10*time.Millisecond)

	f.sched.Stop()
	f.sched.Stop()
}

func TestExecutionIntervalWithinBounds(t *testing.T) {
	cfg := config.Default().Engine
	s := New(cfg, Deps{}, zerolog.Nop())

	for i := 0; i < 100; i++ {
		d := s.executionInterval()
		assert.GreaterOrEqual(t, d, cfg.ExecutionIntervalMin)
		assert.Less(t, d, cfg.ExecutionIntervalMax)
	}

	cfg.ExecutionIntervalMax = cfg.ExecutionIntervalMin
	s = New(cfg, Deps{}, zerolog.Nop())
	assert.Equal(t, cfg.ExecutionIntervalMin, s.executionInterval())
}
