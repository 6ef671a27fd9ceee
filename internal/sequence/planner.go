package sequence

import (
	"math/rand"
	"sync"
	"time"

	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/models"
)

// Plan is a materialized next action for a lead
type Plan struct {
	NodeID       string
	Type         models.ActionType
	ScheduledFor time.Time
	Payload      models.ActionPayload
}

// Planner turns sequence steps into scheduled actions
type Planner struct {
	cfg config.EngineConfig

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewPlanner creates a planner; rnd may be nil for a time-seeded source
func NewPlanner(cfg config.EngineConfig, rnd *rand.Rand) *Planner {
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Planner{cfg: cfg, rnd: rnd}
}

// First plans the opening step of a sequence for the lead at the given index of a campaign start
func (p *Planner) First(seq *models.Sequence, lead *models.Lead, now time.Time, index int) (*Plan, bool) {
	step, ok := NewGraph(seq, p.cfg.DefaultDelay).First()
	if !ok {
		return nil, false
	}

	at := now.Add(time.Duration(index) * p.cfg.StartStagger)
	if step.Delayed {
		at = at.Add(step.Wait)
	}
	return p.materialize(step, lead, at), true
}

// Next plans the step after the given node. It reports false when the lead's sequence is complete.
func (p *Planner) Next(seq *models.Sequence, lead *models.Lead, nodeID string, now time.Time) (*Plan, bool) {
	step, ok := NewGraph(seq, p.cfg.DefaultDelay).Next(nodeID)
	if !ok {
		return nil, false
	}

	wait := step.Wait
	if !step.Delayed {
		wait = p.stepDelay()
	}
	return p.materialize(step, lead, now.Add(wait)), true
}

func (p *Planner) materialize(step Step, lead *models.Lead, at time.Time) *Plan {
	message := Personalize(step.Node.Data.Message, lead)
	subject := Personalize(step.Node.Data.Subject, lead)

	return &Plan{
		NodeID:       step.Node.ID,
		Type:         step.Type,
		ScheduledFor: at,
		Payload:      models.NewPayload(step.Type, message, subject),
	}
}

// stepDelay picks a uniform delay between the configured step bounds
func (p *Planner) stepDelay() time.Duration {
	lo, hi := p.cfg.StepDelayMin, p.cfg.StepDelayMax
	if hi <= lo {
		return lo
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + time.Duration(p.rnd.Int63n(int64(hi-lo)))
}
