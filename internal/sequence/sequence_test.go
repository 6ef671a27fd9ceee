package sequence

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkedin-outreach/internal/config"
	"linkedin-outreach/internal/models"
)

func inviteThenMessage() *models.Sequence {
	return &models.Sequence{
		ID: "s1",
		Nodes: []models.Node{
			{ID: "start", Type: models.NodeStart},
			{ID: "invite", Type: models.NodeSendInvite, Data: models.NodeData{Message: "Hi {{first_name}}, saw your work at {{company}}"}},
			{ID: "wait", Type: models.NodeDelay, Data: models.NodeData{DelayValue: 48, DelayUnit: "hours"}},
			{ID: "message", Type: models.NodeSendMessage, Data: models.NodeData{Message: "Thanks for connecting, {{ first_name }}!"}},
			{ID: "end", Type: models.NodeEnd},
		},
		Edges: []models.Edge{
			{Source: "start", Target: "invite"},
			{Source: "invite", Target: "wait"},
			{Source: "wait", Target: "message"},
			{Source: "message", Target: "end"},
		},
	}
}

func newPlanner() *Planner {
	return NewPlanner(config.Default().Engine, rand.New(rand.NewSource(7)))
}

func TestFirstAndNextFollowEdges(t *testing.T) {
	g := NewGraph(inviteThenMessage(), 24*time.Hour)

	first, ok := g.First()
	require.True(t, ok)
	assert.Equal(t, "invite", first.Node.ID)
	assert.Equal(t, models.ActionInviteSent, first.Type)
	assert.False(t, first.Delayed)

	next, ok := g.Next("invite")
	require.True(t, ok)
	assert.Equal(t, "message", next.Node.ID)
	assert.Equal(t, 48*time.Hour, next.Wait)
	assert.True(t, next.Delayed)

	_, ok = g.Next("message")
	assert.False(t, ok, "end node completes the sequence")

	_, ok = g.Next("unknown")
	assert.False(t, ok)
}

func TestEdgesTakePrecedenceOverListOrder(t *testing.T) {
	seq := &models.Sequence{
		Nodes: []models.Node{
			{ID: "start", Type: models.NodeStart},
			{ID: "message", Type: models.NodeSendMessage},
			{ID: "view", Type: models.NodeViewProfile},
		},
		Edges: []models.Edge{
			{Source: "start", Target: "view"},
			{Source: "view", Target: "message"},
		},
	}
	g := NewGraph(seq, 24*time.Hour)

	first, ok := g.First()
	require.True(t, ok)
	assert.Equal(t, "view", first.Node.ID)

	next, ok := g.Next("view")
	require.True(t, ok)
	assert.Equal(t, "message", next.Node.ID)

	_, ok = g.Next("message")
	assert.False(t, ok)
}

func TestListOrderWithoutEdges(t *testing.T) {
	seq := &models.Sequence{
		Nodes: []models.Node{
			{ID: "start", Type: models.NodeStart},
			{ID: "view", Type: models.NodeViewProfile},
			{ID: "d1", Type: models.NodeDelay, Data: models.NodeData{DelayValue: 1, DelayUnit: "days"}},
			{ID: "d2", Type: models.NodeDelay},
			{ID: "cond", Type: models.NodeCondition},
			{ID: "follow", Type: models.NodeFollow},
		},
	}
	g := NewGraph(seq, 12*time.Hour)

	next, ok := g.Next("view")
	require.True(t, ok)
	assert.Equal(t, "follow", next.Node.ID)
	assert.Equal(t, 36*time.Hour, next.Wait, "consecutive delays add up, empty delay uses the default")

	_, ok = g.Next("follow")
	assert.False(t, ok, "last node completes the sequence")
}

func TestCycleTerminates(t *testing.T) {
	seq := &models.Sequence{
		Nodes: []models.Node{
			{ID: "start", Type: models.NodeStart},
			{ID: "a", Type: models.NodeDelay},
			{ID: "b", Type: models.NodeCondition},
		},
		Edges: []models.Edge{
			{Source: "start", Target: "a"},
			{Source: "a", Target: "b"},
			{Source: "b", Target: "a"},
		},
	}

	_, ok := NewGraph(seq, time.Hour).First()
	assert.False(t, ok)
}

func TestTraversalIsDeterministic(t *testing.T) {
	seq := inviteThenMessage()
	seq.Nodes = append(seq.Nodes[:4],
		models.Node{ID: "like", Type: models.NodeLikePost},
		models.Node{ID: "custom", Type: "poke"},
		models.Node{ID: "end", Type: models.NodeEnd},
	)
	seq.Edges = append(seq.Edges[:3],
		models.Edge{Source: "message", Target: "like"},
		models.Edge{Source: "like", Target: "custom"},
		models.Edge{Source: "custom", Target: "end"},
	)

	walk := func() []models.ActionType {
		g := NewGraph(seq, time.Hour)
		var types []models.ActionType
		step, ok := g.First()
		for ok {
			types = append(types, step.Type)
			step, ok = g.Next(step.Node.ID)
		}
		return types
	}

	want := []models.ActionType{
		models.ActionInviteSent,
		models.ActionMessageSent,
		models.ActionPostLiked,
		models.ActionType("poke"),
	}
	for i := 0; i < 5; i++ {
		if diff := cmp.Diff(want, walk()); diff != "" {
			t.Fatalf("walk %d mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestActionTypeMapping(t *testing.T) {
	got := map[models.NodeType]models.ActionType{}
	for _, nt := range []models.NodeType{
		models.NodeSendInvite, models.NodeSendMessage, models.NodeViewProfile, models.NodeFollow,
		models.NodeLikePost, models.NodeSendEmail, models.NodeEndorseSkills, "wave",
	} {
		got[nt] = ActionTypeFor(nt)
	}

	want := map[models.NodeType]models.ActionType{
		models.NodeSendInvite:    models.ActionInviteSent,
		models.NodeSendMessage:   models.ActionMessageSent,
		models.NodeViewProfile:   models.ActionProfileViewed,
		models.NodeFollow:        models.ActionProfileFollow,
		models.NodeLikePost:      models.ActionPostLiked,
		models.NodeSendEmail:     models.ActionEmailSent,
		models.NodeEndorseSkills: models.ActionSkillsEndorsed,
		"wave":                   "wave",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestPersonalizeFallbacks(t *testing.T) {
	tmpl := "Hi {{first_name}} {{last_name}}, {{position}} at {{company}} in {{industry}} ({{location}}) {{unknown}}"

	full := &models.Lead{FirstName: "Ada", LastName: "Lovelace", Position: "CTO", Company: "Engines", Industry: "Computing", Location: "London"}
	assert.Equal(t, "Hi Ada Lovelace, CTO at Engines in Computing (London) {{unknown}}", Personalize(tmpl, full))

	empty := &models.Lead{}
	assert.Equal(t, "Hi there , your role at your company in your industry (your location) {{unknown}}", Personalize(tmpl, empty))

	assert.Equal(t, "Hey Ada", Personalize("Hey {{ firstName }}", full))
	assert.Equal(t, "", Personalize("", full))
}

func TestPlannerScenarioInviteThenDelayedMessage(t *testing.T) {
	p := newPlanner()
	seq := inviteThenMessage()
	lead := &models.Lead{ID: "l1", FirstName: "Grace", Company: "Navy"}
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	for index := 0; index < 3; index++ {
		plan, ok := p.First(seq, lead, now, index)
		require.True(t, ok)
		assert.Equal(t, models.ActionInviteSent, plan.Type)
		assert.Equal(t, now.Add(time.Duration(index)*2*time.Minute), plan.ScheduledFor)
		assert.Equal(t, models.InvitePayload{Note: "Hi Grace, saw your work at Navy"}, plan.Payload)
	}

	completedAt := now.Add(3 * time.Hour)
	next, ok := p.Next(seq, lead, "invite", completedAt)
	require.True(t, ok)
	assert.Equal(t, "message", next.NodeID)
	assert.Equal(t, models.ActionMessageSent, next.Type)
	assert.Equal(t, completedAt.Add(48*time.Hour), next.ScheduledFor)
	assert.Equal(t, models.MessagePayload{Message: "Thanks for connecting, Grace!"}, next.Payload)

	_, ok = p.Next(seq, lead, "message", completedAt)
	assert.False(t, ok)
}

func TestPlannerRandomStepDelayWithinBounds(t *testing.T) {
	p := newPlanner()
	seq := &models.Sequence{
		Nodes: []models.Node{
			{ID: "start", Type: models.NodeStart},
			{ID: "view", Type: models.NodeViewProfile},
			{ID: "follow", Type: models.NodeFollow},
		},
	}
	now := time.Now()

	for i := 0; i < 50; i++ {
		plan, ok := p.Next(seq, &models.Lead{}, "view", now)
		require.True(t, ok)
		wait := plan.ScheduledFor.Sub(now)
		assert.GreaterOrEqual(t, wait, 4*time.Hour)
		assert.Less(t, wait, 24*time.Hour)
		assert.Equal(t, models.EmptyPayload{Type: models.ActionProfileFollow}, plan.Payload)
	}
}
