// Package sequence resolves which outreach step a lead runs next.
//
// A sequence is walked along its edges; a sequence stored without edges is
// walked in node-list order. Start and condition nodes are passed through,
// delay nodes add their wait to the step that follows them, and an end node
// or a node with no successor finishes the sequence.
package sequence

import (
	"time"

	"linkedin-outreach/internal/models"
)

// Step is the next actionable node of a sequence for a lead
type Step struct {
	Node models.Node
	Type models.ActionType
	// Wait is the summed delay of the delay nodes passed on the way to Node
	Wait time.Duration
	// Delayed is set when at least one delay node was passed
	Delayed bool
}

// Graph is a read-only traversal view of a sequence
type Graph struct {
	seq          *models.Sequence
	index        map[string]int
	successors   map[string][]string
	defaultDelay time.Duration
}

// NewGraph indexes a sequence for traversal. Delay nodes without a value wait defaultDelay.
func NewGraph(seq *models.Sequence, defaultDelay time.Duration) *Graph {
	g := &Graph{
		seq:          seq,
		index:        make(map[string]int, len(seq.Nodes)),
		successors:   make(map[string][]string),
		defaultDelay: defaultDelay,
	}
	for i, n := range seq.Nodes {
		g.index[n.ID] = i
	}
	for _, e := range seq.Edges {
		g.successors[e.Source] = append(g.successors[e.Source], e.Target)
	}
	return g
}

// Node returns the node with the given ID
func (g *Graph) Node(id string) (models.Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return models.Node{}, false
	}
	return g.seq.Nodes[i], true
}

// Start returns the start node, falling back to the first node of the list
func (g *Graph) Start() (models.Node, bool) {
	for _, n := range g.seq.Nodes {
		if n.Type == models.NodeStart {
			return n, true
		}
	}
	if len(g.seq.Nodes) == 0 {
		return models.Node{}, false
	}
	return g.seq.Nodes[0], true
}

// First resolves the first actionable step after the start node
func (g *Graph) First() (Step, bool) {
	start, ok := g.Start()
	if !ok {
		return Step{}, false
	}
	if start.Type != models.NodeStart {
		// No start marker: the first listed node is itself the first step
		return g.resolve(start.ID, true)
	}
	return g.resolve(start.ID, false)
}

// Next resolves the actionable step following the given node. It reports false
// when the sequence is complete or the node is unknown.
func (g *Graph) Next(nodeID string) (Step, bool) {
	if _, ok := g.index[nodeID]; !ok {
		return Step{}, false
	}
	return g.resolve(nodeID, false)
}

// successor returns the node following id, by first outgoing edge or by list order
func (g *Graph) successor(id string) (models.Node, bool) {
	if len(g.seq.Edges) > 0 {
		for _, target := range g.successors[id] {
			if n, ok := g.Node(target); ok {
				return n, true
			}
		}
		return models.Node{}, false
	}

	i, ok := g.index[id]
	if !ok || i+1 >= len(g.seq.Nodes) {
		return models.Node{}, false
	}
	return g.seq.Nodes[i+1], true
}

func (g *Graph) resolve(fromID string, inclusive bool) (Step, bool) {
	var step Step
	visited := map[string]bool{}

	current, ok := g.Node(fromID)
	if !ok {
		return Step{}, false
	}
	if !inclusive {
		visited[current.ID] = true
		if current, ok = g.successor(current.ID); !ok {
			return Step{}, false
		}
	}

	for {
		if visited[current.ID] {
			return Step{}, false
		}
		visited[current.ID] = true

		switch current.Type {
		case models.NodeEnd:
			return Step{}, false
		case models.NodeStart, models.NodeCondition:
			// pass through
		case models.NodeDelay:
			d := current.Data.Delay()
			if d == 0 {
				d = g.defaultDelay
			}
			step.Wait += d
			step.Delayed = true
		default:
			step.Node = current
			step.Type = ActionTypeFor(current.Type)
			return step, true
		}

		if current, ok = g.successor(current.ID); !ok {
			return Step{}, false
		}
	}
}

// ActionTypeFor maps a node type to the action it produces; unknown types pass through
func ActionTypeFor(t models.NodeType) models.ActionType {
	switch t {
	case models.NodeSendInvite:
		return models.ActionInviteSent
	case models.NodeSendMessage:
		return models.ActionMessageSent
	case models.NodeViewProfile:
		return models.ActionProfileViewed
	case models.NodeFollow:
		return models.ActionProfileFollow
	case models.NodeLikePost:
		return models.ActionPostLiked
	case models.NodeEndorseSkills:
		return models.ActionSkillsEndorsed
	case models.NodeSendEmail:
		return models.ActionEmailSent
	}
	return models.ActionType(t)
}
