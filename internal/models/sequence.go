package models

import "time"

// NodeType identifies what a sequence step does
type NodeType string

const (
	NodeStart         NodeType = "start"
	NodeEnd           NodeType = "end"
	NodeSendInvite    NodeType = "send_invite"
	NodeSendMessage   NodeType = "send_message"
	NodeViewProfile   NodeType = "view_profile"
	NodeFollow        NodeType = "follow"
	NodeLikePost      NodeType = "like_post"
	NodeEndorseSkills NodeType = "endorse_skills"
	NodeSendEmail     NodeType = "send_email"
	NodeDelay         NodeType = "delay"
	NodeCondition     NodeType = "condition"
)

// Sequence is a directed graph of outreach steps
type Sequence struct {
	ID        string    `json:"id" yaml:"id" validate:"required"`
	OwnerID   string    `json:"owner_id" yaml:"owner_id"`
	Name      string    `json:"name" yaml:"name"`
	Nodes     []Node    `json:"nodes" yaml:"nodes" validate:"required,min=1,dive"`
	Edges     []Edge    `json:"edges" yaml:"edges" validate:"dive"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// Node is one step of a sequence
type Node struct {
	ID   string   `json:"id" yaml:"id" validate:"required"`
	Type NodeType `json:"type" yaml:"type" validate:"required"`
	Data NodeData `json:"data" yaml:"data"`
}

// NodeData carries the template and timing of a step
type NodeData struct {
	Message string `json:"message,omitempty" yaml:"message"`
	Subject string `json:"subject,omitempty" yaml:"subject"`
	// DelayValue and DelayUnit (minutes, hours, days) describe a delay node
	DelayValue int    `json:"delay_value,omitempty" yaml:"delay_value"`
	DelayUnit  string `json:"delay_unit,omitempty" yaml:"delay_unit"`
}

// Delay returns the wait described by a delay node, or zero when unset
func (d NodeData) Delay() time.Duration {
	if d.DelayValue <= 0 {
		return 0
	}
	unit := time.Hour
	switch d.DelayUnit {
	case "minute", "minutes", "m":
		unit = time.Minute
	case "day", "days", "d":
		unit = 24 * time.Hour
	}
	return time.Duration(d.DelayValue) * unit
}

// Edge connects two nodes of a sequence
type Edge struct {
	ID     string `json:"id,omitempty" yaml:"id"`
	Source string `json:"source" yaml:"source" validate:"required"`
	Target string `json:"target" yaml:"target" validate:"required"`
}
