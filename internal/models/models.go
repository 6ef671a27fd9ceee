// Package models contains shared data structures for the outreach engine.
package models

import (
	"time"
)

// CampaignStatus represents the lifecycle state of a campaign
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignRunning   CampaignStatus = "running"
	CampaignPaused    CampaignStatus = "paused"
	CampaignStopped   CampaignStatus = "stopped"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign applies one sequence to one or more lead lists using one account
type Campaign struct {
	ID          string            `json:"id" yaml:"id" validate:"required"`
	OwnerID     string            `json:"owner_id" yaml:"owner_id"`
	Name        string            `json:"name" yaml:"name"`
	Status      CampaignStatus    `json:"status" yaml:"status"`
	SequenceID  string            `json:"sequence_id" yaml:"sequence_id" validate:"required"`
	AccountID   string            `json:"account_id" yaml:"account_id" validate:"required"`
	LeadListIDs []string          `json:"lead_list_ids" yaml:"lead_list_ids"`
	Analytics   CampaignAnalytics `json:"analytics" yaml:"-"`
	PauseReason string            `json:"pause_reason,omitempty" yaml:"-"`
	StartedAt   *time.Time        `json:"started_at,omitempty" yaml:"-"`
	PausedAt    *time.Time        `json:"paused_at,omitempty" yaml:"-"`
	StoppedAt   *time.Time        `json:"stopped_at,omitempty" yaml:"-"`
	CompletedAt *time.Time        `json:"completed_at,omitempty" yaml:"-"`
	LastRunAt   *time.Time        `json:"last_run_at,omitempty" yaml:"-"`
	CreatedAt   time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time         `json:"updated_at" yaml:"-"`
}

// CampaignAnalytics is the rolling, denormalized outcome summary of a campaign
type CampaignAnalytics struct {
	InvitesSent    int     `json:"invites_sent"`
	MessagesSent   int     `json:"messages_sent"`
	ProfilesViewed int     `json:"profiles_viewed"`
	Follows        int     `json:"follows"`
	Likes          int     `json:"likes"`
	Endorsements   int     `json:"endorsements"`
	EmailsSent     int     `json:"emails_sent"`
	Completed      int     `json:"completed"`
	Failed         int     `json:"failed"`
	Pending        int     `json:"pending"`
	AcceptanceRate float64 `json:"acceptance_rate"`
	ReplyRate      float64 `json:"reply_rate"`
}

// LeadStatus represents how far a lead has progressed through its sequence
type LeadStatus string

const (
	LeadNew               LeadStatus = "new"
	LeadInviteSent        LeadStatus = "invite_sent"
	LeadConnected         LeadStatus = "connected"
	LeadMessageSent       LeadStatus = "message_sent"
	LeadReplied           LeadStatus = "replied"
	LeadSequenceCompleted LeadStatus = "sequence_completed"
	LeadFailed            LeadStatus = "failed"
)

// IsTerminal reports whether no further actions will be scheduled for the lead
func (s LeadStatus) IsTerminal() bool {
	return s == LeadSequenceCompleted || s == LeadFailed || s == LeadReplied
}

// ConnectionStatus represents the state of the connection with a lead
type ConnectionStatus string

const (
	ConnectionNone      ConnectionStatus = "none"
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionConnected ConnectionStatus = "connected"
)

// Lead is one target profile enrolled through a lead list
type Lead struct {
	ID               string           `json:"id" yaml:"id" validate:"required"`
	OwnerID          string           `json:"owner_id" yaml:"owner_id"`
	ListID           string           `json:"list_id" yaml:"list_id" validate:"required"`
	CampaignID       string           `json:"campaign_id,omitempty" yaml:"-"`
	ProfileURL       string           `json:"profile_url" yaml:"profile_url" validate:"required,url"`
	Email            string           `json:"email,omitempty" yaml:"email" validate:"omitempty,email"`
	FirstName        string           `json:"first_name" yaml:"first_name"`
	LastName         string           `json:"last_name" yaml:"last_name"`
	Company          string           `json:"company" yaml:"company"`
	Position         string           `json:"position" yaml:"position"`
	Industry         string           `json:"industry" yaml:"industry"`
	Location         string           `json:"location" yaml:"location"`
	Status           LeadStatus       `json:"status" yaml:"-"`
	ConnectionStatus ConnectionStatus `json:"connection_status" yaml:"-"`
	Flags            LeadFlags        `json:"flags" yaml:"-"`
	LastActionAt     *time.Time       `json:"last_action_at,omitempty" yaml:"-"`
	LastActionNodeID string           `json:"last_action_node_id,omitempty" yaml:"-"`
	CreatedAt        time.Time        `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time        `json:"updated_at" yaml:"-"`
}

// LeadFlags records which kinds of action have completed for a lead
type LeadFlags struct {
	InviteSent     bool `json:"invite_sent"`
	MessageSent    bool `json:"message_sent"`
	ProfileViewed  bool `json:"profile_viewed"`
	Followed       bool `json:"followed"`
	PostLiked      bool `json:"post_liked"`
	SkillsEndorsed bool `json:"skills_endorsed"`
	EmailSent      bool `json:"email_sent"`
}

// Account is an authenticated identity on the target site
type Account struct {
	ID           string        `json:"id" yaml:"id" validate:"required"`
	OwnerID      string        `json:"owner_id" yaml:"owner_id"`
	Email        string        `json:"email" yaml:"email" validate:"omitempty,email"`
	Region       string        `json:"region" yaml:"region"`
	Cookies      string        `json:"-" yaml:"cookies"` // JSON-encoded cookies
	UserAgent    string        `json:"user_agent,omitempty" yaml:"user_agent"`
	SessionValid bool          `json:"session_valid" yaml:"-"`
	Limits       AccountLimits `json:"limits" yaml:"limits"`
	LastUsedAt   *time.Time    `json:"last_used_at,omitempty" yaml:"-"`
	CreatedAt    time.Time     `json:"created_at" yaml:"-"`
	UpdatedAt    time.Time     `json:"updated_at" yaml:"-"`
}

// AccountLimits overrides the configured daily limits for one account; zero means default
type AccountLimits struct {
	Invites      int `json:"invites,omitempty" yaml:"invites"`
	Messages     int `json:"messages,omitempty" yaml:"messages"`
	Views        int `json:"views,omitempty" yaml:"views"`
	Follows      int `json:"follows,omitempty" yaml:"follows"`
	Likes        int `json:"likes,omitempty" yaml:"likes"`
	Endorsements int `json:"endorsements,omitempty" yaml:"endorsements"`
	Emails       int `json:"emails,omitempty" yaml:"emails"`
	Total        int `json:"total,omitempty" yaml:"total"`
}

// ProxyStatus represents whether an egress resource can be handed out
type ProxyStatus string

const (
	ProxyActive      ProxyStatus = "active"
	ProxyInactive    ProxyStatus = "inactive"
	ProxyTesting     ProxyStatus = "testing"
	ProxyProblematic ProxyStatus = "problematic"
)

// Selectable reports whether the allocator may assign the proxy
func (s ProxyStatus) Selectable() bool {
	return s == ProxyActive || s == ProxyTesting
}

// ProxyResource is one egress endpoint
type ProxyResource struct {
	ID               string       `json:"id" yaml:"id" validate:"required"`
	Host             string       `json:"host" yaml:"host" validate:"required,hostname|ip"`
	Port             int          `json:"port" yaml:"port" validate:"gt=0,lte=65535"`
	Protocol         string       `json:"protocol" yaml:"protocol" validate:"oneof=http https socks5"`
	Username         string       `json:"username,omitempty" yaml:"username"`
	Password         string       `json:"-" yaml:"password"`
	Region           string       `json:"region" yaml:"region" validate:"required"`
	Status           ProxyStatus  `json:"status" yaml:"status"`
	IssueCount       int          `json:"issue_count" yaml:"-"`
	Issues           []ProxyIssue `json:"issues,omitempty" yaml:"-"`
	UsageCount       int          `json:"usage_count" yaml:"-"`
	TotalAssignments int          `json:"total_assignments" yaml:"-"`
	LastUsedAt       *time.Time   `json:"last_used_at,omitempty" yaml:"-"`
	CreatedAt        time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt        time.Time    `json:"updated_at" yaml:"-"`
}

// ProxyIssue is one reported problem with a proxy
type ProxyIssue struct {
	Description string    `json:"description"`
	ReportedAt  time.Time `json:"reported_at"`
}

// StatsSnapshot is a persisted rollup of one campaign's actions and leads
type StatsSnapshot struct {
	CampaignID   string                              `json:"campaign_id"`
	Actions      map[ActionType]map[ActionStatus]int `json:"actions"`
	LeadStatuses map[LeadStatus]int                  `json:"lead_statuses"`
	Analytics    CampaignAnalytics                   `json:"analytics"`
	TakenAt      time.Time                           `json:"taken_at"`
}
