package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionType identifies the kind of outcome a campaign action produces
type ActionType string

const (
	ActionInviteSent     ActionType = "invite_sent"
	ActionMessageSent    ActionType = "message_sent"
	ActionProfileViewed  ActionType = "profile_viewed"
	ActionSkillsEndorsed ActionType = "skills_endorsed"
	ActionProfileFollow  ActionType = "profile_followed"
	ActionPostLiked      ActionType = "post_liked"
	ActionEmailSent      ActionType = "email_sent"
	ActionError          ActionType = "error"
)

// ActionStatus is the state of a campaign action
type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionCompleted ActionStatus = "completed"
	ActionFailed    ActionStatus = "failed"
)

// Method is the executor capability invoked for an action
type Method string

const (
	MethodSendConnectionRequest Method = "sendConnectionRequest"
	MethodSendMessage           Method = "sendMessage"
	MethodViewProfile           Method = "viewProfile"
	MethodFollowProfile         Method = "followProfile"
	MethodLikePost              Method = "likePost"
	MethodEndorseSkills         Method = "endorseSkills"
	MethodSendEmail             Method = "sendEmail"
)

// Methods lists every executor method in a stable order
var Methods = []Method{
	MethodSendConnectionRequest,
	MethodSendMessage,
	MethodViewProfile,
	MethodFollowProfile,
	MethodLikePost,
	MethodEndorseSkills,
	MethodSendEmail,
}

// Method returns the executor method for an action type
func (t ActionType) Method() (Method, bool) {
	switch t {
	case ActionInviteSent:
		return MethodSendConnectionRequest, true
	case ActionMessageSent:
		return MethodSendMessage, true
	case ActionProfileViewed:
		return MethodViewProfile, true
	case ActionProfileFollow:
		return MethodFollowProfile, true
	case ActionPostLiked:
		return MethodLikePost, true
	case ActionSkillsEndorsed:
		return MethodEndorseSkills, true
	case ActionEmailSent:
		return MethodSendEmail, true
	}
	return "", false
}

// CampaignAction is the shared envelope of one scheduled step for one lead
type CampaignAction struct {
	ID           string        `json:"id"`
	CampaignID   string        `json:"campaign_id"`
	LeadID       string        `json:"lead_id"`
	AccountID    string        `json:"account_id"`
	Type         ActionType    `json:"type"`
	Status       ActionStatus  `json:"status"`
	ScheduledFor time.Time     `json:"scheduled_for"`
	ExecutedAt   *time.Time    `json:"executed_at,omitempty"`
	NodeID       string        `json:"node_id"`
	RetryCount   int           `json:"retry_count"`
	LastError    string        `json:"last_error,omitempty"`
	Response     string        `json:"response,omitempty"`
	Payload      ActionPayload `json:"-"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// ActionPayload is the type-specific part of a campaign action
type ActionPayload interface {
	actionType() ActionType
}

// InvitePayload carries the optional connection note
type InvitePayload struct {
	Note string `json:"note,omitempty"`
}

// MessagePayload carries a direct message body
type MessagePayload struct {
	Message string `json:"message"`
}

// EmailPayload carries an email subject and body
type EmailPayload struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// EmptyPayload is used by actions that need only the target profile
type EmptyPayload struct {
	Type ActionType `json:"-"`
}

func (InvitePayload) actionType() ActionType  { return ActionInviteSent }
func (MessagePayload) actionType() ActionType { return ActionMessageSent }
func (EmailPayload) actionType() ActionType   { return ActionEmailSent }
func (p EmptyPayload) actionType() ActionType { return p.Type }

// Text returns the message or note carried by a payload, if any
func Text(p ActionPayload) string {
	switch v := p.(type) {
	case InvitePayload:
		return v.Note
	case MessagePayload:
		return v.Message
	case EmailPayload:
		return v.Body
	}
	return ""
}

// Subject returns the email subject carried by a payload, if any
func Subject(p ActionPayload) string {
	if v, ok := p.(EmailPayload); ok {
		return v.Subject
	}
	return ""
}

// NewPayload builds the payload variant for an action type from template output
func NewPayload(t ActionType, message, subject string) ActionPayload {
	switch t {
	case ActionInviteSent:
		return InvitePayload{Note: message}
	case ActionMessageSent:
		return MessagePayload{Message: message}
	case ActionEmailSent:
		return EmailPayload{Subject: subject, Body: message}
	}
	return EmptyPayload{Type: t}
}

// EncodePayload serializes a payload for storage
func EncodePayload(p ActionPayload) (string, error) {
	if p == nil {
		return "", nil
	}
	if _, ok := p.(EmptyPayload); ok {
		return "", nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(data), nil
}

// DecodePayload restores the payload variant selected by the action type
func DecodePayload(t ActionType, raw string) (ActionPayload, error) {
	var p ActionPayload
	switch t {
	case ActionInviteSent:
		var v InvitePayload
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case ActionMessageSent:
		var v MessagePayload
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		p = v
	case ActionEmailSent:
		var v EmailPayload
		if err := decodeInto(raw, &v); err != nil {
			return nil, err
		}
		p = v
	default:
		p = EmptyPayload{Type: t}
	}
	return p, nil
}

func decodeInto(raw string, v any) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}
	return nil
}
