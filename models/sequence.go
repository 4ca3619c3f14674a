package models

import "time"

// Sequence statuses. A sequence is created active and transitions exactly once
// into one of the terminal states.
const (
	SequenceStatusActive    = "active"
	SequenceStatusCompleted = "completed"
	SequenceStatusStopped   = "stopped"
	SequenceStatusFailed    = "failed"
)

// Sequence types supported by the template provider.
const (
	SequenceTypeNoReply  = "no_reply_followup"
	SequenceTypeFourStar = "four_star_followup"
)

// Stop reasons recorded on stopped sequences.
const (
	StopReasonClientReplied = "client_replied"
	StopReasonChatStatus    = "chat_status_changed"
	StopReasonMaxSteps      = "max_steps_reached"
	StopReasonNoReplySign   = "no_reply_sign"
	StopReasonNoTemplate    = "no_template"
	StopReasonOperator      = "operator_cancel"
)

// StepTemplate is one scripted follow-up message. Day is informational (the
// nominal day of the campaign); the actual send time comes from the slot
// scheduler.
type StepTemplate struct {
	Day  int    `json:"day"`
	Text string `json:"text"`
}

// ChatAutoSequence is the persisted state of one follow-up campaign over one
// chat. Templates are bound at creation time; later edits to the defaults or
// user settings never change an in-flight sequence.
//
// At most one active sequence may exist per chat. The guard is a partial
// unique index on (chat_id) WHERE status = 'active', created in Migrate.
type ChatAutoSequence struct {
	ID      string `gorm:"type:uuid;primaryKey" json:"id"`
	ChatID  string `gorm:"type:uuid;not null;index" json:"chat_id"`
	StoreID string `gorm:"type:uuid;not null;index" json:"store_id"`
	OwnerID string `gorm:"type:uuid;not null" json:"owner_id"`

	SequenceType string         `gorm:"not null;default:'no_reply_followup'" json:"sequence_type"`
	Messages     []StepTemplate `gorm:"type:jsonb;serializer:json" json:"messages"`
	MaxSteps     int            `gorm:"not null" json:"max_steps"`
	CurrentStep  int            `gorm:"not null;default:0" json:"current_step"`

	ConsecutiveFailures int    `gorm:"not null;default:0" json:"consecutive_failures"`
	LastError           string `gorm:"type:text" json:"last_error,omitempty"`

	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	LastSentAt *time.Time `json:"last_sent_at"`
	NextSendAt *time.Time `gorm:"index" json:"next_send_at"`

	Status     string `gorm:"not null;default:'active';index" json:"status"`
	StopReason string `json:"stop_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the sequence may still send.
func (s *ChatAutoSequence) Active() bool {
	return s.Status == SequenceStatusActive
}

// Template returns the bound template for the given step, or nil when the
// step is out of range.
func (s *ChatAutoSequence) Template(step int) *StepTemplate {
	if step < 0 || step >= len(s.Messages) {
		return nil
	}
	return &s.Messages[step]
}
