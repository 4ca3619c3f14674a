package models

import "time"

// UserSettings holds per-installation overrides for the follow-up engine.
// Empty fields fall back to the built-in defaults in utils/templates.go.
type UserSettings struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	OwnerID string `gorm:"type:uuid;index" json:"owner_id"`

	NoReplyTriggerPhrase string `gorm:"type:text" json:"no_reply_trigger_phrase"`

	// Custom follow-up scripts per sequence type.
	NoReplyMessages         []StepTemplate `gorm:"type:jsonb;serializer:json" json:"no_reply_messages"`
	NoReplyFourStarMessages []StepTemplate `gorm:"type:jsonb;serializer:json" json:"no_reply_four_star_messages"`

	// Closing messages delivered as the final step of each script.
	NoReplyStopMessage         string `gorm:"type:text" json:"no_reply_stop_message"`
	NoReplyFourStarStopMessage string `gorm:"type:text" json:"no_reply_four_star_stop_message"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
