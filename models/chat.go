package models

import "time"

// Chat statuses as they appear in the back-office pipeline. Chats are shared
// with human agents: the engine never assumes a cached status is still valid.
const (
	ChatStatusInbox         = "inbox"
	ChatStatusInProgress    = "in_progress"
	ChatStatusAwaitingReply = "awaiting_reply"
	ChatStatusResolved      = "resolved"
	ChatStatusClosed        = "closed"
)

// Message senders.
const (
	SenderClient = "client"
	SenderSeller = "seller"
)

// ChatTagDeletionCandidate marks chats taken over by the follow-up engine.
const ChatTagDeletionCandidate = "deletion_candidate"

// Chat represents one buyer conversation synced from the marketplace.
type Chat struct {
	ID      string `gorm:"type:uuid;primaryKey" json:"id"`
	StoreID string `gorm:"type:uuid;not null;index" json:"store_id"`
	OwnerID string `gorm:"type:uuid;not null;index" json:"owner_id"`

	ClientName  string `json:"client_name"`
	ProductName string `json:"product_name"`
	ProductNmID int64  `gorm:"index" json:"product_nm_id"`

	Status string `gorm:"not null;default:'inbox';index" json:"status"`
	Tag    string `json:"tag"`

	// ReplySign is the marketplace's opaque reply handle. A chat without one
	// can never be messaged and is permanently ineligible for sequences.
	ReplySign string `gorm:"type:text" json:"-"`

	LastMessageText   string     `gorm:"type:text" json:"last_message_text"`
	LastMessageSender string     `json:"last_message_sender"`
	LastMessageDate   *time.Time `json:"last_message_date"`
	StatusUpdatedAt   *time.Time `json:"status_updated_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Followable reports whether the chat is in a state the engine may message.
func (c *Chat) Followable() bool {
	return c.Status == ChatStatusAwaitingReply || c.Status == ChatStatusInbox
}

// ChatMessage is one message in a conversation. The table is append-only and
// is the sole source of truth for reply detection; no "has replied" flag
// elsewhere is trusted. Auto-sent steps use the id format
// auto_<sequence-id-prefix>_<step>, which doubles as the per-step dedup key.
type ChatMessage struct {
	ID      string `gorm:"primaryKey" json:"id"`
	ChatID  string `gorm:"type:uuid;not null;index:idx_chat_sender_ts,priority:1" json:"chat_id"`
	StoreID string `gorm:"type:uuid;not null;index" json:"store_id"`
	OwnerID string `gorm:"type:uuid;not null" json:"owner_id"`

	Sender    string    `gorm:"not null;index:idx_chat_sender_ts,priority:2" json:"sender"`
	Text      string    `gorm:"type:text" json:"text"`
	Timestamp time.Time `gorm:"not null;index:idx_chat_sender_ts,priority:3" json:"timestamp"`

	CreatedAt time.Time `json:"created_at"`
}
