package utils

import (
	"time"

	"sellerdesk/models"

	"gorm.io/gorm"
)

// ChatStore answers the live-state questions the tick evaluator asks. Every
// call hits the database: an agent or the buyer can change a conversation at
// any moment, so cached answers are never trusted.
type ChatStore struct {
	DB *gorm.DB
}

func NewChatStore(db *gorm.DB) *ChatStore {
	return &ChatStore{DB: db}
}

func (cs *ChatStore) Get(chatID string) (*models.Chat, error) {
	var chat models.Chat
	if err := cs.DB.First(&chat, "id = ?", chatID).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

// ClientRepliedAfter reports whether any client message exists after the
// given instant. Served by the (chat_id, sender, timestamp) index.
func (cs *ChatStore) ClientRepliedAfter(chatID string, after time.Time) (bool, error) {
	var count int64
	err := cs.DB.Model(&models.ChatMessage{}).
		Where("chat_id = ? AND sender = ? AND timestamp > ?", chatID, models.SenderClient, after).
		Count(&count).Error
	return count > 0, err
}

// SellerSentSince reports whether the seller side has messaged the chat at or
// after the given instant (the local start of day for the daily cap).
func (cs *ChatStore) SellerSentSince(chatID string, since time.Time) (bool, error) {
	var count int64
	err := cs.DB.Model(&models.ChatMessage{}).
		Where("chat_id = ? AND sender = ? AND timestamp >= ?", chatID, models.SenderSeller, since).
		Count(&count).Error
	return count > 0, err
}
