package utils

import (
	"testing"
	"time"

	"sellerdesk/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// One connection keeps every session on the same in-memory database.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.Migrate(db))
	require.NoError(t, models.EnsureDefaultSettings(db))
	return db
}

func seedStore(t *testing.T, db *gorm.DB) *models.Store {
	t.Helper()
	store := &models.Store{
		ID:           uuid.NewString(),
		OwnerID:      uuid.NewString(),
		Name:         "test store",
		Status:       models.StoreStatusActive,
		ChatAPIToken: "chat-token",
	}
	require.NoError(t, db.Create(store).Error)
	return store
}

func seedChat(t *testing.T, db *gorm.DB, store *models.Store, status string) *models.Chat {
	t.Helper()
	chat := &models.Chat{
		ID:         uuid.NewString(),
		StoreID:    store.ID,
		OwnerID:    store.OwnerID,
		ClientName: "Анна",
		Status:     status,
		ReplySign:  "sign-" + uuid.NewString()[:8],
	}
	require.NoError(t, db.Create(chat).Error)
	return chat
}

func seedMessage(t *testing.T, db *gorm.DB, chat *models.Chat, sender, text string, at time.Time) *models.ChatMessage {
	t.Helper()
	msg := &models.ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		StoreID:   chat.StoreID,
		OwnerID:   chat.OwnerID,
		Sender:    sender,
		Text:      text,
		Timestamp: at,
	}
	require.NoError(t, db.Create(msg).Error)
	return msg
}

func testSteps(n int) []models.StepTemplate {
	steps := make([]models.StepTemplate, n)
	for i := range steps {
		steps[i] = models.StepTemplate{Day: i + 1, Text: "шаг " + uuid.NewString()[:8]}
	}
	return steps
}
