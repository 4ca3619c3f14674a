package worker

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"sellerdesk/models"
	"sellerdesk/utils"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	DB        *gorm.DB
	Sequences *utils.SequenceStore
	Chats     *utils.ChatStore
	Sender    *fakeSender
	Worker    *SequenceWorker
}

func newTestEnv(t *testing.T) *testEnv {
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

	slots := utils.NewSlotScheduler(utils.DefaultSendSlots, 3)
	sequences := utils.NewSequenceStore(db, slots)
	chats := utils.NewChatStore(db)
	sender := &fakeSender{}

	cfg := Config{
		SweepInterval:  time.Minute,
		SendInterval:   0,
		SendTimeout:    time.Second,
		BatchLimit:     50,
		FailureCeiling: 3,
	}
	w := NewSequenceWorker(db, sequences, chats, sender, NoopSweepLock{}, log.New(io.Discard, "", 0), cfg)

	return &testEnv{DB: db, Sequences: sequences, Chats: chats, Sender: sender, Worker: w}
}

func (e *testEnv) seedStore(t *testing.T) *models.Store {
	t.Helper()
	store := &models.Store{
		ID:           uuid.NewString(),
		OwnerID:      uuid.NewString(),
		Name:         "test store",
		Status:       models.StoreStatusActive,
		ChatAPIToken: "chat-token",
	}
	require.NoError(t, e.DB.Create(store).Error)
	return store
}

func (e *testEnv) seedChat(t *testing.T, store *models.Store, status, replySign string) *models.Chat {
	t.Helper()
	chat := &models.Chat{
		ID:         uuid.NewString(),
		StoreID:    store.ID,
		OwnerID:    store.OwnerID,
		ClientName: "Анна",
		Status:     status,
		ReplySign:  replySign,
	}
	require.NoError(t, e.DB.Create(chat).Error)
	return chat
}

func (e *testEnv) seedMessage(t *testing.T, chat *models.Chat, sender, text string, at time.Time) {
	t.Helper()
	require.NoError(t, e.DB.Create(&models.ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		StoreID:   chat.StoreID,
		OwnerID:   chat.OwnerID,
		Sender:    sender,
		Text:      text,
		Timestamp: at,
	}).Error)
}

// seedDueSequence creates an active sequence whose send time is already in the
// past so the next sweep picks it up.
func (e *testEnv) seedDueSequence(t *testing.T, chat *models.Chat, steps int) *models.ChatAutoSequence {
	t.Helper()
	templates := make([]models.StepTemplate, steps)
	for i := range templates {
		templates[i] = models.StepTemplate{Day: i + 1, Text: "шаг " + uuid.NewString()[:8]}
	}
	seq, created, err := e.Sequences.Create(chat, models.SequenceTypeNoReply, templates)
	require.NoError(t, err)
	require.True(t, created)
	e.makeDue(t, seq)
	return seq
}

func (e *testEnv) makeDue(t *testing.T, seq *models.ChatAutoSequence) {
	t.Helper()
	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, e.DB.Model(&models.ChatAutoSequence{}).
		Where("id = ?", seq.ID).
		Update("next_send_at", past).Error)
	seq.NextSendAt = &past
	// The sequence started well before the current local day so messages
	// seeded "yesterday" land after StartedAt.
	started := time.Now().UTC().Add(-72 * time.Hour)
	require.NoError(t, e.DB.Model(&models.ChatAutoSequence{}).
		Where("id = ?", seq.ID).
		Update("started_at", started).Error)
	seq.StartedAt = started
}

func (e *testEnv) reload(t *testing.T, id string) *models.ChatAutoSequence {
	t.Helper()
	seq, err := e.Sequences.Get(id)
	require.NoError(t, err)
	return seq
}

type sentCall struct {
	Token     string
	ReplySign string
	Text      string
}

type fakeSender struct {
	mu    sync.Mutex
	err   error
	calls []sentCall
}

func (f *fakeSender) SendMessage(ctx context.Context, token, replySign, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.calls = append(f.calls, sentCall{Token: token, ReplySign: replySign, Text: text})
	return nil
}

func (f *fakeSender) sent() []sentCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentCall, len(f.calls))
	copy(out, f.calls)
	return out
}
