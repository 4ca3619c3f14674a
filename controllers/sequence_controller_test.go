package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sellerdesk/models"
	"sellerdesk/utils"
	"sellerdesk/worker"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type apiEnv struct {
	DB  *gorm.DB
	App *fiber.App
}

type noopSender struct{}

func (noopSender) SendMessage(ctx context.Context, token, replySign, text string) error {
	return nil
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.Migrate(db))
	require.NoError(t, models.EnsureDefaultSettings(db))

	quiet := log.New(io.Discard, "", 0)
	slots := utils.NewSlotScheduler(utils.DefaultSendSlots, 3)
	sequences := utils.NewSequenceStore(db, slots)
	chats := utils.NewChatStore(db)
	templates := utils.NewTemplateProvider(db, quiet)
	w := worker.NewSequenceWorker(db, sequences, chats, noopSender{}, worker.NoopSweepLock{}, quiet, worker.DefaultConfig())

	sc := NewSequenceController(db, quiet, utils.NewCandidateSelector(db), sequences, templates, w)
	dc := NewDashboardController(db, quiet)

	app := fiber.New()
	api := app.Group("/api/v1")
	api.Get("/stores/:id/candidates", sc.ListCandidates)
	api.Get("/stores/:id/preview", sc.PreviewDueWork)
	api.Get("/stores/:id/runs", sc.GetRunStats)
	api.Get("/stores/:id/dashboard", dc.GetStoreDashboard)
	api.Post("/sequences", sc.CreateSequence)
	api.Post("/sequences/:id/cancel", sc.CancelSequence)

	return &apiEnv{DB: db, App: app}
}

func (e *apiEnv) seedStore(t *testing.T) *models.Store {
	t.Helper()
	store := &models.Store{
		ID:      uuid.NewString(),
		OwnerID: uuid.NewString(),
		Name:    "test store",
		Status:  models.StoreStatusActive,
	}
	require.NoError(t, e.DB.Create(store).Error)
	return store
}

func (e *apiEnv) seedChat(t *testing.T, store *models.Store, status string) *models.Chat {
	t.Helper()
	chat := &models.Chat{
		ID:        uuid.NewString(),
		StoreID:   store.ID,
		OwnerID:   store.OwnerID,
		Status:    status,
		ReplySign: "sign",
	}
	require.NoError(t, e.DB.Create(chat).Error)
	return chat
}

func (e *apiEnv) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]json.RawMessage) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := e.App.Test(req, -1)
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	resp.Body.Close()
	return resp, decoded
}

func TestCreateSequenceEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	store := env.seedStore(t)
	chat := env.seedChat(t, store, models.ChatStatusInbox)

	resp, body := env.do(t, http.MethodPost, "/api/v1/sequences", fiber.Map{
		"chat_id":       chat.ID,
		"sequence_type": models.SequenceTypeNoReply,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var seq models.ChatAutoSequence
	require.NoError(t, json.Unmarshal(body["sequence"], &seq))
	assert.Equal(t, chat.ID, seq.ChatID)
	assert.Equal(t, models.SequenceStatusActive, seq.Status)
	assert.Equal(t, 15, seq.MaxSteps, "14-step script plus the closing message")
	require.NotNil(t, seq.NextSendAt)
	assert.True(t, seq.NextSendAt.After(time.Now()))

	// A repeat create returns the existing sequence with 200.
	resp, body = env.do(t, http.MethodPost, "/api/v1/sequences", fiber.Map{
		"chat_id":       chat.ID,
		"sequence_type": models.SequenceTypeNoReply,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var again models.ChatAutoSequence
	require.NoError(t, json.Unmarshal(body["sequence"], &again))
	assert.Equal(t, seq.ID, again.ID)

	var createdFlag bool
	require.NoError(t, json.Unmarshal(body["created"], &createdFlag))
	assert.False(t, createdFlag)
}

func TestCreateSequenceValidation(t *testing.T) {
	env := newAPIEnv(t)
	store := env.seedStore(t)
	chat := env.seedChat(t, store, models.ChatStatusInbox)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/sequences", fiber.Map{
		"chat_id":       chat.ID,
		"sequence_type": "upsell",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = env.do(t, http.MethodPost, "/api/v1/sequences", fiber.Map{
		"sequence_type": models.SequenceTypeNoReply,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCreateSequenceUnknownChat(t *testing.T) {
	env := newAPIEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/sequences", fiber.Map{
		"chat_id":       uuid.NewString(),
		"sequence_type": models.SequenceTypeNoReply,
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateSequenceClosedChat(t *testing.T) {
	env := newAPIEnv(t)
	store := env.seedStore(t)
	chat := env.seedChat(t, store, models.ChatStatusClosed)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/sequences", fiber.Map{
		"chat_id":       chat.ID,
		"sequence_type": models.SequenceTypeNoReply,
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestCancelSequenceEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	store := env.seedStore(t)
	chat := env.seedChat(t, store, models.ChatStatusInbox)

	_, body := env.do(t, http.MethodPost, "/api/v1/sequences", fiber.Map{
		"chat_id":       chat.ID,
		"sequence_type": models.SequenceTypeNoReply,
	})
	var seq models.ChatAutoSequence
	require.NoError(t, json.Unmarshal(body["sequence"], &seq))

	resp, body := env.do(t, http.MethodPost, "/api/v1/sequences/"+seq.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cancelled models.ChatAutoSequence
	require.NoError(t, json.Unmarshal(body["sequence"], &cancelled))
	assert.Equal(t, models.SequenceStatusStopped, cancelled.Status)
	assert.Equal(t, models.StopReasonOperator, cancelled.StopReason)

	// Cancelling again stays 200 and keeps the original stop reason.
	resp, body = env.do(t, http.MethodPost, "/api/v1/sequences/"+seq.ID+"/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(body["sequence"], &cancelled))
	assert.Equal(t, models.StopReasonOperator, cancelled.StopReason)
}

func TestCancelSequenceUnknown(t *testing.T) {
	env := newAPIEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/v1/sequences/"+uuid.NewString()+"/cancel", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListCandidatesEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	store := env.seedStore(t)
	chat := env.seedChat(t, store, models.ChatStatusInbox)

	require.NoError(t, env.DB.Create(&models.ChatMessage{
		ID:        uuid.NewString(),
		ChatID:    chat.ID,
		StoreID:   store.ID,
		OwnerID:   store.OwnerID,
		Sender:    models.SenderSeller,
		Text:      utils.DefaultTriggerPhrase + ". Напишите нам!",
		Timestamp: time.Now().UTC().Add(-48 * time.Hour),
	}).Error)

	resp, body := env.do(t, http.MethodGet, "/api/v1/stores/"+store.ID+"/candidates", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var count int
	require.NoError(t, json.Unmarshal(body["count"], &count))
	assert.Equal(t, 1, count)

	var candidates []utils.Candidate
	require.NoError(t, json.Unmarshal(body["candidates"], &candidates))
	require.Len(t, candidates, 1)
	assert.Equal(t, chat.ID, candidates[0].ChatID)
}

func TestPreviewEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	store := env.seedStore(t)
	chat := env.seedChat(t, store, models.ChatStatusInbox)

	_, _ = env.do(t, http.MethodPost, "/api/v1/sequences", fiber.Map{
		"chat_id":       chat.ID,
		"sequence_type": models.SequenceTypeNoReply,
	})

	resp, body := env.do(t, http.MethodGet, "/api/v1/stores/"+store.ID+"/preview", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var items []worker.PreviewItem
	require.NoError(t, json.Unmarshal(body["items"], &items))
	require.Len(t, items, 1)
	assert.Equal(t, "wait", items[0].Action, "freshly created sequences are due tomorrow")

	var counts map[string]int
	require.NoError(t, json.Unmarshal(body["counts"], &counts))
	assert.Equal(t, 1, counts["wait"])
}

func TestDashboardEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	store := env.seedStore(t)

	active := env.seedChat(t, store, models.ChatStatusInbox)
	_, _ = env.do(t, http.MethodPost, "/api/v1/sequences", fiber.Map{
		"chat_id":       active.ID,
		"sequence_type": models.SequenceTypeNoReply,
	})

	stopped := env.seedChat(t, store, models.ChatStatusInbox)
	_, body := env.do(t, http.MethodPost, "/api/v1/sequences", fiber.Map{
		"chat_id":       stopped.ID,
		"sequence_type": models.SequenceTypeFourStar,
	})
	var seq models.ChatAutoSequence
	require.NoError(t, json.Unmarshal(body["sequence"], &seq))
	_, _ = env.do(t, http.MethodPost, "/api/v1/sequences/"+seq.ID+"/cancel", nil)

	// An auto-sent step message from two days ago.
	require.NoError(t, env.DB.Create(&models.ChatMessage{
		ID:        "auto_" + seq.ID[:8] + "_0",
		ChatID:    stopped.ID,
		StoreID:   store.ID,
		OwnerID:   store.OwnerID,
		Sender:    models.SenderSeller,
		Text:      "шаг",
		Timestamp: time.Now().UTC().Add(-48 * time.Hour),
	}).Error)

	resp, body := env.do(t, http.MethodGet, "/api/v1/stores/"+store.ID+"/dashboard", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats DashboardStats
	require.NoError(t, json.Unmarshal(body["stats"], &stats))
	assert.EqualValues(t, 1, stats.ActiveSequences)
	assert.EqualValues(t, 1, stats.StoppedSequences)
	assert.EqualValues(t, 2, stats.ChatsInPipeline)
	assert.EqualValues(t, 1, stats.AutoSentLast7d)
}

func TestRunStatsEndpoint(t *testing.T) {
	env := newAPIEnv(t)
	store := env.seedStore(t)

	now := time.Now().UTC()
	require.NoError(t, env.DB.Create(&models.SequenceRun{
		StoreID:    store.ID,
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
		Due:        3,
		Sent:       2,
		Stopped:    1,
	}).Error)

	resp, body := env.do(t, http.MethodGet, "/api/v1/stores/"+store.ID+"/runs", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var runs []models.SequenceRun
	require.NoError(t, json.Unmarshal(body["runs"], &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].Due)
	assert.Equal(t, 2, runs[0].Sent)
}
