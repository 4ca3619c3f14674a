package utils

import (
	"errors"
	"fmt"
	"time"

	"sellerdesk/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSequenceConflict means a guarded transition found the sequence in a
// different state than the caller observed (stopped by an operator, advanced
// by another process). The caller drops the item; the next tick re-reads.
var ErrSequenceConflict = errors.New("sequence state changed concurrently")

// StepMessageID builds the deterministic message id for one sequence step.
// Inserting the same step twice collides on the primary key, which is what
// makes "advance without resend" reconciliation possible.
func StepMessageID(sequenceID string, step int) string {
	prefix := sequenceID
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return fmt.Sprintf("auto_%s_%d", prefix, step)
}

// SequenceStore owns the sequence state machine. All transitions are guarded
// updates: they only apply to rows still in the state the caller saw, so a
// concurrent cancel or advance turns into a no-op instead of a double write.
type SequenceStore struct {
	DB    *gorm.DB
	Slots *SlotScheduler
}

func NewSequenceStore(db *gorm.DB, slots *SlotScheduler) *SequenceStore {
	return &SequenceStore{DB: db, Slots: slots}
}

// Create starts a campaign for a chat. The partial unique index on
// (chat_id) WHERE status='active' is the only duplicate guard: a concurrent
// second create hits ON CONFLICT DO NOTHING and resolves to a no-op, and the
// existing active sequence is returned with created=false.
func (ss *SequenceStore) Create(chat *models.Chat, sequenceType string, steps []models.StepTemplate) (*models.ChatAutoSequence, bool, error) {
	if len(steps) == 0 {
		return nil, false, fmt.Errorf("empty template set for type %s", sequenceType)
	}

	now := time.Now().UTC()
	seq := &models.ChatAutoSequence{
		ID:           uuid.NewString(),
		ChatID:       chat.ID,
		StoreID:      chat.StoreID,
		OwnerID:      chat.OwnerID,
		SequenceType: sequenceType,
		Messages:     steps,
		MaxSteps:     len(steps),
		CurrentStep:  0,
		StartedAt:    now,
		NextSendAt:   Pointer(ss.Slots.NextSendAt()),
		Status:       models.SequenceStatusActive,
	}

	res := ss.DB.Clauses(clause.OnConflict{DoNothing: true}).Create(seq)
	if res.Error != nil {
		return nil, false, res.Error
	}
	if res.RowsAffected == 0 {
		var existing models.ChatAutoSequence
		err := ss.DB.Where("chat_id = ? AND status = ?", chat.ID, models.SequenceStatusActive).
			First(&existing).Error
		if err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	}

	// Hand the chat to the engine's pipeline. Best effort: the sequence is
	// already committed and the evaluator re-reads chat state anyway.
	if err := ss.DB.Model(&models.Chat{}).Where("id = ?", chat.ID).Updates(map[string]interface{}{
		"tag":               models.ChatTagDeletionCandidate,
		"status":            models.ChatStatusAwaitingReply,
		"status_updated_at": now,
		"updated_at":        now,
	}).Error; err != nil {
		return seq, true, err
	}
	return seq, true, nil
}

// Get re-reads one sequence.
func (ss *SequenceStore) Get(id string) (*models.ChatAutoSequence, error) {
	var seq models.ChatAutoSequence
	if err := ss.DB.First(&seq, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &seq, nil
}

// Due returns active sequences whose send time has elapsed, oldest due first,
// so the longest-waiting chats are serviced before the cap cuts off a sweep.
func (ss *SequenceStore) Due(storeID string, now time.Time, limit int) ([]models.ChatAutoSequence, error) {
	var due []models.ChatAutoSequence
	err := ss.DB.
		Where("store_id = ? AND status = ? AND next_send_at <= ?", storeID, models.SequenceStatusActive, now).
		Order("next_send_at ASC").
		Limit(limit).
		Find(&due).Error
	return due, err
}

// Advance commits a confirmed send: the step's message row, the chat's
// last-message metadata, and the step bump are one transaction, so a step is
// never advanced without its message existing. Reaching max_steps transitions
// to completed.
func (ss *SequenceStore) Advance(seq *models.ChatAutoSequence, sentText string) error {
	return ss.advance(seq, &sentText)
}

// AdvanceWithoutSend reconciles a half-committed step: the message row already
// exists but the step bump was lost. The step is advanced and nothing is
// inserted or resent.
func (ss *SequenceStore) AdvanceWithoutSend(seq *models.ChatAutoSequence) error {
	return ss.advance(seq, nil)
}

func (ss *SequenceStore) advance(seq *models.ChatAutoSequence, sentText *string) error {
	now := time.Now().UTC()
	next := seq.CurrentStep + 1

	return ss.DB.Transaction(func(tx *gorm.DB) error {
		// The guarded step bump goes first: a stale caller (sequence stopped,
		// or the step already advanced elsewhere) must surface as
		// ErrSequenceConflict, never as a constraint violation from the
		// message insert below.
		updates := map[string]interface{}{
			"current_step":         next,
			"last_sent_at":         now,
			"consecutive_failures": 0,
			"last_error":           "",
		}
		if next >= seq.MaxSteps {
			updates["status"] = models.SequenceStatusCompleted
			updates["next_send_at"] = nil
		} else {
			updates["next_send_at"] = ss.Slots.NextSendAt()
		}

		res := tx.Model(&models.ChatAutoSequence{}).
			Where("id = ? AND status = ? AND current_step = ?", seq.ID, models.SequenceStatusActive, seq.CurrentStep).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrSequenceConflict
		}

		if sentText != nil {
			msg := models.ChatMessage{
				ID:        StepMessageID(seq.ID, seq.CurrentStep),
				ChatID:    seq.ChatID,
				StoreID:   seq.StoreID,
				OwnerID:   seq.OwnerID,
				Sender:    models.SenderSeller,
				Text:      *sentText,
				Timestamp: now,
			}
			insert := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&msg)
			if insert.Error != nil {
				return insert.Error
			}
			if insert.RowsAffected == 0 {
				// The step's message already exists: another process committed
				// this step. Roll everything back as a benign race.
				return ErrSequenceConflict
			}
			if err := tx.Model(&models.Chat{}).Where("id = ?", seq.ChatID).Updates(map[string]interface{}{
				"last_message_text":   *sentText,
				"last_message_sender": models.SenderSeller,
				"last_message_date":   now,
				"updated_at":          now,
			}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Stop terminates an active sequence. Idempotent: stopping an already-terminal
// sequence is a no-op, never an error.
func (ss *SequenceStore) Stop(id, reason string) error {
	return ss.DB.Model(&models.ChatAutoSequence{}).
		Where("id = ? AND status = ?", id, models.SequenceStatusActive).
		Updates(map[string]interface{}{
			"status":       models.SequenceStatusStopped,
			"stop_reason":  reason,
			"next_send_at": nil,
		}).Error
}

// RecordFailure notes a transient dispatch failure. State relevant to the
// retry (current_step, next_send_at) is untouched so the same step is retried
// at the next due tick; past the ceiling the sequence escalates to failed.
func (ss *SequenceStore) RecordFailure(seq *models.ChatAutoSequence, ceiling int, cause error) error {
	failures := seq.ConsecutiveFailures + 1
	updates := map[string]interface{}{
		"consecutive_failures": failures,
		"last_error":           truncate(cause.Error(), 500),
	}
	if ceiling > 0 && failures >= ceiling {
		updates["status"] = models.SequenceStatusFailed
		updates["next_send_at"] = nil
	}
	return ss.DB.Model(&models.ChatAutoSequence{}).
		Where("id = ? AND status = ?", seq.ID, models.SequenceStatusActive).
		Updates(updates).Error
}

// StepMessageExists probes for the current step's message row.
func (ss *SequenceStore) StepMessageExists(sequenceID string, step int) (bool, error) {
	var count int64
	err := ss.DB.Model(&models.ChatMessage{}).
		Where("id = ?", StepMessageID(sequenceID, step)).
		Count(&count).Error
	return count > 0, err
}

// RecentRuns returns the latest sweep summaries for a store.
func (ss *SequenceStore) RecentRuns(storeID string, limit int) ([]models.SequenceRun, error) {
	var runs []models.SequenceRun
	err := ss.DB.Where("store_id = ?", storeID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
