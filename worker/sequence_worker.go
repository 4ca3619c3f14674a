package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"sellerdesk/models"
	"sellerdesk/utils"

	"gorm.io/gorm"
)

// Config contains the worker's sweep settings.
type Config struct {
	// SweepInterval is how often due sequences are processed.
	SweepInterval time.Duration

	// SendInterval is the minimum gap between consecutive external sends.
	SendInterval time.Duration

	// SendTimeout bounds each external send call. A timeout counts as a
	// failure and the step is retried at the next due tick.
	SendTimeout time.Duration

	// BatchLimit caps how many due sequences one sweep processes per store.
	BatchLimit int

	// FailureCeiling is the consecutive-failure count that escalates a
	// sequence to failed.
	FailureCeiling int
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		SweepInterval:  5 * time.Minute,
		SendInterval:   3 * time.Second,
		SendTimeout:    15 * time.Second,
		BatchLimit:     100,
		FailureCeiling: 5,
	}
}

// Summary is the aggregate outcome of one store sweep.
type Summary struct {
	Due     int `json:"due"`
	Sent    int `json:"sent"`
	Skipped int `json:"skipped"`
	Stopped int `json:"stopped"`
	Failed  int `json:"failed"`
}

// SequenceWorker runs the periodic due-tick sweep: it loads due sequences per
// store, applies the stop-condition logic, and dispatches sends sequentially
// under the rate gate. State is committed only after the external channel
// confirms a send.
type SequenceWorker struct {
	DB        *gorm.DB
	Sequences *utils.SequenceStore
	Chats     *utils.ChatStore
	Sender    utils.ChatSender
	Gate      *SendGate
	Lock      SweepLock
	Logger    *log.Logger
	Config    Config
}

func NewSequenceWorker(db *gorm.DB, sequences *utils.SequenceStore, chats *utils.ChatStore, sender utils.ChatSender, lock SweepLock, logger *log.Logger, cfg Config) *SequenceWorker {
	return &SequenceWorker{
		DB:        db,
		Sequences: sequences,
		Chats:     chats,
		Sender:    sender,
		Gate:      NewSendGate(cfg.SendInterval),
		Lock:      lock,
		Logger:    logger,
		Config:    cfg,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (sw *SequenceWorker) Start(ctx context.Context) {
	sw.Logger.Println("Sequence worker started")

	ticker := time.NewTicker(sw.Config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			sw.Logger.Println("Sequence worker shutting down...")
			return
		case <-ticker.C:
			sw.runSweeps(ctx)
		}
	}
}

// runSweeps processes every active store in turn. Store sweeps are
// independent; the redis lock keeps other engine nodes off a store while this
// one works it.
func (sw *SequenceWorker) runSweeps(ctx context.Context) {
	var stores []models.Store
	if err := sw.DB.Where("status = ?", models.StoreStatusActive).Find(&stores).Error; err != nil {
		sw.Logger.Printf("Error fetching active stores: %v", err)
		return
	}

	for i := range stores {
		store := &stores[i]
		if ctx.Err() != nil {
			return
		}

		ok, err := sw.Lock.Acquire(ctx, store.ID)
		if err != nil {
			sw.Logger.Printf("Sweep lock error for store %s: %v", store.ID, err)
			continue
		}
		if !ok {
			continue
		}

		startedAt := time.Now().UTC()
		summary, err := sw.SweepStore(ctx, store)
		sw.Lock.Release(ctx, store.ID)

		if err != nil && !errors.Is(err, context.Canceled) {
			utils.LogError("sequence_sweep", err, map[string]interface{}{
				"store_id": store.ID,
			})
		}
		if summary.Due == 0 {
			continue
		}

		run := models.SequenceRun{
			StoreID:    store.ID,
			StartedAt:  startedAt,
			FinishedAt: time.Now().UTC(),
			Due:        summary.Due,
			Sent:       summary.Sent,
			Skipped:    summary.Skipped,
			Stopped:    summary.Stopped,
			Failed:     summary.Failed,
		}
		if err := sw.DB.Create(&run).Error; err != nil {
			sw.Logger.Printf("Failed to record sweep run for store %s: %v", store.ID, err)
		}
		utils.LogEvent("sequence_sweep_finished", map[string]interface{}{
			"store_id": store.ID,
			"due":      summary.Due,
			"sent":     summary.Sent,
			"skipped":  summary.Skipped,
			"stopped":  summary.Stopped,
			"failed":   summary.Failed,
		})
	}
}

// SweepStore processes one store's due sequences oldest-due-first. A single
// item's failure never aborts the rest of the sweep; cancellation does.
func (sw *SequenceWorker) SweepStore(ctx context.Context, store *models.Store) (Summary, error) {
	var summary Summary

	now := time.Now().UTC()
	due, err := sw.Sequences.Due(store.ID, now, sw.Config.BatchLimit)
	if err != nil {
		return summary, err
	}
	summary.Due = len(due)
	if len(due) == 0 {
		return summary, nil
	}

	token := store.ChatToken()
	dayStart := sw.Sequences.Slots.StartOfDay(now)

	for i := range due {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if err := sw.processSequence(ctx, &due[i], token, dayStart, &summary); err != nil {
			return summary, err
		}
	}
	return summary, nil
}

// processSequence handles one due item end to end. Only context errors
// propagate; everything else is counted and logged.
func (sw *SequenceWorker) processSequence(ctx context.Context, stale *models.ChatAutoSequence, token string, dayStart time.Time, summary *Summary) error {
	// Re-read: an operator cancel between the due query and here must win.
	seq, err := sw.Sequences.Get(stale.ID)
	if err != nil {
		summary.Failed++
		utils.LogError("sequence_read", err, map[string]interface{}{"sequence_id": stale.ID})
		return nil
	}
	if !seq.Active() {
		summary.Skipped++
		return nil
	}

	chat, err := sw.Chats.Get(seq.ChatID)
	if err != nil {
		summary.Failed++
		utils.LogError("chat_read", err, map[string]interface{}{"sequence_id": seq.ID, "chat_id": seq.ChatID})
		return nil
	}

	// Reconcile a half-committed step: the message row exists but the step
	// bump was lost. Advance without resending.
	exists, err := sw.Sequences.StepMessageExists(seq.ID, seq.CurrentStep)
	if err == nil && exists {
		if err := sw.Sequences.AdvanceWithoutSend(seq); err != nil && !errors.Is(err, utils.ErrSequenceConflict) {
			utils.LogError("sequence_reconcile", err, map[string]interface{}{"sequence_id": seq.ID})
			summary.Failed++
			return nil
		}
		sw.Logger.Printf("Sequence %s: step %d reconciled without resend", seq.ID, seq.CurrentStep)
		summary.Skipped++
		return nil
	}

	decision, err := Evaluate(sw.Chats, chat, seq, dayStart)
	if err != nil {
		summary.Failed++
		utils.LogError("sequence_evaluate", err, map[string]interface{}{"sequence_id": seq.ID})
		return nil
	}

	switch decision.Action {
	case ActionStop:
		if err := sw.Sequences.Stop(seq.ID, decision.Reason); err != nil {
			summary.Failed++
			utils.LogError("sequence_stop", err, map[string]interface{}{"sequence_id": seq.ID})
			return nil
		}
		summary.Stopped++
		return nil

	case ActionSkip:
		summary.Skipped++
		return nil
	}

	// Eligibility: without a reply handle the chat can never be messaged.
	// Terminal, not retried.
	if chat.ReplySign == "" {
		if err := sw.Sequences.Stop(seq.ID, models.StopReasonNoReplySign); err != nil {
			utils.LogError("sequence_stop", err, map[string]interface{}{"sequence_id": seq.ID})
		}
		summary.Stopped++
		return nil
	}

	if err := sw.Gate.Wait(ctx); err != nil {
		return err
	}

	// The gate may have blocked for a while; honor a cancel that landed
	// meanwhile rather than sending into a stopped sequence.
	seq, err = sw.Sequences.Get(seq.ID)
	if err != nil || !seq.Active() {
		summary.Skipped++
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, sw.Config.SendTimeout)
	err = sw.Sender.SendMessage(sendCtx, token, chat.ReplySign, decision.Template.Text)
	cancel()
	if err != nil {
		// Transient (or ambiguous, e.g. timeout): state untouched, the same
		// step is retried at the next due tick.
		if recErr := sw.Sequences.RecordFailure(seq, sw.Config.FailureCeiling, err); recErr != nil {
			utils.LogError("sequence_failure_record", recErr, map[string]interface{}{"sequence_id": seq.ID})
		}
		summary.Failed++
		utils.LogError("sequence_send", err, map[string]interface{}{
			"sequence_id": seq.ID,
			"chat_id":     seq.ChatID,
			"step":        seq.CurrentStep,
		})
		return nil
	}

	if err := sw.Sequences.Advance(seq, decision.Template.Text); err != nil {
		// The send went out but the commit lost a race or failed; the next
		// tick reconciles via the step message probe instead of resending.
		summary.Failed++
		utils.LogError("sequence_advance", err, map[string]interface{}{"sequence_id": seq.ID})
		return nil
	}
	summary.Sent++
	return nil
}

// PreviewItem is one row of the read-only dry run.
type PreviewItem struct {
	SequenceID  string     `json:"sequence_id"`
	ChatID      string     `json:"chat_id"`
	ClientName  string     `json:"client_name"`
	CurrentStep int        `json:"current_step"`
	MaxSteps    int        `json:"max_steps"`
	NextSendAt  *time.Time `json:"next_send_at"`
	Ready       bool       `json:"ready"`
	Action      string     `json:"action"`
	Reason      string     `json:"reason,omitempty"`
	Text        string     `json:"text,omitempty"`
}

// Preview computes the per-sequence decision for every active sequence of a
// store without any side effects. Operators run this before enabling live
// sends.
func (sw *SequenceWorker) Preview(storeID string) ([]PreviewItem, error) {
	var active []models.ChatAutoSequence
	err := sw.DB.
		Where("store_id = ? AND status = ?", storeID, models.SequenceStatusActive).
		Order("next_send_at ASC").
		Find(&active).Error
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	dayStart := sw.Sequences.Slots.StartOfDay(now)

	items := make([]PreviewItem, 0, len(active))
	for i := range active {
		seq := &active[i]
		item := PreviewItem{
			SequenceID:  seq.ID,
			ChatID:      seq.ChatID,
			CurrentStep: seq.CurrentStep,
			MaxSteps:    seq.MaxSteps,
			NextSendAt:  seq.NextSendAt,
		}

		chat, err := sw.Chats.Get(seq.ChatID)
		if err != nil {
			item.Action = string(ActionStop)
			item.Reason = "chat_missing"
			items = append(items, item)
			continue
		}
		item.ClientName = chat.ClientName

		item.Ready = seq.NextSendAt != nil && !seq.NextSendAt.After(now)
		if !item.Ready {
			item.Action = "wait"
			item.Reason = "not_due"
			items = append(items, item)
			continue
		}

		decision, err := Evaluate(sw.Chats, chat, seq, dayStart)
		if err != nil {
			return nil, err
		}
		item.Action = string(decision.Action)
		item.Reason = decision.Reason
		if decision.Action == ActionSend && chat.ReplySign == "" {
			item.Action = string(ActionStop)
			item.Reason = models.StopReasonNoReplySign
		}
		if decision.Template != nil {
			item.Text = decision.Template.Text
		}
		items = append(items, item)
	}
	return items, nil
}
