package worker

import (
	"fmt"
	"time"

	"sellerdesk/models"
)

// Action is the outcome of evaluating one due sequence.
type Action string

const (
	ActionSend Action = "send"
	ActionSkip Action = "skip"
	ActionStop Action = "stop"
)

// Decision is the per-sequence verdict. Template is set only for ActionSend.
type Decision struct {
	Action   Action               `json:"action"`
	Reason   string               `json:"reason"`
	Template *models.StepTemplate `json:"-"`
}

// ChatLog answers the evaluator's live queries against the message table.
type ChatLog interface {
	ClientRepliedAfter(chatID string, after time.Time) (bool, error)
	SellerSentSince(chatID string, since time.Time) (bool, error)
}

// Evaluate decides SEND, SKIP or STOP for one due sequence. The check order
// is load-bearing and must not be rearranged:
//
//  1. The buyer replied after the sequence started: stop. Sending another
//     scripted message over a live reply is the worst possible outcome.
//  2. An agent or another process moved the chat out of a followable state:
//     stop.
//  3. The seller side already messaged this chat today: skip without
//     mutating anything; the daily cap holds even if scheduling lands twice
//     in one day.
//  4. current_step ran past max_steps: stop. A stale-read guard; a correct
//     advance path never gets here.
//  5. Otherwise send the template at current_step.
func Evaluate(log ChatLog, chat *models.Chat, seq *models.ChatAutoSequence, dayStart time.Time) (Decision, error) {
	replied, err := log.ClientRepliedAfter(seq.ChatID, seq.StartedAt)
	if err != nil {
		return Decision{}, fmt.Errorf("reply check: %w", err)
	}
	if replied {
		return Decision{Action: ActionStop, Reason: models.StopReasonClientReplied}, nil
	}

	if !chat.Followable() {
		return Decision{
			Action: ActionStop,
			Reason: fmt.Sprintf("%s:%s", models.StopReasonChatStatus, chat.Status),
		}, nil
	}

	sentToday, err := log.SellerSentSince(seq.ChatID, dayStart)
	if err != nil {
		return Decision{}, fmt.Errorf("daily cap check: %w", err)
	}
	if sentToday {
		return Decision{Action: ActionSkip, Reason: "seller_sent_today"}, nil
	}

	if seq.CurrentStep >= seq.MaxSteps {
		return Decision{Action: ActionStop, Reason: models.StopReasonMaxSteps}, nil
	}

	template := seq.Template(seq.CurrentStep)
	if template == nil {
		return Decision{Action: ActionStop, Reason: models.StopReasonNoTemplate}, nil
	}
	return Decision{Action: ActionSend, Template: template}, nil
}
