package utils

import (
	"time"

	"gorm.io/gorm"
)

// Candidate is a chat eligible to start a follow-up sequence.
type Candidate struct {
	ChatID        string    `json:"chat_id"`
	OwnerID       string    `json:"owner_id"`
	ClientName    string    `json:"client_name"`
	Status        string    `json:"status"`
	Tag           string    `json:"tag"`
	ReplySign     string    `json:"-"`
	TriggerText   string    `json:"-"`
	TriggerSentAt time.Time `json:"trigger_sent_at"`
}

// CandidateSelector finds chats where the outreach trigger was sent and the
// buyer never came back. It is a pure read and recomputes eligibility from the
// message log every time, so it stays safely re-runnable after partial
// failures; no persisted "has replied" flag is involved.
//
// Matcher, when set, overrides the default substring check on the trigger
// message.
type CandidateSelector struct {
	DB      *gorm.DB
	Matcher PhraseMatcher
}

func NewCandidateSelector(db *gorm.DB) *CandidateSelector {
	return &CandidateSelector{DB: db}
}

// ListCandidates returns up to limit chats ordered by most recent trigger
// first. A chat qualifies when its latest trigger-phrase seller message has no
// later client message, no active sequence exists, and the chat is not closed.
func (cs *CandidateSelector) ListCandidates(storeID, phrase string, limit int) ([]Candidate, error) {
	// trigger_sent_at must come from the joined message row: a MAX() aggregate
	// loses the column's declared type and sqlite hands it back as a string,
	// which cannot scan into time.Time.
	var rows []Candidate
	err := cs.DB.Raw(`
		WITH trigger_msgs AS (
			SELECT cm.chat_id, MAX(cm.timestamp) AS trigger_sent_at
			FROM chat_messages cm
			WHERE cm.store_id = ?
			  AND cm.sender = 'seller'
			  AND cm.text LIKE '%' || ? || '%'
			GROUP BY cm.chat_id
		)
		SELECT
			c.id         AS chat_id,
			c.owner_id   AS owner_id,
			c.client_name,
			c.status,
			c.tag,
			c.reply_sign,
			t.text       AS trigger_text,
			t.timestamp  AS trigger_sent_at
		FROM trigger_msgs tm
		JOIN chats c ON c.id = tm.chat_id
		JOIN chat_messages t ON t.chat_id = tm.chat_id
			AND t.sender = 'seller'
			AND t.timestamp = tm.trigger_sent_at
		WHERE c.status != 'closed'
		  AND NOT EXISTS (
			SELECT 1 FROM chat_messages cm
			WHERE cm.chat_id = tm.chat_id
			  AND cm.sender = 'client'
			  AND cm.timestamp > tm.trigger_sent_at
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM chat_auto_sequences cas
			WHERE cas.chat_id = c.id
			  AND cas.status = 'active'
		  )
		ORDER BY tm.trigger_sent_at DESC
		LIMIT ?
	`, storeID, phrase, limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	// The SQL LIKE is only a prefilter; the matcher is the authority on what
	// counts as a trigger. With the default substring matcher the two agree,
	// but a stricter matcher can be dropped in without touching the query.
	matcher := cs.Matcher
	if matcher == nil {
		matcher = SubstringMatcher{Phrase: phrase}
	}
	candidates := rows[:0]
	for _, row := range rows {
		if matcher.Matches(row.TriggerText) {
			candidates = append(candidates, row)
		}
	}
	return candidates, nil
}
