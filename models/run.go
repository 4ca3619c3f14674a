package models

import "time"

// SequenceRun is the aggregate outcome of one sweep over one store's due
// sequences. Operators read these to see what a run actually did.
type SequenceRun struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	StoreID string `gorm:"type:uuid;not null;index" json:"store_id"`

	StartedAt  time.Time `gorm:"not null" json:"started_at"`
	FinishedAt time.Time `gorm:"not null" json:"finished_at"`

	Due     int `gorm:"not null;default:0" json:"due"`
	Sent    int `gorm:"not null;default:0" json:"sent"`
	Skipped int `gorm:"not null;default:0" json:"skipped"`
	Stopped int `gorm:"not null;default:0" json:"stopped"`
	Failed  int `gorm:"not null;default:0" json:"failed"`

	CreatedAt time.Time `json:"created_at"`
}
