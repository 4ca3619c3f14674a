package models

import "time"

// Store statuses.
const (
	StoreStatusActive = "active"
	StoreStatusPaused = "paused"
)

// Store is one marketplace seller account connected to the back office.
type Store struct {
	ID      string `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerID string `gorm:"type:uuid;not null;index" json:"owner_id"`

	Name   string `gorm:"not null" json:"name"`
	Status string `gorm:"not null;default:'active';index" json:"status"`

	// APIToken is the general marketplace token; ChatAPIToken is a dedicated
	// buyer-chat token some stores have. Chat sends prefer the dedicated one.
	APIToken     string `gorm:"type:text" json:"-"`
	ChatAPIToken string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ChatToken returns the token to use against the buyer-chat API.
func (s *Store) ChatToken() string {
	if s.ChatAPIToken != "" {
		return s.ChatAPIToken
	}
	return s.APIToken
}
