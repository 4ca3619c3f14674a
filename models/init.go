package models

import "gorm.io/gorm"

// Migrate creates or updates the engine's tables. The partial unique index is
// created with raw SQL because AutoMigrate cannot express it; the same syntax
// works on postgres and sqlite, which the tests run against.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&Store{},
		&Chat{},
		&ChatMessage{},
		&ChatAutoSequence{},
		&UserSettings{},
		&SequenceRun{},
	); err != nil {
		return err
	}

	// At most one active sequence per chat. Creation races resolve here, not
	// in application code.
	return db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS uniq_active_sequence_per_chat
		ON chat_auto_sequences (chat_id) WHERE status = 'active'
	`).Error
}

// EnsureDefaultSettings creates the singleton settings row if none exists so
// reads never have to special-case a missing row.
func EnsureDefaultSettings(db *gorm.DB) error {
	var settings UserSettings
	return db.FirstOrCreate(&settings, UserSettings{ID: 1}).Error
}
