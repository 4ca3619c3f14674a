package controller

import (
	"log"
	"time"

	"sellerdesk/models"
	"sellerdesk/utils"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type DashboardController struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewDashboardController(db *gorm.DB, logger *log.Logger) *DashboardController {
	return &DashboardController{
		DB:     db,
		Logger: logger,
	}
}

// DashboardStats is the store overview card: where every sequence stands and
// how much the engine actually sent recently.
type DashboardStats struct {
	ActiveSequences    int64 `json:"active_sequences"`
	CompletedSequences int64 `json:"completed_sequences"`
	StoppedSequences   int64 `json:"stopped_sequences"`
	FailedSequences    int64 `json:"failed_sequences"`

	ChatsInPipeline int64 `json:"chats_in_pipeline"`
	AutoSentLast7d  int64 `json:"auto_sent_last_7d"`
}

// GetStoreDashboard returns sequence and send statistics for one store.
func (dc *DashboardController) GetStoreDashboard(c *fiber.Ctx) error {
	storeID := c.Params("id")

	var stats DashboardStats
	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	err := dc.DB.Model(&models.ChatAutoSequence{}).
		Select("status, COUNT(*) AS count").
		Where("store_id = ?", storeID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		dc.Logger.Printf("Dashboard status query failed for store %s: %v", storeID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load dashboard", err)
	}
	for _, row := range rows {
		switch row.Status {
		case models.SequenceStatusActive:
			stats.ActiveSequences = row.Count
		case models.SequenceStatusCompleted:
			stats.CompletedSequences = row.Count
		case models.SequenceStatusStopped:
			stats.StoppedSequences = row.Count
		case models.SequenceStatusFailed:
			stats.FailedSequences = row.Count
		}
	}

	err = dc.DB.Model(&models.Chat{}).
		Where("store_id = ? AND tag = ? AND status != ?", storeID, models.ChatTagDeletionCandidate, models.ChatStatusClosed).
		Count(&stats.ChatsInPipeline).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load dashboard", err)
	}

	// Auto-sent step messages are identifiable by their id prefix.
	weekAgo := time.Now().UTC().Add(-7 * 24 * time.Hour)
	err = dc.DB.Model(&models.ChatMessage{}).
		Where("store_id = ? AND sender = ? AND id LIKE 'auto_%' AND timestamp >= ?", storeID, models.SenderSeller, weekAgo).
		Count(&stats.AutoSentLast7d).Error
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load dashboard", err)
	}

	return c.JSON(fiber.Map{
		"stats": stats,
	})
}
