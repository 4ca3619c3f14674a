package controller

import (
	"errors"
	"log"

	"sellerdesk/models"
	"sellerdesk/utils"
	"sellerdesk/worker"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// SequenceController exposes the follow-up engine's operator surface:
// candidate listing, sequence creation, the read-only dry run, cancellation
// and run statistics.
type SequenceController struct {
	DB        *gorm.DB
	Logger    *log.Logger
	Selector  *utils.CandidateSelector
	Sequences *utils.SequenceStore
	Templates *utils.TemplateProvider
	Worker    *worker.SequenceWorker
}

func NewSequenceController(db *gorm.DB, logger *log.Logger, selector *utils.CandidateSelector, sequences *utils.SequenceStore, templates *utils.TemplateProvider, w *worker.SequenceWorker) *SequenceController {
	return &SequenceController{
		DB:        db,
		Logger:    logger,
		Selector:  selector,
		Sequences: sequences,
		Templates: templates,
		Worker:    w,
	}
}

// ListCandidates returns chats eligible to start a sequence for a store.
func (sc *SequenceController) ListCandidates(c *fiber.Ctx) error {
	storeID := c.Params("id")
	limit := c.QueryInt("limit", 50)
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	phrase := sc.Templates.TriggerPhrase()
	candidates, err := sc.Selector.ListCandidates(storeID, phrase, limit)
	if err != nil {
		sc.Logger.Printf("Candidate query failed for store %s: %v", storeID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list candidates", err)
	}

	return c.JSON(fiber.Map{
		"candidates": candidates,
		"count":      len(candidates),
	})
}

// CreateSequenceRequest is the createSequence payload.
type CreateSequenceRequest struct {
	ChatID       string `json:"chat_id" validate:"required"`
	SequenceType string `json:"sequence_type" validate:"required,oneof=no_reply_followup four_star_followup"`
}

// CreateSequence starts a campaign for a chat. A duplicate create resolves to
// the existing active sequence, never an error.
func (sc *SequenceController) CreateSequence(c *fiber.Ctx) error {
	var req CreateSequenceRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", err)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", err)
	}

	var chat models.Chat
	if err := sc.DB.First(&chat, "id = ?", req.ChatID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Chat not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load chat", err)
	}
	if chat.Status == models.ChatStatusClosed {
		return utils.ErrorResponse(c, fiber.StatusConflict, "Chat is closed", nil)
	}

	steps, err := sc.Templates.TemplateSet(req.SequenceType)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusBadRequest, "Unknown sequence type", err)
	}

	seq, created, err := sc.Sequences.Create(&chat, req.SequenceType, steps)
	if err != nil {
		sc.Logger.Printf("Sequence create failed for chat %s: %v", chat.ID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to create sequence", err)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(fiber.Map{
		"sequence": seq,
		"created":  created,
	})
}

// PreviewDueWork runs the dry run for a store: the decision each active
// sequence would get right now, with no side effects.
func (sc *SequenceController) PreviewDueWork(c *fiber.Ctx) error {
	storeID := c.Params("id")

	items, err := sc.Worker.Preview(storeID)
	if err != nil {
		sc.Logger.Printf("Preview failed for store %s: %v", storeID, err)
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to preview due work", err)
	}

	counts := map[string]int{}
	for _, item := range items {
		counts[item.Action]++
	}
	return c.JSON(fiber.Map{
		"items":  items,
		"counts": counts,
	})
}

// CancelSequence stops a sequence on operator request. Idempotent: cancelling
// a finished sequence reports the current state instead of failing.
func (sc *SequenceController) CancelSequence(c *fiber.Ctx) error {
	id := c.Params("id")

	seq, err := sc.Sequences.Get(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ErrorResponse(c, fiber.StatusNotFound, "Sequence not found", nil)
		}
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load sequence", err)
	}

	if err := sc.Sequences.Stop(id, models.StopReasonOperator); err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to cancel sequence", err)
	}

	seq, err = sc.Sequences.Get(id)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to reload sequence", err)
	}
	return c.JSON(fiber.Map{
		"sequence": seq,
	})
}

// GetRunStats returns recent sweep summaries for a store.
func (sc *SequenceController) GetRunStats(c *fiber.Ctx) error {
	storeID := c.Params("id")
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 200 {
		limit = 20
	}

	runs, err := sc.Sequences.RecentRuns(storeID, limit)
	if err != nil {
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to load run stats", err)
	}
	return c.JSON(fiber.Map{
		"runs":  runs,
		"count": len(runs),
	})
}
