package routes

import (
	"log"
	"os"

	controller "sellerdesk/controllers"
	"sellerdesk/middleware"
	"sellerdesk/utils"
	"sellerdesk/worker"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"gorm.io/gorm"
)

// SetupRoutes wires the follow-up engine's operator API.
func SetupRoutes(app *fiber.App, db *gorm.DB, sequences *utils.SequenceStore, templates *utils.TemplateProvider, w *worker.SequenceWorker) {
	sequenceLogger := log.New(os.Stdout, "SEQUENCE: ", log.Ldate|log.Ltime|log.Lshortfile)

	selector := utils.NewCandidateSelector(db)
	sequenceController := controller.NewSequenceController(db, sequenceLogger, selector, sequences, templates, w)
	dashboardController := controller.NewDashboardController(db, sequenceLogger)

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	stores := api.Group("/stores")
	stores.Get("/:id/candidates", sequenceController.ListCandidates)
	stores.Get("/:id/preview", sequenceController.PreviewDueWork)
	stores.Get("/:id/runs", sequenceController.GetRunStats)
	stores.Get("/:id/dashboard", dashboardController.GetStoreDashboard)

	seqGroup := api.Group("/sequences")
	seqGroup.Post("/", middleware.CreateSequenceRateLimiter(), sequenceController.CreateSequence)
	seqGroup.Post("/:id/cancel", sequenceController.CancelSequence)

	sequenceLogger.Println("Sequence routes initialized successfully")
}
