package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/edugraph/edugraph-api/internal/config"
	"github.com/edugraph/edugraph-api/internal/handler"
	"github.com/edugraph/edugraph-api/internal/middleware"
	"github.com/edugraph/edugraph-api/internal/models"
	"github.com/edugraph/edugraph-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	AssignmentHandler    *handler.AssignmentHandler
	FeedbackHandler      *handler.FeedbackHandler
	SubmissionHandler    *handler.SubmissionHandler
	GradingSchemeHandler *handler.GradingSchemeHandler
	JWTMiddleware        fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	staffOnly := middleware.RequireRole(models.RoleTeacher, models.RoleAdmin)

	if deps.AssignmentHandler != nil {
		assignments := api.Group("/assignments", jwtMiddleware, staffOnly)
		deps.AssignmentHandler.Register(assignments)
	}

	if deps.FeedbackHandler != nil {
		feedback := api.Group("/feedback", jwtMiddleware,
			middleware.RateLimit("feedback", cfg.SubmitRateLimit, time.Minute))
		deps.FeedbackHandler.Register(feedback)
	}

	if deps.SubmissionHandler != nil {
		submissions := api.Group("/submissions", jwtMiddleware)
		staffSubmissions := api.Group("/submissions", jwtMiddleware, staffOnly)
		deps.SubmissionHandler.Register(submissions, staffSubmissions)
	}

	if deps.GradingSchemeHandler != nil {
		schemes := api.Group("/grading-schemes", jwtMiddleware, staffOnly)
		deps.GradingSchemeHandler.Register(schemes)
	}
}
