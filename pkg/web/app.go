package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

// NewApp assembles the management API application.
func NewApp(handlers *APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Parley API")
	})

	app.Get("/health", handlers.HealthCheck)
	app.Get("/workflows", handlers.GetWorkflows)

	s := app.Group("/sessions")
	s.Post("/", handlers.CreateSession)
	s.Get("/stats", handlers.GetSessionStats)
	s.Delete("/:id", handlers.DeleteSession)

	return app
}
