package server

import (
	"orderbridge/internal/core/automation"
	"orderbridge/internal/health"
	"orderbridge/internal/telemetry"

	"github.com/gofiber/fiber/v2"
)

type Dependencies struct {
	Automation *automation.Service
	Logs       *telemetry.Log
	Health     *health.HealthHandler
}

func RegisterRoutes(app *fiber.App, d Dependencies) {
	app.Get("/v1/health", health.HealthLimiter(), d.Health.HandleHealth)

	api := app.Group("/v1")

	orders := automation.NewHandler(d.Automation, d.Logs)
	api.Post("/orders", orders.HandleCreate)
	api.Get("/orders/connection", orders.HandleConnection)
	api.Get("/orders/:id", orders.HandleGet)

	api.Get("/logs", orders.HandleLogs)
	api.Get("/logs/stats", orders.HandleLogStats)
	api.Delete("/logs", orders.HandleClearLogs)
}
