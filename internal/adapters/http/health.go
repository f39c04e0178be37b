package http

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Pinger reports whether the container engine is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports component availability for the dashboard.
func HealthHandler(engine Pinger, catalogConfigured bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		dockerOK := true
		var dockerErr string
		if err := engine.Ping(c.Context()); err != nil {
			dockerOK = false
			dockerErr = err.Error()
		}

		body := fiber.Map{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
			"docker": fiber.Map{
				"available": dockerOK,
			},
			"catalog_configured": catalogConfigured,
		}
		if dockerErr != "" {
			body["docker"] = fiber.Map{"available": false, "error": dockerErr}
		}
		return c.JSON(body)
	}
}
