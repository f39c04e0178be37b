package http

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// AuthMiddleware guards the API with the operator password presented as a
// bearer credential. The compare is constant-time.
func AuthMiddleware(password string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if password == "" {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "server password is not configured",
			})
		}

		header := c.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing or invalid authorization header",
			})
		}

		provided := strings.TrimSpace(strings.TrimPrefix(header, prefix))
		if subtle.ConstantTimeCompare([]byte(provided), []byte(password)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid password",
			})
		}

		return c.Next()
	}
}

type AuthRequest struct {
	Password string `json:"password"`
}

// AuthHandler validates the dashboard password.
func AuthHandler(password string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req AuthRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
		if subtle.ConstantTimeCompare([]byte(req.Password), []byte(password)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid password",
			})
		}
		return c.JSON(fiber.Map{"status": "success"})
	}
}
