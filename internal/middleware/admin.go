package middleware

import (
	"crypto/subtle"

	"github.com/gofiber/fiber/v2"

	"github.com/bananagen/backend/internal/config"
)

// AdminAuth guards the admin endpoints with a shared token passed in the
// X-Admin-Token header or the token query parameter. With no token
// configured the admin surface is disabled entirely.
func AdminAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if cfg.Admin.Token == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "ADMIN_TOKEN не задан",
			})
		}

		token := c.Get("X-Admin-Token")
		if token == "" {
			token = c.Query("token")
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(cfg.Admin.Token)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Недостаточно прав",
			})
		}

		return c.Next()
	}
}

// WebhookAuth guards provider callbacks with a shared secret header.
func WebhookAuth(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if secret == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "webhook secret not configured",
			})
		}

		token := c.Get("X-Webhook-Secret")
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "invalid webhook secret",
			})
		}

		return c.Next()
	}
}
