package middleware

import (
	"crypto/subtle"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/hidemybrowser/billingd/internal/pkg/env"
)

// CronAuthMiddleware authenticates the external scheduler (and operators)
// calling the sweep/admin endpoints with a shared secret.
func CronAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := env.GetEnv("CRON_SECRET", "")
		if secret == "" {
			log.Print("cron auth middleware: CRON_SECRET not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Cron secret not configured"})
		}

		provided := extractCronSecretFromHeader(c)
		if provided == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing cron secret"})
		}
		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid cron secret"})
		}

		return c.Next()
	}
}

func extractCronSecretFromHeader(c *fiber.Ctx) string {
	if v := strings.TrimSpace(c.Get("X-Cron-Secret")); v != "" {
		return v
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
