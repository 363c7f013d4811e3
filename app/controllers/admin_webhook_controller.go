package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/hidemybrowser/billingd/internal/pkg/billing"
)

// AdminWebhookController gives operators read access to the event ledger and
// a way to force reprocessing of a failed event.
type AdminWebhookController struct {
	svc *billing.Service
}

func NewAdminWebhookController(svc *billing.Service) *AdminWebhookController {
	return &AdminWebhookController{svc: svc}
}

// HandleListWebhookEvents returns the newest ledger rows.
func (ac *AdminWebhookController) HandleListWebhookEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	events, err := ac.svc.RecentEvents(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list events"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"events": events, "count": len(events)})
}

// HandleResetWebhookEvent clears the processed flag so the next delivery or
// sweep reprocesses the event.
func (ac *AdminWebhookController) HandleResetWebhookEvent(c *fiber.Ctx) error {
	eventID := c.Params("event_id")
	if eventID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "event_id missing"})
	}

	if err := ac.svc.ResetEventForRetry(eventID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Unknown event"})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to reset event"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"reset": true, "event_id": eventID})
}
