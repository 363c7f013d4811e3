package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/hidemybrowser/billingd/internal/pkg/billing"
	"github.com/hidemybrowser/billingd/internal/pkg/env"
)

// Header names of the provider's signed-delivery scheme.
const (
	HeaderWebhookID        = "webhook-id"
	HeaderWebhookTimestamp = "webhook-timestamp"
	HeaderWebhookSignature = "webhook-signature"
)

// WebhookController handles inbound DodoPayments webhook deliveries. The
// route is public; authenticity comes from the signature check, never from
// session state.
type WebhookController struct {
	svc    *billing.Service
	secret func() string
}

// NewWebhookController wires the webhook endpoint to a service and a signing
// secret source.
func NewWebhookController(svc *billing.Service, secret func() string) *WebhookController {
	if secret == nil {
		secret = func() string { return env.GetEnv("DODO_WEBHOOK_SECRET", "") }
	}
	return &WebhookController{svc: svc, secret: secret}
}

// HandleDodoWebhook ingests one signed provider event: verify, record,
// idempotency check, dispatch. A handler failure answers 500 so the provider
// redelivers, after the failure is parked on the ledger and retry queue.
func (wc *WebhookController) HandleDodoWebhook(c *fiber.Ctx) error {
	// The signature covers the exact bytes on the wire; never re-serialize
	// before verification.
	rawBody := append([]byte(nil), c.BodyRaw()...)
	webhookID := c.Get(HeaderWebhookID)
	timestamp := c.Get(HeaderWebhookTimestamp)
	signature := c.Get(HeaderWebhookSignature)

	if err := billing.VerifyWebhookSignature(rawBody, webhookID, timestamp, signature, wc.secret()); err != nil {
		switch {
		case errors.Is(err, billing.ErrMissingHeaders):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Missing webhook headers"})
		case errors.Is(err, billing.ErrMissingSecret):
			log.Error("[Webhook] signing secret is not configured")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Webhook secret not configured"})
		default:
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid signature"})
		}
	}

	event, err := billing.ParseEventEnvelope(rawBody, webhookID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid payload"})
	}

	stored, err := wc.svc.RecordWebhookEvent(event.EventID, event.Type, rawBody)
	if err != nil {
		log.Errorf("[Webhook] failed to record event %s: %v", event.EventID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to record event"})
	}
	if stored.Processed {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "skipped": "already_processed"})
	}

	if procErr := wc.svc.ProcessEvent(event); procErr != nil {
		log.Errorf("[Webhook] processing failed for event %s (%s): %v", event.EventID, event.Type, procErr)
		if err := wc.svc.MarkEventFailed(event.EventID, procErr); err != nil {
			log.Errorf("[Webhook] could not record failure for event %s: %v", event.EventID, err)
		}
		if _, err := wc.svc.ScheduleRetry(event.EventID, procErr.Error()); err != nil {
			log.Errorf("[Webhook] could not schedule retry for event %s: %v", event.EventID, err)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Event processing failed",
			"details": procErr.Error(),
		})
	}

	if err := wc.svc.MarkEventProcessed(event.EventID); err != nil {
		// The handler side effects are idempotent, so letting the provider
		// redeliver is safe and keeps the ledger truthful.
		log.Errorf("[Webhook] could not mark event %s processed: %v", event.EventID, err)
		if _, retryErr := wc.svc.ScheduleRetry(event.EventID, err.Error()); retryErr != nil {
			log.Errorf("[Webhook] could not schedule retry for event %s: %v", event.EventID, retryErr)
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Event processing failed",
			"details": err.Error(),
		})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
