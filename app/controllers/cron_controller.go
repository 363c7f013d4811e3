package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/hidemybrowser/billingd/internal/pkg/billing"
)

// CronController exposes the periodic sweeps to the external scheduler. Route
// registration puts these behind the cron-secret middleware.
type CronController struct {
	svc *billing.Service
}

func NewCronController(svc *billing.Service) *CronController {
	return &CronController{svc: svc}
}

// HandleRetrySweep drains due retry-queue items in one bounded batch.
func (cc *CronController) HandleRetrySweep(c *fiber.Ctx) error {
	runID := uuid.NewString()
	log.Infof("[Cron] retry sweep %s starting", runID)

	result, err := cc.svc.SweepRetryQueue(time.Now())
	if err != nil {
		log.Errorf("[Cron] retry sweep %s failed: %v", runID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Retry sweep failed", "run_id": runID})
	}

	log.Infof("[Cron] retry sweep %s done: scanned=%d cleaned=%d rescheduled=%d exhausted=%d errors=%d",
		runID, result.Scanned, result.Cleaned, result.Rescheduled, result.Exhausted, result.Errors)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"run_id": runID, "result": result})
}

// HandleGraceSweep enforces the payment grace-period policy.
func (cc *CronController) HandleGraceSweep(c *fiber.Ctx) error {
	runID := uuid.NewString()
	log.Infof("[Cron] grace sweep %s starting", runID)

	result, err := cc.svc.SweepPaymentRetries(time.Now())
	if err != nil {
		log.Errorf("[Cron] grace sweep %s failed: %v", runID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Grace sweep failed", "run_id": runID})
	}

	log.Infof("[Cron] grace sweep %s done: scanned=%d rescheduled=%d suspended=%d errors=%d",
		runID, result.Scanned, result.Rescheduled, result.Suspended, result.Errors)
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"run_id": runID, "result": result})
}
