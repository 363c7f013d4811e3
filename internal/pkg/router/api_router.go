package router

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/hidemybrowser/billingd/app/controllers"
	"github.com/hidemybrowser/billingd/internal/pkg/billing"
	"github.com/hidemybrowser/billingd/internal/pkg/cache"
	"github.com/hidemybrowser/billingd/internal/pkg/database"
	"github.com/hidemybrowser/billingd/internal/pkg/middleware"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	svc := billing.NewServiceFromDB(database.GetDB(), cache.NewAccessStatusCache())

	v1 := api.Group("/v1")

	// Public, signature-authenticated.
	webhooks := controllers.NewWebhookController(svc, nil)
	v1.Post("/webhooks/dodo", webhooks.HandleDodoWebhook)

	// Scheduler- and operator-facing, shared-secret authenticated.
	cron := v1.Group("/cron", middleware.CronAuthMiddleware())
	cronCtrl := controllers.NewCronController(svc)
	cron.Post("/retry-sweep", cronCtrl.HandleRetrySweep)
	cron.Post("/grace-sweep", cronCtrl.HandleGraceSweep)

	admin := v1.Group("/admin", middleware.CronAuthMiddleware())
	adminCtrl := controllers.NewAdminWebhookController(svc)
	admin.Get("/webhook-events", adminCtrl.HandleListWebhookEvents)
	admin.Post("/webhook-events/:event_id/reset", adminCtrl.HandleResetWebhookEvent)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
