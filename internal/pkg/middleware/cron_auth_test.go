package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCronAuthApp() *fiber.App {
	app := fiber.New()
	app.Post("/cron", CronAuthMiddleware(), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestCronAuthMiddleware(t *testing.T) {
	t.Setenv("CRON_SECRET", "sweep-me")
	app := newCronAuthApp()

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{name: "custom header", header: "X-Cron-Secret", value: "sweep-me", want: fiber.StatusOK},
		{name: "bearer token", header: "Authorization", value: "Bearer sweep-me", want: fiber.StatusOK},
		{name: "wrong secret", header: "X-Cron-Secret", value: "guess", want: fiber.StatusUnauthorized},
		{name: "wrong bearer", header: "Authorization", value: "Bearer guess", want: fiber.StatusUnauthorized},
		{name: "no credentials", want: fiber.StatusUnauthorized},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodPost, "/cron", nil)
		if tt.header != "" {
			req.Header.Set(tt.header, tt.value)
		}
		resp, err := app.Test(req)
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.want, resp.StatusCode, tt.name)
	}
}

func TestCronAuthMiddleware_MissingSecretConfig(t *testing.T) {
	t.Setenv("CRON_SECRET", "")
	app := newCronAuthApp()

	req := httptest.NewRequest(http.MethodPost, "/cron", nil)
	req.Header.Set("X-Cron-Secret", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
