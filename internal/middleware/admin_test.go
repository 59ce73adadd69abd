package middleware

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/bananagen/backend/internal/config"
)

func adminApp(token string) *fiber.App {
	cfg := &config.Config{}
	cfg.Admin.Token = token

	app := fiber.New()
	app.Use(AdminAuth(cfg))
	app.Get("/echo", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	return app
}

func TestAdminAuth(t *testing.T) {
	app := adminApp("secret")

	req := httptest.NewRequest("GET", "/echo", nil)
	req.Header.Set("X-Admin-Token", "secret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// query parameter form
	resp, err = app.Test(httptest.NewRequest("GET", "/echo?token=secret", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	// wrong token
	req = httptest.NewRequest("GET", "/echo", nil)
	req.Header.Set("X-Admin-Token", "wrong")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	// missing token
	resp, err = app.Test(httptest.NewRequest("GET", "/echo", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestAdminAuth_Unconfigured(t *testing.T) {
	app := adminApp("")

	req := httptest.NewRequest("GET", "/echo", nil)
	req.Header.Set("X-Admin-Token", "anything")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestWebhookAuth(t *testing.T) {
	app := fiber.New()
	app.Use(WebhookAuth("hook-secret"))
	app.Post("/echo", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})

	req := httptest.NewRequest("POST", "/echo", nil)
	req.Header.Set("X-Webhook-Secret", "hook-secret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	req = httptest.NewRequest("POST", "/echo", nil)
	req.Header.Set("X-Webhook-Secret", "nope")
	resp, err = app.Test(req)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
