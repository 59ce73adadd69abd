package handler

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/bananagen/backend/internal/ai"
	"github.com/bananagen/backend/internal/config"
	"github.com/bananagen/backend/internal/middleware"
	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/repository/memory"
	"github.com/bananagen/backend/internal/service"
)

const testAdminToken = "admin-secret"

func newHandler(store *memory.Store, cfg *config.Config) *Handler {
	userService := service.NewUserService(store)
	billingSvc := service.NewBillingService(store, model.DefaultModelID)
	referralSvc := service.NewReferralService(store)
	paymentSvc := service.NewPaymentService(store)
	adminSvc := service.NewAdminService(store)

	return New(cfg, userService, billingSvc, referralSvc, paymentSvc, adminSvc, ai.New(cfg.OpenRouter), nil)
}

// setupApp registers routes the way cmd/server does: admin routes behind the
// admin token, the rest of /api behind TelegramAuth.
func setupApp(t *testing.T) (*fiber.App, *memory.Store) {
	t.Helper()

	store := memory.New()
	cfg := &config.Config{}
	cfg.Admin.Token = testAdminToken

	h := newHandler(store, cfg)

	app := fiber.New()
	app.Get("/health", h.Health)
	app.Post("/webhook/payment", h.PaymentWebhook)
	app.Get("/api/settings", h.GetSettings)

	admin := app.Group("/api/admin", middleware.AdminAuth(cfg))
	admin.Get("/users", h.AdminListUsers)
	admin.Post("/balance", h.AdminSetBalance)
	admin.Post("/settings", h.UpdateSettings)

	api := app.Group("/api", middleware.TelegramAuth(cfg))
	api.Post("/balance", h.GetBalance)
	api.Post("/balance/check", h.BalanceCheck)
	api.Post("/payment/init", h.InitTopUp)
	api.Post("/terms/accept", h.AcceptTerms)

	return app, store
}

func doRequest(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	return doRequest(t, app, method, path, body, nil)
}

func doAdmin(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	return doRequest(t, app, method, path, body, map[string]string{"X-Admin-Token": testAdminToken})
}

func testInitData(t *testing.T, id string) string {
	t.Helper()
	return "user=%7B%22id%22%3A" + id + "%2C%22first_name%22%3A%22Test%22%7D"
}

// signedInitData builds a payload carrying the Telegram WebApp HMAC for the
// given user id.
func signedInitData(t *testing.T, botToken string, id int64) string {
	t.Helper()

	values := url.Values{}
	values.Set("user", fmt.Sprintf(`{"id":%d,"first_name":"Test"}`, id))
	values.Set("auth_date", strconv.FormatInt(time.Now().Unix(), 10))

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+"="+values.Get(key))
	}

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	mac := hmac.New(sha256.New, secret.Sum(nil))
	mac.Write([]byte(strings.Join(parts, "\n")))
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))

	return values.Encode()
}

func TestHealth(t *testing.T) {
	app, _ := setupApp(t)

	resp, body := doJSON(t, app, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["ok"])
	require.Equal(t, "missing", body["openrouter"])
}

func TestGetBalance_CreatesUser(t *testing.T) {
	app, store := setupApp(t)

	resp, body := doJSON(t, app, "POST", "/api/balance",
		map[string]string{"initData": testInitData(t, "123")})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, model.InitialBalance, body["balance"])
	require.NotEmpty(t, body["refCode"])

	user, err := store.GetUserByTelegramID(context.Background(), "123")
	require.NoError(t, err)
	require.Equal(t, model.InitialBalance, user.Balance)
}

func TestGetBalance_NoIdentity(t *testing.T) {
	app, _ := setupApp(t)

	resp, _ := doJSON(t, app, "POST", "/api/balance", map[string]string{"initData": ""})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

// With a bot token configured, the identity a handler acts as comes from the
// signed payload the middleware validated. A body field naming a different
// account must neither read nor touch it, and an unsigned payload is
// rejected outright.
func TestGetBalance_SignedPayloadDecidesIdentity(t *testing.T) {
	store := memory.New()
	cfg := &config.Config{}
	cfg.Telegram.BotToken = "12345:test-token"

	h := newHandler(store, cfg)
	app := fiber.New()
	api := app.Group("/api", middleware.TelegramAuth(cfg))
	api.Post("/balance", h.GetBalance)

	require.NoError(t, store.CreateUser(context.Background(), &model.User{
		TelegramUserID: "123",
		ChatID:         "123",
		Balance:        999,
		RefCode:        "NBTARGET",
	}))

	resp, body := doRequest(t, app, "POST", "/api/balance",
		map[string]string{"initData": testInitData(t, "123")},
		map[string]string{"X-Telegram-Init-Data": signedInitData(t, cfg.Telegram.BotToken, 666)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, model.InitialBalance, body["balance"])
	require.NotEqual(t, "NBTARGET", body["refCode"])

	// unsigned payload in the body only
	resp, _ = doJSON(t, app, "POST", "/api/balance",
		map[string]string{"initData": testInitData(t, "123")})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	balance, err := store.GetBalance(context.Background(), "123")
	require.NoError(t, err)
	require.Equal(t, 999, balance)
}

func TestBalanceCheckEndpoint(t *testing.T) {
	app, _ := setupApp(t)

	// establish the user with the initial grant
	_, _ = doJSON(t, app, "POST", "/api/balance",
		map[string]string{"initData": testInitData(t, "123")})

	resp, body := doJSON(t, app, "POST", "/api/balance/check", map[string]interface{}{
		"initData": testInitData(t, "123"),
		"mode":     "product",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, false, body["allowed"])
	require.EqualValues(t, 50, body["required"])
	require.EqualValues(t, 20, body["shortfall"])
}

func TestAcceptTermsEndpoint(t *testing.T) {
	app, store := setupApp(t)

	_, _ = doJSON(t, app, "POST", "/api/balance",
		map[string]string{"initData": testInitData(t, "123")})

	resp, _ := doJSON(t, app, "POST", "/api/terms/accept",
		map[string]string{"initData": testInitData(t, "123")})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	user, err := store.GetUserByTelegramID(context.Background(), "123")
	require.NoError(t, err)
	require.NotNil(t, user.TermsAcceptedAt)
}

func TestTopUpFlow(t *testing.T) {
	app, store := setupApp(t)

	_, _ = doJSON(t, app, "POST", "/api/balance",
		map[string]string{"initData": testInitData(t, "123")})

	resp, body := doJSON(t, app, "POST", "/api/payment/init", map[string]interface{}{
		"initData": testInitData(t, "123"),
		"amount":   200,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	paymentID, _ := body["paymentId"].(string)
	require.NotEmpty(t, paymentID)

	// provider confirms
	resp, body = doJSON(t, app, "POST", "/webhook/payment",
		map[string]string{"paymentId": paymentID, "status": "succeeded"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, model.InitialBalance+200, body["balance"])

	// replayed webhook does not double-credit
	resp, body = doJSON(t, app, "POST", "/webhook/payment",
		map[string]string{"paymentId": paymentID, "status": "succeeded"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["alreadyProcessed"])

	balance, err := store.GetBalance(context.Background(), "123")
	require.NoError(t, err)
	require.Equal(t, model.InitialBalance+200, balance)
}

func TestTopUp_AmountOutOfRange(t *testing.T) {
	app, _ := setupApp(t)

	resp, _ := doJSON(t, app, "POST", "/api/payment/init", map[string]interface{}{
		"initData": testInitData(t, "123"),
		"amount":   50,
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSettingsEndpoints(t *testing.T) {
	app, _ := setupApp(t)

	resp, body := doJSON(t, app, "GET", "/api/settings", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, model.DefaultModelID, body["modelId"])

	resp, _ = doAdmin(t, app, "POST", "/api/admin/settings",
		map[string]string{"modelId": "google/gemini-3-pro-image-preview"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	_, body = doJSON(t, app, "GET", "/api/settings", nil)
	require.Equal(t, "google/gemini-3-pro-image-preview", body["modelId"])

	resp, _ = doAdmin(t, app, "POST", "/api/admin/settings",
		map[string]string{"modelId": "nope/model"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminEndpoints(t *testing.T) {
	app, store := setupApp(t)

	_, _ = doJSON(t, app, "POST", "/api/balance",
		map[string]string{"initData": testInitData(t, "123")})

	resp, body := doAdmin(t, app, "GET", "/api/admin/users", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 1, body["count"])

	resp, _ = doAdmin(t, app, "POST", "/api/admin/balance",
		map[string]interface{}{"telegramUserId": "123", "balance": 999})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	balance, err := store.GetBalance(context.Background(), "123")
	require.NoError(t, err)
	require.Equal(t, 999, balance)

	resp, _ = doAdmin(t, app, "POST", "/api/admin/balance",
		map[string]interface{}{"telegramUserId": "nope", "balance": 1})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	// admin routes never require a telegram payload, only the token
	resp, _ = doJSON(t, app, "GET", "/api/admin/users", nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
