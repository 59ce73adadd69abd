package handler

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/bananagen/backend/internal/ai"
	"github.com/bananagen/backend/internal/config"
	"github.com/bananagen/backend/internal/middleware"
	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/service"
	"github.com/bananagen/backend/internal/telegram"
)

type Handler struct {
	cfg         *config.Config
	userService *service.UserService
	billingSvc  *service.BillingService
	referralSvc *service.ReferralService
	paymentSvc  *service.PaymentService
	adminSvc    *service.AdminService
	aiClient    *ai.Client
	bot         *telegram.Bot
}

func New(
	cfg *config.Config,
	userService *service.UserService,
	billingSvc *service.BillingService,
	referralSvc *service.ReferralService,
	paymentSvc *service.PaymentService,
	adminSvc *service.AdminService,
	aiClient *ai.Client,
	bot *telegram.Bot,
) *Handler {
	return &Handler{
		cfg:         cfg,
		userService: userService,
		billingSvc:  billingSvc,
		referralSvc: referralSvc,
		paymentSvc:  paymentSvc,
		adminSvc:    adminSvc,
		aiClient:    aiClient,
		bot:         bot,
	}
}

// authedUserID extracts the caller's telegram user id from the init payload
// validated by middleware.TelegramAuth. Request bodies are never consulted:
// whoever signed the payload is who the handler acts as. Empty when the
// payload carries no identity.
func authedUserID(c *fiber.Ctx) string {
	tgUser, _ := service.ParseInitData(middleware.InitData(c))
	if tgUser == nil {
		return ""
	}
	return strconv.FormatInt(tgUser.ID, 10)
}

func (h *Handler) Health(c *fiber.Ctx) error {
	openrouter := "missing"
	if h.aiClient.Configured() {
		openrouter = "ok"
	}
	telegramStatus := "missing"
	if h.cfg.Telegram.BotToken != "" {
		telegramStatus = "ok"
	}

	return c.JSON(fiber.Map{
		"ok":         true,
		"openrouter": openrouter,
		"telegram":   telegramStatus,
	})
}

// GetSettings reports the active generation model and what else is available.
func (h *Handler) GetSettings(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"modelId":         h.billingSvc.ActiveModel(),
		"availableModels": model.AvailableModels(),
	})
}

type updateSettingsRequest struct {
	ModelID string `json:"modelId"`
}

func (h *Handler) UpdateSettings(c *fiber.Ctx) error {
	var req updateSettingsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Неверный формат запроса",
		})
	}

	if err := h.billingSvc.SetActiveModel(req.ModelID); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Недопустимая модель",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"modelId": req.ModelID,
	})
}
