package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/bananagen/backend/internal/middleware"
	"github.com/bananagen/backend/internal/model"
)

// GetBalance resolves (or creates) the user from the authenticated init
// payload and returns the current balance together with the referral summary
// the Mini App shows on its main screen.
func (h *Handler) GetBalance(c *fiber.Ctx) error {
	user, err := h.userService.GetOrCreateUser(c.Context(), middleware.InitData(c), "")
	if err != nil {
		log.Printf("balance: get-or-create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Нет данных пользователя"})
	}

	stats, err := h.referralSvc.GetReferralStats(c.Context(), user.TelegramUserID)
	if err != nil {
		log.Printf("balance: referral stats failed for %s: %v", user.TelegramUserID, err)
		stats = &model.ReferralStats{}
	}

	return c.JSON(fiber.Map{
		"balance":       user.Balance,
		"refCode":       user.RefCode,
		"referredCount": stats.ReferredCount,
		"termsAccepted": user.TermsAcceptedAt != nil,
	})
}

type balanceCheckRequest struct {
	ModelID string `json:"modelId"`
	Mode    string `json:"mode"`
	Count   int    `json:"count"`
}

// BalanceCheck is the advisory affordability endpoint: the Mini App calls it
// before starting a generation to warn the user about a shortfall up front.
func (h *Handler) BalanceCheck(c *fiber.Ctx) error {
	var req balanceCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат запроса"})
	}

	telegramUserID := authedUserID(c)

	modelID := req.ModelID
	if modelID == "" {
		modelID = h.billingSvc.ActiveModel()
	}
	mode := model.Mode(req.Mode)
	if mode == "" {
		mode = model.ModeGen
	}

	check, err := h.billingSvc.GetBalanceCheck(c.Context(), telegramUserID, modelID, mode, req.Count)
	if err != nil {
		log.Printf("balance: check failed for %s: %v", telegramUserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}

	return c.JSON(fiber.Map{
		"allowed":   check.Allowed,
		"balance":   check.Balance,
		"required":  check.Required,
		"shortfall": check.Shortfall,
	})
}

// GetTransactions pages through the user's ledger history.
func (h *Handler) GetTransactions(c *fiber.Ctx) error {
	telegramUserID := authedUserID(c)
	if telegramUserID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Нет данных пользователя"})
	}

	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	transactions, err := h.billingSvc.GetTransactions(c.Context(), telegramUserID, limit, offset)
	if err != nil {
		log.Printf("balance: transactions failed for %s: %v", telegramUserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}

	return c.JSON(fiber.Map{"transactions": transactions})
}

// AcceptTerms records the one-time terms acceptance timestamp.
func (h *Handler) AcceptTerms(c *fiber.Ctx) error {
	telegramUserID := authedUserID(c)
	if telegramUserID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Нет данных пользователя"})
	}

	if err := h.userService.AcceptTerms(c.Context(), telegramUserID); err != nil {
		log.Printf("balance: accept terms failed for %s: %v", telegramUserID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}

	return c.JSON(fiber.Map{"success": true})
}

// GetReferralInfo returns the share link and invited-friends count.
func (h *Handler) GetReferralInfo(c *fiber.Ctx) error {
	user, err := h.userService.GetOrCreateUser(c.Context(), middleware.InitData(c), "")
	if err != nil {
		log.Printf("referral: get-or-create failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}
	if user == nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Нет данных пользователя"})
	}

	stats, err := h.referralSvc.GetReferralStats(c.Context(), user.TelegramUserID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}

	resp := fiber.Map{
		"refCode":       user.RefCode,
		"referredCount": stats.ReferredCount,
		"referrerBonus": model.ReferrerBonus,
		"referredBonus": model.ReferredBonus,
	}
	if h.bot != nil {
		link, err := h.referralSvc.GetReferralLink(c.Context(), user.TelegramUserID, h.bot.GetBotUsername())
		if err == nil {
			resp["link"] = link
		}
	}

	return c.JSON(resp)
}
