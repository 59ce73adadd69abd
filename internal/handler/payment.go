package handler

import (
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/repository"
	"github.com/bananagen/backend/internal/service"
)

type topUpRequest struct {
	Amount int    `json:"amount"`
	Method string `json:"method"`
}

// InitTopUp registers a pending top-up and hands its id back to the Mini App,
// which forwards the user to the payment provider.
func (h *Handler) InitTopUp(c *fiber.Ctx) error {
	var req topUpRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат запроса"})
	}

	telegramUserID := authedUserID(c)
	if telegramUserID == "" {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Нет данных пользователя"})
	}

	method := model.PaymentMethod(req.Method)
	if method == "" {
		method = model.PaymentMethodExternal
	}

	payment, err := h.paymentSvc.InitTopUp(c.Context(), telegramUserID, req.Amount, method)
	if err != nil {
		if errors.Is(err, service.ErrAmountOutOfRange) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Сумма должна быть от 100 до 50000 кредитов",
			})
		}
		log.Printf("payment: init top-up failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}

	return c.JSON(fiber.Map{
		"paymentId": payment.ID,
		"amount":    payment.Amount,
		"status":    payment.Status,
	})
}

type paymentWebhookRequest struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
}

// PaymentWebhook is the provider callback. It credits the balance exactly
// once; replayed deliveries answer 200 so the provider stops retrying.
func (h *Handler) PaymentWebhook(c *fiber.Ctx) error {
	var req paymentWebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат запроса"})
	}

	paymentID, err := uuid.Parse(req.PaymentID)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный paymentId"})
	}

	if req.Status != "" && req.Status != "succeeded" {
		return c.JSON(fiber.Map{"ok": true, "ignored": true})
	}

	user, err := h.paymentSvc.CompleteTopUp(c.Context(), paymentID)
	if err != nil {
		if errors.Is(err, service.ErrPaymentProcessed) {
			return c.JSON(fiber.Map{"ok": true, "alreadyProcessed": true})
		}
		if errors.Is(err, repository.ErrPaymentNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Платёж не найден"})
		}
		log.Printf("payment: webhook for %s failed: %v", paymentID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}

	if h.bot != nil && user != nil && user.ChatID != "" {
		h.bot.SendText(user.ChatID, "✅ Баланс пополнен! Текущий баланс: "+strconv.Itoa(user.Balance)+" кредитов")
	}

	return c.JSON(fiber.Map{"ok": true, "balance": user.Balance})
}
