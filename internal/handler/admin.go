package handler

import (
	"log"

	"github.com/gofiber/fiber/v2"
)

// AdminListUsers dumps all users with their referral counts.
func (h *Handler) AdminListUsers(c *fiber.Ctx) error {
	users, err := h.adminSvc.ListUsers(c.Context())
	if err != nil {
		log.Printf("admin: list users failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}
	return c.JSON(fiber.Map{"users": users, "count": len(users)})
}

type adminBalanceRequest struct {
	TelegramUserID string `json:"telegramUserId"`
	Balance        *int   `json:"balance"`
	Delta          *int   `json:"delta"`
}

// AdminSetBalance overwrites a user's balance; with "delta" instead of
// "balance" it applies a signed correction.
func (h *Handler) AdminSetBalance(c *fiber.Ctx) error {
	var req adminBalanceRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат запроса"})
	}
	if req.TelegramUserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Нужен telegramUserId"})
	}

	switch {
	case req.Balance != nil:
		ok, err := h.adminSvc.SetUserBalance(c.Context(), req.TelegramUserID, *req.Balance)
		if err != nil {
			log.Printf("admin: set balance failed for %s: %v", req.TelegramUserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
		}
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Пользователь не найден"})
		}
		return c.JSON(fiber.Map{"success": true, "balance": *req.Balance})

	case req.Delta != nil:
		user, err := h.adminSvc.AdjustUserBalance(c.Context(), req.TelegramUserID, *req.Delta)
		if err != nil {
			log.Printf("admin: adjust balance failed for %s: %v", req.TelegramUserID, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
		}
		if user == nil {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Пользователь не найден"})
		}
		return c.JSON(fiber.Map{"success": true, "balance": user.Balance})

	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Нужен balance или delta"})
	}
}

// AdminDeleteUser removes a user by telegram id or by username.
func (h *Handler) AdminDeleteUser(c *fiber.Ctx) error {
	telegramUserID := c.Query("telegramUserId")
	username := c.Query("username")

	var (
		deleted bool
		err     error
	)
	switch {
	case telegramUserID != "":
		deleted, err = h.adminSvc.DeleteUserByTelegramID(c.Context(), telegramUserID)
	case username != "":
		deleted, err = h.adminSvc.DeleteUserByUsername(c.Context(), username)
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Нужен telegramUserId или username"})
	}
	if err != nil {
		log.Printf("admin: delete user failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}
	if !deleted {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Пользователь не найден"})
	}
	return c.JSON(fiber.Map{"success": true})
}

type adminPurgeRequest struct {
	Keep []string `json:"keep"`
}

// AdminPurgeUsers deletes every user except the listed telegram ids.
func (h *Handler) AdminPurgeUsers(c *fiber.Ctx) error {
	var req adminPurgeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат запроса"})
	}

	deleted, err := h.adminSvc.DeleteAllUsersExcept(c.Context(), req.Keep)
	if err != nil {
		log.Printf("admin: purge failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сервера"})
	}
	return c.JSON(fiber.Map{"success": true, "deleted": deleted})
}
