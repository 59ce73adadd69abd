package handler

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/gofiber/fiber/v2"

	"github.com/bananagen/backend/internal/ai"
	"github.com/bananagen/backend/internal/middleware"
	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/service"
)

type generateRequest struct {
	Prompt            string `json:"prompt"`
	ImageBase64       string `json:"imageBase64"`
	Count             int    `json:"count"`
	RefImageBase64    string `json:"refImageBase64"`
	TargetImageBase64 string `json:"targetImageBase64"`
}

// Generate handles the single-image mode.
func (h *Handler) Generate(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат запроса"})
	}
	return h.runSingleGeneration(c, req, model.ModeGen)
}

// GenerateRefPair handles the reference-pair mode: a style reference plus an
// optional target image.
func (h *Handler) GenerateRefPair(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат запроса"})
	}
	if req.Prompt == "" || req.RefImageBase64 == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Нужны текстовый запрос и минимум одно изображение (референс)",
		})
	}

	if !h.aiClient.Configured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Не настроен OPENROUTER_API_KEY"})
	}

	user := h.resolveUser(c)
	if handled := h.denyIfUnaffordable(c, user, model.ModeRef, 1); handled {
		return nil
	}

	modelID := h.billingSvc.ActiveModel()
	ctx, cancel := context.WithTimeout(c.Context(), ai.RequestTimeout)
	defer cancel()

	imageURL, err := h.aiClient.GenerateRefPair(ctx, modelID, req.Prompt, req.RefImageBase64, req.TargetImageBase64)
	if err != nil {
		return h.generationFailed(c, user, "Ошибка генерации по референсу", err)
	}

	sentToChat := h.deliverPhoto(user, imageURL, req.Prompt)
	h.charge(c, user, modelID, model.ModeRef, 1)

	return c.JSON(fiber.Map{"imageUrl": imageURL, "sentToChat": sentToChat})
}

// GenerateProduct fans out five parallel product-shot generations and
// delivers whatever subset succeeded.
func (h *Handler) GenerateProduct(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат запроса"})
	}
	return h.runBatchGeneration(c, req, model.ModeProduct, model.ProductImageCount)
}

// GeneratePoses fans out a caller-chosen number of pose generations, clamped
// to [1, 10].
func (h *Handler) GeneratePoses(c *fiber.Ctx) error {
	var req generateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат запроса"})
	}
	return h.runBatchGeneration(c, req, model.ModePoses, model.ClampPosesCount(req.Count))
}

// GenerateUpload, ProductUpload and PosesUpload are the multipart variants:
// the uploaded file is converted to a base64 data URL and the request is
// funnelled into the JSON flow.
func (h *Handler) GenerateUpload(c *fiber.Ctx) error {
	req, err := h.uploadToRequest(c, true)
	if req == nil {
		return err
	}
	return h.runSingleGeneration(c, *req, model.ModeGen)
}

func (h *Handler) ProductUpload(c *fiber.Ctx) error {
	req, err := h.uploadToRequest(c, true)
	if req == nil {
		return err
	}
	return h.runBatchGeneration(c, *req, model.ModeProduct, model.ProductImageCount)
}

func (h *Handler) PosesUpload(c *fiber.Ctx) error {
	req, err := h.uploadToRequest(c, false)
	if req == nil {
		return err
	}
	return h.runBatchGeneration(c, *req, model.ModePoses, model.ClampPosesCount(req.Count))
}

func (h *Handler) uploadToRequest(c *fiber.Ctx, promptRequired bool) (*generateRequest, error) {
	prompt := c.FormValue("prompt")
	file, err := c.FormFile("image")
	if err != nil || (promptRequired && prompt == "") {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Нужны prompt и image"})
	}

	src, err := file.Open()
	if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка загрузки"})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка загрузки"})
	}

	mime := file.Header.Get("Content-Type")
	if mime == "" {
		mime = "image/jpeg"
	}

	count := 0
	fmt.Sscanf(c.FormValue("count"), "%d", &count)

	return &generateRequest{
		Prompt:      prompt,
		ImageBase64: fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data)),
		Count:       count,
	}, nil
}

func (h *Handler) runSingleGeneration(c *fiber.Ctx, req generateRequest, mode model.Mode) error {
	if req.Prompt == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Нужен текстовый prompt"})
	}
	if !h.aiClient.Configured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Не настроен OPENROUTER_API_KEY"})
	}

	user := h.resolveUser(c)
	if handled := h.denyIfUnaffordable(c, user, mode, 1); handled {
		return nil
	}

	modelID := h.billingSvc.ActiveModel()
	ctx, cancel := context.WithTimeout(c.Context(), ai.RequestTimeout)
	defer cancel()

	imageURL, err := h.aiClient.GenerateImage(ctx, modelID, req.Prompt, req.ImageBase64, mode)
	if err != nil {
		return h.generationFailed(c, user, "Ошибка генерации", err)
	}

	sentToChat := h.deliverPhoto(user, imageURL, req.Prompt)
	h.charge(c, user, modelID, mode, 1)

	return c.JSON(fiber.Map{"imageUrl": imageURL, "sentToChat": sentToChat})
}

func (h *Handler) runBatchGeneration(c *fiber.Ctx, req generateRequest, mode model.Mode, count int) error {
	if !h.aiClient.Configured() {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Не настроен OPENROUTER_API_KEY"})
	}

	user := h.resolveUser(c)
	if handled := h.denyIfUnaffordable(c, user, mode, count); handled {
		return nil
	}

	modelID := h.billingSvc.ActiveModel()
	ctx, cancel := context.WithTimeout(c.Context(), ai.RequestTimeout)
	defer cancel()

	// N independent provider calls; a partial failure is not an overall
	// failure, the user receives and pays for the successful subset only.
	var mu sync.Mutex
	var wg sync.WaitGroup
	var imageURLs []string
	failed := 0

	for i := 0; i < count; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			imageURL, err := h.aiClient.GenerateImage(ctx, modelID, req.Prompt, req.ImageBase64, mode)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				return
			}
			imageURLs = append(imageURLs, imageURL)
		}()
	}
	wg.Wait()

	if len(imageURLs) == 0 {
		err := fmt.Errorf("все %d запросов не вернули картинку", count)
		return h.generationFailed(c, user, "Ошибка генерации", err)
	}
	if failed > 0 {
		log.Printf("generation: %s delivered %d of %d images", mode, len(imageURLs), count)
	}

	caption := req.Prompt
	if caption == "" {
		caption = "Случайные позы"
	}
	sentToChat := h.deliverAlbum(user, imageURLs, caption)
	h.charge(c, user, modelID, mode, len(imageURLs))

	return c.JSON(fiber.Map{"imageUrls": imageURLs, "sentToChat": sentToChat})
}

// resolveUser reads the authenticated init payload from locals and is
// tolerant beyond that: a failed lookup or an unparsable payload yields nil,
// and the generation proceeds without billing or chat delivery.
func (h *Handler) resolveUser(c *fiber.Ctx) *model.User {
	user, err := h.userService.GetOrCreateUser(c.Context(), middleware.InitData(c), "")
	if err != nil {
		log.Printf("generation: get-or-create failed: %v", err)
	}
	return user
}

// denyIfUnaffordable runs the advisory pre-check so the user learns the
// shortfall before a provider call is wasted. Returns true when the response
// has been written.
func (h *Handler) denyIfUnaffordable(c *fiber.Ctx, user *model.User, mode model.Mode, count int) bool {
	if user == nil {
		return false
	}

	check, err := h.billingSvc.GetBalanceCheck(c.Context(), user.TelegramUserID, h.billingSvc.ActiveModel(), mode, count)
	if err != nil {
		log.Printf("generation: balance check failed for %s: %v", user.TelegramUserID, err)
		return false
	}
	if check.Allowed {
		return false
	}

	_ = c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
		"error":     "Недостаточно средств",
		"balance":   check.Balance,
		"required":  check.Required,
		"shortfall": check.Shortfall,
	})
	return true
}

func (h *Handler) charge(c *fiber.Ctx, user *model.User, modelID string, mode model.Mode, images int) {
	if user == nil {
		return
	}
	result := h.billingSvc.ChargeUserForModel(c.Context(), user.TelegramUserID, modelID, service.ChargeContext{
		Mode:   mode,
		Images: images,
	})
	if !result.Charged && result.Price > 0 {
		log.Printf("generation: charge skipped for %s (%s, %d credits)", user.TelegramUserID, mode, result.Price)
	}
}

func (h *Handler) deliverPhoto(user *model.User, imageURL, caption string) bool {
	if h.bot == nil || user == nil || user.ChatID == "" {
		return false
	}
	return h.bot.SendPhoto(user.ChatID, imageURL, caption)
}

func (h *Handler) deliverAlbum(user *model.User, imageURLs []string, caption string) bool {
	if h.bot == nil || user == nil || user.ChatID == "" {
		return false
	}
	return h.bot.SendAlbum(user.ChatID, imageURLs, caption)
}

// generationFailed notifies the chat and answers 200 with an error payload;
// the Mini App treats it as a soft failure.
func (h *Handler) generationFailed(c *fiber.Ctx, user *model.User, message string, err error) error {
	details := err.Error()
	if h.bot != nil && user != nil && user.ChatID != "" {
		if len(details) > 200 {
			details = details[:200]
		}
		h.bot.SendText(user.ChatID, "❌ Error: "+details)
	}
	return c.JSON(fiber.Map{"error": message, "details": err.Error()})
}
