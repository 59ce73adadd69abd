package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/bananagen/backend/internal/config"
)

const InitDataKey = "init_data"

// TelegramAuth validates the Mini App init payload against the bot token and
// stores the raw payload in locals; handlers take the caller's identity from
// there and never from unauthenticated request fields. The payload may arrive
// in the X-Telegram-Init-Data header, an "Authorization: tma ..." header, the
// initData query parameter, or an initData body field (JSON or multipart).
// When no bot token is configured the payload is passed through unverified
// (local development).
func TelegramAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		initData := c.Get("X-Telegram-Init-Data")
		if initData == "" {
			initData = c.Get("Authorization")
			if strings.HasPrefix(initData, "tma ") {
				initData = strings.TrimPrefix(initData, "tma ")
			}
		}
		if initData == "" {
			initData = c.Query("initData")
		}
		if initData == "" {
			initData = initDataFromBody(c)
		}

		if initData == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing telegram init data",
			})
		}

		if cfg.Telegram.BotToken != "" {
			if err := ValidateInitData(initData, cfg.Telegram.BotToken); err != nil {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"error": "invalid telegram init data: " + err.Error(),
				})
			}
		}

		c.Locals(InitDataKey, initData)

		return c.Next()
	}
}

func initDataFromBody(c *fiber.Ctx) string {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		var body struct {
			InitData string `json:"initData"`
		}
		if err := json.Unmarshal(c.Body(), &body); err != nil {
			return ""
		}
		return body.InitData
	}
	return c.FormValue("initData")
}

// ValidateInitData checks the Telegram WebApp HMAC signature and auth_date
// freshness of a raw init payload.
func ValidateInitData(initData, botToken string) error {
	values, err := url.ParseQuery(initData)
	if err != nil {
		return err
	}

	hash := values.Get("hash")
	if hash == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing hash")
	}

	authDate, err := strconv.ParseInt(values.Get("auth_date"), 10, 64)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid auth_date")
	}
	if time.Now().Unix()-authDate > 3600 {
		return fiber.NewError(fiber.StatusUnauthorized, "auth_date expired")
	}

	values.Del("hash")
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	dataCheckParts := make([]string, 0, len(keys))
	for _, key := range keys {
		dataCheckParts = append(dataCheckParts, key+"="+values.Get(key))
	}
	dataCheckString := strings.Join(dataCheckParts, "\n")

	secretKey := hmac.New(sha256.New, []byte("WebAppData"))
	secretKey.Write([]byte(botToken))

	h := hmac.New(sha256.New, secretKey.Sum(nil))
	h.Write([]byte(dataCheckString))
	calculatedHash := hex.EncodeToString(h.Sum(nil))

	if calculatedHash != hash {
		return fiber.NewError(fiber.StatusUnauthorized, "invalid hash")
	}
	return nil
}

// InitData returns the validated init payload stored by TelegramAuth.
func InitData(c *fiber.Ctx) string {
	initData, ok := c.Locals(InitDataKey).(string)
	if !ok {
		return ""
	}
	return initData
}
