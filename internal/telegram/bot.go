package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	tele "gopkg.in/telebot.v3"

	"github.com/bananagen/backend/internal/config"
	"github.com/bananagen/backend/internal/model"
	"github.com/bananagen/backend/internal/service"
)

// Bot handles the /start entry point and delivers generation results to the
// user's chat. /start funnels through the same init-payload code path as the
// Mini App so both entry points share one get-or-create flow.
type Bot struct {
	bot         *tele.Bot
	cfg         *config.Config
	userService *service.UserService
	referralSvc *service.ReferralService
}

func NewBot(cfg *config.Config, userService *service.UserService, referralSvc *service.ReferralService) (*Bot, error) {
	pref := tele.Settings{
		Token:  cfg.Telegram.BotToken,
		Poller: &tele.LongPoller{Timeout: 60 * time.Second},
	}

	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	b := &Bot{
		bot:         bot,
		cfg:         cfg,
		userService: userService,
		referralSvc: referralSvc,
	}

	b.bot.Handle("/start", b.handleStart)
	b.bot.Handle("/balance", b.handleBalance)
	b.bot.Handle("/help", b.handleHelp)

	return b, nil
}

func (b *Bot) GetBotUsername() string {
	return b.bot.Me.Username
}

func (b *Bot) StartPolling(ctx context.Context) {
	go func() {
		<-ctx.Done()
		b.bot.Stop()
	}()
	b.bot.Start()
}

// syntheticInitData rebuilds the Mini App init payload from a bot update so
// chat and Mini App entries resolve users identically.
func syntheticInitData(sender *tele.User, startParam string) string {
	userJSON, _ := json.Marshal(map[string]interface{}{
		"id":         sender.ID,
		"username":   sender.Username,
		"first_name": sender.FirstName,
		"last_name":  sender.LastName,
	})

	values := url.Values{}
	values.Set("user", string(userJSON))
	if startParam != "" {
		values.Set("start_param", startParam)
	}
	return values.Encode()
}

func (b *Bot) handleStart(c tele.Context) error {
	sender := c.Sender()
	chatID := strconv.FormatInt(c.Chat().ID, 10)
	startParam := c.Message().Payload

	user, err := b.userService.GetOrCreateUser(context.Background(),
		syntheticInitData(sender, startParam), chatID)
	if err != nil {
		log.Printf("bot: /start get-or-create failed for %d: %v", sender.ID, err)
	}

	text := fmt.Sprintf(`Привет, %s! 👋

🍌 <b>BananaGen</b> — генерация картинок по описанию

✅ Фото по промту
✅ Продуктовые фотосессии
✅ Генерация поз по референсу

Открой Mini App, чтобы начать.`, sender.FirstName)

	if user != nil {
		text += fmt.Sprintf("\n\n💰 Баланс: %d кредитов", user.Balance)
	}

	keyboard := &tele.ReplyMarkup{}
	keyboard.Inline(
		keyboard.Row(
			keyboard.WebApp("🍌 Открыть BananaGen", &tele.WebApp{URL: b.cfg.Telegram.WebAppURL}),
		),
	)

	return c.Send(text, keyboard, tele.ModeHTML)
}

func (b *Bot) handleBalance(c tele.Context) error {
	sender := c.Sender()
	telegramUserID := strconv.FormatInt(sender.ID, 10)

	balance, err := b.userService.GetBalance(context.Background(), telegramUserID)
	if err != nil {
		return c.Send("Не удалось получить баланс, попробуйте позже.")
	}

	stats, err := b.referralSvc.GetReferralStats(context.Background(), telegramUserID)
	if err != nil {
		return c.Send(fmt.Sprintf("💰 Баланс: %d кредитов", balance))
	}

	text := fmt.Sprintf(`💰 <b>Баланс: %d кредитов</b>

👥 Приглашено друзей: %d`, balance, stats.ReferredCount)

	if stats.RefCode != nil {
		link, err := b.referralSvc.GetReferralLink(context.Background(), telegramUserID, b.bot.Me.Username)
		if err == nil {
			text += fmt.Sprintf("\n\n🔗 Твоя ссылка (+%d тебе, +%d другу):\n<code>%s</code>",
				model.ReferrerBonus, model.ReferredBonus, link)
		}
	}

	return c.Send(text, tele.ModeHTML)
}

func (b *Bot) handleHelp(c tele.Context) error {
	text := `📖 <b>Команды</b>

/start — главное меню
/balance — баланс и реферальная ссылка
/help — эта справка

Генерация доступна в Mini App.`

	return c.Send(text, tele.ModeHTML)
}

// SendText sends a plain message; delivery failures are reported, never fatal.
func (b *Bot) SendText(chatID, text string) bool {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return false
	}
	if _, err := b.bot.Send(&tele.User{ID: id}, text); err != nil {
		log.Printf("bot: failed to send text to %s: %v", chatID, err)
		return false
	}
	return true
}

// SendPhoto delivers a single generated image to the chat.
func (b *Bot) SendPhoto(chatID, imageURL, caption string) bool {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return false
	}
	photo := &tele.Photo{File: tele.FromURL(imageURL), Caption: caption}
	if _, err := b.bot.Send(&tele.User{ID: id}, photo); err != nil {
		log.Printf("bot: failed to send photo to %s: %v", chatID, err)
		return false
	}
	return true
}

// SendAlbum delivers a batch of generated images as one media group.
func (b *Bot) SendAlbum(chatID string, imageURLs []string, caption string) bool {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil || len(imageURLs) == 0 {
		return false
	}

	album := make(tele.Album, 0, len(imageURLs))
	for i, imageURL := range imageURLs {
		photo := &tele.Photo{File: tele.FromURL(imageURL)}
		if i == 0 {
			photo.Caption = caption
		}
		album = append(album, photo)
	}

	if _, err := b.bot.SendAlbum(&tele.User{ID: id}, album); err != nil {
		log.Printf("bot: failed to send album to %s: %v", chatID, err)
		return false
	}
	return true
}
