package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/bananagen/backend/internal/ai"
	"github.com/bananagen/backend/internal/config"
	"github.com/bananagen/backend/internal/handler"
	"github.com/bananagen/backend/internal/middleware"
	"github.com/bananagen/backend/internal/repository"
	"github.com/bananagen/backend/internal/service"
	"github.com/bananagen/backend/internal/telegram"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	repo, err := repository.New(cfg.Database.DSN())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	userService := service.NewUserService(repo)
	billingSvc := service.NewBillingService(repo, cfg.OpenRouter.ModelID)
	referralSvc := service.NewReferralService(repo)
	paymentSvc := service.NewPaymentService(repo)
	adminSvc := service.NewAdminService(repo)

	aiClient := ai.New(cfg.OpenRouter)

	var bot *telegram.Bot
	if cfg.Telegram.BotToken != "" {
		bot, err = telegram.NewBot(cfg, userService, referralSvc)
		if err != nil {
			log.Printf("Warning: Failed to create Telegram bot: %v", err)
		} else {
			log.Printf("Telegram bot @%s initialized", bot.GetBotUsername())
		}
	}

	h := handler.New(cfg, userService, billingSvc, referralSvc, paymentSvc, adminSvc, aiClient, bot)

	app := fiber.New(fiber.Config{
		BodyLimit: 25 * 1024 * 1024, // base64 image payloads
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Telegram-Init-Data",
	}))

	// Health check
	app.Get("/health", h.Health)

	// Payment provider callback
	webhook := app.Group("/webhook", middleware.WebhookAuth(cfg.Admin.WebhookSecret))
	webhook.Post("/payment", h.PaymentWebhook)

	// Settings read is public; writes sit behind the admin token below.
	app.Get("/api/settings", h.GetSettings)

	// Admin panel routes. Registered before the /api group so the admin
	// token is the only credential they need.
	admin := app.Group("/api/admin", middleware.AdminAuth(cfg))
	admin.Get("/users", h.AdminListUsers)
	admin.Post("/balance", h.AdminSetBalance)
	admin.Delete("/users", h.AdminDeleteUser)
	admin.Post("/purge", h.AdminPurgeUsers)
	admin.Post("/settings", h.UpdateSettings)

	// API routes with Telegram authentication. Handlers act as the identity
	// the middleware validated, never as an identity named in the body.
	api := app.Group("/api", middleware.TelegramAuth(cfg))

	// Generation
	api.Post("/generate", h.Generate)
	api.Post("/generate-upload", h.GenerateUpload)
	api.Post("/generate-refpair", h.GenerateRefPair)
	api.Post("/product-gen", h.GenerateProduct)
	api.Post("/product-gen-upload", h.ProductUpload)
	api.Post("/poses-gen", h.GeneratePoses)
	api.Post("/poses-gen-upload", h.PosesUpload)

	// Balance and ledger
	api.Post("/balance", h.GetBalance)
	api.Post("/balance/check", h.BalanceCheck)
	api.Post("/balance/transactions", h.GetTransactions)
	api.Post("/payment/init", h.InitTopUp)

	// User
	api.Post("/terms/accept", h.AcceptTerms)
	api.Post("/referral", h.GetReferralInfo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if bot != nil {
		go bot.StartPolling(ctx)
		log.Println("Telegram bot started with long polling")
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		cancel()
		_ = app.Shutdown()
	}()

	log.Printf("Server starting on port %s", cfg.Server.Port)
	if err := app.Listen(":" + cfg.Server.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
