package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/api/handlers"
	"github.com/lever-lab/backend/internal/bootstrap"
	"github.com/lever-lab/backend/internal/metrics"
	"github.com/lever-lab/backend/internal/middleware/ratelimit"
	"github.com/lever-lab/backend/internal/middleware/security"
	"github.com/lever-lab/backend/internal/middleware/validation"
	"github.com/lever-lab/backend/internal/session"
	"github.com/lever-lab/backend/pkg/config"
	appLogger "github.com/lever-lab/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Lever Lab API Server")

	metrics.Init()

	services, err := bootstrap.New(cfg)
	if err != nil {
		appLogger.Fatal("Failed to build services", zap.Error(err))
	}
	defer services.Close()

	sessions := session.NewManager(time.Duration(cfg.Session.TTLMin)*time.Minute, cfg.Chat.HistoryLimit)

	scheduler := cron.New()
	if services.Memory != nil {
		_, err = scheduler.AddFunc(cfg.Cache.SweepCron, func() {
			if n := services.Memory.Sweep(); n > 0 {
				appLogger.Debug("Expired cache entries removed", zap.Int("count", n))
			}
		})
		if err != nil {
			appLogger.Fatal("Invalid cache sweep schedule", zap.Error(err))
		}
	}
	_, err = scheduler.AddFunc(cfg.Session.SweepCron, func() {
		if n := sessions.Sweep(time.Now()); n > 0 {
			appLogger.Info("Idle sessions expired", zap.Int("count", n))
		}
	})
	if err != nil {
		appLogger.Fatal("Invalid session sweep schedule", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
		Burst:             cfg.RateLimit.Burst,
	})
	defer limiter.Stop()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Use(validation.Middleware(validation.Config{MaxBodyBytes: cfg.Server.BodyLimit}))

	chatHandler := handlers.NewChatHandler(services.Pipeline, sessions)

	handlers.Register(app, handlers.Handlers{
		Chat:       chatHandler,
		WebSocket:  handlers.NewWebSocketHandler(chatHandler),
		Data:       handlers.NewDataHandler(services.Repo),
		Dashboard:  handlers.NewDashboardHandler(services.Repo, services.Aligner),
		Simulation: handlers.NewSimulationHandler(services.Calculator, services.Repo),
		Analytics:  handlers.NewAnalyticsHandler(sessions, services.Cache),
	}, limiter.Middleware())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Shutdown did not complete cleanly", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
