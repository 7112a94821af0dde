// Package main provides the entry point for the balance top-up and payment reconciliation service
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/handlers"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/router"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/scheduler"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/app/services"
	businessflow "github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/business_flow"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/config"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/models"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/repository"
	"github.com/pavelfrolovvvvv1234-debug/sephora-tg-sub000/utils"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	logger    *zap.Logger
	stopFuncs []func()
}

func main() {
	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := utils.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting application",
		zap.String("environment", cfg.Deployment.Environment),
		zap.String("version", cfg.Deployment.Version),
		zap.String("commit", cfg.Deployment.CommitHash),
	)

	// Initialize application
	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", zap.Error(err))
	}

	// Setup routes
	app.router.SetupRoutes()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	logger.Info("shutting down gracefully")

	// HTTP first, then background workers
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", zap.Error(err))
	}

	// Stop background workers in reverse start order
	for i := len(app.stopFuncs) - 1; i >= 0; i-- {
		app.stopFuncs[i]()
	}

	logger.Info("server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger: gormlogger.New(
			zap.NewStdLog(logger.Named("gorm")),
			gormlogger.Config{
				SlowThreshold:             cfg.SlowQueryTime,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(models.AllModels()...); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	logger.Info("database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
	)

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity
func initializeCache(cfg config.CacheConfig, logger *zap.Logger) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connection established", zap.Int("db", cfg.RedisDB))
	return rc, nil
}

// startCacheHealthMonitor periodically pings Redis to surface connectivity issues.
// The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger *zap.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn("redis healthcheck failed", zap.Error(err))
				}
				c()
			}
		}
	}()
	return cancel
}

// initializeProviders builds the enabled payment adapters
func initializeProviders(cfg *config.ProductionConfig) (services.ProviderRegistry, *services.CryptoBotClient, *services.CrystalPayClient, error) {
	retry := services.RetryOptions{
		MaxAttempts:        cfg.ProviderRetry.MaxAttempts,
		Delay:              cfg.ProviderRetry.Delay,
		ExponentialBackoff: cfg.ProviderRetry.ExponentialBackoff,
	}

	var (
		adapters   []services.PaymentProvider
		cryptoBot  *services.CryptoBotClient
		crystalPay *services.CrystalPayClient
		err        error
	)

	if cfg.CryptoBot.Enabled {
		cryptoBot, err = services.NewCryptoBotClient(services.CryptoBotOptions{
			BaseURL: cfg.CryptoBot.BaseURL,
			Token:   cfg.CryptoBot.Token,
			Asset:   cfg.CryptoBot.Asset,
			Timeout: cfg.CryptoBot.Timeout,
			Retry:   retry,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		adapters = append(adapters, cryptoBot)
	}

	if cfg.CrystalPay.Enabled {
		crystalPay, err = services.NewCrystalPayClient(services.CrystalPayOptions{
			BaseURL:     cfg.CrystalPay.BaseURL,
			Login:       cfg.CrystalPay.Login,
			Secret:      cfg.CrystalPay.Secret,
			Salt:        cfg.CrystalPay.Salt,
			Timeout:     cfg.CrystalPay.Timeout,
			LifetimeMin: cfg.CrystalPay.LifetimeMin,
			CallbackURL: cfg.CrystalPay.CallbackURL,
			Retry:       retry,
		})
		if err != nil {
			return nil, nil, nil, err
		}
		adapters = append(adapters, crystalPay)
	}

	return services.NewProviderRegistry(adapters...), cryptoBot, crystalPay, nil
}

// initializeNotificationService builds the Telegram notifier. Admin chats come from config and admin users.
func initializeNotificationService(cfg config.TelegramConfig, userRepo repository.UserRepository, logger *zap.Logger) (services.NotificationService, error) {
	if !cfg.Enabled {
		logger.Info("telegram notifications disabled")
		return nil, nil
	}

	tgBot, err := services.NewTelegramBot(cfg.BotToken)
	if err != nil {
		return nil, err
	}

	adminIDs := append([]int64(nil), cfg.AdminChatIDs...)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	admins, err := userRepo.ListAdmins(ctx)
	if err != nil {
		logger.Warn("failed to load admin users", zap.Error(err))
	}
	seen := make(map[int64]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		seen[id] = struct{}{}
	}
	for _, a := range admins {
		if _, ok := seen[a.TelegramID]; !ok && a.TelegramID != 0 {
			seen[a.TelegramID] = struct{}{}
			adminIDs = append(adminIDs, a.TelegramID)
		}
	}

	return services.NewTelegramNotificationService(tgBot, adminIDs, cfg.SendTimeout), nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig, logger *zap.Logger) (*Application, error) {
	var stopFuncs []func()

	// Initialize database
	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	// Initialize cache
	rc, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}
	if rc != nil {
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.CleanupInterval, logger))
	}

	// Initialize repositories
	topUpRepo := repository.NewTopUpRepository(db)
	userRepo := repository.NewUserRepository(db)
	balanceTxRepo := repository.NewBalanceTransactionRepository(db)
	referralRewardRepo := repository.NewReferralRewardRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)
	transactor := repository.NewTransactor(db)

	// Initialize services
	providers, cryptoBot, crystalPay, err := initializeProviders(cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := initializeNotificationService(cfg.Telegram, userRepo, logger)
	if err != nil {
		return nil, err
	}

	// Initialize business flows
	var growth businessflow.GrowthCollaborator = businessflow.NoopGrowthCollaborator{}
	if cfg.Growth.Enabled && rc != nil {
		growth = businessflow.NewRedisGrowthFlow(rc, cfg.Cache.RedisPrefix, cfg.Growth, logger.Named("growth"))
	}

	referralFlow := businessflow.NewReferralFlow(userRepo, referralRewardRepo, balanceTxRepo, auditRepo, transactor, cfg.Referral, logger.Named("referral"))
	cascade := businessflow.NewRewardCascade(referralFlow, growth, notifier, auditRepo, logger.Named("reward_cascade"))

	rewardQueue := businessflow.NewRewardQueue(cascade, cfg.Reconciliation.RewardQueueWorker, cfg.Reconciliation.RewardQueueSize, logger.Named("reward_queue"))
	stopFuncs = append(stopFuncs, rewardQueue.Start(context.Background()))

	reconcileFlow := businessflow.NewReconcileFlow(topUpRepo, userRepo, balanceTxRepo, auditRepo, transactor, rewardQueue, logger.Named("reconcile"))
	topUpFlow := businessflow.NewTopUpFlow(topUpRepo, userRepo, auditRepo, providers, cfg.TopUp, logger.Named("top_up"))

	var (
		cryptoBotVerifier  businessflow.CryptoBotVerifier
		crystalPayVerifier businessflow.CrystalPayVerifier
	)
	if cryptoBot != nil {
		cryptoBotVerifier = cryptoBot
	}
	if crystalPay != nil {
		crystalPayVerifier = crystalPay
	}
	webhookFlow := businessflow.NewWebhookFlow(topUpRepo, auditRepo, reconcileFlow, cryptoBotVerifier, crystalPayVerifier, providers, logger.Named("webhook"))

	if cfg.Reconciliation.Enabled {
		poller := scheduler.NewReconciliationPoller(topUpRepo, providers, reconcileFlow, cfg.Reconciliation, logger)
		stopFuncs = append(stopFuncs, poller.Start(context.Background()))
	}

	// Initialize handlers
	topUpHandler := handlers.NewTopUpHandler(topUpFlow)
	webhookHandler := handlers.NewWebhookHandler(webhookFlow)

	appRouter := router.NewFiberRouter(cfg, logger, topUpHandler, webhookHandler)

	return &Application{
		router:    appRouter,
		config:    cfg,
		server:    appRouter.GetApp(),
		logger:    logger,
		stopFuncs: stopFuncs,
	}, nil
}
