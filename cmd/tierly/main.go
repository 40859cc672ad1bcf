package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	"github.com/terraincognita07/tierly/internal/api"
	"github.com/terraincognita07/tierly/internal/cli"
	"github.com/terraincognita07/tierly/internal/config"
	"github.com/terraincognita07/tierly/internal/db"
	"github.com/terraincognita07/tierly/internal/logging"
	"go.uber.org/zap"
)

const referralsCommand = "referrals"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config init failed: %v", err)
	}
	time.Local = cfg.Location()

	appLogger, err := logging.New(cfg.Environment)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() {
		_ = appLogger.Sync()
	}()

	if len(os.Args) > 1 && os.Args[1] == referralsCommand {
		userID, err := parseReferralsArgs(os.Args[2:])
		if err != nil {
			appLogger.Fatal("invalid referrals command", zap.Error(err))
		}
		if err := cli.RunReferralsReportCommand(context.Background(), databaseOptions(cfg, appLogger), userID, os.Stdout); err != nil {
			appLogger.Fatal("referrals report failed", zap.Error(err))
		}
		return
	}

	if err := runServer(cfg, appLogger); err != nil {
		appLogger.Fatal("server exited", zap.Error(err))
	}
}

func runServer(cfg config.Config, appLogger *zap.Logger) error {
	port, err := config.ResolvePort(cfg.Port)
	if err != nil {
		return err
	}

	database, err := db.Open(databaseOptions(cfg, appLogger))
	if err != nil {
		return fmt.Errorf("database init failed: %w", err)
	}

	attempts, closeAttempts := newAttemptTracker(cfg, appLogger)
	defer closeAttempts()

	handler, err := api.NewHandler(database, api.Options{
		SecretKey:           cfg.SecretKey,
		WebhookSecret:       cfg.WebhookSecret,
		TrustUserIDHeader:   cfg.TrustUserIDHeader,
		RedeemAttemptLimit:  cfg.RedeemAttemptLimit,
		RedeemAttemptWindow: cfg.RedeemAttemptWindow,
		AttemptTracker:      attempts,
		Logger:              appLogger,
	})
	if err != nil {
		return fmt.Errorf("handler init failed: %w", err)
	}
	if len(cfg.SecretKey) == 0 && !cfg.TrustUserIDHeader {
		appLogger.Warn("no identity source configured; referral endpoints will reject every caller")
	}

	app := newApp(handler)

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			appLogger.Error("server shutdown failed", zap.Error(err))
		}
	}()

	appLogger.Info("tierly listening",
		zap.String("addr", "0.0.0.0:"+port),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("tz", cfg.Location().String()),
	)
	return app.Listen(":" + port)
}

func newApp(handler *api.Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "Tierly",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	api.RegisterRoutes(app, handler)
	app.Use(handler.NotFound)
	return app
}

func databaseOptions(cfg config.Config, appLogger *zap.Logger) db.Options {
	options := db.Options{
		Driver:     cfg.DBDriver,
		SQLitePath: cfg.DBPath,
		Logger:     appLogger,
	}
	if cfg.DBDriver == db.DriverPostgres || cfg.DBDriver == "postgresql" {
		options.PostgresDSN = cfg.PostgresDSN()
	}
	return options
}

// newAttemptTracker shares redemption counters through Redis when REDIS_ADDR
// is set and keeps them in process memory otherwise.
func newAttemptTracker(cfg config.Config, appLogger *zap.Logger) (api.AttemptTracker, func()) {
	if cfg.RedisAddr == "" {
		return nil, func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		appLogger.Warn("redis unavailable at startup; attempt limiting fails open until it recovers",
			zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}

	return api.NewRedisAttemptLimiter(client, appLogger), func() {
		_ = client.Close()
	}
}

func parseReferralsArgs(args []string) (uint, error) {
	flags := pflag.NewFlagSet(referralsCommand, pflag.ContinueOnError)
	userID := flags.Uint("user", 0, "id of the user whose referral dashboard is printed")
	if err := flags.Parse(args); err != nil {
		return 0, err
	}
	if *userID == 0 {
		return 0, errors.New("--user is required")
	}
	return *userID, nil
}
