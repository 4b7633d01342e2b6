package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"channel_broadcast_bot/internal/app"
	"channel_broadcast_bot/internal/infra/config"
	idb "channel_broadcast_bot/internal/infra/database"
	"channel_broadcast_bot/internal/infra/email"
	"channel_broadcast_bot/internal/infra/logger"
	"channel_broadcast_bot/internal/infra/scheduler"
	"channel_broadcast_bot/internal/infra/telegram"

	"gopkg.in/telebot.v3"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Log.Fatalf("Could not load application configuration: %v", err)
	}

	logger.Init(cfg)
	log := logger.Log.WithField("component", "main")
	log.Infof("Configuration loaded. Environment: %s, Channel ID: %d, Admins: %d",
		cfg.Environment, cfg.ChannelID, len(cfg.AdminUserIDs))

	db, err := idb.NewPostgresConnection(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Could not connect to database: %v", err)
	}
	defer db.Close()
	log.Info("Database connection established")

	subscriberRepo := idb.NewPostgresSubscriberRepository(db)
	broadcastRepo := idb.NewPostgresBroadcastRepository(db)
	inviteLinkRepo := idb.NewPostgresInviteLinkRepository(db)

	pref := telebot.Settings{
		Token:  cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := logger.Log.WithError(err).WithField("component", "telebot")
			if c != nil && c.Sender() != nil {
				entry = entry.WithField("sender_id", c.Sender().ID)
			}
			entry.Error("Unhandled bot error")
		},
	}
	bot, err := telebot.NewBot(pref)
	if err != nil {
		log.Fatalf("Could not create Telegram bot: %v", err)
	}

	tgClient := telegram.NewTelebotAdapter(bot)

	broadcastService := app.NewBroadcastService(
		subscriberRepo, broadcastRepo, tgClient,
		logger.Log.WithField("component", "broadcast_service"),
	)
	approvalService := app.NewApprovalService(
		subscriberRepo, tgClient,
		logger.Log.WithField("component", "approval_service"),
	)
	adminService := app.NewAdminService(
		subscriberRepo, inviteLinkRepo, tgClient, cfg.ChannelID,
		logger.Log.WithField("component", "admin_service"),
	)
	reportService := app.NewReportService(
		subscriberRepo, broadcastRepo,
		logger.Log.WithField("component", "report_service"),
	)
	mailer := email.NewMailer(cfg, logger.Log.WithField("component", "mailer"))

	broadcastScheduler := scheduler.NewBroadcastScheduler(
		broadcastService, broadcastRepo, approvalService,
		logger.Log.WithField("component", "scheduler"),
	)
	if err := broadcastScheduler.Start(); err != nil {
		log.Fatalf("Could not start broadcast scheduler: %v", err)
	}

	ctx := context.Background()
	handlerLogger := logger.Log.WithField("component", "telegram")
	telegram.RegisterAdminHandlers(ctx, bot, cfg, broadcastService, adminService, reportService, handlerLogger)
	telegram.RegisterJoinRequestHandlers(ctx, bot, cfg.ChannelID, subscriberRepo, inviteLinkRepo, approvalService, handlerLogger)
	telegram.RegisterUserHandlers(ctx, bot, cfg, subscriberRepo, approvalService, mailer, handlerLogger)
	log.Info("Handlers registered, starting bot")

	go bot.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	broadcastScheduler.Stop()
	bot.Stop()
	log.Info("Shutdown complete")
}
