package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"restopos/internal/ai"
	"restopos/internal/auth"
	"restopos/internal/config"
	"restopos/internal/database"
	"restopos/internal/discovery"
	"restopos/internal/handlers"
	"restopos/internal/logger"
	"restopos/internal/mandao"
	"restopos/internal/notify"
	"restopos/internal/outbox"
	"restopos/internal/realtime"
	"restopos/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

var version = "dev"

func main() {
	envErr := godotenv.Load()
	cfg := config.Load()

	log := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		Component:   "restopos",
		Environment: cfg.Environment,
	})
	if envErr != nil {
		log.Warn("no .env file found, using process environment")
	}
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(cfg.Database, log.WithComponent("database").Logger)
	if err != nil {
		log.Error("database unavailable", "error", err)
		os.Exit(1)
	}

	// --- Realtime hub ---
	hub := realtime.NewHub(log, cfg.CORSAllowOrigins)
	go hub.Run(ctx)

	// --- Services ---
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	ob := outbox.New(cfg.OutboxMaxAttempts)
	stock := services.NewStockService(db)
	authSvc := services.NewAuthService(db, tokens, cfg.TrialDays, cfg.AllowRegistration)
	catalog := services.NewCatalogService(db, stock)
	orders := services.NewOrderService(db, stock, ob, hub)
	expenses := services.NewExpenseService(db)
	liquidacion := services.NewLiquidacionService(db, hub)

	if cfg.SuperAdminUsername != "" {
		if err := authSvc.EnsureSuperAdmin(ctx, cfg.SuperAdminUsername, cfg.SuperAdminPassword); err != nil {
			log.Error("superadmin account not created", "error", err)
		}
	}
	if cfg.AllowRegistration {
		log.Warn("restaurant registration is OPEN, set ALLOW_REGISTRATION=false to close it")
	}

	// --- Push notifications ---
	var sender notify.Sender
	fcmSender, err := notify.NewFCMSender(ctx, cfg.Firebase)
	switch {
	case err != nil:
		log.Error("firebase disabled", "error", err)
	case fcmSender == nil:
		log.Warn("firebase credentials not configured, push notifications are only logged")
	default:
		sender = fcmSender
	}
	dispatcher := notify.NewDispatcher(db, sender, log, cfg.BaseURL)

	// --- Mandao ---
	mandaoClient := mandao.NewClient(cfg.Mandao, log)
	syncer := mandao.NewSyncer(mandaoClient, authSvc, catalog, log)

	// --- Background workers ---
	worker := outbox.NewWorker(db, log, cfg.OutboxPollInterval)
	worker.Register(outbox.KindPushStatus, outbox.HandleJSON(dispatcher.HandleStatus))
	worker.Register(outbox.KindMandaoStatus, outbox.HandleJSON(mandaoClient.HandleStatus))
	go worker.Run(ctx)

	subs := services.NewSubscriptionWorker(db, log, cfg.SubscriptionCheckInterval)
	go subs.Run(ctx)

	if cfg.MDNSEnabled {
		port, _ := strconv.Atoi(strings.TrimPrefix(cfg.Addr, ":"))
		err := discovery.Advertise(ctx, discovery.Announcement{Port: port, Version: version, BaseURL: cfg.BaseURL}, log)
		if err != nil {
			log.Warn("mDNS announcement failed", "error", err)
		}
	}

	// --- HTTP ---
	api := handlers.New(handlers.Deps{
		DB:           db,
		Log:          log,
		Auth:         authSvc,
		Catalog:      catalog,
		Stock:        stock,
		Orders:       orders,
		Expenses:     expenses,
		Liquidacion:  liquidacion,
		Push:         dispatcher,
		Mandao:       syncer,
		Hub:          hub,
		Agent:        ai.NewAgent(db, liquidacion, cfg.GeminiAPIKey),
		MandaoSecret: cfg.Mandao.WebhookSecret,
		CORSOrigins:  cfg.CORSAllowOrigins,
		Version:      version,
		Environment:  cfg.Environment,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server starting", "addr", cfg.Addr, "base_url", cfg.BaseURL, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("server stopped")
}
