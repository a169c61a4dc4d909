package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zahra/backend/internal/api/handler"
	"zahra/backend/internal/cache"
	"zahra/backend/internal/config"
	"zahra/backend/internal/ledger"
	"zahra/backend/internal/linking"
	"zahra/backend/internal/localization"
	"zahra/backend/internal/logger"
	"zahra/backend/internal/metrics"
	"zahra/backend/internal/notifier"
	"zahra/backend/internal/storage"
	"zahra/backend/internal/telegram"
	"zahra/backend/internal/users"
	"zahra/backend/internal/verifier"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const memoryCacheSize = 10000

// setupDependencies connects to Postgres, applies migrations and picks a
// cache: Redis when REDIS_URL is set, otherwise an in-process LRU.
func setupDependencies(ctx context.Context, cfg *config.Config, log *slog.Logger) (*gorm.DB, cache.Cache, handler.Pinger, error) {
	if err := storage.RunMigrations(cfg.DatabaseURL); err != nil {
		return nil, nil, nil, err
	}
	db, err := storage.Open(cfg.DatabaseURL, log)
	if err != nil {
		return nil, nil, nil, err
	}

	if cfg.RedisURL == "" {
		log.Warn("REDIS_URL not set, using in-process cache; linking tokens will not survive restarts")
		return db, cache.NewMemory(memoryCacheSize, config.CaseCacheTTL), nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	rdb := redis.NewClient(opts)
	rc := cache.NewRedis(rdb, cfg.LocalCacheSize, time.Minute)
	if err := rc.Ping(ctx); err != nil {
		return nil, nil, nil, err
	}
	return db, rc, rc, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file loaded", "error", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.Setup(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting zahra backend")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Storage and cache
	db, c, cachePinger, err := setupDependencies(ctx, cfg, log)
	if err != nil {
		log.Error("failed to set up dependencies", "error", err)
		os.Exit(1)
	}
	store := storage.NewStorageService(db)

	// 2. Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 3. Telegram and services
	bot, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		log.Error("failed to start telegram bot", "error", err)
		os.Exit(1)
	}
	bot.Debug = false
	log.Info("authorized on telegram", "account", bot.Self.UserName)

	texts, err := localization.New()
	if err != nil {
		log.Error("failed to load localization", "error", err)
		os.Exit(1)
	}

	httpClient := verifier.NewHTTPClient(verifier.WithLogger(log))
	var vs []verifier.Verifier
	if cfg.GitHub.ClientID != "" {
		vs = append(vs, verifier.NewGitHub(verifier.GitHubConfig{
			ClientID:     cfg.GitHub.ClientID,
			ClientSecret: cfg.GitHub.ClientSecret,
			RedirectURL:  cfg.CallbackURL("github"),
			SponsorLogin: cfg.GitHub.SponsorLogin,
		}, httpClient))
	}
	if cfg.Patreon.ClientID != "" {
		vs = append(vs, verifier.NewPatreon(verifier.PatreonConfig{
			ClientID:     cfg.Patreon.ClientID,
			ClientSecret: cfg.Patreon.ClientSecret,
			RedirectURL:  cfg.CallbackURL("patreon"),
			CampaignID:   cfg.Patreon.CampaignID,
		}, httpClient))
	}
	if len(vs) == 0 {
		log.Warn("no OAuth clients configured, /link is disabled")
	}

	cases := ledger.NewService(store, c, collector, log)
	us := users.NewService(store, c, collector, log)
	links := linking.NewService(store, c, verifier.NewSet(vs...), notifier.NewTelegram(bot, log), texts, log,
		linking.WithVerifyTimeout(cfg.VerifyTimeout),
		linking.WithMetrics(collector),
	)

	botService := telegram.NewBotService(bot, cases, links, us, texts, log)
	botService.OwnerID = cfg.OwnerID
	botService.SponsorLogin = cfg.GitHub.SponsorLogin

	// 4. HTTP
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	h := handler.NewHandler(cases, us, links, texts, log)
	h.JWTSecret = []byte(cfg.JWTSecret)
	h.Checks["postgres"] = store
	if cachePinger != nil {
		h.Checks["redis"] = cachePinger
	}
	limiter := handler.NewRateLimiter(handler.DefaultRateLimiterConfig())
	defer limiter.Stop()

	server := &http.Server{
		Addr:           cfg.HTTPAddr,
		Handler:        handler.NewRouter(h, handler.RouterOptions{Limiter: limiter, Metrics: metrics.Handler(reg)}),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   cfg.VerifyTimeout + 10*time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// 5. Run
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)
	go botService.Run(ctx, updates)

	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	bot.StopReceivingUpdates()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.VerifyTimeout+5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown failed", "error", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
