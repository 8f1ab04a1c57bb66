package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/byfaith/byfaith/internal/app"
	"github.com/byfaith/byfaith/internal/auth"
	"github.com/byfaith/byfaith/internal/db"
	"github.com/byfaith/byfaith/internal/observability"
	"github.com/byfaith/byfaith/internal/shared"
	"github.com/byfaith/byfaith/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	policy := cfg.Security()

	if err := db.Migrate(ctx, cfg.PGDSN); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	dbpool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	cookiePolicy := shared.CookiePolicy{SameSite: policy.SessionSameSite, Secure: policy.CookieSecure}
	csrfCookiePolicy := shared.CookiePolicy{SameSite: policy.CSRFSameSite, Secure: policy.CookieSecure}
	sessionManager := shared.NewSessionManager(redisClient, "byfaith_session", cfg.SessionSecret, cfg.SessionTTL, cookiePolicy)
	csrfManager := shared.NewCSRFManager(cfg.CSRFSecret, csrfCookiePolicy)

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	authRepo := auth.NewRepository(dbpool)
	tokenService := auth.NewTokenService(authRepo, auth.TokenTTLs{
		Activation: cfg.ActivationTokenTTL,
		Reset:      cfg.ResetTokenTTL,
	})
	passwordPolicy := auth.NewPasswordPolicy(auth.PasswordPolicyConfig{
		MinLength:  cfg.PasswordMinLength,
		MinClasses: cfg.PasswordMinClasses,
	})
	authService := auth.NewService(authRepo, tokenService, passwordPolicy, &jobs.QueueMailer{Client: jobClient}, logger, auth.ServiceConfig{
		FrontendBaseURL:       cfg.FrontendBaseURL,
		MaxSessionsPerAccount: cfg.SessionMaxPerAccount,
	})
	authHandler := auth.NewHandler(logger, authService, sessionManager, csrfManager)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Policy:         policy,
		SessionManager: sessionManager,
		CSRFManager:    csrfManager,
		AuthHandler:    authHandler,
		Metrics:        metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("env", cfg.AppEnv))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
