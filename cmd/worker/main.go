package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/byfaith/byfaith/internal/app"
	"github.com/byfaith/byfaith/internal/auth"
	"github.com/byfaith/byfaith/internal/db"
	"github.com/byfaith/byfaith/internal/mail"
	"github.com/byfaith/byfaith/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	authRepo := auth.NewRepository(pool)
	tokenService := auth.NewTokenService(authRepo, auth.TokenTTLs{
		Activation: cfg.ActivationTokenTTL,
		Reset:      cfg.ResetTokenTTL,
	})
	passwordPolicy := auth.NewPasswordPolicy(auth.PasswordPolicyConfig{
		MinLength:  cfg.PasswordMinLength,
		MinClasses: cfg.PasswordMinClasses,
	})

	smtpMailer := mail.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom)
	// The worker delivers mail itself, so the service gets the SMTP
	// transport directly rather than the queue-backed mailer.
	authService := auth.NewService(authRepo, tokenService, passwordPolicy, smtpMailer, logger, auth.ServiceConfig{
		FrontendBaseURL:       cfg.FrontendBaseURL,
		MaxSessionsPerAccount: cfg.SessionMaxPerAccount,
	})

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeSendEmail, Handler: jobs.NewSendEmailHandler(smtpMailer, logger)},
			{Type: jobs.TaskTypeAuthSweep, Handler: jobs.NewAuthSweepHandler(authService, logger)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/30 * * * *", Task: jobs.NewAuthSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
