package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/byfaith/byfaith/internal/mail"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypeAuthSweep is the task type for purging expired tokens and
	// session records.
	TaskTypeAuthSweep = "auth:sweep"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// NewAuthSweepTask constructs the periodic sweep task.
func NewAuthSweepTask() *asynq.Task {
	return asynq.NewTask(TaskTypeAuthSweep, nil)
}

// NewSendEmailHandler processes TaskTypeSendEmail tasks with the given
// transport.
func NewSendEmailHandler(mailer mail.Mailer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload SendEmailPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if err := mailer.Send(ctx, mail.Message{To: payload.To, Subject: payload.Subject, Body: payload.Body}); err != nil {
			logger.Error("send email", slog.String("to", payload.To), slog.Any("error", err))
			return err
		}
		return nil
	}
}

// Sweeper purges expired auth state.
type Sweeper interface {
	SweepExpired(ctx context.Context) error
}

// NewAuthSweepHandler processes TaskTypeAuthSweep tasks. The sweep is
// idempotent, so overlapping runs are harmless.
func NewAuthSweepHandler(sweeper Sweeper, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := sweeper.SweepExpired(ctx); err != nil {
			logger.Error("auth sweep", slog.Any("error", err))
			return err
		}
		return nil
	}
}
