// Command notifyd runs the CRM notification delivery service: queue
// workers, reliability hooks, backlog and SLA monitors, and the
// operator API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nexocrm/notify/pkg/api"
	"github.com/nexocrm/notify/pkg/channels"
	"github.com/nexocrm/notify/pkg/config"
	"github.com/nexocrm/notify/pkg/dlq"
	"github.com/nexocrm/notify/pkg/notifier"
	"github.com/nexocrm/notify/pkg/observability/logger"
	"github.com/nexocrm/notify/pkg/queue"
	"github.com/nexocrm/notify/pkg/reliability"
	"github.com/nexocrm/notify/pkg/sla"
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:           "notifyd",
		Short:         "CRM notification delivery and queue reliability service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewViperLoader(configFile, "NOTIFY").Load()
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to config file")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := buildLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := queue.NewRedisBackend(queue.RedisBackendConfig{
		URL:    cfg.Redis.URL,
		Prefix: cfg.Redis.Prefix,
	}, log)
	if err != nil {
		return fmt.Errorf("build redis backend: %w", err)
	}

	var db *sql.DB
	if strings.TrimSpace(cfg.Database.DSN) != "" {
		db, err = sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
	}

	producer, err := queue.NewProducer(backend, log)
	if err != nil {
		return err
	}

	alerts, err := notifier.New(producer, notifier.Config{
		QueueName: cfg.Queue.Name,
		Admin: notifier.Targets{
			Phone:     cfg.Admin.Phone,
			PushToken: cfg.Admin.PushToken,
			Email:     cfg.Admin.Email,
			UserID:    cfg.Admin.UserID,
		},
	}, log)
	if err != nil {
		return err
	}

	dispatcher, err := buildDispatcher(cfg, db, log)
	if err != nil {
		return err
	}

	breaker := reliability.NewBreaker(reliability.BreakerConfig{
		Threshold: cfg.Breaker.Threshold,
		Cooldown:  cfg.Breaker.Cooldown,
	})
	hook, err := reliability.NewHook(backend, breaker, alerts, log)
	if err != nil {
		return err
	}

	worker, err := queue.NewWorker(backend, log, queue.WorkerConfig{
		Queues:         []string{cfg.Queue.Name},
		Concurrency:    cfg.Queue.Concurrency,
		LeaseTTL:       cfg.Queue.LeaseTTL,
		AttemptTimeout: cfg.Queue.AttemptTimeout,
		MaxBackoff:     cfg.Queue.MaxBackoff,
		Hook:           hook,
		Alert:          exhaustionAlert(alerts),
	})
	if err != nil {
		return err
	}
	if err := dispatcher.Register(worker); err != nil {
		return err
	}

	backlog, err := reliability.NewBacklogMonitor(backend, alerts, reliability.BacklogConfig{
		Queues:         []string{cfg.Queue.Name},
		Threshold:      cfg.Backlog.Threshold,
		Cooldown:       cfg.Backlog.Cooldown,
		SampleInterval: cfg.Backlog.SampleInterval,
	}, log)
	if err != nil {
		return err
	}

	replay, err := buildReplayService(cfg, backend, db, alerts, log)
	if err != nil {
		return err
	}

	server, err := api.NewServer(replay, backend, api.ServerConfig{
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}, log)
	if err != nil {
		return err
	}

	slaMonitor, err := buildSLAMonitor(cfg, db, alerts, log)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() { errCh <- worker.Start(ctx) }()
	go func() { errCh <- server.Start() }()
	go backlog.Run(ctx)
	if slaMonitor != nil {
		go slaMonitor.Run(ctx)
	}

	log.Info("notifyd started",
		"queue", cfg.Queue.Name, "concurrency", cfg.Queue.Concurrency,
		"environment", cfg.Service.Environment)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("component failed, shutting down", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.WriteTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("operator api shutdown failed", "error", err)
	}
	if err := worker.Stop(shutdownCtx); err != nil {
		log.Warn("worker shutdown failed", "error", err)
	}
	log.Info("notifyd stopped")
	return nil
}

func buildLogger(cfg config.LogConfig) (*logger.ZapLogger, error) {
	level, err := logger.ParseLogLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseLogFormat(cfg.Format)
	if err != nil {
		return nil, err
	}
	return logger.NewZapLogger(logger.Config{Level: level, Format: format})
}

func buildDispatcher(cfg *config.Config, db *sql.DB, log logger.Logger) (*channels.Dispatcher, error) {
	var (
		whatsapp *channels.WhatsAppClient
		sms      *channels.TwilioClient
		push     *channels.FCMClient
		email    *channels.EmailClient
		store    channels.NotificationStore
		err      error
	)

	if db != nil {
		creds, credErr := channels.NewPostgresCredentialSource(db)
		if credErr != nil {
			return nil, credErr
		}
		whatsapp, err = channels.NewWhatsAppClient(channels.WhatsAppConfig{BaseURL: cfg.WhatsApp.BaseURL}, creds, log)
		if err != nil {
			return nil, err
		}
		store, err = channels.NewPostgresNotificationStore(db)
		if err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.Twilio.AccountSID) != "" {
		sms, err = channels.NewTwilioClient(channels.TwilioConfig{
			AccountSID: cfg.Twilio.AccountSID,
			AuthToken:  cfg.Twilio.AuthToken,
			FromNumber: cfg.Twilio.FromNumber,
		}, log)
		if err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.FCM.ProjectID) != "" {
		push, err = channels.NewFCMClient(channels.FCMConfig{ProjectID: cfg.FCM.ProjectID}, fcmTokenFromEnv, log)
		if err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(cfg.SMTP.Host) != "" {
		email, err = channels.NewEmailClient(channels.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		}, log)
		if err != nil {
			return nil, err
		}
	}

	return channels.NewDispatcher(whatsapp, sms, push, email, store, log)
}

func buildReplayService(cfg *config.Config, backend queue.Backend, db *sql.DB, alerts *notifier.Notifier, log logger.Logger) (*dlq.Service, error) {
	fallback, err := dlq.NewFileAppender(cfg.Replay.AuditFilePath)
	if err != nil {
		return nil, err
	}

	var audit dlq.AuditStore
	if db != nil {
		audit, err = dlq.NewPostgresAuditStore(db)
		if err != nil {
			return nil, err
		}
	}

	return dlq.NewService(backend, audit, fallback, alerts, dlq.ServiceConfig{
		Queues: []string{cfg.Queue.Name},
		AllowedKinds: map[string][]string{
			cfg.Queue.Name: {
				queue.KindSendChat, queue.KindSendSMS, queue.KindSendPush,
				queue.KindSendEmail, queue.KindNotifyUser,
			},
		},
	}, log)
}

func buildSLAMonitor(cfg *config.Config, db *sql.DB, alerts *notifier.Notifier, log logger.Logger) (*sla.Monitor, error) {
	if db == nil {
		log.Info("sla monitor disabled, no database configured")
		return nil, nil
	}
	store, err := sla.NewPostgresWorkItemStore(db)
	if err != nil {
		return nil, err
	}
	return sla.NewMonitor(store, alerts, sla.MonitorConfig{
		Enabled:             cfg.SLA.Enabled,
		Environment:         cfg.Service.Environment,
		ScanInterval:        cfg.SLA.ScanInterval,
		WarningThreshold:    cfg.SLA.WarningThreshold,
		SuppressionCooldown: cfg.SLA.SuppressionCooldown,
		BatchSize:           cfg.SLA.BatchSize,
	}, log)
}

// fcmTokenFromEnv reads the FCM access token from the environment on
// every send. Deployments rotate the token out of band.
func fcmTokenFromEnv(ctx context.Context) (string, error) {
	token := strings.TrimSpace(os.Getenv("NOTIFY_FCM_ACCESS_TOKEN"))
	if token == "" {
		return "", fmt.Errorf("NOTIFY_FCM_ACCESS_TOKEN is not set")
	}
	return token, nil
}

// exhaustionAlert summarizes a dead-lettered job for the operator.
// It runs on the worker's async alert path and must never panic.
func exhaustionAlert(alerts *notifier.Notifier) queue.AlertFunc {
	return func(ctx context.Context, job *queue.Job, meta *queue.FailureMeta) {
		if job == nil {
			return
		}
		alertContext := map[string]string{
			"jobId":   job.ID,
			"jobKind": job.Kind,
			"queue":   job.Queue,
			"attempt": fmt.Sprintf("%d", job.Attempt+1),
		}
		if meta != nil {
			alertContext["errorCode"] = meta.Code
			alertContext["error"] = notifier.TruncateErrorContext(meta.Message)
		}
		alerts.AdminAlert(ctx, notifier.PolicyJobExhausted, notifier.Message{
			Title: "Notification job exhausted retries",
			Body:  fmt.Sprintf("Job %s (%s) on queue %s moved to the dead-letter queue", job.ID, job.Kind, job.Queue),
		}, alertContext)
	}
}
