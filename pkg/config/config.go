// Package config loads service configuration with precedence
// ENV > file > defaults.
package config

import "time"

// Config is the root configuration for the notification service.
type Config struct {
	Service  ServiceConfig  `mapstructure:"service"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Backlog  BacklogConfig  `mapstructure:"backlog"`
	Replay   ReplayConfig   `mapstructure:"replay"`
	SLA      SLAConfig      `mapstructure:"sla"`
	Admin    AdminConfig    `mapstructure:"admin"`
	WhatsApp WhatsAppConfig `mapstructure:"whatsapp"`
	Twilio   TwilioConfig   `mapstructure:"twilio"`
	FCM      FCMConfig      `mapstructure:"fcm"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// LogConfig configures the structured logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// HTTPConfig configures the operator API server.
type HTTPConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// RedisConfig configures the queue backend.
type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

// DatabaseConfig configures the Postgres connection used by the audit,
// work-item, notification and credential stores. Empty DSN disables
// the Postgres-backed stores.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// QueueConfig configures the live notification queue and its workers.
type QueueConfig struct {
	Name           string        `mapstructure:"name"`
	Concurrency    int           `mapstructure:"concurrency"`
	LeaseTTL       time.Duration `mapstructure:"lease_ttl"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// BreakerConfig configures the per-queue-per-kind circuit breaker.
type BreakerConfig struct {
	Threshold int           `mapstructure:"threshold"`
	Cooldown  time.Duration `mapstructure:"cooldown"`
}

// BacklogConfig configures the queue-depth monitor.
type BacklogConfig struct {
	Threshold      int64         `mapstructure:"threshold"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
	SampleInterval time.Duration `mapstructure:"sample_interval"`
}

// ReplayConfig configures DLQ replay auditing.
type ReplayConfig struct {
	AuditFilePath string `mapstructure:"audit_file_path"`
}

// SLAConfig configures the deadline monitor.
type SLAConfig struct {
	Enabled             bool          `mapstructure:"enabled"`
	ScanInterval        time.Duration `mapstructure:"scan_interval"`
	WarningThreshold    float64       `mapstructure:"warning_threshold"`
	SuppressionCooldown time.Duration `mapstructure:"suppression_cooldown"`
	BatchSize           int           `mapstructure:"batch_size"`
}

// AdminConfig identifies the operator who receives reliability alerts.
// All fields empty means alerts are logged only.
type AdminConfig struct {
	Phone     string `mapstructure:"phone"`
	PushToken string `mapstructure:"push_token"`
	Email     string `mapstructure:"email"`
	UserID    string `mapstructure:"user_id"`
}

// WhatsAppConfig configures the Cloud API client.
type WhatsAppConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// TwilioConfig configures the SMS client.
type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`
}

// FCMConfig configures the push client.
type FCMConfig struct {
	ProjectID string `mapstructure:"project_id"`
}

// SMTPConfig configures the email relay.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Service: ServiceConfig{
			Name:        "notifyd",
			Environment: "development",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Redis: RedisConfig{
			URL:    "redis://localhost:6379/0",
			Prefix: "notify:jobs",
		},
		Queue: QueueConfig{
			Name:           "notifications",
			Concurrency:    4,
			LeaseTTL:       30 * time.Second,
			AttemptTimeout: 30 * time.Second,
			MaxBackoff:     5 * time.Minute,
		},
		Breaker: BreakerConfig{
			Threshold: 5,
			Cooldown:  60 * time.Second,
		},
		Backlog: BacklogConfig{
			Threshold:      1000,
			Cooldown:       5 * time.Minute,
			SampleInterval: 30 * time.Second,
		},
		Replay: ReplayConfig{
			AuditFilePath: "dlq-replay-audit.log",
		},
		SLA: SLAConfig{
			Enabled:             true,
			ScanInterval:        60 * time.Second,
			WarningThreshold:    0.7,
			SuppressionCooldown: 10 * time.Minute,
			BatchSize:           500,
		},
	}
}
