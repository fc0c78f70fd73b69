package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Loader loads and validates configuration.
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader on viper.
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a loader. configFile may be empty; envPrefix
// is the environment variable prefix (e.g. "NOTIFY").
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: strings.TrimSpace(configFile),
		envPrefix:  strings.TrimSpace(envPrefix),
	}
}

// Load loads configuration with precedence: ENV > file > defaults.
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func (l *ViperLoader) setDefaults(v *viper.Viper, defaults Config) {
	v.SetDefault("service.name", defaults.Service.Name)
	v.SetDefault("service.environment", defaults.Service.Environment)

	v.SetDefault("log.level", defaults.Log.Level)
	v.SetDefault("log.format", defaults.Log.Format)

	v.SetDefault("http.port", defaults.HTTP.Port)
	v.SetDefault("http.read_timeout", defaults.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", defaults.HTTP.WriteTimeout)

	v.SetDefault("redis.url", defaults.Redis.URL)
	v.SetDefault("redis.prefix", defaults.Redis.Prefix)

	v.SetDefault("database.dsn", defaults.Database.DSN)

	v.SetDefault("queue.name", defaults.Queue.Name)
	v.SetDefault("queue.concurrency", defaults.Queue.Concurrency)
	v.SetDefault("queue.lease_ttl", defaults.Queue.LeaseTTL)
	v.SetDefault("queue.attempt_timeout", defaults.Queue.AttemptTimeout)
	v.SetDefault("queue.max_backoff", defaults.Queue.MaxBackoff)

	v.SetDefault("breaker.threshold", defaults.Breaker.Threshold)
	v.SetDefault("breaker.cooldown", defaults.Breaker.Cooldown)

	v.SetDefault("backlog.threshold", defaults.Backlog.Threshold)
	v.SetDefault("backlog.cooldown", defaults.Backlog.Cooldown)
	v.SetDefault("backlog.sample_interval", defaults.Backlog.SampleInterval)

	v.SetDefault("replay.audit_file_path", defaults.Replay.AuditFilePath)

	v.SetDefault("sla.enabled", defaults.SLA.Enabled)
	v.SetDefault("sla.scan_interval", defaults.SLA.ScanInterval)
	v.SetDefault("sla.warning_threshold", defaults.SLA.WarningThreshold)
	v.SetDefault("sla.suppression_cooldown", defaults.SLA.SuppressionCooldown)
	v.SetDefault("sla.batch_size", defaults.SLA.BatchSize)
}

func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	v.BindEnv("log.level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("log.format", l.prefixedEnv("LOG_FORMAT"))

	v.BindEnv("http.port", l.prefixedEnv("HTTP_PORT"))
	v.BindEnv("http.read_timeout", l.prefixedEnv("HTTP_READ_TIMEOUT"))
	v.BindEnv("http.write_timeout", l.prefixedEnv("HTTP_WRITE_TIMEOUT"))

	v.BindEnv("redis.url", l.prefixedEnv("REDIS_URL"))
	v.BindEnv("redis.prefix", l.prefixedEnv("REDIS_PREFIX"))

	v.BindEnv("database.dsn", l.prefixedEnv("DATABASE_DSN"))

	v.BindEnv("queue.name", l.prefixedEnv("QUEUE_NAME"))
	v.BindEnv("queue.concurrency", l.prefixedEnv("QUEUE_CONCURRENCY"))
	v.BindEnv("queue.lease_ttl", l.prefixedEnv("QUEUE_LEASE_TTL"))
	v.BindEnv("queue.attempt_timeout", l.prefixedEnv("QUEUE_ATTEMPT_TIMEOUT"))
	v.BindEnv("queue.max_backoff", l.prefixedEnv("QUEUE_MAX_BACKOFF"))

	v.BindEnv("breaker.threshold", l.prefixedEnv("BREAKER_THRESHOLD"))
	v.BindEnv("breaker.cooldown", l.prefixedEnv("BREAKER_COOLDOWN"))

	v.BindEnv("backlog.threshold", l.prefixedEnv("BACKLOG_THRESHOLD"))
	v.BindEnv("backlog.cooldown", l.prefixedEnv("BACKLOG_COOLDOWN"))
	v.BindEnv("backlog.sample_interval", l.prefixedEnv("BACKLOG_SAMPLE_INTERVAL"))

	v.BindEnv("replay.audit_file_path", l.prefixedEnv("REPLAY_AUDIT_FILE_PATH"))

	v.BindEnv("sla.enabled", l.prefixedEnv("SLA_ENABLED"))
	v.BindEnv("sla.scan_interval", l.prefixedEnv("SLA_SCAN_INTERVAL"))
	v.BindEnv("sla.warning_threshold", l.prefixedEnv("SLA_WARNING_THRESHOLD"))
	v.BindEnv("sla.suppression_cooldown", l.prefixedEnv("SLA_SUPPRESSION_COOLDOWN"))
	v.BindEnv("sla.batch_size", l.prefixedEnv("SLA_BATCH_SIZE"))

	v.BindEnv("admin.phone", l.prefixedEnv("ADMIN_PHONE"))
	v.BindEnv("admin.push_token", l.prefixedEnv("ADMIN_PUSH_TOKEN"))
	v.BindEnv("admin.email", l.prefixedEnv("ADMIN_EMAIL"))
	v.BindEnv("admin.user_id", l.prefixedEnv("ADMIN_USER_ID"))

	v.BindEnv("whatsapp.base_url", l.prefixedEnv("WHATSAPP_BASE_URL"))

	v.BindEnv("twilio.account_sid", l.prefixedEnv("TWILIO_ACCOUNT_SID"))
	v.BindEnv("twilio.auth_token", l.prefixedEnv("TWILIO_AUTH_TOKEN"))
	v.BindEnv("twilio.from_number", l.prefixedEnv("TWILIO_FROM_NUMBER"))

	v.BindEnv("fcm.project_id", l.prefixedEnv("FCM_PROJECT_ID"))

	v.BindEnv("smtp.host", l.prefixedEnv("SMTP_HOST"))
	v.BindEnv("smtp.port", l.prefixedEnv("SMTP_PORT"))
	v.BindEnv("smtp.username", l.prefixedEnv("SMTP_USERNAME"))
	v.BindEnv("smtp.password", l.prefixedEnv("SMTP_PASSWORD"))
	v.BindEnv("smtp.from", l.prefixedEnv("SMTP_FROM"))
}

func (l *ViperLoader) prefixedEnv(name string) string {
	if l.envPrefix == "" {
		return name
	}
	return l.envPrefix + "_" + name
}

// Validate checks cross-field constraints.
func (l *ViperLoader) Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if strings.TrimSpace(cfg.Queue.Name) == "" {
		return fmt.Errorf("queue.name is required")
	}
	if strings.TrimSpace(cfg.Redis.URL) == "" {
		return fmt.Errorf("redis.url is required")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535")
	}
	if cfg.Queue.Concurrency <= 0 {
		return fmt.Errorf("queue.concurrency must be positive")
	}
	if cfg.SLA.WarningThreshold <= 0 || cfg.SLA.WarningThreshold >= 1 {
		return fmt.Errorf("sla.warning_threshold must be between 0 and 1 exclusive")
	}
	if strings.TrimSpace(cfg.Replay.AuditFilePath) == "" {
		return fmt.Errorf("replay.audit_file_path is required")
	}
	return nil
}
