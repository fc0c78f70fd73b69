package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewViperLoader("", "NOTIFY").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Queue.Name != "notifications" || cfg.Queue.Concurrency != 4 {
		t.Fatalf("unexpected queue defaults: %+v", cfg.Queue)
	}
	if cfg.Redis.URL != "redis://localhost:6379/0" || cfg.Redis.Prefix != "notify:jobs" {
		t.Fatalf("unexpected redis defaults: %+v", cfg.Redis)
	}
	if cfg.Breaker.Threshold != 5 || cfg.Breaker.Cooldown != 60*time.Second {
		t.Fatalf("unexpected breaker defaults: %+v", cfg.Breaker)
	}
	if !cfg.SLA.Enabled || cfg.SLA.WarningThreshold != 0.7 {
		t.Fatalf("unexpected sla defaults: %+v", cfg.SLA)
	}
	if cfg.Replay.AuditFilePath == "" {
		t.Fatal("audit file path default missing")
	}
}

func TestLoad_EnvOverridesFileOverridesDefaults(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "notify.yaml")
	content := []byte("queue:\n  name: file-queue\n  concurrency: 8\nbreaker:\n  threshold: 10\n")
	if err := os.WriteFile(configFile, content, 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	t.Setenv("NOTIFY_QUEUE_NAME", "env-queue")

	cfg, err := NewViperLoader(configFile, "NOTIFY").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Queue.Name != "env-queue" {
		t.Fatalf("env must win over file, got %s", cfg.Queue.Name)
	}
	if cfg.Queue.Concurrency != 8 {
		t.Fatalf("file must win over defaults, got %d", cfg.Queue.Concurrency)
	}
	if cfg.Breaker.Threshold != 10 {
		t.Fatalf("file breaker threshold lost, got %d", cfg.Breaker.Threshold)
	}
	// Untouched keys keep their defaults.
	if cfg.Queue.LeaseTTL != 30*time.Second {
		t.Fatalf("default lease ttl lost, got %s", cfg.Queue.LeaseTTL)
	}
}

func TestLoad_EnvironmentAliasBinding(t *testing.T) {
	t.Setenv("NOTIFY_ENVIRONMENT", "staging")

	cfg, err := NewViperLoader("", "NOTIFY").Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Service.Environment != "staging" {
		t.Fatalf("expected alias env binding, got %s", cfg.Service.Environment)
	}
}

func TestLoad_MissingFileFails(t *testing.T) {
	if _, err := NewViperLoader("/does/not/exist.yaml", "NOTIFY").Load(); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	loader := NewViperLoader("", "NOTIFY")
	valid := DefaultConfig()
	if err := loader.Validate(&valid); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "empty queue name", mutate: func(c *Config) { c.Queue.Name = " " }},
		{name: "empty redis url", mutate: func(c *Config) { c.Redis.URL = "" }},
		{name: "port too low", mutate: func(c *Config) { c.HTTP.Port = 0 }},
		{name: "port too high", mutate: func(c *Config) { c.HTTP.Port = 70000 }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Queue.Concurrency = 0 }},
		{name: "threshold at one", mutate: func(c *Config) { c.SLA.WarningThreshold = 1 }},
		{name: "threshold at zero", mutate: func(c *Config) { c.SLA.WarningThreshold = 0 }},
		{name: "empty audit path", mutate: func(c *Config) { c.Replay.AuditFilePath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := loader.Validate(&cfg); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
