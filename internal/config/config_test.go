package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ADMIN_ALLOWED_EMAILS", "a@example.com,b@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if cfg.Accounts.Prefix != "SpeakCEO" || cfg.Accounts.Count != 300 || cfg.Accounts.Width != 3 {
		t.Errorf("Accounts = %+v", cfg.Accounts)
	}
	if cfg.Admin.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", cfg.Admin.MaxAttempts)
	}
	if cfg.Cloud.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", cfg.Cloud.SyncInterval)
	}
	if cfg.Whisper.Provider != "openai" || cfg.Whisper.Model != "whisper-1" {
		t.Errorf("Whisper = %+v", cfg.Whisper)
	}
	if len(cfg.Admin.AllowedEmails) != 2 {
		t.Errorf("AllowedEmails = %v", cfg.Admin.AllowedEmails)
	}
}

func TestValidate(t *testing.T) {
	base := Config{
		Dev:      true,
		Database: Database{Driver: "sqlite", SQLitePath: "x.db"},
		Accounts: Accounts{Prefix: "SpeakCEO", Width: 3, Count: 300},
		Admin:    Admin{MaxAttempts: 3},
		Cloud:    Cloud{SyncInterval: time.Minute},

		TrustedProxies: []string{"10.0.0.0/8", "192.0.2.1"},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }},
		{"postgres without url", func(c *Config) { c.Database.Driver = "postgres" }},
		{"width too small", func(c *Config) { c.Accounts.Count = 1000 }},
		{"zero count", func(c *Config) { c.Accounts.Count = 0 }},
		{"zero sync interval", func(c *Config) { c.Cloud.SyncInterval = 0 }},
		{"negative sync interval", func(c *Config) { c.Cloud.SyncInterval = -time.Second }},
		{"bad trusted proxy", func(c *Config) { c.TrustedProxies = []string{"proxy.local"} }},
		{"unknown whisper provider", func(c *Config) { c.Whisper.Provider = "azure" }},
		{"short secret in prod", func(c *Config) { c.Dev = false; c.SessionSecret = "short" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}
