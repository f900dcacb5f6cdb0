package config

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Port         string        `env:"BACKEND_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"IDLE_TIMEOUT" envDefault:"60s"`
	InstanceName string        `env:"INSTANCE_NAME" envDefault:"speakceo-1"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	Domain       string        `env:"DOMAIN" envDefault:"localhost:8080"`
	StaticDir    string        `env:"STATIC_DIR" envDefault:"./web/static"`

	// Dev relaxes secret requirements so the app runs with zero setup.
	Dev bool `env:"DEV" envDefault:"true"`

	SessionSecret   string        `env:"SESSION_SECRET"`
	SessionDuration time.Duration `env:"SESSION_DURATION" envDefault:"24h"`
	SecureCookies   bool          `env:"SECURE_COOKIES" envDefault:"false"`
	CSRFKey         string        `env:"CSRF_KEY"`

	// TrustedProxies lists addresses or CIDRs whose X-Forwarded-For is honoured.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	LeadRateLimit float64 `env:"LEAD_RATE_LIMIT" envDefault:"0.5"`
	LeadRateBurst int     `env:"LEAD_RATE_BURST" envDefault:"5"`

	Database Database `envPrefix:"DB_"`
	Accounts Accounts `envPrefix:"ACCOUNTS_"`
	Admin    Admin    `envPrefix:"ADMIN_"`
	Redis    Redis    `envPrefix:"REDIS_"`
	Sheets   Sheets   `envPrefix:"SHEETS_"`
	Cloud    Cloud    `envPrefix:"CLOUD_"`
	OpenAI   OpenAI   `envPrefix:"OPENAI_"`
	TTS      TTS      `envPrefix:"TTS_"`
	Whisper  Whisper  `envPrefix:"WHISPER_"`
}

type Database struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"./data/speakceo.db"`
	PostgresURL string `env:"POSTGRES_URL"`
}

// Accounts describes the pre-assigned student ID series, e.g. SpeakCEO001..SpeakCEO300.
type Accounts struct {
	Prefix string `env:"PREFIX" envDefault:"SpeakCEO"`
	Width  int    `env:"WIDTH" envDefault:"3"`
	Count  int    `env:"COUNT" envDefault:"300"`
}

type Admin struct {
	SecretKey     string        `env:"SECRET_KEY"`
	GoogleKey     string        `env:"GOOGLE_KEY"`
	GoogleSecret  string        `env:"GOOGLE_SECRET"`
	AllowedEmails []string      `env:"ALLOWED_EMAILS" envSeparator:","`
	MaxAttempts   int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	LockoutWindow time.Duration `env:"LOCKOUT_WINDOW" envDefault:"15m"`
}

// Redis is optional; an empty Addr keeps attempt counters in memory.
type Redis struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type Sheets struct {
	WebAppURL   string `env:"WEBAPP_URL"`
	FormURL     string `env:"FORM_URL"`
	FieldName   string `env:"FIELD_NAME"`
	FieldEmail  string `env:"FIELD_EMAIL"`
	FieldPhone  string `env:"FIELD_PHONE"`
	FieldMsg    string `env:"FIELD_MESSAGE"`
	FieldSource string `env:"FIELD_SOURCE"`
	FieldCTA    string `env:"FIELD_CTA_TYPE"`
	MaxAttempts int    `env:"MAX_ATTEMPTS" envDefault:"3"`
	RetryMax    int    `env:"RETRY_MAX" envDefault:"1"`
}

type Cloud struct {
	BaseURL      string        `env:"BASE_URL" envDefault:"https://api.jsonbin.io/v3/b"`
	BinID        string        `env:"BIN_ID"`
	APIKey       string        `env:"API_KEY"`
	SyncInterval time.Duration `env:"SYNC_INTERVAL" envDefault:"5m"`
}

type OpenAI struct {
	APIKey      string  `env:"KEY"`
	BaseURL     string  `env:"BASE_URL"`
	Model       string  `env:"MODEL" envDefault:"gpt-3.5-turbo"`
	MaxTokens   int64   `env:"MAX_TOKENS" envDefault:"300"`
	Temperature float64 `env:"TEMPERATURE" envDefault:"0.7"`
}

type TTS struct {
	BaseURL string `env:"BASE_URL"`
	APIKey  string `env:"API_KEY"`
	Model   string `env:"MODEL" envDefault:"tts-1"`
	Voice   string `env:"VOICE" envDefault:"alloy"`
}

// Whisper selects the speech-to-text backend. Provider "openai" covers any
// OpenAI-compatible /audio/transcriptions API, "docker" a whisper-asr container.
type Whisper struct {
	URL      string `env:"URL"`
	Provider string `env:"PROVIDER" envDefault:"openai"`
	APIKey   string `env:"KEY"`
	Model    string `env:"MODEL" envDefault:"whisper-1"`
	Language string `env:"LANGUAGE" envDefault:"en"`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "sqlite":
		if strings.TrimSpace(c.Database.SQLitePath) == "" {
			return fmt.Errorf("DB_SQLITE_PATH is required for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.Database.PostgresURL) == "" {
			return fmt.Errorf("DB_POSTGRES_URL is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}

	if c.Accounts.Count <= 0 {
		return fmt.Errorf("ACCOUNTS_COUNT must be positive")
	}
	if c.Accounts.Width <= 0 || len(fmt.Sprint(c.Accounts.Count)) > c.Accounts.Width {
		return fmt.Errorf("ACCOUNTS_WIDTH %d cannot hold %d accounts", c.Accounts.Width, c.Accounts.Count)
	}
	if c.Admin.MaxAttempts <= 0 {
		return fmt.Errorf("ADMIN_MAX_ATTEMPTS must be positive")
	}
	if c.Cloud.SyncInterval <= 0 {
		return fmt.Errorf("CLOUD_SYNC_INTERVAL must be positive")
	}
	for _, p := range c.TrustedProxies {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES: invalid address %q", p)
		}
	}
	switch c.Whisper.Provider {
	case "", "openai", "docker":
	default:
		return fmt.Errorf("unknown WHISPER_PROVIDER %q", c.Whisper.Provider)
	}
	if !c.Dev && len(c.SessionSecret) < 32 {
		return fmt.Errorf("SESSION_SECRET must be at least 32 bytes outside dev mode")
	}
	return nil
}

// SessionKey returns the cookie signing key. Dev mode falls back to a fixed key.
func (c Config) SessionKey() []byte {
	if c.SessionSecret == "" {
		return []byte("speakceo-dev-session-key-change-me!!")
	}
	return []byte(c.SessionSecret)
}

// GoogleCallbackURL mirrors the OAuth callback route registered by the server.
func (c Config) GoogleCallbackURL() string {
	scheme := "http"
	if c.SecureCookies {
		scheme = "https"
	}
	return scheme + "://" + c.Domain + "/auth/google/callback"
}
