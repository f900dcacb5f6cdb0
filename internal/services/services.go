package services

import (
	"context"
	"fmt"

	"SpeakCEO/internal/accounts"
	"SpeakCEO/internal/aitools"
	"SpeakCEO/internal/attempts"
	"SpeakCEO/internal/auth"
	"SpeakCEO/internal/cloud"
	"SpeakCEO/internal/config"
	"SpeakCEO/internal/db"
	"SpeakCEO/internal/leads"
	"SpeakCEO/internal/openai"
	"SpeakCEO/internal/sheets"
	"SpeakCEO/internal/tts"
	"SpeakCEO/internal/whisper"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

// Services is everything the handlers and CLI commands share.
type Services struct {
	Config        config.Config
	Store         db.Store
	Accounts      *accounts.Service
	Leads         *leads.Service
	Sheets        *sheets.Client
	Cloud         *cloud.Client
	Limiter       attempts.Limiter
	AdminGate     *auth.AdminGate
	Sessions      *auth.Sessions
	GoogleEnabled bool
	Coach         *aitools.Coach
	TTSService    *tts.TTSService
	Transcriber   *whisper.TranscribeService

	redis *redis.Client
}

func New(ctx context.Context, cfg config.Config) (*Services, error) {
	store, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	s := &Services{Config: cfg, Store: store}

	s.Accounts = accounts.NewService(store, accounts.NewScheme(cfg.Accounts))
	if n, err := s.Accounts.EnsureSeeded(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("seed accounts: %w", err)
	} else if n > 0 {
		log.WithField("count", n).Info("seeded student accounts")
	}

	s.Sheets = sheets.New(cfg.Sheets, store)
	s.Leads = leads.NewService(store, s.Sheets)
	s.Cloud = cloud.New(cfg.Cloud, s.Leads)

	if cfg.Redis.Addr != "" {
		s.redis = redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := s.redis.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s.Limiter = attempts.NewRedis(s.redis, "speakceo", cfg.Admin.MaxAttempts, cfg.Admin.LockoutWindow)
	} else {
		s.Limiter = attempts.NewMemory(cfg.Admin.MaxAttempts, cfg.Admin.LockoutWindow)
	}
	s.AdminGate = auth.NewAdminGate(cfg.Admin.SecretKey, s.Limiter)
	if cfg.Admin.SecretKey == "" {
		log.Warn("ADMIN_SECRET_KEY is not set, admin key login is disabled")
	}

	s.Sessions = auth.NewSessions(cfg)
	s.GoogleEnabled = auth.SetupGoogle(cfg, s.Sessions.Store())

	s.Coach = aitools.NewCoach(openai.NewClient(cfg.OpenAI))
	s.TTSService = tts.NewTTSService(cfg.TTS, cfg.OpenAI)
	s.Transcriber = whisper.NewTranscribeService(cfg.Whisper, cfg.OpenAI)

	log.WithFields(log.Fields{
		"driver":  cfg.Database.Driver,
		"sheets":  s.Sheets.Enabled(),
		"cloud":   s.Cloud.Enabled(),
		"coach":   s.Coach.Enabled(),
		"tts":     s.TTSService.Enabled(),
		"whisper": s.Transcriber.Enabled(),
		"redis":   s.redis != nil,
	}).Info("services ready")
	return s, nil
}

// Redis returns the optional Redis client, nil when attempts are kept in memory.
func (s *Services) Redis() *redis.Client { return s.redis }

func (s *Services) Close() error {
	if s.redis != nil {
		s.redis.Close()
	}
	return s.Store.Close()
}
