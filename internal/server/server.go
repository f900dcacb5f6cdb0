package server

import (
	"context"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"SpeakCEO/internal/config"
	"SpeakCEO/internal/handlers/admin"
	"SpeakCEO/internal/handlers/ai"
	appAuth "SpeakCEO/internal/handlers/auth"
	"SpeakCEO/internal/handlers/health"
	"SpeakCEO/internal/handlers/home"
	"SpeakCEO/internal/handlers/landing"
	"SpeakCEO/internal/handlers/leads"
	"SpeakCEO/internal/middleware"
	"SpeakCEO/internal/services"
	"SpeakCEO/internal/sheets"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	shutdownTimeout     = 10 * time.Second
	housekeepingEvery   = 10 * time.Minute
	rateLimiterIdleTime = time.Hour
)

type Server struct {
	config      config.Config
	services    *services.Services
	leadLimiter *middleware.IPRateLimiter
	proxies     []netip.Prefix
	health      *health.Service
	authHandler *appAuth.AuthHandler
	home        *home.Handler
	leads       *leads.Handler
	admin       *admin.Handler
	ai          *ai.Handler
}

func New(cfg config.Config, svc *services.Services) *Server {
	var redisPing health.Pinger
	if rc := svc.Redis(); rc != nil {
		redisPing = health.PingFunc(func(ctx context.Context) error { return rc.Ping(ctx).Err() })
	}
	var pending health.PendingCounter
	if svc.Sheets.Enabled() {
		pending = svc.Sheets
	}

	track := ai.TrackerFunc(func(r *http.Request, tool string) {
		st, ok := svc.Sessions.Student(r)
		if !ok {
			return
		}
		if err := svc.Accounts.TrackTool(r.Context(), st.StudentID, tool); err != nil {
			log.WithError(err).Warn("track tool usage")
		}
	})

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		log.WithError(err).Warn("ignoring TRUSTED_PROXIES")
		proxies = nil
	}

	return &Server{
		config:      cfg,
		proxies:     proxies,
		services:    svc,
		leadLimiter: middleware.NewIPRateLimiter(cfg.LeadRateLimit, cfg.LeadRateBurst),
		health:      health.NewService(svc.Store, redisPing, pending),
		authHandler: appAuth.NewAuthHandler(svc.Accounts, svc.Sessions, svc.AdminGate, svc.Limiter, svc.GoogleEnabled, cfg.Admin.AllowedEmails),
		home:        home.NewHandler(svc.Accounts, svc.Sessions, svc.Coach, svc.TTSService, svc.Transcriber),
		leads:       leads.NewHandler(svc.Leads),
		admin:       admin.NewHandler(svc.Store, svc.Leads, svc.Accounts, svc.Sheets, svc.Cloud, svc.Sessions),
		ai:          ai.NewHandler(svc.Coach, track),
	}
}

func (s *Server) Handler() http.Handler {
	r := mux.NewRouter().UseEncodedPath()
	r.Use(mux.MiddlewareFunc(middleware.RealIP(s.proxies)))
	r.Use(middleware.Recover, middleware.Logging)
	r.Use(mux.MiddlewareFunc(middleware.CSRF(s.config.CSRFKey, s.config.SecureCookies)))

	student := func(h http.HandlerFunc) http.Handler { return middleware.RequireStudent(s.services.Sessions)(h) }
	adminOnly := func(h http.HandlerFunc) http.Handler { return middleware.RequireAdmin(s.services.Sessions)(h) }
	limited := func(h http.HandlerFunc) http.Handler { return middleware.RateLimit(s.leadLimiter)(h) }

	// Static files
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.Dir(s.config.StaticDir))))

	r.HandleFunc("/health", s.health.Handler).Methods(http.MethodGet)
	r.HandleFunc("/", landing.Handler).Methods(http.MethodGet)

	// Lead capture
	r.Handle("/leads/{kind}", limited(s.leads.Form)).Methods(http.MethodPost)
	r.Handle("/api/leads", limited(s.leads.API)).Methods(http.MethodPost)

	// Student authentication
	r.HandleFunc("/login", s.authHandler.LoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", s.authHandler.Login).Methods(http.MethodPost)
	r.Handle("/welcome", student(s.authHandler.WelcomePage)).Methods(http.MethodGet)
	r.Handle("/welcome", student(s.authHandler.Welcome)).Methods(http.MethodPost)
	r.HandleFunc("/logout", s.authHandler.Logout).Methods(http.MethodPost)

	// Admin authentication
	r.HandleFunc("/admin/login", s.authHandler.AdminLoginPage).Methods(http.MethodGet)
	r.HandleFunc("/admin/login", s.authHandler.AdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/admin/logout", s.authHandler.AdminLogout).Methods(http.MethodPost)
	r.HandleFunc("/auth/{provider}", s.authHandler.BeginAuthHandler).Methods(http.MethodGet)
	r.HandleFunc("/auth/{provider}/callback", s.authHandler.AuthCallbackHandler).Methods(http.MethodGet)

	// Student dashboard
	r.Handle("/dashboard", student(s.home.Dashboard)).Methods(http.MethodGet)
	r.Handle("/dashboard/ask", student(s.home.Ask)).Methods(http.MethodPost)
	r.Handle("/api/account", student(s.home.Account)).Methods(http.MethodGet)
	r.Handle("/api/account/data", student(s.home.GetData)).Methods(http.MethodGet)
	r.Handle("/api/account/data", student(s.home.SaveData)).Methods(http.MethodPut)
	r.Handle("/api/account/data", student(s.home.ClearData)).Methods(http.MethodDelete)
	r.Handle("/api/account/progress", student(s.home.Progress)).Methods(http.MethodPut)
	r.Handle("/api/tts", student(s.home.Speak)).Methods(http.MethodPost)
	r.Handle("/api/transcribe", student(s.home.Transcribe)).Methods(http.MethodPost)

	// AI tools
	r.Handle("/api/ai/tools", student(s.ai.Tools)).Methods(http.MethodGet)
	r.Handle("/api/ai/ask", student(s.ai.Ask)).Methods(http.MethodPost)
	r.Handle("/api/ai/brand", student(s.ai.Brand)).Methods(http.MethodPost)
	r.Handle("/api/ai/business-model", student(s.ai.BusinessModel)).Methods(http.MethodPost)

	// Admin dashboard
	r.Handle("/admin", adminOnly(s.admin.Dashboard)).Methods(http.MethodGet)
	r.Handle("/admin/leads/{id}/status", adminOnly(s.admin.UpdateStatus)).Methods(http.MethodPost)
	r.Handle("/admin/leads/{id}/notes", adminOnly(s.admin.AddNotes)).Methods(http.MethodPost)
	r.Handle("/admin/leads/{id}/follow-up", adminOnly(s.admin.SetFollowUp)).Methods(http.MethodPost)
	r.Handle("/admin/export/leads.csv", adminOnly(s.admin.ExportCSV)).Methods(http.MethodGet)
	r.Handle("/admin/export/leads-detailed.csv", adminOnly(s.admin.ExportDetailedCSV)).Methods(http.MethodGet)
	r.Handle("/admin/export/backup.json", adminOnly(s.admin.ExportBackup)).Methods(http.MethodGet)
	r.Handle("/admin/import", adminOnly(s.admin.Import)).Methods(http.MethodPost)
	r.Handle("/admin/sync/sheets", adminOnly(s.admin.SyncSheets)).Methods(http.MethodPost)
	r.Handle("/admin/sync/cloud", adminOnly(s.admin.SyncCloud)).Methods(http.MethodPost)
	r.Handle("/admin/accounts/reset", adminOnly(s.admin.ResetAccounts)).Methods(http.MethodPost)
	r.Handle("/api/admin/leads", adminOnly(s.admin.ListLeads)).Methods(http.MethodGet)
	r.Handle("/api/admin/leads/{id}", adminOnly(s.admin.PatchLead)).Methods(http.MethodPatch)
	r.Handle("/api/admin/analytics", adminOnly(s.admin.Analytics)).Methods(http.MethodGet)

	return r
}

// Run serves HTTP and the background workers until ctx is cancelled or one
// of them fails.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("Serving on port %s...", s.config.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return s.services.Cloud.AutoSync(ctx, s.config.Cloud.SyncInterval)
	})
	g.Go(func() error {
		return s.housekeeping(ctx)
	})
	return g.Wait()
}

// housekeeping retries queued spreadsheet rows and forgets idle rate limiter entries.
func (s *Server) housekeeping(ctx context.Context) error {
	ticker := time.NewTicker(housekeepingEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		if n := s.leadLimiter.Prune(rateLimiterIdleTime); n > 0 {
			log.WithField("clients", n).Debug("pruned rate limiter")
		}
		if _, err := s.services.Sheets.SyncPending(ctx); err != nil && !errors.Is(err, sheets.ErrNotConfigured) {
			log.WithError(err).Warn("pending spreadsheet sync failed")
		}
	}
}
