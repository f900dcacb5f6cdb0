package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"SpeakCEO/internal/attempts"
	"SpeakCEO/internal/config"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	log "github.com/sirupsen/logrus"
)

var (
	ErrLockedOut    = errors.New("too many failed attempts")
	ErrInvalidKey   = errors.New("invalid admin key")
	ErrGateDisabled = errors.New("admin key login is not configured")
)

const (
	MethodKey    = "key"
	MethodGoogle = "google"
)

// AdminGate checks the shared admin key and locks a client out after
// repeated failures.
type AdminGate struct {
	secret  string
	limiter attempts.Limiter
}

func NewAdminGate(secret string, limiter attempts.Limiter) *AdminGate {
	return &AdminGate{secret: secret, limiter: limiter}
}

// Verify compares key with the configured secret. client identifies the
// caller for the attempt counter, usually the remote IP.
func (g *AdminGate) Verify(ctx context.Context, client, key string) error {
	if g.secret == "" {
		return ErrGateDisabled
	}
	limitKey := "admin:" + client
	ok, err := g.limiter.Allowed(ctx, limitKey)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLockedOut
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(key)), []byte(g.secret)) == 1 {
		return g.limiter.Reset(ctx, limitKey)
	}

	n, err := g.limiter.Fail(ctx, limitKey)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"client": client, "failures": n}).Warn("admin key rejected")
	if n >= g.limiter.Max() {
		return ErrLockedOut
	}
	return ErrInvalidKey
}

// SetupGoogle registers the Google provider for admin sign-in. It returns
// false when no OAuth credentials are configured.
func SetupGoogle(cfg config.Config, store sessions.Store) bool {
	if cfg.Admin.GoogleKey == "" || cfg.Admin.GoogleSecret == "" {
		return false
	}
	gothic.Store = store
	goth.UseProviders(google.New(cfg.Admin.GoogleKey, cfg.Admin.GoogleSecret, cfg.GoogleCallbackURL(), "email", "profile"))
	log.Info("google admin sign-in enabled")
	return true
}

// EmailAllowed reports whether email is on the admin allow list.
func EmailAllowed(allowed []string, email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	for _, a := range allowed {
		if strings.ToLower(strings.TrimSpace(a)) == email {
			return true
		}
	}
	return false
}
