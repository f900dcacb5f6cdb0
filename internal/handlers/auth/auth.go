package auth

import (
	"errors"
	"net/http"

	"SpeakCEO/internal/accounts"
	"SpeakCEO/internal/attempts"
	appauth "SpeakCEO/internal/auth"
	"SpeakCEO/internal/db"
	"SpeakCEO/internal/middleware"
	"SpeakCEO/internal/web/pages"

	"github.com/markbates/goth/gothic"
	log "github.com/sirupsen/logrus"
)

type AuthHandler struct {
	accounts      *accounts.Service
	sessions      *appauth.Sessions
	gate          *appauth.AdminGate
	limiter       attempts.Limiter
	googleEnabled bool
	allowedEmails []string
}

func NewAuthHandler(acc *accounts.Service, sessions *appauth.Sessions, gate *appauth.AdminGate, limiter attempts.Limiter, googleEnabled bool, allowedEmails []string) *AuthHandler {
	return &AuthHandler{
		accounts:      acc,
		sessions:      sessions,
		gate:          gate,
		limiter:       limiter,
		googleEnabled: googleEnabled,
		allowedEmails: allowedEmails,
	}
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, code int, msg string) {
	pages.Serve(w, r, code, pages.Login(pages.LoginData{
		CSRFToken: middleware.Token(r),
		Error:     msg,
		Example:   h.accounts.Scheme().FormatID(1),
	}))
}

func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.Student(r); ok {
		http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
		return
	}
	h.renderLogin(w, r, http.StatusOK, "")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	client := "login:" + middleware.ClientIP(r)

	if ok, err := h.limiter.Allowed(ctx, client); err != nil {
		log.WithError(err).Error("attempt counter unavailable")
	} else if !ok {
		h.renderLogin(w, r, http.StatusTooManyRequests, "Too many attempts. Please wait a few minutes and try again.")
		return
	}

	res, err := h.accounts.Login(ctx, r.PostFormValue("student_id"))
	switch {
	case errors.Is(err, accounts.ErrInvalidFormat):
		h.limiter.Fail(ctx, client)
		h.renderLogin(w, r, http.StatusBadRequest, "That does not look like a SpeakCEO ID, e.g. "+h.accounts.Scheme().FormatID(1)+".")
		return
	case errors.Is(err, accounts.ErrOutOfRange):
		h.limiter.Fail(ctx, client)
		h.renderLogin(w, r, http.StatusBadRequest, "This SpeakCEO ID does not exist. Please check with your instructor.")
		return
	case err != nil:
		log.WithError(err).Error("student login failed")
		h.renderLogin(w, r, http.StatusInternalServerError, "Login is unavailable right now, please try again.")
		return
	}
	h.limiter.Reset(ctx, client)

	if err := h.sessions.SaveStudent(w, r, res.Account, *res.Account.LastLogin); err != nil {
		log.WithError(err).Error("save student session")
		http.Error(w, "Session creation failed", http.StatusInternalServerError)
		return
	}
	if res.IsFirstTime {
		http.Redirect(w, r, "/welcome", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) WelcomePage(w http.ResponseWriter, r *http.Request) {
	st, _ := h.sessions.Student(r)
	pages.Serve(w, r, http.StatusOK, pages.Welcome(pages.WelcomeData{CSRFToken: middleware.Token(r), StudentID: st.StudentID}))
}

func (h *AuthHandler) Welcome(w http.ResponseWriter, r *http.Request) {
	st, _ := h.sessions.Student(r)
	acc, err := h.accounts.SetStudentName(r.Context(), st.StudentID, r.PostFormValue("name"))
	if err != nil {
		code, msg := http.StatusInternalServerError, "Could not save your name, please try again."
		switch {
		case errors.Is(err, accounts.ErrNameTooShort):
			code, msg = http.StatusBadRequest, "Please enter at least 2 characters."
		case errors.Is(err, db.ErrNotFound):
			h.sessions.ClearStudent(w, r)
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		default:
			log.WithError(err).Error("set student name")
		}
		pages.Serve(w, r, code, pages.Welcome(pages.WelcomeData{CSRFToken: middleware.Token(r), StudentID: st.StudentID, Error: msg}))
		return
	}
	if err := h.sessions.SaveStudent(w, r, acc, st.LoginTime); err != nil {
		log.WithError(err).Error("save student session")
	}
	http.Redirect(w, r, "/dashboard", http.StatusSeeOther)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.ClearStudent(w, r); err != nil {
		log.WithError(err).Warn("clear student session")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) renderAdminLogin(w http.ResponseWriter, r *http.Request, code int, msg string) {
	pages.Serve(w, r, code, pages.AdminLogin(pages.AdminLoginData{
		CSRFToken:     middleware.Token(r),
		Error:         msg,
		GoogleEnabled: h.googleEnabled,
	}))
}

func (h *AuthHandler) AdminLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.sessions.Admin(r); ok {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}
	h.renderAdminLogin(w, r, http.StatusOK, "")
}

func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	err := h.gate.Verify(r.Context(), middleware.ClientIP(r), r.PostFormValue("key"))
	switch {
	case errors.Is(err, appauth.ErrLockedOut):
		h.renderAdminLogin(w, r, http.StatusTooManyRequests, "Too many failed attempts. Try again later.")
		return
	case errors.Is(err, appauth.ErrInvalidKey):
		h.renderAdminLogin(w, r, http.StatusUnauthorized, "Invalid admin key.")
		return
	case errors.Is(err, appauth.ErrGateDisabled):
		h.renderAdminLogin(w, r, http.StatusForbidden, "Admin key login is not configured.")
		return
	case err != nil:
		log.WithError(err).Error("admin gate failed")
		h.renderAdminLogin(w, r, http.StatusInternalServerError, "Admin login is unavailable right now.")
		return
	}
	if err := h.sessions.SaveAdmin(w, r, appauth.MethodKey, ""); err != nil {
		http.Error(w, "Session creation failed", http.StatusInternalServerError)
		return
	}
	log.WithField("client", middleware.ClientIP(r)).Info("admin logged in with key")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}

func (h *AuthHandler) AdminLogout(w http.ResponseWriter, r *http.Request) {
	if adm, ok := h.sessions.Admin(r); ok && adm.Method == appauth.MethodGoogle {
		gothic.Logout(w, r)
	}
	if err := h.sessions.ClearAdmin(w, r); err != nil {
		log.WithError(err).Warn("clear admin session")
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *AuthHandler) BeginAuthHandler(w http.ResponseWriter, r *http.Request) {
	if !h.googleEnabled {
		http.NotFound(w, r)
		return
	}
	gothic.BeginAuthHandler(w, r)
}

func (h *AuthHandler) AuthCallbackHandler(w http.ResponseWriter, r *http.Request) {
	if !h.googleEnabled {
		http.NotFound(w, r)
		return
	}
	user, err := gothic.CompleteUserAuth(w, r)
	if err != nil {
		log.WithError(err).Warn("google sign-in failed")
		h.renderAdminLogin(w, r, http.StatusUnauthorized, "Google sign-in failed.")
		return
	}
	if !appauth.EmailAllowed(h.allowedEmails, user.Email) {
		log.WithField("email", user.Email).Warn("google account is not an admin")
		h.renderAdminLogin(w, r, http.StatusForbidden, "This Google account is not allowed to administer SpeakCEO.")
		return
	}
	if err := h.sessions.SaveAdmin(w, r, appauth.MethodGoogle, user.Email); err != nil {
		http.Error(w, "Session creation failed", http.StatusInternalServerError)
		return
	}
	log.WithField("email", user.Email).Info("admin logged in with google")
	http.Redirect(w, r, "/admin", http.StatusSeeOther)
}
