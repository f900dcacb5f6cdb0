package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"SpeakCEO/internal/accounts"
	"SpeakCEO/internal/attempts"
	appauth "SpeakCEO/internal/auth"
	"SpeakCEO/internal/config"
	"SpeakCEO/internal/db"
	"SpeakCEO/internal/middleware"

	"github.com/gorilla/mux"
)

const trustedProxy = "192.0.2.200"

type client struct {
	t       *testing.T
	h       http.Handler
	ip      string
	fwd     string
	cookies map[string]*http.Cookie
}

func (c *client) do(method, path string, form url.Values) *httptest.ResponseRecorder {
	c.t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.RemoteAddr = c.ip + ":4000"
	if c.fwd != "" {
		req.Header.Set("X-Forwarded-For", c.fwd)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		c.cookies[ck.Name] = ck
	}
	return rec
}

func setup(t *testing.T) (func(ip string) *client, db.Store) {
	t.Helper()
	store, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	acc := accounts.NewService(store, accounts.NewScheme(config.Accounts{Prefix: "SpeakCEO", Width: 3, Count: 10}))
	sessions := appauth.NewSessions(config.Config{SessionDuration: time.Hour})
	limiter := attempts.NewMemory(3, time.Minute)
	gate := appauth.NewAdminGate("s3cret", limiter)
	h := NewAuthHandler(acc, sessions, gate, limiter, false, nil)

	student := middleware.RequireStudent(sessions)
	r := mux.NewRouter()
	r.HandleFunc("/login", h.LoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.Handle("/welcome", student(http.HandlerFunc(h.WelcomePage))).Methods(http.MethodGet)
	r.Handle("/welcome", student(http.HandlerFunc(h.Welcome))).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodPost)
	r.HandleFunc("/admin/login", h.AdminLogin).Methods(http.MethodPost)
	r.HandleFunc("/auth/{provider}", h.BeginAuthHandler)

	proxies, err := middleware.ParseTrustedProxies([]string{trustedProxy})
	if err != nil {
		t.Fatal(err)
	}
	handler := middleware.RealIP(proxies)(r)

	return func(ip string) *client {
		return &client{t: t, h: handler, ip: ip, cookies: map[string]*http.Cookie{}}
	}, store
}

func TestStudentLoginFlow(t *testing.T) {
	newClient, store := setup(t)
	c := newClient("192.0.2.1")

	if rec := c.do(http.MethodPost, "/login", url.Values{"student_id": {"student-1"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("bad format: %d", rec.Code)
	}
	if rec := c.do(http.MethodPost, "/login", url.Values{"student_id": {"SpeakCEO011"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("out of range: %d", rec.Code)
	}

	rec := c.do(http.MethodPost, "/login", url.Values{"student_id": {" SpeakCEO007 "}})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/welcome" {
		t.Fatalf("first login: %d %s", rec.Code, rec.Header().Get("Location"))
	}

	if rec := c.do(http.MethodPost, "/welcome", url.Values{"name": {" A "}}); rec.Code != http.StatusBadRequest {
		t.Errorf("short name: %d", rec.Code)
	}
	rec = c.do(http.MethodPost, "/welcome", url.Values{"name": {"Ana"}})
	if rec.Header().Get("Location") != "/dashboard" {
		t.Fatalf("welcome: %d %s", rec.Code, rec.Header().Get("Location"))
	}
	acc, err := store.GetAccount(context.Background(), "SpeakCEO007")
	if err != nil || acc.Name() != "Ana" || acc.LastLogin == nil {
		t.Fatalf("account = %+v, %v", acc, err)
	}

	if rec := c.do(http.MethodGet, "/login", nil); rec.Header().Get("Location") != "/dashboard" {
		t.Errorf("logged-in login page: %d", rec.Code)
	}

	c.do(http.MethodPost, "/logout", url.Values{})
	rec = c.do(http.MethodPost, "/login", url.Values{"student_id": {"SpeakCEO007"}})
	if rec.Header().Get("Location") != "/dashboard" {
		t.Errorf("returning login: %s", rec.Header().Get("Location"))
	}
}

func TestWelcomeRequiresSession(t *testing.T) {
	newClient, _ := setup(t)
	if rec := newClient("192.0.2.2").do(http.MethodGet, "/welcome", nil); rec.Header().Get("Location") != "/login" {
		t.Errorf("welcome without session: %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestStudentLoginLockout(t *testing.T) {
	newClient, _ := setup(t)
	c := newClient("192.0.2.3")
	for i := 0; i < 3; i++ {
		c.do(http.MethodPost, "/login", url.Values{"student_id": {"nope"}})
	}
	if rec := c.do(http.MethodPost, "/login", url.Values{"student_id": {"SpeakCEO001"}}); rec.Code != http.StatusTooManyRequests {
		t.Errorf("locked client: %d", rec.Code)
	}
}

func TestAdminLogin(t *testing.T) {
	newClient, _ := setup(t)
	c := newClient("192.0.2.4")

	codes := []int{}
	for i := 0; i < 4; i++ {
		codes = append(codes, c.do(http.MethodPost, "/admin/login", url.Values{"key": {"guess"}}).Code)
	}
	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
	// Even the right key is refused while locked out.
	if rec := c.do(http.MethodPost, "/admin/login", url.Values{"key": {"s3cret"}}); rec.Code != http.StatusTooManyRequests {
		t.Errorf("locked right key: %d", rec.Code)
	}

	other := newClient("192.0.2.5")
	rec := other.do(http.MethodPost, "/admin/login", url.Values{"key": {"s3cret"}})
	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/admin" {
		t.Errorf("admin login: %d %s", rec.Code, rec.Header().Get("Location"))
	}
}

func TestAdminLockoutIgnoresForwardedHeader(t *testing.T) {
	newClient, _ := setup(t)
	c := newClient("198.51.100.7")

	var codes []int
	for i := 0; i < 10; i++ {
		c.fwd = fmt.Sprintf("10.0.0.%d", i)
		codes = append(codes, c.do(http.MethodPost, "/admin/login", url.Values{"key": {"guess"}}).Code)
	}
	for i, code := range codes {
		want := http.StatusUnauthorized
		if i >= 2 {
			want = http.StatusTooManyRequests
		}
		if code != want {
			t.Fatalf("codes = %v", codes)
		}
	}
}

func TestAdminLockoutBehindTrustedProxy(t *testing.T) {
	newClient, _ := setup(t)
	attacker := newClient(trustedProxy)
	attacker.fwd = "203.0.113.1"
	for i := 0; i < 3; i++ {
		attacker.do(http.MethodPost, "/admin/login", url.Values{"key": {"guess"}})
	}
	if rec := attacker.do(http.MethodPost, "/admin/login", url.Values{"key": {"s3cret"}}); rec.Code != http.StatusTooManyRequests {
		t.Errorf("locked client behind proxy: %d", rec.Code)
	}

	admin := newClient(trustedProxy)
	admin.fwd = "203.0.113.2"
	if rec := admin.do(http.MethodPost, "/admin/login", url.Values{"key": {"s3cret"}}); rec.Code != http.StatusSeeOther {
		t.Errorf("other client behind proxy: %d", rec.Code)
	}
}

func TestGoogleDisabled(t *testing.T) {
	newClient, _ := setup(t)
	if rec := newClient("192.0.2.6").do(http.MethodGet, "/auth/google", nil); rec.Code != http.StatusNotFound {
		t.Errorf("begin auth: %d", rec.Code)
	}
}
