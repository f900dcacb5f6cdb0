// Package auth holds the cookie sessions for students and admins, the admin
// key gate and the optional Google sign-in for admins.
package auth

import (
	"net/http"
	"time"

	"SpeakCEO/internal/config"
	"SpeakCEO/internal/db"

	"github.com/gorilla/sessions"
)

const (
	sessionName = "speakceo_session"

	keyStudentID   = "student_id"
	keyStudentName = "student_name"
	keyLoginTime   = "login_time"
	keyAdmin       = "is_admin"
	keyAdminMethod = "admin_method"
	keyAdminEmail  = "admin_email"
)

type StudentSession struct {
	StudentID   string
	StudentName string
	LoginTime   time.Time
}

type AdminSession struct {
	Method string
	Email  string
}

type Sessions struct {
	store *sessions.CookieStore
}

func NewSessions(cfg config.Config) *Sessions {
	store := sessions.NewCookieStore(cfg.SessionKey())
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionDuration.Seconds()),
		HttpOnly: true,
		Secure:   cfg.SecureCookies,
	}
	return &Sessions{store: store}
}

// Store exposes the underlying cookie store so gothic can share it.
func (s *Sessions) Store() sessions.Store { return s.store }

func (s *Sessions) session(r *http.Request) *sessions.Session {
	// A tampered or stale cookie yields a fresh session, which is what we want.
	sess, _ := s.store.Get(r, sessionName)
	return sess
}

func (s *Sessions) SaveStudent(w http.ResponseWriter, r *http.Request, acc *db.Account, at time.Time) error {
	sess := s.session(r)
	sess.Values[keyStudentID] = acc.StudentID
	sess.Values[keyStudentName] = acc.Name()
	sess.Values[keyLoginTime] = at.Unix()
	return sess.Save(r, w)
}

func (s *Sessions) Student(r *http.Request) (*StudentSession, bool) {
	sess := s.session(r)
	id, _ := sess.Values[keyStudentID].(string)
	if id == "" {
		return nil, false
	}
	name, _ := sess.Values[keyStudentName].(string)
	unix, _ := sess.Values[keyLoginTime].(int64)
	return &StudentSession{StudentID: id, StudentName: name, LoginTime: time.Unix(unix, 0).UTC()}, true
}

func (s *Sessions) ClearStudent(w http.ResponseWriter, r *http.Request) error {
	sess := s.session(r)
	delete(sess.Values, keyStudentID)
	delete(sess.Values, keyStudentName)
	delete(sess.Values, keyLoginTime)
	return sess.Save(r, w)
}

func (s *Sessions) SaveAdmin(w http.ResponseWriter, r *http.Request, method, email string) error {
	sess := s.session(r)
	sess.Values[keyAdmin] = true
	sess.Values[keyAdminMethod] = method
	sess.Values[keyAdminEmail] = email
	return sess.Save(r, w)
}

func (s *Sessions) Admin(r *http.Request) (*AdminSession, bool) {
	sess := s.session(r)
	if ok, _ := sess.Values[keyAdmin].(bool); !ok {
		return nil, false
	}
	method, _ := sess.Values[keyAdminMethod].(string)
	email, _ := sess.Values[keyAdminEmail].(string)
	return &AdminSession{Method: method, Email: email}, true
}

func (s *Sessions) ClearAdmin(w http.ResponseWriter, r *http.Request) error {
	sess := s.session(r)
	delete(sess.Values, keyAdmin)
	delete(sess.Values, keyAdminMethod)
	delete(sess.Values, keyAdminEmail)
	return sess.Save(r, w)
}
