package leads

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"SpeakCEO/internal/db"
	leadsvc "SpeakCEO/internal/leads"

	"github.com/gorilla/mux"
)

func setup(t *testing.T) (*mux.Router, db.Store) {
	t.Helper()
	store, err := db.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "leads.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	h := NewHandler(leadsvc.NewService(store, nil))
	r := mux.NewRouter()
	r.HandleFunc("/leads/{kind}", h.Form).Methods(http.MethodPost)
	r.HandleFunc("/api/leads", h.API).Methods(http.MethodPost)
	return r, store
}

func postForm(r http.Handler, path string, v url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(v.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestFormCapture(t *testing.T) {
	r, store := setup(t)

	rec := postForm(r, "/leads/demo", url.Values{
		"parentName": {"Maria"}, "studentName": {"Ivo"}, "email": {"m@example.com"}, "source": {"landing_demo"},
	})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "Thank you, Maria") {
		t.Fatalf("demo: %d %s", rec.Code, rec.Body.String())
	}

	rec = postForm(r, "/leads/email", url.Values{"email": {"n@example.com"}, "name": {"Nia"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("email: %d", rec.Code)
	}

	list, err := store.ListLeads(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("stored %d leads", len(list))
	}
	byCTA := map[string]*db.Lead{}
	for _, l := range list {
		byCTA[l.CTAType] = l
	}
	if l := byCTA["demo"]; l == nil || l.Priority != db.PriorityHigh || l.Source != "landing_demo" || l.FormData.StudentName != "Ivo" {
		t.Errorf("demo lead = %+v", l)
	}
	if l := byCTA["email_signup"]; l == nil || l.Priority != db.PriorityMedium || l.Source != "unknown" {
		t.Errorf("email lead = %+v", l)
	}
}

func TestFormRejects(t *testing.T) {
	r, store := setup(t)

	if rec := postForm(r, "/leads/contact", url.Values{"name": {"Anon"}}); rec.Code != http.StatusBadRequest {
		t.Errorf("no contact details: %d", rec.Code)
	}
	if rec := postForm(r, "/leads/bogus", url.Values{"email": {"a@b.c"}}); rec.Code != http.StatusNotFound {
		t.Errorf("unknown kind: %d", rec.Code)
	}
	if list, _ := store.ListLeads(context.Background()); len(list) != 0 {
		t.Errorf("stored %d leads", len(list))
	}
}

func TestAPI(t *testing.T) {
	r, _ := setup(t)

	req := httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(`{"source":"popup","ctaType":"trial","formData":{"phone":"+359 888"}}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated || !strings.Contains(rec.Body.String(), `"priority":"high"`) {
		t.Errorf("create: %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(`{"source":"popup"}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing cta: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/api/leads", strings.NewReader(`not json`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("bad json: %d", rec.Code)
	}
}
