package leads

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"SpeakCEO/internal/db"
	leadsvc "SpeakCEO/internal/leads"
	"SpeakCEO/internal/middleware"
	"SpeakCEO/internal/web/pages"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const maxBody = 64 << 10

type Capturer interface {
	Capture(ctx context.Context, req leadsvc.CaptureRequest) (*db.Lead, error)
	CaptureEmailSignup(ctx context.Context, email, name, source string) (*db.Lead, error)
	CaptureContact(ctx context.Context, form db.FormData, source string) (*db.Lead, error)
	CaptureDemoRequest(ctx context.Context, form db.FormData, source string) (*db.Lead, error)
	CaptureTrialSignup(ctx context.Context, form db.FormData, source string) (*db.Lead, error)
}

type Handler struct {
	leads Capturer
}

func NewHandler(leads Capturer) *Handler {
	return &Handler{leads: leads}
}

func formData(r *http.Request) db.FormData {
	get := func(k string) string { return strings.TrimSpace(r.PostFormValue(k)) }
	return db.FormData{
		Name:           get("name"),
		Email:          get("email"),
		Phone:          get("phone"),
		ParentName:     get("parentName"),
		StudentName:    get("studentName"),
		ChildAge:       get("childAge"),
		Message:        get("message"),
		Grade:          get("grade"),
		Experience:     get("experience"),
		Budget:         get("budget"),
		Timeline:       get("timeline"),
		ReferralSource: get("referralSource"),
		Interests:      r.PostForm["interests"],
		Goals:          r.PostForm["goals"],
	}
}

// Form handles POST /leads/{kind} from the landing page CTA forms.
func (h *Handler) Form(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form", http.StatusBadRequest)
		return
	}
	form := formData(r)
	source := r.PostFormValue("source")
	ctx := r.Context()

	if form.Email == "" && form.Phone == "" {
		pages.Serve(w, r, http.StatusBadRequest, pages.Landing(pages.LandingData{CSRFToken: middleware.Token(r), Error: "Please leave an email or phone number so we can reach you."}))
		return
	}

	var (
		lead *db.Lead
		err  error
	)
	switch mux.Vars(r)["kind"] {
	case "email":
		lead, err = h.leads.CaptureEmailSignup(ctx, form.Email, form.Name, source)
	case "contact":
		lead, err = h.leads.CaptureContact(ctx, form, source)
	case "demo":
		lead, err = h.leads.CaptureDemoRequest(ctx, form, source)
	case "trial":
		lead, err = h.leads.CaptureTrialSignup(ctx, form, source)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		log.WithError(err).Error("lead capture failed")
		pages.Serve(w, r, http.StatusInternalServerError, pages.Landing(pages.LandingData{CSRFToken: middleware.Token(r), Error: "Something went wrong, please try again."}))
		return
	}

	pages.Serve(w, r, http.StatusOK, pages.Thanks(lead.FormData.DisplayName()))
}

// API handles POST /api/leads with a JSON capture request.
func (h *Handler) API(w http.ResponseWriter, r *http.Request) {
	var req leadsvc.CaptureRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	lead, err := h.leads.Capture(r.Context(), req)
	switch {
	case errors.Is(err, leadsvc.ErrMissingCTAType):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		log.WithError(err).Error("lead capture failed")
		writeError(w, http.StatusInternalServerError, "could not save lead")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(lead)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
