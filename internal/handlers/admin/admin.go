package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SpeakCEO/internal/accounts"
	"SpeakCEO/internal/auth"
	"SpeakCEO/internal/backup"
	"SpeakCEO/internal/cloud"
	"SpeakCEO/internal/db"
	leadsvc "SpeakCEO/internal/leads"
	"SpeakCEO/internal/middleware"
	"SpeakCEO/internal/sheets"
	"SpeakCEO/internal/web/pages"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

const (
	maxUpload  = 10 << 20
	dateLayout = "2006-01-02"
)

// leadID reads the path-escaped {id} route variable. The router matches on
// the encoded path so IDs containing a slash survive.
func leadID(r *http.Request) string {
	raw := mux.Vars(r)["id"]
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

type SheetSync interface {
	Enabled() bool
	PendingCount(ctx context.Context) (int, error)
	SyncPending(ctx context.Context) (sheets.SyncResult, error)
}

type CloudSync interface {
	Enabled() bool
	BinID() string
	Sync(ctx context.Context) (cloud.SyncResult, error)
}

type Handler struct {
	store    db.Store
	leads    *leadsvc.Service
	accounts *accounts.Service
	sheets   SheetSync
	cloud    CloudSync
	sessions *auth.Sessions
	now      func() time.Time
}

func NewHandler(store db.Store, leads *leadsvc.Service, acc *accounts.Service, sheets SheetSync, cloud CloudSync, sessions *auth.Sessions) *Handler {
	return &Handler{
		store:    store,
		leads:    leads,
		accounts: acc,
		sheets:   sheets,
		cloud:    cloud,
		sessions: sessions,
		now:      time.Now,
	}
}

func filterFrom(q url.Values) leadsvc.Filter {
	f := leadsvc.Filter{Search: strings.TrimSpace(q.Get("q"))}
	if st, err := db.ParseLeadStatus(q.Get("status")); err == nil {
		f.Status = st
	}
	if p, err := db.ParseLeadPriority(q.Get("priority")); err == nil {
		f.Priority = p
	}
	return f
}

// back redirects to the dashboard with a flash message in the query string.
func back(w http.ResponseWriter, r *http.Request, key, msg string) {
	http.Redirect(w, r, "/admin?"+url.Values{key: {msg}}.Encode(), http.StatusSeeOther)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	filter := filterFrom(q)

	all, err := h.leads.List(ctx, leadsvc.Filter{})
	if err != nil {
		log.WithError(err).Error("list leads")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	accs, err := h.accounts.List(ctx)
	if err != nil {
		log.WithError(err).Error("list accounts")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	d := pages.AdminDashboardData{
		CSRFToken:    middleware.Token(r),
		Message:      q.Get("msg"),
		Error:        q.Get("err"),
		Analytics:    leadsvc.ComputeAnalytics(all, h.now()),
		Filter:       filter,
		Leads:        filter.Apply(all),
		AccountStats: accounts.ComputeStats(accs, h.now()),
		Accounts:     accs,
		SheetsOn:     h.sheets.Enabled(),
		CloudOn:      h.cloud.Enabled(),
		CloudBin:     h.cloud.BinID(),
	}
	if adm, ok := h.sessions.Admin(r); ok {
		d.AdminEmail = adm.Email
	}
	if d.SheetsOn {
		if d.PendingSync, err = h.sheets.PendingCount(ctx); err != nil {
			log.WithError(err).Warn("count pending sync")
		}
	}
	pages.Serve(w, r, http.StatusOK, pages.AdminDashboard(d))
}

func (h *Handler) leadError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, db.ErrNotFound) {
		back(w, r, "err", "Lead not found.")
		return
	}
	log.WithError(err).Error("update lead")
	back(w, r, "err", err.Error())
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	st, err := db.ParseLeadStatus(r.PostFormValue("status"))
	if err != nil {
		back(w, r, "err", err.Error())
		return
	}
	if _, err := h.leads.UpdateStatus(r.Context(), leadID(r), st); err != nil {
		h.leadError(w, r, err)
		return
	}
	back(w, r, "msg", "Lead status updated.")
}

func (h *Handler) AddNotes(w http.ResponseWriter, r *http.Request) {
	if _, err := h.leads.AddNotes(r.Context(), leadID(r), r.PostFormValue("notes")); err != nil {
		h.leadError(w, r, err)
		return
	}
	back(w, r, "msg", "Note added.")
}

// parseFollowUp accepts an empty value (clear) or a YYYY-MM-DD date.
func parseFollowUp(v string) (*time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, v); err != nil {
			return nil, fmt.Errorf("invalid follow-up date %q", v)
		}
	}
	return &t, nil
}

func (h *Handler) SetFollowUp(w http.ResponseWriter, r *http.Request) {
	at, err := parseFollowUp(r.PostFormValue("followUpDate"))
	if err != nil {
		back(w, r, "err", err.Error())
		return
	}
	if _, err := h.leads.SetFollowUp(r.Context(), leadID(r), at); err != nil {
		h.leadError(w, r, err)
		return
	}
	back(w, r, "msg", "Follow-up date saved.")
}

func attachment(w http.ResponseWriter, contentType, name string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
}

func (h *Handler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	list, err := h.leads.List(r.Context(), filterFrom(r.URL.Query()))
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	attachment(w, "text/csv; charset=utf-8", backup.CSVFileName("speakceo-leads", h.now()))
	if err := backup.WriteLeadsCSV(w, list); err != nil {
		log.WithError(err).Error("write leads csv")
	}
}

func (h *Handler) ExportDetailedCSV(w http.ResponseWriter, r *http.Request) {
	list, err := h.leads.List(r.Context(), leadsvc.Filter{})
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	attachment(w, "text/csv; charset=utf-8", backup.CSVFileName("speakceo-leads-detailed", h.now()))
	if err := backup.WriteDetailedCSV(w, list); err != nil {
		log.WithError(err).Error("write detailed csv")
	}
}

func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	snap, err := backup.Build(r.Context(), h.store, h.now())
	if err != nil {
		log.WithError(err).Error("build backup")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	attachment(w, "application/json", backup.FileName(h.now()))
	if err := backup.Encode(w, snap); err != nil {
		log.WithError(err).Error("encode backup")
	}
}

// Import restores an uploaded backup file, adding only unknown records.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	file, _, err := r.FormFile("backup")
	if err != nil {
		back(w, r, "err", "Choose a backup file to import.")
		return
	}
	defer file.Close()

	snap, err := backup.Decode(file)
	if err != nil {
		back(w, r, "err", err.Error())
		return
	}
	res, err := backup.Restore(r.Context(), snap, h.leads, h.store)
	if err != nil {
		log.WithError(err).Error("restore backup")
		back(w, r, "err", "Import failed: "+err.Error())
		return
	}
	back(w, r, "msg", fmt.Sprintf("Imported %d new lead(s) and %d account(s).", res.Leads, res.Accounts))
}

func (h *Handler) SyncSheets(w http.ResponseWriter, r *http.Request) {
	res, err := h.sheets.SyncPending(r.Context())
	if err != nil {
		back(w, r, "err", "Spreadsheet sync failed: "+err.Error())
		return
	}
	back(w, r, "msg", fmt.Sprintf("Spreadsheet sync: %d synced, %d failed, %d out of retries.", res.Synced, res.Failed, res.Skipped))
}

func (h *Handler) SyncCloud(w http.ResponseWriter, r *http.Request) {
	res, err := h.cloud.Sync(r.Context())
	if err != nil {
		back(w, r, "err", "Cloud sync failed: "+err.Error())
		return
	}
	back(w, r, "msg", fmt.Sprintf("Cloud sync: %d lead(s) in cloud, %d imported.", res.Merged, res.Imported))
}

// ResetAccounts deletes every student account and re-seeds the ID series.
func (h *Handler) ResetAccounts(w http.ResponseWriter, r *http.Request) {
	if r.PostFormValue("confirm") != "RESET" {
		back(w, r, "err", "Type RESET to confirm.")
		return
	}
	n, err := h.accounts.ResetAll(r.Context())
	if err != nil {
		log.WithError(err).Error("reset accounts")
		back(w, r, "err", "Reset failed.")
		return
	}
	back(w, r, "msg", fmt.Sprintf("All accounts reset, %d fresh IDs created.", n))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// ListLeads handles GET /api/admin/leads.
func (h *Handler) ListLeads(w http.ResponseWriter, r *http.Request) {
	list, err := h.leads.List(r.Context(), filterFrom(r.URL.Query()))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not list leads"})
		return
	}
	if list == nil {
		list = []*db.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": list, "total": len(list)})
}

// Analytics handles GET /api/admin/analytics.
func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.leads.Analytics(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not compute analytics"})
		return
	}
	st, err := h.accounts.Stats(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not compute account stats"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": a, "accounts": st})
}

// PatchLead handles PATCH /api/admin/leads/{id}. Absent fields are left alone.
func (h *Handler) PatchLead(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status       *string `json:"status"`
		Notes        *string `json:"notes"`
		FollowUpDate *string `json:"followUpDate"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	ctx, id := r.Context(), leadID(r)

	var (
		lead *db.Lead
		err  error
	)
	if req.Status != nil {
		st, perr := db.ParseLeadStatus(*req.Status)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": perr.Error()})
			return
		}
		lead, err = h.leads.UpdateStatus(ctx, id, st)
	}
	if err == nil && req.Notes != nil {
		lead, err = h.leads.AddNotes(ctx, id, *req.Notes)
	}
	if err == nil && req.FollowUpDate != nil {
		at, perr := parseFollowUp(*req.FollowUpDate)
		if perr != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": perr.Error()})
			return
		}
		lead, err = h.leads.SetFollowUp(ctx, id, at)
	}
	if err == nil && lead == nil {
		lead, err = h.leads.Get(ctx, id)
	}
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "lead not found"})
	case err != nil:
		log.WithError(err).Error("patch lead")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not update lead"})
	default:
		writeJSON(w, http.StatusOK, lead)
	}
}
