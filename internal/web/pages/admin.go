package pages

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"

	"SpeakCEO/internal/accounts"
	"SpeakCEO/internal/db"
	"SpeakCEO/internal/leads"

	"github.com/a-h/templ"
)

type AdminLoginData struct {
	CSRFToken     string
	Error         string
	GoogleEnabled bool
}

func AdminLogin(d AdminLoginData) templ.Component {
	return Layout("Admin", func(h *html) {
		h.raw(`<div class="row justify-content-center"><div class="col-md-5">
<h1 class="h3 mb-3">Admin access</h1>`, alert("danger", d.Error), `
<form method="post" action="/admin/login">`, csrfInput(d.CSRFToken), `
  <input class="form-control mb-3" type="password" name="key" placeholder="Admin key" required>
  <button class="btn btn-dark w-100" type="submit">Enter</button>
</form>`)
		if d.GoogleEnabled {
			h.raw(`<hr><a class="btn btn-outline-primary w-100" href="/auth/google">Sign in with Google</a>`)
		}
		h.raw(`</div></div>`)
	})
}

type AdminDashboardData struct {
	CSRFToken    string
	Message      string
	Error        string
	AdminEmail   string
	Analytics    leads.Analytics
	Filter       leads.Filter
	Leads        []*db.Lead
	AccountStats accounts.Stats
	Accounts     []*db.Account
	PendingSync  int
	SheetsOn     bool
	CloudOn      bool
	CloudBin     string
}

func AdminDashboard(d AdminDashboardData) templ.Component {
	return Layout("Admin dashboard", func(h *html) {
		h.raw(`<div class="d-flex justify-content-between align-items-center mb-3">
  <h1 class="h3 mb-0">Admin dashboard</h1>`)
		if d.AdminEmail != "" {
			h.raw(`<span class="text-muted small">Signed in as `, esc(d.AdminEmail), `</span>`)
		}
		h.raw(`
  <form method="post" action="/admin/logout">`, csrfInput(d.CSRFToken), `<button class="btn btn-outline-secondary btn-sm">Log out</button></form>
</div>`, alert("success", d.Message), alert("danger", d.Error))

		a := d.Analytics
		h.raw(`<div class="row g-3 mb-4">`,
			statCard("Total leads", strconv.Itoa(a.Total)),
			statCard("New (24h)", strconv.Itoa(a.NewLast24h)),
			statCard("High priority", strconv.Itoa(a.ByPriority[db.PriorityHigh])),
			statCard("Conversion rate", a.ConversionRate),
			`</div>`)

		h.raw(`<div class="mb-3">
  <a class="btn btn-sm btn-outline-dark" href="/admin/export/leads.csv">Export CSV</a>
  <a class="btn btn-sm btn-outline-dark" href="/admin/export/leads-detailed.csv">Export detailed CSV</a>
  <a class="btn btn-sm btn-outline-dark" href="/admin/export/backup.json">Export full backup</a>
</div>`)

		leadFilter(h, d.Filter)
		leadTable(h, d)
		syncPanel(h, d)
		accountPanel(h, d)
	})
}

func statCard(label, value string) string {
	return `<div class="col-6 col-md-3"><div class="card"><div class="card-body"><div class="text-muted small">` +
		esc(label) + `</div><div class="fs-4">` + esc(value) + `</div></div></div></div>`
}

func option(value, label, selected string) string {
	sel := ""
	if value == selected {
		sel = " selected"
	}
	return `<option value="` + esc(value) + `"` + sel + `>` + esc(label) + `</option>`
}

func leadFilter(h *html, f leads.Filter) {
	h.raw(`<form class="row g-2 mb-3" method="get" action="/admin">
  <div class="col-md-5"><input class="form-control" name="q" placeholder="Search name, email, phone, source" value="`, esc(f.Search), `"></div>
  <div class="col-md-3"><select class="form-select" name="status">`, option("", "All statuses", string(f.Status)))
	for _, st := range db.LeadStatuses {
		h.raw(option(string(st), string(st), string(f.Status)))
	}
	h.raw(`</select></div>
  <div class="col-md-2"><select class="form-select" name="priority">`, option("", "All priorities", string(f.Priority)))
	for _, p := range db.LeadPriorities {
		h.raw(option(string(p), string(p), string(f.Priority)))
	}
	h.raw(`</select></div>
  <div class="col-md-2"><button class="btn btn-primary w-100">Filter</button></div>
</form>`)
}

func leadTable(h *html, d AdminDashboardData) {
	h.raw(`<div class="table-responsive mb-5"><table class="table table-sm align-middle">
<thead><tr><th>Date</th><th>Name</th><th>Contact</th><th>Source</th><th>CTA</th><th>Priority</th><th>Status</th><th>Notes</th></tr></thead><tbody>`)
	if len(d.Leads) == 0 {
		h.raw(`<tr><td colspan="8" class="text-center text-muted">No leads match.</td></tr>`)
	}
	for _, l := range d.Leads {
		h.raw(`<tr><td>`, esc(l.Timestamp.Format("2006-01-02 15:04")), `</td><td>`, esc(l.FormData.DisplayName()),
			`</td><td>`, esc(l.FormData.Email), `<br>`, esc(l.FormData.Phone),
			`</td><td>`, esc(l.Source), `</td><td>`, esc(l.CTAType),
			`</td><td>`, esc(string(l.Priority)), `</td><td>`)
		h.raw(`<form method="post" action="`, esc(leadPath(l.ID)), `/status">`, csrfInput(d.CSRFToken),
			`<select class="form-select form-select-sm" name="status" onchange="this.form.submit()">`)
		for _, st := range db.LeadStatuses {
			h.raw(option(string(st), string(st), string(l.Status)))
		}
		h.raw(`</select></form></td><td>`)
		if l.Notes != "" {
			h.raw(`<div class="small" style="white-space: pre-wrap">`, esc(l.Notes), `</div>`)
		}
		h.raw(`<form class="d-flex gap-1" method="post" action="`, esc(leadPath(l.ID)), `/notes">`, csrfInput(d.CSRFToken),
			`<input class="form-control form-control-sm" name="notes" placeholder="Add note">`,
			`<button class="btn btn-sm btn-outline-secondary">Add</button></form>`)
		follow := ""
		if l.FollowUpDate != nil {
			follow = l.FollowUpDate.Format("2006-01-02")
		}
		h.raw(`<form class="d-flex gap-1 mt-1" method="post" action="`, esc(leadPath(l.ID)), `/follow-up">`, csrfInput(d.CSRFToken),
			`<input class="form-control form-control-sm" type="date" name="followUpDate" value="`, esc(follow), `">`,
			`<button class="btn btn-sm btn-outline-secondary">Follow up</button></form>`)
		h.raw(`</td></tr>`)
	}
	h.raw(`</tbody></table></div>`)
}

func syncPanel(h *html, d AdminDashboardData) {
	h.raw(`<h2 class="h5">Sync and backup</h2><div class="row g-3 mb-5">
<div class="col-md-4"><div class="card h-100"><div class="card-body">
  <h3 class="h6">Spreadsheet</h3>`)
	if d.SheetsOn {
		h.raw(`<p>`, strconv.Itoa(d.PendingSync), ` row(s) waiting to sync.</p>
  <form method="post" action="/admin/sync/sheets">`, csrfInput(d.CSRFToken), `<button class="btn btn-sm btn-primary">Retry pending</button></form>`)
	} else {
		h.raw(`<p class="text-muted">Not configured.</p>`)
	}
	h.raw(`</div></div></div>
<div class="col-md-4"><div class="card h-100"><div class="card-body">
  <h3 class="h6">Cloud backup</h3>`)
	if d.CloudOn {
		bin := d.CloudBin
		if bin == "" {
			bin = "created on first sync"
		}
		h.raw(`<p class="small">Bin: `, esc(bin), `</p>
  <form method="post" action="/admin/sync/cloud">`, csrfInput(d.CSRFToken), `<button class="btn btn-sm btn-primary">Sync now</button></form>`)
	} else {
		h.raw(`<p class="text-muted">Not configured.</p>`)
	}
	h.raw(`</div></div></div>
<div class="col-md-4"><div class="card h-100"><div class="card-body">
  <h3 class="h6">Import backup</h3>
  <form method="post" action="/admin/import" enctype="multipart/form-data">`, csrfInput(d.CSRFToken), `
    <input class="form-control form-control-sm mb-2" type="file" name="backup" accept="application/json">
    <button class="btn btn-sm btn-outline-primary">Import</button>
  </form>
</div></div></div>
</div>`)
}

func accountPanel(h *html, d AdminDashboardData) {
	st := d.AccountStats
	h.raw(`<h2 class="h5">Student accounts</h2><div class="row g-3 mb-3">`,
		statCard("Accounts", strconv.Itoa(st.Total)),
		statCard("Named", strconv.Itoa(st.Named)),
		statCard("Active this week", strconv.Itoa(st.ActiveWeek)),
		statCard("Average points", fmt.Sprintf("%.0f", st.AveragePoints)),
		`</div>`)

	// Most active students first; placeholder accounts are hidden.
	active := make([]*db.Account, 0, len(d.Accounts))
	for _, a := range d.Accounts {
		if !a.IsFirstLogin() {
			active = append(active, a)
		}
	}
	sort.SliceStable(active, func(i, j int) bool { return active[i].Points > active[j].Points })

	h.raw(`<table class="table table-sm"><thead><tr><th>ID</th><th>Name</th><th>Level</th><th>Points</th><th>Progress</th><th>Last login</th></tr></thead><tbody>`)
	if len(active) == 0 {
		h.raw(`<tr><td colspan="6" class="text-center text-muted">No student has logged in yet.</td></tr>`)
	}
	for _, a := range active {
		last := "never"
		if a.LastLogin != nil {
			last = a.LastLogin.Format("2006-01-02 15:04")
		}
		h.raw(`<tr><td>`, esc(a.StudentID), `</td><td>`, esc(a.Name()), `</td><td>`, strconv.Itoa(accounts.Level(a.Points)),
			`</td><td>`, strconv.Itoa(a.Points), `</td><td>`, strconv.Itoa(a.Progress), `%</td><td>`, esc(last), `</td></tr>`)
	}
	h.raw(`</tbody></table>
<form class="row g-2 mb-5" method="post" action="/admin/accounts/reset">`, csrfInput(d.CSRFToken), `
  <div class="col-md-4"><input class="form-control form-control-sm" name="confirm" placeholder="Type RESET to wipe all accounts"></div>
  <div class="col-md-2"><button class="btn btn-sm btn-outline-danger">Reset accounts</button></div>
</form>`)
}

// leadPath is the admin form prefix for a lead. Imported IDs may carry any
// character, so the ID is path-escaped.
func leadPath(id string) string {
	return "/admin/leads/" + url.PathEscape(id)
}
