package pages

import (
	"strconv"

	"SpeakCEO/internal/aitools"

	"github.com/a-h/templ"
)

type LoginData struct {
	CSRFToken string
	Error     string
	Example   string
}

func Login(d LoginData) templ.Component {
	return Layout("Student login", func(h *html) {
		h.raw(`<div class="row justify-content-center"><div class="col-md-5">
<h1 class="h3 mb-3">Student login</h1>
<p class="text-muted">Enter the SpeakCEO ID your instructor gave you.</p>`,
			alert("danger", d.Error), `
<form method="post" action="/login">`, csrfInput(d.CSRFToken), `
  <input class="form-control mb-3" name="student_id" placeholder="`, esc(d.Example), `" autocomplete="off" required>
  <button class="btn btn-primary w-100" type="submit">Log in</button>
</form></div></div>`)
	})
}

type WelcomeData struct {
	CSRFToken string
	StudentID string
	Error     string
}

// Welcome asks a first-time student for the name shown on their dashboard.
func Welcome(d WelcomeData) templ.Component {
	return Layout("Welcome", func(h *html) {
		h.raw(`<div class="row justify-content-center"><div class="col-md-5">
<h1 class="h3">Welcome, `, esc(d.StudentID), `!</h1>
<p>What should we call you?</p>`, alert("danger", d.Error), `
<form method="post" action="/welcome">`, csrfInput(d.CSRFToken), `
  <input class="form-control mb-3" name="name" minlength="2" required>
  <button class="btn btn-primary w-100" type="submit">Continue</button>
</form></div></div>`)
	})
}

type DashboardData struct {
	CSRFToken   string
	StudentID   string
	Name        string
	Level       int
	Points      int
	Progress    int
	ToolsUsed   []string
	Tools       []aitools.Tool
	CoachOnline bool
	Question    string
	Answer      string
	ActiveTool  string
}

func Dashboard(d DashboardData) templ.Component {
	return Layout("Dashboard", func(h *html) {
		h.raw(`<div class="d-flex justify-content-between align-items-center mb-4">
  <div><h1 class="h3 mb-0">Hi, `, esc(d.Name), `</h1><small class="text-muted">`, esc(d.StudentID), `</small></div>
  <form method="post" action="/logout">`, csrfInput(d.CSRFToken), `<button class="btn btn-outline-secondary btn-sm">Log out</button></form>
</div>
<div class="row g-3 mb-4">
  <div class="col"><div class="card"><div class="card-body"><div class="text-muted">Level</div><div class="fs-3">`, strconv.Itoa(d.Level), `</div></div></div></div>
  <div class="col"><div class="card"><div class="card-body"><div class="text-muted">Points</div><div class="fs-3">`, strconv.Itoa(d.Points), `</div></div></div></div>
  <div class="col"><div class="card"><div class="card-body"><div class="text-muted">Course progress</div>
    <div class="progress mt-2"><div class="progress-bar" style="width: `, strconv.Itoa(d.Progress), `%">`, strconv.Itoa(d.Progress), `%</div></div></div></div></div>
</div>
<h2 class="h5">AI learning tools</h2>`)
		if !d.CoachOnline {
			h.raw(alert("warning", aitools.DisabledMessage))
		}
		used := make(map[string]bool, len(d.ToolsUsed))
		for _, t := range d.ToolsUsed {
			used[t] = true
		}
		h.raw(`<div class="list-group mb-3">`)
		for _, t := range d.Tools {
			badge := ""
			if used[t.Name] {
				badge = ` <span class="badge bg-success">used</span>`
			}
			h.raw(`<a class="list-group-item list-group-item-action" href="/dashboard?tool=`, esc(t.Slug), `"><strong>`,
				esc(t.Name), `</strong> <span class="text-muted">`, esc(t.Description), `</span>`, badge, `</a>`)
		}
		h.raw(`</div>`)
		if d.ActiveTool != "" {
			h.raw(`
<form method="post" action="/dashboard/ask">`, csrfInput(d.CSRFToken), `
  <input type="hidden" name="tool" value="`, esc(d.ActiveTool), `">
  <textarea class="form-control mb-2" name="question" rows="3" placeholder="Ask your coach...">`, esc(d.Question), `</textarea>
  <button class="btn btn-primary" type="submit">Ask</button>
</form>`)
		}
		if d.Answer != "" {
			h.raw(`<div class="card mt-3"><div class="card-body" style="white-space: pre-wrap">`, esc(d.Answer), `</div></div>`)
		}
	})
}
