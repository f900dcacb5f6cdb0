package pages

import (
	"github.com/a-h/templ"
)

type LandingData struct {
	CSRFToken string
	Error     string
}

type ctaForm struct {
	kind   string
	title  string
	button string
	source string
	fields []string
}

var ctaForms = []ctaForm{
	{kind: "email", title: "Get course updates", button: "Sign me up", source: "landing_newsletter", fields: []string{"name", "email"}},
	{kind: "demo", title: "Book a free demo class", button: "Request demo", source: "landing_demo", fields: []string{"parentName", "studentName", "childAge", "email", "phone"}},
	{kind: "trial", title: "Start a free trial", button: "Start trial", source: "landing_trial", fields: []string{"parentName", "studentName", "email", "phone"}},
	{kind: "contact", title: "Questions? Contact us", button: "Send message", source: "landing_contact", fields: []string{"name", "email", "phone", "message"}},
}

var fieldLabels = map[string]string{
	"name":        "Your name",
	"email":       "Email",
	"phone":       "Phone",
	"parentName":  "Parent name",
	"studentName": "Student name",
	"childAge":    "Child age",
	"message":     "Message",
}

func Landing(d LandingData) templ.Component {
	return Layout("Entrepreneurship for young founders", func(h *html) {
		h.raw(`<section class="text-center py-5">
    <h1 class="display-5 fw-bold">Raise a confident young CEO</h1>
    <p class="lead">Live online classes in public speaking, pitching and entrepreneurship for ages 8 to 16.</p>
</section>
`, alert("danger", d.Error), `<div class="row g-4">`)
		for _, f := range ctaForms {
			h.raw(`
<div class="col-md-6">
  <div class="card h-100"><div class="card-body">
    <h2 class="h5">`, esc(f.title), `</h2>
    <form method="post" action="/leads/`, f.kind, `">`, csrfInput(d.CSRFToken), `
      <input type="hidden" name="source" value="`, esc(f.source), `">`)
			for _, name := range f.fields {
				label := fieldLabels[name]
				if name == "message" {
					h.raw(`
      <div class="mb-2"><label class="form-label">`, label, `</label>
        <textarea class="form-control" name="message" rows="3"></textarea></div>`)
					continue
				}
				typ := "text"
				switch name {
				case "email":
					typ = "email"
				case "phone":
					typ = "tel"
				}
				h.raw(`
      <div class="mb-2"><label class="form-label">`, label, `</label>
        <input class="form-control" type="`, typ, `" name="`, name, `"></div>`)
			}
			h.raw(`
      <button class="btn btn-primary" type="submit">`, esc(f.button), `</button>
    </form>
  </div></div>
</div>`)
		}
		h.raw(`
</div>`)
	})
}

func Thanks(name string) templ.Component {
	return Layout("Thank you", func(h *html) {
		h.raw(`<div class="text-center py-5"><h1>Thank you`)
		if name != "" {
			h.raw(`, `)
			h.text(name)
		}
		h.raw(`!</h1><p class="lead">We received your request and will be in touch within one business day.</p>
<a class="btn btn-outline-primary" href="/">Back to home</a></div>`)
	})
}
