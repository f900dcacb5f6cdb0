// Package pages renders the server-side HTML pages as templ components.
package pages

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/a-h/templ"
	log "github.com/sirupsen/logrus"
)

const csrfFieldName = "gorilla.csrf.Token"

func esc(s string) string { return templ.EscapeString(s) }

// Serve renders c through templ's buffered handler with the given status.
// A render failure is logged and answered with a plain 500.
func Serve(w http.ResponseWriter, r *http.Request, status int, c templ.Component) {
	templ.Handler(c,
		templ.WithStatus(status),
		templ.WithErrorHandler(func(r *http.Request, err error) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				log.WithError(err).WithField("path", r.URL.Path).Error("render page")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			})
		}),
	).ServeHTTP(w, r)
}

// html collects markup and writes it once.
type html struct {
	strings.Builder
}

func (h *html) raw(parts ...string) {
	for _, p := range parts {
		h.WriteString(p)
	}
}

// text writes escaped user content.
func (h *html) text(s string) {
	h.WriteString(esc(s))
}

func csrfInput(token string) string {
	if token == "" {
		return ""
	}
	return `<input type="hidden" name="` + csrfFieldName + `" value="` + esc(token) + `">`
}

func alert(kind, msg string) string {
	if msg == "" {
		return ""
	}
	return `<div class="alert alert-` + kind + `" role="alert">` + esc(msg) + `</div>`
}

// Layout wraps body in the shared page chrome.
func Layout(title string, body func(h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var h html
		h.raw(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>`, esc(title), ` | SpeakCEO</title>
    <link href="https://cdn.jsdelivr.net/npm/bootstrap@5.3.0/dist/css/bootstrap.min.css" rel="stylesheet">
    <link href="/static/app.css" rel="stylesheet">
</head>
<body>
<nav class="navbar navbar-expand navbar-dark bg-dark mb-4">
    <div class="container">
        <a class="navbar-brand" href="/">SpeakCEO</a>
        <div class="navbar-nav">
            <a class="nav-link" href="/login">Student Login</a>
            <a class="nav-link" href="/admin">Admin</a>
        </div>
    </div>
</nav>
<main class="container">
`)
		body(&h)
		h.raw(`
</main>
</body>
</html>`)
		_, err := io.WriteString(w, h.String())
		return err
	})
}
