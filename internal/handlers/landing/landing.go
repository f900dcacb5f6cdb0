package landing

import (
	"net/http"

	"SpeakCEO/internal/middleware"
	"SpeakCEO/internal/web/pages"
)

func Handler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	pages.Serve(w, r, http.StatusOK, pages.Landing(pages.LandingData{CSRFToken: middleware.Token(r)}))
}
