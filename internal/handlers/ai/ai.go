package ai

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"SpeakCEO/internal/aitools"

	"github.com/tidwall/gjson"
)

const maxBody = 64 << 10

// Tracker records which tools a student has used.
type Tracker interface {
	TrackTool(r *http.Request, tool string)
}

type TrackerFunc func(r *http.Request, tool string)

func (f TrackerFunc) TrackTool(r *http.Request, tool string) { f(r, tool) }

type Handler struct {
	coach   *aitools.Coach
	tracker Tracker
}

func NewHandler(coach *aitools.Coach, tracker Tracker) *Handler {
	return &Handler{coach: coach, tracker: tracker}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// Tools handles GET /api/ai/tools.
func (h *Handler) Tools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"enabled": h.coach.Enabled(), "tools": aitools.Tools})
}

// Ask handles POST /api/ai/ask.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tool     string `json:"tool"`
		Question string `json:"question"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Tool == "" {
		req.Tool = "general"
	}
	tool, err := aitools.Lookup(req.Tool)
	if errors.Is(err, aitools.ErrUnknownTool) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	answer := h.coach.Ask(r.Context(), tool, req.Question)
	if h.tracker != nil {
		h.tracker.TrackTool(r, tool.Name)
	}
	writeJSON(w, http.StatusOK, map[string]string{"tool": tool.Slug, "answer": answer})
}

// Brand handles POST /api/ai/brand.
func (h *Handler) Brand(w http.ResponseWriter, r *http.Request) {
	var req aitools.BrandRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, h.coach.BrandSuggestions(r.Context(), req))
}

// BusinessModel handles POST /api/ai/business-model with the canvas as a JSON object.
func (h *Handler) BusinessModel(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if !decode(w, r, &raw) {
		return
	}
	if !gjson.ParseBytes(raw).IsObject() {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "components must be a JSON object"})
		return
	}
	writeJSON(w, http.StatusOK, h.coach.AnalyzeBusinessModel(r.Context(), raw))
}
