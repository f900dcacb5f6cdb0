package home

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"SpeakCEO/internal/accounts"
	"SpeakCEO/internal/aitools"
	"SpeakCEO/internal/auth"
	"SpeakCEO/internal/db"
	"SpeakCEO/internal/middleware"
	"SpeakCEO/internal/tts"
	"SpeakCEO/internal/web/pages"
	"SpeakCEO/internal/whisper"

	log "github.com/sirupsen/logrus"
)

const (
	maxBody    = 256 << 10
	maxTTSText = 4096
	maxAudio   = 10 << 20
)

type Speaker interface {
	Enabled() bool
	ConvertTextToSpeech(ctx context.Context, text string) (*tts.TTSResponse, error)
}

type Listener interface {
	Enabled() bool
	Transcribe(ctx context.Context, req *whisper.TranscribeRequest) (*whisper.TranscribeResponse, error)
}

type Handler struct {
	accounts *accounts.Service
	sessions *auth.Sessions
	coach    *aitools.Coach
	speaker  Speaker
	listener Listener
}

func NewHandler(acc *accounts.Service, sessions *auth.Sessions, coach *aitools.Coach, speaker Speaker, listener Listener) *Handler {
	return &Handler{accounts: acc, sessions: sessions, coach: coach, speaker: speaker, listener: listener}
}

// student loads the account behind the session. A session for a deleted
// account is cleared and false is returned.
func (h *Handler) student(w http.ResponseWriter, r *http.Request) (*db.Account, bool) {
	st, ok := h.sessions.Student(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	}
	acc, err := h.accounts.Get(r.Context(), st.StudentID)
	if errors.Is(err, db.ErrNotFound) {
		h.sessions.ClearStudent(w, r)
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return nil, false
	}
	if err != nil {
		log.WithError(err).Error("load student")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	if acc.IsFirstLogin() {
		http.Redirect(w, r, "/welcome", http.StatusSeeOther)
		return nil, false
	}
	return acc, true
}

func (h *Handler) dashboardData(r *http.Request, acc *db.Account) pages.DashboardData {
	d := pages.DashboardData{
		CSRFToken:   middleware.Token(r),
		StudentID:   acc.StudentID,
		Name:        acc.Name(),
		Level:       accounts.Level(acc.Points),
		Points:      acc.Points,
		Progress:    acc.Progress,
		Tools:       aitools.Tools,
		CoachOnline: h.coach.Enabled(),
	}
	if raw, err := h.accounts.GetData(r.Context(), acc.StudentID, "toolsUsed"); err == nil {
		json.Unmarshal(raw, &d.ToolsUsed)
	}
	return d
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.student(w, r)
	if !ok {
		return
	}
	d := h.dashboardData(r, acc)
	if slug := r.URL.Query().Get("tool"); slug != "" {
		if _, err := aitools.Lookup(slug); err == nil {
			d.ActiveTool = slug
		}
	}
	pages.Serve(w, r, http.StatusOK, pages.Dashboard(d))
}

// Ask sends the question to the coach and renders the answer on the dashboard.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	acc, ok := h.student(w, r)
	if !ok {
		return
	}
	tool, err := aitools.Lookup(r.PostFormValue("tool"))
	if err != nil {
		http.Error(w, "Unknown tool", http.StatusBadRequest)
		return
	}
	question := strings.TrimSpace(r.PostFormValue("question"))

	d := h.dashboardData(r, acc)
	d.ActiveTool = tool.Slug
	d.Question = question
	if question != "" {
		d.Answer = h.coach.Ask(r.Context(), tool, question)
		if err := h.accounts.TrackTool(r.Context(), acc.StudentID, tool.Name); err != nil {
			log.WithError(err).Warn("track tool usage")
		} else if !contains(d.ToolsUsed, tool.Name) {
			d.ToolsUsed = append(d.ToolsUsed, tool.Name)
		}
	}
	pages.Serve(w, r, http.StatusOK, pages.Dashboard(d))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// apiStudent is the JSON flavour of student: no redirects.
func (h *Handler) apiStudent(w http.ResponseWriter, r *http.Request) (string, bool) {
	st, ok := h.sessions.Student(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return "", false
	}
	return st.StudentID, true
}

// Account handles GET /api/account.
func (h *Handler) Account(w http.ResponseWriter, r *http.Request) {
	id, ok := h.apiStudent(w, r)
	if !ok {
		return
	}
	acc, err := h.accounts.Get(r.Context(), id)
	if err != nil {
		h.dataError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		*db.Account
		Level int `json:"level"`
	}{acc, accounts.Level(acc.Points)})
}

// GetData handles GET /api/account/data?path=a.b.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	id, ok := h.apiStudent(w, r)
	if !ok {
		return
	}
	raw, err := h.accounts.GetData(r.Context(), id, r.URL.Query().Get("path"))
	if err != nil {
		h.dataError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(raw)
}

// SaveData handles PUT /api/account/data?path=a.b with a raw JSON body.
func (h *Handler) SaveData(w http.ResponseWriter, r *http.Request) {
	id, ok := h.apiStudent(w, r)
	if !ok {
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	if err := h.accounts.SaveData(r.Context(), id, r.URL.Query().Get("path"), body); err != nil {
		h.dataError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearData handles DELETE /api/account/data.
func (h *Handler) ClearData(w http.ResponseWriter, r *http.Request) {
	id, ok := h.apiStudent(w, r)
	if !ok {
		return
	}
	if err := h.accounts.ClearData(r.Context(), id); err != nil {
		h.dataError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Progress handles PUT /api/account/progress.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	id, ok := h.apiStudent(w, r)
	if !ok {
		return
	}
	var req struct {
		Progress int `json:"progress"`
		Points   int `json:"points"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Progress > 100 {
		req.Progress = 100
	}
	acc, err := h.accounts.UpdateProgress(r.Context(), id, req.Progress, req.Points)
	if err != nil {
		h.dataError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"progress": acc.Progress, "points": acc.Points, "level": accounts.Level(acc.Points)})
}

func (h *Handler) dataError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, accounts.ErrInvalidJSON):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.WithError(err).Error("account data request failed")
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

// Speak handles POST /api/tts and streams back audio for the given text.
func (h *Handler) Speak(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.apiStudent(w, r); !ok {
		return
	}
	if !h.speaker.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "text to speech is disabled")
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	req.Text = aitools.Truncate(req.Text, maxTTSText)
	audio, err := h.speaker.ConvertTextToSpeech(r.Context(), req.Text)
	if err != nil {
		log.WithError(err).Error("text to speech failed")
		writeError(w, http.StatusBadGateway, "text to speech failed")
		return
	}
	w.Header().Set("Content-Type", audio.ContentType)
	w.Write(audio.AudioData)
}

// Transcribe handles POST /api/transcribe. The multipart "audio" upload is
// turned into text; when a "tool" field is present the text is also put to
// the coach.
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	id, ok := h.apiStudent(w, r)
	if !ok {
		return
	}
	if !h.listener.Enabled() {
		writeError(w, http.StatusServiceUnavailable, "voice questions are disabled")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxAudio+1<<20)
	audio, fileName, err := whisper.ParseAudioFromRequest(r, maxAudio)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to process audio")
		return
	}

	var tool *aitools.Tool
	if slug := r.FormValue("tool"); slug != "" {
		t, err := aitools.Lookup(slug)
		if err != nil {
			writeError(w, http.StatusBadRequest, "unknown tool")
			return
		}
		tool = &t
	}

	result, err := h.listener.Transcribe(r.Context(), &whisper.TranscribeRequest{AudioData: audio, FileName: fileName})
	if err != nil {
		log.WithError(err).Error("transcription failed")
		writeError(w, http.StatusBadGateway, "transcription failed")
		return
	}
	log.WithFields(log.Fields{"student": id, "chars": len(result.Text)}).Debug("transcribed voice question")

	resp := map[string]string{"text": result.Text, "language": result.Language}
	if tool != nil && result.Text != "" {
		resp["tool"] = tool.Slug
		resp["answer"] = h.coach.Ask(r.Context(), *tool, result.Text)
		if err := h.accounts.TrackTool(r.Context(), id, tool.Name); err != nil {
			log.WithError(err).Warn("track tool usage")
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
