package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"SpeakCEO/internal/aitools"
)

type fakeLLM struct {
	enabled bool
	reply   string
}

func (f fakeLLM) Enabled() bool { return f.enabled }
func (f fakeLLM) Complete(context.Context, string, string, int64) (string, error) {
	return f.reply, nil
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/ai", strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	h(rec, r)
	return rec
}

func TestAsk(t *testing.T) {
	var tracked []string
	h := NewHandler(aitools.NewCoach(fakeLLM{enabled: true, reply: "Start with a hook."}),
		TrackerFunc(func(_ *http.Request, tool string) { tracked = append(tracked, tool) }))

	rec := post(h.Ask, `{"tool":"pitch-deck","question":"How do I open my pitch?"}`)
	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if rec.Code != http.StatusOK || resp["answer"] != "Start with a hook." {
		t.Errorf("ask: %d %v", rec.Code, resp)
	}
	if len(tracked) != 1 || tracked[0] != "PitchDeck" {
		t.Errorf("tracked = %v", tracked)
	}

	if rec := post(h.Ask, `{"tool":"karaoke","question":"?"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown tool: %d", rec.Code)
	}
	if rec := post(h.Ask, `{"question":"  "}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty question: %d", rec.Code)
	}
}

func TestAskDisabled(t *testing.T) {
	h := NewHandler(aitools.NewCoach(fakeLLM{}), nil)
	rec := post(h.Ask, `{"question":"hello"}`)
	if !strings.Contains(rec.Body.String(), "AI features are currently disabled") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestBusinessModel(t *testing.T) {
	h := NewHandler(aitools.NewCoach(fakeLLM{enabled: true, reply: "Looks solid.\n- Talk to ten customers\n- Price above cost"}), nil)
	rec := post(h.BusinessModel, `{"valueProposition":"Lemonade that is cold"}`)
	var got aitools.ModelAnalysis
	json.NewDecoder(rec.Body).Decode(&got)
	if len(got.Suggestions) != 2 || got.Suggestions[0] != "Talk to ten customers" {
		t.Errorf("analysis = %+v", got)
	}
	if rec := post(h.BusinessModel, `["not","an","object"]`); rec.Code != http.StatusBadRequest {
		t.Errorf("array body: %d", rec.Code)
	}
}

func TestBrand(t *testing.T) {
	h := NewHandler(aitools.NewCoach(fakeLLM{}), nil)
	rec := post(h.Brand, `{"industry":"snacks","targetAudience":"kids","values":["fun"]}`)
	var got aitools.BrandSuggestion
	json.NewDecoder(rec.Body).Decode(&got)
	if got.Name == "" || len(got.Colors) != 3 {
		t.Errorf("brand = %+v", got)
	}
}
