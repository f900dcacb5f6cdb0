package tts

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"SpeakCEO/internal/config"
)

func TestConvertTextToSpeech(t *testing.T) {
	var got TTSRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	ts := NewTTSService(config.TTS{Model: "tts-1", Voice: "alloy"}, config.OpenAI{APIKey: "k", BaseURL: srv.URL + "/v1/"})
	resp, err := ts.ConvertTextToSpeech(context.Background(), "  Great pitch!  ")
	if err != nil {
		t.Fatalf("ConvertTextToSpeech: %v", err)
	}
	if string(resp.AudioData) != "ID3fake" || resp.ContentType != "audio/mpeg" {
		t.Errorf("resp = %+v", resp)
	}
	if got.Input != "Great pitch!" || got.Model != "tts-1" || got.Voice != "alloy" {
		t.Errorf("request = %+v", got)
	}
}

func TestConvertErrors(t *testing.T) {
	if _, err := NewTTSService(config.TTS{}, config.OpenAI{}).ConvertTextToSpeech(context.Background(), "hi"); !errors.Is(err, ErrDisabled) {
		t.Errorf("disabled err = %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	ts := NewTTSService(config.TTS{BaseURL: srv.URL, APIKey: "k", Model: "tts-1"}, config.OpenAI{})
	ts.client.RetryMax = 0
	if _, err := ts.ConvertTextToSpeech(context.Background(), "hi"); err == nil {
		t.Error("expected error on 429")
	}
}

func TestConvertTruncatesOnRuneBoundary(t *testing.T) {
	var got TTSRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	ts := NewTTSService(config.TTS{BaseURL: srv.URL, APIKey: "k", Model: "tts-1"}, config.OpenAI{})
	if _, err := ts.ConvertTextToSpeech(context.Background(), "x"+strings.Repeat("€", maxInputLength)); err != nil {
		t.Fatal(err)
	}
	if len(got.Input) > maxInputLength || !utf8.ValidString(got.Input) {
		t.Errorf("input: %d bytes, valid=%v", len(got.Input), utf8.ValidString(got.Input))
	}
}
