package whisper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"SpeakCEO/internal/config"
)

func TestTranscribeOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("auth = %q", r.Header.Get("Authorization"))
		}
		if r.FormValue("model") != "whisper-1" || r.FormValue("language") != "en" {
			t.Errorf("fields = %v", r.MultipartForm.Value)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("file: %v", err)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "RIFFaudio" {
			t.Errorf("audio = %q", data)
		}
		w.Write([]byte(`{"text":"  How do I price my lemonade?  "}`))
	}))
	defer srv.Close()

	ts := NewTranscribeService(config.Whisper{Model: "whisper-1", Language: "en"}, config.OpenAI{APIKey: "k", BaseURL: srv.URL + "/v1"})
	resp, err := ts.Transcribe(context.Background(), &TranscribeRequest{AudioData: []byte("RIFFaudio"), FileName: "q.wav"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text != "How do I price my lemonade?" || resp.Language != "en" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestTranscribeDocker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if r.URL.Path != "/asr" || q.Get("task") != "transcribe" || q.Get("language") != "bg" {
			t.Errorf("url = %s", r.URL)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("docker request should not carry a key")
		}
		if _, _, err := r.FormFile("audio_file"); err != nil {
			t.Errorf("audio_file: %v", err)
		}
		w.Write([]byte(`{"text":"Здравей","language":"bg"}`))
	}))
	defer srv.Close()

	ts := NewTranscribeService(config.Whisper{URL: srv.URL + "/asr", Provider: "docker", Language: "bg"}, config.OpenAI{APIKey: "ignored"})
	resp, err := ts.Transcribe(context.Background(), &TranscribeRequest{AudioData: []byte("x")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Text != "Здравей" {
		t.Errorf("text = %q", resp.Text)
	}
}

func TestTranscribeErrors(t *testing.T) {
	ctx := context.Background()
	if NewTranscribeService(config.Whisper{}, config.OpenAI{}).Enabled() {
		t.Error("service without key should be disabled")
	}
	if _, err := NewTranscribeService(config.Whisper{Provider: "docker"}, config.OpenAI{}).Transcribe(ctx, &TranscribeRequest{AudioData: []byte("x")}); !errors.Is(err, ErrDisabled) {
		t.Errorf("disabled err = %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusBadRequest)
	}))
	defer srv.Close()
	ts := NewTranscribeService(config.Whisper{URL: srv.URL, APIKey: "k", Model: "whisper-1"}, config.OpenAI{})
	ts.client.RetryMax = 0
	if _, err := ts.Transcribe(ctx, &TranscribeRequest{}); err == nil {
		t.Error("expected error on empty audio")
	}
	if _, err := ts.Transcribe(ctx, &TranscribeRequest{AudioData: []byte("x")}); err == nil {
		t.Error("expected error on 400")
	}
}

func TestParseAudioFromRequest(t *testing.T) {
	upload := func(size int) *http.Request {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, _ := mw.CreateFormFile("audio", "q.webm")
		fw.Write(bytes.Repeat([]byte("a"), size))
		mw.Close()
		r := httptest.NewRequest(http.MethodPost, "/api/transcribe", &buf)
		r.Header.Set("Content-Type", mw.FormDataContentType())
		return r
	}

	data, name, err := ParseAudioFromRequest(upload(10), 64)
	if err != nil || len(data) != 10 || name != "q.webm" {
		t.Errorf("parse = %d bytes, %q, %v", len(data), name, err)
	}
	if _, _, err := ParseAudioFromRequest(upload(100), 64); err == nil {
		t.Error("expected error for oversized audio")
	}
}
