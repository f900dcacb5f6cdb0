package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"SpeakCEO/internal/config"
	"SpeakCEO/internal/httpclient"

	"github.com/hashicorp/go-retryablehttp"
)

var ErrDisabled = errors.New("whisper: service not configured")

const defaultBaseURL = "https://api.openai.com/v1"

// TranscribeService handles audio transcription
type TranscribeService struct {
	URL      string
	Provider string
	APIKey   string
	Model    string
	Language string
	client   *retryablehttp.Client
}

// NewTranscribeService builds the service from config. The openai provider
// borrows the OpenAI key and base URL when no dedicated ones are set.
func NewTranscribeService(cfg config.Whisper, ai config.OpenAI) *TranscribeService {
	ts := &TranscribeService{
		URL:      strings.TrimRight(cfg.URL, "/"),
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Language: cfg.Language,
		client:   httpclient.New(1, 60*time.Second),
	}
	if ts.Provider == "" {
		ts.Provider = "openai"
	}
	if ts.Provider == "openai" {
		if ts.APIKey == "" {
			ts.APIKey = ai.APIKey
		}
		if ts.URL == "" {
			base := ai.BaseURL
			if base == "" {
				base = defaultBaseURL
			}
			ts.URL = strings.TrimRight(base, "/") + "/audio/transcriptions"
		}
	}
	return ts
}

func (ts *TranscribeService) Enabled() bool {
	if ts.Provider == "docker" {
		return ts.URL != ""
	}
	return ts.APIKey != "" && ts.URL != ""
}

type TranscribeRequest struct {
	AudioData []byte
	FileName  string
	Language  string
}

type TranscribeResponse struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// Transcribe sends the audio to the configured backend.
func (ts *TranscribeService) Transcribe(ctx context.Context, req *TranscribeRequest) (*TranscribeResponse, error) {
	if !ts.Enabled() {
		return nil, ErrDisabled
	}
	if len(req.AudioData) == 0 {
		return nil, fmt.Errorf("whisper: empty audio")
	}
	if req.FileName == "" {
		req.FileName = "question.webm"
	}
	if req.Language == "" {
		req.Language = ts.Language
	}

	var (
		httpReq *retryablehttp.Request
		err     error
	)
	if ts.Provider == "docker" {
		httpReq, err = ts.dockerRequest(ctx, req)
	} else {
		httpReq, err = ts.openAIRequest(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	resp, err := ts.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to %s transcription: %w", ts.Provider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("transcription service returned %s: %s", resp.Status, string(body))
	}

	var result TranscribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse transcription response: %w", err)
	}
	result.Text = strings.TrimSpace(result.Text)
	if result.Language == "" {
		result.Language = req.Language
	}
	return &result, nil
}

// openAIRequest targets /audio/transcriptions, which Groq also implements.
func (ts *TranscribeService) openAIRequest(ctx context.Context, req *TranscribeRequest) (*retryablehttp.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("model", ts.Model); err != nil {
		return nil, err
	}
	if err := writer.WriteField("response_format", "json"); err != nil {
		return nil, err
	}
	if req.Language != "" && req.Language != "auto" {
		if err := writer.WriteField("language", req.Language); err != nil {
			return nil, err
		}
	}
	if err := writeAudio(writer, "file", req); err != nil {
		return nil, err
	}

	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, ts.URL, body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+ts.APIKey)
	return httpReq, nil
}

// dockerRequest targets the whisper-asr webservice, which takes its options
// in the query string.
func (ts *TranscribeService) dockerRequest(ctx context.Context, req *TranscribeRequest) (*retryablehttp.Request, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writeAudio(writer, "audio_file", req); err != nil {
		return nil, err
	}

	q := url.Values{"encode": {"true"}, "task": {"transcribe"}, "output": {"json"}}
	if req.Language != "" && req.Language != "auto" {
		q.Set("language", req.Language)
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"?"+q.Encode(), body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	if ts.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ts.APIKey)
	}
	return httpReq, nil
}

func writeAudio(w *multipart.Writer, field string, req *TranscribeRequest) error {
	part, err := w.CreateFormFile(field, req.FileName)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(req.AudioData); err != nil {
		return fmt.Errorf("failed to write audio data to form: %w", err)
	}
	return w.Close()
}

// ParseAudioFromRequest extracts the "audio" upload from a multipart request.
func ParseAudioFromRequest(r *http.Request, maxBytes int64) ([]byte, string, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, "", err
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, "", err
	}
	if int64(len(data)) > maxBytes {
		return nil, "", fmt.Errorf("audio larger than %d bytes", maxBytes)
	}
	return data, header.Filename, nil
}
