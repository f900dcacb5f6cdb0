package tts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"SpeakCEO/internal/config"
	"SpeakCEO/internal/httpclient"

	"github.com/hashicorp/go-retryablehttp"
)

var ErrDisabled = errors.New("tts: service not configured")

const (
	defaultBaseURL = "https://api.openai.com/v1"
	maxInputLength = 4096
)

// TTSService turns coach answers into speech through an OpenAI-compatible
// /audio/speech endpoint.
type TTSService struct {
	BaseURL string
	APIKey  string
	Model   string
	Voice   string
	client  *retryablehttp.Client
}

// NewTTSService falls back to the OpenAI key and endpoint when no dedicated
// TTS settings are given.
func NewTTSService(cfg config.TTS, ai config.OpenAI) *TTSService {
	baseURL, apiKey := cfg.BaseURL, cfg.APIKey
	if apiKey == "" {
		apiKey = ai.APIKey
	}
	if baseURL == "" {
		baseURL = ai.BaseURL
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &TTSService{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   cfg.Model,
		Voice:   cfg.Voice,
		client:  httpclient.New(1, 30*time.Second),
	}
}

func (ts *TTSService) Enabled() bool { return ts.APIKey != "" }

type TTSRequest struct {
	Input          string `json:"input"`
	Model          string `json:"model"`
	Voice          string `json:"voice,omitempty"`
	ResponseFormat string `json:"response_format,omitempty"`
}

type TTSResponse struct {
	AudioData   []byte
	ContentType string
}

// ConvertTextToSpeech returns the spoken form of text, mp3 by default.
func (ts *TTSService) ConvertTextToSpeech(ctx context.Context, text string) (*TTSResponse, error) {
	if !ts.Enabled() {
		return nil, ErrDisabled
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("tts: empty input")
	}
	if len(text) > maxInputLength {
		n := maxInputLength
		for n > 0 && !utf8.RuneStart(text[n]) {
			n--
		}
		text = text[:n]
	}

	jsonData, err := json.Marshal(TTSRequest{Input: text, Model: ts.Model, Voice: ts.Voice, ResponseFormat: "mp3"})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, ts.BaseURL+"/audio/speech", jsonData)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+ts.APIKey)

	resp, err := ts.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request to TTS service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("TTS service returned non-OK status: %s - %s", resp.Status, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}
	return &TTSResponse{AudioData: audioData, ContentType: contentType}, nil
}
