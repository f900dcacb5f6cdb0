package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"SpeakCEO/internal/config"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// ErrDisabled is returned when no API key is configured.
var ErrDisabled = errors.New("openai: no API key configured")

// Client is a thin chat-completion client with the configured model defaults.
type Client struct {
	api         sdk.Client
	enabled     bool
	Model       string
	MaxTokens   int64
	Temperature float64
}

// NewClient creates a client. Without an API key every call returns ErrDisabled.
func NewClient(cfg config.OpenAI) *Client {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Client{
		api:         sdk.NewClient(opts...),
		enabled:     cfg.APIKey != "",
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	}
}

func (c *Client) Enabled() bool { return c.enabled }

// Complete sends one system and one user message and returns the trimmed reply.
// maxTokens <= 0 uses the configured default.
func (c *Client) Complete(ctx context.Context, system, user string, maxTokens int64) (string, error) {
	if !c.enabled {
		return "", ErrDisabled
	}
	if maxTokens <= 0 {
		maxTokens = c.MaxTokens
	}
	completion, err := c.api.Chat.Completions.New(ctx, sdk.ChatCompletionNewParams{
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(system),
			sdk.UserMessage(user),
		},
		Model:       sdk.ChatModel(c.Model),
		MaxTokens:   sdk.Int(maxTokens),
		Temperature: sdk.Float(c.Temperature),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion: empty response")
	}
	return strings.TrimSpace(completion.Choices[0].Message.Content), nil
}
