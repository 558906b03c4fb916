package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var ErrEmptyChoices = errors.New("empty llm choices")

// ChatMessage is one prompt turn. Images holds data URLs or public URLs attached to a user turn.
type ChatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ChatConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type Client struct {
	client openai.Client
}

func NewClient(timeout time.Duration, maxRetries int) *Client {
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Client{
		client: openai.NewClient(
			option.WithHTTPClient(&http.Client{Timeout: timeout}),
			option.WithMaxRetries(maxRetries),
		),
	}
}

func (c *Client) Complete(ctx context.Context, cfg ChatConfig, messages []ChatMessage) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, buildParams(cfg, messages), requestOptions(cfg)...)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyChoices
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *Client) StreamComplete(
	ctx context.Context,
	cfg ChatConfig,
	messages []ChatMessage,
	onChunk func(chunk string) error,
) (string, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, buildParams(cfg, messages), requestOptions(cfg)...)
	defer stream.Close()

	var full strings.Builder
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		full.WriteString(text)
		if err := onChunk(text); err != nil {
			return "", err
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("llm stream failed: %w", err)
	}
	return full.String(), nil
}

func requestOptions(cfg ChatConfig) []option.RequestOption {
	opts := make([]option.RequestOption, 0, 2)
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	return opts
}

func buildParams(cfg ChatConfig, messages []ChatMessage) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:    cfg.Model,
		Messages: make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)),
	}
	for _, m := range messages {
		params.Messages = append(params.Messages, toParam(m))
	}
	return params
}

func toParam(m ChatMessage) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case "system":
		return openai.SystemMessage(m.Content)
	case "assistant":
		return openai.AssistantMessage(m.Content)
	}

	if len(m.Images) == 0 {
		return openai.UserMessage(m.Content)
	}
	parts := make([]openai.ChatCompletionContentPartUnionParam, 0, len(m.Images)+1)
	parts = append(parts, openai.TextContentPart(m.Content))
	for _, url := range m.Images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}
	return openai.UserMessage(parts)
}
