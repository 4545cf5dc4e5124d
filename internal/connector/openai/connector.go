// Package openai adapts the OpenAI chat completion API to the connector
// capability the generative pillars consume.
package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"riskeval/internal/genai"
)

type Config struct {
	APIKey      string  `json:"api_key" yaml:"api_key"`
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Model       string  `json:"model" yaml:"model"`
	Temperature float32 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	TimeoutSec  int     `json:"timeout_sec,omitempty" yaml:"timeout_sec,omitempty"`
}

type Connector struct {
	client *openai.Client
	cfg    Config
}

func New(cfg Config) (*Connector, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("openai connector: api key is required")
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = openai.GPT4oMini
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if strings.TrimSpace(cfg.BaseURL) != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Connector{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Invoke sends one prompt as a single-turn chat completion. The session is
// carried as the system message so stateless backends still see it.
func (c *Connector) Invoke(ctx context.Context, session, prompt string) (*genai.Invocation, error) {
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	}
	if strings.TrimSpace(session) != "" {
		messages = append([]openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: session},
		}, messages...)
	}
	return c.complete(ctx, messages)
}

// Chat implements the multi-turn upgrade.
func (c *Connector) Chat(ctx context.Context, session string, history []genai.Message) (*genai.Invocation, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+1)
	if strings.TrimSpace(session) != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem, Content: session,
		})
	}
	for _, msg := range history {
		messages = append(messages, openai.ChatCompletionMessage{
			Role: msg.Role, Content: msg.Content,
		})
	}
	return c.complete(ctx, messages)
}

func (c *Connector) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (*genai.Invocation, error) {
	if c.cfg.TimeoutSec > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(c.cfg.TimeoutSec)*time.Second)
		defer cancel()
	}
	req := openai.ChatCompletionRequest{
		Model:               c.cfg.Model,
		Messages:            messages,
		MaxCompletionTokens: c.cfg.MaxTokens,
	}
	if c.cfg.Temperature > 0 {
		req.Temperature = c.cfg.Temperature
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion: no choices returned")
	}
	choice := resp.Choices[0]
	return &genai.Invocation{
		Content:      choice.Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		LatencyMS:    time.Since(start).Milliseconds(),
		FinishReason: string(choice.FinishReason),
	}, nil
}
