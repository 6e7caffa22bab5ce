package llm

import (
	"context"
	"errors"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

// anthropicDefaultMaxTokens applies when the caller leaves MaxTokens unset;
// the Anthropic API requires an explicit value.
const anthropicDefaultMaxTokens = 1024

// AnthropicClient adapts the Anthropic Messages API to the ChatClient
// contract. It does not advertise the ChatStreamer capability.
type AnthropicClient struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// NewAnthropicClient creates a client for the Anthropic Messages API.
func NewAnthropicClient(apiKey, model string, logger *zap.Logger) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	if model == "" {
		return nil, errors.New("model is required")
	}

	return &AnthropicClient{
		client: anthropic.NewClient(apiKey),
		model:  model,
		logger: logger.Named("llm.anthropic"),
	}, nil
}

// Chat performs a single chat completion call. System messages are lifted
// into the request's System field; the Messages API rejects a system role
// inside the message list.
func (c *AnthropicClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error) {
	var system string
	reqMessages := make([]anthropic.Message, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
		case RoleAssistant:
			reqMessages = append(reqMessages, anthropic.NewAssistantTextMessage(m.Content))
		default:
			reqMessages = append(reqMessages, anthropic.NewUserTextMessage(m.Content))
		}
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}
	temperature := float32(opts.Temperature)

	start := time.Now()

	resp, err := c.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(c.model),
		System:      system,
		Messages:    reqMessages,
		MaxTokens:   maxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		c.logger.Error("messages request failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	content := extractText(resp)
	if content == "" {
		return nil, ClassifyError(ErrEmptyResponse)
	}

	c.logger.Info("messages request completed",
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &ChatResult{
		Content: content,
		Usage: &Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}

// Provider returns the provider this client talks to.
func (c *AnthropicClient) Provider() models.Provider {
	return models.ProviderAnthropic
}

// Model returns the configured model name.
func (c *AnthropicClient) Model() string {
	return c.model
}

func extractText(resp anthropic.MessagesResponse) string {
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			return *block.Text
		}
	}
	return ""
}

var _ ChatClient = (*AnthropicClient)(nil)
