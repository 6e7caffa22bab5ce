package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/duitwise/duitwise-engine/pkg/models"
)

// OpenAIClient adapts the OpenAI chat completion API (and any endpoint that
// speaks the same wire protocol) to the ChatClient contract.
type OpenAIClient struct {
	client   *openai.Client
	provider models.Provider
	model    string
	logger   *zap.Logger
}

// NewOpenAIClient creates a client for api.openai.com or a compatible
// endpoint. An empty endpoint uses the OpenAI default.
func NewOpenAIClient(apiKey, endpoint, model string, logger *zap.Logger) (*OpenAIClient, error) {
	if model == "" {
		return nil, errors.New("model is required")
	}

	cfg := openai.DefaultConfig(apiKey)
	if endpoint != "" {
		cfg.BaseURL = strings.TrimSuffix(endpoint, "/")
	}

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(cfg),
		provider: models.ProviderOpenAI,
		model:    model,
		logger:   logger.Named("llm.openai"),
	}, nil
}

// NewAzureFoundryClient creates a client for an Azure AI Foundry deployment,
// which exposes the OpenAI wire protocol behind Azure auth headers.
func NewAzureFoundryClient(apiKey, endpoint, model string, logger *zap.Logger) (*OpenAIClient, error) {
	if endpoint == "" {
		return nil, errors.New("endpoint is required for azure_foundry")
	}
	if model == "" {
		return nil, errors.New("model is required")
	}

	cfg := openai.DefaultAzureConfig(apiKey, strings.TrimSuffix(endpoint, "/"))

	return &OpenAIClient{
		client:   openai.NewClientWithConfig(cfg),
		provider: models.ProviderAzureFoundry,
		model:    model,
		logger:   logger.Named("llm.azure"),
	}, nil
}

// Chat performs a single chat completion call.
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResult, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.buildMessages(messages),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		c.logger.Error("chat completion failed",
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err))
		return nil, ClassifyError(err)
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, ClassifyError(ErrEmptyResponse)
	}

	c.logger.Info("chat completion",
		zap.Int("prompt_tokens", resp.Usage.PromptTokens),
		zap.Int("completion_tokens", resp.Usage.CompletionTokens),
		zap.Duration("elapsed", time.Since(start)))

	return &ChatResult{
		Content: resp.Choices[0].Message.Content,
		Usage: &Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// ChatStream performs a streaming chat completion, invoking onDelta per
// fragment, and returns the accumulated result. Both the plain OpenAI and
// Azure Foundry adapters share this implementation since they speak the
// same wire protocol.
func (c *OpenAIClient) ChatStream(ctx context.Context, messages []Message, opts ChatOptions, onDelta func(text string) error) (*ChatResult, error) {
	stream, err := c.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    c.buildMessages(messages),
		Temperature: float32(opts.Temperature),
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
	})
	if err != nil {
		return nil, ClassifyError(err)
	}
	defer stream.Close()

	var content strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, ClassifyError(err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		content.WriteString(delta)
		if onDelta != nil {
			if err := onDelta(delta); err != nil {
				return nil, err
			}
		}
	}

	if content.Len() == 0 {
		return nil, ClassifyError(ErrEmptyResponse)
	}

	return &ChatResult{Content: content.String()}, nil
}

// Provider returns the provider this client talks to.
func (c *OpenAIClient) Provider() models.Provider {
	return c.provider
}

// Model returns the configured model name.
func (c *OpenAIClient) Model() string {
	return c.model
}

func (c *OpenAIClient) buildMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	return out
}

var (
	_ ChatClient   = (*OpenAIClient)(nil)
	_ ChatStreamer = (*OpenAIClient)(nil)
)
