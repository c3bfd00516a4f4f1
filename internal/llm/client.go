package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/factcheck-pro/backend/internal/metrics"
	"github.com/factcheck-pro/backend/pkg/circuitbreaker"
	"github.com/factcheck-pro/backend/pkg/logger"
	"github.com/factcheck-pro/backend/pkg/retry"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
	MaxAttempts int
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// backend performs one completion against a provider.
type backend interface {
	complete(ctx context.Context, model string, req CompletionRequest) (*CompletionResponse, error)
}

type Client struct {
	provider    string
	backend     backend
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	cfg.Provider = strings.ToLower(cfg.Provider)

	var b backend
	switch cfg.Provider {
	case "", ProviderOpenAI:
		cfg.Provider = ProviderOpenAI
		b = newOpenAIBackend(cfg)
	case ProviderAnthropic:
		b = newAnthropicBackend(cfg)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		HalfOpenRequests: 1,
		OpenTimeout:      30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		IsFailure:        isUpstreamFailure,
		OnStateChange: func(name string, _, to circuitbreaker.State) {
			metrics.CircuitState.WithLabelValues(name).Set(float64(to))
		},
		Logger: logger.Named("llm"),
	})

	logger.Info("LLM client initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)

	return &Client{
		provider:    cfg.Provider,
		backend:     b,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     cfg.Timeout,
		cb:          cb,
		retryConfig: retry.FromAttempts(cfg.MaxAttempts, logger.Named("llm")),
	}, nil
}

func (c *Client) Provider() string { return c.provider }

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if req.Temperature == 0 {
		req.Temperature = c.temperature
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = c.maxTokens
	}

	var result *CompletionResponse

	err := c.cb.Execute(func() error {
		return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
			resp, err := c.backend.complete(ctx, c.model, req)
			if err != nil {
				if !isUpstreamFailure(err) {
					return retry.Permanent(err)
				}
				return err
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)
			result = resp
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// isUpstreamFailure reports whether err is worth retrying and should count
// against the breaker. Rejected requests (bad key, bad model) are neither.
func isUpstreamFailure(err error) bool {
	if err == nil {
		return false
	}
	if status := statusCode(err); status != 0 {
		return status >= 500 || status == http.StatusTooManyRequests
	}
	return true
}

func statusCode(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	var anthErr *anthropic.RequestError
	if errors.As(err, &anthErr) {
		return anthErr.StatusCode
	}
	return 0
}

type openAIBackend struct {
	client *openai.Client
}

func newOpenAIBackend(cfg Config) *openAIBackend {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	return &openAIBackend{client: openai.NewClientWithConfig(config)}
}

func (b *openAIBackend) complete(ctx context.Context, model string, req CompletionRequest) (*CompletionResponse, error) {
	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	resp, err := b.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}

	return &CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

type anthropicBackend struct {
	client *anthropic.Client
}

func newAnthropicBackend(cfg Config) *anthropicBackend {
	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}
	return &anthropicBackend{client: anthropic.NewClient(cfg.APIKey, opts...)}
}

func (b *anthropicBackend) complete(ctx context.Context, model string, req CompletionRequest) (*CompletionResponse, error) {
	temperature := req.Temperature
	resp, err := b.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:       anthropic.Model(model),
		System:      req.SystemPrompt,
		Messages:    []anthropic.Message{anthropic.NewUserTextMessage(req.UserPrompt)},
		MaxTokens:   req.MaxTokens,
		Temperature: &temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create message: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == anthropic.MessagesContentTypeText {
			sb.WriteString(block.GetText())
		}
	}
	if sb.Len() == 0 {
		return nil, errors.New("message returned no text content")
	}

	return &CompletionResponse{
		Content: sb.String(),
		Usage: Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}, nil
}
