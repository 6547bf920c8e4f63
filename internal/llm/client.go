package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/lever-lab/backend/internal/metrics"
	"github.com/lever-lab/backend/pkg/circuitbreaker"
	"github.com/lever-lab/backend/pkg/config"
	"github.com/lever-lab/backend/pkg/logger"
	"github.com/lever-lab/backend/pkg/retry"
)

var ErrEmptyCompletion = errors.New("completion returned no choices")

// Completer is the part of the LLM service the chat pipeline depends on.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
}

type CompletionRequest struct {
	SystemPrompt string
	History      []Message
	UserPrompt   string
	// Temperature overrides the configured sampling temperature when set.
	Temperature  *float32
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

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	breaker     *circuitbreaker.Breaker
	retryPolicy retry.Policy
}

func NewClient(cfg config.LLMConfig) *Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}

	breaker := circuitbreaker.New("llm", circuitbreaker.Settings{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		OnStateChange: func(_ string, _, to circuitbreaker.State) {
			metrics.LLMBreakerState.Set(float64(to))
		},
	})

	policy := retry.Fixed(cfg.MaxAttempts, time.Duration(cfg.BackoffMs)*time.Millisecond)
	policy.Retryable = isTransient
	policy.OnRetry = func(int, error) { metrics.LLMRetries.Inc() }

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.Int("max_attempts", cfg.MaxAttempts),
		zap.Duration("timeout", timeout),
	)

	return &Client{
		client:      openai.NewClientWithConfig(oc),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		breaker:     breaker,
		retryPolicy: policy,
	}
}

func (c *Client) Model() string {
	return c.model
}

// Complete sends one chat completion. Each attempt carries its own timeout;
// attempts are retried with a fixed backoff behind the circuit breaker.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	temperature := resolveTemperature(req.Temperature, c.temperature)

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, m := range req.History {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.UserPrompt,
	})

	var result *CompletionResponse

	err := c.breaker.Do(ctx, func() error {
		return retry.Do(ctx, c.retryPolicy, func() error {
			attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()

			resp, err := c.client.CreateChatCompletion(
				attemptCtx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return ErrEmptyCompletion
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// isTransient reports whether a failed completion may succeed on another
// attempt. Client errors other than rate limiting will not.
func isTransient(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return true
}

// Temperature returns a request override for the sampling temperature.
func Temperature(v float32) *float32 {
	return &v
}

// resolveTemperature picks the request override, else the configured value.
// go-openai omits a zero temperature from the request body, so zero is sent
// as the smallest positive float32, which samples greedily as zero does.
func resolveTemperature(override *float32, configured float32) float32 {
	t := configured
	if override != nil {
		t = *override
	}
	if t <= 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}
