package extraction

import (
	"context"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"certpipe/internal/config"
	"certpipe/internal/constants"
	"certpipe/internal/logger"
	"certpipe/pkg/circuitbreaker"
	apperrors "certpipe/pkg/errors"
	"certpipe/pkg/metrics"
)

// ModelCaller is the chat surface the engine consumes. Satisfied by
// *Client; tests swap in fakes.
type ModelCaller interface {
	Chat(ctx context.Context, call, sessionID, systemPrompt, userMessage string) (string, error)
}

// Client drives the extraction model through its OpenAI-compatible API.
// Calls are rate limited and pass through a circuit breaker; history
// rides in the session store so repeated listings keep their context.
type Client struct {
	api         *openai.Client
	model       string
	temperature float32
	maxTokens   int
	limiter     *rate.Limiter
	breaker     *circuitbreaker.Wrapper
	sessions    *SessionStore
	logger      logger.Logger
}

func NewClient(cfg config.ExtractionConfig, breaker *circuitbreaker.Wrapper, sessions *SessionStore, log logger.Logger) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = constants.DefaultModelTemperature
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = constants.DefaultModelMaxTokens
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		api:         openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		temperature: temperature,
		maxTokens:   maxTokens,
		limiter:     limiter,
		breaker:     breaker,
		sessions:    sessions,
		logger:      log,
	}
}

// Chat sends one user message in the named session and returns the raw
// assistant reply. call labels the metrics series.
func (c *Client) Chat(ctx context.Context, call, sessionID, systemPrompt, userMessage string) (string, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", apperrors.Wrap(err, apperrors.ErrTimeout).WithDetail("call", call)
		}
	}

	messages := c.sessions.Messages(sessionID, systemPrompt, userMessage)

	start := time.Now()
	reply, err := c.complete(ctx, messages)
	metrics.ObserveExtractionCallDuration(call, time.Since(start))

	if err != nil {
		metrics.ExtractionCallsTotal.WithLabelValues(call, "error").Inc()
		return "", err
	}

	c.sessions.Record(sessionID, reply)
	metrics.ExtractionCallsTotal.WithLabelValues(call, "success").Inc()
	return reply, nil
}

func (c *Client) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	do := func() (interface{}, error) {
		resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:       c.model,
			Messages:    messages,
			Temperature: c.temperature,
			MaxTokens:   c.maxTokens,
		})
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, apperrors.ErrServiceUnavailable.WithDetail("reason", "no choices in model response")
		}
		return resp.Choices[0].Message.Content, nil
	}

	var (
		result interface{}
		err    error
	)
	if c.breaker != nil {
		result, err = c.breaker.ExecuteWithContext(ctx, do)
		c.breaker.RecordRequest(err == nil)
	} else {
		result, err = do()
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrServiceUnavailable).WithDetail("model", c.model)
	}
	return result.(string), nil
}
