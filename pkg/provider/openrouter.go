// Package provider implements the resilient client for the upstream
// OpenRouter-compatible chat-completions API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/modelgate/modelgate/internal/governance"
	"github.com/modelgate/modelgate/pkg/config"
	"github.com/modelgate/modelgate/pkg/domain"
)

const maxErrorBodyBytes = 2048

// Client calls the upstream provider with per-attempt timeouts, exponential
// backoff on transient faults, and rate-limit-aware retries. Non-retryable
// upstream statuses fail immediately.
type Client struct {
	baseURL  string
	apiKey   string
	models   []string
	http     *http.Client
	retries  *governance.RetryPolicy
	timeouts *governance.TimeoutManager
	breaker  *governance.Breaker
	logger   *slog.Logger
}

// NewClient builds a provider client from configuration. The breaker is only
// installed when enabled in the configuration.
func NewClient(cfg config.ProviderConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	var breaker *governance.Breaker
	if cfg.CircuitBreaker.Enabled {
		breaker = governance.NewBreaker(governance.BreakerConfig{
			MaxFailures: cfg.CircuitBreaker.MaxFailures,
			Cooldown:    cfg.CircuitBreaker.Cooldown.Std(),
		})
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		models:  slices.Clone(cfg.Models),
		http: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		retries: governance.NewRetryPolicy(governance.RetryConfig{
			MaxRetries:  cfg.MaxRetries,
			BackoffBase: cfg.BackoffBase.Std(),
		}),
		timeouts: governance.NewTimeoutManager(governance.TimeoutConfig{
			RequestTimeout: cfg.RequestTimeout.Std(),
		}),
		breaker: breaker,
		logger:  logger,
	}
}

// Models returns the configured model allow-list.
func (c *Client) Models() []string {
	return slices.Clone(c.models)
}

// DefaultModel returns the first configured model.
func (c *Client) DefaultModel() string {
	if len(c.models) == 0 {
		return ""
	}
	return c.models[0]
}

// Allowed reports whether the model is on the configured allow-list.
func (c *Client) Allowed(model string) bool {
	return slices.Contains(c.models, model)
}

// ChatCompletion sends the messages to the upstream model, retrying
// rate-limit responses and transient transport faults up to the configured
// ceiling. Other upstream errors fail without retry.
func (c *Client) ChatCompletion(ctx context.Context, model string, messages []ChatMessage) (*Completion, error) {
	if model == "" {
		model = c.DefaultModel()
	}
	if !c.Allowed(model) {
		return nil, fmt.Errorf("%w: model %q is not in the configured allow-list", domain.ErrValidation, model)
	}
	if c.apiKey == "" {
		return nil, &domain.ProviderError{Err: fmt.Errorf("provider API key is not configured")}
	}

	body, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("encode provider request: %w", err)
	}

	if c.breaker == nil {
		return c.completeWithRetry(ctx, model, body)
	}

	var completion *Completion
	err = c.breaker.Do(ctx, func(ctx context.Context) error {
		var callErr error
		completion, callErr = c.completeWithRetry(ctx, model, body)
		return callErr
	})
	if err != nil {
		return nil, err
	}
	return completion, nil
}

func (c *Client) completeWithRetry(ctx context.Context, model string, body []byte) (*Completion, error) {
	maxRetries := c.retries.MaxRetries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		status, respBody, hint, err := c.attempt(ctx, body)

		switch {
		case err != nil:
			if !governance.IsTransient(err) {
				return nil, &domain.ProviderError{Err: err}
			}
			if attempt == maxRetries {
				return nil, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, attempt+1, err)
			}
			delay := c.retries.Backoff(attempt)
			c.logger.Warn("provider call failed, retrying",
				"model", model, "attempt", attempt+1, "delay", delay, "error", err)
			if waitErr := c.retries.Wait(ctx, delay); waitErr != nil {
				return nil, waitErr
			}

		case status == http.StatusTooManyRequests:
			if attempt == maxRetries {
				return nil, fmt.Errorf("%w after %d attempts: provider rate limited", domain.ErrRetriesExhausted, attempt+1)
			}
			delay := c.retries.RateLimitDelay(hint, attempt)
			c.logger.Warn("provider rate limited, retrying",
				"model", model, "attempt", attempt+1, "delay", delay)
			if waitErr := c.retries.Wait(ctx, delay); waitErr != nil {
				return nil, waitErr
			}

		case status < 200 || status >= 300:
			return nil, &domain.ProviderError{Status: status, Body: truncate(respBody)}

		default:
			return parseCompletion(model, respBody)
		}
	}

	return nil, domain.ErrRetriesExhausted
}

// RemoteModels fetches the upstream model catalog, using the same retry and
// classification rules as completions.
func (c *Client) RemoteModels(ctx context.Context) ([]string, error) {
	maxRetries := c.retries.MaxRetries()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		status, respBody, hint, err := c.roundTrip(ctx, http.MethodGet, "/models", nil)

		switch {
		case err != nil:
			if !governance.IsTransient(err) {
				return nil, &domain.ProviderError{Err: err}
			}
			if attempt == maxRetries {
				return nil, fmt.Errorf("%w after %d attempts: %w", domain.ErrRetriesExhausted, attempt+1, err)
			}
			if waitErr := c.retries.Wait(ctx, c.retries.Backoff(attempt)); waitErr != nil {
				return nil, waitErr
			}

		case status == http.StatusTooManyRequests:
			if attempt == maxRetries {
				return nil, fmt.Errorf("%w after %d attempts: provider rate limited", domain.ErrRetriesExhausted, attempt+1)
			}
			if waitErr := c.retries.Wait(ctx, c.retries.RateLimitDelay(hint, attempt)); waitErr != nil {
				return nil, waitErr
			}

		case status < 200 || status >= 300:
			return nil, &domain.ProviderError{Status: status, Body: truncate(respBody)}

		default:
			return parseModelList(respBody)
		}
	}

	return nil, domain.ErrRetriesExhausted
}

func parseModelList(body []byte) ([]string, error) {
	var parsed modelListResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.ProviderError{Err: fmt.Errorf("decode model list: %w", err)}
	}
	models := make([]string, 0, len(parsed.Data))
	for _, m := range parsed.Data {
		if m.ID != "" {
			models = append(models, m.ID)
		}
	}
	return models, nil
}

// attempt performs one HTTP round-trip of a chat completion. hint is the
// Retry-After value in whole seconds, zero when absent or unparseable.
func (c *Client) attempt(ctx context.Context, body []byte) (status int, respBody []byte, hint time.Duration, err error) {
	return c.roundTrip(ctx, http.MethodPost, "/chat/completions", body)
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte) (status int, respBody []byte, hint time.Duration, err error) {
	ctx, cancel := c.timeouts.WithRequestTimeout(ctx)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, 0, err
	}

	if secs, convErr := strconv.Atoi(resp.Header.Get("Retry-After")); convErr == nil && secs > 0 {
		hint = time.Duration(secs) * time.Second
	}
	return resp.StatusCode, respBody, hint, nil
}

func parseCompletion(requestedModel string, body []byte) (*Completion, error) {
	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, &domain.ProviderError{Err: fmt.Errorf("decode provider response: %w", err)}
	}
	if len(parsed.Choices) == 0 {
		return nil, &domain.ProviderError{Err: fmt.Errorf("provider response contained no choices")}
	}

	completion := &Completion{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
	}
	if completion.Model == "" {
		completion.Model = requestedModel
	}
	if parsed.Usage != nil {
		completion.Usage = &domain.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return completion, nil
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes])
	}
	return string(body)
}
