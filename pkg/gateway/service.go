// Package gateway implements the HTTP surface of the model gateway: auth,
// rate limiting, prompt management, and the completion orchestrator.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelgate/modelgate/pkg/domain"
	"github.com/modelgate/modelgate/pkg/policy"
	"github.com/modelgate/modelgate/pkg/prompt"
	"github.com/modelgate/modelgate/pkg/provider"
)

// CompletionClient is the upstream surface the orchestrator depends on.
type CompletionClient interface {
	ChatCompletion(ctx context.Context, model string, messages []provider.ChatMessage) (*provider.Completion, error)
	Models() []string
	RemoteModels(ctx context.Context) ([]string, error)
	DefaultModel() string
}

// Service orchestrates one ask: validate, resolve the prompt, check the
// access policy, call the provider, and normalize the result.
type Service struct {
	prompts *prompt.Registry
	client  CompletionClient
	gate    *policy.Gate
	metrics *Metrics
	logger  *slog.Logger
}

// NewService wires the orchestrator. gate may be nil (policy disabled) and
// metrics may be nil (recording disabled).
func NewService(prompts *prompt.Registry, client CompletionClient, gate *policy.Gate, metrics *Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		prompts: prompts,
		client:  client,
		gate:    gate,
		metrics: metrics,
		logger:  logger,
	}
}

// Ask resolves the prompt and calls the model. The returned AskResponse is
// only populated on success; failures return an error for the edge to map.
func (s *Service) Ask(ctx context.Context, subject string, req domain.AskRequest) (*domain.AskResponse, error) {
	resolved, templateName, err := s.resolvePrompt(req)
	if err != nil {
		if s.metrics != nil && templateName != "" {
			s.metrics.RecordPromptResolution(templateName, "error")
		}
		return nil, err
	}
	if s.metrics != nil && templateName != "" {
		s.metrics.RecordPromptResolution(templateName, "success")
	}

	model := req.Model
	if model == "" {
		model = s.client.DefaultModel()
	}

	if err := s.gate.Authorize(ctx, policy.Input{Subject: subject, Model: model, Path: "/v1/ask"}); err != nil {
		return nil, err
	}

	start := time.Now()
	completion, err := s.client.ChatCompletion(ctx, model, []provider.ChatMessage{
		{Role: "user", Content: resolved},
	})
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		s.metrics.RecordProviderRequest(model, status, time.Since(start))
	}
	if err != nil {
		s.logger.Error("completion failed",
			"subject", subject, "model", model, "template", templateName, "error", err)
		return nil, err
	}

	return &domain.AskResponse{
		Success:    true,
		Response:   completion.Content,
		ModelUsed:  completion.Model,
		TokensUsed: completion.Usage,
		RequestID:  RequestIDFromContext(ctx),
	}, nil
}

// resolvePrompt enforces the prompt_name XOR prompt_text contract and expands
// placeholders in either source.
func (s *Service) resolvePrompt(req domain.AskRequest) (resolved, templateName string, err error) {
	switch {
	case req.PromptName != "" && req.PromptText != "":
		return "", "", fmt.Errorf("%w: prompt_name and prompt_text are mutually exclusive", domain.ErrValidation)
	case req.PromptName == "" && req.PromptText == "":
		return "", "", fmt.Errorf("%w: one of prompt_name or prompt_text is required", domain.ErrValidation)
	case req.PromptName != "":
		resolved, err = s.prompts.Resolve(req.PromptName, req.Data)
		return resolved, req.PromptName, err
	default:
		resolved, err = prompt.ResolveLiteral(req.PromptText, req.Data)
		return resolved, "", err
	}
}

// Models returns the configured model allow-list.
func (s *Service) Models() []string {
	return s.client.Models()
}

// RemoteModels fetches the upstream provider's model catalog.
func (s *Service) RemoteModels(ctx context.Context) ([]string, error) {
	return s.client.RemoteModels(ctx)
}
