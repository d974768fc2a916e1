package llm

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/types"
)

// DefaultGeminiModel is used when GeminiConfig.Model is empty.
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini executor.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	MaxTokens   int
}

// Gemini executes invocations through the Gemini API.
type Gemini struct {
	client *genai.Client
	cfg    GeminiConfig
	logger *zap.Logger
}

// NewGemini creates a Gemini executor. An API key is required.
func NewGemini(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, types.NewConfigError("gemini executor requires an API key", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, types.NewConfigError("create gemini client", err)
	}
	return &Gemini{
		client: client,
		cfg:    cfg,
		logger: logger.With(zap.String("component", "llm"), zap.String("provider", "gemini")),
	}, nil
}

// Name returns the provider label.
func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) generateConfig(inv crews.Invocation) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: SystemPrompt(inv.Agent)}}},
	}
	if g.cfg.Temperature != 0 {
		cfg.Temperature = genai.Ptr(g.cfg.Temperature)
	}
	if g.cfg.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(g.cfg.MaxTokens)
	}
	return cfg
}

// Invoke implements crews.Executor.
func (g *Gemini) Invoke(ctx context.Context, inv crews.Invocation) (string, error) {
	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: UserPrompt(inv)}}},
	}
	result, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, g.generateConfig(inv))
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", mapGeminiError(err)
	}

	text := result.Text()
	if text == "" {
		return "", types.NewError(types.ErrUpstreamError, "gemini returned no text").WithProvider("gemini")
	}
	if usage := result.UsageMetadata; usage != nil {
		g.logger.Debug("gemini completion",
			zap.String("task", inv.TaskID),
			zap.String("agent", inv.Agent.ID),
			zap.Int32("total_tokens", usage.TotalTokenCount),
		)
	}
	return text, nil
}

func mapGeminiError(err error) *types.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return mapHTTPError(apiErr.Code, apiErr.Message, "gemini").WithCause(err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return mapHTTPError(apiErrPtr.Code, apiErrPtr.Message, "gemini").WithCause(err)
	}
	return types.NewError(types.ErrUpstreamError, err.Error()).
		WithProvider("gemini").WithRetryable(true).WithCause(err)
}
