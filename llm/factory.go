package llm

import (
	"context"
	"os"

	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/config"
	"github.com/shivanandmn/wingman/types"
)

// NewExecutor builds the executor selected by cfg.Provider and instruments
// it. An empty API key falls back to OPENAI_API_KEY or GEMINI_API_KEY.
func NewExecutor(ctx context.Context, cfg config.LLMConfig, logger *zap.Logger) (crews.Executor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var exec crews.Executor
	switch cfg.Provider {
	case "", "echo":
		exec = Echo{}
	case "openai":
		exec = NewOpenAI(OpenAIConfig{
			APIKey:      firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY")),
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}, logger)
	case "gemini":
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:      firstNonEmpty(cfg.APIKey, os.Getenv("GEMINI_API_KEY")),
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
		}, logger)
		if err != nil {
			return nil, err
		}
		exec = g
	default:
		return nil, types.Errorf(types.ErrConfig, "unknown llm provider %q", cfg.Provider)
	}

	provider := cfg.Provider
	if provider == "" {
		provider = "echo"
	}
	logger.Info("capability executor ready",
		zap.String("component", "llm"),
		zap.String("provider", provider),
		zap.String("model", cfg.Model))
	return Instrument(exec, provider)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
