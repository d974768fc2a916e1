package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/internal/tlsutil"
	"github.com/shivanandmn/wingman/types"
)

// Defaults for OpenAI-compatible endpoints.
const (
	DefaultOpenAIBaseURL = "https://api.openai.com"
	DefaultOpenAIModel   = "gpt-4o-mini"
	defaultEndpointPath  = "/v1/chat/completions"
	defaultTimeout       = 60 * time.Second
)

// OpenAIConfig configures an OpenAI-compatible chat completions executor.
type OpenAIConfig struct {
	// Name labels the provider in errors and logs. Defaults to "openai".
	Name string

	APIKey  string
	BaseURL string
	Model   string

	// Temperature is sent only when non-zero.
	Temperature float32

	// MaxTokens is sent only when positive.
	MaxTokens int

	// Timeout bounds one HTTP exchange. Defaults to 60s.
	Timeout time.Duration

	// EndpointPath defaults to "/v1/chat/completions".
	EndpointPath string
}

// OpenAI executes invocations against an OpenAI-compatible endpoint.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
	logger *zap.Logger
}

// NewOpenAI creates an OpenAI-compatible executor.
func NewOpenAI(cfg OpenAIConfig, logger *zap.Logger) *OpenAI {
	if cfg.Name == "" {
		cfg.Name = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOpenAIBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = defaultEndpointPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OpenAI{
		cfg:    cfg,
		client: tlsutil.NewClient(cfg.Timeout),
		logger: logger.With(zap.String("component", "llm"), zap.String("provider", cfg.Name)),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float32      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Name returns the provider label.
func (p *OpenAI) Name() string { return p.cfg.Name }

// Invoke implements crews.Executor.
func (p *OpenAI) Invoke(ctx context.Context, inv crews.Invocation) (string, error) {
	body := chatRequest{
		Model: p.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt(inv.Agent)},
			{Role: "user", Content: UserPrompt(inv)},
		},
		MaxTokens: p.cfg.MaxTokens,
	}
	if p.cfg.Temperature != 0 {
		temp := p.cfg.Temperature
		body.Temperature = &temp
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + p.cfg.EndpointPath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", types.NewError(types.ErrUpstreamError, err.Error()).
			WithProvider(p.cfg.Name).WithRetryable(true).WithCause(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", mapHTTPError(resp.StatusCode, readErrorMessage(resp.Body), p.cfg.Name)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewError(types.ErrUpstreamError, "decode chat response: "+err.Error()).
			WithProvider(p.cfg.Name).WithCause(err)
	}
	if len(out.Choices) == 0 {
		return "", types.NewError(types.ErrUpstreamError, "chat response has no choices").
			WithProvider(p.cfg.Name)
	}

	p.logger.Debug("chat completion",
		zap.String("task", inv.TaskID),
		zap.String("agent", inv.Agent.ID),
		zap.String("model", out.Model),
		zap.Int("total_tokens", out.Usage.TotalTokens),
		zap.String("finish_reason", out.Choices[0].FinishReason),
	)
	return out.Choices[0].Message.Content, nil
}

// mapHTTPError converts an upstream status into a typed error. Only 429 and
// 5xx are worth retrying.
func mapHTTPError(status int, msg, provider string) *types.Error {
	if msg == "" {
		msg = http.StatusText(status)
	}
	code := types.ErrUpstreamError
	retryable := status >= http.StatusInternalServerError
	switch status {
	case http.StatusTooManyRequests:
		code, retryable = types.ErrRateLimited, true
	case http.StatusBadRequest:
		code = types.ErrInvalidRequest
	}
	return types.NewError(code, fmt.Sprintf("%s returned %d: %s", provider, status, msg)).
		WithProvider(provider).
		WithRetryable(retryable)
}

// readErrorMessage extracts the message of an OpenAI-style error body.
func readErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return strings.TrimSpace(string(data))
}
