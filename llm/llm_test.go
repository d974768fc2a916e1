package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/agent/declarative"
	"github.com/shivanandmn/wingman/config"
	"github.com/shivanandmn/wingman/types"
)

func testInvocation() crews.Invocation {
	return crews.Invocation{
		CrewID: "content_creation_crew",
		TaskID: "research_task",
		Agent: declarative.AgentDef{
			ID:        "researcher",
			Role:      "Senior Research Analyst",
			Goal:      "Find facts",
			Backstory: "You dig deep.",
		},
		Description:    "Research AI Ethics",
		ExpectedOutput: "Key facts",
	}
}

func TestEcho(t *testing.T) {
	out, err := Echo{}.Invoke(context.Background(), testInvocation())
	require.NoError(t, err)
	assert.Equal(t, "researcher:Research AI Ethics", out)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Echo{}.Invoke(ctx, testInvocation())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPrompts(t *testing.T) {
	inv := testInvocation()
	sys := SystemPrompt(inv.Agent)
	assert.Contains(t, sys, "You are Senior Research Analyst.")
	assert.Contains(t, sys, "You dig deep.")
	assert.Contains(t, sys, "Your personal goal is: Find facts")

	user := UserPrompt(inv)
	assert.Contains(t, user, "Current task: Research AI Ethics")
	assert.Contains(t, user, "Key facts")
	assert.NotContains(t, user, "Coworkers", "no delegate, no coworker hint")
}

func TestOpenAI_Invoke(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"1","model":"m","choices":[{"index":0,"message":{"role":"assistant","content":"facts"},"finish_reason":"stop"}],"usage":{"total_tokens":12}}`))
	}))
	defer srv.Close()

	p := NewOpenAI(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/", Model: "m", Temperature: 0.3, MaxTokens: 64}, zap.NewNop())
	out, err := p.Invoke(context.Background(), testInvocation())
	require.NoError(t, err)
	assert.Equal(t, "facts", out)

	assert.Equal(t, "m", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
	require.NotNil(t, got.Temperature)
	assert.InDelta(t, 0.3, *got.Temperature, 1e-6)
	assert.Equal(t, 64, got.MaxTokens)
}

func TestOpenAI_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      types.ErrorCode
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":{"message":"slow down","type":"rate_limit"}}`, types.ErrRateLimited, true},
		{"bad request", http.StatusBadRequest, `{"error":{"message":"bad"}}`, types.ErrInvalidRequest, false},
		{"unauthorized", http.StatusUnauthorized, `nope`, types.ErrUpstreamError, false},
		{"server error", http.StatusBadGateway, ``, types.ErrUpstreamError, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}, nil).Invoke(context.Background(), testInvocation())
			require.Error(t, err)
			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, e.Code)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.Equal(t, "openai", e.Provider)
		})
	}
}

func TestOpenAI_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}, nil).Invoke(context.Background(), testInvocation())
	assert.True(t, types.IsErrorCode(err, types.ErrUpstreamError))
}

func TestOpenAI_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewOpenAI(OpenAIConfig{BaseURL: srv.URL}, nil).Invoke(ctx, testInvocation())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMapGeminiError(t *testing.T) {
	err := mapGeminiError(errors.New("dial tcp: refused"))
	assert.Equal(t, types.ErrUpstreamError, err.Code)
	assert.True(t, err.Retryable)
	assert.Equal(t, "gemini", err.Provider)
}

func TestNewExecutor(t *testing.T) {
	ctx := context.Background()

	exec, err := NewExecutor(ctx, config.LLMConfig{Provider: "echo"}, nil)
	require.NoError(t, err)
	out, err := exec.Invoke(ctx, testInvocation())
	require.NoError(t, err)
	assert.Equal(t, "researcher:Research AI Ethics", out)

	exec, err = NewExecutor(ctx, config.LLMConfig{Provider: "openai", APIKey: "k", BaseURL: "http://127.0.0.1:1"}, nil)
	require.NoError(t, err)
	assert.NotNil(t, exec)

	_, err = NewExecutor(ctx, config.LLMConfig{Provider: "llama"}, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrConfig))

	t.Setenv("GEMINI_API_KEY", "")
	_, err = NewExecutor(ctx, config.LLMConfig{Provider: "gemini"}, nil)
	assert.True(t, types.IsErrorCode(err, types.ErrConfig))
}

func TestInstrument_PassesThrough(t *testing.T) {
	boom := errors.New("boom")
	exec, err := Instrument(crews.ExecutorFunc(func(_ context.Context, inv crews.Invocation) (string, error) {
		if inv.TaskID == "bad" {
			return "", boom
		}
		return "ok", nil
	}), "test")
	require.NoError(t, err)

	out, err := exec.Invoke(context.Background(), testInvocation())
	require.NoError(t, err)
	assert.Equal(t, "ok", out)

	inv := testInvocation()
	inv.TaskID = "bad"
	_, err = exec.Invoke(context.Background(), inv)
	assert.ErrorIs(t, err, boom)
}
