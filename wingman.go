// =============================================================================
// Package wingman: One-Call Crew Manager Construction
// =============================================================================
// Builds a crews.Manager with its definition store, engine and capability
// executor in one call.
//
// Usage:
//
//	m, err := wingman.New(wingman.WithDefinitionsDir("configs"), wingman.WithOpenAI("gpt-4o-mini"))
//	res, err := m.Run(ctx, "content_creation_crew", map[string]string{"topic": "AI Ethics"})
//
// =============================================================================
package wingman

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/agent/declarative"
	"github.com/shivanandmn/wingman/config"
	"github.com/shivanandmn/wingman/llm"
)

// Option configures the manager created by New.
type Option func(*options)

type options struct {
	executor    crews.Executor
	llm         config.LLMConfig
	dir         string
	sources     []declarative.Source
	defaults    map[string]string
	engineOpts  []crews.EngineOption
	managerOpts []crews.ManagerOption
	logger      *zap.Logger
}

// WithExecutor sets a pre-built capability executor.
func WithExecutor(exec crews.Executor) Option {
	return func(o *options) { o.executor = exec }
}

// WithEcho uses the offline echo executor.
func WithEcho() Option {
	return func(o *options) { o.llm.Provider = "echo" }
}

// WithOpenAI uses an OpenAI-compatible chat endpoint with the given model.
// The API key falls back to OPENAI_API_KEY.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.llm.Provider = "openai"
		o.llm.Model = model
	}
}

// WithGemini uses Google Gemini with the given model. The API key falls back
// to GEMINI_API_KEY.
func WithGemini(model string) Option {
	return func(o *options) {
		o.llm.Provider = "gemini"
		o.llm.Model = model
	}
}

// WithAPIKey overrides the API key for provider shortcuts.
func WithAPIKey(key string) Option {
	return func(o *options) { o.llm.APIKey = key }
}

// WithLLMConfig replaces the whole executor configuration.
func WithLLMConfig(cfg config.LLMConfig) Option {
	return func(o *options) { o.llm = cfg }
}

// WithDefinitionsDir loads agents, tasks and crews from dir.
func WithDefinitionsDir(dir string) Option {
	return func(o *options) { o.dir = dir }
}

// WithSources loads definitions from in-memory sources. They are loaded
// instead of the directory when both are given.
func WithSources(sources ...declarative.Source) Option {
	return func(o *options) { o.sources = append(o.sources, sources...) }
}

// WithDefaults seeds the process default context.
func WithDefaults(defaults map[string]string) Option {
	return func(o *options) { o.defaults = defaults }
}

// WithEngineOptions passes options through to crews.NewEngine.
func WithEngineOptions(opts ...crews.EngineOption) Option {
	return func(o *options) { o.engineOpts = append(o.engineOpts, opts...) }
}

// WithManagerOptions passes options through to crews.NewManager.
func WithManagerOptions(opts ...crews.ManagerOption) Option {
	return func(o *options) { o.managerOpts = append(o.managerOpts, opts...) }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New creates a Manager and loads its initial definitions.
func New(ctx context.Context, opts ...Option) (*crews.Manager, error) {
	o := &options{llm: config.DefaultConfig().LLM}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if o.dir == "" && len(o.sources) == 0 {
		return nil, errors.New("definitions are required: use WithDefinitionsDir or WithSources")
	}

	exec := o.executor
	if exec == nil {
		var err error
		if exec, err = llm.NewExecutor(ctx, o.llm, o.logger); err != nil {
			return nil, fmt.Errorf("create %s executor: %w", o.llm.Provider, err)
		}
	}

	engineOpts := append([]crews.EngineOption{crews.WithLogger(o.logger)}, o.engineOpts...)
	managerOpts := append([]crews.ManagerOption{crews.WithDefaults(o.defaults)}, o.managerOpts...)
	m := crews.NewManager(declarative.NewStore(o.logger), crews.NewEngine(exec, engineOpts...), o.logger, managerOpts...)

	var err error
	if len(o.sources) > 0 {
		err = m.Reload(o.sources...)
	} else {
		err = m.ReloadDir(o.dir)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}
