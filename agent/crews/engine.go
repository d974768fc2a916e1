package crews

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shivanandmn/wingman/agent/declarative"
	"github.com/shivanandmn/wingman/types"
)

const instrumentationName = "github.com/shivanandmn/wingman/agent/crews"

// Context keys the engine adds for downstream units on the sequential line.
const (
	PreviousOutputKey = "previous_task_output"
	OutputKeySuffix   = "_output"
)

// DefaultMaxDelegationDepth bounds nested delegation chains.
const DefaultMaxDelegationDepth = 3

// Recorder receives engine measurements.
type Recorder interface {
	RecordRun(crewID string, status CrewStatus, d time.Duration)
	RecordTask(crewID, taskID, agentID string, status TaskStatus, d time.Duration)
	RecordInvocation(crewID, agentID string, delegated bool)
	RecordRateLimitWait(crewID string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RecordRun(string, CrewStatus, time.Duration)                 {}
func (nopRecorder) RecordTask(string, string, string, TaskStatus, time.Duration) {}
func (nopRecorder) RecordInvocation(string, string, bool)                       {}
func (nopRecorder) RecordRateLimitWait(string, time.Duration)                   {}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRecorder sets the metrics sink.
func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) EngineOption {
	return func(e *Engine) {
		if t != nil {
			e.tracer = t
		}
	}
}

// WithRateWindow changes the rolling window max_rpm is measured against.
func WithRateWindow(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.window = d
		}
	}
}

// WithMaxDelegationDepth bounds nested delegation. Zero disables delegation.
func WithMaxDelegationDepth(n int) EngineOption {
	return func(e *Engine) {
		if n >= 0 {
			e.maxDepth = n
		}
	}
}

// WithClock replaces time.Now for run timestamps and durations. The rate
// limiter always measures its window on the real clock.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// Engine 驱动执行计划并产出 CrewResult。
// Engine 本身无状态，可被并发运行共享；每次运行拥有独立的限流窗口。
type Engine struct {
	executor Executor
	logger   *zap.Logger
	recorder Recorder
	tracer   trace.Tracer
	window   time.Duration
	maxDepth int
	now      func() time.Time
}

// NewEngine creates an engine invoking exec for every unit.
func NewEngine(exec Executor, opts ...EngineOption) *Engine {
	e := &Engine{
		executor: exec,
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
		tracer:   otel.Tracer(instrumentationName),
		window:   DefaultRateWindow,
		maxDepth: DefaultMaxDelegationDepth,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "crew_engine"))
	return e
}

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	runID      string
	observer   Observer
	structured bool
}

// WithRunID sets the run identifier instead of generating one.
func WithRunID(id string) RunOption {
	return func(o *runOptions) { o.runID = id }
}

// WithObserver registers a callback for unit state transitions.
func WithObserver(obs Observer) RunOption {
	return func(o *runOptions) { o.observer = obs }
}

// WithStructuredOutput extracts embedded JSON from successful outputs.
func WithStructuredOutput() RunOption {
	return func(o *runOptions) { o.structured = true }
}

// run holds the state of one execution. The limiter is the only state shared
// between concurrently running units.
type run struct {
	id         string
	engine     *Engine
	plan       *Plan
	limiter    *WindowLimiter
	observer   Observer
	structured bool
	logger     *zap.Logger
}

// Execute drives plan to completion and always returns a result. vars is
// the fully merged context of the run; it is not modified.
func (e *Engine) Execute(ctx context.Context, plan *Plan, vars map[string]string, opts ...RunOption) *CrewResult {
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.runID == "" {
		o.runID = uuid.NewString()
	}

	started := e.now()
	ctx = types.WithCrewID(types.WithRunID(ctx, o.runID), plan.CrewID)
	ctx, span := e.tracer.Start(ctx, "crew.run", trace.WithAttributes(
		attribute.String("crew.id", plan.CrewID),
		attribute.String("crew.mode", string(plan.Mode)),
		attribute.Int("crew.units", len(plan.Units)),
		attribute.Int("crew.max_rpm", plan.MaxRPM),
		attribute.String("run.id", o.runID),
	))
	defer span.End()

	limiter := NewWindowLimiter(plan.MaxRPM, e.window)
	r := &run{
		id:         o.runID,
		engine:     e,
		plan:       plan,
		limiter:    limiter,
		observer:   o.observer,
		structured: o.structured,
		logger:     e.logger.With(zap.String("crew", plan.CrewID), zap.String("run_id", o.runID)),
	}
	r.logger.Info("crew run started",
		zap.String("mode", string(plan.Mode)),
		zap.Int("units", len(plan.Units)),
		zap.Int("max_rpm", plan.MaxRPM),
	)

	results := make([]TaskResult, len(plan.Units))
	if plan.Mode == declarative.ModeParallel {
		r.executeParallel(ctx, cloneVars(vars), results)
	} else {
		r.executeSequential(ctx, cloneVars(vars), results)
	}

	res := Aggregate(o.runID, plan, results)
	res.StartedAt = started
	res.FinishedAt = e.now()

	span.SetAttributes(attribute.String("crew.status", string(res.Status)))
	if res.Status != CrewSucceeded {
		span.SetStatus(codes.Error, string(res.Status))
	}
	e.recorder.RecordRun(plan.CrewID, res.Status, res.Duration())
	r.logger.Info("crew run finished",
		zap.String("status", string(res.Status)),
		zap.Int("succeeded", res.Summary.Succeeded),
		zap.Int("failed", res.Summary.Failed),
		zap.Int("cancelled", res.Summary.Cancelled),
		zap.Int("skipped", res.Summary.Skipped),
		zap.Duration("duration", res.Duration()),
	)
	return &res
}

// executeSequential runs units in declared order. A failed required unit
// halts the line and the remaining units are skipped.
func (r *run) executeSequential(ctx context.Context, vars map[string]string, results []TaskResult) {
	halted := false
	for i, u := range r.plan.Units {
		switch {
		case halted:
			results[i] = r.settle(u, TaskSkipped, errors.New("skipped after a required task failed"))
		case ctx.Err() != nil:
			results[i] = r.settle(u, TaskCancelled, ctx.Err())
		default:
			results[i] = r.runUnit(ctx, u, vars)
			carryForward(vars, results[i])
			if results[i].Status == TaskFailed && u.Required {
				halted = true
				r.logger.Warn("required task failed, halting crew", zap.String("task", u.TaskID))
			}
		}
	}
}

// executeParallel dispatches concurrent units to a bounded pool while the
// remaining units run in order on the main line. Failures never cancel
// siblings; every unit reports its own status.
func (r *run) executeParallel(ctx context.Context, vars map[string]string, results []TaskResult) {
	var g errgroup.Group
	if r.plan.MaxConcurrency > 0 {
		g.SetLimit(r.plan.MaxConcurrency)
	}

	// Pool units only ever read base.
	base := cloneVars(vars)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		for _, u := range r.plan.Units {
			if !u.Concurrent {
				continue
			}
			g.Go(func() error {
				results[u.Index] = r.runUnit(ctx, u, base)
				return nil
			})
		}
	}()

	for _, u := range r.plan.Units {
		if u.Concurrent {
			continue
		}
		results[u.Index] = r.runUnit(ctx, u, vars)
		carryForward(vars, results[u.Index])
	}

	<-dispatched
	_ = g.Wait()
}

// runUnit walks one unit through Pending, ContextBound and Dispatched to a
// terminal state.
func (r *run) runUnit(ctx context.Context, u Unit, vars map[string]string) TaskResult {
	started := r.engine.now()
	tr := newUnitTracker(r.id, r.plan.CrewID, u, r.observer, r.engine.now)
	res := TaskResult{TaskID: u.TaskID, AgentID: u.AgentID, Required: u.Required}

	ctx, span := r.engine.tracer.Start(ctx, "crew.unit", trace.WithAttributes(
		attribute.String("task.id", u.TaskID),
		attribute.String("agent.id", u.AgentID),
		attribute.Int("unit.index", u.Index),
	))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return r.finish(span, tr, res, started, TaskCancelled, err)
	}

	res.Description = Bind(u.DescriptionTemplate, vars)
	res.ExpectedOutput = Bind(u.ExpectedOutputTemplate, vars)
	r.advance(tr, StateContextBound, "", "")

	waited, err := r.limiter.Wait(ctx)
	r.engine.recorder.RecordRateLimitWait(r.plan.CrewID, waited)
	if err != nil {
		return r.finish(span, tr, res, started, TaskCancelled, err)
	}
	if waited > 0 {
		r.logger.Debug("rate limit delayed task", zap.String("task", u.TaskID), zap.Duration("waited", waited))
	}
	r.advance(tr, StateDispatched, "", "")

	var calls atomic.Int32
	inv := r.invocation(u.TaskID, u.Agent, res.Description, res.ExpectedOutput, vars, 0, &calls)
	output, err := r.call(ctx, inv, false, &calls)
	res.Invocations = int(calls.Load())

	switch {
	case err == nil:
		res.Output = output
		if r.structured {
			if raw, ok := ExtractJSON(output); ok {
				res.Structured = raw
			}
		}
		return r.finish(span, tr, res, started, TaskSucceeded, nil)
	case ctx.Err() != nil && types.IsCancellation(err):
		return r.finish(span, tr, res, started, TaskCancelled, err)
	default:
		return r.finish(span, tr, res, started, TaskFailed, types.NewCapabilityError(u.TaskID, err))
	}
}

// settle terminates a unit that never ran.
func (r *run) settle(u Unit, status TaskStatus, reason error) TaskResult {
	tr := newUnitTracker(r.id, r.plan.CrewID, u, r.observer, r.engine.now)
	res := TaskResult{TaskID: u.TaskID, AgentID: u.AgentID, Required: u.Required}
	return r.finish(nil, tr, res, r.engine.now(), status, reason)
}

func (r *run) finish(span trace.Span, tr *unitTracker, res TaskResult, started time.Time, status TaskStatus, err error) TaskResult {
	res.Status = status
	res.Duration = r.engine.now().Sub(started).Milliseconds()
	if err != nil {
		res.Error = err.Error()
		switch status {
		case TaskCancelled:
			res.ErrorCode = types.ErrCancelled
		case TaskFailed:
			res.ErrorCode = types.ErrCapability
		}
	}
	r.advance(tr, UnitState(status), res.Output, res.Error)

	if span != nil {
		span.SetAttributes(attribute.String("task.status", string(status)), attribute.Int("task.invocations", res.Invocations))
		if status == TaskFailed {
			span.RecordError(err)
			span.SetStatus(codes.Error, res.Error)
		}
	}
	r.engine.recorder.RecordTask(r.plan.CrewID, res.TaskID, res.AgentID, status, time.Duration(res.Duration)*time.Millisecond)

	fields := []zap.Field{
		zap.String("task", res.TaskID),
		zap.String("agent", res.AgentID),
		zap.String("status", string(status)),
		zap.Int64("duration_ms", res.Duration),
	}
	switch {
	case status == TaskFailed:
		r.logger.Warn("task failed", append(fields, zap.Error(err))...)
	case r.plan.Verbose:
		r.logger.Info("task finished", fields...)
	default:
		r.logger.Debug("task finished", fields...)
	}
	return res
}

func (r *run) advance(tr *unitTracker, to UnitState, output, errText string) {
	if err := tr.move(to, output, errText); err != nil {
		r.logger.Error("unit state machine violated", zap.Error(err))
	}
}

// invocation builds the executor input. When the agent may delegate, the
// returned Invocation carries a Delegate hook that charges the run's rate
// budget and counts into calls.
func (r *run) invocation(taskID string, agent declarative.AgentDef, description, expected string, vars map[string]string, depth int, calls *atomic.Int32) Invocation {
	frozen := cloneVars(vars)
	inv := Invocation{
		RunID:          r.id,
		CrewID:         r.plan.CrewID,
		TaskID:         taskID,
		Agent:          agent,
		Description:    description,
		ExpectedOutput: expected,
		Context:        cloneVars(frozen),
		Depth:          depth,
	}
	if !agent.AllowDelegation || depth >= r.engine.maxDepth {
		return inv
	}
	for _, id := range r.plan.AgentIDs {
		if id != agent.ID {
			inv.Coworkers = append(inv.Coworkers, id)
		}
	}
	if len(inv.Coworkers) == 0 {
		return inv
	}

	inv.delegate = func(ctx context.Context, agentID, desc, exp string) (string, error) {
		target, ok := r.plan.Member(agentID)
		if !ok || agentID == agent.ID {
			return "", fmt.Errorf("%w: %q is not a coworker of %q", ErrDelegationNotAllowed, agentID, agent.ID)
		}
		waited, err := r.limiter.Wait(ctx)
		r.engine.recorder.RecordRateLimitWait(r.plan.CrewID, waited)
		if err != nil {
			return "", err
		}
		r.logger.Debug("delegating",
			zap.String("task", taskID),
			zap.String("from", agent.ID),
			zap.String("to", agentID),
			zap.Int("depth", depth+1),
		)
		sub := r.invocation(taskID, target, desc, exp, frozen, depth+1, calls)
		return r.call(ctx, sub, true, calls)
	}
	return inv
}

// call invokes the executor once, converting a panic into an error.
func (r *run) call(ctx context.Context, inv Invocation, delegated bool, calls *atomic.Int32) (out string, err error) {
	calls.Add(1)
	r.engine.recorder.RecordInvocation(r.plan.CrewID, inv.Agent.ID, delegated)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executor panic: %v", p)
		}
	}()
	return r.engine.executor.Invoke(ctx, inv)
}

// carryForward exposes a successful output to later units on the same line.
func carryForward(vars map[string]string, res TaskResult) {
	if res.Status != TaskSucceeded {
		return
	}
	vars[PreviousOutputKey] = res.Output
	vars[res.TaskID+OutputKeySuffix] = res.Output
}
