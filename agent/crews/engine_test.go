package crews

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/types"
)

func TestEngine_ContentCreationSequential(t *testing.T) {
	plan := resolvePlan(t, contentDefs, "content_creation_crew")
	engine := NewEngine(echoExecutor, WithLogger(zap.NewNop()))

	res := engine.Execute(context.Background(), plan, map[string]string{"topic": "AI Ethics"})

	require.Equal(t, CrewSucceeded, res.Status)
	assert.Equal(t, []string{"research_task", "writing_task", "review_task"}, taskIDs(res.Tasks))
	assert.NotEmpty(t, res.RunID)

	research := res.Tasks[0]
	assert.Equal(t, "researcher:Research AI Ethics and gather key information", research.Output)
	assert.Equal(t, "Key facts about AI Ethics", research.ExpectedOutput)
	assert.Equal(t, TaskSucceeded, research.Status)
	assert.Equal(t, 1, research.Invocations)

	writing := res.Tasks[1]
	assert.Equal(t, "Write an article about AI Ethics based on "+research.Output, writing.Description)

	review := res.Tasks[2]
	assert.Equal(t, "Review the draft "+writing.Output, review.Description)
	assert.Equal(t, review.Output, res.Summary.FinalOutput)
	assert.Equal(t, research.Output, res.Outputs["research_task"])
	assert.Equal(t, 3, res.Summary.Succeeded)
	assert.False(t, res.FinishedAt.Before(res.StartedAt))
}

func TestEngine_SequentialFailurePolicy(t *testing.T) {
	doc := func(required bool) string {
		return fmt.Sprintf(`
agents: {a: {}}
tasks:
  first: {description: one, expected_output: o, agent: a}
  broken: {description: two, expected_output: o, agent: a, required: %t}
  last: {description: three, expected_output: o, agent: a}
crews:
  c: {agents: [a], tasks: [first, broken, last], max_rpm: 0}
`, required)
	}
	exec := ExecutorFunc(func(_ context.Context, inv Invocation) (string, error) {
		if inv.TaskID == "broken" {
			return "", errors.New("backend unavailable")
		}
		return "ok:" + inv.TaskID, nil
	})

	t.Run("optional failure continues", func(t *testing.T) {
		res := NewEngine(exec).Execute(context.Background(), resolvePlan(t, doc(false), "c"), nil)
		assert.Equal(t, CrewSucceeded, res.Status)
		assert.Equal(t, TaskFailed, res.Tasks[1].Status)
		assert.Equal(t, types.ErrCapability, res.Tasks[1].ErrorCode)
		assert.Contains(t, res.Tasks[1].Error, "backend unavailable")
		assert.Equal(t, TaskSucceeded, res.Tasks[2].Status)
		assert.Equal(t, 1, res.Summary.Failed)
		assert.NotContains(t, res.Outputs, "broken")
	})

	t.Run("required failure halts", func(t *testing.T) {
		res := NewEngine(exec).Execute(context.Background(), resolvePlan(t, doc(true), "c"), nil)
		assert.Equal(t, CrewFailed, res.Status)
		assert.Equal(t, TaskSucceeded, res.Tasks[0].Status)
		assert.Equal(t, TaskFailed, res.Tasks[1].Status)
		assert.Equal(t, TaskSkipped, res.Tasks[2].Status)
		assert.Zero(t, res.Tasks[2].Invocations)
		assert.Equal(t, 1, res.Summary.Skipped)
	})
}

func TestEngine_PanicBecomesFailure(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, Invocation) (string, error) {
		panic("boom")
	})
	plan := resolvePlan(t, contentDefs, "content_creation_crew")
	res := NewEngine(exec).Execute(context.Background(), plan, nil)

	for _, r := range res.Tasks {
		assert.Equal(t, TaskFailed, r.Status)
		assert.Contains(t, r.Error, "executor panic: boom")
	}
	assert.Equal(t, CrewSucceeded, res.Status, "no task is required")
}

const parallelDefs = `
agents:
  a: {allow_delegation: false}
tasks:
  p1: {description: "p1 {topic}", expected_output: o, agent: a, async_execution: true}
  p2: {description: "p2", expected_output: o, agent: a, async_execution: true}
  p3: {description: "p3", expected_output: o, agent: a, async_execution: true}
  p4: {description: "p4", expected_output: o, agent: a, async_execution: true}
  p5: {description: "p5", expected_output: o, agent: a, async_execution: true}
crews:
  wide: {agents: [a], tasks: [p1, p2, p3, p4, p5], process: parallel, max_rpm: 0}
  capped: {agents: [a], tasks: [p1, p2, p3, p4, p5], process: parallel, max_rpm: 0, max_concurrency: 2}
`

func TestEngine_ParallelStartsWithoutDelay(t *testing.T) {
	plan := resolvePlan(t, parallelDefs, "wide")

	var started atomic.Int32
	all := make(chan struct{})
	exec := ExecutorFunc(func(ctx context.Context, inv Invocation) (string, error) {
		if started.Add(1) == int32(len(plan.Units)) {
			close(all)
		}
		select {
		case <-all:
			return inv.TaskID, nil
		case <-time.After(2 * time.Second):
			return "", errors.New("siblings never started")
		}
	})

	res := NewEngine(exec).Execute(context.Background(), plan, map[string]string{"topic": "go"})
	require.Equal(t, CrewSucceeded, res.Status)
	assert.Equal(t, 5, res.Summary.Succeeded)
	assert.Equal(t, []string{"p1", "p2", "p3", "p4", "p5"}, taskIDs(res.Tasks), "presentation keeps declared order")
	assert.Equal(t, "p1 go", res.Tasks[0].Description)
}

func TestEngine_ParallelConcurrencyCap(t *testing.T) {
	plan := resolvePlan(t, parallelDefs, "capped")

	var running, peak atomic.Int32
	exec := ExecutorFunc(func(ctx context.Context, inv Invocation) (string, error) {
		n := running.Add(1)
		defer running.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return inv.TaskID, nil
	})

	res := NewEngine(exec).Execute(context.Background(), plan, nil)
	require.Equal(t, CrewSucceeded, res.Status)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestEngine_ParallelNoCascadingCancellation(t *testing.T) {
	plan := resolvePlan(t, parallelDefs, "wide")
	exec := ExecutorFunc(func(ctx context.Context, inv Invocation) (string, error) {
		if inv.TaskID == "p2" {
			return "", errors.New("p2 broke")
		}
		time.Sleep(10 * time.Millisecond)
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "done", nil
	})

	res := NewEngine(exec).Execute(context.Background(), plan, nil)
	assert.Equal(t, CrewSucceeded, res.Status)
	assert.Equal(t, 4, res.Summary.Succeeded)
	assert.Equal(t, TaskFailed, res.Tasks[1].Status)
}

func TestEngine_ParallelMainLineAndCrossReferences(t *testing.T) {
	doc := `
agents: {a: {allow_delegation: false}}
tasks:
  first: {description: "first", expected_output: o, agent: a}
  side: {description: "side sees {first_output}", expected_output: o, agent: a, async_execution: true}
  second: {description: "second sees {first_output}", expected_output: o, agent: a}
crews:
  mixed: {agents: [a], tasks: [first, side, second], process: parallel, max_rpm: 0}
`
	res := NewEngine(echoExecutor).Execute(context.Background(), resolvePlan(t, doc, "mixed"), nil)
	require.Equal(t, CrewSucceeded, res.Status)

	side, _ := res.Task("side")
	assert.Equal(t, "side sees {first_output}", side.Description, "cross-unit placeholders stay literal in the pool")
	second, _ := res.Task("second")
	assert.Equal(t, "second sees a:first", second.Description)
}

// TestEngine_RateLimitBoundsInvocations injects a counting executor and
// checks that no window holds more than max_rpm starts.
func TestEngine_RateLimitBoundsInvocations(t *testing.T) {
	const window = 150 * time.Millisecond
	doc := `
agents: {a: {allow_delegation: false}}
tasks:
  t1: {description: d, expected_output: o, agent: a, async_execution: true}
  t2: {description: d, expected_output: o, agent: a, async_execution: true}
  t3: {description: d, expected_output: o, agent: a, async_execution: true}
  t4: {description: d, expected_output: o, agent: a, async_execution: true}
  t5: {description: d, expected_output: o, agent: a, async_execution: true}
crews:
  limited: {agents: [a], tasks: [t1, t2, t3, t4, t5], process: parallel, max_rpm: 2}
`
	var mu sync.Mutex
	var starts []time.Time
	exec := ExecutorFunc(func(context.Context, Invocation) (string, error) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		return "ok", nil
	})

	var waits atomic.Int64
	rec := &countingRecorder{waits: &waits}
	began := time.Now()
	res := NewEngine(exec, WithRateWindow(window), WithRecorder(rec)).
		Execute(context.Background(), resolvePlan(t, doc, "limited"), nil)

	require.Equal(t, CrewSucceeded, res.Status)
	require.Len(t, starts, 5)
	assert.GreaterOrEqual(t, time.Since(began), 2*window-20*time.Millisecond)

	sortTimes(starts)
	for i := 0; i+2 < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i+2].Sub(starts[i]), window-10*time.Millisecond)
	}
	assert.Positive(t, waits.Load())
}

func TestEngine_DelegationConsumesBudget(t *testing.T) {
	const window = 120 * time.Millisecond
	doc := `
agents:
  lead: {role: Lead}
  helper: {role: Helper, allow_delegation: false}
tasks:
  plan_task: {description: "plan {topic}", expected_output: o, agent: lead}
crews:
  team: {agents: [lead, helper], tasks: [plan_task], max_rpm: 1}
`
	var calls []string
	exec := ExecutorFunc(func(ctx context.Context, inv Invocation) (string, error) {
		calls = append(calls, fmt.Sprintf("%s@%d", inv.Agent.ID, inv.Depth))
		if inv.Agent.ID == "helper" {
			assert.False(t, inv.CanDelegate())
			assert.Equal(t, "go", inv.Context["topic"])
			return "notes", nil
		}
		assert.Equal(t, []string{"helper"}, inv.Coworkers)
		_, err := inv.Delegate(ctx, "stranger", "x", "y")
		assert.ErrorIs(t, err, ErrDelegationNotAllowed)

		sub, err := inv.Delegate(ctx, "helper", "collect notes", "notes")
		if err != nil {
			return "", err
		}
		return "lead used " + sub, nil
	})

	began := time.Now()
	res := NewEngine(exec, WithRateWindow(window)).
		Execute(context.Background(), resolvePlan(t, doc, "team"), map[string]string{"topic": "go"})

	require.Equal(t, CrewSucceeded, res.Status)
	assert.Equal(t, "lead used notes", res.Tasks[0].Output)
	assert.Equal(t, 2, res.Tasks[0].Invocations)
	assert.Equal(t, 2, res.Summary.Invocations)
	assert.Equal(t, []string{"lead@0", "helper@1"}, calls)
	assert.GreaterOrEqual(t, time.Since(began), window-10*time.Millisecond, "delegated call waits for budget")
}

func TestEngine_DelegationDisabled(t *testing.T) {
	exec := ExecutorFunc(func(ctx context.Context, inv Invocation) (string, error) {
		_, err := inv.Delegate(ctx, "writer", "x", "y")
		return "", err
	})
	plan := resolvePlan(t, contentDefs, "content_creation_crew")

	res := NewEngine(exec, WithMaxDelegationDepth(0)).Execute(context.Background(), plan, nil)
	for _, r := range res.Tasks {
		assert.Contains(t, r.Error, ErrDelegationNotAllowed.Error())
	}
}

func TestEngine_CancellationMarksPendingUnits(t *testing.T) {
	plan := resolvePlan(t, contentDefs, "content_creation_crew")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := ExecutorFunc(func(ctx context.Context, inv Invocation) (string, error) {
		if inv.TaskID == "writing_task" {
			cancel()
			<-ctx.Done()
			return "", ctx.Err()
		}
		return "done", nil
	})

	res := NewEngine(exec).Execute(ctx, plan, nil)
	assert.Equal(t, CrewCancelled, res.Status)
	assert.Equal(t, TaskSucceeded, res.Tasks[0].Status, "completed units keep their result")
	assert.Equal(t, TaskCancelled, res.Tasks[1].Status)
	assert.Equal(t, types.ErrCancelled, res.Tasks[1].ErrorCode)
	assert.Equal(t, TaskCancelled, res.Tasks[2].Status)
	assert.Equal(t, 2, res.Summary.Cancelled)
}

func TestEngine_CancelledWhileWaitingForBudget(t *testing.T) {
	doc := `
agents: {a: {allow_delegation: false}}
tasks:
  t1: {description: d, expected_output: o, agent: a}
  t2: {description: d, expected_output: o, agent: a}
crews:
  slow: {agents: [a], tasks: [t1, t2], max_rpm: 1}
`
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var events []UnitEvent
	res := NewEngine(echoExecutor, WithRateWindow(time.Hour)).Execute(ctx, resolvePlan(t, doc, "slow"), nil,
		WithObserver(func(ev UnitEvent) { events = append(events, ev) }))

	assert.Equal(t, TaskSucceeded, res.Tasks[0].Status)
	assert.Equal(t, TaskCancelled, res.Tasks[1].Status)
	last := events[len(events)-1]
	assert.Equal(t, StateContextBound, last.From)
	assert.Equal(t, StateCancelled, last.State)
}

func TestEngine_InjectedClockDoesNotStallLimiter(t *testing.T) {
	doc := `
agents: {a: {allow_delegation: false}}
tasks:
  t1: {description: d, expected_output: o, agent: a}
  t2: {description: d, expected_output: o, agent: a}
crews:
  limited: {agents: [a], tasks: [t1, t2], max_rpm: 1}
`
	frozen := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	began := time.Now()
	res := NewEngine(echoExecutor,
		WithRateWindow(100*time.Millisecond),
		WithClock(func() time.Time { return frozen }),
	).Execute(ctx, resolvePlan(t, doc, "limited"), nil)

	require.Equal(t, CrewSucceeded, res.Status)
	assert.Equal(t, TaskSucceeded, res.Tasks[1].Status)
	assert.Equal(t, frozen, res.StartedAt)
	assert.Equal(t, frozen, res.FinishedAt)
	elapsed := time.Since(began)
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestEngine_ObserverSeesOrderedTransitions(t *testing.T) {
	doc := `
agents: {a: {}}
tasks:
  bad: {description: d, expected_output: o, agent: a, required: true}
  never: {description: d, expected_output: o, agent: a}
crews:
  c: {agents: [a], tasks: [bad, never], max_rpm: 0}
`
	exec := ExecutorFunc(func(context.Context, Invocation) (string, error) { return "", errors.New("nope") })

	var events []UnitEvent
	res := NewEngine(exec).Execute(context.Background(), resolvePlan(t, doc, "c"), nil,
		WithRunID("run-1"), WithObserver(func(ev UnitEvent) { events = append(events, ev) }))

	assert.Equal(t, "run-1", res.RunID)
	var states []string
	for _, ev := range events {
		assert.Equal(t, "run-1", ev.RunID)
		states = append(states, ev.TaskID+":"+string(ev.State))
	}
	assert.Equal(t, []string{
		"bad:context_bound", "bad:dispatched", "bad:failed",
		"never:skipped",
	}, states)
}

func TestEngine_StructuredOutput(t *testing.T) {
	exec := ExecutorFunc(func(_ context.Context, inv Invocation) (string, error) {
		return "Here you go:\n```json\n{\"task\": \"" + inv.TaskID + "\"}\n```", nil
	})
	plan := resolvePlan(t, contentDefs, "content_creation_crew")

	res := NewEngine(exec).Execute(context.Background(), plan, nil, WithStructuredOutput())
	assert.JSONEq(t, `{"task": "research_task"}`, string(res.Tasks[0].Structured))
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatePending, StateContextBound))
	assert.True(t, CanTransition(StateContextBound, StateDispatched))
	assert.True(t, CanTransition(StateDispatched, StateSucceeded))
	assert.True(t, CanTransition(StatePending, StateSkipped))
	assert.False(t, CanTransition(StatePending, StateDispatched))
	assert.False(t, CanTransition(StateSucceeded, StateFailed))
	assert.False(t, CanTransition(StateContextBound, StateSucceeded))
	for _, s := range []UnitState{StateSucceeded, StateFailed, StateCancelled, StateSkipped} {
		assert.True(t, s.Terminal())
	}
	assert.False(t, StateDispatched.Terminal())
}

type countingRecorder struct {
	nopRecorder
	waits *atomic.Int64
}

func (c *countingRecorder) RecordRateLimitWait(_ string, d time.Duration) {
	if d > 0 {
		c.waits.Add(1)
	}
}

func sortTimes(ts []time.Time) {
	for i := 1; i < len(ts); i++ {
		for j := i; j > 0 && ts[j].Before(ts[j-1]); j-- {
			ts[j], ts[j-1] = ts[j-1], ts[j]
		}
	}
}
