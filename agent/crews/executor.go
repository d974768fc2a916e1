package crews

import (
	"context"
	"errors"
	"maps"

	"github.com/shivanandmn/wingman/agent/declarative"
)

// Executor performs one capability invocation: an agent working on resolved
// task text. Implementations must honour ctx cancellation.
type Executor interface {
	Invoke(ctx context.Context, inv Invocation) (string, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, inv Invocation) (string, error)

// Invoke calls f.
func (f ExecutorFunc) Invoke(ctx context.Context, inv Invocation) (string, error) {
	return f(ctx, inv)
}

// ErrDelegationNotAllowed is returned by Invocation.Delegate when the acting
// agent may not delegate or the delegation depth is exhausted.
var ErrDelegationNotAllowed = errors.New("delegation not allowed")

// DelegateFunc starts a sub-invocation attributed to another crew agent.
type DelegateFunc func(ctx context.Context, agentID, description, expectedOutput string) (string, error)

// Invocation 是传递给执行器的一次能力调用。
// Depth 为 0 表示顶层任务单元，委托产生的子调用逐层加一。
type Invocation struct {
	RunID          string
	CrewID         string
	TaskID         string
	Agent          declarative.AgentDef
	Description    string
	ExpectedOutput string
	Context        map[string]string
	Depth          int

	// Coworkers lists the crew agents the acting agent may delegate to.
	Coworkers []string

	delegate DelegateFunc
}

// CanDelegate reports whether Delegate is available for this invocation.
func (inv Invocation) CanDelegate() bool {
	return inv.delegate != nil
}

// Delegate asks another crew agent to work on description. The call waits
// for the run's shared rate budget like any top-level unit.
func (inv Invocation) Delegate(ctx context.Context, agentID, description, expectedOutput string) (string, error) {
	if inv.delegate == nil {
		return "", ErrDelegationNotAllowed
	}
	return inv.delegate(ctx, agentID, description, expectedOutput)
}

// cloneVars copies a context map so executors cannot mutate run state.
func cloneVars(vars map[string]string) map[string]string {
	out := make(map[string]string, len(vars))
	maps.Copy(out, vars)
	return out
}
