package llm

import (
	"context"

	"github.com/shivanandmn/wingman/agent/crews"
)

// Echo answers every invocation with "<agent>:<description>".
type Echo struct{}

// Invoke implements crews.Executor.
func (Echo) Invoke(ctx context.Context, inv crews.Invocation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return inv.Agent.ID + ":" + inv.Description, nil
}
