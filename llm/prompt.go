package llm

import (
	"fmt"
	"strings"

	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/agent/declarative"
)

// SystemPrompt describes the acting agent.
func SystemPrompt(agent declarative.AgentDef) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s.\n", agent.Role)
	if agent.Backstory != "" {
		b.WriteString(agent.Backstory)
		b.WriteString("\n")
	}
	if agent.Goal != "" {
		fmt.Fprintf(&b, "Your personal goal is: %s\n", agent.Goal)
	}
	return strings.TrimSpace(b.String())
}

// UserPrompt renders the resolved task text for inv.
func UserPrompt(inv crews.Invocation) string {
	var b strings.Builder
	b.WriteString("Current task: ")
	b.WriteString(inv.Description)
	if inv.ExpectedOutput != "" {
		b.WriteString("\n\nThis is the expected criteria for your final answer: ")
		b.WriteString(inv.ExpectedOutput)
	}
	if len(inv.Coworkers) > 0 && inv.CanDelegate() {
		b.WriteString("\n\nCoworkers available for delegation: ")
		b.WriteString(strings.Join(inv.Coworkers, ", "))
	}
	return b.String()
}
