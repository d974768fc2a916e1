package crews

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shivanandmn/wingman/agent/declarative"
)

const contentDefs = `
agents:
  researcher:
    role: Senior Research Analyst
    allow_delegation: false
  writer:
    role: Content Writer
  editor:
    role: Editor
tasks:
  research_task:
    description: Research {topic} and gather key information
    expected_output: Key facts about {topic}
    agent: researcher
  writing_task:
    description: Write an article about {topic} based on {previous_task_output}
    expected_output: A draft article
    agent: writer
  review_task:
    description: Review the draft {writing_task_output}
    expected_output: A polished article about {topic}
    agent: editor
crews:
  content_creation_crew:
    agents: [researcher, writer, editor]
    tasks: [research_task, writing_task, review_task]
    process: sequential
    max_rpm: 0
`

func loadSnapshot(t testing.TB, doc string) *declarative.Snapshot {
	t.Helper()
	snap, err := declarative.Load(declarative.NewSource("defs.yaml", []byte(doc)))
	require.NoError(t, err)
	return snap
}

func resolvePlan(t testing.TB, doc, crewID string) *Plan {
	t.Helper()
	plan, err := Resolve(crewID, loadSnapshot(t, doc))
	require.NoError(t, err)
	return plan
}

// echoExecutor answers "<agent>:<description>".
var echoExecutor = ExecutorFunc(func(_ context.Context, inv Invocation) (string, error) {
	return inv.Agent.ID + ":" + inv.Description, nil
})

func taskIDs(results []TaskResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.TaskID
	}
	return ids
}
