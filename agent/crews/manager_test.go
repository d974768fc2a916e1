package crews

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/declarative"
	"github.com/shivanandmn/wingman/types"
)

func newTestManager(t *testing.T, exec Executor, opts ...ManagerOption) *Manager {
	t.Helper()
	store := declarative.NewStore(zap.NewNop())
	m := NewManager(store, NewEngine(exec), zap.NewNop(), opts...)
	require.NoError(t, m.Reload(declarative.NewSource("defs.yaml", []byte(contentDefs))))
	return m
}

func TestManager_RunUsesDefaultContext(t *testing.T) {
	m := newTestManager(t, echoExecutor, WithDefaults(map[string]string{"topic": "Default Topic"}))

	res, err := m.Run(context.Background(), "content_creation_crew", nil)
	require.NoError(t, err)
	assert.Equal(t, "researcher:Research Default Topic and gather key information", res.Tasks[0].Output)

	res, err = m.Run(context.Background(), "content_creation_crew", map[string]string{"topic": "AI Ethics"})
	require.NoError(t, err)
	assert.Equal(t, "researcher:Research AI Ethics and gather key information", res.Tasks[0].Output,
		"caller keys win over defaults")

	assert.Equal(t, map[string]string{"topic": "Default Topic"}, m.DefaultContext(), "runs never write defaults")
}

func TestManager_DefaultContextMergeAndReset(t *testing.T) {
	m := newTestManager(t, echoExecutor)

	m.UpdateDefaultContext(map[string]string{"topic": "one", "tone": "dry"})
	m.UpdateDefaultContext(map[string]string{"topic": "two"})
	assert.Equal(t, map[string]string{"topic": "two", "tone": "dry"}, m.DefaultContext())

	m.ResetDefaultContext()
	assert.Empty(t, m.DefaultContext())

	res, err := m.Run(context.Background(), "content_creation_crew", nil)
	require.NoError(t, err)
	assert.Equal(t, "researcher:Research {topic} and gather key information", res.Tasks[0].Output)
}

func TestManager_UnknownCrew(t *testing.T) {
	called := false
	m := newTestManager(t, ExecutorFunc(func(context.Context, Invocation) (string, error) {
		called = true
		return "", nil
	}))

	res, err := m.Run(context.Background(), "missing_crew", nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, types.IsErrorCode(err, types.ErrNotFound))
	assert.False(t, called, "nothing runs when resolution fails")
}

func TestManager_CancelledRunReturnsResultAndError(t *testing.T) {
	m := newTestManager(t, echoExecutor)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := m.Run(ctx, "content_creation_crew", nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCancelled))
	require.NotNil(t, res)
	assert.Equal(t, 3, res.Summary.Cancelled)
}

func TestManager_ReloadIsAtomicForInFlightRuns(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{})
	var once sync.Once
	exec := ExecutorFunc(func(_ context.Context, inv Invocation) (string, error) {
		if inv.TaskID == "research_task" {
			once.Do(func() { close(entered) })
			<-release
		}
		return inv.Agent.Role + "|" + inv.Description, nil
	})
	m := newTestManager(t, exec)

	done := make(chan *CrewResult, 1)
	go func() {
		res, _ := m.Run(context.Background(), "content_creation_crew", map[string]string{"topic": "old"})
		done <- res
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("run never started")
	}

	renamed := strings.ReplaceAll(contentDefs, "Review the draft", "Inspect the draft")
	renamed = strings.ReplaceAll(renamed, "role: Editor", "role: Chief Editor")
	require.NoError(t, m.Reload(declarative.NewSource("defs.yaml", []byte(renamed))))
	assert.Equal(t, uint64(2), m.Definitions().Version())
	close(release)

	res := <-done
	require.NotNil(t, res)
	review, _ := res.Task("review_task")
	assert.True(t, strings.HasPrefix(review.Output, "Editor|Review the draft"), "in-flight run keeps its snapshot: %s", review.Output)

	next, err := m.Run(context.Background(), "content_creation_crew", map[string]string{"topic": "new"})
	require.NoError(t, err)
	review, _ = next.Task("review_task")
	assert.True(t, strings.HasPrefix(review.Output, "Chief Editor|Inspect the draft"))
}

func TestManager_FailedReloadKeepsServing(t *testing.T) {
	var hookErr error
	var hookVersion uint64
	m := newTestManager(t, echoExecutor, WithReloadHook(func(v uint64, err error) {
		hookVersion, hookErr = v, err
	}))
	assert.Equal(t, uint64(1), hookVersion)

	err := m.Reload(declarative.NewSource("crew.yml", []byte("c:\n  agents: [ghost]\n  tasks: [t]\n")))
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrConfig))
	assert.Equal(t, err, hookErr)
	assert.Equal(t, uint64(1), hookVersion)

	res, err := m.Run(context.Background(), "content_creation_crew", map[string]string{"topic": "still"})
	require.NoError(t, err)
	assert.Equal(t, CrewSucceeded, res.Status)

	assert.Len(t, m.Crews(), 1)
	plan, err := m.Describe("content_creation_crew")
	require.NoError(t, err)
	assert.Len(t, plan.Units, 3)
}
