package config

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type batchRecorder struct {
	mu      sync.Mutex
	batches [][]FileEvent
}

func (r *batchRecorder) record(events []FileEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
}

func (r *batchRecorder) snapshot() [][]FileEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]FileEvent(nil), r.batches...)
}

func TestFileOp_String(t *testing.T) {
	assert.Equal(t, "CREATE", FileOpCreate.String())
	assert.Equal(t, "WRITE", FileOpWrite.String())
	assert.Equal(t, "REMOVE", FileOpRemove.String())
	assert.Equal(t, "UNKNOWN", FileOp(42).String())
}

func TestDiffStates(t *testing.T) {
	t0 := time.Unix(100, 0)
	prev := map[string]fileStamp{
		"a.yml": {modTime: t0, size: 1},
		"b.yml": {modTime: t0, size: 1},
		"c.yml": {modTime: t0, size: 1},
	}
	next := map[string]fileStamp{
		"a.yml": {modTime: t0, size: 1},
		"b.yml": {modTime: t0, size: 2},
		"d.yml": {modTime: t0, size: 1},
	}
	ops := map[string]FileOp{}
	for _, e := range diffStates(prev, next, t0) {
		ops[e.Path] = e.Op
	}
	assert.Equal(t, map[string]FileOp{"b.yml": FileOpWrite, "c.yml": FileOpRemove, "d.yml": FileOpCreate}, ops)
	assert.Empty(t, diffStates(next, next, t0))
}

func TestFileWatcher_BatchesChanges(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.yml"), []byte("a: {}"), 0o644))

	w := NewFileWatcher(dir,
		WithPollInterval(10*time.Millisecond),
		WithDebounceDelay(50*time.Millisecond),
		WithWatcherLogger(zap.NewNop()),
	)
	rec := &batchRecorder{}
	w.OnChange(rec.record)

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()
	assert.True(t, w.IsRunning())
	require.Error(t, w.Start(context.Background()), "second start is rejected")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tasks.yml"), []byte("t: {}"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents.yml"), []byte("a: {role: x}"), 0o644))

	seen := func() map[string]bool {
		out := map[string]bool{}
		for _, batch := range rec.snapshot() {
			for _, e := range batch {
				out[filepath.Base(e.Path)] = true
			}
		}
		return out
	}
	require.Eventually(t, func() bool {
		s := seen()
		return s["tasks.yml"] && s["agents.yml"]
	}, 2*time.Second, 10*time.Millisecond)

	paths := seen()
	assert.False(t, paths["notes.txt"])
}

func TestFileWatcher_StopIsIdempotent(t *testing.T) {
	w := NewFileWatcher(filepath.Join(t.TempDir(), "missing"))
	require.NoError(t, w.Start(context.Background()), "a missing directory reads as empty")
	w.Stop()
	w.Stop()
	assert.False(t, w.IsRunning())
}

func TestFileWatcher_StopsWithContext(t *testing.T) {
	dir := t.TempDir()
	w := NewFileWatcher(dir, WithPollInterval(5*time.Millisecond), WithDebounceDelay(0))
	rec := &batchRecorder{}
	w.OnChange(rec.record)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, w.Start(ctx))
	cancel()
	w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "crew.yml"), []byte("c: {}"), 0o644))
	time.Sleep(30 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}
