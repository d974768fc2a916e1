package crews

import (
	"context"

	"go.uber.org/zap"

	"github.com/shivanandmn/wingman/agent/declarative"
	"github.com/shivanandmn/wingman/types"
)

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDefaults seeds the process-wide default context.
func WithDefaults(initial map[string]string) ManagerOption {
	return func(m *Manager) { m.defaults.Merge(initial) }
}

// WithReloadHook is called after every reload attempt with its outcome.
func WithReloadHook(hook func(version uint64, err error)) ManagerOption {
	return func(m *Manager) { m.onReload = hook }
}

// Manager 是编排核心对外的入口：运行 crew、重新加载定义、维护默认上下文。
type Manager struct {
	store    *declarative.Store
	engine   *Engine
	defaults *DefaultContext
	onReload func(uint64, error)
	logger   *zap.Logger
}

// NewManager wires a definition store and an engine.
func NewManager(store *declarative.Store, engine *Engine, logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		store:    store,
		engine:   engine,
		defaults: NewDefaultContext(nil),
		logger:   logger.With(zap.String("component", "crew_manager")),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run resolves crewID against the current definitions and executes it with
// the default context overlaid by vars. The snapshot is captured once, so a
// concurrent reload never mixes definition sets within a run.
//
// A NOT_FOUND error means nothing ran. A CANCELLED error is returned together
// with the partial result.
func (m *Manager) Run(ctx context.Context, crewID string, vars map[string]string, opts ...RunOption) (*CrewResult, error) {
	snap := m.store.Snapshot()
	plan, err := Resolve(crewID, snap)
	if err != nil {
		m.logger.Warn("crew resolution failed", zap.String("crew", crewID), zap.Error(err))
		return nil, err
	}

	res := m.engine.Execute(ctx, plan, m.defaults.Overlay(vars), opts...)
	if res.Status == CrewCancelled {
		return res, types.NewCancellationError(context.Cause(ctx))
	}
	return res, nil
}

// Describe resolves crewID without running it.
func (m *Manager) Describe(crewID string) (*Plan, error) {
	return Resolve(crewID, m.store.Snapshot())
}

// Crews lists the crews of the current definitions.
func (m *Manager) Crews() []declarative.CrewDef {
	snap := m.store.Snapshot()
	ids := snap.CrewIDs()
	out := make([]declarative.CrewDef, 0, len(ids))
	for _, id := range ids {
		c, _ := snap.Crew(id)
		out = append(out, c)
	}
	return out
}

// Definitions returns the current definition snapshot.
func (m *Manager) Definitions() *declarative.Snapshot {
	return m.store.Snapshot()
}

// Reload atomically replaces the definition set. On error the previous set
// stays active.
func (m *Manager) Reload(sources ...declarative.Source) error {
	snap, err := m.store.Reload(sources...)
	m.reloaded(snap, err)
	return err
}

// ReloadDir reloads every definition file in dir.
func (m *Manager) ReloadDir(dir string) error {
	snap, err := m.store.ReloadDir(dir)
	m.reloaded(snap, err)
	return err
}

func (m *Manager) reloaded(snap *declarative.Snapshot, err error) {
	version := m.store.Version()
	if snap != nil {
		version = snap.Version()
	}
	if m.onReload != nil {
		m.onReload(version, err)
	}
}

// UpdateDefaultContext merges partial into the process-wide defaults.
func (m *Manager) UpdateDefaultContext(partial map[string]string) {
	m.defaults.Merge(partial)
	m.logger.Debug("default context updated", zap.Int("keys", len(partial)))
}

// ResetDefaultContext clears the process-wide defaults.
func (m *Manager) ResetDefaultContext() {
	m.defaults.Reset()
}

// DefaultContext returns a copy of the process-wide defaults.
func (m *Manager) DefaultContext() map[string]string {
	return m.defaults.Snapshot()
}
