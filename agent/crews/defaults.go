package crews

import (
	"maps"
	"sync"
)

// DefaultContext is the process-wide default context. Keys merged in stay
// until overwritten or until Reset; a run only reads a copy of it.
type DefaultContext struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewDefaultContext creates a store seeded with initial.
func NewDefaultContext(initial map[string]string) *DefaultContext {
	d := &DefaultContext{vars: make(map[string]string, len(initial))}
	maps.Copy(d.vars, initial)
	return d
}

// Merge overwrites existing keys of the same name and adds new ones.
func (d *DefaultContext) Merge(partial map[string]string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	maps.Copy(d.vars, partial)
}

// Reset removes every key.
func (d *DefaultContext) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.vars)
}

// Snapshot returns a copy of the current defaults.
func (d *DefaultContext) Snapshot() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.vars)
}

// Overlay returns the defaults with caller's keys taking precedence.
func (d *DefaultContext) Overlay(caller map[string]string) map[string]string {
	d.mu.RLock()
	out := make(map[string]string, len(d.vars)+len(caller))
	maps.Copy(out, d.vars)
	d.mu.RUnlock()
	maps.Copy(out, caller)
	return out
}
