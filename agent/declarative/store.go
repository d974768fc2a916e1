package declarative

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shivanandmn/wingman/types"
	"go.uber.org/zap"
)

// Snapshot is an immutable, validated definition set. Readers share it
// without locking once it has been published by a Store.
type Snapshot struct {
	agents   map[string]AgentDef
	tasks    map[string]TaskDef
	crews    map[string]CrewDef
	checksum string
	version  uint64
	loadedAt time.Time
}

// Agent returns the agent with the given identifier.
func (s *Snapshot) Agent(id string) (AgentDef, bool) {
	a, ok := s.agents[id]
	return a, ok
}

// Task returns the task with the given identifier.
func (s *Snapshot) Task(id string) (TaskDef, bool) {
	t, ok := s.tasks[id]
	return t, ok
}

// Crew returns the crew with the given identifier.
func (s *Snapshot) Crew(id string) (CrewDef, bool) {
	c, ok := s.crews[id]
	return c, ok
}

// CrewIDs returns all crew identifiers in sorted order.
func (s *Snapshot) CrewIDs() []string { return sortedKeys(s.crews) }

// Agents returns all agents sorted by identifier.
func (s *Snapshot) Agents() []AgentDef {
	out := make([]AgentDef, 0, len(s.agents))
	for _, id := range sortedKeys(s.agents) {
		out = append(out, s.agents[id])
	}
	return out
}

// Tasks returns all tasks sorted by identifier.
func (s *Snapshot) Tasks() []TaskDef {
	out := make([]TaskDef, 0, len(s.tasks))
	for _, id := range sortedKeys(s.tasks) {
		out = append(out, s.tasks[id])
	}
	return out
}

// Checksum is a digest of the source content the snapshot was built from.
func (s *Snapshot) Checksum() string { return s.checksum }

// Version counts successful publications by the owning Store. Snapshots
// built directly with Load report 0.
func (s *Snapshot) Version() uint64 { return s.version }

// LoadedAt is the time the snapshot was built.
func (s *Snapshot) LoadedAt() time.Time { return s.loadedAt }

// Empty reports whether the snapshot holds no crews.
func (s *Snapshot) Empty() bool { return len(s.crews) == 0 }

// Load parses and validates sources into a Snapshot. All problems found are
// returned together inside a single CONFIG_ERROR.
func Load(sources ...Source) (*Snapshot, error) {
	snap := &Snapshot{
		agents:   make(map[string]AgentDef),
		tasks:    make(map[string]TaskDef),
		crews:    make(map[string]CrewDef),
		loadedAt: time.Now(),
	}
	origin := make(map[string]string)
	var errs []error

	claim := func(kind, id, src string) bool {
		key := kind + "/" + id
		if prev, dup := origin[key]; dup {
			errs = append(errs, fmt.Errorf("%s %q defined in both %s and %s", kind, id, prev, src))
			return false
		}
		origin[key] = src
		return true
	}

	hash := sha256.New()
	for _, src := range sources {
		hash.Write([]byte(src.Name))
		hash.Write([]byte{0})
		hash.Write(src.Data)
		hash.Write([]byte{0})

		doc, err := parseSource(src)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, id := range sortedKeys(doc.Agents) {
			spec := doc.Agents[id]
			if claim("agent", id, src.Name) {
				if e := checkSpec("agent", id, spec); len(e) > 0 {
					errs = append(errs, e...)
					continue
				}
				snap.agents[id] = newAgentDef(id, spec)
			}
		}
		for _, id := range sortedKeys(doc.Tasks) {
			spec := doc.Tasks[id]
			if claim("task", id, src.Name) {
				if e := checkSpec("task", id, spec); len(e) > 0 {
					errs = append(errs, e...)
					continue
				}
				snap.tasks[id] = newTaskDef(id, spec)
			}
		}
		for _, id := range sortedKeys(doc.Crews) {
			spec := doc.Crews[id]
			if claim("crew", id, src.Name) {
				if e := checkSpec("crew", id, spec); len(e) > 0 {
					errs = append(errs, e...)
					continue
				}
				snap.crews[id] = newCrewDef(id, spec)
			}
		}
	}
	errs = append(errs, checkReferences(snap.agents, snap.tasks, snap.crews)...)

	if len(errs) > 0 {
		return nil, types.NewConfigError(fmt.Sprintf("invalid definitions (%d problems)", len(errs)), errors.Join(errs...))
	}
	snap.checksum = hex.EncodeToString(hash.Sum(nil))
	return snap, nil
}

// Store publishes definition snapshots by copy-on-write. Readers load the
// current pointer and never observe a partially built set.
type Store struct {
	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewStore creates a Store holding an empty snapshot.
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{logger: logger.With(zap.String("component", "definitions"))}
	s.current.Store(&Snapshot{
		agents:   map[string]AgentDef{},
		tasks:    map[string]TaskDef{},
		crews:    map[string]CrewDef{},
		loadedAt: time.Now(),
	})
	return s
}

// Snapshot returns the currently published definition set.
func (s *Store) Snapshot() *Snapshot {
	return s.current.Load()
}

// Version returns the version of the published snapshot.
func (s *Store) Version() uint64 {
	return s.current.Load().version
}

// Reload builds a snapshot from sources and publishes it. On error the
// previously published snapshot stays in place.
func (s *Store) Reload(sources ...Source) (*Snapshot, error) {
	next, err := Load(sources...)
	if err != nil {
		s.logger.Warn("definition reload rejected", zap.Error(err))
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.current.Load()
	next.version = prev.version + 1
	s.current.Store(next)

	s.logger.Info("definitions published",
		zap.Uint64("version", next.version),
		zap.Int("agents", len(next.agents)),
		zap.Int("tasks", len(next.tasks)),
		zap.Int("crews", len(next.crews)),
		zap.String("checksum", next.checksum[:12]),
	)
	return next, nil
}

// ReloadDir reads dir with LoadDir and publishes the result.
func (s *Store) ReloadDir(dir string) (*Snapshot, error) {
	sources, err := LoadDir(dir)
	if err != nil {
		return nil, types.NewConfigError("load definitions", err)
	}
	return s.Reload(sources...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
