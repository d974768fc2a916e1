package declarative

import (
	"fmt"
	"slices"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// ExecutionMode selects how a crew drives its task list.
type ExecutionMode string

const (
	ModeSequential ExecutionMode = "sequential"
	ModeParallel   ExecutionMode = "parallel"
)

// Valid reports whether m is a known mode.
func (m ExecutionMode) Valid() bool {
	return m == ModeSequential || m == ModeParallel
}

// UnmarshalYAML accepts either a mode name or the mapping form
// {sequential: bool}, where false selects parallel execution.
func (m *ExecutionMode) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*m = ExecutionMode(node.Value)
		return nil
	case yaml.MappingNode:
		var flags struct {
			Sequential *bool `yaml:"sequential"`
		}
		if err := node.Decode(&flags); err != nil {
			return err
		}
		if flags.Sequential == nil || *flags.Sequential {
			*m = ModeSequential
		} else {
			*m = ModeParallel
		}
		return nil
	default:
		return fmt.Errorf("line %d: process must be a string or a mapping", node.Line)
	}
}

// JSONSchema describes both accepted spellings of the process field.
func (ExecutionMode) JSONSchema() *jsonschema.Schema {
	flags := jsonschema.NewProperties()
	flags.Set("sequential", &jsonschema.Schema{Type: "boolean"})
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Enum: []any{string(ModeSequential), string(ModeParallel)}},
			{Type: "object", Properties: flags},
		},
	}
}

// ============================================================
// Document shape
// ============================================================

// Document is the on-disk shape of a definition file. A file may carry any
// subset of the three kinds. Crew is accepted as an alias of Crews.
type Document struct {
	Agents map[string]AgentSpec `yaml:"agents,omitempty" json:"agents,omitempty"`
	Tasks  map[string]TaskSpec  `yaml:"tasks,omitempty" json:"tasks,omitempty"`
	Crews  map[string]CrewSpec  `yaml:"crews,omitempty" json:"crews,omitempty"`
	Crew   map[string]CrewSpec  `yaml:"crew,omitempty" json:"crew,omitempty"`
}

// AgentSpec is an agent entry as written in a definition file.
type AgentSpec struct {
	Name            string   `yaml:"name,omitempty" json:"name,omitempty"`
	Role            string   `yaml:"role,omitempty" json:"role,omitempty"`
	Goal            string   `yaml:"goal,omitempty" json:"goal,omitempty"`
	Backstory       string   `yaml:"backstory,omitempty" json:"backstory,omitempty"`
	Verbose         *bool    `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	AllowDelegation *bool    `yaml:"allow_delegation,omitempty" json:"allow_delegation,omitempty"`
	Tools           []string `yaml:"tools,omitempty" json:"tools,omitempty" validate:"dive,required"`
}

// TaskSpec is a task entry as written in a definition file.
type TaskSpec struct {
	Description    string `yaml:"description" json:"description" validate:"required"`
	ExpectedOutput string `yaml:"expected_output" json:"expected_output" validate:"required"`
	Agent          string `yaml:"agent" json:"agent" validate:"required"`
	AsyncExecution bool   `yaml:"async_execution,omitempty" json:"async_execution,omitempty"`
	Required       bool   `yaml:"required,omitempty" json:"required,omitempty"`
}

// CrewSpec is a crew entry as written in a definition file.
type CrewSpec struct {
	Name           string        `yaml:"name,omitempty" json:"name,omitempty"`
	Description    string        `yaml:"description,omitempty" json:"description,omitempty"`
	Agents         []string      `yaml:"agents" json:"agents" validate:"required,min=1,dive,required"`
	Tasks          []string      `yaml:"tasks" json:"tasks" validate:"required,min=1,dive,required"`
	Verbose        *bool         `yaml:"verbose,omitempty" json:"verbose,omitempty"`
	Process        ExecutionMode `yaml:"process,omitempty" json:"process,omitempty" validate:"omitempty,oneof=sequential parallel"`
	MaxRPM         *int          `yaml:"max_rpm,omitempty" json:"max_rpm,omitempty" validate:"omitempty,gte=0"`
	MaxConcurrency int           `yaml:"max_concurrency,omitempty" json:"max_concurrency,omitempty" validate:"gte=0"`
}

// ============================================================
// Resolved definitions
// ============================================================

// DefaultMaxRPM applies when a crew omits max_rpm.
const DefaultMaxRPM = 20

// AgentDef is a validated agent. Values handed out by a Snapshot are shared
// across runs and must not be mutated.
type AgentDef struct {
	ID              string   `json:"id"`
	Name            string   `json:"name,omitempty"`
	Role            string   `json:"role"`
	Goal            string   `json:"goal"`
	Backstory       string   `json:"backstory"`
	Verbose         bool     `json:"verbose"`
	AllowDelegation bool     `json:"allow_delegation"`
	Tools           []string `json:"tools,omitempty"`
}

// TaskDef is a validated task. Description and ExpectedOutput are templates.
type TaskDef struct {
	ID             string `json:"id"`
	Description    string `json:"description"`
	ExpectedOutput string `json:"expected_output"`
	Agent          string `json:"agent"`
	AsyncExecution bool   `json:"async_execution"`
	Required       bool   `json:"required"`
}

// CrewDef is a validated crew.
type CrewDef struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Agents         []string      `json:"agents"`
	Tasks          []string      `json:"tasks"`
	Verbose        bool          `json:"verbose"`
	Process        ExecutionMode `json:"process"`
	MaxRPM         int           `json:"max_rpm"`
	MaxConcurrency int           `json:"max_concurrency,omitempty"`
}

// HasAgent reports whether agentID is a member of the crew.
func (c CrewDef) HasAgent(agentID string) bool {
	return slices.Contains(c.Agents, agentID)
}

func newAgentDef(id string, s AgentSpec) AgentDef {
	role := s.Role
	if role == "" {
		role = s.Name
	}
	if role == "" {
		role = "Agent"
	}
	goal := s.Goal
	if goal == "" {
		goal = fmt.Sprintf("Perform tasks as a %s agent", role)
	}
	backstory := s.Backstory
	if backstory == "" {
		backstory = fmt.Sprintf("You are a %s agent designed to help with various tasks.", role)
	}
	return AgentDef{
		ID:              id,
		Name:            s.Name,
		Role:            role,
		Goal:            goal,
		Backstory:       backstory,
		Verbose:         boolOr(s.Verbose, true),
		AllowDelegation: boolOr(s.AllowDelegation, true),
		Tools:           slices.Clone(s.Tools),
	}
}

func newTaskDef(id string, s TaskSpec) TaskDef {
	return TaskDef{
		ID:             id,
		Description:    s.Description,
		ExpectedOutput: s.ExpectedOutput,
		Agent:          s.Agent,
		AsyncExecution: s.AsyncExecution,
		Required:       s.Required,
	}
}

func newCrewDef(id string, s CrewSpec) CrewDef {
	name := s.Name
	if name == "" {
		name = id
	}
	mode := s.Process
	if mode == "" {
		mode = ModeSequential
	}
	maxRPM := DefaultMaxRPM
	if s.MaxRPM != nil {
		maxRPM = *s.MaxRPM
	}
	return CrewDef{
		ID:             id,
		Name:           name,
		Description:    s.Description,
		Agents:         slices.Clone(s.Agents),
		Tasks:          slices.Clone(s.Tasks),
		Verbose:        boolOr(s.Verbose, true),
		Process:        mode,
		MaxRPM:         maxRPM,
		MaxConcurrency: s.MaxConcurrency,
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
