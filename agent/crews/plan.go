package crews

import (
	"slices"

	"github.com/shivanandmn/wingman/agent/declarative"
	"github.com/shivanandmn/wingman/types"
)

// Unit 是计划中的一个执行单元：一个任务绑定到一个代理。
// 模板在运行时才与上下文绑定。
type Unit struct {
	Index                  int                  `json:"index"`
	TaskID                 string               `json:"task_id"`
	AgentID                string               `json:"agent_id"`
	Agent                  declarative.AgentDef `json:"-"`
	DescriptionTemplate    string               `json:"description_template"`
	ExpectedOutputTemplate string               `json:"expected_output_template"`
	Async                  bool                 `json:"async_execution"`
	Required               bool                 `json:"required"`
	// Concurrent is set for async units of a parallel crew.
	Concurrent bool `json:"concurrent"`
}

// Placeholders lists the template tokens the unit expects.
func (u Unit) Placeholders() []string {
	names := Placeholders(u.DescriptionTemplate)
	for _, n := range Placeholders(u.ExpectedOutputTemplate) {
		if !slices.Contains(names, n) {
			names = append(names, n)
		}
	}
	return names
}

// Plan 是由 crew 解析得到的有序执行单元列表。
type Plan struct {
	CrewID         string                          `json:"crew_id"`
	CrewName       string                          `json:"crew_name"`
	Description    string                          `json:"description,omitempty"`
	Mode           declarative.ExecutionMode       `json:"mode"`
	MaxRPM         int                             `json:"max_rpm"`
	MaxConcurrency int                             `json:"max_concurrency,omitempty"`
	Verbose        bool                            `json:"verbose"`
	AgentIDs       []string                        `json:"agents"`
	Units          []Unit                          `json:"units"`
	Members        map[string]declarative.AgentDef `json:"-"`
	SnapshotVer    uint64                          `json:"definitions_version"`
}

// Member returns the crew agent with the given identifier.
func (p *Plan) Member(agentID string) (declarative.AgentDef, bool) {
	a, ok := p.Members[agentID]
	return a, ok
}

// Resolve builds the execution plan of crewID from snap. Units follow the
// crew's declared task order in both modes.
func Resolve(crewID string, snap *declarative.Snapshot) (*Plan, error) {
	crew, ok := snap.Crew(crewID)
	if !ok {
		return nil, types.NewNotFoundError("crew", crewID)
	}

	members := make(map[string]declarative.AgentDef, len(crew.Agents))
	for _, id := range crew.Agents {
		a, ok := snap.Agent(id)
		if !ok {
			return nil, types.NewNotFoundError("agent", id)
		}
		members[id] = a
	}

	units := make([]Unit, 0, len(crew.Tasks))
	for i, tid := range crew.Tasks {
		task, ok := snap.Task(tid)
		if !ok {
			return nil, types.NewNotFoundError("task", tid)
		}
		agent, ok := members[task.Agent]
		if !ok {
			return nil, types.NewNotFoundError("agent", task.Agent)
		}
		units = append(units, Unit{
			Index:                  i,
			TaskID:                 task.ID,
			AgentID:                agent.ID,
			Agent:                  agent,
			DescriptionTemplate:    task.Description,
			ExpectedOutputTemplate: task.ExpectedOutput,
			Async:                  task.AsyncExecution,
			Required:               task.Required,
			Concurrent:             crew.Process == declarative.ModeParallel && task.AsyncExecution,
		})
	}

	return &Plan{
		CrewID:         crew.ID,
		CrewName:       crew.Name,
		Description:    crew.Description,
		Mode:           crew.Process,
		MaxRPM:         crew.MaxRPM,
		MaxConcurrency: crew.MaxConcurrency,
		Verbose:        crew.Verbose,
		AgentIDs:       slices.Clone(crew.Agents),
		Units:          units,
		Members:        members,
		SnapshotVer:    snap.Version(),
	}, nil
}
