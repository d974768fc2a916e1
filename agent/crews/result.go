package crews

import (
	"encoding/json"
	"time"

	"github.com/shivanandmn/wingman/agent/declarative"
	"github.com/shivanandmn/wingman/types"
)

// TaskStatus is the terminal status of a unit within a run.
type TaskStatus string

const (
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
	TaskSkipped   TaskStatus = "skipped"
)

// CrewStatus is the overall status of a run.
type CrewStatus string

const (
	CrewSucceeded CrewStatus = "succeeded"
	CrewFailed    CrewStatus = "failed"
	CrewCancelled CrewStatus = "cancelled"
)

// TaskResult 是单个任务在一次运行中的结果。
type TaskResult struct {
	TaskID         string          `json:"task_id"`
	AgentID        string          `json:"agent_id"`
	Description    string          `json:"description"`
	ExpectedOutput string          `json:"expected_output"`
	Output         string          `json:"output"`
	Status         TaskStatus      `json:"status"`
	Error          string          `json:"error,omitempty"`
	ErrorCode      types.ErrorCode `json:"error_code,omitempty"`
	Required       bool            `json:"required"`
	Invocations    int             `json:"invocations"`
	Duration       int64           `json:"duration_ms"`
	Structured     json.RawMessage `json:"structured,omitempty"`
}

// Summary counts unit outcomes of a run.
type Summary struct {
	Total       int    `json:"total"`
	Succeeded   int    `json:"succeeded"`
	Failed      int    `json:"failed"`
	Cancelled   int    `json:"cancelled"`
	Skipped     int    `json:"skipped"`
	Invocations int    `json:"invocations"`
	FinalOutput string `json:"final_output"`
}

// CrewResult 是一次 crew 运行的聚合结果。Tasks 保持声明顺序。
type CrewResult struct {
	RunID      string                    `json:"run_id"`
	CrewID     string                    `json:"crew_id"`
	CrewName   string                    `json:"crew_name"`
	Mode       declarative.ExecutionMode `json:"mode"`
	Status     CrewStatus                `json:"status"`
	Tasks      []TaskResult              `json:"tasks"`
	Outputs    map[string]string         `json:"outputs"`
	Summary    Summary                   `json:"summary"`
	StartedAt  time.Time                 `json:"started_at,omitzero"`
	FinishedAt time.Time                 `json:"finished_at,omitzero"`
}

// Task returns the result of taskID.
func (r *CrewResult) Task(taskID string) (TaskResult, bool) {
	for _, t := range r.Tasks {
		if t.TaskID == taskID {
			return t, true
		}
	}
	return TaskResult{}, false
}

// Duration is the wall time of the run.
func (r *CrewResult) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
