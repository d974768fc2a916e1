package api

import (
	"github.com/shivanandmn/wingman/agent/crews"
	"github.com/shivanandmn/wingman/agent/declarative"
)

// RunRequest is the body of POST /api/v1/crews/{id}/run and the first
// message of a stream session.
type RunRequest struct {
	// Context overlays the process default context for this run.
	Context map[string]string `json:"context,omitempty"`
	// Structured attaches the first JSON object found in each output.
	Structured bool `json:"structured,omitempty"`
}

// ContentRequest is the body of POST /api/v1/agent/content.
type ContentRequest struct {
	Topic string `json:"topic"`
}

// ContentResponse carries the final output of the content crew.
type ContentResponse struct {
	Result string `json:"result"`
	RunID  string `json:"run_id"`
}

// CrewSummary is one entry of GET /api/v1/crews.
type CrewSummary struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Description string                    `json:"description,omitempty"`
	Mode        declarative.ExecutionMode `json:"mode"`
	Agents      []string                  `json:"agents"`
	Tasks       []string                  `json:"tasks"`
	MaxRPM      int                       `json:"max_rpm"`
}

// CrewDescription is the resolved plan of a crew plus the context keys its
// templates reference.
type CrewDescription struct {
	*crews.Plan
	Placeholders []string               `json:"placeholders"`
	AgentDefs    []declarative.AgentDef `json:"agent_definitions"`
}

// ReloadResponse reports the snapshot published by a reload.
type ReloadResponse struct {
	Version  uint64   `json:"version"`
	Checksum string   `json:"checksum"`
	Crews    []string `json:"crews"`
}

// Stream message types.
const (
	StreamEvent  = "event"
	StreamResult = "result"
	StreamError  = "error"
)

// StreamMessage is one server-to-client message of a run stream.
type StreamMessage struct {
	Type   string             `json:"type"`
	Event  *crews.UnitEvent   `json:"event,omitempty"`
	Result *crews.CrewResult  `json:"result,omitempty"`
	Error  *StreamErrorDetail `json:"error,omitempty"`
}

// StreamErrorDetail describes why a stream session ended without a result.
type StreamErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
