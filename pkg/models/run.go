package models

import "time"

// RunStatus represents the current state of a sub-agent run.
type RunStatus string

const (
	// RunStatusRunning indicates the worker process is executing.
	RunStatusRunning RunStatus = "running"
	// RunStatusCompleted indicates the worker exited successfully.
	RunStatusCompleted RunStatus = "completed"
	// RunStatusRetrying indicates the run failed and a retry is pending.
	RunStatusRetrying RunStatus = "retrying"
	// RunStatusFailed indicates the run failed with retries exhausted.
	RunStatusFailed RunStatus = "failed"
	// RunStatusErrored indicates the worker process could not be spawned.
	RunStatusErrored RunStatus = "errored"
	// RunStatusStopped indicates the run was cancelled by the user.
	// Stopped runs are terminal and never retried.
	RunStatusStopped RunStatus = "stopped"
	// RunStatusOrphaned indicates the run was loaded from persisted state
	// with no live process behind it. Orphaned runs never resume.
	RunStatusOrphaned RunStatus = "orphaned"
)

// Valid returns true if the status is a known value.
func (s RunStatus) Valid() bool {
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusRetrying,
		RunStatusFailed, RunStatusErrored, RunStatusStopped, RunStatusOrphaned:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusStopped, RunStatusOrphaned:
		return true
	default:
		return false
	}
}

// OutputKind classifies a structured record emitted by a worker agent.
type OutputKind string

const (
	// OutputAssistant is free-form assistant text.
	OutputAssistant OutputKind = "assistant"
	// OutputTool is a tool invocation rendered to a short description.
	OutputTool OutputKind = "tool"
	// OutputResult is the worker's final result summary.
	OutputResult OutputKind = "result"
	// OutputSystem is a system notice from the worker runtime.
	OutputSystem OutputKind = "system"
)

// OutputEntry is one classified record from a worker agent's output stream.
type OutputEntry struct {
	// Kind classifies the record.
	Kind OutputKind `json:"kind"`
	// Text is the rendered human-readable content.
	Text string `json:"text"`
	// Tool names the invoked tool for OutputTool entries.
	Tool string `json:"tool,omitempty"`
	// Timestamp is when the record was consumed.
	Timestamp time.Time `json:"timestamp"`
}

// SubAgentRun represents one execution attempt of a plan task.
type SubAgentRun struct {
	// ID is the unique identifier for this run.
	ID string `json:"id"`
	// TaskID is the plan task this run executes.
	TaskID string `json:"task_id"`
	// Retries counts prior failed attempts for this task.
	Retries int `json:"retries"`
	// Status is the current state of the run.
	Status RunStatus `json:"status"`
	// WorkspacePath is the isolated working directory, or the shared root
	// when workspace acquisition failed.
	WorkspacePath string `json:"workspace_path,omitempty"`
	// BranchRef is the branch associated with the workspace.
	BranchRef string `json:"branch_ref,omitempty"`
	// Output is the ordered list of classified output entries. It grows for
	// the life of the run and is only discarded at orchestration deletion.
	Output []OutputEntry `json:"output,omitempty"`
	// StartedAt is when the worker process was spawned.
	StartedAt time.Time `json:"started_at"`
	// EndedAt is when the worker process exited, if it has.
	EndedAt *time.Time `json:"ended_at,omitempty"`
	// ExitCode is the worker's exit code once the run ended.
	ExitCode int `json:"exit_code"`
}

// Clone returns an independent copy of the run.
func (r *SubAgentRun) Clone() *SubAgentRun {
	out := *r
	out.Output = append([]OutputEntry(nil), r.Output...)
	if r.EndedAt != nil {
		ended := *r.EndedAt
		out.EndedAt = &ended
	}
	return &out
}

// OutputTail returns the last n output entries.
func (r *SubAgentRun) OutputTail(n int) []OutputEntry {
	if len(r.Output) <= n {
		return r.Output
	}
	return r.Output[len(r.Output)-n:]
}
