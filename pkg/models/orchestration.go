// Package models defines the shared data types for conductor orchestrations.
package models

import "time"

// Phase represents the lifecycle phase of an orchestration.
type Phase string

const (
	// PhaseRequirements indicates clarifying questions are being collected.
	PhaseRequirements Phase = "requirements"
	// PhasePlanning indicates a task plan is being generated or reviewed.
	PhasePlanning Phase = "planning"
	// PhaseExecution indicates the scheduler is running plan tasks.
	PhaseExecution Phase = "execution"
	// PhaseReview indicates all tasks finished and the result awaits approval.
	PhaseReview Phase = "review"
	// PhaseError indicates the orchestration can make no further progress.
	PhaseError Phase = "error"
)

// Valid returns true if the phase is a known value.
func (p Phase) Valid() bool {
	switch p {
	case PhaseRequirements, PhasePlanning, PhaseExecution, PhaseReview, PhaseError:
		return true
	default:
		return false
	}
}

// OrchestrationStatus represents the overall state of an orchestration.
type OrchestrationStatus string

const (
	// StatusActive indicates the orchestration is still in progress.
	StatusActive OrchestrationStatus = "active"
	// StatusCompleted indicates the orchestration was approved and is terminal.
	StatusCompleted OrchestrationStatus = "completed"
)

// Answer holds the user's response to a single question.
// Text is set for choice and free-text questions, Values for multi-select.
type Answer struct {
	Text   string   `json:"text,omitempty"`
	Values []string `json:"values,omitempty"`
}

// SummaryEntry is one broadcast event retained for replay and persistence.
type SummaryEntry struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MaxSummaryEntries bounds the per-orchestration summary log.
const MaxSummaryEntries = 200

// Orchestration represents one end-to-end goal-to-completion session.
type Orchestration struct {
	// ID is the unique identifier for this orchestration.
	ID string `json:"id"`
	// Goal is the free-text goal submitted by the user.
	Goal string `json:"goal"`
	// Phase is the current lifecycle phase.
	Phase Phase `json:"phase"`
	// Status is the overall state (active or completed).
	Status OrchestrationStatus `json:"status"`
	// Questions is the ordered list of clarifying questions.
	Questions []Question `json:"questions,omitempty"`
	// Answers maps question IDs to the collected answers.
	Answers map[string]Answer `json:"answers,omitempty"`
	// Plan is the ordered list of tasks with dependencies.
	Plan []PlanTask `json:"plan,omitempty"`
	// SubAgents maps task IDs to their current run. At most one run per
	// task exists here at a time; retried runs are replaced, not updated.
	SubAgents map[string]*SubAgentRun `json:"sub_agents,omitempty"`
	// SummaryLog is the bounded append-only log of broadcast events.
	SummaryLog []SummaryEntry `json:"summary_log,omitempty"`
	// MaxRetries is the per-orchestration retry cap for failed tasks.
	MaxRetries int `json:"max_retries"`
	// CreatedAt is when the goal was submitted.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt is when the orchestration last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendSummary appends an entry to the summary log, evicting the oldest
// entries beyond MaxSummaryEntries.
func (o *Orchestration) AppendSummary(e SummaryEntry) {
	o.SummaryLog = append(o.SummaryLog, e)
	if len(o.SummaryLog) > MaxSummaryEntries {
		o.SummaryLog = o.SummaryLog[len(o.SummaryLog)-MaxSummaryEntries:]
	}
}

// Clone returns a copy deep enough to read without the owner's lock: every
// slice and map the orchestrator mutates in place is duplicated.
func (o *Orchestration) Clone() *Orchestration {
	out := *o
	out.Questions = append([]Question(nil), o.Questions...)
	out.Plan = append([]PlanTask(nil), o.Plan...)
	out.SummaryLog = append([]SummaryEntry(nil), o.SummaryLog...)
	if o.Answers != nil {
		out.Answers = make(map[string]Answer, len(o.Answers))
		for k, v := range o.Answers {
			out.Answers[k] = v
		}
	}
	if o.SubAgents != nil {
		out.SubAgents = make(map[string]*SubAgentRun, len(o.SubAgents))
		for k, v := range o.SubAgents {
			out.SubAgents[k] = v.Clone()
		}
	}
	return &out
}

// TaskByID returns the plan task with the given ID, or nil.
func (o *Orchestration) TaskByID(id string) *PlanTask {
	for i := range o.Plan {
		if o.Plan[i].ID == id {
			return &o.Plan[i]
		}
	}
	return nil
}

// CompletedTaskIDs returns the set of task IDs with a completed run.
func (o *Orchestration) CompletedTaskIDs() map[string]bool {
	done := make(map[string]bool)
	for taskID, run := range o.SubAgents {
		if run.Status == RunStatusCompleted {
			done[taskID] = true
		}
	}
	return done
}

// RunningCount returns the number of runs currently executing.
func (o *Orchestration) RunningCount() int {
	var n int
	for _, run := range o.SubAgents {
		if run.Status == RunStatusRunning {
			n++
		}
	}
	return n
}

// HasOrphans returns true if any run was recovered from persisted state
// without a live process behind it.
func (o *Orchestration) HasOrphans() bool {
	for _, run := range o.SubAgents {
		if run.Status == RunStatusOrphaned {
			return true
		}
	}
	return false
}
