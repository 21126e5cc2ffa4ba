// Package events provides the publish/subscribe broadcast layer that streams
// orchestration progress to live observers.
package events

import (
	"time"

	"github.com/ckirkland/conductor/pkg/models"
)

// EventType represents the type of a broadcast event.
type EventType string

const (
	// EventPhase indicates an orchestration phase change.
	EventPhase EventType = "phase"
	// EventQuestions indicates clarifying questions became available.
	EventQuestions EventType = "questions"
	// EventPlan indicates the task plan became available or changed.
	EventPlan EventType = "plan"
	// EventProgress carries a worker agent output entry.
	EventProgress EventType = "progress"
	// EventTaskStarted indicates a sub-agent run started.
	EventTaskStarted EventType = "task_started"
	// EventTaskCompleted indicates a sub-agent run completed successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskRetrying indicates a failed run is being retried.
	EventTaskRetrying EventType = "task_retrying"
	// EventTaskFailed indicates a task failed with retries exhausted.
	EventTaskFailed EventType = "task_failed"
	// EventError indicates an orchestration-level failure.
	EventError EventType = "error"
	// EventComplete indicates the orchestration finished.
	EventComplete EventType = "complete"
	// EventHeartbeat is the periodic keep-alive sent to each subscriber.
	EventHeartbeat EventType = "heartbeat"
)

// TaskScope names the per-task event scope inside an orchestration. Task
// events are published to both the orchestration scope and this scope, so a
// task observer gets its own replay window.
func TaskScope(orcID, taskID string) string {
	return orcID + "/" + taskID
}

// Event is one broadcast progress event.
type Event struct {
	// Type is the kind of event.
	Type EventType `json:"type"`
	// ScopeID identifies the orchestration or task the event belongs to.
	ScopeID string `json:"scope_id"`
	// TaskID is the related plan task, if applicable.
	TaskID string `json:"task_id,omitempty"`
	// Message provides human-readable context.
	Message string `json:"message,omitempty"`
	// Tail carries diagnostic output entries for failure events.
	Tail []models.OutputEntry `json:"tail,omitempty"`
	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`
}

// Summary converts the event to its persisted summary form.
func (e Event) Summary() models.SummaryEntry {
	return models.SummaryEntry{
		Type:      string(e.Type),
		TaskID:    e.TaskID,
		Message:   e.Message,
		Timestamp: e.Timestamp,
	}
}
