package models

// PlanTask represents one unit of work in the dependency graph.
type PlanTask struct {
	// ID is the unique identifier for this task within the plan.
	ID string `json:"id"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed instructions for the worker agent.
	Description string `json:"description,omitempty"`
	// AgentType names the kind of worker agent to run this task.
	AgentType string `json:"agent_type,omitempty"`
	// DependsOn lists task IDs that must complete before this task is ready.
	DependsOn []string `json:"depends_on,omitempty"`
	// Priority orders tasks for display; scheduling uses plan order.
	Priority int `json:"priority,omitempty"`
}
