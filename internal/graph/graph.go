// Package graph models the task dependency DAG for an orchestration plan.
package graph

import (
	"errors"
	"fmt"

	"github.com/ckirkland/conductor/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the plan.
var ErrCycleDetected = errors.New("circular dependency detected")

// DependencyGraph represents a directed acyclic graph of task dependencies.
// Tasks are nodes, and edges represent "blocked by" relationships.
type DependencyGraph struct {
	// nodes maps task ID to the task itself.
	nodes map[string]models.PlanTask
	// order preserves plan order for deterministic ready sets.
	order []string
	// edges maps task ID to IDs of tasks it depends on.
	edges map[string][]string
	// completed tracks which tasks have been marked complete.
	completed map[string]bool
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]models.PlanTask),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
	}
}

// Build constructs the dependency graph from a plan. Returns an error if a
// cycle is detected or a dependency references an unknown task.
func Build(plan []models.PlanTask) (*DependencyGraph, error) {
	g := New()

	for _, task := range plan {
		if _, dup := g.nodes[task.ID]; dup {
			return nil, fmt.Errorf("duplicate task id %s", task.ID)
		}
		g.nodes[task.ID] = task
		g.order = append(g.order, task.ID)
		g.edges[task.ID] = nil
	}

	for _, task := range plan {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return nil, fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			g.edges[task.ID] = append(g.edges[task.ID], depID)
		}
	}

	if g.HasCycle() {
		return nil, ErrCycleDetected
	}

	return g, nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *DependencyGraph) HasCycle() bool {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true
			case 0:
				if visit(depID) {
					return true
				}
			}
		}

		colors[id] = 2
		return false
	}

	for _, id := range g.order {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// Ready returns tasks whose dependencies are all complete and that are not
// themselves complete, in plan order.
func (g *DependencyGraph) Ready() []models.PlanTask {
	var ready []models.PlanTask

	for _, id := range g.order {
		if g.completed[id] {
			continue
		}

		allDepsComplete := true
		for _, depID := range g.edges[id] {
			if !g.completed[depID] {
				allDepsComplete = false
				break
			}
		}
		if allDepsComplete {
			ready = append(ready, g.nodes[id])
		}
	}

	return ready
}

// MarkComplete marks a task as completed, unblocking its dependents.
func (g *DependencyGraph) MarkComplete(taskID string) {
	g.completed[taskID] = true
}

// AllComplete returns true when every task in the graph is complete.
func (g *DependencyGraph) AllComplete() bool {
	for _, id := range g.order {
		if !g.completed[id] {
			return false
		}
	}
	return true
}

// Task returns the task for a given ID. The second value is false if the
// task is not in the graph.
func (g *DependencyGraph) Task(taskID string) (models.PlanTask, bool) {
	t, ok := g.nodes[taskID]
	return t, ok
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *DependencyGraph) Dependents(taskID string) []string {
	var dependents []string
	for _, id := range g.order {
		for _, depID := range g.edges[id] {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	return len(g.nodes)
}
