// Package policy loads per-project orchestration rules from .conductor.yaml.
// Policies route tasks to agent types by keyword and can contribute extra
// plan templates used when no generated plan is available.
package policy

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.yaml.in/yaml/v3"

	"github.com/ckirkland/conductor/pkg/models"
)

// DefaultAgentType is assigned when no route matches a task.
const DefaultAgentType = "general"

// Route assigns an agent type to tasks whose title or description contains
// one of its keywords.
type Route struct {
	Agent    string
	Keywords []string
}

// PlanTemplate is a canned plan applied when the orchestration goal contains
// one of its keywords.
type PlanTemplate struct {
	Keywords []string
	Tasks    []models.PlanTask
}

// conductorFile represents the policy sections of a .conductor.yaml file.
// The file is shared with the project config; unrelated keys are ignored.
type conductorFile struct {
	AgentRoutes []struct {
		Agent    string   `yaml:"agent"`
		Keywords []string `yaml:"keywords"`
	} `yaml:"agent_routes"`
	PlanTemplates []struct {
		Keywords []string `yaml:"keywords"`
		Tasks    []struct {
			ID          string   `yaml:"id"`
			Title       string   `yaml:"title"`
			Description string   `yaml:"description"`
			AgentType   string   `yaml:"agent_type"`
			DependsOn   []string `yaml:"depends_on"`
			Priority    int      `yaml:"priority"`
		} `yaml:"tasks"`
	} `yaml:"plan_templates"`
}

// Policy holds the merged default and project rules.
type Policy struct {
	mu        sync.RWMutex
	routes    []Route
	templates []PlanTemplate
}

// New creates a policy with the built-in routes only.
func New() *Policy {
	return &Policy{
		routes: append([]Route{}, DefaultRoutes...),
	}
}

// Discover loads the nearest .conductor.yaml, walking up from the current
// directory. Returns a default policy when no file is found.
func Discover() *Policy {
	p := New()

	cwd, err := os.Getwd()
	if err != nil {
		return p
	}

	for {
		path := filepath.Join(cwd, ".conductor.yaml")
		if _, err := os.Stat(path); err == nil {
			p.LoadFile(path)
			return p
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return p
}

// LoadFile merges rules from a .conductor.yaml file into the policy.
// Project routes take precedence over built-in routes.
func (p *Policy) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var file conductorFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	var routes []Route
	for _, r := range file.AgentRoutes {
		if r.Agent == "" || len(r.Keywords) == 0 {
			continue
		}
		routes = append(routes, Route{Agent: r.Agent, Keywords: r.Keywords})
	}
	p.routes = append(routes, p.routes...)

	for _, tpl := range file.PlanTemplates {
		if len(tpl.Keywords) == 0 || len(tpl.Tasks) == 0 {
			continue
		}
		tasks := make([]models.PlanTask, 0, len(tpl.Tasks))
		for i, t := range tpl.Tasks {
			id := t.ID
			if id == "" {
				id = "task-" + strconv.Itoa(i+1)
			}
			tasks = append(tasks, models.PlanTask{
				ID:          id,
				Title:       t.Title,
				Description: t.Description,
				AgentType:   t.AgentType,
				DependsOn:   t.DependsOn,
				Priority:    t.Priority,
			})
		}
		p.templates = append(p.templates, PlanTemplate{Keywords: tpl.Keywords, Tasks: tasks})
	}

	return nil
}

// AgentFor returns the agent type for a task based on keyword routes.
// An agent type already set on the task wins over routing.
func (p *Policy) AgentFor(task models.PlanTask) string {
	if task.AgentType != "" {
		return task.AgentType
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	haystack := strings.ToLower(task.Title + " " + task.Description)
	for _, route := range p.routes {
		for _, kw := range route.Keywords {
			if strings.Contains(haystack, strings.ToLower(kw)) {
				return route.Agent
			}
		}
	}

	return DefaultAgentType
}

// PlanFor returns a project plan template matching the goal, if any.
// A copy of the template tasks is returned so callers can mutate freely.
func (p *Policy) PlanFor(goal string) ([]models.PlanTask, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	lower := strings.ToLower(goal)
	for _, tpl := range p.templates {
		for _, kw := range tpl.Keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				tasks := make([]models.PlanTask, len(tpl.Tasks))
				copy(tasks, tpl.Tasks)
				return tasks, true
			}
		}
	}

	return nil, false
}
