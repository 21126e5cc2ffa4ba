package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ckirkland/conductor/pkg/models"
)

func TestAgentForDefaults(t *testing.T) {
	p := New()

	tests := []struct {
		name  string
		task  models.PlanTask
		agent string
	}{
		{"review task", models.PlanTask{Title: "Review the API changes"}, "reviewer"},
		{"test task", models.PlanTask{Title: "Add regression tests"}, "tester"},
		{"docs task", models.PlanTask{Description: "Update the README"}, "documenter"},
		{"plain task", models.PlanTask{Title: "Implement the endpoint"}, DefaultAgentType},
		{"explicit agent wins", models.PlanTask{Title: "Review changes", AgentType: "custom"}, "custom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.AgentFor(tt.task); got != tt.agent {
				t.Errorf("AgentFor() = %q, want %q", got, tt.agent)
			}
		})
	}
}

func TestLoadFileRoutesTakePrecedence(t *testing.T) {
	path := writePolicy(t, `
agent_routes:
  - agent: security
    keywords: [review]
`)

	p := New()
	if err := p.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// Project route overrides the built-in reviewer route.
	if got := p.AgentFor(models.PlanTask{Title: "Review login flow"}); got != "security" {
		t.Errorf("expected project route 'security', got %q", got)
	}

	// Built-in routes still apply where the project is silent.
	if got := p.AgentFor(models.PlanTask{Title: "Write unit tests"}); got != "tester" {
		t.Errorf("expected built-in route 'tester', got %q", got)
	}
}

func TestLoadFilePlanTemplates(t *testing.T) {
	path := writePolicy(t, `
plan_templates:
  - keywords: [deploy]
    tasks:
      - title: Build release artifact
        agent_type: general
      - id: ship
        title: Ship to production
        depends_on: [task-1]
`)

	p := New()
	if err := p.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	tasks, ok := p.PlanFor("Deploy the new service")
	if !ok {
		t.Fatal("expected template match for deploy goal")
	}
	if len(tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(tasks))
	}
	if tasks[0].ID != "task-1" {
		t.Errorf("expected generated id task-1, got %q", tasks[0].ID)
	}
	if tasks[1].ID != "ship" {
		t.Errorf("expected explicit id ship, got %q", tasks[1].ID)
	}
	if len(tasks[1].DependsOn) != 1 || tasks[1].DependsOn[0] != "task-1" {
		t.Errorf("unexpected depends_on: %v", tasks[1].DependsOn)
	}

	if _, ok := p.PlanFor("Refactor the parser"); ok {
		t.Error("expected no template match for unrelated goal")
	}
}

func TestLoadFileIgnoresUnrelatedKeys(t *testing.T) {
	path := writePolicy(t, `
scheduler:
  concurrency: 5
agent_routes:
  - agent: infra
    keywords: [terraform]
`)

	p := New()
	if err := p.LoadFile(path); err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if got := p.AgentFor(models.PlanTask{Title: "Update terraform modules"}); got != "infra" {
		t.Errorf("expected 'infra', got %q", got)
	}
}

func TestLoadFileMissing(t *testing.T) {
	p := New()
	if err := p.LoadFile("/nonexistent/.conductor.yaml"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadFileMalformedYAML(t *testing.T) {
	path := writePolicy(t, "agent_routes: [not: valid: yaml")

	p := New()
	if err := p.LoadFile(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".conductor.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}
	return path
}
