package generate

import (
	"fmt"
	"strings"

	"github.com/ckirkland/conductor/pkg/models"
)

// FallbackQuestions returns the deterministic question set substituted when
// question generation times out or produces unusable output.
func FallbackQuestions() []models.Question {
	return []models.Question{
		{
			ID:   "fallback-scope",
			Text: "What is the most important outcome of this goal?",
			Kind: models.QuestionText,
		},
		{
			ID:      "fallback-platform",
			Text:    "What kind of deliverable is this?",
			Kind:    models.QuestionChoice,
			Options: []string{"Web application", "API / service", "CLI tool", "Library", "Other"},
		},
		{
			ID:      "fallback-constraints",
			Text:    "Which constraints apply?",
			Kind:    models.QuestionMultiSelect,
			Options: []string{"Must reuse existing code", "Performance sensitive", "Needs tests", "Needs documentation"},
		},
		{
			ID:   "fallback-users",
			Text: "Who will use the result?",
			Kind: models.QuestionText,
		},
		{
			ID:   "fallback-done",
			Text: "How will you know the goal is complete?",
			Kind: models.QuestionText,
		},
	}
}

// planTemplate is one keyword-driven fallback plan shape.
type planTemplate struct {
	keywords []string
	tasks    []models.PlanTask
}

var planTemplates = []planTemplate{
	{
		keywords: []string{"api", "service", "server", "endpoint"},
		tasks: []models.PlanTask{
			{ID: "design", Title: "Design the API surface", AgentType: "architect"},
			{ID: "implement", Title: "Implement the service", AgentType: "coder", DependsOn: []string{"design"}},
			{ID: "test", Title: "Write and run tests", AgentType: "coder", DependsOn: []string{"implement"}},
		},
	},
	{
		keywords: []string{"bug", "fix", "error", "crash"},
		tasks: []models.PlanTask{
			{ID: "reproduce", Title: "Reproduce the problem", AgentType: "coder"},
			{ID: "fix", Title: "Implement the fix", AgentType: "coder", DependsOn: []string{"reproduce"}},
			{ID: "verify", Title: "Verify with a regression test", AgentType: "coder", DependsOn: []string{"fix"}},
		},
	},
	{
		keywords: []string{"refactor", "cleanup", "restructure"},
		tasks: []models.PlanTask{
			{ID: "survey", Title: "Survey the affected code", AgentType: "architect"},
			{ID: "refactor", Title: "Apply the refactoring", AgentType: "coder", DependsOn: []string{"survey"}},
			{ID: "verify", Title: "Verify behavior is unchanged", AgentType: "coder", DependsOn: []string{"refactor"}},
		},
	},
}

// FallbackPlan returns a fixed task list keyed off goal keywords, substituted
// when plan generation times out or produces unusable output.
func FallbackPlan(goal string) []models.PlanTask {
	lower := strings.ToLower(goal)
	for _, tmpl := range planTemplates {
		for _, kw := range tmpl.keywords {
			if strings.Contains(lower, kw) {
				return withGoalDescriptions(tmpl.tasks, goal)
			}
		}
	}

	// Generic three-step plan when no keyword matches.
	generic := []models.PlanTask{
		{ID: "plan", Title: "Break down the goal", AgentType: "architect"},
		{ID: "build", Title: "Implement the goal", AgentType: "coder", DependsOn: []string{"plan"}},
		{ID: "review", Title: "Review and test the result", AgentType: "coder", DependsOn: []string{"build"}},
	}
	return withGoalDescriptions(generic, goal)
}

func withGoalDescriptions(tasks []models.PlanTask, goal string) []models.PlanTask {
	out := make([]models.PlanTask, len(tasks))
	copy(out, tasks)
	for i := range out {
		out[i].Description = fmt.Sprintf("%s\n\nGoal: %s", out[i].Title, goal)
		out[i].Priority = i + 1
	}
	return out
}
