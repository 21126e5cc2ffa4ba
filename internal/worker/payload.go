package worker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ckirkland/conductor/pkg/models"
)

// BuildPayload renders the task-specific instruction payload handed to the
// worker agent: the overall goal, the task itself, the collected answers, and
// the required outcome.
func BuildPayload(goal string, task models.PlanTask, answers map[string]models.Answer) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Overall goal: %s\n\n", goal)
	fmt.Fprintf(&b, "Your task: %s\n", task.Title)
	if task.Description != "" {
		fmt.Fprintf(&b, "\n%s\n", task.Description)
	}

	if len(answers) > 0 {
		b.WriteString("\nContext from the user:\n")
		// Deterministic payloads make runs reproducible and testable.
		ids := make([]string, 0, len(answers))
		for id := range answers {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			a := answers[id]
			if len(a.Values) > 0 {
				fmt.Fprintf(&b, "- %s: %s\n", id, strings.Join(a.Values, ", "))
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", id, a.Text)
			}
		}
	}

	b.WriteString("\nWork only inside the current directory. ")
	b.WriteString("Commit your changes when the task is complete. ")
	b.WriteString("Exit non-zero if the task cannot be completed.\n")

	return b.String()
}
