package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ckirkland/conductor/pkg/models"
)

var answerCmd = &cobra.Command{
	Use:   "answer <id> <question-id>=<answer> ...",
	Short: "Answer clarifying questions and generate a plan",
	Long: `Submit answers to an orchestration's clarifying questions.

Each argument after the ID is a question-id=answer pair. Multi-select
answers take comma-separated values. Submitting answers advances the
orchestration to planning and generates the task plan.

Examples:
  conductor answer 3f2a1b q1="public endpoints only" q2=linux,macos`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAnswer,
}

func runAnswer(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := resolveID(a, args[0])
	if err != nil {
		return err
	}
	orc, err := a.manager.Get(id)
	if err != nil {
		return err
	}

	answers := make(map[string]models.Answer)
	for _, pair := range args[1:] {
		qid, value, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("malformed answer %q, expected question-id=answer", pair)
		}
		answers[qid] = buildAnswer(orc.Questions, qid, value)
	}

	if err := a.manager.SubmitAnswers(context.Background(), id, answers); err != nil {
		return err
	}
	fmt.Printf("Answers recorded, generating plan for %s...\n\n", color.CyanString(shortID(id)))

	plan, err := awaitPlan(a, id)
	if err != nil {
		return err
	}
	printPlan(plan)
	fmt.Printf("\nStart execution with:\n  conductor execute %s\n", shortID(id))
	return nil
}

// buildAnswer shapes the raw value by the question's kind: multi-select
// answers are split into values, everything else stays free text.
func buildAnswer(questions []models.Question, qid, value string) models.Answer {
	for _, q := range questions {
		if q.ID == qid && q.Kind == models.QuestionMultiSelect {
			var values []string
			for _, v := range strings.Split(value, ",") {
				if v = strings.TrimSpace(v); v != "" {
					values = append(values, v)
				}
			}
			return models.Answer{Values: values}
		}
	}
	return models.Answer{Text: value}
}

func awaitPlan(a *app, id string) ([]models.PlanTask, error) {
	deadline := time.Now().Add(a.cfg.Timeouts.Plan + 5*time.Second)
	for time.Now().Before(deadline) {
		orc, err := a.manager.Get(id)
		if err != nil {
			return nil, err
		}
		if len(orc.Plan) > 0 {
			return orc.Plan, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("plan did not arrive in time")
}

func printPlan(plan []models.PlanTask) {
	bold := color.New(color.Bold)
	bold.Printf("Plan (%d tasks):\n", len(plan))
	for _, t := range plan {
		line := fmt.Sprintf("  %s %s", color.CyanString(t.ID+":"), t.Title)
		if len(t.DependsOn) > 0 {
			line += color.HiBlackString(" (after %s)", strings.Join(t.DependsOn, ", "))
		}
		if t.AgentType != "" {
			line += color.HiBlackString(" [%s]", t.AgentType)
		}
		fmt.Println(line)
	}
}
