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

var runCmd = &cobra.Command{
	Use:   "run <goal>",
	Short: "Start a new orchestration from a goal",
	Long: `Start a new orchestration for a free-text goal.

Clarifying questions are generated and printed. Answer them with
'conductor answer', then start execution with 'conductor execute'.

Examples:
  conductor run "add rate limiting to the API"
  conductor run fix the flaky checkout test`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	goal := strings.Join(args, " ")
	orc, err := a.manager.Start(context.Background(), goal)
	if err != nil {
		return err
	}

	fmt.Printf("Orchestration %s started\n", color.CyanString(shortID(orc.ID)))
	fmt.Printf("Goal: %s\n\n", goal)

	questions, err := awaitQuestions(a, orc.ID)
	if err != nil {
		return err
	}

	printQuestions(questions)
	fmt.Printf("\nAnswer with:\n  conductor answer %s <question-id>=<answer> ...\n", shortID(orc.ID))
	return nil
}

// awaitQuestions polls until background question generation lands. The
// generator has its own timeout with a deterministic fallback, so this
// always resolves.
func awaitQuestions(a *app, id string) ([]models.Question, error) {
	deadline := time.Now().Add(a.cfg.Timeouts.Questions + 5*time.Second)
	for time.Now().Before(deadline) {
		orc, err := a.manager.Get(id)
		if err != nil {
			return nil, err
		}
		if len(orc.Questions) > 0 {
			return orc.Questions, nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return nil, fmt.Errorf("questions did not arrive in time")
}

func printQuestions(questions []models.Question) {
	bold := color.New(color.Bold)
	bold.Println("Clarifying questions:")
	for _, q := range questions {
		fmt.Printf("  %s %s\n", color.CyanString(q.ID+":"), q.Text)
		switch q.Kind {
		case models.QuestionChoice:
			fmt.Printf("      one of: %s\n", strings.Join(q.Options, ", "))
		case models.QuestionMultiSelect:
			fmt.Printf("      any of: %s (comma-separated)\n", strings.Join(q.Options, ", "))
		}
	}
}
