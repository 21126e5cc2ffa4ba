package main

import (
	"context"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var refineCmd = &cobra.Command{
	Use:   "refine <id> <feedback>",
	Short: "Refine the result with review feedback",
	Long: `Generate follow-up tasks from review feedback and run them.

The orchestration must be in review. Feedback is turned into additional
plan tasks, execution resumes, and progress streams until the expanded
plan reaches review again.

Example:
  conductor refine 3f2a1b "the retry backoff should be configurable"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runRefine,
}

func runRefine(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	if err := CheckWorkerCLI(a.cfg.Worker.Command); err != nil {
		return err
	}

	id, err := resolveID(a, args[0])
	if err != nil {
		return err
	}
	feedback := strings.Join(args[1:], " ")

	sub, err := a.manager.Subscribe(id)
	if err != nil {
		return err
	}
	defer sub.Close()

	start := time.Now()
	if err := a.manager.Refine(context.Background(), id, feedback); err != nil {
		return err
	}

	streamExecution(sub, start)
	printRunSummary(a, id)
	return nil
}
