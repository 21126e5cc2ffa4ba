package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ckirkland/conductor/internal/config"
	"github.com/ckirkland/conductor/pkg/models"
)

var executeCmd = &cobra.Command{
	Use:   "execute <id>",
	Short: "Execute the task plan",
	Long: `Execute an orchestration's task plan.

Tasks run in parallel worker agents, each in its own git worktree, with
dependencies respected and failed tasks retried. Progress streams to the
terminal until every task completes and the orchestration reaches review.`,
	Args: cobra.ExactArgs(1),
	RunE: runExecute,
}

func runExecute(cmd *cobra.Command, args []string) error {
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

	sub, err := a.manager.Subscribe(id)
	if err != nil {
		return err
	}
	defer sub.Close()

	// Scheduler knobs edited in the config file apply without a restart.
	if err := config.Watch(func(c *config.Config) {
		a.manager.Retune(c.Scheduler.Concurrency, c.Scheduler.RetryBackoff, c.Scheduler.SpawnStagger)
		log.Printf("[conductor] scheduler settings reloaded")
	}); err != nil {
		log.Printf("[conductor] config watch unavailable: %v", err)
	}

	start := time.Now()
	if err := a.manager.Execute(context.Background(), id); err != nil {
		return err
	}

	streamExecution(sub, start)
	printRunSummary(a, id)
	return nil
}

// printRunSummary lists the final state of every task run.
func printRunSummary(a *app, id string) {
	orc, err := a.manager.Get(id)
	if err != nil {
		return
	}

	fmt.Println()
	for _, task := range orc.Plan {
		run, ok := orc.SubAgents[task.ID]
		if !ok {
			fmt.Printf("  %s %s: %s\n", color.CyanString(task.ID), task.Title, color.HiBlackString("not run"))
			continue
		}
		fmt.Printf("  %s %s: %s\n", color.CyanString(task.ID), task.Title, colorStatus(run.Status))
	}

	if orc.Phase == models.PhaseReview {
		fmt.Printf("\nReview the result, then:\n  conductor approve %s\n  conductor refine %s \"<feedback>\"\n",
			shortID(id), shortID(id))
	}
}

func colorStatus(s models.RunStatus) string {
	switch s {
	case models.RunStatusCompleted:
		return color.GreenString(string(s))
	case models.RunStatusRunning, models.RunStatusRetrying:
		return color.YellowString(string(s))
	case models.RunStatusFailed, models.RunStatusErrored, models.RunStatusOrphaned:
		return color.RedString(string(s))
	default:
		return string(s)
	}
}
