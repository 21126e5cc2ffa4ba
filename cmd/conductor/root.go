package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/cobra"
)

// CheckWorkerCLI verifies that the configured worker command is available in
// PATH. Returns an error with installation instructions if not found.
func CheckWorkerCLI(command string) error {
	_, err := exec.LookPath(command)
	if err != nil {
		return fmt.Errorf("worker command %q not found in PATH\n\n"+
			"Conductor runs each plan task through a worker CLI.\n"+
			"Install the default worker with:\n"+
			"  npm install -g @anthropic-ai/claude-code\n\n"+
			"or point worker.command at another executable:\n"+
			"  conductor config worker.command <path>", command)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Agentic task orchestrator",
	Long: `Conductor turns a free-text goal into a reviewed result.

It collects clarifying questions, generates a dependency-ordered task plan,
and executes the plan through parallel worker agents in isolated git
worktrees, retrying failures and streaming progress as it goes.

Typical flow:
  conductor run "add rate limiting to the API"
  conductor answer <id> q1="public endpoints only"
  conductor execute <id>
  conductor approve <id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(answerCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(refineCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
