package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ckirkland/conductor/internal/orchestrator"
	"github.com/ckirkland/conductor/internal/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Inspect and merge task workspaces",
	Long: `Work with the git worktrees and branches created for task runs.

Each task runs on its own branch in an isolated worktree. Once a task
completes, its changes can be reviewed and merged back, or discarded.`,
}

var workspaceDiffCmd = &cobra.Command{
	Use:   "diff <id> <task-id>",
	Short: "Show a task's changes against the current branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTaskWorkspace(args, func(ws *workspace.Manager, key string) error {
			diff, err := ws.Diff(key, "HEAD")
			if err != nil {
				return err
			}
			if diff == "" {
				fmt.Println("No changes.")
				return nil
			}
			fmt.Println(diff)
			return nil
		})
	},
}

var workspaceMergeCmd = &cobra.Command{
	Use:   "merge <id> <task-id>",
	Short: "Merge a task's branch into the current branch",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTaskWorkspace(args, func(ws *workspace.Manager, key string) error {
			if err := ws.Merge(key); err != nil {
				return err
			}
			fmt.Printf("Merged %s\n", color.GreenString(workspace.BranchName(key)))
			return nil
		})
	},
	Args: cobra.ExactArgs(2),
}

var workspaceDiscardCmd = &cobra.Command{
	Use:   "discard <id> <task-id>",
	Short: "Remove a task's worktree and branch",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withTaskWorkspace(args, func(ws *workspace.Manager, key string) error {
			if err := ws.Discard(key); err != nil {
				return err
			}
			fmt.Printf("Discarded %s\n", workspace.BranchName(key))
			return nil
		})
	},
}

func init() {
	workspaceCmd.AddCommand(workspaceDiffCmd)
	workspaceCmd.AddCommand(workspaceMergeCmd)
	workspaceCmd.AddCommand(workspaceDiscardCmd)
}

// withTaskWorkspace resolves the orchestration and task into a workspace key
// and runs fn against the repository's workspace manager.
func withTaskWorkspace(args []string, fn func(ws *workspace.Manager, key string) error) error {
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
	taskID := args[1]
	if orc.TaskByID(taskID) == nil {
		return fmt.Errorf("no task %q in orchestration %s", taskID, shortID(id))
	}

	root, ok := findRepoRoot()
	if !ok {
		return fmt.Errorf("not inside a git repository")
	}
	ws, err := workspace.NewManager("", root)
	if err != nil {
		return err
	}

	return fn(ws, orchestrator.WorkspaceKey(id, taskID))
}
