package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var approveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve the reviewed result",
	Long: `Accept an orchestration's reviewed result and mark it completed.

The orchestration must be in review. Task worktrees and branches are kept
so the work can still be merged with 'conductor workspace merge'.`,
	Args: cobra.ExactArgs(1),
	RunE: runApprove,
}

func runApprove(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := resolveID(a, args[0])
	if err != nil {
		return err
	}

	if err := a.manager.Approve(id); err != nil {
		return err
	}
	fmt.Printf("Orchestration %s %s\n", color.CyanString(shortID(id)), color.GreenString("completed"))
	return nil
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an orchestration",
	Long: `Delete an orchestration entirely.

Running workers are stopped, persisted state is removed, and live
subscribers are disconnected. This cannot be undone.`,
	Args: cobra.ExactArgs(1),
	RunE: runDelete,
}

func runDelete(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := resolveID(a, args[0])
	if err != nil {
		return err
	}

	if err := a.manager.Delete(id); err != nil {
		return err
	}
	fmt.Printf("Orchestration %s deleted\n", shortID(id))
	return nil
}
