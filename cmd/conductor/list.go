package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/ckirkland/conductor/pkg/models"
)

var (
	listHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	activeStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	completedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	orphanStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List orchestrations",
	Long:  `List all orchestrations, oldest first, with phase and progress.`,
	RunE:  runList,
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	all := a.manager.List()
	if len(all) == 0 {
		fmt.Println("No orchestrations. Start one with 'conductor run <goal>'.")
		return nil
	}

	fmt.Println(listHeaderStyle.Render(fmt.Sprintf("%-10s %-12s %-10s %-8s %s", "ID", "PHASE", "STATUS", "TASKS", "GOAL")))
	for _, orc := range all {
		done := len(orc.CompletedTaskIDs())
		tasks := fmt.Sprintf("%d/%d", done, len(orc.Plan))

		goal := orc.Goal
		if len(goal) > 50 {
			goal = goal[:47] + "..."
		}

		line := fmt.Sprintf("%-10s %-12s %-10s %-8s %s", shortID(orc.ID), orc.Phase, orc.Status, tasks, goal)
		switch {
		case orc.HasOrphans():
			line = orphanStyle.Render(line + "  (orphaned runs)")
		case orc.Status == models.StatusCompleted:
			line = completedStyle.Render(line)
		default:
			line = activeStyle.Render(line)
		}
		fmt.Println(line)
	}
	return nil
}
