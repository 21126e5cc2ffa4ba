package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ckirkland/conductor/pkg/models"
)

var statusOutput string

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show orchestration state",
	Long: `Display an orchestration's phase, questions, plan, and task runs.

Use --output yaml for a machine-readable dump.`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "text", "Output format: text or yaml")
}

// statusView is the yaml-facing shape of an orchestration's state.
type statusView struct {
	ID        string             `yaml:"id"`
	Goal      string             `yaml:"goal"`
	Phase     string             `yaml:"phase"`
	Status    string             `yaml:"status"`
	CreatedAt time.Time          `yaml:"created_at"`
	UpdatedAt time.Time          `yaml:"updated_at"`
	Questions []questionView     `yaml:"questions,omitempty"`
	Plan      []taskView         `yaml:"plan,omitempty"`
	Runs      map[string]runView `yaml:"runs,omitempty"`
}

type questionView struct {
	ID       string `yaml:"id"`
	Text     string `yaml:"text"`
	Kind     string `yaml:"kind"`
	Answered bool   `yaml:"answered"`
}

type taskView struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	AgentType string   `yaml:"agent_type,omitempty"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

type runView struct {
	Status   string `yaml:"status"`
	Retries  int    `yaml:"retries"`
	ExitCode int    `yaml:"exit_code"`
	Branch   string `yaml:"branch,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
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

	if statusOutput == "yaml" {
		return printStatusYAML(orc)
	}
	printStatusText(orc)
	return nil
}

func printStatusYAML(orc *models.Orchestration) error {
	view := statusView{
		ID:        orc.ID,
		Goal:      orc.Goal,
		Phase:     string(orc.Phase),
		Status:    string(orc.Status),
		CreatedAt: orc.CreatedAt,
		UpdatedAt: orc.UpdatedAt,
	}
	for _, q := range orc.Questions {
		_, answered := orc.Answers[q.ID]
		view.Questions = append(view.Questions, questionView{
			ID: q.ID, Text: q.Text, Kind: string(q.Kind), Answered: answered,
		})
	}
	for _, t := range orc.Plan {
		view.Plan = append(view.Plan, taskView{
			ID: t.ID, Title: t.Title, AgentType: t.AgentType, DependsOn: t.DependsOn,
		})
	}
	if len(orc.SubAgents) > 0 {
		view.Runs = make(map[string]runView, len(orc.SubAgents))
		for taskID, run := range orc.SubAgents {
			view.Runs[taskID] = runView{
				Status: string(run.Status), Retries: run.Retries,
				ExitCode: run.ExitCode, Branch: run.BranchRef,
			}
		}
	}

	out, err := yaml.Marshal(view)
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	fmt.Print(string(out))
	return nil
}

func printStatusText(orc *models.Orchestration) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Orchestration %s", shortID(orc.ID))))
	fmt.Printf("%s %s\n", labelStyle.Render("Goal:"), orc.Goal)
	fmt.Printf("%s %s   %s %s\n",
		labelStyle.Render("Phase:"), orc.Phase,
		labelStyle.Render("Status:"), orc.Status)

	if len(orc.Questions) > 0 {
		fmt.Printf("\n%s\n", labelStyle.Render("Questions:"))
		for _, q := range orc.Questions {
			mark := subtleStyle.Render("unanswered")
			if a, ok := orc.Answers[q.ID]; ok {
				answer := a.Text
				if len(a.Values) > 0 {
					answer = strings.Join(a.Values, ", ")
				}
				mark = answer
			}
			fmt.Printf("  %s %s — %s\n", q.ID+":", q.Text, mark)
		}
	}

	if len(orc.Plan) > 0 {
		fmt.Printf("\n%s\n", labelStyle.Render("Plan:"))
		for _, t := range orc.Plan {
			line := fmt.Sprintf("  %s %s", t.ID+":", t.Title)
			if len(t.DependsOn) > 0 {
				line += subtleStyle.Render(fmt.Sprintf(" (after %s)", strings.Join(t.DependsOn, ", ")))
			}
			if run, ok := orc.SubAgents[t.ID]; ok {
				line += fmt.Sprintf("  [%s]", colorStatus(run.Status))
				if run.Retries > 0 {
					line += warningStyle.Render(fmt.Sprintf(" retries=%d", run.Retries))
				}
			}
			fmt.Println(line)
		}
	}

	if orc.HasOrphans() {
		fmt.Printf("\n%s\n", warningStyle.Render("Some runs were orphaned by a restart; re-run 'conductor execute' to retry them."))
	}

	if n := len(orc.SummaryLog); n > 0 {
		fmt.Printf("\n%s\n", labelStyle.Render("Recent events:"))
		start := n - 5
		if start < 0 {
			start = 0
		}
		for _, e := range orc.SummaryLog[start:] {
			line := fmt.Sprintf("  %s %s", e.Timestamp.Format("15:04:05"), e.Type)
			if e.TaskID != "" {
				line += " " + e.TaskID
			}
			if e.Message != "" {
				line += ": " + e.Message
			}
			fmt.Println(subtleStyle.Render(line))
		}
	}
}
