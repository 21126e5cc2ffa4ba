package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var questionsMore bool

var questionsCmd = &cobra.Command{
	Use:   "questions <id>",
	Short: "Show clarifying questions",
	Long: `Show the clarifying questions for an orchestration.

With --more, the collaborator is asked whether additional information is
needed; any fresh questions are appended and printed. If the collaborator
is satisfied, the reason is shown instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuestions,
}

func init() {
	questionsCmd.Flags().BoolVar(&questionsMore, "more", false, "Request additional questions")
}

func runQuestions(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := resolveID(a, args[0])
	if err != nil {
		return err
	}

	if questionsMore {
		fresh, reason, err := a.manager.RequestMoreQuestions(context.Background(), id)
		if err != nil {
			return err
		}
		if len(fresh) == 0 {
			fmt.Printf("No additional questions: %s\n", reason)
			return nil
		}
		printQuestions(fresh)
		return nil
	}

	orc, err := a.manager.Get(id)
	if err != nil {
		return err
	}
	if len(orc.Questions) == 0 {
		fmt.Println("No questions yet.")
		return nil
	}
	printQuestions(orc.Questions)
	return nil
}
