package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ckirkland/conductor/internal/events"
)

var watchTask string

var watchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Stream orchestration events",
	Long: `Stream an orchestration's events to the terminal.

The last few events are replayed on attach, then live events follow until
interrupted. Use --task to only show events for one plan task.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchTask, "task", "", "Only show events for this task")
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	id, err := resolveID(a, args[0])
	if err != nil {
		return err
	}

	// A task watch attaches to the task's own scope, so replay covers
	// only that task's history.
	var sub *events.Subscription
	if watchTask != "" {
		sub, err = a.manager.SubscribeTask(id, watchTask)
	} else {
		sub, err = a.manager.Subscribe(id)
	}
	if err != nil {
		return err
	}
	defer sub.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-interrupt:
			return nil
		case e, ok := <-sub.Events():
			if !ok {
				return nil
			}
			printEvent(e)
		}
	}
}
