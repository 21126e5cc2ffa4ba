package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ckirkland/conductor/internal/events"
	"github.com/ckirkland/conductor/pkg/models"
)

// printEvent renders one broadcast event as a colored log line.
func printEvent(e events.Event) {
	ts := e.Timestamp.Format("15:04:05")
	prefix := ""
	if e.TaskID != "" {
		prefix = color.CyanString("[%s] ", e.TaskID)
	}

	switch e.Type {
	case events.EventPhase:
		color.New(color.Bold).Printf("%s phase: %s\n", ts, e.Message)
	case events.EventQuestions, events.EventPlan:
		fmt.Printf("%s %s%s\n", ts, prefix, e.Message)
	case events.EventProgress:
		msg := e.Message
		if len(msg) > 120 {
			msg = msg[:117] + "..."
		}
		fmt.Printf("%s %s%s\n", ts, prefix, color.HiBlackString(strings.ReplaceAll(msg, "\n", " ")))
	case events.EventTaskStarted:
		fmt.Printf("%s %s%s\n", ts, prefix, color.GreenString("started: %s", e.Message))
	case events.EventTaskCompleted:
		fmt.Printf("%s %s%s\n", ts, prefix, color.GreenString("completed"))
	case events.EventTaskRetrying:
		fmt.Printf("%s %s%s\n", ts, prefix, color.YellowString(e.Message))
	case events.EventTaskFailed:
		fmt.Printf("%s %s%s\n", ts, prefix, color.RedString(e.Message))
		for _, entry := range e.Tail {
			fmt.Printf("    %s\n", color.HiBlackString(strings.ReplaceAll(entry.Text, "\n", " ")))
		}
	case events.EventError:
		fmt.Printf("%s %s%s\n", ts, prefix, color.RedString(e.Message))
	case events.EventComplete:
		color.New(color.Bold, color.FgGreen).Printf("%s %s\n", ts, e.Message)
	case events.EventHeartbeat:
		// Keep-alives are noise on a terminal.
	}
}

// streamExecution prints events until the orchestration reaches review,
// completes, or stalls. Replayed history from before since is skipped so a
// stale phase event cannot end the stream early.
func streamExecution(sub *events.Subscription, since time.Time) {
	for e := range sub.Events() {
		if e.Timestamp.Before(since) {
			continue
		}
		printEvent(e)

		switch e.Type {
		case events.EventPhase:
			if e.Message == string(models.PhaseReview) {
				return
			}
		case events.EventComplete:
			return
		case events.EventError:
			if strings.Contains(e.Message, "execution stalled") {
				return
			}
		}
	}
}
