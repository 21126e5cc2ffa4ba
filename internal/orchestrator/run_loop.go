package orchestrator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ckirkland/conductor/internal/events"
	"github.com/ckirkland/conductor/internal/worker"
	"github.com/ckirkland/conductor/pkg/models"
)

// failureTailEntries is how many trailing output entries accompany a
// task_failed event.
const failureTailEntries = 5

// startLoopLocked launches the run loop goroutine. Caller must hold s.mu.
func (m *Manager) startLoopLocked(s *session) {
	ctx, cancel := context.WithCancel(context.Background())
	s.loopCancel = cancel
	done := make(chan struct{})
	s.loopDone = done

	go func() {
		defer close(done)
		m.runLoop(ctx, s)

		s.mu.Lock()
		if s.loopDone == done {
			s.loopCancel = nil
			s.loopDone = nil
		}
		s.mu.Unlock()
	}()
}

// runLoop schedules ready tasks and reacts to completions until the plan is
// done, execution stalls, or the context is cancelled.
func (m *Manager) runLoop(ctx context.Context, s *session) {
	for {
		if finished := m.scheduleReady(ctx, s); finished {
			return
		}

		select {
		case <-ctx.Done():
			return
		case c := <-s.completions:
			m.handleCompletion(s, c)
		case <-s.wake:
		}
	}
}

// scheduleReady spawns workers for ready tasks up to the concurrency cap.
// Returns true when the loop should exit: every task completed (review
// reached) or execution stalled with nothing running and nothing schedulable.
func (m *Manager) scheduleReady(ctx context.Context, s *session) bool {
	s.mu.Lock()

	if s.graph == nil {
		s.mu.Unlock()
		return true
	}

	if s.graph.AllComplete() {
		debugLog("[scheduler] %s: all tasks complete, entering review", s.orc.ID)
		s.orc.Phase = models.PhaseReview
		m.emitLocked(s, events.Event{
			Type:    events.EventPhase,
			Message: string(models.PhaseReview),
		})
		s.mu.Unlock()
		return true
	}

	var batch []models.PlanTask
	capacity := m.concurrency() - s.orc.RunningCount()
	for _, task := range s.graph.Ready() {
		if capacity <= 0 {
			break
		}
		// A task with any current run (live, retrying, or terminal)
		// is not schedulable.
		if _, exists := s.orc.SubAgents[task.ID]; exists {
			continue
		}
		batch = append(batch, task)
		capacity--
	}

	if len(batch) == 0 {
		stalled := s.orc.RunningCount() == 0 && !s.retryPendingLocked()
		if stalled && s.blockedByFailureLocked() {
			debugLog("[scheduler] %s: stalled, failed tasks block remaining work", s.orc.ID)
			m.emitLocked(s, events.Event{
				Type:    events.EventError,
				Message: "execution stalled: failed tasks block remaining work",
			})
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()
		return false
	}
	debugLog("[scheduler] %s: spawning %d task(s), %d running", s.orc.ID, len(batch), s.orc.RunningCount())
	s.mu.Unlock()

	for i, task := range batch {
		if stagger := m.spawnStagger(); i > 0 && stagger > 0 {
			select {
			case <-ctx.Done():
				return true
			case <-time.After(stagger):
			}
		}
		m.spawnTask(ctx, s, task)
	}
	return false
}

// spawnTask acquires a workspace, launches a worker for the task, and wires
// its output stream into the orchestration.
func (m *Manager) spawnTask(ctx context.Context, s *session, task models.PlanTask) {
	s.mu.Lock()
	if _, exists := s.orc.SubAgents[task.ID]; exists {
		s.mu.Unlock()
		return
	}

	run := &models.SubAgentRun{
		ID:        uuid.New().String(),
		TaskID:    task.ID,
		Retries:   s.retries[task.ID],
		Status:    models.RunStatusRunning,
		StartedAt: time.Now(),
	}
	s.orc.SubAgents[task.ID] = run

	goal := s.orc.Goal
	answers := s.orc.Answers
	orcID := s.orc.ID
	s.mu.Unlock()

	dir := ""
	branch := ""
	if m.opts.Workspaces != nil {
		ws, err := m.opts.Workspaces.Acquire(WorkspaceKey(orcID, task.ID))
		if err != nil {
			// Fall back to the shared repository root.
			log.Printf("[orchestrator] workspace for task %s unavailable, using shared root: %v", task.ID, err)
			dir = m.opts.Workspaces.RepoPath()
		} else {
			dir = ws.Path
			branch = ws.BranchRef
		}
	}

	payload := worker.BuildPayload(goal, task, answers)
	handle, err := m.opts.Spawner.Spawn(ctx, payload, dir)

	s.mu.Lock()
	run.WorkspacePath = dir
	run.BranchRef = branch

	if err != nil {
		run.Status = models.RunStatusErrored
		now := time.Now()
		run.EndedAt = &now
		run.ExitCode = -1
		m.emitLocked(s, events.Event{
			Type:    events.EventError,
			TaskID:  task.ID,
			Message: fmt.Sprintf("worker spawn failed: %v", err),
		})
		m.scheduleRetryLocked(s, run)
		s.mu.Unlock()
		return
	}

	s.procs[task.ID] = handle
	m.emitLocked(s, events.Event{
		Type:    events.EventTaskStarted,
		TaskID:  task.ID,
		Message: fmt.Sprintf("%s (attempt %d)", task.Title, run.Retries+1),
	})
	s.mu.Unlock()

	go m.consumeWorker(s, task.ID, run, handle)
}

// consumeWorker drains a worker's output into the run and signals the loop
// when the process exits.
func (m *Manager) consumeWorker(s *session, taskID string, run *models.SubAgentRun, handle WorkerHandle) {
	for entry := range handle.Entries() {
		if entry.Err != nil {
			log.Printf("[orchestrator] output stream for task %s: %v", taskID, entry.Err)
			continue
		}

		s.mu.Lock()
		run.Output = append(run.Output, entry.Record)
		m.emitLocked(s, events.Event{
			Type:    events.EventProgress,
			TaskID:  taskID,
			Message: entry.Record.Text,
		})
		s.mu.Unlock()
	}

	code := handle.Wait()
	s.completions <- completion{
		taskID:   taskID,
		exitCode: code,
		stopped:  handle.Stopped(),
		stderr:   handle.StderrTail(),
	}
}

// handleCompletion applies the outcome of a finished worker to the run and
// the dependency graph.
func (m *Manager) handleCompletion(s *session, c completion) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.orc.SubAgents[c.taskID]
	if !ok {
		return
	}
	delete(s.procs, c.taskID)

	now := time.Now()
	run.EndedAt = &now
	run.ExitCode = c.exitCode
	debugLog("[scheduler] task %s exited with code %d (stopped=%v)", c.taskID, c.exitCode, c.stopped)

	// StopTask marks the run stopped before terminating the process.
	// Stopped runs are terminal and never retried.
	if run.Status == models.RunStatusStopped || c.stopped {
		run.Status = models.RunStatusStopped
		m.emitLocked(s, events.Event{
			Type:    events.EventError,
			TaskID:  c.taskID,
			Message: "task stopped",
		})
		return
	}

	if c.exitCode == 0 {
		run.Status = models.RunStatusCompleted
		s.graph.MarkComplete(c.taskID)
		m.emitLocked(s, events.Event{
			Type:    events.EventTaskCompleted,
			TaskID:  c.taskID,
			Message: "task completed",
		})
		return
	}

	msg := fmt.Sprintf("worker exited with code %d", c.exitCode)
	if c.stderr != "" {
		msg += ": " + c.stderr
	}
	m.emitLocked(s, events.Event{
		Type:    events.EventError,
		TaskID:  c.taskID,
		Message: msg,
	})

	m.scheduleRetryLocked(s, run)
}

// scheduleRetryLocked either queues a retry with backoff or fails the task
// when attempts are exhausted. Caller must hold s.mu.
func (m *Manager) scheduleRetryLocked(s *session, run *models.SubAgentRun) {
	if run.Retries >= s.orc.MaxRetries {
		debugLog("[scheduler] task %s failed permanently after %d attempts", run.TaskID, run.Retries+1)
		run.Status = models.RunStatusFailed
		m.emitLocked(s, events.Event{
			Type:    events.EventTaskFailed,
			TaskID:  run.TaskID,
			Message: fmt.Sprintf("failed after %d attempts", run.Retries+1),
			Tail:    run.OutputTail(failureTailEntries),
		})
		go m.releaseWorkspace(s.orc.ID, run.TaskID)
		return
	}

	run.Status = models.RunStatusRetrying
	m.emitLocked(s, events.Event{
		Type:    events.EventTaskRetrying,
		TaskID:  run.TaskID,
		Message: fmt.Sprintf("retrying, attempt %d of %d", run.Retries+2, s.orc.MaxRetries+1),
	})

	taskID := run.TaskID
	orcID := s.orc.ID
	time.AfterFunc(m.retryBackoff(), func() {
		s.mu.Lock()
		current := s.orc.SubAgents[taskID]
		replaced := current == run && run.Status == models.RunStatusRetrying
		if replaced {
			// The failed run is replaced wholesale: the next attempt
			// gets a fresh run carrying the incremented retry count.
			delete(s.orc.SubAgents, taskID)
			s.retries[taskID] = run.Retries + 1
		}
		s.mu.Unlock()
		if replaced {
			m.releaseWorkspace(orcID, taskID)
		}
		s.signalWake()
	})
}

// releaseWorkspace removes a task's worktree so the next attempt (or nothing)
// starts clean. The branch is kept for explicit merge or discard.
func (m *Manager) releaseWorkspace(orcID, taskID string) {
	if m.opts.Workspaces == nil {
		return
	}
	if err := m.opts.Workspaces.Release(WorkspaceKey(orcID, taskID)); err != nil {
		log.Printf("[orchestrator] releasing workspace for task %s: %v", taskID, err)
	}
}

// retryPendingLocked reports whether any run is waiting on a retry backoff.
// Caller must hold s.mu.
func (s *session) retryPendingLocked() bool {
	for _, run := range s.orc.SubAgents {
		if run.Status == models.RunStatusRetrying {
			return true
		}
	}
	return false
}

// blockedByFailureLocked reports whether incomplete tasks remain that can
// never become ready because a dependency is terminally failed or stopped.
// Caller must hold s.mu.
func (s *session) blockedByFailureLocked() bool {
	for _, run := range s.orc.SubAgents {
		switch run.Status {
		case models.RunStatusFailed, models.RunStatusStopped:
			return true
		}
	}
	return false
}

func (s *session) signalWake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// WorkspaceKey names the worktree and branch for one task of one
// orchestration.
func WorkspaceKey(orcID, taskID string) string {
	if len(orcID) > 8 {
		orcID = orcID[:8]
	}
	return orcID + "-" + taskID
}
