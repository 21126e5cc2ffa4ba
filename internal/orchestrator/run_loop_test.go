package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ckirkland/conductor/internal/events"
	"github.com/ckirkland/conductor/pkg/models"
)

func phaseOf(m *Manager, id string) models.Phase {
	s, _ := m.session(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orc.Phase
}

func runOf(m *Manager, id, taskID string) models.SubAgentRun {
	s, _ := m.session(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.orc.SubAgents[taskID]
	if !ok {
		return models.SubAgentRun{}
	}
	return *run
}

func summaryTypes(m *Manager, id string) []string {
	s, _ := m.session(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	var types []string
	for _, e := range s.orc.SummaryLog {
		types = append(types, e.Type)
	}
	return types
}

func TestExecuteRunsPlanToReview(t *testing.T) {
	sp := &fakeSpawner{}
	m := newTestManager(t, sp, 3, 3)
	orc := seedPlanning(m, []models.PlanTask{
		{ID: "a", Title: "first"},
		{ID: "b", Title: "second", DependsOn: []string{"a"}},
	})

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	waitFor(t, "review phase", func() bool {
		return phaseOf(m, orc.ID) == models.PhaseReview
	})

	for _, taskID := range []string{"a", "b"} {
		run := runOf(m, orc.ID, taskID)
		if run.Status != models.RunStatusCompleted {
			t.Errorf("task %s: expected completed, got %s", taskID, run.Status)
		}
		if run.ExitCode != 0 {
			t.Errorf("task %s: expected exit 0, got %d", taskID, run.ExitCode)
		}
		if run.EndedAt == nil {
			t.Errorf("task %s: expected EndedAt set", taskID)
		}
		if len(run.Output) == 0 {
			t.Errorf("task %s: expected captured output", taskID)
		}
	}

	types := summaryTypes(m, orc.ID)
	var started, completed int
	for _, tp := range types {
		switch tp {
		case string(events.EventTaskStarted):
			started++
		case string(events.EventTaskCompleted):
			completed++
		}
	}
	if started != 2 || completed != 2 {
		t.Errorf("expected 2 started and 2 completed events, got %d/%d", started, completed)
	}
}

func TestDependentWaitsForDependency(t *testing.T) {
	sp := &fakeSpawner{hold: true}
	m := newTestManager(t, sp, 3, 3)
	orc := seedPlanning(m, []models.PlanTask{
		{ID: "a", Title: "first"},
		{ID: "b", Title: "second", DependsOn: []string{"a"}},
	})

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	waitFor(t, "first spawn", func() bool { return sp.count() == 1 })

	// The dependent must not start while its dependency is live.
	time.Sleep(50 * time.Millisecond)
	if sp.count() != 1 {
		t.Fatalf("dependent spawned early, %d spawns", sp.count())
	}

	sp.release(0)
	waitFor(t, "second spawn", func() bool { return sp.count() == 2 })
	sp.release(1)

	waitFor(t, "review phase", func() bool {
		return phaseOf(m, orc.ID) == models.PhaseReview
	})
}

func TestConcurrencyCap(t *testing.T) {
	sp := &fakeSpawner{hold: true}
	m := newTestManager(t, sp, 3, 3)

	plan := make([]models.PlanTask, 6)
	for i := range plan {
		plan[i] = models.PlanTask{ID: string(rune('a' + i)), Title: "task"}
	}
	orc := seedPlanning(m, plan)

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	waitFor(t, "three spawns", func() bool { return sp.count() == 3 })

	// The cap holds while all three run.
	time.Sleep(50 * time.Millisecond)
	if sp.maxActive > 3 {
		t.Fatalf("concurrency cap exceeded: %d", sp.maxActive)
	}

	for i := 0; i < 6; i++ {
		waitFor(t, "spawn", func() bool { return sp.count() >= i+1 })
		sp.release(i)
	}

	waitFor(t, "review phase", func() bool {
		return phaseOf(m, orc.ID) == models.PhaseReview
	})
	if sp.maxActive > 3 {
		t.Errorf("concurrency cap exceeded: %d", sp.maxActive)
	}
}

func TestFailedTaskRetriesThenSucceeds(t *testing.T) {
	sp := &fakeSpawner{exits: []int{1, 1, 0}}
	m := newTestManager(t, sp, 3, 3)
	orc := seedPlanning(m, []models.PlanTask{{ID: "a", Title: "flaky"}})

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	waitFor(t, "review phase", func() bool {
		return phaseOf(m, orc.ID) == models.PhaseReview
	})

	run := runOf(m, orc.ID, "a")
	if run.Status != models.RunStatusCompleted {
		t.Errorf("expected completed, got %s", run.Status)
	}
	if run.Retries != 2 {
		t.Errorf("expected 2 prior retries carried onto the final run, got %d", run.Retries)
	}
	if sp.count() != 3 {
		t.Errorf("expected 3 attempts, got %d", sp.count())
	}

	var retrying int
	for _, tp := range summaryTypes(m, orc.ID) {
		if tp == string(events.EventTaskRetrying) {
			retrying++
		}
	}
	if retrying != 2 {
		t.Errorf("expected 2 retrying events, got %d", retrying)
	}
}

func TestRetriesExhaustedFailsTask(t *testing.T) {
	sp := &fakeSpawner{exits: []int{1, 1}}
	m := newTestManager(t, sp, 3, 1)
	orc := seedPlanning(m, []models.PlanTask{
		{ID: "a", Title: "doomed"},
		{ID: "b", Title: "blocked", DependsOn: []string{"a"}},
	})

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	waitFor(t, "failed run", func() bool {
		return runOf(m, orc.ID, "a").Status == models.RunStatusFailed
	})

	// MaxRetries=1 means the original attempt plus one retry.
	if sp.count() != 2 {
		t.Errorf("expected 2 attempts, got %d", sp.count())
	}

	// The dependent never starts and the phase never reaches review.
	if run := runOf(m, orc.ID, "b"); run.Status != "" {
		t.Errorf("blocked task must not run, got status %s", run.Status)
	}
	if phase := phaseOf(m, orc.ID); phase != models.PhaseExecution {
		t.Errorf("expected execution phase, got %s", phase)
	}

	var failed bool
	for _, tp := range summaryTypes(m, orc.ID) {
		if tp == string(events.EventTaskFailed) {
			failed = true
		}
	}
	if !failed {
		t.Error("expected a task_failed event")
	}
}

func TestTaskFailedEventCarriesOutputTail(t *testing.T) {
	hub := events.NewHub(time.Hour)
	sp := &fakeSpawner{hold: true, exits: []int{1}}
	m := newTestManager(t, sp, 3, 0)
	m.opts.Hub = hub
	orc := seedPlanning(m, []models.PlanTask{{ID: "a", Title: "noisy"}})

	sub := hub.Subscribe(orc.ID)
	defer sub.Close()

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	waitFor(t, "spawn", func() bool { return sp.count() == 1 })
	for i := 0; i < 8; i++ {
		sp.spawned[0].emit("line")
	}
	sp.release(0)

	waitFor(t, "failed run", func() bool {
		return runOf(m, orc.ID, "a").Status == models.RunStatusFailed
	})

	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-sub.Events():
			if e.Type != events.EventTaskFailed {
				continue
			}
			if len(e.Tail) != failureTailEntries {
				t.Errorf("expected %d tail entries, got %d", failureTailEntries, len(e.Tail))
			}
			return
		case <-deadline:
			t.Fatal("no task_failed event observed")
		}
	}
}

func TestStopTaskIsTerminal(t *testing.T) {
	sp := &fakeSpawner{hold: true}
	m := newTestManager(t, sp, 3, 3)
	orc := seedPlanning(m, []models.PlanTask{{ID: "a", Title: "long"}})

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitFor(t, "spawn", func() bool { return sp.count() == 1 })

	if err := m.StopTask(orc.ID, "a"); err != nil {
		t.Fatalf("StopTask failed: %v", err)
	}

	waitFor(t, "stopped run", func() bool {
		run := runOf(m, orc.ID, "a")
		return run.Status == models.RunStatusStopped && run.EndedAt != nil
	})

	// No retry follows a stop.
	time.Sleep(100 * time.Millisecond)
	if sp.count() != 1 {
		t.Errorf("stopped task must not respawn, got %d spawns", sp.count())
	}

	if err := m.StopTask(orc.ID, "a"); err == nil {
		t.Error("expected error stopping a non-running task")
	}
}

func TestSpawnFailureRetries(t *testing.T) {
	sp := &fakeSpawner{spawnErr: context.DeadlineExceeded, spawnErrCount: 1}
	m := newTestManager(t, sp, 3, 3)
	orc := seedPlanning(m, []models.PlanTask{{ID: "a", Title: "task"}})

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	waitFor(t, "review phase", func() bool {
		return phaseOf(m, orc.ID) == models.PhaseReview
	})

	run := runOf(m, orc.ID, "a")
	if run.Status != models.RunStatusCompleted {
		t.Errorf("expected eventual completion, got %s", run.Status)
	}
	if run.Retries != 1 {
		t.Errorf("expected 1 retry after spawn failure, got %d", run.Retries)
	}
}

func TestRefineAppendsTasksAndResumes(t *testing.T) {
	sp := &fakeSpawner{}
	m := newTestManager(t, sp, 3, 3)
	orc := seedPlanning(m, []models.PlanTask{{ID: "a", Title: "first"}})

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitFor(t, "review phase", func() bool {
		return phaseOf(m, orc.ID) == models.PhaseReview
	})

	// The stub backend is down, so refinement falls back to a single task.
	if err := m.Refine(context.Background(), orc.ID, "tighten error handling"); err != nil {
		t.Fatalf("Refine failed: %v", err)
	}

	got, _ := m.Get(orc.ID)
	if len(got.Plan) != 2 {
		t.Fatalf("expected 2 plan tasks after refine, got %d", len(got.Plan))
	}

	waitFor(t, "second review", func() bool {
		return phaseOf(m, orc.ID) == models.PhaseReview
	})

	// The completed original task is not re-run.
	if sp.count() != 2 {
		t.Errorf("expected 2 total spawns, got %d", sp.count())
	}

	if err := m.Approve(orc.ID); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
}

func TestDeleteStopsRunningWorkers(t *testing.T) {
	sp := &fakeSpawner{hold: true}
	m := newTestManager(t, sp, 3, 3)
	orc := seedPlanning(m, []models.PlanTask{{ID: "a", Title: "long"}})

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitFor(t, "spawn", func() bool { return sp.count() == 1 })

	if err := m.Delete(orc.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if !sp.spawned[0].Stopped() {
		t.Error("expected running worker to be stopped on delete")
	}
}

func TestTaskScopeReplaysOnlyThatTask(t *testing.T) {
	sp := &fakeSpawner{}
	m := newTestManager(t, sp, 3, 3)
	orc := seedPlanning(m, []models.PlanTask{
		{ID: "a", Title: "first"},
		{ID: "b", Title: "second"},
	})

	if err := m.Execute(context.Background(), orc.ID); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	waitFor(t, "review phase", func() bool {
		return phaseOf(m, orc.ID) == models.PhaseReview
	})

	// A late subscriber to one task's scope replays that task's events only.
	sub, err := m.SubscribeTask(orc.ID, "a")
	if err != nil {
		t.Fatalf("SubscribeTask failed: %v", err)
	}
	defer sub.Close()

	deadline := time.After(time.Second)
	var replayed []events.Event
	for len(replayed) < 2 {
		select {
		case e := <-sub.Events():
			replayed = append(replayed, e)
		case <-deadline:
			t.Fatalf("timed out waiting for replay, got %d events", len(replayed))
		}
	}
	for _, e := range replayed {
		if e.TaskID != "a" {
			t.Errorf("task scope replayed event for task %q: %+v", e.TaskID, e)
		}
	}

	if _, err := m.SubscribeTask(orc.ID, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown task, got %v", err)
	}
}
