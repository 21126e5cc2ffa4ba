package graph

import (
	"errors"
	"testing"

	"github.com/ckirkland/conductor/pkg/models"
)

func task(id string, deps ...string) models.PlanTask {
	return models.PlanTask{ID: id, Title: id, DependsOn: deps}
}

func TestBuildLinearChain(t *testing.T) {
	g, err := Build([]models.PlanTask{task("a"), task("b", "a"), task("c", "b")})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if g.Size() != 3 {
		t.Errorf("expected 3 tasks, got %d", g.Size())
	}

	ready := g.Ready()
	if len(ready) != 1 || ready[0].ID != "a" {
		t.Fatalf("expected only a ready, got %v", ready)
	}

	g.MarkComplete("a")
	ready = g.Ready()
	if len(ready) != 1 || ready[0].ID != "b" {
		t.Fatalf("expected only b ready after a, got %v", ready)
	}
}

func TestBuildDetectsCycle(t *testing.T) {
	_, err := Build([]models.PlanTask{task("a", "b"), task("b", "a")})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestBuildDetectsSelfCycle(t *testing.T) {
	_, err := Build([]models.PlanTask{task("a", "a")})
	if !errors.Is(err, ErrCycleDetected) {
		t.Errorf("expected ErrCycleDetected, got %v", err)
	}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	_, err := Build([]models.PlanTask{task("a", "ghost")})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
}

func TestBuildRejectsDuplicateID(t *testing.T) {
	_, err := Build([]models.PlanTask{task("a"), task("a")})
	if err == nil {
		t.Fatal("expected error for duplicate task id")
	}
}

func TestReadyPreservesPlanOrder(t *testing.T) {
	g, err := Build([]models.PlanTask{task("z"), task("m"), task("a")})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	ready := g.Ready()
	if len(ready) != 3 {
		t.Fatalf("expected 3 ready, got %d", len(ready))
	}
	for i, want := range []string{"z", "m", "a"} {
		if ready[i].ID != want {
			t.Errorf("ready[%d] = %s, want %s", i, ready[i].ID, want)
		}
	}
}

func TestDiamondDependency(t *testing.T) {
	g, err := Build([]models.PlanTask{
		task("root"),
		task("left", "root"),
		task("right", "root"),
		task("join", "left", "right"),
	})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	g.MarkComplete("root")
	ready := g.Ready()
	if len(ready) != 2 {
		t.Fatalf("expected left and right ready, got %v", ready)
	}

	g.MarkComplete("left")
	for _, r := range g.Ready() {
		if r.ID == "join" {
			t.Error("join ready before right completed")
		}
	}

	g.MarkComplete("right")
	ready = g.Ready()
	if len(ready) != 1 || ready[0].ID != "join" {
		t.Fatalf("expected join ready, got %v", ready)
	}

	g.MarkComplete("join")
	if !g.AllComplete() {
		t.Error("expected graph complete")
	}
}

func TestDependents(t *testing.T) {
	g, err := Build([]models.PlanTask{task("a"), task("b", "a"), task("c", "a"), task("d", "b")})
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	deps := g.Dependents("a")
	if len(deps) != 2 || deps[0] != "b" || deps[1] != "c" {
		t.Errorf("unexpected dependents of a: %v", deps)
	}
	if deps := g.Dependents("d"); len(deps) != 0 {
		t.Errorf("expected no dependents of d, got %v", deps)
	}
}

func TestEmptyPlan(t *testing.T) {
	g, err := Build(nil)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !g.AllComplete() {
		t.Error("empty graph should be complete")
	}
	if len(g.Ready()) != 0 {
		t.Error("empty graph should have no ready tasks")
	}
}
