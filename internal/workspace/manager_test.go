package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeRunner records git calls and simulates branch/worktree state.
type fakeRunner struct {
	branches   map[string]bool
	worktrees  map[string]string // path -> branch
	addCalls   int
	failAdd    bool
	mergeCalls []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		branches:  make(map[string]bool),
		worktrees: make(map[string]string),
	}
}

func (f *fakeRunner) CurrentBranch() (string, error) { return "main", nil }
func (f *fakeRunner) CreateBranch(name string) error {
	f.branches[name] = true
	return nil
}
func (f *fakeRunner) BranchExists(name string) (bool, error) { return f.branches[name], nil }
func (f *fakeRunner) DeleteBranch(name string) error {
	delete(f.branches, name)
	return nil
}
func (f *fakeRunner) DiffBetween(ref1, ref2 string) (string, error) {
	return "diff " + ref1 + "..." + ref2, nil
}
func (f *fakeRunner) ChangedFilesBetween(ref1, ref2 string) ([]string, error) { return nil, nil }
func (f *fakeRunner) Merge(branch string) error {
	f.mergeCalls = append(f.mergeCalls, branch)
	return nil
}
func (f *fakeRunner) MergeAbort() error { return nil }
func (f *fakeRunner) WorktreeAddNewBranch(path, branch string) error {
	f.addCalls++
	if f.failAdd {
		return os.ErrPermission
	}
	if f.branches[branch] {
		return os.ErrExist
	}
	f.branches[branch] = true
	f.worktrees[path] = branch
	if err := os.MkdirAll(path, 0755); err != nil {
		return err
	}
	return nil
}
func (f *fakeRunner) WorktreeAddExistingBranch(path, branch string) error {
	f.worktrees[path] = branch
	return os.MkdirAll(path, 0755)
}
func (f *fakeRunner) WorktreeRemove(path string) error {
	delete(f.worktrees, path)
	return os.RemoveAll(path)
}
func (f *fakeRunner) WorktreePrune() error { return nil }

func newTestManager(t *testing.T, runner *fakeRunner) *Manager {
	t.Helper()
	mgr, err := NewManagerWithRunner(t.TempDir(), "/repo", runner)
	if err != nil {
		t.Fatalf("create manager: %v", err)
	}
	return mgr
}

func TestAcquireCreatesWorkspace(t *testing.T) {
	runner := newFakeRunner()
	mgr := newTestManager(t, runner)

	ws, err := mgr.Acquire("orch1-taskA")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if !ws.Created {
		t.Error("expected Created=true for first acquisition")
	}
	if ws.BranchRef != "conductor/orch1-taskA" {
		t.Errorf("unexpected branch ref %q", ws.BranchRef)
	}
	if _, err := os.Stat(ws.Path); err != nil {
		t.Errorf("expected workspace directory to exist: %v", err)
	}
}

func TestAcquireReusesExistingDirectory(t *testing.T) {
	runner := newFakeRunner()
	mgr := newTestManager(t, runner)

	first, err := mgr.Acquire("task1")
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	second, err := mgr.Acquire("task1")
	if err != nil {
		t.Fatalf("second acquire: %v", err)
	}

	if second.Created {
		t.Error("expected Created=false for reused workspace")
	}
	if second.Path != first.Path {
		t.Errorf("expected same path, got %q and %q", first.Path, second.Path)
	}
	if runner.addCalls != 1 {
		t.Errorf("expected 1 worktree add, got %d", runner.addCalls)
	}
}

func TestAcquireToleratesExistingBranch(t *testing.T) {
	runner := newFakeRunner()
	runner.branches["conductor/task2"] = true
	mgr := newTestManager(t, runner)

	ws, err := mgr.Acquire("task2")
	if err != nil {
		t.Fatalf("acquire with existing branch: %v", err)
	}
	if !ws.Created {
		t.Error("expected Created=true when reattaching to existing branch")
	}
}

func TestReleaseKeepsBranch(t *testing.T) {
	runner := newFakeRunner()
	mgr := newTestManager(t, runner)

	ws, err := mgr.Acquire("task3")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := mgr.Release("task3"); err != nil {
		t.Fatalf("release: %v", err)
	}

	if _, err := os.Stat(ws.Path); !os.IsNotExist(err) {
		t.Error("expected workspace directory removed")
	}
	if !runner.branches["conductor/task3"] {
		t.Error("expected branch kept after release")
	}
}

func TestDiscardDeletesBranch(t *testing.T) {
	runner := newFakeRunner()
	mgr := newTestManager(t, runner)

	if _, err := mgr.Acquire("task4"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if err := mgr.Discard("task4"); err != nil {
		t.Fatalf("discard: %v", err)
	}
	if runner.branches["conductor/task4"] {
		t.Error("expected branch deleted after discard")
	}
}

func TestSanitizeTaskKey(t *testing.T) {
	ws := BranchName("a b/c:d")
	if ws != "conductor/a-b-c-d" {
		t.Errorf("unexpected sanitized branch %q", ws)
	}
}

func TestReleaseFallsBackToRemoveAll(t *testing.T) {
	runner := newFakeRunner()
	mgr := newTestManager(t, runner)

	// Directory exists but git does not know the worktree.
	path := filepath.Join(mgr.BaseDir(), "stray")
	if err := os.MkdirAll(path, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	if err := mgr.Release("stray"); err != nil {
		t.Fatalf("release stray: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("expected stray directory removed")
	}
}
