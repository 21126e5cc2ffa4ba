// Package workspace manages isolated working directories for sub-agent runs.
// Each run gets its own git worktree and branch so workers cannot trample
// each other's changes.
package workspace

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ckirkland/conductor/internal/git"
)

// Workspace describes an isolated execution environment for one task.
type Workspace struct {
	// Path is the absolute path to the worktree directory.
	Path string
	// BranchRef is the branch associated with this workspace.
	BranchRef string
	// Created is false when an existing workspace was reused.
	Created bool
}

// Manager handles workspace acquisition and release for one repository.
type Manager struct {
	baseDir  string
	repoPath string
	git      git.Runner
	mu       sync.Mutex
}

// NewManager creates a workspace manager rooted at repoPath.
// baseDir is where worktrees are created; it defaults to
// ~/.cache/conductor/workspaces.
func NewManager(baseDir, repoPath string) (*Manager, error) {
	if baseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("get home directory: %w", err)
		}
		baseDir = filepath.Join(home, ".cache", "conductor", "workspaces")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace base directory: %w", err)
	}

	return &Manager{
		baseDir:  baseDir,
		repoPath: repoPath,
		git:      git.NewRunner(repoPath),
	}, nil
}

// NewManagerWithRunner creates a Manager with a custom git runner (for testing).
func NewManagerWithRunner(baseDir, repoPath string, runner git.Runner) (*Manager, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create workspace base directory: %w", err)
	}

	return &Manager{
		baseDir:  baseDir,
		repoPath: repoPath,
		git:      runner,
	}, nil
}

// BranchName returns the deterministic branch name for a task key.
func BranchName(taskKey string) string {
	return "conductor/" + sanitize(taskKey)
}

// Acquire creates (or reuses) the workspace for the given task key.
// A prior acquisition left on disk is reused rather than recreated, and a
// branch that already exists is attached to instead of treated as fatal.
func (m *Manager) Acquire(taskKey string) (*Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	branch := BranchName(taskKey)
	path := filepath.Join(m.baseDir, sanitize(taskKey))

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return &Workspace{Path: path, BranchRef: branch, Created: false}, nil
	}

	if err := m.git.WorktreeAddNewBranch(path, branch); err != nil {
		// The branch may survive a previous release; reattach to it.
		exists, checkErr := m.git.BranchExists(branch)
		if checkErr == nil && exists {
			if err := m.git.WorktreeAddExistingBranch(path, branch); err != nil {
				return nil, fmt.Errorf("attach workspace to branch %s: %w", branch, err)
			}
			return &Workspace{Path: path, BranchRef: branch, Created: true}, nil
		}
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	return &Workspace{Path: path, BranchRef: branch, Created: true}, nil
}

// Release removes the workspace directory for the given task key. The branch
// is kept so its work can still be merged or discarded explicitly.
func (m *Manager) Release(taskKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path := filepath.Join(m.baseDir, sanitize(taskKey))
	if err := m.git.WorktreeRemove(path); err != nil {
		// The worktree may already be gone; prune and clear the directory.
		log.Printf("[workspace] remove worktree %s: %v", path, err)
		if err := os.RemoveAll(path); err != nil {
			return fmt.Errorf("remove workspace directory: %w", err)
		}
	}
	if err := m.git.WorktreePrune(); err != nil {
		log.Printf("[workspace] prune worktrees: %v", err)
	}
	return nil
}

// Diff returns the diff of the task's branch against the given base ref.
func (m *Manager) Diff(taskKey, base string) (string, error) {
	return m.git.DiffBetween(base, BranchName(taskKey))
}

// Merge merges the task's branch into the current branch of the repository.
func (m *Manager) Merge(taskKey string) error {
	branch := BranchName(taskKey)
	if err := m.git.Merge(branch); err != nil {
		if abortErr := m.git.MergeAbort(); abortErr != nil {
			log.Printf("[workspace] merge abort after failed merge of %s: %v", branch, abortErr)
		}
		return fmt.Errorf("merge branch %s: %w", branch, err)
	}
	return nil
}

// Discard removes the task's workspace and deletes its branch.
func (m *Manager) Discard(taskKey string) error {
	if err := m.Release(taskKey); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	branch := BranchName(taskKey)
	exists, err := m.git.BranchExists(branch)
	if err != nil {
		return err
	}
	if exists {
		if err := m.git.DeleteBranch(branch); err != nil {
			return fmt.Errorf("delete branch %s: %w", branch, err)
		}
	}
	return nil
}

// RepoPath returns the path to the shared root repository. Callers fall back
// to it when workspace acquisition fails.
func (m *Manager) RepoPath() string {
	return m.repoPath
}

// BaseDir returns the base directory where workspaces are created.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// sanitize converts a task key into a path- and ref-safe token.
func sanitize(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
