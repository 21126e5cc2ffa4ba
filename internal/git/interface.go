// Package git provides an interface for git operations.
package git

// BranchOperations defines the interface for git branch operations.
type BranchOperations interface {
	// CurrentBranch returns the name of the current branch.
	CurrentBranch() (string, error)
	// CreateBranch creates a new branch with the given name.
	CreateBranch(name string) error
	// BranchExists returns true if the branch exists.
	BranchExists(name string) (bool, error)
	// DeleteBranch deletes the specified branch (force delete).
	DeleteBranch(name string) error
}

// DiffOperations defines the interface for git diff and status operations.
type DiffOperations interface {
	// DiffBetween returns the diff between two refs.
	DiffBetween(ref1, ref2 string) (string, error)
	// ChangedFilesBetween returns files changed between two refs.
	ChangedFilesBetween(ref1, ref2 string) ([]string, error)
}

// MergeOperations defines the interface for git merge operations.
type MergeOperations interface {
	// Merge merges the specified branch into the current branch.
	Merge(branch string) error
	// MergeAbort aborts an in-progress merge.
	MergeAbort() error
}

// WorktreeOperations defines the interface for git worktree operations.
type WorktreeOperations interface {
	// WorktreeAddNewBranch creates a new worktree with a new branch.
	WorktreeAddNewBranch(path, branch string) error
	// WorktreeAddExistingBranch creates a worktree for an existing branch.
	WorktreeAddExistingBranch(path, branch string) error
	// WorktreeRemove removes the worktree at the given path, discarding
	// uncommitted changes.
	WorktreeRemove(path string) error
	// WorktreePrune removes stale worktree entries.
	WorktreePrune() error
}

// Runner is the full set of git operations conductor needs.
type Runner interface {
	BranchOperations
	DiffOperations
	MergeOperations
	WorktreeOperations
}

// Compile-time verification that ExecRunner implements Runner.
var _ Runner = (*ExecRunner)(nil)
