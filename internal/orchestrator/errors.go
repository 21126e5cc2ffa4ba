package orchestrator

import "errors"

var (
	// ErrNotFound indicates no orchestration exists with the given ID.
	ErrNotFound = errors.New("orchestration not found")
	// ErrEmptyGoal indicates a goal was not provided.
	ErrEmptyGoal = errors.New("goal must not be empty")
	// ErrWrongPhase indicates an operation was attempted in the wrong phase.
	ErrWrongPhase = errors.New("operation not valid in current phase")
	// ErrNoPlan indicates execution was requested without a plan.
	ErrNoPlan = errors.New("no plan to execute")
	// ErrAlreadyExecuting indicates the run loop is already active.
	ErrAlreadyExecuting = errors.New("orchestration is already executing")
	// ErrTaskNotRunning indicates a stop was requested for a task with no
	// live worker.
	ErrTaskNotRunning = errors.New("task is not running")
)
