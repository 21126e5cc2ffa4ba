package orchestrator

import (
	"context"

	"github.com/ckirkland/conductor/internal/worker"
)

// WorkerHandle is the orchestrator's view of a live worker process.
// Satisfied by worker.Process.
type WorkerHandle interface {
	Entries() <-chan worker.Entry
	Wait() int
	Stop() error
	Stopped() bool
	StderrTail() string
}

// Spawner launches worker processes for task payloads.
type Spawner interface {
	Spawn(ctx context.Context, payload, dir string) (WorkerHandle, error)
}

// ProcessSpawner spawns real worker subprocesses with a fixed command.
type ProcessSpawner struct {
	cfg worker.Config
}

// NewProcessSpawner creates a spawner running the given worker command.
func NewProcessSpawner(cfg worker.Config) *ProcessSpawner {
	return &ProcessSpawner{cfg: cfg}
}

// Spawn starts a worker process in the given directory.
func (s *ProcessSpawner) Spawn(ctx context.Context, payload, dir string) (WorkerHandle, error) {
	return worker.Start(ctx, s.cfg, payload, dir)
}
