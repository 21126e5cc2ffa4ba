package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/ckirkland/conductor/internal/config"
	"github.com/ckirkland/conductor/internal/events"
	"github.com/ckirkland/conductor/internal/generate"
	"github.com/ckirkland/conductor/internal/orchestrator"
	"github.com/ckirkland/conductor/internal/policy"
	"github.com/ckirkland/conductor/internal/store"
	"github.com/ckirkland/conductor/internal/worker"
	"github.com/ckirkland/conductor/internal/workspace"
)

// app bundles the wired components behind each CLI command.
type app struct {
	cfg      *config.Config
	manager  *orchestrator.Manager
	store    *store.Store
	hub      *events.Hub
	debugLog *orchestrator.DebugLogger
}

// newApp loads configuration and assembles the orchestration manager with
// persisted state restored.
func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	storePath := cfg.Store.Path
	if storePath == "" {
		storePath = store.DefaultPath()
	}
	st, err := store.OpenWithDebounce(storePath, cfg.Store.Debounce)
	if err != nil {
		return nil, fmt.Errorf("opening state store: %w", err)
	}

	hub := events.NewHub(cfg.Events.HeartbeatInterval)

	backend, err := newBackend(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}
	gen := generate.NewService(backend, cfg.Timeouts.Questions, cfg.Timeouts.Plan)

	debugLog := newDebugLogger()

	manager, err := orchestrator.NewManager(orchestrator.Options{
		Store:        st,
		Hub:          hub,
		Generator:    gen,
		Spawner:      orchestrator.NewProcessSpawner(worker.Config{Command: cfg.Worker.Command, Args: cfg.Worker.Args}),
		Workspaces:   newWorkspaces(cfg),
		Policy:       policy.Discover(),
		DebugLog:     debugLog,
		Concurrency:  cfg.Scheduler.Concurrency,
		MaxRetries:   cfg.Scheduler.MaxRetries,
		RetryBackoff: cfg.Scheduler.RetryBackoff,
		SpawnStagger: cfg.Scheduler.SpawnStagger,
	})
	if err != nil {
		st.Close()
		return nil, err
	}

	return &app{cfg: cfg, manager: manager, store: st, hub: hub, debugLog: debugLog}, nil
}

// close flushes pending state writes.
func (a *app) close() {
	if err := a.store.Close(); err != nil {
		log.Printf("[conductor] closing store: %v", err)
	}
	if err := a.debugLog.Close(); err != nil {
		log.Printf("[conductor] closing debug log: %v", err)
	}
}

// newDebugLogger creates the scheduler debug log under the repo's .conductor
// directory, or a no-op logger outside a repository.
func newDebugLogger() *orchestrator.DebugLogger {
	root, ok := findRepoRoot()
	if !ok {
		return orchestrator.NopLogger()
	}
	return orchestrator.NewDebugLoggerForRepo(root)
}

// newBackend selects the question/plan generation backend: the Anthropic API
// when configured, the worker subprocess otherwise.
func newBackend(cfg *config.Config) (generate.Backend, error) {
	if !cfg.Worker.UseAPI {
		return &generate.ProcessBackend{Command: cfg.Worker.Command, Args: cfg.Worker.Args}, nil
	}

	apiKey, err := config.ResolveAPIKey(cfg)
	if err != nil && !cfg.Anthropic.UseAWSBedrock {
		return nil, err
	}
	backend, err := generate.NewAPIBackend(generate.APIBackendConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("creating API backend: %w", err)
	}
	return backend, nil
}

// newWorkspaces returns a workspace manager rooted at the enclosing git
// repository, or nil when the current directory is not inside one.
func newWorkspaces(cfg *config.Config) orchestrator.Workspaces {
	root, ok := findRepoRoot()
	if !ok {
		return nil
	}
	ws, err := workspace.NewManager(cfg.Workspace.BaseDir, root)
	if err != nil {
		log.Printf("[conductor] workspace isolation unavailable: %v", err)
		return nil
	}
	return ws
}

// findRepoRoot walks up from the current directory looking for .git.
func findRepoRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// resolveID expands an orchestration ID prefix to a full ID.
func resolveID(a *app, prefix string) (string, error) {
	var matches []string
	for _, orc := range a.manager.List() {
		if orc.ID == prefix {
			return orc.ID, nil
		}
		if strings.HasPrefix(orc.ID, prefix) {
			matches = append(matches, orc.ID)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("no orchestration matches %q", prefix)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%q is ambiguous (%d matches)", prefix, len(matches))
	}
}

// shortID trims an orchestration ID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
