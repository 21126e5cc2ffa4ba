// Package orchestrator coordinates the goal-to-completion lifecycle: question
// collection, plan generation, dependency-aware task execution, and review.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ckirkland/conductor/internal/events"
	"github.com/ckirkland/conductor/internal/generate"
	"github.com/ckirkland/conductor/internal/graph"
	"github.com/ckirkland/conductor/internal/policy"
	"github.com/ckirkland/conductor/internal/store"
	"github.com/ckirkland/conductor/internal/workspace"
	"github.com/ckirkland/conductor/pkg/models"
)

// Workspaces provides isolated working directories for task runs.
// Satisfied by workspace.Manager.
type Workspaces interface {
	Acquire(taskKey string) (*workspace.Workspace, error)
	Release(taskKey string) error
	RepoPath() string
}

// Options configures a Manager. Hub, Generator, and Spawner are required;
// the rest have working defaults.
type Options struct {
	Store      *store.Store
	Hub        *events.Hub
	Generator  *generate.Service
	Spawner    Spawner
	Workspaces Workspaces
	Policy     *policy.Policy
	// DebugLog receives scheduler diagnostics. Nil disables them.
	DebugLog *DebugLogger

	// Concurrency caps simultaneously running tasks.
	Concurrency int
	// MaxRetries caps retry attempts per task.
	MaxRetries int
	// RetryBackoff is the delay before a retry attempt is rescheduled.
	RetryBackoff time.Duration
	// SpawnStagger is the delay between consecutive spawns in one batch.
	SpawnStagger time.Duration
}

// Manager owns all live orchestrations and routes operations to them.
type Manager struct {
	opts Options

	// tuning holds the scheduler knobs that can change at runtime.
	tuneMu sync.RWMutex
	tune   tuning

	mu       sync.Mutex
	sessions map[string]*session
}

type tuning struct {
	concurrency  int
	retryBackoff time.Duration
	spawnStagger time.Duration
}

// session is the runtime state for one orchestration.
type session struct {
	mu  sync.Mutex
	orc *models.Orchestration

	graph *graph.DependencyGraph
	procs map[string]WorkerHandle
	// retries carries the attempt count forward across replaced runs.
	retries map[string]int

	// planning is true while a plan generation goroutine is in flight.
	// planGen invalidates stale generations when answers are re-submitted.
	planning bool
	planGen  uint64

	// wake signals the run loop that new work may be schedulable.
	wake chan struct{}
	// completions carries finished worker notifications into the run loop.
	completions chan completion

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

type completion struct {
	taskID   string
	exitCode int
	stopped  bool
	stderr   string
}

// NewManager creates a Manager and restores persisted orchestrations from the
// store. Runs persisted as live are flagged orphaned during load and never
// resumed.
func NewManager(opts Options) (*Manager, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 3
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.Policy == nil {
		opts.Policy = policy.New()
	}
	if opts.DebugLog != nil {
		setPackageLogger(opts.DebugLog)
	}

	m := &Manager{
		opts: opts,
		tune: tuning{
			concurrency:  opts.Concurrency,
			retryBackoff: opts.RetryBackoff,
			spawnStagger: opts.SpawnStagger,
		},
		sessions: make(map[string]*session),
	}

	if opts.Store != nil {
		restored, err := opts.Store.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("restoring orchestrations: %w", err)
		}
		for _, orc := range restored {
			m.sessions[orc.ID] = newSession(orc)
			if opts.Hub != nil {
				opts.Hub.Seed(orc.ID, orc.SummaryLog)
			}
			if orc.HasOrphans() {
				log.Printf("[orchestrator] %s restored with orphaned runs", orc.ID)
			}
		}
	}

	return m, nil
}

func newSession(orc *models.Orchestration) *session {
	if orc.Answers == nil {
		orc.Answers = make(map[string]models.Answer)
	}
	if orc.SubAgents == nil {
		orc.SubAgents = make(map[string]*models.SubAgentRun)
	}
	return &session{
		orc:         orc,
		procs:       make(map[string]WorkerHandle),
		retries:     make(map[string]int),
		wake:        make(chan struct{}, 1),
		completions: make(chan completion, 16),
	}
}

// Start creates a new orchestration for a goal and kicks off clarifying
// question generation in the background.
func (m *Manager) Start(ctx context.Context, goal string) (*models.Orchestration, error) {
	if goal == "" {
		return nil, ErrEmptyGoal
	}

	now := time.Now()
	orc := &models.Orchestration{
		ID:         uuid.New().String(),
		Goal:       goal,
		Phase:      models.PhaseRequirements,
		Status:     models.StatusActive,
		Answers:    make(map[string]models.Answer),
		SubAgents:  make(map[string]*models.SubAgentRun),
		MaxRetries: m.opts.MaxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	s := newSession(orc)
	m.mu.Lock()
	m.sessions[orc.ID] = s
	m.mu.Unlock()

	s.mu.Lock()
	m.emitLocked(s, events.Event{
		Type:    events.EventPhase,
		Message: string(models.PhaseRequirements),
	})
	s.mu.Unlock()

	go func() {
		questions, fallback := m.opts.Generator.Questions(ctx, goal)

		s.mu.Lock()
		defer s.mu.Unlock()
		// A concurrent delete empties the session map; drop the result.
		if !m.has(orc.ID) {
			return
		}
		s.orc.Questions = questions
		msg := fmt.Sprintf("%d questions ready", len(questions))
		if fallback {
			msg += " (fallback)"
		}
		m.emitLocked(s, events.Event{Type: events.EventQuestions, Message: msg})
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orc.Clone(), nil
}

// Get returns a snapshot of the orchestration with the given ID. The
// snapshot is safe to read while generation goroutines and the run loop
// keep mutating the live state.
func (m *Manager) Get(id string) (*models.Orchestration, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orc.Clone(), nil
}

// List returns snapshots of all orchestrations, oldest first.
func (m *Manager) List() []*models.Orchestration {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	all := make([]*models.Orchestration, 0, len(sessions))
	for _, s := range sessions {
		s.mu.Lock()
		all = append(all, s.orc.Clone())
		s.mu.Unlock()
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}

// SubmitAnswers records answers to clarifying questions and advances the
// orchestration to planning. Plan generation runs in the background.
// Re-submission during planning overwrites prior values for the same
// question IDs and regenerates the plan from the updated answers.
func (m *Manager) SubmitAnswers(ctx context.Context, id string, answers map[string]models.Answer) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.orc.Phase {
	case models.PhaseRequirements, models.PhasePlanning:
	default:
		return fmt.Errorf("%w: answers expected in %s or %s, currently %s",
			ErrWrongPhase, models.PhaseRequirements, models.PhasePlanning, s.orc.Phase)
	}

	if s.orc.Answers == nil {
		s.orc.Answers = make(map[string]models.Answer)
	}
	for qid, a := range answers {
		s.orc.Answers[qid] = a
	}

	if s.orc.Phase != models.PhasePlanning {
		s.orc.Phase = models.PhasePlanning
		m.emitLocked(s, events.Event{
			Type:    events.EventPhase,
			Message: string(models.PhasePlanning),
		})
	}

	// Snapshot the inputs: a later re-submission mutates the live map
	// while this generation is still reading it.
	questions := append([]models.Question(nil), s.orc.Questions...)
	collected := make(map[string]models.Answer, len(s.orc.Answers))
	for qid, a := range s.orc.Answers {
		collected[qid] = a
	}

	s.planning = true
	s.planGen++
	go m.generatePlan(ctx, s, id, s.planGen, s.orc.Goal, questions, collected)

	return nil
}

// generatePlan calls the collaborator and installs the resulting plan. An
// empty result means generation can make no further progress, which is the
// terminal error condition for the orchestration.
func (m *Manager) generatePlan(ctx context.Context, s *session, id string, gen uint64, goal string, questions []models.Question, collected map[string]models.Answer) {
	plan, fallback := m.opts.Generator.Plan(ctx, goal, questions, collected)
	if fallback {
		// A project plan template beats the generic fallback.
		if tpl, ok := m.opts.Policy.PlanFor(goal); ok {
			plan = tpl
		}
	}
	for i := range plan {
		plan[i].AgentType = m.opts.Policy.AgentFor(plan[i])
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// A re-submission superseded this generation; its result wins.
	if gen != s.planGen {
		return
	}
	s.planning = false
	if !m.has(id) {
		return
	}
	// RequestMoreQuestions or Execute may have moved the phase on; a late
	// result must not clobber it.
	if s.orc.Phase != models.PhasePlanning {
		return
	}

	if len(plan) == 0 {
		s.orc.Phase = models.PhaseError
		m.emitLocked(s, events.Event{
			Type:    events.EventPhase,
			Message: string(models.PhaseError),
		})
		m.emitLocked(s, events.Event{
			Type:    events.EventError,
			Message: "plan generation produced no tasks",
		})
		return
	}

	s.orc.Plan = plan
	msg := fmt.Sprintf("plan ready with %d tasks", len(plan))
	if fallback {
		msg += " (fallback)"
	}
	m.emitLocked(s, events.Event{Type: events.EventPlan, Message: msg})
}

// RequestMoreQuestions asks the collaborator whether more information is
// needed. Fresh questions are appended to the orchestration; when the
// collaborator is satisfied, the returned reason explains why.
func (m *Manager) RequestMoreQuestions(ctx context.Context, id string) ([]models.Question, string, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, "", err
	}

	s.mu.Lock()
	switch s.orc.Phase {
	case models.PhaseRequirements:
	case models.PhasePlanning:
		if s.planning {
			s.mu.Unlock()
			return nil, "", fmt.Errorf("%w: plan generation in progress", ErrWrongPhase)
		}
	default:
		s.mu.Unlock()
		return nil, "", fmt.Errorf("%w: more questions expected in %s or %s, currently %s",
			ErrWrongPhase, models.PhaseRequirements, models.PhasePlanning, s.orc.Phase)
	}
	goal := s.orc.Goal
	existing := append([]models.Question(nil), s.orc.Questions...)
	answers := make(map[string]models.Answer, len(s.orc.Answers))
	for qid, a := range s.orc.Answers {
		answers[qid] = a
	}
	s.mu.Unlock()

	fresh, reason := m.opts.Generator.MoreQuestions(ctx, goal, existing, answers)
	if len(fresh) == 0 {
		return nil, reason, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.orc.Questions = append(s.orc.Questions, fresh...)
	// Fresh questions pull a planning orchestration back to requirements,
	// the one sanctioned backward transition.
	if s.orc.Phase == models.PhasePlanning {
		s.orc.Phase = models.PhaseRequirements
		m.emitLocked(s, events.Event{
			Type:    events.EventPhase,
			Message: string(models.PhaseRequirements),
		})
	}
	m.emitLocked(s, events.Event{
		Type:    events.EventQuestions,
		Message: fmt.Sprintf("%d additional questions", len(fresh)),
	})
	return fresh, "", nil
}

// Execute validates the plan, builds the dependency graph, and starts the
// run loop. The plan must be non-empty and acyclic.
func (m *Manager) Execute(ctx context.Context, id string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.orc.Phase {
	case models.PhasePlanning:
	case models.PhaseExecution:
		// Resuming a restored orchestration is allowed when no loop runs.
		if s.loopDone != nil {
			return ErrAlreadyExecuting
		}
	default:
		return fmt.Errorf("%w: execute expected in %s, currently %s",
			ErrWrongPhase, models.PhasePlanning, s.orc.Phase)
	}

	if len(s.orc.Plan) == 0 {
		return ErrNoPlan
	}

	g, err := graph.Build(s.orc.Plan)
	if err != nil {
		return err
	}
	s.graph = g

	// Completed runs survive restarts; orphaned and stale live runs are
	// cleared so their tasks get fresh attempts.
	for taskID, run := range s.orc.SubAgents {
		switch run.Status {
		case models.RunStatusCompleted:
			g.MarkComplete(taskID)
		case models.RunStatusFailed, models.RunStatusStopped:
			// Terminal without completion; leave as-is, dependents stay blocked.
		default:
			s.retries[taskID] = run.Retries
			delete(s.orc.SubAgents, taskID)
		}
	}

	if s.orc.Phase != models.PhaseExecution {
		s.orc.Phase = models.PhaseExecution
		m.emitLocked(s, events.Event{
			Type:    events.EventPhase,
			Message: string(models.PhaseExecution),
		})
	}

	m.startLoopLocked(s)
	return nil
}

// Refine generates follow-up tasks from review feedback, appends them to the
// plan, and returns the orchestration to execution.
func (m *Manager) Refine(ctx context.Context, id, feedback string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.orc.Phase != models.PhaseReview {
		s.mu.Unlock()
		return fmt.Errorf("%w: refine expected in %s, currently %s",
			ErrWrongPhase, models.PhaseReview, s.orc.Phase)
	}
	goal := s.orc.Goal
	plan := s.orc.Plan
	s.mu.Unlock()

	extra, fallback := m.opts.Generator.Refine(ctx, goal, feedback, plan)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing := make(map[string]bool, len(s.orc.Plan))
	for _, t := range s.orc.Plan {
		existing[t.ID] = true
	}
	for i := range extra {
		if existing[extra[i].ID] {
			extra[i].ID = extra[i].ID + "-" + uuid.New().String()[:8]
		}
		extra[i].AgentType = m.opts.Policy.AgentFor(extra[i])
		existing[extra[i].ID] = true
	}
	s.orc.Plan = append(s.orc.Plan, extra...)

	g, err := graph.Build(s.orc.Plan)
	if err != nil {
		return err
	}
	for taskID, run := range s.orc.SubAgents {
		if run.Status == models.RunStatusCompleted {
			g.MarkComplete(taskID)
		}
	}
	s.graph = g

	msg := fmt.Sprintf("plan refined with %d tasks", len(extra))
	if fallback {
		msg += " (fallback)"
	}
	m.emitLocked(s, events.Event{Type: events.EventPlan, Message: msg})

	s.orc.Phase = models.PhaseExecution
	m.emitLocked(s, events.Event{
		Type:    events.EventPhase,
		Message: string(models.PhaseExecution),
	})

	m.startLoopLocked(s)
	return nil
}

// Approve accepts the reviewed result and completes the orchestration.
func (m *Manager) Approve(id string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.orc.Phase != models.PhaseReview {
		return fmt.Errorf("%w: approve expected in %s, currently %s",
			ErrWrongPhase, models.PhaseReview, s.orc.Phase)
	}

	s.orc.Status = models.StatusCompleted
	m.emitLocked(s, events.Event{
		Type:    events.EventComplete,
		Message: "orchestration approved",
	})

	if m.opts.Store != nil {
		if err := m.opts.Store.SaveNow(s.orc); err != nil {
			log.Printf("[orchestrator] persisting approval for %s: %v", id, err)
		}
	}
	return nil
}

// StopTask terminates a running task. Stopped tasks are never retried.
func (m *Manager) StopTask(id, taskID string) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	run, ok := s.orc.SubAgents[taskID]
	if !ok || run.Status != models.RunStatusRunning {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrTaskNotRunning, taskID)
	}
	run.Status = models.RunStatusStopped
	proc := s.procs[taskID]
	s.mu.Unlock()

	if proc != nil {
		return proc.Stop()
	}
	return nil
}

// Delete stops all running workers and removes every trace of the
// orchestration: runtime state, persisted record, and event scope.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	s.mu.Lock()
	if s.loopCancel != nil {
		s.loopCancel()
	}
	procs := make([]WorkerHandle, 0, len(s.procs))
	for taskID, p := range s.procs {
		if run := s.orc.SubAgents[taskID]; run != nil && run.Status == models.RunStatusRunning {
			run.Status = models.RunStatusStopped
		}
		procs = append(procs, p)
	}
	taskIDs := make([]string, 0, len(s.orc.Plan))
	for _, t := range s.orc.Plan {
		taskIDs = append(taskIDs, t.ID)
	}
	loopDone := s.loopDone
	s.mu.Unlock()

	var g errgroup.Group
	for _, p := range procs {
		g.Go(p.Stop)
	}
	if err := g.Wait(); err != nil {
		log.Printf("[orchestrator] stopping workers for %s: %v", id, err)
	}
	if loopDone != nil {
		<-loopDone
	}

	if m.opts.Store != nil {
		if err := m.opts.Store.Delete(id); err != nil {
			return fmt.Errorf("deleting persisted state: %w", err)
		}
	}
	if m.opts.Hub != nil {
		m.opts.Hub.CloseScope(id)
		for _, taskID := range taskIDs {
			m.opts.Hub.CloseScope(events.TaskScope(id, taskID))
		}
	}
	return nil
}

// Subscribe attaches a live event subscriber to an orchestration.
func (m *Manager) Subscribe(id string) (*events.Subscription, error) {
	if _, err := m.session(id); err != nil {
		return nil, err
	}
	return m.opts.Hub.Subscribe(id), nil
}

// SubscribeTask attaches a live event subscriber to one task of an
// orchestration. Replay covers only that task's events.
func (m *Manager) SubscribeTask(id, taskID string) (*events.Subscription, error) {
	s, err := m.session(id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	known := s.orc.TaskByID(taskID) != nil
	s.mu.Unlock()
	if !known {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, taskID)
	}
	return m.opts.Hub.Subscribe(events.TaskScope(id, taskID)), nil
}

func (m *Manager) session(id string) (*session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s, nil
}

// Retune updates the scheduler knobs at runtime. Running tasks are not
// interrupted; the new limits apply from the next scheduling pass.
func (m *Manager) Retune(concurrency int, retryBackoff, spawnStagger time.Duration) {
	m.tuneMu.Lock()
	defer m.tuneMu.Unlock()
	if concurrency > 0 {
		m.tune.concurrency = concurrency
	}
	if retryBackoff > 0 {
		m.tune.retryBackoff = retryBackoff
	}
	if spawnStagger >= 0 {
		m.tune.spawnStagger = spawnStagger
	}
}

func (m *Manager) concurrency() int {
	m.tuneMu.RLock()
	defer m.tuneMu.RUnlock()
	return m.tune.concurrency
}

func (m *Manager) retryBackoff() time.Duration {
	m.tuneMu.RLock()
	defer m.tuneMu.RUnlock()
	return m.tune.retryBackoff
}

func (m *Manager) spawnStagger() time.Duration {
	m.tuneMu.RLock()
	defer m.tuneMu.RUnlock()
	return m.tune.spawnStagger
}

func (m *Manager) has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[id]
	return ok
}

// emitLocked publishes an event, mirrors it into the summary log, and
// schedules a persistence write. Caller must hold s.mu.
func (m *Manager) emitLocked(s *session, e events.Event) {
	e.ScopeID = s.orc.ID
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if m.opts.Hub != nil {
		m.opts.Hub.Publish(s.orc.ID, e)
		if e.TaskID != "" {
			m.opts.Hub.Publish(events.TaskScope(s.orc.ID, e.TaskID), e)
		}
	}
	// Progress entries are too chatty for the bounded summary log.
	if e.Type != events.EventProgress {
		s.orc.AppendSummary(e.Summary())
	}
	s.orc.UpdatedAt = e.Timestamp
	if m.opts.Store != nil {
		m.opts.Store.Save(s.orc)
	}
}
