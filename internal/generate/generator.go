// Package generate talks to the text-generation collaborator that produces
// clarifying questions and task plans. The collaborator is unreliable by
// contract: every call runs under a bounded timeout and every failure is
// recovered with a deterministic fallback so the state machine never stalls.
package generate

import (
	"context"
	"fmt"
	"log"
	"os/exec"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ckirkland/conductor/pkg/models"
)

// Backend produces a free-form text completion for a prompt.
type Backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Service generates questions and plans with fallback recovery.
type Service struct {
	backend         Backend
	questionTimeout time.Duration
	planTimeout     time.Duration
}

// NewService creates a Service. Zero timeouts default to 30s for questions
// and 60s for plans.
func NewService(backend Backend, questionTimeout, planTimeout time.Duration) *Service {
	if questionTimeout <= 0 {
		questionTimeout = 30 * time.Second
	}
	if planTimeout <= 0 {
		planTimeout = 60 * time.Second
	}
	return &Service{
		backend:         backend,
		questionTimeout: questionTimeout,
		planTimeout:     planTimeout,
	}
}

// wireQuestion is the JSON shape the collaborator returns for a question.
type wireQuestion struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Kind    string   `json:"kind"`
	Options []string `json:"options,omitempty"`
}

// wireTask is the JSON shape the collaborator returns for a plan task.
type wireTask struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	AgentType   string   `json:"agent_type,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Priority    int      `json:"priority,omitempty"`
}

// sufficiency is the marker object returned instead of new questions when the
// collaborator already has enough information.
type sufficiency struct {
	Sufficient bool   `json:"sufficient"`
	Reason     string `json:"reason,omitempty"`
}

// Questions generates clarifying questions for a goal. The second return
// value is true when the deterministic fallback was substituted.
func (s *Service) Questions(ctx context.Context, goal string) ([]models.Question, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.questionTimeout)
	defer cancel()

	prompt := fmt.Sprintf(questionsPrompt, goal)
	response, err := s.backend.Complete(ctx, prompt)
	if err != nil {
		log.Printf("[generate] question generation failed, using fallback: %v", err)
		return FallbackQuestions(), true
	}

	var wire []wireQuestion
	if err := decodeInto(response, &wire); err != nil {
		log.Printf("[generate] question response unusable, using fallback: %v", err)
		return FallbackQuestions(), true
	}

	questions := toQuestions(wire)
	if len(questions) == 0 {
		return FallbackQuestions(), true
	}
	return questions, false
}

// MoreQuestions asks whether more information is needed for a goal. New
// questions are deduplicated against the existing set. On failure the
// collaborator is treated as satisfied to keep the phase unchanged.
func (s *Service) MoreQuestions(ctx context.Context, goal string, existing []models.Question, answers map[string]models.Answer) ([]models.Question, string) {
	ctx, cancel := context.WithTimeout(ctx, s.questionTimeout)
	defer cancel()

	prompt := fmt.Sprintf(moreQuestionsPrompt, goal, renderAnswers(existing, answers))
	response, err := s.backend.Complete(ctx, prompt)
	if err != nil {
		log.Printf("[generate] more-questions call failed, treating as sufficient: %v", err)
		return nil, "generation backend unavailable"
	}

	var marker sufficiency
	if err := decodeInto(response, &marker); err == nil && marker.Sufficient {
		return nil, marker.Reason
	}

	var wire []wireQuestion
	if err := decodeInto(response, &wire); err != nil {
		log.Printf("[generate] more-questions response unusable, treating as sufficient: %v", err)
		return nil, "generation response unusable"
	}

	seen := make(map[string]bool, len(existing))
	for _, q := range existing {
		seen[q.ID] = true
	}

	var fresh []models.Question
	for _, q := range toQuestions(wire) {
		if seen[q.ID] {
			continue
		}
		seen[q.ID] = true
		fresh = append(fresh, q)
	}

	if len(fresh) == 0 {
		return nil, "no new questions needed"
	}
	return fresh, ""
}

// Plan generates a task plan for a goal and the collected answers. The second
// return value is true when the deterministic fallback was substituted.
func (s *Service) Plan(ctx context.Context, goal string, questions []models.Question, answers map[string]models.Answer) ([]models.PlanTask, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.planTimeout)
	defer cancel()

	prompt := fmt.Sprintf(planPrompt, goal, renderAnswers(questions, answers))
	response, err := s.backend.Complete(ctx, prompt)
	if err != nil {
		log.Printf("[generate] plan generation failed, using fallback: %v", err)
		return FallbackPlan(goal), true
	}

	tasks, err := s.decodePlan(response)
	if err != nil {
		log.Printf("[generate] plan response unusable, using fallback: %v", err)
		return FallbackPlan(goal), true
	}
	return tasks, false
}

// Refine generates additional tasks from review feedback, appended to the
// existing plan by the caller. Fallback is a single task carrying the
// feedback verbatim.
func (s *Service) Refine(ctx context.Context, goal, feedback string, plan []models.PlanTask) ([]models.PlanTask, bool) {
	ctx, cancel := context.WithTimeout(ctx, s.planTimeout)
	defer cancel()

	var titles []string
	for _, t := range plan {
		titles = append(titles, t.Title)
	}
	prompt := fmt.Sprintf(refinePrompt, goal, strings.Join(titles, "\n- "), feedback)

	response, err := s.backend.Complete(ctx, prompt)
	if err == nil {
		if tasks, decodeErr := s.decodePlan(response); decodeErr == nil {
			return tasks, false
		}
	}

	log.Printf("[generate] refinement generation failed, using fallback")
	return []models.PlanTask{{
		ID:          "refine-" + uuid.New().String()[:8],
		Title:       "Address review feedback",
		Description: feedback,
		AgentType:   "coder",
	}}, true
}

// decodePlan parses a collaborator response into plan tasks, assigning IDs
// where the collaborator omitted them.
func (s *Service) decodePlan(response string) ([]models.PlanTask, error) {
	var wire []wireTask
	if err := decodeInto(response, &wire); err != nil {
		return nil, err
	}
	if len(wire) == 0 {
		return nil, fmt.Errorf("empty plan")
	}

	tasks := make([]models.PlanTask, 0, len(wire))
	for i, w := range wire {
		id := w.ID
		if id == "" {
			id = fmt.Sprintf("task-%d", i+1)
		}
		tasks = append(tasks, models.PlanTask{
			ID:          id,
			Title:       w.Title,
			Description: w.Description,
			AgentType:   w.AgentType,
			DependsOn:   w.DependsOn,
			Priority:    w.Priority,
		})
	}
	return tasks, nil
}

func toQuestions(wire []wireQuestion) []models.Question {
	questions := make([]models.Question, 0, len(wire))
	for _, w := range wire {
		if w.Text == "" {
			continue
		}
		id := w.ID
		if id == "" {
			id = "q-" + uuid.New().String()[:8]
		}
		kind := models.QuestionKind(w.Kind)
		if !kind.Valid() {
			kind = models.QuestionText
		}
		questions = append(questions, models.Question{
			ID:      id,
			Text:    w.Text,
			Kind:    kind,
			Options: w.Options,
		})
	}
	return questions
}

func renderAnswers(questions []models.Question, answers map[string]models.Answer) string {
	var b strings.Builder
	for _, q := range questions {
		a, ok := answers[q.ID]
		if !ok {
			continue
		}
		value := a.Text
		if len(a.Values) > 0 {
			value = strings.Join(a.Values, ", ")
		}
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", q.Text, value)
	}
	if b.Len() == 0 {
		return "(no answers provided)"
	}
	return b.String()
}

// ProcessBackend invokes the collaborator as a subprocess and returns its
// combined standard output. Non-zero exit is an error; the service layer
// recovers it with a fallback.
type ProcessBackend struct {
	// Command is the collaborator executable.
	Command string
	// Args are extra arguments placed before the prompt.
	Args []string
}

// Complete runs the collaborator with the prompt and returns its stdout.
func (b *ProcessBackend) Complete(ctx context.Context, prompt string) (string, error) {
	args := append([]string{}, b.Args...)
	args = append(args, "-p", prompt)

	cmd := exec.CommandContext(ctx, b.Command, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("run collaborator: %w", err)
	}
	return string(out), nil
}
