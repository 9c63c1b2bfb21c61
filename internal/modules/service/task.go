package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/repo"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

type TaskService interface {
	// Create classifies description and registers a task in planning state.
	Create(ctx context.Context, description string) (*model.TaskSnapshot, error)
	Execute(ctx context.Context, taskID string) (*model.ExecutionOutcome, error)
	// ExecuteWith runs the task through ex instead of the executor registered
	// for its type.
	ExecuteWith(ctx context.Context, taskID string, ex TaskExecutor) (*model.ExecutionOutcome, error)
	Status(ctx context.Context, taskID string) (*model.TaskSnapshot, error)
	List(ctx context.Context) ([]model.TaskSnapshot, error)
	Analyze(ctx context.Context, description string) *model.TaskPlan
	Remember(ctx context.Context, key string, value any) error
	Recall(ctx context.Context, key string) (any, bool, error)
}

type taskService struct {
	r          repo.TaskRepo
	memory     repo.MemoryRepo
	classifier Classifier
	executors  *Executors
	log        *zap.Logger

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewTaskService(r repo.TaskRepo, memory repo.MemoryRepo, classifier Classifier, executors *Executors, log *zap.Logger) TaskService {
	return &taskService{
		r:          r,
		memory:     memory,
		classifier: classifier,
		executors:  executors,
		log:        log,
		inflight:   make(map[string]struct{}),
	}
}

func (s *taskService) Analyze(ctx context.Context, description string) *model.TaskPlan {
	plan, err := s.classifier.Classify(ctx, description)
	if err != nil {
		s.log.Sugar().Warnw("classification failed, using fallback plan", "err", err)
		return FallbackPlan(description)
	}
	return plan
}

func (s *taskService) Create(ctx context.Context, description string) (*model.TaskSnapshot, error) {
	if strings.TrimSpace(description) == "" {
		return nil, apperr.Invalid("service.task.create", "message is required")
	}
	plan := s.Analyze(ctx, description)

	now := time.Now()
	t := &model.Task{
		ID:          uuid.NewString(),
		Type:        plan.TaskType,
		Description: plan.Description,
		Status:      model.TaskPlanning,
		Steps:       append([]string(nil), plan.Steps...),
		Results: map[string]any{
			"analysis":   plan,
			"user_input": description,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.r.Create(ctx, t); err != nil {
		return nil, err
	}
	s.log.Sugar().Infow("task created", "task_id", t.ID, "type", t.Type, "steps", len(t.Steps))
	snap := t.Snapshot()
	return &snap, nil
}

func (s *taskService) Execute(ctx context.Context, taskID string) (*model.ExecutionOutcome, error) {
	return s.run(ctx, taskID, nil)
}

func (s *taskService) ExecuteWith(ctx context.Context, taskID string, ex TaskExecutor) (*model.ExecutionOutcome, error) {
	return s.run(ctx, taskID, ex)
}

func (s *taskService) run(ctx context.Context, taskID string, ex TaskExecutor) (*model.ExecutionOutcome, error) {
	const op = "service.task.execute"
	t, err := s.r.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if t.Status.IsTerminal() {
		return outcomeOf(t), nil
	}

	if !s.claim(taskID) {
		return nil, apperr.Wrap(op, fmt.Errorf("task %s: %w", taskID, apperr.ErrAlreadyRunning))
	}
	defer s.release(taskID)

	// another run may have finished between the read above and the claim
	var finished bool
	t, err = s.r.Update(ctx, taskID, func(t *model.Task) error {
		if t.Status.IsTerminal() {
			finished = true
			return nil
		}
		return applyUpdate(t, TaskUpdate{Status: model.TaskExecuting})
	})
	if err != nil {
		return nil, err
	}
	if finished {
		return outcomeOf(t), nil
	}
	if ex == nil {
		ex = s.executors.For(t.Type)
	}

	// a caller that goes away must not strand the task; the collaborators
	// carry their own timeouts
	ctx = context.WithoutCancel(ctx)

	report := func(u TaskUpdate) error {
		_, err := s.r.Update(ctx, taskID, func(t *model.Task) error { return applyUpdate(t, u) })
		return err
	}
	runErr := ex.Execute(ctx, *t, report)

	t, err = s.r.Update(ctx, taskID, func(t *model.Task) error {
		if t.Status.IsTerminal() {
			return nil
		}
		if runErr != nil {
			return applyUpdate(t, TaskUpdate{
				Status:  model.TaskError,
				Results: map[string]any{model.ResultErrorKey: runErr.Error()},
			})
		}
		return applyUpdate(t, TaskUpdate{Status: model.TaskCompleted, Progress: 100, CurrentStep: len(t.Steps)})
	})
	if err != nil {
		return nil, err
	}

	if runErr != nil {
		s.log.Sugar().Warnw("task failed", "task_id", taskID, "type", t.Type, "err", runErr)
	} else {
		s.log.Sugar().Infow("task completed", "task_id", taskID, "type", t.Type)
	}
	return outcomeOf(t), nil
}

func (s *taskService) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inflight[id]; busy {
		return false
	}
	s.inflight[id] = struct{}{}
	return true
}

func (s *taskService) release(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

var errBadTransition = errors.New("invalid status transition")

// applyUpdate validates and merges u into t.
func applyUpdate(t *model.Task, u TaskUpdate) error {
	if u.Status != "" && u.Status != t.Status {
		if !t.Status.CanTransition(u.Status) {
			return apperr.Wrap("service.task.update", fmt.Errorf("%w: %s -> %s", errBadTransition, t.Status, u.Status))
		}
		t.Status = u.Status
	}
	for k, v := range u.Results {
		if t.Results == nil {
			t.Results = make(map[string]any)
		}
		t.Results[k] = v
	}
	if t.Status != model.TaskError {
		t.Progress = max(t.Progress, min(max(u.Progress, 0), 100))
		t.CurrentStep = max(t.CurrentStep, min(max(u.CurrentStep, 0), len(t.Steps)))
	}
	t.UpdatedAt = time.Now()
	return nil
}

func outcomeOf(t *model.Task) *model.ExecutionOutcome {
	c := t.Clone()
	out := &model.ExecutionOutcome{
		Success:  c.Status == model.TaskCompleted,
		TaskID:   c.ID,
		Status:   c.Status,
		Progress: c.Progress,
		Results:  c.Results,
	}
	if msg, ok := c.Results[model.ResultErrorKey].(string); ok && c.Status == model.TaskError {
		out.Error = msg
	}
	return out
}

func (s *taskService) Status(ctx context.Context, taskID string) (*model.TaskSnapshot, error) {
	t, err := s.r.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	snap := t.Snapshot()
	return &snap, nil
}

func (s *taskService) List(ctx context.Context) ([]model.TaskSnapshot, error) {
	tasks, err := s.r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.TaskSnapshot, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Snapshot())
	}
	return out, nil
}

func (s *taskService) Remember(ctx context.Context, key string, value any) error {
	if strings.TrimSpace(key) == "" {
		return apperr.Invalid("service.memory.set", "key is required")
	}
	return s.memory.Set(ctx, key, value)
}

func (s *taskService) Recall(ctx context.Context, key string) (any, bool, error) {
	return s.memory.Get(ctx, key)
}
