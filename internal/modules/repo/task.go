package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

type TaskRepo interface {
	Create(ctx context.Context, t *model.Task) error
	Get(ctx context.Context, id string) (*model.Task, error)
	// Update runs fn on the stored task while holding that task's lock. The
	// change is kept only if fn returns nil.
	Update(ctx context.Context, id string, fn func(t *model.Task) error) (*model.Task, error)
	List(ctx context.Context) ([]model.Task, error)
}

type taskEntry struct {
	mu   sync.Mutex
	task model.Task
}

type taskRepo struct {
	mu    sync.RWMutex
	tasks map[string]*taskEntry
}

func NewTaskRepo() TaskRepo {
	return &taskRepo{tasks: make(map[string]*taskEntry)}
}

func (r *taskRepo) Create(ctx context.Context, t *model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[t.ID]; ok {
		return apperr.Invalid("repo.task.create", "duplicate task id "+t.ID)
	}
	r.tasks[t.ID] = &taskEntry{task: t.Clone()}
	return nil
}

func (r *taskRepo) entry(id string) (*taskEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.tasks[id]
	return e, ok
}

func (r *taskRepo) Get(ctx context.Context, id string) (*model.Task, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, apperr.NotFound("repo.task.get", "task", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.task.Clone()
	return &out, nil
}

func (r *taskRepo) Update(ctx context.Context, id string, fn func(t *model.Task) error) (*model.Task, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, apperr.NotFound("repo.task.update", "task", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	work := e.task.Clone()
	if err := fn(&work); err != nil {
		return nil, err
	}
	e.task = work
	out := work.Clone()
	return &out, nil
}

func (r *taskRepo) List(ctx context.Context) ([]model.Task, error) {
	r.mu.RLock()
	entries := make([]*taskEntry, 0, len(r.tasks))
	for _, e := range r.tasks {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]model.Task, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.task.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}
