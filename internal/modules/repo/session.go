package repo

import (
	"context"
	"sort"
	"sync"

	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

type SessionRepo interface {
	Create(ctx context.Context, s *model.ChatSession) error
	Get(ctx context.Context, id string) (*model.ChatSession, error)
	Update(ctx context.Context, id string, fn func(s *model.ChatSession) error) (*model.ChatSession, error)
	// Delete removes the session and returns its last state, or false if absent.
	Delete(ctx context.Context, id string) (*model.ChatSession, bool)
	List(ctx context.Context) ([]model.ChatSession, error)
}

type sessionEntry struct {
	mu      sync.Mutex
	session model.ChatSession
}

type sessionRepo struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
}

func NewSessionRepo() SessionRepo {
	return &sessionRepo{sessions: make(map[string]*sessionEntry)}
}

func (r *sessionRepo) Create(ctx context.Context, s *model.ChatSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; ok {
		return apperr.Invalid("repo.session.create", "duplicate session id "+s.ID)
	}
	r.sessions[s.ID] = &sessionEntry{session: s.Clone()}
	return nil
}

func (r *sessionRepo) entry(id string) (*sessionEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

func (r *sessionRepo) Get(ctx context.Context, id string) (*model.ChatSession, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, apperr.NotFound("repo.session.get", "session", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.session.Clone()
	return &out, nil
}

func (r *sessionRepo) Update(ctx context.Context, id string, fn func(s *model.ChatSession) error) (*model.ChatSession, error) {
	e, ok := r.entry(id)
	if !ok {
		return nil, apperr.NotFound("repo.session.update", "session", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	// an update racing with Delete must not resurrect the session
	if cur, ok := r.entry(id); !ok || cur != e {
		return nil, apperr.NotFound("repo.session.update", "session", id)
	}

	work := e.session.Clone()
	if err := fn(&work); err != nil {
		return nil, err
	}
	e.session = work
	out := work.Clone()
	return &out, nil
}

func (r *sessionRepo) Delete(ctx context.Context, id string) (*model.ChatSession, bool) {
	r.mu.Lock()
	e, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.session.Clone()
	return &out, true
}

func (r *sessionRepo) List(ctx context.Context) ([]model.ChatSession, error) {
	r.mu.RLock()
	entries := make([]*sessionEntry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]model.ChatSession, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, e.session.Clone())
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
