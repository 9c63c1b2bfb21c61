package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/repo"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

type SessionService interface {
	Create(ctx context.Context, mode model.ChatMode, userID string) (*model.ChatSession, error)
	Get(ctx context.Context, id string) (*model.ChatSession, error)
	// Begin records an incoming user message: it bumps the counters, applies a
	// non-empty mode override and appends the user entry.
	Begin(ctx context.Context, id, message string, override model.ChatMode) (*model.ChatSession, error)
	AppendContext(ctx context.Context, id string, entry model.ContextEntry) error
	// Touch bumps last_activity without recording a message.
	Touch(ctx context.Context, id string) error
	BindWorkspace(ctx context.Context, id, workspaceID string) error
	AddTaskRef(ctx context.Context, id string, ref model.TaskRef) error
	// SetMode stores mode and returns the previous one.
	SetMode(ctx context.Context, id string, mode model.ChatMode) (model.ChatMode, error)
	List(ctx context.Context) ([]model.SessionInfo, error)
	// Destroy removes the session and releases its workspace. It reports
	// false when the session did not exist.
	Destroy(ctx context.Context, id string) (bool, error)
}

type sessionService struct {
	r          repo.SessionRepo
	workspaces WorkspaceProvider
	log        *zap.Logger
}

// NewSessionService builds the registry. workspaces may be nil when no
// sandbox is configured.
func NewSessionService(r repo.SessionRepo, workspaces WorkspaceProvider, log *zap.Logger) SessionService {
	return &sessionService{r: r, workspaces: workspaces, log: log}
}

func (s *sessionService) Create(ctx context.Context, mode model.ChatMode, userID string) (*model.ChatSession, error) {
	if mode == "" {
		mode = model.ModeAdaptive
	}
	if !mode.Valid() {
		return nil, apperr.Invalid("service.session.create", "unknown mode "+string(mode))
	}
	now := time.Now()
	ss := &model.ChatSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		Mode:         mode,
		CreatedAt:    now,
		LastActivity: now,
		Context:      []model.ContextEntry{},
		TaskHistory:  []model.TaskRef{},
		Preferences:  model.DefaultPreferences(),
	}
	if err := s.r.Create(ctx, ss); err != nil {
		return nil, err
	}
	s.log.Sugar().Infow("chat session created", "session_id", ss.ID, "mode", mode)
	return ss, nil
}

func (s *sessionService) Get(ctx context.Context, id string) (*model.ChatSession, error) {
	return s.r.Get(ctx, id)
}

func (s *sessionService) Begin(ctx context.Context, id, message string, override model.ChatMode) (*model.ChatSession, error) {
	if override != "" && !override.Valid() {
		return nil, apperr.Invalid("service.session.begin", "unknown mode "+string(override))
	}
	return s.r.Update(ctx, id, func(ss *model.ChatSession) error {
		now := time.Now()
		ss.MessageCount++
		ss.LastActivity = now
		if override != "" {
			ss.Mode = override
		}
		ss.Context = append(ss.Context, model.ContextEntry{
			Role:      "user",
			Content:   message,
			Timestamp: now,
			Mode:      ss.Mode,
		})
		return nil
	})
}

func (s *sessionService) AppendContext(ctx context.Context, id string, entry model.ContextEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	_, err := s.r.Update(ctx, id, func(ss *model.ChatSession) error {
		ss.Context = append(ss.Context, entry)
		return nil
	})
	return err
}

func (s *sessionService) Touch(ctx context.Context, id string) error {
	_, err := s.r.Update(ctx, id, func(ss *model.ChatSession) error {
		ss.LastActivity = time.Now()
		return nil
	})
	return err
}

func (s *sessionService) BindWorkspace(ctx context.Context, id, workspaceID string) error {
	_, err := s.r.Update(ctx, id, func(ss *model.ChatSession) error {
		ss.WorkspaceID = workspaceID
		return nil
	})
	return err
}

func (s *sessionService) AddTaskRef(ctx context.Context, id string, ref model.TaskRef) error {
	_, err := s.r.Update(ctx, id, func(ss *model.ChatSession) error {
		ss.TaskHistory = append(ss.TaskHistory, ref)
		return nil
	})
	return err
}

func (s *sessionService) SetMode(ctx context.Context, id string, mode model.ChatMode) (model.ChatMode, error) {
	if !mode.Valid() {
		return "", apperr.Invalid("service.session.set_mode", "unknown mode "+string(mode))
	}
	var old model.ChatMode
	_, err := s.r.Update(ctx, id, func(ss *model.ChatSession) error {
		old = ss.Mode
		ss.Mode = mode
		return nil
	})
	return old, err
}

func (s *sessionService) List(ctx context.Context) ([]model.SessionInfo, error) {
	sessions, err := s.r.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.SessionInfo, 0, len(sessions))
	for _, ss := range sessions {
		out = append(out, ss.Info())
	}
	return out, nil
}

func (s *sessionService) Destroy(ctx context.Context, id string) (bool, error) {
	ss, ok := s.r.Delete(ctx, id)
	if !ok {
		return false, nil
	}
	if ss.WorkspaceID != "" && s.workspaces != nil {
		if err := s.workspaces.Release(ctx, ss.WorkspaceID); err != nil {
			s.log.Sugar().Warnw("release workspace", "session_id", id, "workspace_id", ss.WorkspaceID, "err", err)
			return true, err
		}
	}
	s.log.Sugar().Infow("chat session destroyed", "session_id", id)
	return true, nil
}
