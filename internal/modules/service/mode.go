package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/infra/httpclient"
	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

const (
	chatSystemPrompt = "You are Valis AI, a helpful and knowledgeable assistant. Provide clear, informative, and engaging responses. " +
		"You can help with questions, explanations, and guidance on various topics."
	chatFallbackReply = "I apologize, but I encountered an error while processing your message. Please try again."
)

type suggestionRule struct {
	keywords    []string
	suggestions []string
}

var suggestionRules = []suggestionRule{
	{
		keywords:    []string{"website", "web", "site"},
		suggestions: []string{"Would you like me to create a website for you?", "I can help you build a landing page", "Need help with web development?"},
	},
	{
		keywords:    []string{"app", "application", "mobile"},
		suggestions: []string{"I can help you build an application", "Would you like to create a mobile app?", "Need assistance with app development?"},
	},
	{
		keywords:    []string{"code", "program", "script"},
		suggestions: []string{"I can write and execute code for you", "Would you like me to create a script?", "Need help with programming?"},
	},
}

type ModeConfig struct {
	HistoryWindow  int
	Threshold      float64
	MaxSuggestions int
	MaxTokens      int
}

// ModeSwitch is the result of an explicit mode change.
type ModeSwitch struct {
	SessionID string         `json:"session_id"`
	OldMode   model.ChatMode `json:"old_mode"`
	NewMode   model.ChatMode `json:"new_mode"`
	Message   string         `json:"message"`
}

type ModeService interface {
	Process(ctx context.Context, sessionID, message string, override model.ChatMode) (*model.ModeResponse, error)
	SwitchMode(ctx context.Context, sessionID string, mode model.ChatMode) (*ModeSwitch, error)
}

type modeService struct {
	sessions   SessionService
	tasks      TaskService
	llm        Completer
	classifier ModeClassifier
	agent      *CodeAgent
	workspaces WorkspaceProvider
	cfg        ModeConfig
	locks      *keyLock
	log        *zap.Logger
}

// NewModeService wires the router. classifier may be nil, in which case the
// keyword classifier is used directly; agent and workspaces may be nil when
// no sandbox is available and agent requests then fail gracefully.
func NewModeService(
	sessions SessionService,
	tasks TaskService,
	llm Completer,
	classifier ModeClassifier,
	agent *CodeAgent,
	workspaces WorkspaceProvider,
	cfg ModeConfig,
	log *zap.Logger,
) ModeService {
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = 0.7
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = 3
	}
	return &modeService{
		sessions:   sessions,
		tasks:      tasks,
		llm:        llm,
		classifier: classifier,
		agent:      agent,
		workspaces: workspaces,
		cfg:        cfg,
		locks:      newKeyLock(),
		log:        log,
	}
}

func (s *modeService) Process(ctx context.Context, sessionID, message string, override model.ChatMode) (*model.ModeResponse, error) {
	if strings.TrimSpace(message) == "" {
		return nil, apperr.Invalid("service.mode.process", "message is required")
	}
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	ss, err := s.sessions.Begin(ctx, sessionID, message, override)
	if err != nil {
		return nil, err
	}
	// the entry Begin just appended is the last one
	prior := ss.Context[:len(ss.Context)-1]

	var resp *model.ModeResponse
	switch ss.Mode {
	case model.ModeAgent:
		resp, err = s.agentReply(ctx, ss, message)
	case model.ModeAdaptive:
		resp, err = s.adaptiveReply(ctx, ss, prior, message)
	case model.ModeChat, model.ModeCustom:
		resp, err = s.chatReply(ctx, ss, prior, message)
	default:
		resp, err = s.chatReply(ctx, ss, prior, message)
	}
	if err != nil {
		return nil, err
	}
	resp.SessionID = ss.ID
	resp.Timestamp = time.Now()
	return resp, nil
}

func (s *modeService) adaptiveReply(ctx context.Context, ss *model.ChatSession, prior []model.ContextEntry, message string) (*model.ModeResponse, error) {
	recent := prior[max(0, len(prior)-3):]
	analysis := s.classify(ctx, message, recent)

	var (
		resp *model.ModeResponse
		err  error
	)
	if analysis.Confidence > s.cfg.Threshold {
		if _, err := s.sessions.SetMode(ctx, ss.ID, analysis.RecommendedMode); err != nil {
			return nil, err
		}
		analysis.ModeSwitched = true
		if analysis.RecommendedMode == model.ModeAgent {
			resp, err = s.agentReply(ctx, ss, message)
		} else {
			resp, err = s.chatReply(ctx, ss, prior, message)
		}
	} else {
		analysis.ClarificationNeeded = true
		resp, err = s.chatReply(ctx, ss, prior, message)
	}
	if err != nil {
		return nil, err
	}
	resp.AdaptiveAnalysis = analysis
	return resp, nil
}

func (s *modeService) classify(ctx context.Context, message string, recent []model.ContextEntry) *model.AdaptiveAnalysis {
	if s.classifier != nil {
		a, err := s.classifier.ClassifyMode(ctx, message, recent)
		if err == nil {
			return a
		}
		s.log.Sugar().Debugw("mode classifier failed, using keywords", "err", err)
	}
	a, _ := KeywordModeClassifier{}.ClassifyMode(ctx, message, recent)
	return a
}

func (s *modeService) chatReply(ctx context.Context, ss *model.ChatSession, prior []model.ContextEntry, message string) (*model.ModeResponse, error) {
	window := prior[max(0, len(prior)-s.cfg.HistoryWindow):]
	msgs := make([]httpclient.Message, 0, len(window)+2)
	msgs = append(msgs, httpclient.Message{Role: "system", Content: chatSystemPrompt})
	for _, e := range window {
		msgs = append(msgs, httpclient.Message{Role: e.Role, Content: e.Content})
	}
	msgs = append(msgs, httpclient.Message{Role: "user", Content: message})

	reply, err := s.llm.Complete(ctx, msgs, httpclient.CompletionParams{MaxTokens: s.cfg.MaxTokens, Temperature: 0.7})
	if err != nil {
		s.log.Sugar().Warnw("chat completion failed", "session_id", ss.ID, "err", err)
		reply = chatFallbackReply
	}

	if err := s.sessions.AppendContext(ctx, ss.ID, model.ContextEntry{Role: "assistant", Content: reply, Mode: model.ModeChat}); err != nil {
		return nil, err
	}
	return &model.ModeResponse{
		Mode:           model.ModeChat,
		Message:        reply,
		Conversational: true,
		Suggestions:    s.suggest(message),
	}, nil
}

func (s *modeService) suggest(message string) []string {
	lower := strings.ToLower(message)
	var out []string
	for _, rule := range suggestionRules {
		if countKeywords(lower, rule.keywords) > 0 {
			out = append(out, rule.suggestions...)
		}
	}
	if len(out) > s.cfg.MaxSuggestions {
		out = out[:s.cfg.MaxSuggestions]
	}
	return out
}

func (s *modeService) agentReply(ctx context.Context, ss *model.ChatSession, message string) (*model.ModeResponse, error) {
	resp := &model.ModeResponse{
		Mode:         model.ModeAgent,
		ShowCode:     ss.Preferences.ShowCode,
		AutoExecuted: ss.Preferences.AutoExecute,
	}

	wsID, err := s.ensureWorkspace(ctx, ss)
	if err != nil {
		s.log.Sugar().Warnw("workspace unavailable", "session_id", ss.ID, "err", err)
		resp.Message = chatFallbackReply
		resp.AutoExecuted = false
		return resp, s.sessions.AppendContext(ctx, ss.ID, model.ContextEntry{Role: "assistant", Content: resp.Message, Mode: model.ModeAgent})
	}
	resp.WorkspaceID = wsID

	task, err := s.tasks.Create(ctx, message)
	if err != nil {
		return nil, err
	}
	resp.TaskID = task.TaskID

	var result *model.ExecutionResult
	_, err = s.tasks.ExecuteWith(ctx, task.TaskID, ExecutorFunc(func(ctx context.Context, t model.Task, report Reporter) error {
		r, err := s.agent.Run(ctx, wsID, message)
		result = r
		if err != nil {
			return err
		}
		results := map[string]any{"execution_result": r}
		if !r.FinalSuccess {
			if err := report(TaskUpdate{Results: results}); err != nil {
				return err
			}
			return errors.New(r.FinalError)
		}
		results["status"] = "Code executed successfully"
		return report(TaskUpdate{Status: model.TaskCompleted, Progress: 100, CurrentStep: len(t.Steps), Results: results})
	}))
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &model.ExecutionResult{WorkspaceID: wsID, TaskDescription: message, FinalError: "execution did not start"}
	}

	if result.FinalSuccess {
		resp.Message = "✅ I've successfully completed your request! " + result.FinalOutput
	} else {
		resp.Message = "I encountered some challenges while working on your request. " + result.FinalError
	}
	resp.ExecutionResult = result

	now := time.Now()
	if err := s.sessions.AppendContext(ctx, ss.ID, model.ContextEntry{
		Role:      "assistant",
		Content:   resp.Message,
		Timestamp: now,
		Mode:      model.ModeAgent,
		TaskID:    task.TaskID,
		Execution: result,
	}); err != nil {
		return nil, err
	}
	if err := s.sessions.AddTaskRef(ctx, ss.ID, model.TaskRef{
		TaskID:    task.TaskID,
		Message:   message,
		Success:   result.FinalSuccess,
		Timestamp: now,
	}); err != nil {
		return nil, err
	}
	return resp, nil
}

func (s *modeService) ensureWorkspace(ctx context.Context, ss *model.ChatSession) (string, error) {
	if ss.WorkspaceID != "" {
		return ss.WorkspaceID, nil
	}
	if s.workspaces == nil || s.agent == nil {
		return "", apperr.Collaborator("service.mode.workspace", fmt.Errorf("sandbox is not configured"))
	}
	id, err := s.workspaces.Create(ctx)
	if err != nil {
		return "", err
	}
	if err := s.sessions.BindWorkspace(ctx, ss.ID, id); err != nil {
		_ = s.workspaces.Release(ctx, id)
		return "", err
	}
	ss.WorkspaceID = id
	return id, nil
}

func (s *modeService) SwitchMode(ctx context.Context, sessionID string, mode model.ChatMode) (*ModeSwitch, error) {
	unlock := s.locks.Lock(sessionID)
	defer unlock()

	old, err := s.sessions.SetMode(ctx, sessionID, mode)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Touch(ctx, sessionID); err != nil {
		return nil, err
	}
	return &ModeSwitch{
		SessionID: sessionID,
		OldMode:   old,
		NewMode:   mode,
		Message:   fmt.Sprintf("Switched from %s mode to %s mode", old, mode),
	}, nil
}
