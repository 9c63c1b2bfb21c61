package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/valis-ai/valis/internal/infra/httpclient"
	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/repo"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

type modeFixture struct {
	svc        ModeService
	sessions   SessionService
	tasks      TaskService
	llm        *MockCompleter
	classifier *MockModeClassifier
	workspaces *MockWorkspaceProvider
	runner     *MockCodeRunner
	taskClass  *MockClassifier
}

func newModeFixture(t *testing.T) *modeFixture {
	t.Helper()
	log := zaptest.NewLogger(t)
	f := &modeFixture{
		llm:        &MockCompleter{},
		classifier: &MockModeClassifier{},
		workspaces: &MockWorkspaceProvider{},
		runner:     &MockCodeRunner{},
		taskClass:  &MockClassifier{},
	}
	mem, err := repo.NewLRUMemory(8)
	require.NoError(t, err)
	f.sessions = NewSessionService(repo.NewSessionRepo(), f.workspaces, log)
	f.tasks = NewTaskService(repo.NewTaskRepo(), mem, f.taskClass, NewExecutors(f.llm, nil, nil, 100), log)
	agent := NewCodeAgent(f.llm, f.runner, 3, log)
	f.svc = NewModeService(f.sessions, f.tasks, f.llm, f.classifier, agent, f.workspaces, ModeConfig{}, log)
	return f
}

func (f *modeFixture) session(t *testing.T, mode model.ChatMode) string {
	ss, err := f.sessions.Create(context.Background(), mode, "")
	require.NoError(t, err)
	return ss.ID
}

func TestModeService_ChatUsesHistoryWindow(t *testing.T) {
	f := newModeFixture(t)
	ctx := context.Background()
	id := f.session(t, model.ModeChat)

	for i := 0; i < 6; i++ {
		f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("ok", nil).Once()
		_, err := f.svc.Process(ctx, id, "hi", "")
		require.NoError(t, err)
	}

	var sent []httpclient.Message
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { sent = args.Get(1).([]httpclient.Message) }).
		Return("Sure, websites are fun", nil).Once()

	resp, err := f.svc.Process(ctx, id, "Can you make a website?", "")
	require.NoError(t, err)
	assert.Equal(t, model.ModeChat, resp.Mode)
	assert.True(t, resp.Conversational)
	assert.Equal(t, "Sure, websites are fun", resp.Message)
	assert.Len(t, resp.Suggestions, 3)
	assert.Equal(t, "Would you like me to create a website for you?", resp.Suggestions[0])

	// system + 10 prior entries + the new message
	require.Len(t, sent, 12)
	assert.Equal(t, "system", sent[0].Role)
	assert.Equal(t, "Can you make a website?", sent[11].Content)

	ss, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, ss.MessageCount)
	assert.Len(t, ss.Context, 14)
}

func TestModeService_ChatFallbackReply(t *testing.T) {
	f := newModeFixture(t)
	id := f.session(t, model.ModeCustom)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("", apperr.Collaborator("llm", errors.New("down")))

	resp, err := f.svc.Process(context.Background(), id, "hello", "")
	require.NoError(t, err)
	assert.Equal(t, chatFallbackReply, resp.Message)
}

func TestModeService_UnknownSession(t *testing.T) {
	f := newModeFixture(t)
	_, err := f.svc.Process(context.Background(), "missing", "hello", "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestModeService_AdaptiveLowConfidenceStaysInChat(t *testing.T) {
	f := newModeFixture(t)
	ctx := context.Background()
	id := f.session(t, model.ModeAdaptive)
	f.classifier.On("ClassifyMode", mock.Anything, "hmm", mock.Anything).Return(nil, errors.New("bad json"))
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("Could you clarify?", nil)

	resp, err := f.svc.Process(ctx, id, "hmm", "")
	require.NoError(t, err)
	require.NotNil(t, resp.AdaptiveAnalysis)
	assert.True(t, resp.AdaptiveAnalysis.ClarificationNeeded)
	assert.False(t, resp.AdaptiveAnalysis.ModeSwitched)
	assert.Equal(t, "Conversational inquiry", resp.AdaptiveAnalysis.DetectedIntent)

	ss, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ModeAdaptive, ss.Mode)
}

func TestModeService_AdaptiveThresholdIsExclusive(t *testing.T) {
	f := newModeFixture(t)
	ctx := context.Background()
	id := f.session(t, model.ModeAdaptive)
	f.classifier.On("ClassifyMode", mock.Anything, "build me a website", mock.Anything).Return(nil, errors.New("bad json"))
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("What kind of website?", nil)

	resp, err := f.svc.Process(ctx, id, "build me a website", "")
	require.NoError(t, err)
	assert.Equal(t, model.ModeChat, resp.Mode)
	assert.Equal(t, "What kind of website?", resp.Message)
	require.NotNil(t, resp.AdaptiveAnalysis)
	assert.Equal(t, model.ModeAgent, resp.AdaptiveAnalysis.RecommendedMode)
	assert.InDelta(t, 0.7, resp.AdaptiveAnalysis.Confidence, 1e-9)
	assert.True(t, resp.AdaptiveAnalysis.ClarificationNeeded)
	assert.False(t, resp.AdaptiveAnalysis.ModeSwitched)

	ss, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ModeAdaptive, ss.Mode)
	f.workspaces.AssertNotCalled(t, "Create", mock.Anything)
}

func TestModeService_AdaptiveSwitchesToAgent(t *testing.T) {
	f := newModeFixture(t)
	ctx := context.Background()
	id := f.session(t, model.ModeAdaptive)

	f.classifier.On("ClassifyMode", mock.Anything, mock.Anything, mock.Anything).Return(&model.AdaptiveAnalysis{
		DetectedIntent: "build", RecommendedMode: model.ModeAgent, Confidence: 0.9,
	}, nil)
	f.workspaces.On("Create", mock.Anything).Return("ws-1", nil).Once()
	f.taskClass.On("Classify", mock.Anything, mock.Anything).Return(plan(model.TaskAutomation, "Write", "Run"), nil)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("print('done')", nil)
	f.runner.On("Run", mock.Anything, "ws-1", "print('done')").Return(model.RunResult{Stdout: "done"}, nil)

	resp, err := f.svc.Process(ctx, id, "write a script that prints done", "")
	require.NoError(t, err)
	assert.Equal(t, model.ModeAgent, resp.Mode)
	assert.Equal(t, "✅ I've successfully completed your request! done", resp.Message)
	assert.True(t, resp.AdaptiveAnalysis.ModeSwitched)
	assert.Equal(t, "ws-1", resp.WorkspaceID)
	require.NotNil(t, resp.ExecutionResult)
	assert.True(t, resp.ExecutionResult.FinalSuccess)

	task, err := f.tasks.Status(ctx, resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)

	ss, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ModeAgent, ss.Mode)
	assert.Equal(t, "ws-1", ss.WorkspaceID)
	require.Len(t, ss.TaskHistory, 1)
	assert.True(t, ss.TaskHistory[0].Success)
}

func TestModeService_AgentFailureTemplate(t *testing.T) {
	f := newModeFixture(t)
	ctx := context.Background()
	id := f.session(t, model.ModeAgent)

	f.workspaces.On("Create", mock.Anything).Return("ws-9", nil)
	f.taskClass.On("Classify", mock.Anything, mock.Anything).Return(plan(model.TaskAutomation, "Run"), nil)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("raise SystemExit(1)", nil)
	f.runner.On("Run", mock.Anything, "ws-9", mock.Anything).Return(model.RunResult{Stderr: "boom", ExitCode: 1}, nil)

	resp, err := f.svc.Process(ctx, id, "run it", "")
	require.NoError(t, err)
	assert.Equal(t, "I encountered some challenges while working on your request. boom", resp.Message)

	task, err := f.tasks.Status(ctx, resp.TaskID)
	require.NoError(t, err)
	assert.Equal(t, model.TaskError, task.Status)
	assert.Equal(t, "boom", task.Results[model.ResultErrorKey])
}

func TestModeService_OverrideIsStored(t *testing.T) {
	f := newModeFixture(t)
	ctx := context.Background()
	id := f.session(t, model.ModeAgent)
	f.llm.On("Complete", mock.Anything, mock.Anything, mock.Anything).Return("hey", nil)

	resp, err := f.svc.Process(ctx, id, "hi", model.ModeChat)
	require.NoError(t, err)
	assert.Equal(t, model.ModeChat, resp.Mode)

	ss, err := f.sessions.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.ModeChat, ss.Mode)
}

func TestModeService_SwitchMode(t *testing.T) {
	f := newModeFixture(t)
	ctx := context.Background()
	id := f.session(t, model.ModeChat)

	sw, err := f.svc.SwitchMode(ctx, id, model.ModeAgent)
	require.NoError(t, err)
	assert.Equal(t, "Switched from chat mode to agent mode", sw.Message)

	_, err = f.svc.SwitchMode(ctx, id, "nope")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
	_, err = f.svc.SwitchMode(ctx, "missing", model.ModeChat)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
