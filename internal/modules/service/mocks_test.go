package service

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/valis-ai/valis/internal/infra/httpclient"
	"github.com/valis-ai/valis/internal/modules/model"
)

// MockCompleter is a mock implementation of Completer
type MockCompleter struct {
	mock.Mock
}

func (m *MockCompleter) Complete(ctx context.Context, messages []httpclient.Message, p httpclient.CompletionParams) (string, error) {
	args := m.Called(ctx, messages, p)
	return args.String(0), args.Error(1)
}

type MockImageGenerator struct {
	mock.Mock
}

func (m *MockImageGenerator) GenerateImage(ctx context.Context, prompt string) (string, error) {
	args := m.Called(ctx, prompt)
	return args.String(0), args.Error(1)
}

type MockClassifier struct {
	mock.Mock
}

func (m *MockClassifier) Classify(ctx context.Context, description string) (*model.TaskPlan, error) {
	args := m.Called(ctx, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TaskPlan), args.Error(1)
}

type MockModeClassifier struct {
	mock.Mock
}

func (m *MockModeClassifier) ClassifyMode(ctx context.Context, message string, recent []model.ContextEntry) (*model.AdaptiveAnalysis, error) {
	args := m.Called(ctx, message, recent)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AdaptiveAnalysis), args.Error(1)
}

type MockWorkspaceProvider struct {
	mock.Mock
}

func (m *MockWorkspaceProvider) Create(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockWorkspaceProvider) Release(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockCodeRunner struct {
	mock.Mock
}

func (m *MockCodeRunner) Run(ctx context.Context, workspaceID, code string) (model.RunResult, error) {
	args := m.Called(ctx, workspaceID, code)
	return args.Get(0).(model.RunResult), args.Error(1)
}

func (m *MockCodeRunner) Install(ctx context.Context, workspaceID, pkg string) (model.RunResult, error) {
	args := m.Called(ctx, workspaceID, pkg)
	return args.Get(0).(model.RunResult), args.Error(1)
}

type MockDeployer struct {
	mock.Mock
}

func (m *MockDeployer) Deploy(ctx context.Context, taskID string, results map[string]any) (string, error) {
	args := m.Called(ctx, taskID, results)
	return args.String(0), args.Error(1)
}

// recordingSink keeps every delivery for assertions.
type recordingSink struct {
	mu         sync.Mutex
	deliveries []delivery
}

type delivery struct {
	handles []string
	evt     model.Event
}

func (s *recordingSink) Deliver(_ context.Context, handles []string, evt model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries = append(s.deliveries, delivery{handles: append([]string(nil), handles...), evt: evt})
	return nil
}

func (s *recordingSink) ofType(t model.EventType) []delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []delivery
	for _, d := range s.deliveries {
		if d.evt.Type == t {
			out = append(out, d)
		}
	}
	return out
}
