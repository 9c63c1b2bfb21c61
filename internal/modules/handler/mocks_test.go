package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"

	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/service"
)

func setupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

type MockTaskService struct {
	mock.Mock
}

func (m *MockTaskService) Create(ctx context.Context, description string) (*model.TaskSnapshot, error) {
	args := m.Called(ctx, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TaskSnapshot), args.Error(1)
}

func (m *MockTaskService) Execute(ctx context.Context, taskID string) (*model.ExecutionOutcome, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExecutionOutcome), args.Error(1)
}

func (m *MockTaskService) ExecuteWith(ctx context.Context, taskID string, ex service.TaskExecutor) (*model.ExecutionOutcome, error) {
	args := m.Called(ctx, taskID, ex)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ExecutionOutcome), args.Error(1)
}

func (m *MockTaskService) Status(ctx context.Context, taskID string) (*model.TaskSnapshot, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TaskSnapshot), args.Error(1)
}

func (m *MockTaskService) List(ctx context.Context) ([]model.TaskSnapshot, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.TaskSnapshot), args.Error(1)
}

func (m *MockTaskService) Analyze(ctx context.Context, description string) *model.TaskPlan {
	args := m.Called(ctx, description)
	return args.Get(0).(*model.TaskPlan)
}

func (m *MockTaskService) Remember(ctx context.Context, key string, value any) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *MockTaskService) Recall(ctx context.Context, key string) (any, bool, error) {
	args := m.Called(ctx, key)
	return args.Get(0), args.Bool(1), args.Error(2)
}

type MockSessionService struct {
	mock.Mock
}

func (m *MockSessionService) Create(ctx context.Context, mode model.ChatMode, userID string) (*model.ChatSession, error) {
	args := m.Called(ctx, mode, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatSession), args.Error(1)
}

func (m *MockSessionService) Get(ctx context.Context, id string) (*model.ChatSession, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatSession), args.Error(1)
}

func (m *MockSessionService) Begin(ctx context.Context, id, message string, override model.ChatMode) (*model.ChatSession, error) {
	args := m.Called(ctx, id, message, override)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatSession), args.Error(1)
}

func (m *MockSessionService) AppendContext(ctx context.Context, id string, entry model.ContextEntry) error {
	return m.Called(ctx, id, entry).Error(0)
}

func (m *MockSessionService) Touch(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockSessionService) BindWorkspace(ctx context.Context, id, workspaceID string) error {
	return m.Called(ctx, id, workspaceID).Error(0)
}

func (m *MockSessionService) AddTaskRef(ctx context.Context, id string, ref model.TaskRef) error {
	return m.Called(ctx, id, ref).Error(0)
}

func (m *MockSessionService) SetMode(ctx context.Context, id string, mode model.ChatMode) (model.ChatMode, error) {
	args := m.Called(ctx, id, mode)
	return args.Get(0).(model.ChatMode), args.Error(1)
}

func (m *MockSessionService) List(ctx context.Context) ([]model.SessionInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.SessionInfo), args.Error(1)
}

func (m *MockSessionService) Destroy(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

type MockModeService struct {
	mock.Mock
}

func (m *MockModeService) Process(ctx context.Context, sessionID, message string, override model.ChatMode) (*model.ModeResponse, error) {
	args := m.Called(ctx, sessionID, message, override)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ModeResponse), args.Error(1)
}

func (m *MockModeService) SwitchMode(ctx context.Context, sessionID string, mode model.ChatMode) (*service.ModeSwitch, error) {
	args := m.Called(ctx, sessionID, mode)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ModeSwitch), args.Error(1)
}

type MockChatService struct {
	mock.Mock
}

func (m *MockChatService) Register(ctx context.Context, username, displayName string, role model.Role) (*model.ChatUser, error) {
	args := m.Called(ctx, username, displayName, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatUser), args.Error(1)
}

func (m *MockChatService) SetRole(ctx context.Context, userID string, role model.Role) (*model.ChatUser, error) {
	args := m.Called(ctx, userID, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatUser), args.Error(1)
}

func (m *MockChatService) Connect(ctx context.Context, userID, handle string) (*service.ConnectResult, error) {
	args := m.Called(ctx, userID, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ConnectResult), args.Error(1)
}

func (m *MockChatService) Disconnect(ctx context.Context, handle string) {
	m.Called(ctx, handle)
}

func (m *MockChatService) Send(ctx context.Context, in service.SendInput) (*model.ChatMessage, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatMessage), args.Error(1)
}

func (m *MockChatService) Join(ctx context.Context, userID, channelID, handle string) (*service.JoinResult, error) {
	args := m.Called(ctx, userID, channelID, handle)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.JoinResult), args.Error(1)
}

func (m *MockChatService) Leave(ctx context.Context, userID, channelID, handle string) error {
	return m.Called(ctx, userID, channelID, handle).Error(0)
}

func (m *MockChatService) React(ctx context.Context, userID, messageID, emoji string) (*model.ChatMessage, error) {
	args := m.Called(ctx, userID, messageID, emoji)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ChatMessage), args.Error(1)
}

func (m *MockChatService) Messages(ctx context.Context, channelID string, limit int, before time.Time) ([]model.ChatMessage, error) {
	args := m.Called(ctx, channelID, limit, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ChatMessage), args.Error(1)
}

func (m *MockChatService) Channels(ctx context.Context, userID string) ([]model.Channel, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Channel), args.Error(1)
}

func (m *MockChatService) OnlineUsers(ctx context.Context) []model.ChatUser {
	return m.Called(ctx).Get(0).([]model.ChatUser)
}

func (m *MockChatService) Stats(ctx context.Context) model.ChatStats {
	return m.Called(ctx).Get(0).(model.ChatStats)
}
