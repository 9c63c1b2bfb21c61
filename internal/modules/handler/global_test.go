package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/valis-ai/valis/internal/infra/stream"
	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/service"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

func globalRouter(t *testing.T, svc *MockChatService) *gin.Engine {
	r := setupRouter()
	h := NewGlobalChatHandler(svc, stream.NewHub(zaptest.NewLogger(t)), zaptest.NewLogger(t))
	g := r.Group("/chat/global")
	g.POST("/register", h.Register)
	g.GET("/channels", h.Channels)
	g.GET("/messages/:channel_id", h.Messages)
	g.POST("/send", h.Send)
	g.POST("/join", h.Join)
	g.POST("/leave", h.Leave)
	g.POST("/reaction", h.React)
	g.GET("/online", h.Online)
	g.GET("/stats", h.Stats)
	g.PUT("/users/:user_id/role", h.SetRole)
	g.GET("/stream", h.Stream)
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGlobalChatHandler_Register(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setup          func(*MockChatService)
		expectedStatus int
	}{
		{
			name: "registered",
			body: `{"username":"alice","display_name":"Alice"}`,
			setup: func(svc *MockChatService) {
				svc.On("Register", mock.Anything, "alice", "Alice", model.Role("")).
					Return(&model.ChatUser{ID: "u-1", Username: "alice", Role: model.RoleUser}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "unknown role",
			body: `{"username":"bob","role":"Emperor"}`,
			setup: func(svc *MockChatService) {
				svc.On("Register", mock.Anything, "bob", "", model.Role("emperor")).
					Return(nil, apperr.Invalid("service.chat.register", "unknown role emperor"))
			},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing username",
			body:           `{"display_name":"Nobody"}`,
			setup:          func(svc *MockChatService) {},
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockChatService{}
			tt.setup(svc)

			w := postJSON(globalRouter(t, svc), "/chat/global/register", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestGlobalChatHandler_Send(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
	}{
		{name: "sent", expectedStatus: http.StatusCreated},
		{name: "read-only channel", err: apperr.Denied("service.chat.send", "cannot post"), expectedStatus: http.StatusForbidden},
		{name: "rate limited", err: apperr.Wrap("service.chat.send", apperr.ErrRateLimited), expectedStatus: http.StatusTooManyRequests},
		{name: "unknown channel", err: apperr.NotFound("service.chat.send", "channel", "nope"), expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockChatService{}
			in := service.SendInput{UserID: "u-1", ChannelID: "general", Content: "hello", Kind: model.MessageText}
			if tt.err != nil {
				svc.On("Send", mock.Anything, in).Return(nil, tt.err)
			} else {
				svc.On("Send", mock.Anything, in).Return(&model.ChatMessage{ID: "m-1", Content: "hello"}, nil)
			}

			w := postJSON(globalRouter(t, svc), "/chat/global/send",
				`{"user_id":"u-1","channel_id":"general","content":"hello","message_type":"text"}`)

			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestGlobalChatHandler_Messages(t *testing.T) {
	before := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := &MockChatService{}
	svc.On("Messages", mock.Anything, "general", 50, time.Time{}).Return([]model.ChatMessage{{ID: "m-1"}}, nil)
	svc.On("Messages", mock.Anything, "general", 5, mock.MatchedBy(func(t time.Time) bool { return t.Equal(before) })).
		Return([]model.ChatMessage{}, nil)
	r := globalRouter(t, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/global/messages/general", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"m-1"`)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/global/messages/general?limit=5&before=2026-01-02T03:04:05Z", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/global/messages/general?limit=5000", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestGlobalChatHandler_Membership(t *testing.T) {
	svc := &MockChatService{}
	svc.On("Join", mock.Anything, "u-1", "support", "h-1").Return(&service.JoinResult{
		Channel: model.Channel{ID: "support", Name: "Support"},
	}, nil)
	svc.On("Join", mock.Anything, "u-1", "vip", "h-1").Return(nil, apperr.Denied("service.chat.join", "role too low"))
	svc.On("Leave", mock.Anything, "u-1", "support", "h-1").Return(nil)
	r := globalRouter(t, svc)

	w := postJSON(r, "/chat/global/join", `{"user_id":"u-1","channel_id":"support","handle":"h-1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"Support"`)

	w = postJSON(r, "/chat/global/join", `{"user_id":"u-1","channel_id":"vip","handle":"h-1"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = postJSON(r, "/chat/global/leave", `{"user_id":"u-1","channel_id":"support","handle":"h-1"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestGlobalChatHandler_ReadOnlyViews(t *testing.T) {
	svc := &MockChatService{}
	svc.On("Channels", mock.Anything, "").Return([]model.Channel{{ID: "general"}}, nil)
	svc.On("OnlineUsers", mock.Anything).Return([]model.ChatUser{{ID: "u-1"}})
	svc.On("Stats", mock.Anything).Return(model.ChatStats{TotalUsers: 3, OnlineUsers: 1})
	r := globalRouter(t, svc)

	for _, path := range []string{"/chat/global/channels", "/chat/global/online", "/chat/global/stats"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	svc.AssertExpectations(t)
}

func TestGlobalChatHandler_ReactAndRole(t *testing.T) {
	svc := &MockChatService{}
	svc.On("React", mock.Anything, "u-1", "m-1", "🔥").Return(&model.ChatMessage{ID: "m-1"}, nil)
	svc.On("SetRole", mock.Anything, "u-2", model.RoleModerator).Return(&model.ChatUser{ID: "u-2", Role: model.RoleModerator}, nil)
	r := globalRouter(t, svc)

	w := postJSON(r, "/chat/global/reaction", `{"user_id":"u-1","message_id":"m-1","emoji":"🔥"}`)
	assert.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodPut, "/chat/global/users/u-2/role", bytes.NewBufferString(`{"role":" Moderator"}`))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"moderator"`)
	svc.AssertExpectations(t)
}

func TestGlobalChatHandler_Stream(t *testing.T) {
	svc := &MockChatService{}
	svc.On("Connect", mock.Anything, "u-1", mock.AnythingOfType("string")).
		Return(&service.ConnectResult{User: model.ChatUser{ID: "u-1", Username: "alice"}}, nil)
	svc.On("Disconnect", mock.Anything, mock.AnythingOfType("string")).Return()
	r := globalRouter(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/chat/global/stream?user_id=u-1", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		r.ServeHTTP(w, req)
		close(done)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after the client went away")
	}
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"connected"`)
	assert.Contains(t, w.Body.String(), `"alice"`)
	svc.AssertExpectations(t)
}

func TestGlobalChatHandler_StreamUnknownUser(t *testing.T) {
	svc := &MockChatService{}
	svc.On("Connect", mock.Anything, "ghost", mock.AnythingOfType("string")).
		Return(nil, apperr.NotFound("service.chat.connect", "user", "ghost"))
	r := globalRouter(t, svc)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/global/stream?user_id=ghost", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat/global/stream", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}
