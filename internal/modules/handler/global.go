package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/infra/stream"
	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/serializer"
	"github.com/valis-ai/valis/internal/modules/service"
)

type GlobalChatHandler struct {
	svc service.ChatService
	hub *stream.Hub
	log *zap.Logger
}

func NewGlobalChatHandler(s service.ChatService, hub *stream.Hub, log *zap.Logger) *GlobalChatHandler {
	return &GlobalChatHandler{svc: s, hub: hub, log: log}
}

type RegisterUserReq struct {
	Username    string `json:"username" binding:"required" example:"alice"`
	DisplayName string `json:"display_name" example:"Alice"`
	Role        string `json:"role" example:"user"`
}

// Register godoc
//
//	@Summary		Register chat user
//	@Description	Usernames are unique regardless of case. role defaults to user.
//	@Tags			global-chat
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		handler.RegisterUserReq	true	"User payload"
//	@Success		201		{object}	serializer.Response{data=model.ChatUser}
//	@Failure		400		{object}	serializer.Response
//	@Router			/chat/global/register [post]
func (h *GlobalChatHandler) Register(c *gin.Context) {
	req := RegisterUserReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	// unknown roles pass through so the service rejects them
	role, _ := model.ParseRole(req.Role)
	u, err := h.svc.Register(c.Request.Context(), req.Username, req.DisplayName, role)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, serializer.Response{Data: u})
}

// Channels godoc
//
//	@Summary	List channels visible to a user
//	@Tags		global-chat
//	@Produce	json
//	@Param		user_id	query		string	false	"User ID; omitted means guest visibility"
//	@Success	200		{object}	serializer.Response{data=[]model.Channel}
//	@Router		/chat/global/channels [get]
func (h *GlobalChatHandler) Channels(c *gin.Context) {
	cs, err := h.svc.Channels(c.Request.Context(), c.Query("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: cs})
}

type MessagesReq struct {
	Limit  int       `form:"limit,default=50" binding:"min=1,max=1000" example:"50"`
	Before time.Time `form:"before" time_format:"2006-01-02T15:04:05Z07:00"`
}

// Messages godoc
//
//	@Summary		Channel history
//	@Description	Newest messages older than before (RFC 3339), returned oldest first.
//	@Tags			global-chat
//	@Produce		json
//	@Param			channel_id	path		string	true	"Channel ID"
//	@Param			limit		query		integer	false	"Max messages, default 50"
//	@Param			before		query		string	false	"Only messages strictly before this time"
//	@Success		200			{object}	serializer.Response{data=[]model.ChatMessage}
//	@Failure		404			{object}	serializer.Response
//	@Router			/chat/global/messages/{channel_id} [get]
func (h *GlobalChatHandler) Messages(c *gin.Context) {
	req := MessagesReq{}
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	msgs, err := h.svc.Messages(c.Request.Context(), c.Param("channel_id"), req.Limit, req.Before)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: msgs})
}

type SendChatReq struct {
	UserID      string   `json:"user_id" binding:"required"`
	ChannelID   string   `json:"channel_id" binding:"required" example:"general"`
	Content     string   `json:"content" binding:"required" example:"hello everyone"`
	MessageType string   `json:"message_type" example:"text"`
	ReplyTo     string   `json:"reply_to"`
	Attachments []string `json:"attachments"`
}

// Send godoc
//
//	@Summary		Send a channel message
//	@Description	Subject to channel permissions and the sender's per-role rate limit.
//	@Tags			global-chat
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		handler.SendChatReq	true	"Message payload"
//	@Success		201		{object}	serializer.Response{data=model.ChatMessage}
//	@Failure		403		{object}	serializer.Response
//	@Failure		429		{object}	serializer.Response
//	@Router			/chat/global/send [post]
func (h *GlobalChatHandler) Send(c *gin.Context) {
	req := SendChatReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	msg, err := h.svc.Send(c.Request.Context(), service.SendInput{
		UserID:      req.UserID,
		ChannelID:   req.ChannelID,
		Content:     req.Content,
		Kind:        model.MessageKind(req.MessageType),
		ReplyTo:     req.ReplyTo,
		Attachments: req.Attachments,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, serializer.Response{Data: msg})
}

type ChannelMembershipReq struct {
	UserID    string `json:"user_id" binding:"required"`
	ChannelID string `json:"channel_id" binding:"required" example:"support"`
	Handle    string `json:"handle"`
}

// Join godoc
//
//	@Summary		Join a channel
//	@Description	handle is the connection handle from the stream's connected event; without it the call only returns the channel view.
//	@Tags			global-chat
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		handler.ChannelMembershipReq	true	"Join payload"
//	@Success		200		{object}	serializer.Response{data=service.JoinResult}
//	@Failure		403		{object}	serializer.Response
//	@Router			/chat/global/join [post]
func (h *GlobalChatHandler) Join(c *gin.Context) {
	req := ChannelMembershipReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	res, err := h.svc.Join(c.Request.Context(), req.UserID, req.ChannelID, req.Handle)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: res})
}

// Leave godoc
//
//	@Summary	Leave a channel
//	@Tags		global-chat
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		handler.ChannelMembershipReq	true	"Leave payload"
//	@Success	200		{object}	serializer.Response
//	@Router		/chat/global/leave [post]
func (h *GlobalChatHandler) Leave(c *gin.Context) {
	req := ChannelMembershipReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	if err := h.svc.Leave(c.Request.Context(), req.UserID, req.ChannelID, req.Handle); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Msg: "left"})
}

type ReactionReq struct {
	UserID    string `json:"user_id" binding:"required"`
	MessageID string `json:"message_id" binding:"required"`
	Emoji     string `json:"emoji" binding:"required" example:"👍"`
}

// React godoc
//
//	@Summary		React to a message
//	@Description	Reacting twice with the same emoji has no further effect.
//	@Tags			global-chat
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		handler.ReactionReq	true	"Reaction payload"
//	@Success		200		{object}	serializer.Response{data=model.ChatMessage}
//	@Failure		404		{object}	serializer.Response
//	@Router			/chat/global/reaction [post]
func (h *GlobalChatHandler) React(c *gin.Context) {
	req := ReactionReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	msg, err := h.svc.React(c.Request.Context(), req.UserID, req.MessageID, req.Emoji)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: msg})
}

// Online godoc
//
//	@Summary	Online users
//	@Tags		global-chat
//	@Produce	json
//	@Success	200	{object}	serializer.Response{data=[]model.ChatUser}
//	@Router		/chat/global/online [get]
func (h *GlobalChatHandler) Online(c *gin.Context) {
	c.JSON(http.StatusOK, serializer.Response{Data: h.svc.OnlineUsers(c.Request.Context())})
}

// Stats godoc
//
//	@Summary	Chat statistics
//	@Tags		global-chat
//	@Produce	json
//	@Success	200	{object}	serializer.Response{data=model.ChatStats}
//	@Router		/chat/global/stats [get]
func (h *GlobalChatHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, serializer.Response{Data: h.svc.Stats(c.Request.Context())})
}

type SetRoleReq struct {
	Role string `json:"role" binding:"required" example:"moderator"`
}

// SetRole godoc
//
//	@Summary	Change a user's role
//	@Tags		global-chat
//	@Accept		json
//	@Produce	json
//	@Param		user_id	path		string				true	"User ID"
//	@Param		payload	body		handler.SetRoleReq	true	"Role payload"
//	@Security	BearerAuth
//	@Success	200	{object}	serializer.Response{data=model.ChatUser}
//	@Failure	401	{object}	serializer.Response
//	@Router		/chat/global/users/{user_id}/role [put]
func (h *GlobalChatHandler) SetRole(c *gin.Context) {
	req := SetRoleReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	role, _ := model.ParseRole(req.Role)
	u, err := h.svc.SetRole(c.Request.Context(), c.Param("user_id"), role)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: u})
}

// Stream godoc
//
//	@Summary		Event stream
//	@Description	Server-Sent Events for a connected user. The first event is "connected" and carries the connection handle, visible channels and online users.
//	@Tags			global-chat
//	@Produce		text/event-stream
//	@Param			user_id	query	string	true	"User ID"
//	@Success		200
//	@Failure		404	{object}	serializer.Response
//	@Router			/chat/global/stream [get]
func (h *GlobalChatHandler) Stream(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("user_id is required", nil))
		return
	}

	handle := uuid.NewString()
	client := h.hub.Register(handle)
	defer h.hub.Unregister(client)

	res, err := h.svc.Connect(c.Request.Context(), userID, handle)
	if err != nil {
		fail(c, err)
		return
	}
	// the request context is already done here
	defer h.svc.Disconnect(context.WithoutCancel(c.Request.Context()), handle)

	if err := h.hub.Serve(c.Request.Context(), c.Writer, client, res); err != nil {
		h.log.Sugar().Warnw("event stream ended", "user_id", userID, "handle", handle, "err", err)
	}
}
