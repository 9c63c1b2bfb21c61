package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/serializer"
	"github.com/valis-ai/valis/internal/modules/service"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

type ModeHandler struct {
	modes    service.ModeService
	sessions service.SessionService
}

func NewModeHandler(modes service.ModeService, sessions service.SessionService) *ModeHandler {
	return &ModeHandler{modes: modes, sessions: sessions}
}

type CreateModeSessionReq struct {
	Mode   string `json:"mode" example:"adaptive"`
	UserID string `json:"user_id" example:"u-123"`
}

// CreateSession godoc
//
//	@Summary		Create chat session
//	@Description	Create a chat session. mode is one of adaptive, agent, chat, custom and defaults to adaptive.
//	@Tags			chat-modes
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		handler.CreateModeSessionReq	true	"Session payload"
//	@Success		201		{object}	serializer.Response{data=model.SessionInfo}
//	@Router			/chat/modes/session [post]
func (h *ModeHandler) CreateSession(c *gin.Context) {
	req := CreateModeSessionReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	ss, err := h.sessions.Create(c.Request.Context(), model.ChatMode(req.Mode), req.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, serializer.Response{Data: ss.Info()})
}

type SendModeMessageReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required" example:"Write a script that prints the first 10 primes"`
	Mode      string `json:"mode" example:"agent"`
}

// SendMessage godoc
//
//	@Summary		Send a message to a chat session
//	@Description	Process the message in the session's mode. An optional mode overrides and replaces the session mode.
//	@Tags			chat-modes
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		handler.SendModeMessageReq	true	"Message payload"
//	@Success		200		{object}	serializer.Response{data=model.ModeResponse}
//	@Failure		404		{object}	serializer.Response
//	@Router			/chat/modes/message [post]
func (h *ModeHandler) SendMessage(c *gin.Context) {
	req := SendModeMessageReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	resp, err := h.modes.Process(c.Request.Context(), req.SessionID, req.Message, model.ChatMode(req.Mode))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: resp})
}

type SwitchModeReq struct {
	SessionID string `json:"session_id" binding:"required"`
	Mode      string `json:"mode" binding:"required" example:"chat"`
}

// SwitchMode godoc
//
//	@Summary	Switch session mode
//	@Tags		chat-modes
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		handler.SwitchModeReq	true	"Switch payload"
//	@Success	200		{object}	serializer.Response{data=service.ModeSwitch}
//	@Router		/chat/modes/switch [post]
func (h *ModeHandler) SwitchMode(c *gin.Context) {
	req := SwitchModeReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	out, err := h.modes.SwitchMode(c.Request.Context(), req.SessionID, model.ChatMode(req.Mode))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: out})
}

// GetSession godoc
//
//	@Summary	Get chat session info
//	@Tags		chat-modes
//	@Produce	json
//	@Param		session_id	path		string	true	"Session ID"
//	@Success	200			{object}	serializer.Response{data=model.SessionInfo}
//	@Failure	404			{object}	serializer.Response
//	@Router		/chat/modes/session/{session_id} [get]
func (h *ModeHandler) GetSession(c *gin.Context) {
	ss, err := h.sessions.Get(c.Request.Context(), c.Param("session_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: ss.Info()})
}

// ListSessions godoc
//
//	@Summary	List chat sessions
//	@Tags		chat-modes
//	@Produce	json
//	@Success	200	{object}	serializer.Response{data=[]model.SessionInfo}
//	@Router		/chat/modes/sessions [get]
func (h *ModeHandler) ListSessions(c *gin.Context) {
	infos, err := h.sessions.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: infos})
}

// DeleteSession godoc
//
//	@Summary		Delete chat session
//	@Description	Remove the session and release its workspace.
//	@Tags			chat-modes
//	@Produce		json
//	@Param			session_id	path		string	true	"Session ID"
//	@Success		200			{object}	serializer.Response
//	@Failure		404			{object}	serializer.Response
//	@Router			/chat/modes/session/{session_id} [delete]
func (h *ModeHandler) DeleteSession(c *gin.Context) {
	id := c.Param("session_id")
	ok, err := h.sessions.Destroy(c.Request.Context(), id)
	if !ok {
		fail(c, apperr.NotFound("handler.mode.delete_session", "session", id))
		return
	}
	if err != nil {
		// the session is gone; only workspace cleanup failed
		c.JSON(http.StatusOK, serializer.Response{Msg: "deleted", Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Msg: "deleted"})
}
