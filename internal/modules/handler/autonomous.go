package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/serializer"
	"github.com/valis-ai/valis/internal/modules/service"
	"github.com/valis-ai/valis/internal/pkg/apperr"
)

type AutonomousHandler struct {
	svc service.TaskService
}

func NewAutonomousHandler(s service.TaskService) *AutonomousHandler {
	return &AutonomousHandler{svc: s}
}

type AutonomousChatReq struct {
	Message string `json:"message" binding:"required" example:"Build a landing page for my coffee shop"`
}

type AutonomousChatResp struct {
	TaskID     string             `json:"task_id"`
	Message    string             `json:"message"`
	TaskStatus model.TaskSnapshot `json:"task_status"`
}

// Chat godoc
//
//	@Summary		Start an autonomous task
//	@Description	Classify the message and register a task for it. The task is not executed until /autonomous/execute is called.
//	@Tags			autonomous
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		handler.AutonomousChatReq	true	"Chat payload"
//	@Success		200		{object}	serializer.Response{data=handler.AutonomousChatResp}
//	@Router			/autonomous/chat [post]
func (h *AutonomousHandler) Chat(c *gin.Context) {
	req := AutonomousChatReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}

	snap, err := h.svc.Create(c.Request.Context(), req.Message)
	if err != nil {
		fail(c, err)
		return
	}

	msg := fmt.Sprintf("I'll help you with that! I've detected this as a %s request. Let me work on this autonomously...", snap.Type.Label())
	c.JSON(http.StatusOK, serializer.Response{Data: AutonomousChatResp{
		TaskID:     snap.TaskID,
		Message:    msg,
		TaskStatus: *snap,
	}})
}

// Execute godoc
//
//	@Summary		Execute a task
//	@Description	Run the task through its executor. Executor failures are reported in the outcome, not as HTTP errors.
//	@Tags			autonomous
//	@Produce		json
//	@Param			task_id	path		string	true	"Task ID"
//	@Success		200		{object}	serializer.Response{data=model.ExecutionOutcome}
//	@Failure		404		{object}	serializer.Response
//	@Failure		409		{object}	serializer.Response
//	@Router			/autonomous/execute/{task_id} [post]
func (h *AutonomousHandler) Execute(c *gin.Context) {
	out, err := h.svc.Execute(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: out})
}

// Status godoc
//
//	@Summary	Get task status
//	@Tags		autonomous
//	@Produce	json
//	@Param		task_id	path		string	true	"Task ID"
//	@Success	200		{object}	serializer.Response{data=model.TaskSnapshot}
//	@Failure	404		{object}	serializer.Response
//	@Router		/autonomous/status/{task_id} [get]
func (h *AutonomousHandler) Status(c *gin.Context) {
	snap, err := h.svc.Status(c.Request.Context(), c.Param("task_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: snap})
}

// ListTasks godoc
//
//	@Summary	List tasks
//	@Tags		autonomous
//	@Produce	json
//	@Success	200	{object}	serializer.Response{data=[]model.TaskSnapshot}
//	@Router		/autonomous/tasks [get]
func (h *AutonomousHandler) ListTasks(c *gin.Context) {
	tasks, err := h.svc.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: tasks})
}

// Analyze godoc
//
//	@Summary		Analyze intent
//	@Description	Return the plan the classifier produces for a message without creating a task.
//	@Tags			autonomous
//	@Accept			json
//	@Produce		json
//	@Param			payload	body		handler.AutonomousChatReq	true	"Analyze payload"
//	@Success		200		{object}	serializer.Response{data=model.TaskPlan}
//	@Router			/autonomous/analyze [post]
func (h *AutonomousHandler) Analyze(c *gin.Context) {
	req := AutonomousChatReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: h.svc.Analyze(c.Request.Context(), req.Message)})
}

type RememberReq struct {
	Key   string `json:"key" binding:"required" example:"favorite_color"`
	Value any    `json:"value"`
}

// Remember godoc
//
//	@Summary	Store a memory entry
//	@Tags		autonomous
//	@Accept		json
//	@Produce	json
//	@Param		payload	body		handler.RememberReq	true	"Memory payload"
//	@Success	200		{object}	serializer.Response
//	@Router		/autonomous/memory [post]
func (h *AutonomousHandler) Remember(c *gin.Context) {
	req := RememberReq{}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, serializer.ParamErr("", err))
		return
	}
	if err := h.svc.Remember(c.Request.Context(), req.Key, req.Value); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Msg: "stored"})
}

// Recall godoc
//
//	@Summary	Read a memory entry
//	@Tags		autonomous
//	@Produce	json
//	@Param		key	path		string	true	"Memory key"
//	@Success	200	{object}	serializer.Response
//	@Failure	404	{object}	serializer.Response
//	@Router		/autonomous/memory/{key} [get]
func (h *AutonomousHandler) Recall(c *gin.Context) {
	key := c.Param("key")
	v, ok, err := h.svc.Recall(c.Request.Context(), key)
	if err != nil {
		fail(c, err)
		return
	}
	if !ok {
		fail(c, apperr.NotFound("handler.autonomous.recall", "memory key", key))
		return
	}
	c.JSON(http.StatusOK, serializer.Response{Data: gin.H{"key": key, "value": v}})
}
