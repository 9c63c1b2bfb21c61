package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/valis-ai/valis/docs"
	"github.com/valis-ai/valis/internal/config"
	"github.com/valis-ai/valis/internal/middleware"
	"github.com/valis-ai/valis/internal/modules/handler"
	"github.com/valis-ai/valis/internal/modules/serializer"
)

const (
	apiPrefix  = "/api/v1"
	streamPath = apiPrefix + "/chat/global/stream"
)

type RouterDeps struct {
	Config            *config.Config
	Log               *zap.Logger
	AutonomousHandler *handler.AutonomousHandler
	ModeHandler       *handler.ModeHandler
	GlobalChatHandler *handler.GlobalChatHandler
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	if d.Config.Telemetry.Enabled && d.Config.Telemetry.OtlpEndpoint != "" {
		r.Use(middleware.OtelTracing(d.Config.App.Name, apiPrefix, streamPath))
		r.Use(middleware.TraceID())
	}

	r.Use(middleware.ZapLogger(d.Log, apiPrefix))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, serializer.Response{Msg: "ok"}) })

	r.GET("/swagger", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	v1 := r.Group(apiPrefix)
	{
		v1.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, serializer.Response{Msg: "pong"}) })

		autonomous := v1.Group("/autonomous")
		{
			autonomous.POST("/chat", d.AutonomousHandler.Chat)
			autonomous.POST("/execute/:task_id", d.AutonomousHandler.Execute)
			autonomous.GET("/status/:task_id", d.AutonomousHandler.Status)
			autonomous.GET("/tasks", d.AutonomousHandler.ListTasks)
			autonomous.POST("/analyze", d.AutonomousHandler.Analyze)
			autonomous.POST("/memory", d.AutonomousHandler.Remember)
			autonomous.GET("/memory/:key", d.AutonomousHandler.Recall)
		}

		modes := v1.Group("/chat/modes")
		{
			modes.POST("/session", d.ModeHandler.CreateSession)
			modes.GET("/session/:session_id", d.ModeHandler.GetSession)
			modes.DELETE("/session/:session_id", d.ModeHandler.DeleteSession)
			modes.GET("/sessions", d.ModeHandler.ListSessions)
			modes.POST("/message", d.ModeHandler.SendMessage)
			modes.POST("/switch", d.ModeHandler.SwitchMode)
		}

		global := v1.Group("/chat/global")
		{
			global.POST("/register", d.GlobalChatHandler.Register)
			global.GET("/channels", d.GlobalChatHandler.Channels)
			global.GET("/messages/:channel_id", d.GlobalChatHandler.Messages)
			global.POST("/send", d.GlobalChatHandler.Send)
			global.POST("/join", d.GlobalChatHandler.Join)
			global.POST("/leave", d.GlobalChatHandler.Leave)
			global.POST("/reaction", d.GlobalChatHandler.React)
			global.GET("/online", d.GlobalChatHandler.Online)
			global.GET("/stats", d.GlobalChatHandler.Stats)
			global.GET("/stream", d.GlobalChatHandler.Stream)

			global.PUT("/users/:user_id/role", middleware.AdminAuth(d.Config), d.GlobalChatHandler.SetRole)
		}
	}
	return r
}
