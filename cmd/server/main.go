package main

//	@title			Valis API
//	@version		1.0
//	@description	Autonomous tasks, mode-routed chat sessions and the global chat.
//	@schemes		http https
//	@BasePath		/api/v1

//  Admin bearer for role management
//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Admin bearer token (e.g. "Bearer vadm-xxxx")

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/do"
	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/bootstrap"
	"github.com/valis-ai/valis/internal/config"
	"github.com/valis-ai/valis/internal/infra/queue"
	"github.com/valis-ai/valis/internal/infra/sandbox"
	"github.com/valis-ai/valis/internal/modules/handler"
	"github.com/valis-ai/valis/internal/pkg/utils"
	"github.com/valis-ai/valis/internal/router"
	"github.com/valis-ai/valis/internal/telemetry"
)

func main() {
	// build dependency injection container
	inj := bootstrap.BuildContainer()

	cfg := do.MustInvoke[*config.Config](inj)
	log := do.MustInvoke[*zap.Logger](inj)
	defer log.Sync() //nolint:errcheck

	tp, err := telemetry.SetupTracing(context.Background(), cfg)
	if err != nil {
		log.Sugar().Warnw("failed to setup tracing, continuing without tracing", "err", err)
	} else if tp != nil {
		log.Sugar().Infow("OpenTelemetry tracing enabled", "endpoint", cfg.Telemetry.OtlpEndpoint)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(ctx); err != nil {
				log.Sugar().Errorw("failed to shutdown tracer", "err", err)
			}
		}()
	}

	if cfg.Root.AdminBearerToken == "" {
		token, err := utils.GenerateToken("vadm-")
		if err != nil {
			log.Sugar().Fatalw("generate admin token", "err", err)
		}
		cfg.Root.AdminBearerToken = token
		log.Sugar().Infow("no admin token configured, generated one", "token", "Bearer "+token)
	}

	// init gin
	gin.SetMode(cfg.App.Env)

	engine := router.NewRouter(router.RouterDeps{
		Config:            cfg,
		Log:               log,
		AutonomousHandler: do.MustInvoke[*handler.AutonomousHandler](inj),
		ModeHandler:       do.MustInvoke[*handler.ModeHandler](inj),
		GlobalChatHandler: do.MustInvoke[*handler.GlobalChatHandler](inj),
	})

	addr := fmt.Sprintf("%s:%d", cfg.App.Host, cfg.App.Port)
	srv := &http.Server{Addr: addr, Handler: engine}

	go func() {
		log.Sugar().Infow("starting http server", "addr", addr)
		log.Sugar().Infow("swagger url", "url", addr+"/swagger/index.html")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Sugar().Fatalw("listen error", "err", err)
		}
	}()

	// graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Sugar().Errorw("server shutdown", "err", err)
	}

	// workspaces are containers on the host; remove them before exiting
	if sb := do.MustInvoke[*sandbox.Sandbox](inj); sb != nil {
		if err := sb.Close(); err != nil {
			log.Sugar().Errorw("sandbox shutdown", "err", err)
		}
	}
	if pub := do.MustInvoke[*queue.Publisher](inj); pub != nil {
		if err := pub.Close(); err != nil {
			log.Sugar().Errorw("event publisher shutdown", "err", err)
		}
	}
	log.Sugar().Info("server exited")
}
