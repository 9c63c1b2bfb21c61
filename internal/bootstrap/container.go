package bootstrap

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/samber/do"
	"go.uber.org/zap"

	"github.com/valis-ai/valis/internal/config"
	"github.com/valis-ai/valis/internal/infra/blob"
	"github.com/valis-ai/valis/internal/infra/cache"
	"github.com/valis-ai/valis/internal/infra/httpclient"
	"github.com/valis-ai/valis/internal/infra/logger"
	"github.com/valis-ai/valis/internal/infra/queue"
	"github.com/valis-ai/valis/internal/infra/sandbox"
	"github.com/valis-ai/valis/internal/infra/stream"
	"github.com/valis-ai/valis/internal/modules/handler"
	"github.com/valis-ai/valis/internal/modules/model"
	"github.com/valis-ai/valis/internal/modules/repo"
	"github.com/valis-ai/valis/internal/modules/service"
	"github.com/valis-ai/valis/internal/pkg/ratelimit"
)

// BuildContainer registers every component lazily. Optional infrastructure
// (RabbitMQ, S3, the docker sandbox) resolves to nil when disabled or
// unreachable, and the services degrade instead of failing startup.
func BuildContainer() *do.Injector {
	inj := do.New()

	// config
	do.Provide(inj, func(i *do.Injector) (*config.Config, error) {
		return config.Load()
	})

	// logger
	do.Provide(inj, func(i *do.Injector) (*zap.Logger, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return logger.New(cfg.App.Env, cfg.Log.Level)
	})

	// Redis
	do.Provide(inj, func(i *do.Injector) (*redis.Client, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return cache.New(cfg), nil
	})

	// RabbitMQ
	do.Provide(inj, func(i *do.Injector) (*amqp.Connection, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return amqp.Dial(cfg.RabbitMQ.URL)
	})
	do.Provide(inj, func(i *do.Injector) (*queue.Publisher, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		if !cfg.RabbitMQ.Enabled {
			return nil, nil
		}
		conn, err := do.Invoke[*amqp.Connection](i)
		if err != nil {
			log.Sugar().Warnw("rabbitmq unavailable, chat events stay local", "err", err)
			return nil, nil
		}
		return queue.NewPublisher(conn, cfg.RabbitMQ.Exchange, log)
	})

	// S3
	do.Provide(inj, func(i *do.Injector) (*blob.S3Deps, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if !cfg.S3.Enabled {
			return nil, nil
		}
		return blob.NewS3(context.Background(), cfg)
	})

	// docker sandbox
	do.Provide(inj, func(i *do.Injector) (*sandbox.Sandbox, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		if !cfg.Sandbox.Enabled {
			return nil, nil
		}
		sb, err := sandbox.New(cfg, log)
		if err != nil {
			log.Sugar().Warnw("docker sandbox unavailable, agent mode disabled", "err", err)
			return nil, nil
		}
		return sb, nil
	})

	// LLM
	do.Provide(inj, func(i *do.Injector) (*httpclient.LLMClient, error) {
		return httpclient.NewLLMClient(do.MustInvoke[*config.Config](i), do.MustInvoke[*zap.Logger](i)), nil
	})

	// SSE hub
	do.Provide(inj, func(i *do.Injector) (*stream.Hub, error) {
		return stream.NewHub(do.MustInvoke[*zap.Logger](i)), nil
	})

	// Repo
	do.Provide(inj, func(i *do.Injector) (repo.TaskRepo, error) {
		return repo.NewTaskRepo(), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.SessionRepo, error) {
		return repo.NewSessionRepo(), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.ChatRepo, error) {
		return repo.NewChatRepo(model.BootstrapChannels(time.Now())), nil
	})
	do.Provide(inj, func(i *do.Injector) (repo.MemoryRepo, error) {
		cfg := do.MustInvoke[*config.Config](i)
		if cfg.Memory.Backend == "redis" {
			rdb := do.MustInvoke[*redis.Client](i)
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			err := cache.Ping(ctx, rdb)
			if err == nil {
				return repo.NewRedisMemory(rdb, cfg.Memory.KeyPrefix), nil
			}
			do.MustInvoke[*zap.Logger](i).Sugar().Warnw("redis unreachable, using in-process memory", "addr", cfg.Redis.Addr, "err", err)
		}
		return repo.NewLRUMemory(cfg.Memory.Size)
	})

	// Service
	do.Provide(inj, func(i *do.Injector) (*ratelimit.Limiter, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return ratelimit.New(cfg.Chat.RateLimits, ratelimit.WithWindow(time.Duration(cfg.Chat.WindowSec)*time.Second)), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.Sink, error) {
		sink := service.MultiSink{do.MustInvoke[*stream.Hub](i)}
		if pub := do.MustInvoke[*queue.Publisher](i); pub != nil {
			sink = append(sink, pub)
		}
		return sink, nil
	})
	do.Provide(inj, func(i *do.Injector) (*service.Executors, error) {
		cfg := do.MustInvoke[*config.Config](i)
		llm := do.MustInvoke[*httpclient.LLMClient](i)
		var deployer service.Deployer
		if s3 := do.MustInvoke[*blob.S3Deps](i); s3 != nil {
			deployer = s3
		}
		return service.NewExecutors(llm, llm, deployer, cfg.LLM.MaxTokens), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.TaskService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return service.NewTaskService(
			do.MustInvoke[repo.TaskRepo](i),
			do.MustInvoke[repo.MemoryRepo](i),
			service.NewLLMClassifier(do.MustInvoke[*httpclient.LLMClient](i), cfg.Agent.ClassifierMaxTokens),
			do.MustInvoke[*service.Executors](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.SessionService, error) {
		var workspaces service.WorkspaceProvider
		if sb := do.MustInvoke[*sandbox.Sandbox](i); sb != nil {
			workspaces = sb
		}
		return service.NewSessionService(do.MustInvoke[repo.SessionRepo](i), workspaces, do.MustInvoke[*zap.Logger](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.ModeService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		log := do.MustInvoke[*zap.Logger](i)
		llm := do.MustInvoke[*httpclient.LLMClient](i)

		var (
			agent      *service.CodeAgent
			workspaces service.WorkspaceProvider
		)
		if sb := do.MustInvoke[*sandbox.Sandbox](i); sb != nil {
			agent = service.NewCodeAgent(llm, sb, cfg.Agent.MaxIterations, log)
			workspaces = sb
		}
		return service.NewModeService(
			do.MustInvoke[service.SessionService](i),
			do.MustInvoke[service.TaskService](i),
			llm,
			service.NewLLMModeClassifier(llm, cfg.Agent.ClassifierMaxTokens),
			agent,
			workspaces,
			service.ModeConfig{
				HistoryWindow:  cfg.Agent.ChatHistoryWindow,
				Threshold:      cfg.Agent.AdaptiveThreshold,
				MaxSuggestions: cfg.Agent.MaxSuggestions,
				MaxTokens:      cfg.LLM.MaxTokens,
			},
			log,
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (service.ChatService, error) {
		cfg := do.MustInvoke[*config.Config](i)
		return service.NewChatService(
			do.MustInvoke[repo.ChatRepo](i),
			do.MustInvoke[*ratelimit.Limiter](i),
			do.MustInvoke[service.Sink](i),
			service.ChatConfig{
				HistoryCap:     cfg.Chat.HistoryCap,
				RecentOnJoin:   cfg.Chat.RecentOnJoin,
				DefaultChannel: cfg.Chat.DefaultChannel,
			},
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	// Handler
	do.Provide(inj, func(i *do.Injector) (*handler.AutonomousHandler, error) {
		return handler.NewAutonomousHandler(do.MustInvoke[service.TaskService](i)), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.ModeHandler, error) {
		return handler.NewModeHandler(
			do.MustInvoke[service.ModeService](i),
			do.MustInvoke[service.SessionService](i),
		), nil
	})
	do.Provide(inj, func(i *do.Injector) (*handler.GlobalChatHandler, error) {
		return handler.NewGlobalChatHandler(
			do.MustInvoke[service.ChatService](i),
			do.MustInvoke[*stream.Hub](i),
			do.MustInvoke[*zap.Logger](i),
		), nil
	})

	return inj
}
