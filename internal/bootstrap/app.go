package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"agentchat/internal/agent"
	"agentchat/internal/app"
	"agentchat/internal/cache"
	"agentchat/internal/config"
	"agentchat/internal/model"
	"agentchat/internal/platform/database"
	"agentchat/internal/platform/httpclient"
	"agentchat/internal/platform/logger"
	rabbitmqClient "agentchat/internal/platform/rabbitmq"
	redisClient "agentchat/internal/platform/redis"
	"agentchat/internal/platform/tracing"
	"agentchat/internal/repository"
	"agentchat/internal/worker"
)

type App struct {
	Config         *config.Config
	Logger         *zap.Logger
	DB             *gorm.DB
	Redis          *redis.Client
	MQConn         *amqp.Connection
	HTTPClient     *httpclient.Client
	ActivityWorker *worker.ActivityWorker

	AuthService   *app.AuthService
	ChatService   *app.ChatService
	APIKeyService *app.APIKeyService

	StartedAt time.Time

	shutdownTracing func(context.Context) error
}

// New loads configuration and brings up every dependency. Redis and RabbitMQ
// are optional; without them the chat service falls back to in-process
// locking and synchronous activity updates.
func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}

	log := logger.New(logger.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		Production: cfg.App.Env == "prod",
	})
	a := &App{
		Config:    cfg,
		Logger:    log,
		StartedAt: time.Now(),
	}
	a.shutdownTracing = tracing.Init(ctx, tracing.Options{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
	}, log)

	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := OpenStore(ctx, cfg, a.Logger)
	if err != nil {
		return err
	}
	a.DB = db

	if cfg.Redis.Enabled {
		a.Redis, err = redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
	}

	if cfg.RabbitMQ.Enabled {
		a.MQConn, err = rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.RabbitMQ.ActivityQueue)
		if err != nil {
			return err
		}
	}

	a.HTTPClient = httpclient.New()
	repos := repository.NewRepositories(db)

	tokens := app.NewTokenService(
		repos.Tokens,
		cfg.Auth.JWTSecret,
		time.Duration(cfg.Auth.AccessExpireMinute)*time.Minute,
		time.Duration(cfg.Auth.RefreshExpireMinute)*time.Minute,
	)
	a.AuthService = app.NewAuthService(repos.Users, tokens)
	a.APIKeyService = app.NewAPIKeyService(repos.APIKeys, time.Duration(cfg.Auth.APIKeyCacheSeconds)*time.Second)

	adapter := agent.NewAdapter(
		agent.NewOpenAIClient(cfg.LLM.BaseURL, cfg.LLM.APIKey, a.HTTPClient.Client),
		agent.NewToolbox(a.HTTPClient, agent.ToolboxOptions{
			Timeout:          time.Duration(cfg.KnowledgeBase.TimeoutSeconds) * time.Second,
			Knowledge:        cfg.KnowledgeBase.BaseURL != "",
			WebSearchURL:     cfg.WebSearchURL(),
			WebSearchResults: cfg.WebSearch.MaxResults,
		}, a.Logger.Named("tools")),
		agent.Config{
			Model:         cfg.LLM.Model,
			TitleModel:    cfg.LLM.TitleModel,
			MaxToolRounds: cfg.LLM.MaxToolRounds,
		},
		a.Logger.Named("agent"),
	)

	deps := app.ChatDeps{
		Repos:      repos,
		UnitOfWork: repository.NewUnitOfWork(db),
		Agent:      adapter,
		Logger:     a.Logger.Named("chat"),
	}
	lockWait := time.Duration(cfg.Chat.LockWaitSeconds) * time.Second
	if a.Redis != nil {
		deps.History = cache.NewHistoryCache(
			a.Redis,
			cfg.LLM.MaxContextMessage,
			time.Duration(cfg.Redis.HistoryTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.HistoryDirtyTTLSeconds)*time.Second,
		)
		deps.Locker = cache.NewRedisSessionLocker(a.Redis, time.Duration(cfg.Chat.LockTTLSeconds)*time.Second, lockWait)
	} else {
		deps.Locker = cache.NewLocalSessionLocker(lockWait)
	}
	if a.MQConn != nil {
		deps.Activity = rabbitmqClient.NewActivityPublisher(a.MQConn, cfg.RabbitMQ.ActivityQueue)

		a.ActivityWorker = worker.NewActivityWorker(a.MQConn, repos.Sessions, cfg.RabbitMQ.ActivityQueue, a.Logger.Named("activity"))
		if err := a.ActivityWorker.Start(ctx); err != nil {
			return fmt.Errorf("start activity worker failed: %w", err)
		}
	}

	a.ChatService = app.NewChatService(deps, app.ChatOptions{
		MaxContext: cfg.LLM.MaxContextMessage,
		PageSize:   cfg.Chat.DefaultPageSize,
		AgentDeps: agent.Deps{
			KnowledgeBaseURL:    cfg.KnowledgeBase.BaseURL,
			KnowledgeBaseAPIKey: cfg.KnowledgeBase.APIKey,
			Collection:          cfg.KnowledgeBase.Collection,
		},
	})
	return nil
}

// OpenStore connects to the configured database and migrates the schema.
func OpenStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*gorm.DB, error) {
	db, err := database.New(ctx, database.Options{
		Driver: cfg.Database.Driver,
		DSN:    cfg.DatabaseDSN(),
		Logger: log,
	})
	if err != nil {
		return nil, err
	}
	if err := db.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto migrate tables failed: %w", err)
	}
	return db, nil
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	if a.ActivityWorker != nil {
		a.ActivityWorker.Close()
	}
	if a.MQConn != nil && !a.MQConn.IsClosed() {
		if err := a.MQConn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close rabbitmq: %w", err))
		}
	}
	if a.HTTPClient != nil {
		a.HTTPClient.Close()
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if a.shutdownTracing != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		cancel()
	}
	_ = a.Logger.Sync()
	return errors.Join(errs...)
}
