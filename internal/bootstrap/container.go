package bootstrap

import (
	"context"
	"log"

	"ai-appgen-be/internal/config"
	"ai-appgen-be/internal/controller"
	"ai-appgen-be/internal/handler"
	"ai-appgen-be/internal/pkg/logger"
	"ai-appgen-be/internal/repository/memory"
	"ai-appgen-be/internal/repository/unitofwork"
	"ai-appgen-be/internal/service"
	"ai-appgen-be/internal/websocket"
	"ai-appgen-be/pkg/engine/llmengine"
	"ai-appgen-be/pkg/lease"
	"ai-appgen-be/pkg/llm/factory"
	"ai-appgen-be/pkg/stream"

	pkgNats "ai-appgen-be/pkg/nats"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Container struct {
	// Controllers
	GenerationController controller.IGenerationController

	// Background Services (Exposed for main.go to run)
	ConsumerService service.IConsumerService

	// WebSockets
	StreamStatusHandler *handler.StreamStatusHandler
	WebSocketHub        *websocket.Hub
}

func NewContainer(db *gorm.DB, cfg *config.Config) *Container {
	// 1. Core Facades
	uowFactory := unitofwork.NewRepositoryFactory(db)
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	// 2. Event Bus
	watermillLogger := watermill.NewStdLogger(false, false)
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{},
		watermillLogger,
	)

	// 3. Infrastructure
	// Redis backs the lease store: stream lifecycle, dedup markers, model
	// overrides. Every instance must see the same keys, so there is no
	// in-memory fallback here.
	opt, err := redis.ParseURL(cfg.App.RedisURL)
	if err != nil {
		log.Printf("[WARN] Failed to parse Redis URL: %v. Using direct Addr", err)
		opt = &redis.Options{
			Addr: cfg.App.RedisURL,
		}
	}
	rdb := redis.NewClient(opt)
	if _, err := rdb.Ping(context.Background()).Result(); err != nil {
		log.Printf("[WARN] Failed to connect to Redis: %v", err)
	}
	leaseStore := lease.NewRedisStore(rdb)

	// NATS is optional: without it lifecycle events stay in-process.
	natsPub, err := pkgNats.NewPublisher(cfg.App.NatsURL)
	if err != nil {
		log.Printf("[WARN] Failed to connect to NATS Publisher: %v", err)
		natsPub = nil
	}

	// WebSocket Hub for stream status pushes
	wsLogger := logger.NewIsolatedLogger("logs/stream_status.log")
	wsHub := websocket.NewHub(rdb, wsLogger)
	go wsHub.Run()

	// 4. Generation Engine
	llmProvider, err := factory.NewLLMProvider(
		cfg.Ai.LLMProvider,
		cfg.Ai.LLMModel,
		cfg.Ai.OllamaBaseURL,
	)
	if err != nil {
		log.Fatalf("[FATAL] Failed to initialize LLM Provider: %v", err)
	}
	log.Printf("[INFO] Using LLM Provider: %s (%s)", cfg.Ai.LLMProvider, cfg.Ai.LLMModel)
	generationEngine := llmengine.New(llmProvider, sysLogger)

	// 5. Stream Coordination
	tracker := stream.NewTracker(leaseStore, sysLogger, stream.TrackerConfig{
		TTL:          cfg.Stream.TrackerTTL,
		PollInterval: cfg.Stream.StopPollInterval,
		PollAttempts: cfg.Stream.StopPollAttempts,
	})
	dedupGuard := stream.NewDedupGuard(leaseStore, cfg.Stream.DedupTTL)
	cancelRegistry := stream.NewCancelRegistry()
	modelCache := memory.NewModelCache()

	// 6. Services
	publisherService := service.NewStreamEventPublisher(cfg.Stream.EventTopicName, pubSub)
	consumerService := service.NewConsumerService(
		pubSub,
		cfg.Stream.EventTopicName,
		wsHub,
		natsPub,
	)

	sessionService := service.NewSessionService(uowFactory, leaseStore, modelCache, tracker)
	generationService := service.NewGenerationService(
		uowFactory,
		generationEngine,
		dedupGuard,
		tracker,
		cancelRegistry,
		sessionService,
		publisherService,
		sysLogger,
		service.GenerationConfig{
			HeartbeatInterval: cfg.Stream.HeartbeatInterval,
			PersistTimeout:    service.DefaultGenerationConfig().PersistTimeout,
		},
	)

	// 7. Handlers & Controllers
	statusHandler := handler.NewStreamStatusHandler(wsHub)

	return &Container{
		GenerationController: controller.NewGenerationController(sessionService, generationService),
		ConsumerService:      consumerService,
		StreamStatusHandler:  statusHandler,
		WebSocketHub:         wsHub,
	}
}
