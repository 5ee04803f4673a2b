package main

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goRedis "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/huddle/api/handler"
	"github.com/fastygo/huddle/internal/config"
	"github.com/fastygo/huddle/internal/infrastructure/buffer"
	"github.com/fastygo/huddle/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/huddle/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/huddle/internal/infrastructure/redis"
	"github.com/fastygo/huddle/internal/middleware"
	"github.com/fastygo/huddle/internal/realtime"
	"github.com/fastygo/huddle/internal/router"
	"github.com/fastygo/huddle/internal/services"
	"github.com/fastygo/huddle/internal/services/lifecycle"
	"github.com/fastygo/huddle/pkg/httpcontext"
	"github.com/fastygo/huddle/pkg/logger"
	"github.com/fastygo/huddle/repository"
	"github.com/fastygo/huddle/repository/memory"
	"github.com/fastygo/huddle/repository/postgres"
	"github.com/fastygo/huddle/usecase"
	activityUC "github.com/fastygo/huddle/usecase/activity"
	chatUC "github.com/fastygo/huddle/usecase/chat"
	"github.com/fastygo/huddle/usecase/collab"
	membershipUC "github.com/fastygo/huddle/usecase/membership"
	notificationUC "github.com/fastygo/huddle/usecase/notification"
	proximityUC "github.com/fastygo/huddle/usecase/proximity"
)

// stores groups the repositories of one storage driver.
type stores struct {
	activities    repository.ActivityRepository
	joinRequests  repository.JoinRequestRepository
	channels      repository.ChannelRepository
	notifications repository.NotificationRepository
	events        repository.EventRepository
	transactor    repository.Transactor
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:       cfg.Logger.Level,
		Encoding:    cfg.Logger.Encoding,
		Service:     cfg.AppName,
		Environment: cfg.Environment,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := lifecycle.New(appCtx, cfg.Context.ShutdownTimeout, zapLogger)
	manager.Listen(cancel)

	var (
		pool *pgxpool.Pool
		repo stores
	)
	switch cfg.Store.Driver {
	case config.StoreMemory:
		zapLogger.Warn("using in-memory store; state is lost on restart")
		store := memory.New()
		repo = stores{
			activities:    store.Activities(),
			joinRequests:  store.JoinRequests(),
			channels:      store.Channels(),
			notifications: store.Notifications(),
			events:        store.Events(),
			transactor:    store.Transactor(),
		}
	default:
		if err := pgInfra.RunMigrations(cfg, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}
		pool, err = pgInfra.NewPool(appCtx, cfg.Database, cfg.AppName, zapLogger)
		if err != nil {
			zapLogger.Fatal("postgres connection failed", zap.Error(err))
		}
		manager.Register("postgres", func(ctx context.Context) error {
			pgInfra.Close(pool, zapLogger)
			return nil
		})
		repo = stores{
			activities:    postgres.NewActivityRepository(pool),
			joinRequests:  postgres.NewJoinRequestRepository(pool),
			channels:      postgres.NewChannelRepository(pool),
			notifications: postgres.NewNotificationRepository(pool),
			events:        postgres.NewEventRepository(pool),
			transactor:    postgres.NewTransactor(pool),
		}
	}

	// Redis only carries best-effort fan-out, so the service starts without it.
	var (
		redisClient *goRedis.Client
		publisher   usecase.Publisher
	)
	redisClient, err = redisInfra.NewClient(appCtx, cfg.Redis)
	if err != nil {
		zapLogger.Warn("redis unavailable, realtime fan-out disabled", zap.Error(err))
		redisClient = nil
	} else {
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
		publisher = redisInfra.NewPublisher(redisClient, cfg.Realtime.PublishTimeout, zapLogger)
	}

	var bufferStore *buffer.Store
	if cfg.Buffer.Enabled {
		bufferStore, err = buffer.Open(cfg.Buffer.Path, buffer.DefaultBucket, cfg.Buffer.MaxSize)
		if err != nil {
			zapLogger.Fatal("failed to open side effect outbox", zap.Error(err))
		}
		manager.Register("outbox", func(ctx context.Context) error {
			return bufferStore.Close()
		})
	}

	mon := monitor.New(pool, redisClient, bufferStore, 10*time.Second, zapLogger)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})

	orchestrator := collab.New(collab.Dependencies{
		Activities:    repo.activities,
		JoinRequests:  repo.joinRequests,
		Channels:      repo.channels,
		Notifications: repo.notifications,
		Events:        repo.events,
		Publisher:     publisher,
		Clock:         usecase.SystemClock,
	}, zapLogger.Named("collab"))

	if bufferStore != nil {
		processor := services.NewBufferProcessor(
			bufferStore,
			mon,
			orchestrator,
			zapLogger.Named("outbox"),
			services.ProcessorConfig{
				Interval:   cfg.Buffer.SyncInterval,
				BatchSize:  50,
				MaxRetries: cfg.Buffer.MaxRetry,
				Retention:  time.Duration(cfg.Buffer.RetentionHours) * time.Hour,
			},
		)
		orchestrator.SetRetryBuffer(services.NewBufferBridge(processor))
		processor.Start()
		manager.Register("outbox_processor", func(ctx context.Context) error {
			processor.Stop(ctx)
			return nil
		})
	}

	proximityUseCase := proximityUC.New(repo.activities, proximityUC.Config{
		DefaultRadiusKm: cfg.Location.DefaultRadiusKm,
		MaxRadiusKm:     cfg.Location.MaxRadiusKm,
	}, zapLogger)
	activityUseCase := activityUC.New(repo.activities, repo.transactor, orchestrator, usecase.SystemClock, zapLogger)
	membershipUseCase := membershipUC.New(
		repo.activities,
		repo.joinRequests,
		repo.transactor,
		activityUseCase,
		orchestrator,
		usecase.SystemClock,
		zapLogger,
	)
	chatUseCase := chatUC.New(
		repo.activities,
		repo.channels,
		membershipUseCase,
		orchestrator,
		publisher,
		usecase.SystemClock,
		zapLogger,
	)
	notificationUseCase := notificationUC.New(repo.notifications, zapLogger)

	if cfg.Sweeper.Enabled {
		sweeper, err := services.NewExpirySweeper(
			repo.activities,
			activityUseCase,
			orchestrator,
			usecase.SystemClock,
			zapLogger.Named("sweeper"),
			services.SweeperConfig{
				Schedule:  cfg.Sweeper.Schedule,
				BatchSize: cfg.Sweeper.BatchSize,
				Timeout:   cfg.Sweeper.Timeout,
			},
		)
		if err != nil {
			zapLogger.Fatal("expiry sweeper setup failed", zap.Error(err))
		}
		sweeper.Start()
		manager.Register("expiry_sweeper", func(ctx context.Context) error {
			sweeper.Stop(ctx)
			return nil
		})
	}

	verifier := middleware.NewTokenVerifier(cfg.JWT.Secret, cfg.JWT.Issuer)

	if cfg.Realtime.Enabled && redisClient != nil {
		gateway := realtime.New(realtime.Config{
			Addr:           cfg.Realtime.Addr,
			AllowedOrigins: cfg.Realtime.AllowedOrigins,
			PingInterval:   cfg.Realtime.PingInterval,
		}, redisClient, verifier, chatUseCase, zapLogger.Named("realtime"))
		manager.Go("realtime_gateway", gateway.ListenAndServe)
		manager.Register("realtime_gateway", gateway.Shutdown)
	}

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout, httpcontext.WithCallerHeader(middleware.HeaderUserID))

	handlers := router.Handlers{
		Activity:     apiHandler.NewActivityHandler(activityUseCase, proximityUseCase, ctxAdapter, zapLogger),
		JoinRequest:  apiHandler.NewJoinRequestHandler(membershipUseCase, ctxAdapter, zapLogger),
		Chat:         apiHandler.NewChatHandler(chatUseCase, ctxAdapter, zapLogger),
		Notification: apiHandler.NewNotificationHandler(notificationUseCase, ctxAdapter, zapLogger),
		Health:       apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(verifier, zapLogger)
	r := router.New(handlers, authMiddleware)

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	manager.Go("http_server", func() error {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		return server.ListenAndServe(cfg.Address())
	})
	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-manager.Context().Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
