package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	_ "marketplace_chat_service/cmd/chat_service/docs" // 引入生成的 Swagger 文档
	"marketplace_chat_service/internal/chat/app"
	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/internal/chat/router"
	"marketplace_chat_service/pkg/config"
	"marketplace_chat_service/pkg/database"
	"marketplace_chat_service/pkg/logger"
	testtool "marketplace_chat_service/pkg/test_tool"
	"marketplace_chat_service/pkg/token"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gofiber/fiber/v2"
	fiber_log "github.com/gofiber/fiber/v2/middleware/logger"
	"go.uber.org/zap"
)

const (
	shutdownTimeout  = 15 * time.Second
	identityCacheTTL = 5 * time.Minute
)

func main() {
	logger.Log = logger.Initialize(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceLogPath)
	cfg, err := config.LoadChat(config.EnvConfig.ChatService, config.EnvConfig.ChatServiceYAMLPath)
	if err != nil {
		logger.Log.Fatal("load config failed", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. PostgreSQL: booking / user 由 marketplace 主系統寫入, 這裡只讀
	pgConn := database.Connection{
		ConnectStr: database.PostgresDSN(cfg.PostgreSQL.Host, cfg.PostgreSQL.Port,
			cfg.PostgreSQL.User, cfg.PostgreSQL.Password, cfg.PostgreSQL.Database),
		RetryCount:    cfg.PostgreSQL.RetryCount,
		RetryInterval: time.Duration(cfg.PostgreSQL.RetryInterval),
	}
	pool, err := database.NewDatabaseConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to connect to postgreSQL database after retries",
			zap.String("address", fmt.Sprintf("[%s:%d]", cfg.PostgreSQL.Host, cfg.PostgreSQL.Port)),
			zap.Error(err),
		)
	}

	// 2. 訊息儲存 (postgres 或 mongo)
	msgRepo, closeStore := openMessageStore(ctx, cfg, pgConn)

	// 3. Redis: identity cache + 跨 process 廣播
	redisConn := database.RedisConnection{Addr: cfg.Redis.Addr, DB: cfg.Redis.RedisDB}
	if redisConn.Addr == "" {
		redisConn.MasterName, redisConn.SentinelAddrs = config.GetRedisSetting()
	}
	redisClient, err := database.NewRedisClient(redisConn)
	if err != nil {
		logger.Log.Fatal(fmt.Sprintf("connect redis err : %v", err))
	}

	// 4. 初始化 Repository
	cacheTTL := cfg.Redis.IdentityCacheTTL
	if cacheTTL <= 0 {
		cacheTTL = identityCacheTTL
	}
	users := repository.NewCachedUserRepository(
		repository.NewUserRepository(pool),
		database.NewRedisRepository[domain.Identity](redisClient),
		cacheTTL,
	)
	bookings := repository.NewBookingRepository(pool)
	events, closeEvents := openEventPublisher(cfg.Events)

	// 5. 廣播
	hub := app.NewRoomHub()
	broadcaster := app.NewRedisBroadcaster(hub, repository.NewRedisPubSub(redisClient, cfg.Redis.ChannelPrefix))
	if err := broadcaster.Start(ctx); err != nil {
		logger.Log.Fatal("subscribe room channels failed", zap.Error(err))
	}

	// 6. 初始化 UseCases
	tokens := token.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Leeway)
	authn := app.NewTokenAuthenticator(tokens, users)
	authz := app.NewAuthorizer(bookings)
	messageUC := app.NewMessageUseCase(msgRepo, bookings, users, events)
	svc := app.NewChatService(authn, authz, messageUC, broadcaster, app.SessionConfigFrom(cfg.Session))

	// 7. gRPC health check
	var healthSrv *database.HealthServer
	if cfg.GRPCPort != "" {
		healthSrv, err = database.NewHealthServer(cfg.IP + ":" + cfg.GRPCPort)
		if err != nil {
			logger.Log.Fatal("start grpc health server failed", zap.Error(err))
		}
		go func() {
			if err := healthSrv.Serve(); err != nil {
				logger.Log.Error("grpc health server stopped", zap.Error(err))
			}
		}()
	}

	// 8. 啟動 Fiber
	r := fiber.New(fiber.Config{DisableStartupMessage: config.IsProduction()})
	file, err := os.OpenFile(fmt.Sprintf("%s/access.log", config.EnvConfig.ChatServiceLogPath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer file.Close()

	r.Use(fiber_log.New(fiber_log.Config{
		Output: file, // 将日志输出到文件
	}))

	// 注册路由
	router.RegisterRoutes(r, app.NewChatWebsocketHandler(svc), app.NewChatHandler(authn, authz, messageUC), tokens)

	testtool.StartPprof()

	port := ":" + cfg.Port
	go func() {
		logger.Log.Info("Chat Service listening", zap.String("addr", cfg.IP+port))
		if err := r.Listen(cfg.IP + port); err != nil {
			logger.Log.Fatal("Server failed to start", zap.Error(err))
		}
	}()
	if healthSrv != nil {
		healthSrv.SetServing("", true)
	}

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"chat-service": func(ctx context.Context) error {
				logger.Log.Info("Graceful shutdown initiated...")
				if healthSrv != nil {
					healthSrv.Stop()
				}
				// 不再接受新連線, 現有 session 隨 socket 關閉結束
				if err := r.ShutdownWithContext(ctx); err != nil {
					logger.Log.Warn("fiber shutdown", zap.Error(err))
				}
				cancel()
				messageUC.Wait()

				closeEvents()
				closeStore(ctx)
				pool.Close()
				return redisClient.Close()
			},
		},
	)

	exitCode := <-wait
	logger.Log.Info("Chat Service exited", zap.Int("code", exitCode))
	logger.Log.Sync()
	os.Exit(exitCode)
}

func openMessageStore(ctx context.Context, cfg config.Chat, pgConn database.Connection) (repository.MessageRepository, func(context.Context)) {
	if cfg.Store.Driver == "mongo" {
		uri := fmt.Sprintf("mongodb://%s:%s@%s:%d", cfg.MongoSQL.User, cfg.MongoSQL.Password, cfg.MongoSQL.Host, cfg.MongoSQL.Port)
		mongo, err := database.NewMongoDB(ctx,
			database.Connection{
				ConnectStr:    uri,
				RetryCount:    cfg.MongoSQL.RetryCount,
				RetryInterval: time.Duration(cfg.MongoSQL.RetryInterval),
			},
			cfg.MongoSQL.Database)
		if err != nil {
			logger.Log.Fatal(
				"Unable to connect to mongoDB database after retries",
				zap.String("address", fmt.Sprintf("[%s:%d]", cfg.MongoSQL.Host, cfg.MongoSQL.Port)),
				zap.Error(err),
			)
		}
		if err := repository.EnsureMongoIndexes(ctx, mongo.Database); err != nil {
			logger.Log.Fatal("create mongo indexes failed", zap.Error(err))
		}
		return repository.NewMongoMessageRepository(mongo.Database), func(ctx context.Context) {
			_ = mongo.Close(ctx)
		}
	}

	db, err := database.NewPGConnection(pgConn)
	if err != nil {
		logger.Log.Fatal("Unable to open message store", zap.Error(err))
	}
	if !config.IsProduction() {
		// production 的 table 由 migration 管理
		if err := repository.AutoMigrate(db); err != nil {
			logger.Log.Fatal("auto migrate failed", zap.Error(err))
		}
	}
	return repository.NewGormMessageRepository(db), func(context.Context) {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func openEventPublisher(c config.EventsConfig) (repository.MessageEventPublisher, func()) {
	switch c.Driver {
	case "kafka":
		w, err := database.NewKafkaWriterWithRetry(database.KafkaConnection{
			Brokers:       c.Brokers,
			Topic:         c.Topic,
			RetryCount:    c.RetryCount,
			RetryInterval: c.RetryInterval,
		})
		if err != nil {
			logger.Log.Fatal("connect kafka failed", zap.Strings("brokers", c.Brokers), zap.Error(err))
		}
		pub := repository.NewKafkaEventPublisher(w)
		return pub, func() { _ = pub.Close() }

	case "rabbitmq":
		conn, err := database.ConnectRabbitMQWithRetry(database.Connection{
			ConnectStr:    c.URL,
			RetryCount:    c.RetryCount,
			RetryInterval: time.Duration(c.RetryInterval / time.Second),
		})
		if err != nil {
			logger.Log.Fatal("connect rabbitmq failed", zap.Error(err))
		}
		ch, err := database.OpenTopicExchange(conn, c.Exchange)
		if err != nil {
			logger.Log.Fatal("declare exchange failed", zap.String("exchange", c.Exchange), zap.Error(err))
		}
		pub := repository.NewRabbitEventPublisher(ch, c.Exchange)
		return pub, func() {
			_ = pub.Close()
			_ = conn.Close()
		}
	}

	return repository.NewNoopEventPublisher(), func() {}
}
