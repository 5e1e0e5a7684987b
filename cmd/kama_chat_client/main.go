package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kama_chat_client/internal/config"
	"kama_chat_client/internal/dao/remote"
	myredis "kama_chat_client/internal/dao/redis"
	"kama_chat_client/internal/dao/sqlite"
	"kama_chat_client/internal/gateway/websocket"
	"kama_chat_client/internal/handler"
	"kama_chat_client/internal/https_server"
	"kama_chat_client/internal/infrastructure/logger"
	"kama_chat_client/internal/infrastructure/worker"
	"kama_chat_client/internal/service"
	"kama_chat_client/internal/service/chat"
	"kama_chat_client/internal/service/connection"
	"kama_chat_client/internal/service/contact"
	"kama_chat_client/internal/service/status"
	"kama_chat_client/pkg/constants"
	"kama_chat_client/pkg/util/jwt"
	"kama_chat_client/pkg/util/snowflake"

	"go.uber.org/zap"
)

// snapshotStore 本地快照存储的公共能力
type snapshotStore interface {
	chat.SnapshotStore
	Close() error
}

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.MainConfig.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()
	zap.L().Info("日志初始化成功")

	// 3. 初始化雪花算法与参数校验翻译
	snowflake.Init(conf.SnowflakeConfig.MachineID)
	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("init validator translations failed", zap.Error(err))
	}

	// 4. 初始化 REST 客户端
	api := remote.NewClient(conf.ServerConfig.ApiBaseUrl, conf.ServerConfig.Token, conf.ServerConfig.RequestTimeoutDuration())

	// 5. 初始化快照存储
	store, err := openStore(conf)
	if err != nil {
		zap.L().Fatal("open snapshot store failed", zap.String("mode", conf.StoreConfig.Mode), zap.Error(err))
	}
	pool := worker.NewPool("snapshot", constants.PERSIST_WORKERS, constants.CHANNEL_SIZE)

	// 6. 初始化状态核心与实时连接
	opts := chat.Options{
		TypingStopAfter: conf.TypingConfig.StopAfterDuration(),
		Pool:            pool,
	}
	if store != nil {
		opts.Store = store
	}
	engine := chat.NewEngine(api, opts)
	dialer := &websocket.Dialer{
		URL:              conf.ServerConfig.WsUrl,
		HandshakeTimeout: time.Duration(conf.ReconnectConfig.HandshakeTimeout) * time.Second,
	}
	manager := connection.NewManager(dialer.Dial, engine.Dispatch, connection.Options{
		InitialInterval: time.Duration(conf.ReconnectConfig.InitialInterval) * time.Millisecond,
		MaxInterval:     time.Duration(conf.ReconnectConfig.MaxInterval) * time.Millisecond,
	})
	engine.UseSession(manager)

	ctx, cancel := context.WithCancel(context.Background())
	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		_ = engine.Run(ctx)
	}()

	// 7. 初始化 Service 与桥接服务
	statusSvc := status.NewService(api, engine)
	svc := service.NewServices(engine, contact.NewService(api), statusSvc)
	handlers := handler.NewHandlers(svc, conf.MainConfig.Theme)
	server := https_server.NewServer(&conf.MainConfig, https_server.Init(&conf.MainConfig, handlers, engine.SelfId))

	// 8. 登录：恢复快照、建立实时连接、拉取会话列表
	if err := login(ctx, conf, api, engine, statusSvc); err != nil {
		zap.L().Error("login failed, bridge serves the logged-out state", zap.Error(err))
	}

	// 9. 启动桥接服务
	go func() {
		zap.L().Info("bridge listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("bridge server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("关闭客户端...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("bridge shutdown", zap.Error(err))
	}
	manager.Disconnect()
	cancel()
	<-engineDone
	pool.Close()
	if store != nil {
		if err := store.Close(); err != nil {
			zap.L().Warn("close snapshot store", zap.Error(err))
		}
	}
	zap.L().Info("客户端已关闭")
}

// login 确定当前用户后连接
// token 中没有用户 ID 时向服务端查询
func login(ctx context.Context, conf *config.Config, api *remote.Client, engine *chat.Engine, statusSvc *status.Service) error {
	userId, err := jwt.UserIDFromBearer(conf.ServerConfig.Token)
	me, meErr := api.Me(ctx)
	if meErr == nil {
		statusSvc.SetSelf(me.ToParticipant())
		if userId == "" {
			userId = me.Id
		}
	} else if userId == "" {
		return errors.Join(err, meErr)
	}

	if err := engine.Connect(ctx, userId); err != nil {
		return err
	}
	if n, err := engine.Hydrate(ctx); err != nil {
		zap.L().Warn("restore snapshot failed", zap.Error(err))
	} else if n > 0 {
		zap.L().Info("snapshot restored", zap.Int("conversations", n))
	}
	if err := engine.LoadConversations(ctx); err != nil {
		zap.L().Warn("initial conversation load failed", zap.Error(err))
	}
	zap.L().Info("logged in", zap.String("user_id", userId))
	return nil
}

func openStore(conf *config.Config) (snapshotStore, error) {
	switch conf.StoreConfig.Mode {
	case "sqlite":
		return sqlite.Open(conf.StoreConfig.SqlitePath)
	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), constants.DEFAULT_REQUEST_SECS*time.Second)
		defer cancel()
		return myredis.Open(ctx, myredis.Options{
			Host:       conf.RedisConfig.Host,
			Port:       conf.RedisConfig.Port,
			Password:   conf.RedisConfig.Password,
			Db:         conf.RedisConfig.Db,
			Expiration: time.Duration(conf.RedisConfig.Expiration) * time.Hour,
		})
	default:
		return nil, nil
	}
}
