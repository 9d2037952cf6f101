// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pagepal-go/internal/config"
	"pagepal-go/internal/handler"
	"pagepal-go/internal/middleware"
	"pagepal-go/internal/model"
	"pagepal-go/internal/pipeline"
	"pagepal-go/internal/repository"
	"pagepal-go/internal/service"
	"pagepal-go/pkg/database"
	"pagepal-go/pkg/embedding"
	"pagepal-go/pkg/es"
	"pagepal-go/pkg/kafka"
	"pagepal-go/pkg/llm"
	"pagepal-go/pkg/log"
	"pagepal-go/pkg/page"
	"pagepal-go/pkg/storage"
	"pagepal-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和外部存储
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.AutoMigrate(&model.User{}, &model.Session{}, &model.Message{}, &model.PageChunk{})
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch, cfg.Embedding.Dimensions); err != nil {
		log.Errorf("es 初始化失败 %s", err)
		return
	}
	kafka.InitProducer(cfg.Kafka)

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	sessionRepo := repository.NewSessionRepository(database.DB)
	messageRepo := repository.NewMessageRepository(database.DB)
	pageChunkRepo := repository.NewPageChunkRepository(database.DB)
	guardRepo := repository.NewGuardRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	fetcher := page.NewFetcher(cfg.Page)

	userService := service.NewUserService(userRepo, jwtManager)
	sessionService := service.NewSessionService(sessionRepo, messageRepo)
	contentService := service.NewContentService(fetcher, guardRepo)
	retrievalService := service.NewRetrievalService(embeddingClient, es.ESClient, cfg.Elasticsearch.IndexName)
	chatService := service.NewChatService(sessionRepo, messageRepo, guardRepo, retrievalService, llmClient)
	summaryService := service.NewSummaryService(sessionRepo, messageRepo, llmClient)

	// 6. 初始化页面向量化管道 (Processor)
	processor := pipeline.NewProcessor(
		embeddingClient,
		cfg.Elasticsearch,
		cfg.MinIO,
		cfg.Embedding,
		pageChunkRepo,
	)

	// 7. 启动后台 Kafka 消费者
	go kafka.StartConsumer(cfg.Kafka, processor)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	chatHandler := handler.NewChatHandler(chatService, userService, jwtManager)

	// 插件端接口，保持原有的路径与响应形状
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(jwtManager, userService))
	{
		api.POST("/embeddings", handler.NewContentHandler(contentService, sessionService).Prepare)
		api.POST("/chat", chatHandler.Send)
		api.POST("/summary", handler.NewSummaryHandler(summaryService).Summarize)
	}
	// WebSocket 升级请求无法携带授权头，token 走路径参数
	r.GET("/api/chat/stream/:token", chatHandler.Stream)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
			}
		}

		// Session 路由组，需要认证
		sessions := apiV1.Group("/sessions")
		sessions.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			sessionHandler := handler.NewSessionHandler(sessionService)
			sessions.GET("/resolve", sessionHandler.Resolve)
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id/messages", sessionHandler.Messages)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// Kafka 消费循环随进程退出自然结束，无需单独关闭。
	log.Info("服务已优雅关闭")
}
