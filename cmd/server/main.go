// Package main 是应用程序的入口点。
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"mbk-chat-go/internal/config"
	"mbk-chat-go/internal/handler"
	"mbk-chat-go/internal/repository"
	"mbk-chat-go/internal/service"
	"mbk-chat-go/pkg/database"
	"mbk-chat-go/pkg/kafka"
	"mbk-chat-go/pkg/llm"
	"mbk-chat-go/pkg/log"
	"mbk-chat-go/pkg/token"
)

func main() {
	configPath := flag.String("config", "./configs/config.yaml", "path to the YAML config file")
	flag.Parse()

	// 1. 初始化配置
	config.Init(*configPath)
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库和 Redis
	database.InitDB(cfg.Database.SQL.Driver, cfg.Database.SQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)

	// 4. 初始化 Repository
	chatRepo := repository.NewChatRepository(database.DB)
	settingsRepo := repository.NewSettingsRepository(database.DB)
	usageRepo := repository.NewUsageRepository(database.DB)
	settingsCache := repository.NewSettingsCache(database.RDB)

	// 5. 初始化 Service (依赖注入)
	registry := llm.NewRegistry(cfg.Providers)
	log.Infof("已注册模型服务: %v", registry.IDs())
	usageService := service.NewUsageService(usageRepo)
	settingsService := service.NewSettingsService(settingsRepo, settingsCache, registry)
	historyService := service.NewHistoryService(chatRepo)

	// 6. 用量事件：配置了 Kafka 时异步发布并在后台消费，否则直接写库
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	var consumerWG sync.WaitGroup
	var publisher service.UsagePublisher = usageService
	var producer *kafka.Producer
	if len(kafka.Brokers(cfg.Kafka)) > 0 {
		producer = kafka.NewProducer(cfg.Kafka)
		publisher = producer
		consumerWG.Add(1)
		go func() {
			defer consumerWG.Done()
			kafka.StartConsumer(consumerCtx, cfg.Kafka, usageService)
		}()
	} else {
		log.Info("Kafka 未配置，用量直接写入数据库")
	}

	chatService := service.NewChatService(chatRepo, settingsService, usageService, registry, publisher, cfg.Chat)

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	jwtManager := token.NewJWTManager(cfg.Auth.Secret, time.Hour)
	r := handler.NewRouter(handler.RouterDeps{
		JWT:          jwtManager,
		AllowedRoles: cfg.Auth.AllowedRoles,
		Chat:         chatService,
		History:      historyService,
		Settings:     settingsService,
	})

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

	// 模型调用可能耗时较长，停机等待时间与模型超时保持一致
	shutdownTimeout := time.Duration(cfg.Chat.ProviderTimeoutSeconds+5) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}

	// HTTP 请求全部结束后再关闭生产者，保证已发布的事件被刷出
	if producer != nil {
		if err := producer.Close(); err != nil {
			log.Errorf("关闭 Kafka 生产者失败: %v", err)
		}
	}
	stopConsumer()
	consumerWG.Wait()

	if database.RDB != nil {
		_ = database.RDB.Close()
	}
	if sqlDB, err := database.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("服务已优雅关闭")
}
