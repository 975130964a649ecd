package database

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"

	"mbk-chat-go/pkg/log"
)

var RDB *redis.Client

// InitRedis 初始化 Redis 客户端连接。addr 为空时不启用，RDB 保持为 nil。
// Redis 只用于设置缓存，连接失败时记录警告并继续运行。
func InitRedis(addr, password string, db int) {
	if addr == "" {
		log.Info("Redis address not configured, settings cache disabled")
		return
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnf("failed to connect to redis at %s, settings cache disabled: %v", addr, err)
		_ = client.Close()
		return
	}

	RDB = client
	log.Info("Redis client connected successfully")
}
