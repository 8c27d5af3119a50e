package redis

import (
	"context"

	"github.com/superfm831010/SQLBothp/common/config"
	"github.com/superfm831010/SQLBothp/common/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var client *redis.Client
var ctx = context.Background()

// Init 初始化Redis连接
func Init(cfg *config.RedisConfig) error {
	client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	_, err := client.Ping(ctx).Result()
	return err
}

// GetClient 获取Redis客户端，未初始化时返回 nil
func GetClient() *redis.Client {
	return client
}

// SetClient 替换客户端（测试或外部注入）
func SetClient(c *redis.Client) {
	client = c
}

// Close 关闭Redis连接
func Close() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

// Publish 发布消息到频道
func Publish(c context.Context, channel string, message any) error {
	return client.Publish(c, channel, message).Err()
}

// Subscribe 订阅频道并在后台逐条回调，ctx 结束时退出
func Subscribe(c context.Context, channel string, handler func(payload string)) {
	if client == nil {
		return
	}
	sub := client.Subscribe(c, channel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-c.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							logger.Error("redis 订阅回调 panic", zap.String("channel", channel), zap.Any("panic", r))
						}
					}()
					handler(msg.Payload)
				}()
			}
		}
	}()
}
