package sse

import (
	"context"
	"fmt"
	"time"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/common/utils"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RecordChannel 单条记录的事件频道
func RecordChannel(recordID int64) string {
	return fmt.Sprintf("sqlbot:record:%d:events", recordID)
}

// RedisSink 把事件发布到记录频道，供消息队列方式的前端订阅
type RedisSink struct {
	client redis.Cmdable
}

// NewRedisSink 创建 RedisSink，client 为空时返回 nil
func NewRedisSink(client redis.Cmdable) *RedisSink {
	if client == nil {
		return nil
	}
	return &RedisSink{client: client}
}

// Emit 实现 Sink，没有记录ID的事件不发布
func (s *RedisSink) Emit(ctx context.Context, event *Event) error {
	if s == nil || event.RecordID == 0 {
		return nil
	}
	if time.Time(event.Timestamp).IsZero() {
		event.Timestamp = Timestamp(time.Now())
	}
	payload, err := utils.MarshalString(event)
	if err != nil {
		return err
	}
	// 发布失败不影响当前连接上的推送
	if err := s.client.Publish(context.WithoutCancel(ctx), RecordChannel(event.RecordID), payload).Err(); err != nil {
		logger.Warn("事件发布失败", zap.Int64("record_id", event.RecordID), zap.Error(err))
	}
	return nil
}
