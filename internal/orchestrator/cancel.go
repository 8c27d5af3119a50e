package orchestrator

import (
	"context"
	"strconv"
	"sync"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/common/redis"
	"github.com/superfm831010/SQLBothp/internal/types"

	"go.uber.org/zap"
)

// CancelChannel 跨实例停止问答的广播频道
const CancelChannel = "sqlbot:chat:cancel"

// Registry 进行中问答的取消函数，按记录ID登记；同一记录可以同时有多次调用（如推荐问题）
type Registry struct {
	mu      sync.Mutex
	seq     uint64
	cancels map[int64]map[uint64]context.CancelCauseFunc
}

// NewRegistry 创建取消登记表
func NewRegistry() *Registry {
	return &Registry{cancels: make(map[int64]map[uint64]context.CancelCauseFunc)}
}

// Register 登记记录的取消函数，返回的注销函数只移除本次登记
func (r *Registry) Register(recordID int64, cancel context.CancelCauseFunc) func() {
	r.mu.Lock()
	r.seq++
	token := r.seq
	if r.cancels[recordID] == nil {
		r.cancels[recordID] = make(map[uint64]context.CancelCauseFunc)
	}
	r.cancels[recordID][token] = cancel
	r.mu.Unlock()
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		delete(r.cancels[recordID], token)
		if len(r.cancels[recordID]) == 0 {
			delete(r.cancels, recordID)
		}
	}
}

// Cancel 取消本实例上该记录的全部调用，返回是否找到
func (r *Registry) Cancel(recordID int64) bool {
	r.mu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(r.cancels[recordID]))
	for _, cancel := range r.cancels[recordID] {
		cancels = append(cancels, cancel)
	}
	r.mu.Unlock()
	for _, cancel := range cancels {
		cancel(types.ErrStopped)
	}
	return len(cancels) > 0
}

// Stop 停止问答，本实例找不到时通过 Redis 广播给其他实例
func (r *Registry) Stop(ctx context.Context, recordID int64) error {
	if r.Cancel(recordID) {
		return nil
	}
	if redis.GetClient() == nil {
		return nil
	}
	return redis.Publish(ctx, CancelChannel, strconv.FormatInt(recordID, 10))
}

// Listen 订阅停止广播，ctx 结束时退出
func (r *Registry) Listen(ctx context.Context) {
	redis.Subscribe(ctx, CancelChannel, func(payload string) {
		id, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			logger.Warn("无效的停止消息", zap.String("payload", payload))
			return
		}
		if r.Cancel(id) {
			logger.Info("收到停止广播", zap.Int64("record_id", id))
		}
	})
}
