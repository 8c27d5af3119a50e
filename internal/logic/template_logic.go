package logic

import (
	"context"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/common/redis"
	"github.com/superfm831010/SQLBothp/internal/svc"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TemplateReloadChannel 模板重新加载广播频道
const TemplateReloadChannel = "sqlbot:template:reload"

// instanceID 本实例标识，忽略自己发出的广播
var instanceID = uuid.NewString()

// TemplateLogic 提示词模板管理
type TemplateLogic struct {
	ctx context.Context
}

// NewTemplateLogic 创建模板逻辑
func NewTemplateLogic(ctx context.Context) *TemplateLogic {
	return &TemplateLogic{ctx: ctx}
}

// ReloadResult 重新加载结果
type ReloadResult struct {
	Dialects  int  `json:"dialects"`
	Broadcast bool `json:"broadcast"`
}

// Reload 重新加载本实例模板并广播给其他实例，本实例失败时不广播
func (l *TemplateLogic) Reload() (*ReloadResult, error) {
	if err := svc.Ctx.Prompts.Reload(); err != nil {
		return nil, err
	}
	result := &ReloadResult{Dialects: len(svc.Ctx.Prompts.Current().Dialects)}
	if redis.GetClient() == nil {
		return result, nil
	}
	if err := Broadcast(l.ctx, instanceID); err != nil {
		logger.Warn("模板重新加载广播失败", zap.Error(err))
		return result, nil
	}
	result.Broadcast = true
	return result, nil
}

// Broadcast 发布模板重新加载消息，from 为发起方标识
func Broadcast(ctx context.Context, from string) error {
	return redis.Publish(ctx, TemplateReloadChannel, from)
}

// ListenTemplateReload 订阅其他实例的重新加载广播，ctx 结束时退出
func ListenTemplateReload(ctx context.Context) {
	redis.Subscribe(ctx, TemplateReloadChannel, func(from string) {
		if from == instanceID {
			return
		}
		if err := svc.Ctx.Prompts.Reload(); err == nil {
			logger.Info("收到模板重新加载广播", zap.String("from", from))
		}
	})
}
