package sse

import (
	"context"
	"errors"
	"sync"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/internal/types"

	"go.uber.org/zap"
)

// Emitter 为事件补上记录ID，写失败时调用 onFail（通常是取消本轮上下文）
type Emitter struct {
	sink   Sink
	onFail func()

	mu       sync.Mutex
	recordID int64
	failed   error
}

// NewEmitter 创建 Emitter
func NewEmitter(sink Sink, onFail func()) *Emitter {
	return &Emitter{sink: sink, onFail: onFail}
}

// SetRecord 切换当前记录
func (e *Emitter) SetRecord(id int64) {
	e.mu.Lock()
	e.recordID = id
	e.mu.Unlock()
}

// RecordID 当前记录
func (e *Emitter) RecordID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recordID
}

// Err 第一次写失败的错误
func (e *Emitter) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed
}

func (e *Emitter) emit(ctx context.Context, event *Event) error {
	e.mu.Lock()
	if e.failed != nil {
		e.mu.Unlock()
		return e.failed
	}
	if event.RecordID == 0 {
		event.RecordID = e.recordID
	}
	e.mu.Unlock()

	if err := e.sink.Emit(ctx, event); err != nil {
		e.mu.Lock()
		first := e.failed == nil
		if first {
			e.failed = err
		}
		e.mu.Unlock()
		if first {
			logger.Warn("推送失败，停止本轮问答", zap.Int64("record_id", event.RecordID), zap.Error(err))
			if e.onFail != nil {
				e.onFail()
			}
		}
		return err
	}
	return nil
}

// Content 回答片段
func (e *Emitter) Content(ctx context.Context, stage, text string) error {
	return e.emit(ctx, &Event{Type: EventContent, Stage: stage, Content: text})
}

// Reasoning 思考过程片段
func (e *Emitter) Reasoning(ctx context.Context, stage, text string) error {
	return e.emit(ctx, &Event{Type: EventReasoningContent, Stage: stage, Content: text})
}

// Recommended 推荐问题，content 为 JSON 数组
func (e *Emitter) Recommended(ctx context.Context, content string) error {
	return e.emit(ctx, &Event{Type: EventRecommendedQuestion, Content: content})
}

// Finish 阶段结束
func (e *Emitter) Finish(ctx context.Context, stage string) error {
	return e.emit(ctx, &Event{Type: EventFinish, Stage: stage})
}

// Error 终止错误
func (e *Emitter) Error(ctx context.Context, stage string, err error) error {
	return e.emit(ctx, &Event{Type: EventError, Stage: stage, Code: CodeOf(err), Content: types.Message(err)})
}

// CodeOf 错误对应的推送错误码
func CodeOf(err error) ErrorCode {
	if errors.Is(err, context.Canceled) {
		return ErrCancelled
	}
	switch types.GetErrorCode(err) {
	case types.ErrCodeCancelled:
		return ErrCancelled
	case types.ErrCodeStageFailed:
		return ErrStageFailed
	case types.ErrCodeStageTimeout:
		return ErrStageTimeout
	case types.ErrCodeParse:
		return ErrParse
	case types.ErrCodeLineage:
		return ErrLineage
	case types.ErrCodeNotFound:
		return ErrNotFound
	default:
		return ErrInternalError
	}
}
