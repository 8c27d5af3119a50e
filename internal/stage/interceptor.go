package stage

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/internal/types"

	"go.uber.org/zap"
)

// Interceptor 阶段拦截器
type Interceptor func(next Handler) Handler

// Chain 组合拦截器，第一个在最外层
func Chain(h Handler, interceptors ...Interceptor) Handler {
	for i := len(interceptors) - 1; i >= 0; i-- {
		h = interceptors[i](h)
	}
	return h
}

// Recover panic 转为阶段失败
func Recover() Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, inv *Invocation) (res *Result, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("阶段执行 panic",
						zap.Int64("record_id", inv.RecordID),
						zap.String("stage", string(inv.Stage)),
						zap.Any("panic", r),
						zap.String("stack", string(debug.Stack())))
					err = types.StageFailure(string(inv.Stage), "阶段执行异常", fmt.Errorf("%v", r))
				}
			}()
			return next(ctx, inv)
		}
	}
}

// Logging 记录阶段耗时与状态
func Logging() Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, inv *Invocation) (*Result, error) {
			start := time.Now()
			res, err := next(ctx, inv)

			fields := []zap.Field{
				zap.Int64("record_id", inv.RecordID),
				zap.String("stage", string(inv.Stage)),
				zap.Duration("duration", time.Since(start)),
			}
			if res != nil && res.Usage != nil {
				fields = append(fields, zap.Int("total_tokens", res.Usage.TotalTokens))
			}
			switch {
			case err == nil:
				logger.Info("阶段完成", append(fields, zap.String("status", "ok"))...)
			case errors.Is(err, context.Canceled):
				logger.Info("阶段已取消", append(fields, zap.String("status", "cancelled"))...)
			default:
				logger.Warn("阶段失败", append(fields, zap.String("status", "failed"), zap.Error(err))...)
			}
			return res, err
		}
	}
}

// Timeout 单阶段超时，只影响当前阶段
func Timeout(d time.Duration) Interceptor {
	return func(next Handler) Handler {
		return func(ctx context.Context, inv *Invocation) (*Result, error) {
			if d <= 0 {
				return next(ctx, inv)
			}
			tctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()

			res, err := next(tctx, inv)
			if err != nil && ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
				return res, types.NewAppErrorWithDetails(types.ErrCodeStageTimeout, "阶段执行超时",
					fmt.Sprintf("%s 超过 %s", inv.Stage, d))
			}
			return res, err
		}
	}
}

// Defaults 默认拦截器链
func Defaults(timeout time.Duration) []Interceptor {
	return []Interceptor{Recover(), Logging(), Timeout(timeout)}
}
