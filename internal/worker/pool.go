// Package worker 阻塞 IO 协程池
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/superfm831010/SQLBothp/common/logger"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Pool 有界协程池，数据库查询与向量计算在这里执行
type Pool struct {
	p *ants.Pool
}

// NewPool 创建协程池
func NewPool(size int) (*Pool, error) {
	if size <= 0 {
		size = 32
	}
	p, err := ants.NewPool(size,
		ants.WithExpiryDuration(time.Minute),
		ants.WithPanicHandler(func(r any) {
			logger.Error("协程池任务 panic", zap.Any("panic", r))
		}),
	)
	if err != nil {
		return nil, err
	}
	return &Pool{p: p}, nil
}

// Submit 提交后台任务，不等待结果
func (p *Pool) Submit(name string, fn func()) error {
	err := p.p.Submit(fn)
	if err != nil {
		logger.Warn("提交后台任务失败", zap.String("task", name), zap.Error(err))
	}
	return err
}

// Do 在池中执行 fn 并等待结果，ctx 结束时立即返回
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	done := make(chan error, 1)
	err := p.p.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("task panic: %v", r)
			}
		}()
		done <- fn(ctx)
	})
	if err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Call 在池中执行带返回值的 fn
func Call[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Running 正在执行的任务数
func (p *Pool) Running() int {
	return p.p.Running()
}

// Close 等待任务结束后释放协程池
func (p *Pool) Close(timeout time.Duration) error {
	return p.p.ReleaseTimeout(timeout)
}
