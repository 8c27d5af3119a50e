package sse

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/superfm831010/SQLBothp/common/utils"
)

// Sink 事件出口
type Sink interface {
	Emit(ctx context.Context, event *Event) error
}

// SinkFunc 函数形式的 Sink
type SinkFunc func(ctx context.Context, event *Event) error

// Emit 实现 Sink
func (f SinkFunc) Emit(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

type flusher interface {
	Flush() error
}

// Writer SSE 写入器，每个事件写完立即刷新
type Writer struct {
	w       io.Writer
	flusher flusher
	mu      sync.Mutex
	closed  bool
}

// NewWriter 创建 SSE Writer，w 为 *bufio.Writer 时每个事件后 Flush
func NewWriter(w io.Writer) *Writer {
	sw := &Writer{w: w}
	if f, ok := w.(flusher); ok {
		sw.flusher = f
	}
	return sw
}

// Emit 写入事件
func (sw *Writer) Emit(_ context.Context, event *Event) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	if sw.closed {
		return fmt.Errorf("writer is closed")
	}
	if time.Time(event.Timestamp).IsZero() {
		event.Timestamp = Timestamp(time.Now())
	}

	// sonic 输出为单行且不转义 HTML
	data, err := utils.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	// event: <type>
	// data: <json>
	// (空行表示事件结束)
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		sw.closed = true
		return fmt.Errorf("failed to write event: %w", err)
	}
	if sw.flusher != nil {
		if err := sw.flusher.Flush(); err != nil {
			sw.closed = true
			return fmt.Errorf("failed to flush event: %w", err)
		}
	}
	return nil
}

// Close 关闭写入器
func (sw *Writer) Close() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.closed = true
}

// IsClosed 检查是否已关闭
func (sw *Writer) IsClosed() bool {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.closed
}

// Fanout 依次写入多个 Sink，第一个出错的 Sink 决定返回值，其余照常写入
type Fanout []Sink

// Emit 实现 Sink
func (f Fanout) Emit(ctx context.Context, event *Event) error {
	var first error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
