package handler

import (
	"bufio"
	"context"
	"strconv"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/common/redis"
	"github.com/superfm831010/SQLBothp/common/response"
	"github.com/superfm831010/SQLBothp/internal/ctxutil"
	"github.com/superfm831010/SQLBothp/internal/middleware"
	"github.com/superfm831010/SQLBothp/internal/orchestrator"
	"github.com/superfm831010/SQLBothp/internal/sse"
	"github.com/superfm831010/SQLBothp/internal/types"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// fail 按错误码返回对应的响应
func fail(c *fiber.Ctx, err error) error {
	msg := types.Message(err)
	switch types.GetErrorCode(err) {
	case types.ErrCodeNotFound:
		return response.NotFound(c, msg)
	case types.ErrCodeInvalidParameter, types.ErrCodeParse, types.ErrCodeLineage:
		return response.BadRequest(c, msg)
	case types.ErrCodeUnknown:
		logger.Error("请求处理失败", append(middleware.Scope(c).Fields(), zap.String("path", c.Path()), zap.Error(err))...)
		return response.ServerError(c, "")
	default:
		return response.Error(c, msg)
	}
}

// paramID 解析路径中的ID
func paramID(c *fiber.Ctx, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// streamFunc 在 SSE 连接上执行的一轮问答
type streamFunc func(ctx context.Context, scope ctxutil.Scope, sink sse.Sink) (*orchestrator.Turn, error)

// stream 以 SSE 方式执行 run。写入失败即视为客户端断开，由引擎取消本轮
func stream(c *fiber.Ctx, run streamFunc) error {
	scope := middleware.Scope(c)

	// 设置 SSE 响应头
	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	// 回调在 handler 返回后执行，不能再使用 fiber.Ctx
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		writer := sse.NewWriter(w)
		defer writer.Close()

		sink := sse.Fanout{writer}
		if rdb := redis.GetClient(); rdb != nil {
			sink = append(sink, sse.NewRedisSink(rdb))
		}
		turn, err := run(context.Background(), scope, sink)
		if err != nil {
			logger.Error("问答执行失败", append(scope.Fields(), zap.Error(err))...)
			if !writer.IsClosed() {
				_ = writer.Emit(context.Background(), &sse.Event{
					Type:    sse.EventError,
					Code:    sse.ErrInternalError,
					Content: types.Message(err),
				})
			}
			return
		}
		logger.Debug("问答结束", append(scope.Fields(), zap.Int64("record_id", turn.RecordID),
			zap.String("state", string(turn.State)))...)
	})
	return nil
}
