package middleware

import (
	"github.com/superfm831010/SQLBothp/common/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
)

// RequestID 请求ID中间件，透传 X-Request-ID，没有则生成 uuid
func RequestID() fiber.Handler {
	return requestid.New(requestid.Config{
		Header:     fiber.HeaderXRequestID,
		Generator:  uuid.NewString,
		ContextKey: "requestid",
	})
}

// Logger 日志中间件
func Logger() fiber.Handler {
	return logger.Middleware()
}
