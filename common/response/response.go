package response

import (
	"github.com/gofiber/fiber/v2"
)

// Response 统一响应结构
type Response struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Data      any    `json:"data,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// PageData 分页数据结构
type PageData struct {
	List     any   `json:"list"`
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
}

// 业务码，HTTP 错误与状态码一致
const (
	CodeSuccess      = 0
	CodeError        = -1
	CodeBadRequest   = fiber.StatusBadRequest
	CodeUnauthorized = fiber.StatusUnauthorized
	CodeNotFound     = fiber.StatusNotFound
	CodeServerError  = fiber.StatusInternalServerError
)

var defaultMessages = map[int]string{
	CodeSuccess:      "success",
	CodeBadRequest:   "bad request",
	CodeUnauthorized: "unauthorized",
	CodeNotFound:     "not found",
	CodeServerError:  "server error",
}

// write 写出响应，status 为 0 时保持 200
func write(c *fiber.Ctx, status, code int, message string, data any) error {
	if message == "" {
		message = defaultMessages[code]
	}
	if status != 0 {
		c.Status(status)
	}
	rid, _ := c.Locals("requestid").(string)
	return c.JSON(Response{Code: code, Message: message, Data: data, RequestID: rid})
}

// Success 成功响应
func Success(c *fiber.Ctx, data any) error {
	return write(c, 0, CodeSuccess, "", data)
}

// Page 分页响应
func Page(c *fiber.Ctx, list any, total int64, page, pageSize int) error {
	return Success(c, PageData{List: list, Total: total, Page: page, PageSize: pageSize})
}

// Error 业务错误，HTTP 状态仍为 200
func Error(c *fiber.Ctx, message string) error {
	return write(c, 0, CodeError, message, nil)
}

func BadRequest(c *fiber.Ctx, message string) error {
	return write(c, fiber.StatusBadRequest, CodeBadRequest, message, nil)
}

func Unauthorized(c *fiber.Ctx, message string) error {
	return write(c, fiber.StatusUnauthorized, CodeUnauthorized, message, nil)
}

func NotFound(c *fiber.Ctx, message string) error {
	return write(c, fiber.StatusNotFound, CodeNotFound, message, nil)
}

func ServerError(c *fiber.Ctx, message string) error {
	return write(c, fiber.StatusInternalServerError, CodeServerError, message, nil)
}
