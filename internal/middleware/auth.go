package middleware

import (
	"strconv"
	"strings"

	"github.com/superfm831010/SQLBothp/common/response"
	"github.com/superfm831010/SQLBothp/internal/auth"
	"github.com/superfm831010/SQLBothp/internal/ctxutil"

	"github.com/gofiber/fiber/v2"
)

const (
	localScope      = "scope"
	headerWorkspace = "X-Workspace-Id"
	headerLang      = "Accept-Language"
)

// AuthMiddleware 认证中间件，校验 sa-token 并构造请求级 Scope
// required 为 false 时跳过校验，用户固定为 1（单机部署）
func AuthMiddleware(required bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		scope := ctxutil.Scope{
			UserID:    1,
			OID:       parseInt64(c.Get(headerWorkspace)),
			RequestID: requestID(c),
			Lang:      c.Get(headerLang),
		}

		if required && auth.Enabled() {
			token := getToken(c)
			if token == "" {
				return response.Unauthorized(c, "请先登录")
			}
			if !auth.IsLogin(token) {
				return response.Unauthorized(c, "登录已过期，请重新登录")
			}
			loginID, err := auth.GetLoginId(token)
			if err != nil {
				return response.Unauthorized(c, "获取用户信息失败")
			}
			userID := parseInt64(loginID)
			if userID == 0 {
				return response.Unauthorized(c, "用户信息无效")
			}
			scope.UserID = userID
		}

		c.Locals(localScope, scope)
		return c.Next()
	}
}

// Scope 获取当前请求的 Scope
func Scope(c *fiber.Ctx) ctxutil.Scope {
	if s, ok := c.Locals(localScope).(ctxutil.Scope); ok {
		return s
	}
	return ctxutil.Scope{UserID: 1, RequestID: requestID(c)}
}

// getToken 从请求中获取Token
func getToken(c *fiber.Ctx) string {
	if token := c.Get("satoken"); token != "" {
		return token
	}
	if authHeader := c.Get("Authorization"); authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if token := c.Query("satoken"); token != "" {
		return token
	}
	return c.Cookies("satoken")
}

func requestID(c *fiber.Ctx) string {
	if rid, ok := c.Locals("requestid").(string); ok {
		return rid
	}
	return ""
}

func parseInt64(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return v
}
