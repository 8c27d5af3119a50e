package ctxutil

import (
	"go.uber.org/zap"
)

// DefaultOID 未指定工作空间时使用的默认值
const DefaultOID int64 = 1

// Scope 请求级上下文，由 handler 构造后作为参数逐层传递
type Scope struct {
	UserID    int64
	OID       int64
	RequestID string
	Lang      string
}

// WorkspaceID 工作空间ID，缺省为 DefaultOID
func (s Scope) WorkspaceID() int64 {
	if s.OID <= 0 {
		return DefaultOID
	}
	return s.OID
}

// Fields 日志字段
func (s Scope) Fields() []zap.Field {
	return []zap.Field{
		zap.Int64("user_id", s.UserID),
		zap.Int64("oid", s.WorkspaceID()),
		zap.String("request_id", s.RequestID),
	}
}
