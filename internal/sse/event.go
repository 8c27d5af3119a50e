// Package sse 问数流程的事件推送
package sse

import (
	"time"
)

// EventType SSE 事件类型
type EventType string

const (
	EventContent             EventType = "content"
	EventReasoningContent    EventType = "reasoning_content"
	EventError               EventType = "error"
	EventRecommendedQuestion EventType = "recommended_question"
	EventFinish              EventType = "finish"
)

// ErrorCode 推送给前端的错误码
type ErrorCode string

const (
	ErrStageFailed   ErrorCode = "STAGE_FAILED"   // 阶段失败
	ErrStageTimeout  ErrorCode = "STAGE_TIMEOUT"  // 阶段超时
	ErrParse         ErrorCode = "PARSE_ERROR"    // 快捷指令解析失败
	ErrLineage       ErrorCode = "LINEAGE_ERROR"  // 分析/预测关联关系无效
	ErrNotFound      ErrorCode = "NOT_FOUND"      // 记录不存在
	ErrCancelled     ErrorCode = "CANCELLED"      // 用户停止
	ErrInternalError ErrorCode = "INTERNAL_ERROR" // 内部错误
)

// Timestamp 格式化为 "2006-01-02 15:04:05.000"
type Timestamp time.Time

// MarshalJSON 自定义 JSON 序列化
func (t Timestamp) MarshalJSON() ([]byte, error) {
	formatted := time.Time(t).Format("2006-01-02 15:04:05.000")
	return []byte(`"` + formatted + `"`), nil
}

// Event 推送事件
type Event struct {
	Type      EventType `json:"type"`
	Stage     string    `json:"stage,omitempty"`
	Content   string    `json:"content"`
	RecordID  int64     `json:"record_id,omitempty"`
	Code      ErrorCode `json:"code,omitempty"`
	Timestamp Timestamp `json:"timestamp"`
}
