package utils

import (
	"github.com/bytedance/sonic"
)

// ToJSON 将对象转换为JSON字符串，失败时返回空串
func ToJSON(v any) string {
	s, err := sonic.MarshalString(v)
	if err != nil {
		return ""
	}
	return s
}

// Marshal 将对象序列化为JSON字节数组
func Marshal(v any) ([]byte, error) {
	return sonic.Marshal(v)
}

// MarshalString 将对象序列化为JSON字符串
func MarshalString(v any) (string, error) {
	return sonic.MarshalString(v)
}

// UnmarshalString 将JSON字符串解析到指定对象
func UnmarshalString(s string, v any) error {
	return sonic.UnmarshalString(s, v)
}

// FromJSON 将JSON字符串转换为对象
func FromJSON[T any](s string) (T, error) {
	var v T
	err := sonic.UnmarshalString(s, &v)
	return v, err
}

// ValidString 验证字符串是否为有效的JSON
func ValidString(s string) bool {
	return sonic.ValidString(s)
}
