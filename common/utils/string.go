package utils

import (
	"github.com/duke-git/lancet/v2/strutil"
)

// Ellipsis 超过 n 个字符时截断并追加省略号，用于日志
func Ellipsis(s string, n int) string {
	return strutil.Ellipsis(s, n)
}
