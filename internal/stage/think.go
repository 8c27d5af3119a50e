package stage

import (
	"strings"

	"github.com/superfm831010/SQLBothp/internal/llm"
)

const (
	thinkOpen  = "<think>"
	thinkClose = "</think>"
)

// ThinkSplitter 把正文中的 <think>...</think> 拆成推理内容，标签可以跨块
type ThinkSplitter struct {
	inThink bool
	pending string // 可能是标签前缀的尾部
}

// Push 输入一个正文块，返回可以立即输出的增量
func (s *ThinkSplitter) Push(chunk string) []llm.Delta {
	buf := s.pending + chunk
	s.pending = ""

	var out []llm.Delta
	for buf != "" {
		tag, kind := thinkOpen, llm.KindContent
		if s.inThink {
			tag, kind = thinkClose, llm.KindReasoning
		}
		if i := strings.Index(buf, tag); i >= 0 {
			out = appendDelta(out, kind, buf[:i])
			buf = buf[i+len(tag):]
			s.inThink = !s.inThink
			continue
		}
		k := partialSuffix(buf, tag)
		out = appendDelta(out, kind, buf[:len(buf)-k])
		s.pending = buf[len(buf)-k:]
		break
	}
	return out
}

// Flush 流结束时输出剩余内容
func (s *ThinkSplitter) Flush() []llm.Delta {
	kind := llm.KindContent
	if s.inThink {
		kind = llm.KindReasoning
	}
	out := appendDelta(nil, kind, s.pending)
	s.pending = ""
	return out
}

// partialSuffix buf 末尾与 tag 前缀重合的最大长度
func partialSuffix(buf, tag string) int {
	n := len(tag) - 1
	if n > len(buf) {
		n = len(buf)
	}
	for ; n > 0; n-- {
		if strings.HasSuffix(buf, tag[:n]) {
			return n
		}
	}
	return 0
}

func appendDelta(out []llm.Delta, kind llm.DeltaKind, text string) []llm.Delta {
	if text == "" {
		return out
	}
	return append(out, llm.Delta{Kind: kind, Text: text})
}
