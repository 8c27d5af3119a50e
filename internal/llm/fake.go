package llm

import (
	"context"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// ScriptedModel 按脚本返回流式消息的 ChatModel，用于测试与离线演示
type ScriptedModel struct {
	mu      sync.Mutex
	scripts [][]*schema.Message
	calls   [][]*schema.Message
	// Block 为 true 时 Stream 一直阻塞到 ctx 结束
	Block bool
	// Err 非空时脚本发完后以该错误结束流
	Err error
}

var _ model.BaseChatModel = (*ScriptedModel)(nil)

// NewScriptedModel 每次 Stream 调用依次消费一段脚本
func NewScriptedModel(scripts ...[]*schema.Message) *ScriptedModel {
	return &ScriptedModel{scripts: scripts}
}

// Chunks 把文本片段转成消息
func Chunks(parts ...string) []*schema.Message {
	out := make([]*schema.Message, 0, len(parts))
	for _, p := range parts {
		out = append(out, schema.AssistantMessage(p, nil))
	}
	return out
}

// Calls 已收到的请求
func (m *ScriptedModel) Calls() [][]*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]*schema.Message(nil), m.calls...)
}

func (m *ScriptedModel) next(input []*schema.Message) []*schema.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, input)
	if len(m.scripts) == 0 {
		return nil
	}
	s := m.scripts[0]
	m.scripts = m.scripts[1:]
	return s
}

// Generate 拼接整段脚本
func (m *ScriptedModel) Generate(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	msgs := m.next(input)
	if len(msgs) == 0 {
		return schema.AssistantMessage("", nil), nil
	}
	return schema.ConcatMessages(msgs)
}

// Stream 逐条返回脚本
func (m *ScriptedModel) Stream(ctx context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msgs := m.next(input)
	if !m.Block && m.Err == nil {
		return schema.StreamReaderFromArray(msgs), nil
	}

	sr, sw := schema.Pipe[*schema.Message](1)
	go func() {
		defer sw.Close()
		for _, msg := range msgs {
			if sw.Send(msg, nil) {
				return
			}
		}
		if m.Err != nil {
			sw.Send(nil, m.Err)
			return
		}
		<-ctx.Done()
		sw.Send(nil, ctx.Err())
	}()
	return sr, nil
}
