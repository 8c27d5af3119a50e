// Package llm 大模型流式调用
package llm

import (
	"context"
	"errors"
	"io"

	"github.com/superfm831010/SQLBothp/internal/config"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// DeltaKind 增量类型
type DeltaKind string

const (
	KindContent   DeltaKind = "content"
	KindReasoning DeltaKind = "reasoning_content"
)

// Delta 一个流式增量
type Delta struct {
	Kind DeltaKind
	Text string
}

// Usage token 用量
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Client 模型调用契约，onDelta 返回错误时中止流
type Client interface {
	Stream(ctx context.Context, system, user string, onDelta func(Delta) error) (*Usage, error)
	ModelName() string
}

// EinoClient 基于 eino ChatModel 的实现
type EinoClient struct {
	model model.BaseChatModel
	name  string
}

// NewEinoClient 包装任意 eino ChatModel
func NewEinoClient(m model.BaseChatModel, name string) *EinoClient {
	return &EinoClient{model: m, name: name}
}

// NewOpenAIClient 创建 OpenAI 兼容协议的模型客户端
func NewOpenAIClient(ctx context.Context, cfg *config.LLMConfig) (*EinoClient, error) {
	chatConfig := &openai.ChatModelConfig{
		Model:  cfg.Model,
		APIKey: cfg.APIKey,
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		switch cfg.Provider {
		case "openai":
			baseURL = "https://api.openai.com/v1"
		case "deepseek":
			baseURL = "https://api.deepseek.com/v1"
		case "azure":
			chatConfig.ByAzure = true
			chatConfig.APIVersion = cfg.APIVersion
			if chatConfig.APIVersion == "" {
				chatConfig.APIVersion = "2024-06-01"
			}
		}
	}
	if baseURL != "" {
		chatConfig.BaseURL = baseURL
	}
	if cfg.Temperature != nil {
		chatConfig.Temperature = cfg.Temperature
	}
	if cfg.MaxTokens != nil {
		chatConfig.MaxTokens = cfg.MaxTokens
	}

	m, err := openai.NewChatModel(ctx, chatConfig)
	if err != nil {
		return nil, err
	}
	return NewEinoClient(m, cfg.Model), nil
}

// ModelName 模型名称
func (c *EinoClient) ModelName() string {
	return c.name
}

// Stream 流式调用，逐块回调推理内容与正文
func (c *EinoClient) Stream(ctx context.Context, system, user string, onDelta func(Delta) error) (*Usage, error) {
	messages := []*schema.Message{schema.UserMessage(user)}
	if system != "" {
		messages = append([]*schema.Message{schema.SystemMessage(system)}, messages...)
	}

	stream, err := c.model.Stream(ctx, messages)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var usage *schema.TokenUsage
	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return toUsage(usage), err
		}
		if err := ctx.Err(); err != nil {
			return toUsage(usage), err
		}

		if chunk.ReasoningContent != "" {
			if err := onDelta(Delta{Kind: KindReasoning, Text: chunk.ReasoningContent}); err != nil {
				return toUsage(usage), err
			}
		}
		if chunk.Content != "" {
			if err := onDelta(Delta{Kind: KindContent, Text: chunk.Content}); err != nil {
				return toUsage(usage), err
			}
		}
		if chunk.ResponseMeta != nil && chunk.ResponseMeta.Usage != nil {
			usage = chunk.ResponseMeta.Usage
		}
	}
	return toUsage(usage), nil
}

func toUsage(u *schema.TokenUsage) *Usage {
	if u == nil {
		return &Usage{}
	}
	return &Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
	}
}
