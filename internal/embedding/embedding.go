// Package embedding 文本向量化
package embedding

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/config"

	"github.com/sashabaranov/go-openai"
)

const defaultBatchSize = 20

// Embedder 向量化契约
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
}

// OpenAIEmbedder OpenAI 兼容协议的向量模型
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	batchSize int
}

// NewOpenAIEmbedder 创建向量模型客户端，未启用时返回 nil
func NewOpenAIEmbedder(cfg *config.EmbeddingConfig) *OpenAIEmbedder {
	if !cfg.Enabled || cfg.Model == "" {
		return nil
	}
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		batchSize: batch,
	}
}

// EmbedQuery 单条文本向量
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	results, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("Embedding 结果为空")
	}
	return results[0], nil
}

// EmbedDocuments 批量向量，分批调用
func (e *OpenAIEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, 0, len(texts))
	for i, batch := range utils.SliceChunk(texts, e.batchSize) {
		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: batch,
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("Embedding API 调用失败 (batch %d): %w", i, err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("Embedding 结果数量不匹配: 期望 %d, 实际 %d", len(batch), len(resp.Data))
		}
		vecs := make([][]float32, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("Embedding 结果下标越界: %d", d.Index)
			}
			vecs[d.Index] = d.Embedding
		}
		out = append(out, vecs...)
	}
	return out, nil
}
