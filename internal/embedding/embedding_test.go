package embedding

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIEmbedder_Batches(t *testing.T) {
	var batches []int
	var models []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, utils.UnmarshalString(readBody(r), &req))
		batches = append(batches, len(req.Input))
		models = append(models, req.Model)

		data := make([]map[string]any, 0, len(req.Input))
		// 倒序返回，验证按 index 归位
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{"object": "embedding", "index": i, "embedding": []float32{float32(len(req.Input[i])), 1}})
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(utils.ToJSON(map[string]any{"object": "list", "data": data, "model": req.Model})))
	}))
	defer srv.Close()

	e := NewOpenAIEmbedder(&config.EmbeddingConfig{Enabled: true, BaseURL: srv.URL, Model: "text-embedding-3-small", BatchSize: 2})
	require.NotNil(t, e)

	vecs, err := e.EmbedDocuments(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, batches)
	// 模型名按原样透传
	assert.Equal(t, []string{"text-embedding-3-small", "text-embedding-3-small"}, models)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(1), vecs[0][0])
	assert.Equal(t, float32(2), vecs[1][0])
	assert.Equal(t, float32(3), vecs[2][0])

	v, err := e.EmbedQuery(context.Background(), "dddd")
	require.NoError(t, err)
	assert.Equal(t, float32(4), v[0])
}

func TestNewOpenAIEmbedder_Disabled(t *testing.T) {
	assert.Nil(t, NewOpenAIEmbedder(&config.EmbeddingConfig{Enabled: false, Model: "m"}))
}

func readBody(r *http.Request) string {
	b, _ := io.ReadAll(r.Body)
	return string(b)
}
