package vector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestTopK(t *testing.T) {
	items := []Item{
		{ID: 3, Vector: []float32{1, 0}},
		{ID: 1, Vector: []float32{1, 0}},
		{ID: 2, Vector: []float32{0, 1}},
		{ID: 4, Vector: nil},
		{ID: 5, Vector: []float32{1, 1}},
	}
	hits := TopK([]float32{1, 0}, items, 0.5, 2)
	assert.Equal(t, []Hit{{ID: 1, Score: 1}, {ID: 3, Score: 1}}, hits)

	hits = TopK([]float32{1, 0}, items, 0.5, 0)
	assert.Len(t, hits, 3)
	assert.Equal(t, int64(5), hits[2].ID)
}

func TestToQdrantFilter(t *testing.T) {
	assert.Nil(t, toQdrantFilter(nil))
	f := toQdrantFilter(&Filter{Must: map[string]int64{"oid": 1}, Should: map[string]int64{"datasource": 7, "advanced_application": 3}})
	assert.Len(t, f.Must, 1)
	assert.Len(t, f.Should, 2)

	f = toQdrantFilter(&Filter{Must: map[string]int64{"oid": 1}, IDs: []int64{3, 8}})
	require.Len(t, f.Must, 2)
	ids := f.Must[1].GetHasId().GetHasId()
	require.Len(t, ids, 2)
	assert.Equal(t, uint64(3), ids[0].GetNum())
	assert.Equal(t, uint64(8), ids[1].GetNum())

	assert.NotNil(t, toQdrantFilter(&Filter{IDs: []int64{1}}))
}

// 结果按分数降序且都高于阈值
func TestTopK_Ordered_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dim := rapid.IntRange(1, 4).Draw(t, "dim")
		vec := rapid.SliceOfN(rapid.Float32Range(-1, 1), dim, dim)
		query := vec.Draw(t, "query")
		n := rapid.IntRange(0, 20).Draw(t, "n")
		items := make([]Item, n)
		for i := range items {
			items[i] = Item{ID: int64(i), Vector: vec.Draw(t, "item")}
		}
		threshold := rapid.Float64Range(-1, 1).Draw(t, "threshold")
		k := rapid.IntRange(1, 10).Draw(t, "k")

		hits := TopK(query, items, threshold, k)
		if len(hits) > k {
			t.Fatalf("got %d hits, k=%d", len(hits), k)
		}
		for i, h := range hits {
			if h.Score <= threshold {
				t.Fatalf("hit %d below threshold", h.ID)
			}
			if i > 0 && (hits[i-1].Score < h.Score || (hits[i-1].Score == h.Score && hits[i-1].ID > h.ID)) {
				t.Fatalf("hits not ordered: %v", hits)
			}
		}
	})
}
