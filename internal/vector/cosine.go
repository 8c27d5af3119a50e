// Package vector 向量相似度检索：进程内余弦计算与 Qdrant
package vector

import (
	"context"
	"math"
	"sort"
)

// Hit 检索命中
type Hit struct {
	ID    int64
	Score float64
}

// Item 待比较的向量
type Item struct {
	ID     int64
	Vector []float32
}

// Point 写入索引的向量点
type Point struct {
	ID      int64
	Vector  []float32
	Payload map[string]any
}

// Filter 按 payload 过滤，Must 全部满足且 Should 至少满足一个；IDs 非空时只在这些点中检索
type Filter struct {
	Must   map[string]int64
	Should map[string]int64
	IDs    []int64
}

// Index 相似度检索契约，返回高于阈值、按分数降序、最多 k 条的结果
type Index interface {
	Search(ctx context.Context, collection string, query []float32, filter *Filter, threshold float64, k int) ([]Hit, error)
	Upsert(ctx context.Context, collection string, points []Point) error
	Delete(ctx context.Context, collection string, ids []int64) error
}

// Cosine 余弦相似度，维度不一致或零向量返回 0
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// TopK 计算相似度，保留高于阈值的结果，按分数降序、ID 升序，最多 k 条
func TopK(query []float32, items []Item, threshold float64, k int) []Hit {
	hits := make([]Hit, 0)
	for _, it := range items {
		if len(it.Vector) == 0 {
			continue
		}
		score := Cosine(query, it.Vector)
		if score > threshold {
			hits = append(hits, Hit{ID: it.ID, Score: score})
		}
	}
	SortHits(hits)
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// SortHits 按分数降序、ID 升序排序
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
}
