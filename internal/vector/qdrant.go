package vector

import (
	"context"
	"fmt"
	"sync"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/internal/config"

	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
)

const upsertBatchSize = 100

// QdrantIndex 基于 Qdrant 的向量索引，每个知识库一个 collection
type QdrantIndex struct {
	client    *qdrant.Client
	dimension int

	mu      sync.Mutex
	ensured map[string]bool
}

// NewQdrantIndex 连接 Qdrant
func NewQdrantIndex(cfg *config.QdrantConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("Qdrant 连接失败: %w", err)
	}
	logger.Info("Qdrant 已连接", zap.String("host", cfg.Host), zap.Int("port", cfg.Port))
	return &QdrantIndex{client: client, dimension: cfg.Dimension, ensured: make(map[string]bool)}, nil
}

// Close 关闭连接
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}

// ensureCollection 不存在时按向量维度创建 collection
func (q *QdrantIndex) ensureCollection(ctx context.Context, collection string, dimension int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ensured[collection] {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("检查 Collection 是否存在失败: %w", err)
	}
	if !exists {
		if q.dimension > 0 {
			dimension = q.dimension
		}
		err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("创建 Collection 失败: %w", err)
		}
		logger.Info("Qdrant Collection 已创建", zap.String("collection", collection), zap.Int("dimension", dimension))
	}
	q.ensured[collection] = true
	return nil
}

// Upsert 批量写入
func (q *QdrantIndex) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := q.ensureCollection(ctx, collection, len(points[0].Vector)); err != nil {
		return err
	}

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDNum(uint64(p.ID)),
			Vectors: qdrant.NewVectorsDense(p.Vector),
			Payload: qdrant.NewValueMap(p.Payload),
		})
	}

	for i := 0; i < len(qpoints); i += upsertBatchSize {
		end := min(i+upsertBatchSize, len(qpoints))
		_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Points:         qpoints[i:end],
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			return fmt.Errorf("向量写入失败 (batch %d-%d): %w", i, end, err)
		}
	}
	return nil
}

// Delete 删除向量点
func (q *QdrantIndex) Delete(ctx context.Context, collection string, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, qdrant.NewIDNum(uint64(id)))
	}
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return fmt.Errorf("删除向量失败: %w", err)
	}
	return nil
}

// Search 相似度检索
func (q *QdrantIndex) Search(ctx context.Context, collection string, query []float32, filter *Filter, threshold float64, k int) ([]Hit, error) {
	params := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(query),
		Limit:          qdrant.PtrOf(uint64(k)),
		ScoreThreshold: qdrant.PtrOf(float32(threshold)),
	}
	if f := toQdrantFilter(filter); f != nil {
		params.Filter = f
	}

	results, err := q.client.Query(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("向量搜索失败: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{ID: int64(r.GetId().GetNum()), Score: float64(r.GetScore())})
	}
	SortHits(hits)
	return hits, nil
}

func toQdrantFilter(f *Filter) *qdrant.Filter {
	if f == nil || (len(f.Must) == 0 && len(f.Should) == 0 && len(f.IDs) == 0) {
		return nil
	}
	out := &qdrant.Filter{}
	for key, v := range f.Must {
		out.Must = append(out.Must, qdrant.NewMatchInt(key, v))
	}
	if len(f.IDs) > 0 {
		ids := make([]*qdrant.PointId, 0, len(f.IDs))
		for _, id := range f.IDs {
			ids = append(ids, qdrant.NewIDNum(uint64(id)))
		}
		out.Must = append(out.Must, qdrant.NewHasID(ids...))
	}
	for key, v := range f.Should {
		out.Should = append(out.Should, qdrant.NewMatchInt(key, v))
	}
	return out
}
