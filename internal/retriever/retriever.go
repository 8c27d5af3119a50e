// Package retriever 按问题检索术语与 SQL 示例，关键词与向量两路并行后合并
package retriever

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/internal/config"
	"github.com/superfm831010/SQLBothp/internal/embedding"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/types"
	"github.com/superfm831010/SQLBothp/internal/vector"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Query 检索条件
type Query struct {
	Text        string
	OID         int64
	Datasource  *int64
	Application *int64
}

// TerminologySource 术语数据来源
type TerminologySource interface {
	Candidates(ctx context.Context, oid int64, datasource *int64) ([]*model.Terminology, error)
	Clusters(ctx context.Context, rootIDs []int64) ([]*model.Terminology, error)
}

// TrainingSource SQL 示例数据来源
type TrainingSource interface {
	Candidates(ctx context.Context, oid int64, datasource, application *int64) ([]*model.DataTraining, error)
}

// Option 检索器选项
type Option func(*Retriever)

// WithEmbedder 开启向量通道
func WithEmbedder(e embedding.Embedder) Option {
	return func(r *Retriever) { r.embedder = e }
}

// WithIndex 使用外部向量索引，不设置时在进程内计算余弦相似度
func WithIndex(index vector.Index, terminologyCollection, trainingCollection string) Option {
	return func(r *Retriever) {
		r.index = index
		r.termCollection = terminologyCollection
		r.trainingCollection = trainingCollection
	}
}

// Retriever 知识检索器
type Retriever struct {
	terms     TerminologySource
	trainings TrainingSource
	cfg       config.RetrievalConfig

	embedder           embedding.Embedder
	index              vector.Index
	termCollection     string
	trainingCollection string
}

// New 创建检索器
func New(terms TerminologySource, trainings TrainingSource, cfg config.RetrievalConfig, opts ...Option) *Retriever {
	r := &Retriever{terms: terms, trainings: trainings, cfg: cfg}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// candidate 参与打分的知识条目
type candidate struct {
	id     int64
	key    string
	vector []float32
}

// Retrieve 检索术语与示例，向量通道失败时降级为仅关键词
func (r *Retriever) Retrieve(ctx context.Context, q Query) (*Knowledge, error) {
	embedQuery := sync.OnceValues(func() ([]float32, error) {
		return r.embedder.EmbedQuery(ctx, q.Text)
	})

	k := &Knowledge{}
	var mu sync.Mutex
	degrade := func(channel string, err error) {
		logger.Warn(types.ErrRetrievalDegraded.Message,
			zap.String("channel", channel), zap.Int64("oid", q.OID), zap.Error(err))
		mu.Lock()
		k.Degraded = true
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		clusters, err := r.retrieveTerminologies(gctx, q, embedQuery, degrade)
		k.Terminologies = clusters
		return err
	})
	g.Go(func() error {
		examples, err := r.retrieveExamples(gctx, q, embedQuery, degrade)
		k.Examples = examples
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return k, nil
}

func (r *Retriever) retrieveTerminologies(ctx context.Context, q Query, embedQuery func() ([]float32, error), degrade func(string, error)) ([]TerminologyCluster, error) {
	rows, err := r.terms.Candidates(ctx, q.OID, q.Datasource)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	byID := make(map[int64]*model.Terminology, len(rows))
	cands := make([]candidate, 0, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
		cands = append(cands, candidate{id: row.ID, key: row.Word, vector: row.Embedding})
	}

	filter := &vector.Filter{Must: map[string]int64{"oid": q.OID}}
	if q.Datasource != nil {
		filter.Should = map[string]int64{"global": 1, "datasource_ids": *q.Datasource}
	} else {
		filter.Must["global"] = 1
	}
	hits := r.rank(ctx, q.Text, cands, r.cfg.Terminology, r.termCollection, filter, embedQuery, degrade)
	if len(hits) == 0 {
		return nil, nil
	}

	// 同义词命中归到主词，簇分数取最高
	best := make(map[int64]float64)
	rootOrder := make([]int64, 0)
	for _, h := range hits {
		root := byID[h.ID].RootID()
		if _, ok := best[root]; !ok {
			rootOrder = append(rootOrder, root)
			best[root] = h.Score
		}
	}

	members, err := r.terms.Clusters(ctx, rootOrder)
	if err != nil {
		return nil, err
	}
	clusters := make(map[int64]*TerminologyCluster, len(rootOrder))
	for _, m := range members {
		root := m.RootID()
		c, ok := clusters[root]
		if !ok {
			c = &TerminologyCluster{RootID: root, Score: best[root]}
			clusters[root] = c
		}
		if m.PID == nil {
			c.Words = append([]string{m.Word}, c.Words...)
			c.Description = m.Description
		} else {
			c.Words = append(c.Words, m.Word)
		}
	}

	out := make([]TerminologyCluster, 0, len(rootOrder))
	for _, root := range rootOrder {
		if c, ok := clusters[root]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *Retriever) retrieveExamples(ctx context.Context, q Query, embedQuery func() ([]float32, error), degrade func(string, error)) ([]Example, error) {
	if q.Datasource == nil && q.Application == nil {
		return nil, nil
	}
	rows, err := r.trainings.Candidates(ctx, q.OID, q.Datasource, q.Application)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	byID := make(map[int64]*model.DataTraining, len(rows))
	cands := make([]candidate, 0, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
		cands = append(cands, candidate{id: row.ID, key: row.Question, vector: row.Embedding})
	}

	filter := &vector.Filter{Must: map[string]int64{"oid": q.OID}, Should: map[string]int64{}}
	if q.Datasource != nil {
		filter.Should["datasource"] = *q.Datasource
	}
	if q.Application != nil {
		filter.Should["advanced_application"] = *q.Application
	}
	hits := r.rank(ctx, q.Text, cands, r.cfg.DataTraining, r.trainingCollection, filter, embedQuery, degrade)

	out := make([]Example, 0, len(hits))
	for _, h := range hits {
		row := byID[h.ID]
		out = append(out, Example{ID: row.ID, Question: row.Question, Answer: row.Description, Score: h.Score})
	}
	return out, nil
}

// rank 关键词与向量两路并行打分后合并，向量通道失败只降级不报错
func (r *Retriever) rank(ctx context.Context, text string, cands []candidate, ch config.ChannelConfig, collection string, filter *vector.Filter,
	embedQuery func() ([]float32, error), degrade func(string, error)) []vector.Hit {
	var lexical, semantic []vector.Hit

	var g errgroup.Group
	g.Go(func() error {
		lexical = lexicalHits(text, cands)
		return nil
	})
	if r.embedder != nil {
		g.Go(func() error {
			hits, err := r.semanticHits(ctx, cands, ch, collection, filter, embedQuery)
			if err != nil {
				if !errors.Is(err, context.Canceled) {
					degrade(collection, err)
				}
				return nil
			}
			semantic = hits
			return nil
		})
	}
	_ = g.Wait()

	return Merge(r.cfg.MaxResults, lexical, semantic)
}

func (r *Retriever) semanticHits(ctx context.Context, cands []candidate, ch config.ChannelConfig, collection string, filter *vector.Filter,
	embedQuery func() ([]float32, error)) ([]vector.Hit, error) {
	query, err := embedQuery()
	if err != nil {
		return nil, err
	}

	if r.index == nil {
		items := make([]vector.Item, 0, len(cands))
		for _, c := range cands {
			items = append(items, vector.Item{ID: c.id, Vector: c.vector})
		}
		return vector.TopK(query, items, ch.Similarity, ch.TopCount), nil
	}

	// 只在候选集内检索，索引里已停用或刚删除的点不占 top-K 名额
	scoped := vector.Filter{IDs: make([]int64, 0, len(cands))}
	if filter != nil {
		scoped.Must, scoped.Should = filter.Must, filter.Should
	}
	eligible := make(map[int64]struct{}, len(cands))
	for _, c := range cands {
		eligible[c.id] = struct{}{}
		scoped.IDs = append(scoped.IDs, c.id)
	}
	hits, err := r.index.Search(ctx, collection, query, &scoped, ch.Similarity, ch.TopCount)
	if err != nil {
		return nil, err
	}
	out := hits[:0]
	for _, h := range hits {
		if _, ok := eligible[h.ID]; ok {
			out = append(out, h)
		}
	}
	return out, nil
}

// lexicalHits 问题包含关键词或关键词包含问题即命中，分数为短长字符数之比
func lexicalHits(text string, cands []candidate) []vector.Hit {
	query := strings.ToLower(strings.TrimSpace(text))
	if query == "" {
		return nil
	}
	hits := make([]vector.Hit, 0)
	for _, c := range cands {
		key := strings.ToLower(strings.TrimSpace(c.key))
		if key == "" {
			continue
		}
		if !strings.Contains(query, key) && !strings.Contains(key, query) {
			continue
		}
		a, b := utf8.RuneCountInString(query), utf8.RuneCountInString(key)
		hits = append(hits, vector.Hit{ID: c.id, Score: float64(min(a, b)) / float64(max(a, b))})
	}
	return hits
}

// Merge 合并多路结果，同一条目取最高分，按分数降序、ID 升序，limit 大于 0 时截断
func Merge(limit int, channels ...[]vector.Hit) []vector.Hit {
	best := make(map[int64]float64)
	for _, hits := range channels {
		for _, h := range hits {
			if s, ok := best[h.ID]; !ok || h.Score > s {
				best[h.ID] = h.Score
			}
		}
	}
	out := make([]vector.Hit, 0, len(best))
	for id, score := range best {
		out = append(out, vector.Hit{ID: id, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
