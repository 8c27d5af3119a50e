package logic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/superfm831010/SQLBothp/internal/config"
	"github.com/superfm831010/SQLBothp/internal/ctxutil"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/store"
	"github.com/superfm831010/SQLBothp/internal/svc"
	"github.com/superfm831010/SQLBothp/internal/types"
	"github.com/superfm831010/SQLBothp/internal/validate"
	"github.com/superfm831010/SQLBothp/internal/vector"
	"github.com/superfm831010/SQLBothp/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// lengthEmbedder 用文本长度构造向量
type lengthEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (e *lengthEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	v, err := e.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return v[0], nil
}

func (e *lengthEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.fail {
		return nil, errors.New("embedding unavailable")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len([]rune(t))), 1}
	}
	return out, nil
}

// memIndex 记录写入与删除的向量点
type memIndex struct {
	mu      sync.Mutex
	points  map[string]map[int64]vector.Point
	deleted map[string][]int64
}

func newMemIndex() *memIndex {
	return &memIndex{points: map[string]map[int64]vector.Point{}, deleted: map[string][]int64{}}
}

func (m *memIndex) Search(context.Context, string, []float32, *vector.Filter, float64, int) ([]vector.Hit, error) {
	return nil, nil
}

func (m *memIndex) Upsert(_ context.Context, collection string, points []vector.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.points[collection] == nil {
		m.points[collection] = map[int64]vector.Point{}
	}
	for _, p := range points {
		m.points[collection][p.ID] = p
	}
	return nil
}

func (m *memIndex) Delete(_ context.Context, collection string, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted[collection] = append(m.deleted[collection], ids...)
	for _, id := range ids {
		delete(m.points[collection], id)
	}
	return nil
}

func (m *memIndex) point(collection string, id int64) (vector.Point, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.points[collection][id]
	return p, ok
}

type env struct {
	ctx      context.Context
	scope    ctxutil.Scope
	embedder *lengthEmbedder
	index    *memIndex
	sales    *model.Datasource
	finance  *model.Datasource
}

func setup(t *testing.T, withEmbedding bool) *env {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))

	pool, err := worker.NewPool(4)
	require.NoError(t, err)

	cfg := config.Default()
	s := &svc.ServiceContext{
		Config:        cfg,
		DB:            db,
		Chats:         store.NewChatStore(db),
		Terminologies: store.NewTerminologyStore(db),
		Trainings:     store.NewTrainingStore(db),
		Datasources:   store.NewDatasourceStore(db),
		Pool:          pool,
	}
	e := &env{ctx: context.Background(), scope: ctxutil.Scope{UserID: 1, OID: 1}}
	if withEmbedding {
		e.embedder = &lengthEmbedder{}
		e.index = newMemIndex()
		s.Embedder = e.embedder
		s.Index = e.index
	}
	svc.Ctx = s
	t.Cleanup(func() {
		_ = pool.Close(5 * time.Second)
		_ = sqlDB.Close()
		svc.Ctx = nil
	})

	e.sales = &model.Datasource{OID: 1, Name: "销售库", Type: "pg"}
	e.finance = &model.Datasource{OID: 1, Name: "财务库", Type: "mysql"}
	require.NoError(t, s.Datasources.Create(e.ctx, e.sales))
	require.NoError(t, s.Datasources.Create(e.ctx, e.finance))
	return e
}

func TestTerminology_SaveAndClash(t *testing.T) {
	e := setup(t, false)
	l := NewTerminologyLogic(e.ctx, e.scope)

	id, err := l.Save(&TerminologyReq{Word: "GDP", OtherWords: []string{"国民生产", ""}, Description: "国内生产总值"})
	require.NoError(t, err)

	got, err := l.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "GDP", got.Word)
	assert.Equal(t, []string{"国民生产"}, got.OtherWords)
	assert.True(t, got.Enabled)

	// 与全局术语同名，无论作用域都冲突
	_, err = l.Save(&TerminologyReq{Word: "gdp", Description: "x", SpecificDS: true, DatasourceIDs: []int64{e.sales.ID}})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeInvalidParameter, types.GetErrorCode(err))

	// 指定数据源的同名术语，数据源不相交时允许
	_, err = l.Save(&TerminologyReq{Word: "ARR", Description: "年度经常性收入", SpecificDS: true, DatasourceIDs: []int64{e.sales.ID}})
	require.NoError(t, err)
	_, err = l.Save(&TerminologyReq{Word: "ARR", Description: "应收账款", SpecificDS: true, DatasourceIDs: []int64{e.finance.ID}})
	require.NoError(t, err)
	_, err = l.Save(&TerminologyReq{Word: "ARR", Description: "x", SpecificDS: true, DatasourceIDs: []int64{e.finance.ID}})
	require.Error(t, err)

	// 指定数据源但未选择
	_, err = l.Save(&TerminologyReq{Word: "NRR", Description: "x", SpecificDS: true})
	require.Error(t, err)
	assert.Contains(t, types.Message(err), "数据源不能为空")

	// 更新时排除自身所在的簇
	off := false
	_, err = l.Save(&TerminologyReq{ID: id, Word: "GDP", OtherWords: []string{"国民总产值"}, Description: "国内生产总值", Enabled: &off})
	require.NoError(t, err)
	got, err = l.Get(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"国民总产值"}, got.OtherWords)
	assert.False(t, got.Enabled)

	list, total, err := l.Page(&PageReq{Page: 1, PageSize: 10, Keyword: "ARR"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, list, 2)
	assert.Len(t, list[0].DatasourceNames, 1)

	require.NoError(t, l.Delete([]int64{id}))
	_, err = l.Get(id)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}

func TestTerminology_BatchCreate(t *testing.T) {
	e := setup(t, false)
	l := NewTerminologyLogic(e.ctx, e.scope)

	rows := []*validate.Row{
		{Word: "GDP", Synonyms: []string{"国民生产"}, Description: "国内生产总值"},
		{Word: "国民生产", Synonyms: []string{"gdp"}, Description: "重复"},
		{Word: "ARR", Description: "x", SpecificDS: true, Datasources: []string{"销售库"}},
		{Word: "", Description: ""},
		{Word: "NRR", Description: "x", SpecificDS: true, Datasources: []string{"不存在"}},
		{Word: "gdp", Description: "已存在"},
	}
	res, err := l.BatchCreate(rows)
	require.NoError(t, err)
	assert.Equal(t, 6, res.OriginalCount)
	assert.Equal(t, 1, res.DuplicateCount)
	assert.Equal(t, 5, res.DeduplicatedCount)
	assert.Equal(t, 2, res.SuccessCount)
	require.Len(t, res.FailedRecords, 3)
	assert.Len(t, res.FailedRecords[0].Errors, 2)
	assert.Contains(t, res.FailedRecords[2].Errors[0], "术语已存在")
}

func TestTerminology_EmbeddingSync(t *testing.T) {
	e := setup(t, true)
	l := NewTerminologyLogic(e.ctx, e.scope)

	id, err := l.Save(&TerminologyReq{Word: "ARR", OtherWords: []string{"年收入"}, Description: "x",
		SpecificDS: true, DatasourceIDs: []int64{e.sales.ID}})
	require.NoError(t, err)

	coll := svc.Ctx.Config.Qdrant.TerminologyCollection
	require.Eventually(t, func() bool {
		_, ok := e.index.point(coll, id)
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	p, _ := e.index.point(coll, id)
	assert.Equal(t, []float32{3, 1}, p.Vector)
	assert.Equal(t, int64(0), p.Payload["global"])
	assert.Equal(t, []any{e.sales.ID}, p.Payload["datasource_ids"])

	rows, err := svc.Ctx.Terminologies.ByIDs(e.ctx, []int64{id})
	require.NoError(t, err)
	assert.NotEmpty(t, rows[0].Embedding)

	// 同义词整体替换，旧同义词从索引删除
	_, children, err := svc.Ctx.Terminologies.Get(e.ctx, 1, id)
	require.NoError(t, err)
	require.Len(t, children, 1)
	old := children[0].ID

	_, err = l.Save(&TerminologyReq{ID: id, Word: "ARR", Description: "x"})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, present := e.index.point(coll, old)
		p, ok := e.index.point(coll, id)
		return !present && ok && p.Payload["global"] == int64(1)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDataTraining_Save(t *testing.T) {
	e := setup(t, false)
	l := NewDataTrainingLogic(e.ctx, e.scope)

	_, err := l.Save(&DataTrainingReq{Question: "各地区销售额", Description: "SELECT 1"})
	require.Error(t, err)
	assert.Contains(t, types.Message(err), "不能同时为空")

	id, err := l.Save(&DataTrainingReq{Question: "各地区销售额", Description: "SELECT 1", Datasource: &e.sales.ID})
	require.NoError(t, err)

	_, err = l.Save(&DataTrainingReq{Question: "各地区销售额", Description: "SELECT 2", Datasource: &e.sales.ID})
	require.Error(t, err)
	assert.Contains(t, types.Message(err), "问题已存在")

	// 其他数据源下允许同名问题
	_, err = l.Save(&DataTrainingReq{Question: "各地区销售额", Description: "SELECT 2", Datasource: &e.finance.ID})
	require.NoError(t, err)

	missing := int64(999)
	_, err = l.Save(&DataTrainingReq{Question: "q", Description: "SELECT 1", Datasource: &missing})
	assert.True(t, errors.Is(err, types.ErrNotFound))

	list, total, err := l.Page(&PageReq{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "财务库", list[0].DatasourceName)

	require.NoError(t, l.Enable(id, false))
	row, err := l.Get(id)
	require.NoError(t, err)
	assert.False(t, row.Enabled)
}

func TestDataTraining_BatchCreate(t *testing.T) {
	e := setup(t, false)
	l := NewDataTrainingLogic(e.ctx, e.scope)

	res, err := l.BatchCreate([]*validate.Row{
		{Question: "q1", Answer: "SELECT 1", Datasource: "销售库"},
		{Question: " q1", Answer: "SELECT 1", Datasource: "销售库"},
		{Question: "q2", Answer: "SELECT 2", Application: "3"},
		{Question: "q3", Answer: "SELECT 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.DuplicateCount)
	assert.Equal(t, 2, res.SuccessCount)
	require.Len(t, res.FailedRecords, 1)
	assert.Equal(t, "q3", res.FailedRecords[0].Data.Question)
}

func TestFillEmptyEmbeddings(t *testing.T) {
	e := setup(t, false)
	_, err := svc.Ctx.Trainings.Save(e.ctx, &model.DataTraining{OID: 1, Question: "q", Description: "SELECT 1",
		Datasource: &e.sales.ID, Enabled: true})
	require.NoError(t, err)
	_, err = svc.Ctx.Terminologies.Save(e.ctx, &model.Terminology{OID: 1, Word: "GDP", Description: "x", Enabled: true}, []string{"国民生产"})
	require.NoError(t, err)

	// 未配置向量模型时不处理
	n, err := NewEmbeddingLogic(e.ctx).FillEmptyEmbeddings()
	require.NoError(t, err)
	assert.Zero(t, n)

	embedder := &lengthEmbedder{}
	index := newMemIndex()
	svc.Ctx.Embedder = embedder
	svc.Ctx.Index = index

	n, err = NewEmbeddingLogic(e.ctx).FillEmptyEmbeddings()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	missing, err := svc.Ctx.Terminologies.MissingEmbedding(e.ctx)
	require.NoError(t, err)
	assert.Empty(t, missing)
	p, ok := index.point(svc.Ctx.Config.Qdrant.DataTrainingCollection, 1)
	require.True(t, ok)
	assert.Equal(t, e.sales.ID, p.Payload["datasource"])

	// 已全部补齐
	n, err = NewEmbeddingLogic(e.ctx).FillEmptyEmbeddings()
	require.NoError(t, err)
	assert.Zero(t, n)

	embedder.fail = true
	_, err = svc.Ctx.Trainings.Save(e.ctx, &model.DataTraining{OID: 1, Question: "q2", Description: "SELECT 2",
		Datasource: &e.sales.ID, Enabled: true})
	require.NoError(t, err)
	_, err = NewEmbeddingLogic(e.ctx).FillEmptyEmbeddings()
	require.Error(t, err)
}

func TestChat_CRUD(t *testing.T) {
	e := setup(t, false)
	l := NewChatLogic(e.ctx, e.scope)

	chat, err := l.Start(&StartChatReq{Datasource: &e.sales.ID, Question: "这是一个非常非常非常非常非常非常长的问题标题"})
	require.NoError(t, err)
	assert.Equal(t, "pg", chat.EngineType)
	assert.Len(t, []rune(chat.Brief), briefMaxLen)

	missing := int64(999)
	_, err = l.Start(&StartChatReq{Datasource: &missing})
	assert.True(t, errors.Is(err, types.ErrNotFound))

	b, err := l.Rename(&RenameChatReq{ID: chat.ID, Brief: " 销售分析 "})
	require.NoError(t, err)
	assert.Equal(t, "销售分析", b)
	_, err = l.Rename(&RenameChatReq{ID: chat.ID, Brief: " "})
	require.Error(t, err)

	rec := &model.ChatRecord{ChatID: chat.ID, Question: "q", Data: `{"fields":["a"],"data":[{"a":1}]}`,
		PredictData: `[{"a":2}]`}
	require.NoError(t, svc.Ctx.Chats.CreateRecord(e.ctx, rec))
	empty := &model.ChatRecord{ChatID: chat.ID, Question: "q2"}
	require.NoError(t, svc.Ctx.Chats.CreateRecord(e.ctx, empty))

	data, err := l.RecordData(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, []any{"a"}, data["fields"])
	predict, err := l.RecordPredictData(rec.ID)
	require.NoError(t, err)
	assert.Len(t, predict, 1)

	data, err = l.RecordData(empty.ID)
	require.NoError(t, err)
	assert.Empty(t, data)
	predict, err = l.RecordPredictData(empty.ID)
	require.NoError(t, err)
	assert.Empty(t, predict)

	// 其他工作空间不可见
	other := NewChatLogic(e.ctx, ctxutil.Scope{UserID: 1, OID: 2})
	_, err = other.RecordData(rec.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	detail, err := l.Get(chat.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Records, 2)

	list, err := l.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, l.Delete(chat.ID))
	_, err = l.Get(chat.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))
}
